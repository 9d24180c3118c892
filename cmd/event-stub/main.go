package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/edgecomet/eventrelay/internal/common/logger"
	"github.com/edgecomet/eventrelay/internal/stub"
)

func main() {
	listen := flag.String("listen", "127.0.0.1:9000", "address the stub server listens on")
	flag.Parse()

	dynamicLogger, err := logger.NewDefaultLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer dynamicLogger.Sync()

	zapLogger := dynamicLogger.Logger

	server := stub.New(zapLogger)
	if err := server.Start(*listen); err != nil {
		zapLogger.Fatal("Failed to start stub server", zap.Error(err))
	}

	zapLogger.Info("Stub server started", zap.String("store_url", server.URL()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down stub server...")
	if err := server.Shutdown(); err != nil {
		zapLogger.Error("Failed to shutdown stub server gracefully", zap.Error(err))
	}

	zapLogger.Info("Stub server stopped", zap.Int("events_received", server.EventCount()))
}
