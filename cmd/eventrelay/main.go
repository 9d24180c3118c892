package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/eventrelay/internal/client"
	"github.com/edgecomet/eventrelay/internal/common/config"
	"github.com/edgecomet/eventrelay/internal/common/logger"
	"github.com/edgecomet/eventrelay/internal/common/metricsserver"
	"github.com/edgecomet/eventrelay/internal/connection"
	"github.com/edgecomet/eventrelay/internal/event"
	"github.com/edgecomet/eventrelay/internal/lifecycle"
	"github.com/edgecomet/eventrelay/internal/metrics"
)

func main() {
	configPath := flag.String("c", "configs/example/eventrelay.yaml", "path to eventrelay configuration file")
	levelName := flag.String("level", "error", "level of the events read from stdin")
	flag.Parse()

	initialLogger, err := logger.NewDefaultLogger()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	initialLogger.Info("Starting event relay",
		zap.String("config_path", *configPath))

	level, err := event.ParseLevel(*levelName)
	if err != nil {
		initialLogger.Fatal("Invalid event level", zap.Error(err))
	}

	relayConfig, err := config.LoadRelayConfig(*configPath, initialLogger.Logger)
	if err != nil {
		initialLogger.Fatal("Failed to load relay config", zap.Error(err))
	}

	dynamicLogger, err := logger.NewLogger(relayConfig.Logging)
	if err != nil {
		initialLogger.Fatal("Failed to create configured logger", zap.Error(err))
	}
	defer dynamicLogger.Sync()

	zapLogger := dynamicLogger.With(zap.String("relay_id", relayConfig.RelayID))

	hooks := lifecycle.New(zapLogger)

	// Registered first so it stops after the connection has flushed
	var collector *metrics.MetricsCollector
	deps := connection.Dependencies{Lifecycle: hooks}
	if relayConfig.Metrics.Enabled {
		collector = metrics.NewMetricsCollector(relayConfig.Metrics.Namespace, zapLogger)
		deps.Recorder = collector

		metricsServer, err := metricsserver.StartMetricsServer(relayConfig.Metrics, collector, zapLogger)
		if err != nil {
			zapLogger.Fatal("Failed to start metrics server", zap.Error(err))
		}
		hooks.Register("metrics-server", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(ctx)
		})
	}

	conn, err := connection.Build(relayConfig, zapLogger, deps)
	if err != nil {
		zapLogger.Fatal("Failed to create connection", zap.Error(err))
	}
	if !relayConfig.Async.IsEnabled() {
		hooks.Register("connection", conn.Close)
	}

	relayClient := client.New(conn, zapLogger)
	relayClient.AddBuilderHelper(client.DefaultsHelper(relayConfig.Defaults))

	// Runs first: shutdown progress must be visible whatever the configured level
	hooks.Register("shutdown-logging", func() error {
		dynamicLogger.EnsureInfoLevelForShutdown()
		zapLogger.Info("Shutting down event relay...")
		return nil
	})

	ctx, stopReading := context.WithCancel(context.Background())
	go func() {
		defer stopReading()
		read := forwardLines(os.Stdin, relayClient, level, zapLogger)
		zapLogger.Info("Input closed", zap.Int("events", read))
	}()

	zapLogger.Info("Event relay started",
		zap.String("level", string(level)),
		zap.Int("transports", relayConfig.Transports.EnabledCount()),
		zap.Bool("async", relayConfig.Async.IsEnabled()))

	if sig := hooks.RunOnSignal(ctx); sig != nil {
		zapLogger.Info("Stopped by signal", zap.Stringer("signal", sig))
	}

	if collector != nil {
		snap := collector.Snapshot()
		zapLogger.Info("Delivery summary",
			zap.Uint64("submitted", snap.Submitted),
			zap.Uint64("delivered", snap.Delivered),
			zap.Uint64("failed", snap.Failed),
			zap.Uint64("rejected", snap.Rejected),
			zap.Uint64("abandoned", snap.Abandoned))
	}

	zapLogger.Info("Event relay stopped")
}

// forwardLines sends one event per non-empty input line and returns how many were sent
func forwardLines(input *os.File, relayClient *client.Client, level event.Level, logger *zap.Logger) int {
	scanner := bufio.NewScanner(input)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	sent := 0
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		relayClient.SendBuilder(event.NewBuilder().
			WithLevel(level).
			WithMessage(line).
			WithChecksumFor(line))
		sent++
	}
	if err := scanner.Err(); err != nil {
		logger.Error("Failed to read input", zap.Error(err))
	}
	return sent
}
