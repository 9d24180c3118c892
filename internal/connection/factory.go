package connection

import (
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/eventrelay/internal/common/configtypes"
	"github.com/edgecomet/eventrelay/internal/common/redis"
	"github.com/edgecomet/eventrelay/internal/lifecycle"
)

// Dependencies are collaborators shared by the connections Build creates
type Dependencies struct {
	Lifecycle lifecycle.Registry
	Recorder  Recorder
}

// Build assembles the enabled transports into one connection: a single transport
// as-is, several behind a MultiConnection, wrapped in an AsyncConnection unless
// async delivery is disabled.
func Build(cfg *configtypes.RelayConfig, logger *zap.Logger, deps Dependencies) (Connection, error) {
	transports, err := buildTransports(cfg.Transports, logger)
	if err != nil {
		return nil, err
	}

	var conn Connection
	switch len(transports) {
	case 0:
		return nil, fmt.Errorf("no transport enabled")
	case 1:
		conn = transports[0]
	default:
		conn = NewMultiConnection(transports...)
	}

	if !cfg.Async.IsEnabled() {
		logger.Info("Asynchronous delivery disabled, events are sent on the caller goroutine")
		return conn, nil
	}

	opts := []AsyncOption{
		WithPropagateClose(cfg.Async.ShouldPropagateClose()),
		WithGracePeriod(time.Duration(cfg.Async.GracePeriod)),
		WithPoolConfig(PoolConfig{
			Workers:      cfg.Async.Workers,
			QueueSize:    cfg.Async.QueueSize,
			RejectPolicy: cfg.Async.RejectPolicy,
		}),
	}
	if deps.Lifecycle != nil {
		opts = append(opts, WithLifecycle(deps.Lifecycle))
	}
	if deps.Recorder != nil {
		opts = append(opts, WithRecorder(deps.Recorder))
	}

	async, err := NewAsyncConnection(conn, logger, opts...)
	if err != nil {
		closeLogged(conn, logger)
		return nil, err
	}

	logger.Info("Asynchronous delivery enabled",
		zap.Int("workers", cfg.Async.Workers),
		zap.Int("queue_size", cfg.Async.QueueSize),
		zap.Duration("grace_period", time.Duration(cfg.Async.GracePeriod)))
	return async, nil
}

func buildTransports(cfg configtypes.TransportsConfig, logger *zap.Logger) ([]Connection, error) {
	var transports []Connection
	closeAll := func() {
		for _, t := range transports {
			closeLogged(t, logger)
		}
	}

	if cfg.HTTP.Enabled {
		conn, err := NewHTTPConnection(cfg.HTTP, logger)
		if err != nil {
			return nil, fmt.Errorf("http transport: %w", err)
		}
		transports = append(transports, conn)
	}

	if cfg.File.Enabled {
		conn, err := NewFileConnection(cfg.File, logger)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("file transport: %w", err)
		}
		transports = append(transports, conn)
	}

	if cfg.Redis.Enabled {
		client, err := redis.NewClient(&cfg.Redis.RedisConfig, logger)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("redis transport: %w", err)
		}
		conn, err := NewRedisConnection(client, cfg.Redis.Key, logger)
		if err != nil {
			closeLogged(client, logger)
			closeAll()
			return nil, fmt.Errorf("redis transport: %w", err)
		}
		transports = append(transports, conn)
	}

	return transports, nil
}

// closeLogged closes a half-built transport while unwinding a failed Build
func closeLogged(c io.Closer, logger *zap.Logger) {
	if err := c.Close(); err != nil {
		logger.Warn("Failed to close transport during cleanup", zap.Error(err))
	}
}
