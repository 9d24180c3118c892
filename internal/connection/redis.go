package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/edgecomet/eventrelay/internal/common/redis"
	"github.com/edgecomet/eventrelay/internal/event"
)

const (
	transportRedis = "redis"

	redisSendTimeout = 3 * time.Second
)

// RedisConnection pushes JSON events onto a Redis list for a downstream consumer
type RedisConnection struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisConnection takes ownership of client: Close closes it
func NewRedisConnection(client *redis.Client, key string, logger *zap.Logger) (*RedisConnection, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if key == "" {
		return nil, fmt.Errorf("redis list key is required")
	}
	return &RedisConnection{client: client, key: key, logger: logger}, nil
}

// Send LPUSHes the event
func (r *RedisConnection) Send(ev *event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return &DeliveryError{EventID: ev.ID, Transport: transportRedis, Err: err}
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisSendTimeout)
	defer cancel()

	length, err := r.client.LPush(ctx, r.key, payload)
	if err != nil {
		return &DeliveryError{EventID: ev.ID, Transport: transportRedis, Err: err}
	}

	r.logger.Debug("Event pushed to Redis",
		zap.String("event_id", ev.ID),
		zap.String("key", r.key),
		zap.Int64("list_length", length))
	return nil
}

// Close closes the Redis client
func (r *RedisConnection) Close() error {
	return r.client.Close()
}
