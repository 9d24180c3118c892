package connection

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edgecomet/eventrelay/internal/common/configtypes"
	"github.com/edgecomet/eventrelay/internal/common/redis"
	"github.com/edgecomet/eventrelay/internal/event"
)

func newTestRedisClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := redis.NewClient(&configtypes.RedisConfig{Addr: mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	return client, mr
}

func TestRedisConnection_PushesEvents(t *testing.T) {
	client, mr := newTestRedisClient(t)

	conn, err := NewRedisConnection(client, "events", zap.NewNop())
	require.NoError(t, err)
	defer conn.Close()

	first := newEvent("first")
	second := newEvent("second")
	require.NoError(t, conn.Send(first))
	require.NoError(t, conn.Send(second))

	items, err := mr.List("events")
	require.NoError(t, err)
	require.Len(t, items, 2)

	// LPUSH puts the newest event at the head
	var head event.Event
	require.NoError(t, json.Unmarshal([]byte(items[0]), &head))
	assert.Equal(t, second.ID, head.ID)
}

func TestRedisConnection_FailureIsDeliveryError(t *testing.T) {
	client, mr := newTestRedisClient(t)

	conn, err := NewRedisConnection(client, "events", zap.NewNop())
	require.NoError(t, err)
	defer conn.Close()

	mr.Close()

	ev := newEvent("lost")
	err = conn.Send(ev)
	require.Error(t, err)

	var deliveryErr *DeliveryError
	require.ErrorAs(t, err, &deliveryErr)
	assert.Equal(t, ev.ID, deliveryErr.EventID)
	assert.Equal(t, "redis", deliveryErr.Transport)
}

func TestRedisConnection_Validation(t *testing.T) {
	_, err := NewRedisConnection(nil, "events", zap.NewNop())
	assert.Error(t, err)

	client, _ := newTestRedisClient(t)
	defer client.Close()

	_, err = NewRedisConnection(client, "", zap.NewNop())
	assert.Error(t, err)
}

func TestRedisConnection_CloseClosesClient(t *testing.T) {
	client, _ := newTestRedisClient(t)

	conn, err := NewRedisConnection(client, "events", zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	assert.Error(t, client.Ping(context.Background()))
}
