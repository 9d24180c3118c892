package client

import (
	"sync"

	"go.uber.org/zap"

	"github.com/edgecomet/eventrelay/internal/common/configtypes"
	"github.com/edgecomet/eventrelay/internal/connection"
	"github.com/edgecomet/eventrelay/internal/event"
)

// BuilderHelper supplements an event under construction
type BuilderHelper func(b *event.Builder)

// Client finalizes events and hands them to a connection, synchronous or not.
// Delivery failures are logged, never returned.
type Client struct {
	conn   connection.Connection
	logger *zap.Logger

	mu      sync.RWMutex
	helpers []BuilderHelper
}

func New(conn connection.Connection, logger *zap.Logger) *Client {
	return &Client{
		conn:   conn,
		logger: logger,
	}
}

// AddBuilderHelper registers a helper run by SendBuilder, in registration order
func (c *Client) AddBuilderHelper(helper BuilderHelper) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.helpers = append(c.helpers, helper)
}

// SendEvent forwards a finalized event
func (c *Client) SendEvent(ev *event.Event) {
	if err := c.conn.Send(ev); err != nil {
		fields := []zap.Field{zap.Error(err)}
		if ev != nil {
			fields = append(fields, zap.String("event_id", ev.ID))
		}
		c.logger.Error("An error occurred while sending the event", fields...)
	}
}

// SendBuilder runs the builder helpers, finalizes the event and sends it
func (c *Client) SendBuilder(b *event.Builder) {
	c.mu.RLock()
	helpers := c.helpers
	c.mu.RUnlock()

	for _, helper := range helpers {
		helper(b)
	}
	c.SendEvent(b.Build())
}

// SendMessage sends a plain message at level
func (c *Client) SendMessage(level event.Level, message string) {
	c.SendBuilder(event.NewBuilder().WithLevel(level).WithMessage(message))
}

// Close closes the connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// DefaultsHelper fills fields the event left empty from configured defaults.
// Tags already set on the event win over default tags.
func DefaultsHelper(defaults configtypes.EventDefaults) BuilderHelper {
	return func(b *event.Builder) {
		ev := b.Peek()
		if ev.Logger == "" && defaults.Logger != "" {
			b.WithLogger(defaults.Logger)
		}
		if ev.Environment == "" && defaults.Environment != "" {
			b.WithEnvironment(defaults.Environment)
		}
		if ev.Release == "" && defaults.Release != "" {
			b.WithRelease(defaults.Release)
		}
		if ev.ServerName == "" && defaults.ServerName != "" {
			b.WithServerName(defaults.ServerName)
		}
		for k, v := range defaults.Tags {
			if _, ok := ev.Tags[k]; !ok {
				b.WithTag(k, v)
			}
		}
	}
}
