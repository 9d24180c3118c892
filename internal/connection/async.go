package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/edgecomet/eventrelay/internal/common/configtypes"
	"github.com/edgecomet/eventrelay/internal/event"
	"github.com/edgecomet/eventrelay/internal/lifecycle"
)

var errNilEvent = errors.New("event is nil")

// DefaultGracePeriod bounds how long Close waits for queued events
const DefaultGracePeriod = configtypes.DefaultGracePeriod

// AsyncConnection hands events to a worker pool that sends them through the
// wrapped connection. Send never blocks on I/O; Close drains the queue for at
// most the grace period and then abandons what is left.
type AsyncConnection struct {
	wrapped        Connection
	propagateClose bool
	gracePeriod    time.Duration
	pool           Executor
	recorder       Recorder
	clock          clockwork.Clock
	logger         *zap.Logger

	deregister func()
	closeOnce  sync.Once
	closeErr   error

	// pending counts accepted events without a reported outcome. Once forced
	// is set they have been counted as abandoned and late results are ignored.
	mu      sync.Mutex
	pending int
	forced  bool
}

// AsyncOption configures an AsyncConnection at construction time
type AsyncOption func(*asyncOptions)

type asyncOptions struct {
	propagateClose bool
	gracePeriod    time.Duration
	pool           Executor
	poolConfig     PoolConfig
	registry       lifecycle.Registry
	recorder       Recorder
	clock          clockwork.Clock
}

// WithPropagateClose decides whether Close also closes the wrapped connection (default true)
func WithPropagateClose(propagate bool) AsyncOption {
	return func(o *asyncOptions) { o.propagateClose = propagate }
}

// WithGracePeriod sets how long Close waits for queued events (default 1s)
func WithGracePeriod(d time.Duration) AsyncOption {
	return func(o *asyncOptions) { o.gracePeriod = d }
}

// WithExecutor replaces the default single-worker pool. The executor is owned
// by the connection from then on.
func WithExecutor(pool Executor) AsyncOption {
	return func(o *asyncOptions) { o.pool = pool }
}

// WithPoolConfig sizes the default worker pool. Ignored when WithExecutor is used.
func WithPoolConfig(cfg PoolConfig) AsyncOption {
	return func(o *asyncOptions) { o.poolConfig = cfg }
}

// WithLifecycle registers Close as a shutdown hook so queued events are flushed on exit
func WithLifecycle(registry lifecycle.Registry) AsyncOption {
	return func(o *asyncOptions) { o.registry = registry }
}

// WithRecorder reports delivery metrics
func WithRecorder(recorder Recorder) AsyncOption {
	return func(o *asyncOptions) { o.recorder = recorder }
}

// WithClock replaces the clock used for the grace period
func WithClock(clock clockwork.Clock) AsyncOption {
	return func(o *asyncOptions) { o.clock = clock }
}

// NewAsyncConnection wraps a connection. The worker pool is fixed for the
// lifetime of the returned connection.
func NewAsyncConnection(wrapped Connection, logger *zap.Logger, opts ...AsyncOption) (*AsyncConnection, error) {
	if wrapped == nil {
		return nil, fmt.Errorf("wrapped connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	o := asyncOptions{
		propagateClose: true,
		gracePeriod:    DefaultGracePeriod,
		registry:       lifecycle.Noop{},
		recorder:       NoopRecorder{},
		clock:          clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.gracePeriod < 0 {
		return nil, fmt.Errorf("grace period must be >= 0, got %v", o.gracePeriod)
	}

	c := &AsyncConnection{
		wrapped:        wrapped,
		propagateClose: o.propagateClose,
		gracePeriod:    o.gracePeriod,
		recorder:       o.recorder,
		clock:          o.clock,
		logger:         logger,
	}

	c.pool = o.pool
	if c.pool == nil {
		c.pool = NewWorkerPool(o.poolConfig)
	}

	c.deregister = o.registry.Register("async-connection", c.Close)

	return c, nil
}

// Send queues the event and returns immediately. The delivery outcome is only
// visible in logs and metrics; Send only fails for a nil event.
func (c *AsyncConnection) Send(ev *event.Event) error {
	if ev == nil {
		return errNilEvent
	}
	unit := &submission{event: ev, conn: c}

	c.mu.Lock()
	c.pending++
	c.mu.Unlock()

	if err := c.pool.Execute(unit.run); err != nil {
		c.mu.Lock()
		c.pending--
		c.mu.Unlock()

		reason := RejectReasonShutdown
		if errors.Is(err, ErrQueueFull) {
			reason = RejectReasonQueueFull
		}
		c.recorder.RecordRejected(reason)
		c.logger.Warn("Event rejected by delivery queue",
			zap.String("event_id", ev.ID),
			zap.String("reason", reason))
		return nil
	}

	c.recorder.RecordSubmitted()
	c.recorder.SetQueueDepth(c.pool.QueueDepth())
	return nil
}

// Close shuts the connection down, see CloseContext.
func (c *AsyncConnection) Close() error {
	return c.CloseContext(context.Background())
}

// CloseContext stops accepting events and waits up to the grace period for the
// queue to drain. If the grace period elapses or ctx is cancelled first, the
// remaining events are abandoned. The wrapped connection is closed afterwards
// when close propagation is on; its failure is the only error returned.
// Later calls return the first call's error.
func (c *AsyncConnection) CloseContext(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.deregister()
		c.closeErr = c.shutdown(ctx)
	})
	return c.closeErr
}

func (c *AsyncConnection) shutdown(ctx context.Context) (err error) {
	defer func() {
		if !c.propagateClose {
			return
		}
		if closeErr := c.wrapped.Close(); closeErr != nil {
			err = &WrappedCloseError{Err: closeErr}
		}
	}()

	c.logger.Info("Gracefully shutting down event delivery workers",
		zap.Duration("grace_period", c.gracePeriod),
		zap.Int("queued", c.pool.QueueDepth()))
	c.pool.Shutdown()

	if stopErr := c.awaitTermination(ctx); stopErr != nil {
		c.mu.Lock()
		c.forced = true
		abandoned := c.pending
		c.pending = 0
		c.mu.Unlock()
		c.pool.ShutdownNow()

		if abandoned > 0 {
			var interrupted *shutdownInterruptedError
			if errors.As(stopErr, &interrupted) {
				c.logger.Error("Graceful shutdown interrupted, forcing the shutdown", zap.Error(interrupted.cause))
			} else {
				c.logger.Warn("Graceful shutdown took too much time, forcing the shutdown",
					zap.Duration("grace_period", c.gracePeriod))
			}
			c.recorder.RecordAbandoned(abandoned)
			c.logger.Info("Events failed to be delivered before the shutdown",
				zap.Int("abandoned", abandoned))
		}
	}

	c.recorder.SetQueueDepth(0)
	c.logger.Info("Event delivery shutdown finished")
	return nil
}

// awaitTermination returns nil when the pool drained in time,
// *shutdownTimeoutError on timeout or *shutdownInterruptedError when ctx ended first
func (c *AsyncConnection) awaitTermination(ctx context.Context) error {
	select {
	case <-c.pool.Done():
		return nil
	default:
	}

	timer := c.clock.NewTimer(c.gracePeriod)
	defer timer.Stop()

	select {
	case <-c.pool.Done():
		return nil
	case <-timer.Chan():
		return &shutdownTimeoutError{gracePeriod: c.gracePeriod}
	case <-ctx.Done():
		return &shutdownInterruptedError{cause: ctx.Err()}
	}
}

// report consumes the result of one submission. Failures are logged and discarded.
func (c *AsyncConnection) report(res deliveryResult) {
	c.mu.Lock()
	if c.forced {
		c.mu.Unlock()
		c.logger.Debug("Event send completed after forced shutdown", zap.String("event_id", res.eventID))
		return
	}
	c.pending--
	c.mu.Unlock()

	c.recorder.SetQueueDepth(c.pool.QueueDepth())

	switch {
	case res.evicted:
		c.recorder.RecordRejected(RejectReasonDropped)
		c.logger.Warn("Delivery queue full, dropped the oldest queued event",
			zap.String("event_id", res.eventID))
	case res.skipped:
		c.logger.Debug("Event dropped by forced shutdown", zap.String("event_id", res.eventID))
	case res.err != nil:
		c.recorder.RecordFailed(res.duration)
		c.logger.Error("An error occurred while sending the event",
			zap.String("event_id", res.eventID),
			zap.Duration("duration", res.duration),
			zap.Error(res.err))
	default:
		c.recorder.RecordDelivered(res.duration)
		c.logger.Debug("Event delivered",
			zap.String("event_id", res.eventID),
			zap.Duration("duration", res.duration))
	}
}

// submission binds one event to its delivery through the wrapped connection
type submission struct {
	event *event.Event
	conn  *AsyncConnection
}

type deliveryResult struct {
	eventID  string
	duration time.Duration
	skipped  bool
	evicted  bool
	err      error
}

func (s *submission) run(ctx context.Context) {
	s.conn.report(s.deliver(ctx))
}

func (s *submission) deliver(ctx context.Context) (res deliveryResult) {
	res.eventID = s.event.ID
	if ctx.Err() != nil {
		if errors.Is(context.Cause(ctx), ErrTaskEvicted) {
			res.evicted = true
		} else {
			res.skipped = true
		}
		return res
	}

	start := s.conn.clock.Now()
	defer func() {
		res.duration = s.conn.clock.Since(start)
		if p := recover(); p != nil {
			res.err = fmt.Errorf("panic while sending event: %v", p)
		}
	}()

	res.err = s.conn.wrapped.Send(s.event)
	return res
}

type shutdownTimeoutError struct {
	gracePeriod time.Duration
}

func (e *shutdownTimeoutError) Error() string {
	return fmt.Sprintf("graceful shutdown exceeded %v", e.gracePeriod)
}

type shutdownInterruptedError struct {
	cause error
}

func (e *shutdownInterruptedError) Error() string {
	return fmt.Sprintf("graceful shutdown interrupted: %v", e.cause)
}
