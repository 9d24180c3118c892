package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
)

// Hook is a shutdown callback
type Hook func() error

// Registry accepts shutdown hooks. Components register at construction time and
// call the returned function when they were shut down by other means.
type Registry interface {
	Register(name string, hook Hook) (deregister func())
}

// Noop is a Registry that never runs anything
type Noop struct{}

// Register does nothing
func (Noop) Register(string, Hook) func() { return func() {} }

type registration struct {
	id   uint64
	name string
	hook Hook
}

// Hooks runs registered hooks once, newest first, when the process terminates.
// Hook failures are logged and never escalated: the process is already exiting.
type Hooks struct {
	mu     sync.Mutex
	hooks  []registration
	nextID uint64
	ran    bool
	logger *zap.Logger
}

// New creates an empty hook registry
func New(logger *zap.Logger) *Hooks {
	return &Hooks{logger: logger}
}

// Register adds a hook. Registering after Run is a no-op.
func (h *Hooks) Register(name string, hook Hook) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ran {
		h.logger.Warn("Shutdown hook registered after shutdown, ignoring", zap.String("hook", name))
		return func() {}
	}

	h.nextID++
	id := h.nextID
	h.hooks = append(h.hooks, registration{id: id, name: name, hook: hook})

	return func() { h.deregister(id) }
}

func (h *Hooks) deregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, r := range h.hooks {
		if r.id == id {
			h.hooks = append(h.hooks[:i], h.hooks[i+1:]...)
			return
		}
	}
}

// Len returns the number of pending hooks
func (h *Hooks) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hooks)
}

// Run executes every registered hook once. Later calls do nothing.
func (h *Hooks) Run() {
	h.mu.Lock()
	if h.ran {
		h.mu.Unlock()
		return
	}
	h.ran = true
	hooks := h.hooks
	h.hooks = nil
	h.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		h.runHook(hooks[i])
	}
}

func (h *Hooks) runHook(r registration) {
	defer func() {
		if p := recover(); p != nil {
			h.logger.Error("Shutdown hook panicked",
				zap.String("hook", r.name),
				zap.Any("panic", p))
		}
	}()

	h.logger.Debug("Running shutdown hook", zap.String("hook", r.name))
	if err := r.hook(); err != nil {
		h.logger.Error("An error occurred while running shutdown hook",
			zap.String("hook", r.name),
			zap.Error(err))
	}
}

// RunOnSignal blocks until one of sigs (SIGINT and SIGTERM when empty) arrives or
// ctx is done, then runs the hooks. It returns the received signal, or nil.
func (h *Hooks) RunOnSignal(ctx context.Context, sigs ...os.Signal) os.Signal {
	if len(sigs) == 0 {
		sigs = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, sigs...)
	defer signal.Stop(quit)

	var received os.Signal
	select {
	case received = <-quit:
		h.logger.Info("Received shutdown signal", zap.Stringer("signal", received))
	case <-ctx.Done():
	}

	h.Run()
	return received
}
