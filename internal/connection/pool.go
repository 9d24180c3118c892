package connection

import (
	"context"
	"errors"
	"sync"

	"github.com/edgecomet/eventrelay/internal/common/configtypes"
)

var (
	// ErrPoolShutdown is returned by Execute once Shutdown was requested
	ErrPoolShutdown = errors.New("worker pool is shut down")
	// ErrQueueFull is returned by Execute when a bounded queue rejects a task
	ErrQueueFull = errors.New("worker pool queue is full")
	// ErrTaskEvicted is the context cause seen by a task evicted by drop_oldest
	ErrTaskEvicted = errors.New("task evicted from a full queue")
)

// Task is one unit of work. ctx is cancelled when the pool is forcibly terminated.
// A task evicted by drop_oldest is invoked once with a context already cancelled
// with cause ErrTaskEvicted, so it can report itself as dropped.
type Task func(ctx context.Context)

// Executor runs tasks on background workers.
type Executor interface {
	// Execute queues a task. It never blocks on task execution.
	Execute(task Task) error
	// Shutdown stops accepting tasks. Queued tasks still run.
	Shutdown()
	// Done is closed once every worker has exited.
	Done() <-chan struct{}
	// ShutdownNow discards queued tasks, cancels running ones and returns how
	// many were abandoned (queued plus in flight).
	ShutdownNow() int
	// QueueDepth returns the number of queued tasks not yet started.
	QueueDepth() int
}

type poolState int

const (
	poolRunning poolState = iota
	poolDraining
	poolTerminated
)

// PoolConfig sizes a WorkerPool
type PoolConfig struct {
	Workers      int    // default 1
	QueueSize    int    // 0 = unbounded
	RejectPolicy string // configtypes.RejectPolicyAbort (default) or RejectPolicyDropOldest
}

// WorkerPool is an Executor with a fixed number of workers draining one FIFO queue.
// With a single worker tasks run in submission order.
type WorkerPool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []Task
	state    poolState
	inFlight int
	dropped  int

	queueSize  int
	dropOldest bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
}

// NewWorkerPool starts the workers
func NewWorkerPool(cfg PoolConfig) *WorkerPool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		queueSize:  cfg.QueueSize,
		dropOldest: cfg.RejectPolicy == configtypes.RejectPolicyDropOldest,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	p.cond = sync.NewCond(&p.mu)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}

	go func() {
		p.wg.Wait()
		close(p.done)
	}()

	return p
}

// Execute queues task. With a full bounded queue the reject policy decides
// whether the new task (ErrQueueFull) or the oldest queued one is dropped.
func (p *WorkerPool) Execute(task Task) error {
	p.mu.Lock()

	if p.state != poolRunning {
		p.mu.Unlock()
		return ErrPoolShutdown
	}

	var evicted Task
	if p.queueSize > 0 && len(p.queue) >= p.queueSize {
		if !p.dropOldest {
			p.mu.Unlock()
			return ErrQueueFull
		}
		evicted = p.queue[0]
		p.queue[0] = nil
		p.queue = p.queue[1:]
		p.dropped++
	}

	p.queue = append(p.queue, task)
	p.cond.Signal()
	p.mu.Unlock()

	if evicted != nil {
		ctx, cancel := context.WithCancelCause(context.Background())
		cancel(ErrTaskEvicted)
		evicted(ctx)
	}
	return nil
}

// Shutdown stops accepting new tasks; workers exit when the queue is empty
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == poolRunning {
		p.state = poolDraining
		p.cond.Broadcast()
	}
}

// ShutdownNow terminates the pool. Tasks already running keep their goroutine
// until they return but see a cancelled context; nobody waits for them.
func (p *WorkerPool) ShutdownNow() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == poolTerminated {
		return 0
	}
	p.state = poolTerminated

	abandoned := len(p.queue) + p.inFlight
	p.queue = nil
	p.cancel()
	p.cond.Broadcast()
	return abandoned
}

// Done is closed when all workers have exited
func (p *WorkerPool) Done() <-chan struct{} {
	return p.done
}

// QueueDepth returns the number of tasks waiting for a worker
func (p *WorkerPool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Dropped returns how many queued tasks were evicted by the drop_oldest policy
func (p *WorkerPool) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for {
		task, ok := p.next()
		if !ok {
			return
		}

		task(p.ctx)

		p.mu.Lock()
		p.inFlight--
		p.mu.Unlock()
	}
}

// next blocks until a task is available or the pool stops handing out work
func (p *WorkerPool) next() (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 && p.state == poolRunning {
		p.cond.Wait()
	}

	if p.state == poolTerminated || len(p.queue) == 0 {
		return nil, false
	}

	task := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	p.inFlight++
	return task, true
}
