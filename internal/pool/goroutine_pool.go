// Package pool provides the background decode executor and buffer pooling.
package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
)

// Task represents a unit of background work.
type Task func(ctx context.Context) error

// WorkerPool runs tasks on a fixed set of worker goroutines fed from a
// bounded queue. Submit never blocks: a full queue is reported as ErrPoolFull.
type WorkerPool struct {
	workers     int
	taskQueue   chan taskWrapper
	activeCount atomic.Int32
	wg          sync.WaitGroup

	// closeMu guards taskQueue against a send racing Close.
	closeMu sync.RWMutex
	closed  bool

	// Metrics
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	panicked  atomic.Int64

	panicHandler func(any)
}

type taskWrapper struct {
	task Task
	ctx  context.Context
}

// WorkerPoolConfig configures the pool.
type WorkerPoolConfig struct {
	Workers      int       `json:"workers" yaml:"workers"`
	QueueSize    int       `json:"queue_size" yaml:"queue_size"`
	PanicHandler func(any) `json:"-" yaml:"-"`
}

// DefaultWorkerPoolConfig sizes the pool to the machine.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:   runtime.NumCPU(),
		QueueSize: 256,
	}
}

// NewWorkerPool creates a pool and starts its workers.
func NewWorkerPool(config WorkerPoolConfig) *WorkerPool {
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.QueueSize < 0 {
		config.QueueSize = 0
	}
	p := &WorkerPool{
		workers:      config.Workers,
		taskQueue:    make(chan taskWrapper, config.QueueSize),
		panicHandler: config.PanicHandler,
	}
	p.wg.Add(config.Workers)
	for i := 0; i < config.Workers; i++ {
		go p.worker()
	}
	return p
}

// Workers returns the number of worker goroutines.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// Submit queues a task. It returns ErrPoolClosed after Close and
// ErrPoolFull when the queue has no room.
func (p *WorkerPool) Submit(ctx context.Context, task Task) error {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	p.submitted.Add(1)

	select {
	case p.taskQueue <- taskWrapper{task: task, ctx: ctx}:
		return nil
	default:
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for wrapper := range p.taskQueue {
		p.activeCount.Add(1)
		err := p.executeTask(wrapper)
		p.activeCount.Add(-1)

		if err != nil {
			p.failed.Add(1)
		} else {
			p.completed.Add(1)
		}
	}
}

func (p *WorkerPool) executeTask(wrapper taskWrapper) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			if p.panicHandler != nil {
				p.panicHandler(r)
			}
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	return wrapper.task(wrapper.ctx)
}

// Close stops accepting tasks, runs everything already queued and waits for
// the workers to exit.
func (p *WorkerPool) Close() {
	p.closeMu.Lock()
	if p.closed {
		p.closeMu.Unlock()
		return
	}
	p.closed = true
	close(p.taskQueue)
	p.closeMu.Unlock()

	p.wg.Wait()
}

// Stats returns pool statistics.
func (p *WorkerPool) Stats() WorkerPoolStats {
	return WorkerPoolStats{
		Workers:   p.workers,
		Active:    int(p.activeCount.Load()),
		Queued:    len(p.taskQueue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
		Panicked:  p.panicked.Load(),
	}
}

// WorkerPoolStats contains pool statistics.
type WorkerPoolStats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
	Panicked  int64 `json:"panicked"`
}
