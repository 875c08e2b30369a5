// Package pool provides bounded worker pools and object pools.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
)

// Task represents a unit of work.
type Task func(ctx context.Context) error

// WorkerPool runs tasks on a fixed number of worker goroutines fed by a
// bounded queue. Submit never blocks: a full queue is reported as ErrPoolFull.
type WorkerPool struct {
	workers   int
	taskQueue chan Task
	ctx       context.Context
	cancel    context.CancelFunc

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	activeCount atomic.Int32

	// Metrics
	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	panicked  atomic.Int64

	panicHandler func(any)
	errorHandler func(error)
}

// WorkerPoolConfig configures the pool.
type WorkerPoolConfig struct {
	Workers      int         `json:"workers" yaml:"workers"`
	QueueSize    int         `json:"queue_size" yaml:"queue_size"`
	PanicHandler func(any)   `json:"-" yaml:"-"`
	ErrorHandler func(error) `json:"-" yaml:"-"`
}

// DefaultWorkerPoolConfig returns sensible defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:   4,
		QueueSize: 256,
	}
}

// NewWorkerPool creates a pool and starts its workers.
func NewWorkerPool(config WorkerPoolConfig) *WorkerPool {
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.QueueSize < 0 {
		config.QueueSize = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		workers:      config.Workers,
		taskQueue:    make(chan Task, config.QueueSize),
		ctx:          ctx,
		cancel:       cancel,
		panicHandler: config.PanicHandler,
		errorHandler: config.ErrorHandler,
	}

	p.wg.Add(config.Workers)
	for i := 0; i < config.Workers; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues a task without blocking.
func (p *WorkerPool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	p.submitted.Add(1)
	select {
	case p.taskQueue <- task:
		return nil
	default:
		p.rejected.Add(1)
		return ErrPoolFull
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()

	for task := range p.taskQueue {
		p.activeCount.Add(1)
		err := p.execute(task)
		p.activeCount.Add(-1)

		if err != nil {
			p.failed.Add(1)
			if p.errorHandler != nil {
				p.errorHandler(err)
			}
		} else {
			p.completed.Add(1)
		}
	}
}

func (p *WorkerPool) execute(task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.panicked.Add(1)
			if p.panicHandler != nil {
				p.panicHandler(r)
			}
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()

	return task(p.ctx)
}

// Close stops accepting tasks, drains the queue and waits for workers.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.taskQueue)
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()
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
