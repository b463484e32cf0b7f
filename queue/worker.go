// Package queue runs tasks on a fixed set of worker goroutines.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"shorturl-analytics/logging"
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("queue: pool closed")

// Pool processes tasks on size workers. Tasks are handed over on an
// unbuffered channel, so Submit blocks until a worker is free: at most size
// tasks ever run at once.
type Pool struct {
	tasks   chan func()
	done    chan struct{}
	workers sync.WaitGroup
	pending sync.WaitGroup
	active  atomic.Int64
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
}

// NewPool starts size workers. A size below 1 is treated as 1.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{
		tasks: make(chan func()),
		done:  make(chan struct{}),
	}
	p.workers.Add(size)
	for i := 0; i < size; i++ {
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.workers.Done()
	for {
		select {
		case task := <-p.tasks:
			p.run(task)
		case <-p.done:
			return
		}
	}
}

// run executes one task. A panicking task is logged and does not take the
// worker down.
func (p *Pool) run(task func()) {
	p.active.Add(1)
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorLogger.Printf("queue: task panicked: %v", r)
		}
		p.active.Add(-1)
		p.pending.Done()
	}()
	task()
}

// Submit blocks until a worker accepts task.
func (p *Pool) Submit(task func()) error {
	return p.SubmitContext(context.Background(), task)
}

// SubmitContext is Submit bounded by ctx. The task is not run when ctx ends
// first.
func (p *Pool) SubmitContext(ctx context.Context, task func()) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	p.pending.Add(1)
	p.mu.RUnlock()

	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		p.pending.Done()
		return ctx.Err()
	case <-p.done:
		p.pending.Done()
		return ErrPoolClosed
	}
}

// Active is the number of tasks currently running.
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Close rejects new tasks, waits for accepted ones and stops the workers.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		p.pending.Wait()
		close(p.done)
		p.workers.Wait()
	})
}
