package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolProcessesTasks(t *testing.T) {
	p := NewPool(2)

	var processed atomic.Int32
	for i := 0; i < 5; i++ {
		if err := p.Submit(func() { processed.Add(1) }); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	p.Close()

	if got := processed.Load(); got != 5 {
		t.Errorf("processed = %d, want 5", got)
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	const size = 3
	p := NewPool(size)

	var mu sync.Mutex
	running, peak := 0, 0
	for i := 0; i < 12; i++ {
		p.Submit(func() {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
		})
	}
	p.Close()

	if peak > size {
		t.Errorf("peak concurrency = %d, want <= %d", peak, size)
	}
	if p.Active() != 0 {
		t.Errorf("Active() = %d after Close", p.Active())
	}
}

func TestSubmitContextWhileBusy(t *testing.T) {
	p := NewPool(1)
	defer p.Close()

	release := make(chan struct{})
	p.Submit(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.SubmitContext(ctx, func() {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("SubmitContext = %v, want deadline exceeded", err)
	}
	close(release)
}

func TestSubmitAfterClose(t *testing.T) {
	p := NewPool(1)
	p.Close()
	if err := p.Submit(func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit after Close = %v, want ErrPoolClosed", err)
	}
}

func TestPanickingTaskKeepsWorkerAlive(t *testing.T) {
	p := NewPool(1)

	var processed atomic.Int32
	p.Submit(func() { panic("bulk writer bug") })
	p.Submit(func() { processed.Add(1) })
	p.Close()

	if processed.Load() != 1 {
		t.Error("the worker stopped after a panicking task")
	}
	if p.Active() != 0 {
		t.Errorf("Active() = %d after Close", p.Active())
	}
}
