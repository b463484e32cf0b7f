// Package batcher buffers output documents and writes them in bulk requests,
// triggered by size, by a flush interval, or explicitly.
package batcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"shorturl-analytics/models"
	"shorturl-analytics/queue"
	"shorturl-analytics/writer"

	"github.com/google/uuid"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("batcher: closed")

// Options tune the flush engine.
type Options struct {
	// BatchSize is the maximum number of documents per bulk request, and the
	// buffer size that triggers a flush.
	BatchSize int
	// FlushInterval drains whatever is buffered. Zero disables the ticker.
	FlushInterval time.Duration
	// MaxConcurrent bounds the bulk requests in flight.
	MaxConcurrent int
	// RequestTimeout bounds a single bulk request. Zero means no timeout.
	RequestTimeout time.Duration
}

// Batcher accumulates documents and hands them to a writer.BulkWriter.
type Batcher struct {
	w        writer.BulkWriter
	opts     Options
	listener Listener
	pool     *queue.Pool

	mu      sync.Mutex
	buf     []models.OutputDocument
	drain   bool
	closed  bool
	started bool

	trigger        chan struct{}
	stopCtx        context.Context
	stop           context.CancelFunc
	dispatcherDone chan struct{}
	closeOnce      sync.Once
	closeErr       error
}

// New returns a Batcher writing to w. A nil listener is allowed.
func New(w writer.BulkWriter, opts Options, listener Listener) *Batcher {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	if listener == nil {
		listener = NopListener{}
	}
	stopCtx, stop := context.WithCancel(context.Background())
	return &Batcher{
		w:              w,
		opts:           opts,
		listener:       listener,
		pool:           queue.NewPool(opts.MaxConcurrent),
		buf:            make([]models.OutputDocument, 0, opts.BatchSize),
		trigger:        make(chan struct{}, 1),
		stopCtx:        stopCtx,
		stop:           stop,
		dispatcherDone: make(chan struct{}),
	}
}

// Start launches the dispatcher and, if configured, the flush ticker.
func (b *Batcher) Start() {
	b.mu.Lock()
	if b.started || b.closed {
		b.mu.Unlock()
		return
	}
	b.started = true
	b.mu.Unlock()

	go b.dispatch()
}

func (b *Batcher) dispatch() {
	defer close(b.dispatcherDone)

	var tick <-chan time.Time
	if b.opts.FlushInterval > 0 {
		ticker := time.NewTicker(b.opts.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-b.stopCtx.Done():
			return
		case <-tick:
			b.markDrain()
			b.submitReady()
		case <-b.trigger:
			b.submitReady()
		}
	}
}

// submitReady hands flush tasks to the pool while a full batch, or a drain
// remainder, is buffered. Each submit blocks until a worker is free, and
// the next check waits until the accepted task has taken its documents.
func (b *Batcher) submitReady() {
	for b.ready() {
		took := make(chan struct{})
		err := b.pool.SubmitContext(b.stopCtx, func() {
			docs := b.take(b.opts.BatchSize)
			close(took)
			if len(docs) > 0 {
				b.execute(docs)
			}
		})
		if err != nil {
			return
		}
		<-took
	}
}

func (b *Batcher) ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) == 0 {
		b.drain = false
		return false
	}
	return len(b.buf) >= b.opts.BatchSize || b.drain
}

func (b *Batcher) markDrain() {
	b.mu.Lock()
	b.drain = len(b.buf) > 0
	b.mu.Unlock()
}

// take removes up to n documents from the head of the buffer; n <= 0 takes
// everything.
func (b *Batcher) take(n int) []models.OutputDocument {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n <= 0 || n > len(b.buf) {
		n = len(b.buf)
	}
	if n == 0 {
		b.drain = false
		return nil
	}
	docs := make([]models.OutputDocument, n)
	copy(docs, b.buf[:n])
	rest := copy(b.buf, b.buf[n:])
	for i := rest; i < len(b.buf); i++ {
		b.buf[i] = models.OutputDocument{}
	}
	b.buf = b.buf[:rest]
	if rest == 0 {
		b.drain = false
	}
	return docs
}

func (b *Batcher) signal() {
	select {
	case b.trigger <- struct{}{}:
	default:
	}
}

// execute runs one bulk request and reports it to the listener.
func (b *Batcher) execute(docs []models.OutputDocument) (err error) {
	id := uuid.NewString()
	b.listener.BeforeBulk(id, docs)

	// A writer panic fails this request only; the documents are reported
	// as failed like any transport error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("bulk request panicked: %v", r)
			b.listener.AfterBulkError(id, docs, err)
		}
	}()

	ctx := context.Background()
	if b.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.opts.RequestTimeout)
		defer cancel()
	}
	resp, err := b.w.Bulk(ctx, docs)
	if err != nil {
		b.listener.AfterBulkError(id, docs, err)
		return err
	}
	if resp == nil {
		resp = &writer.BulkResponse{}
	}
	b.listener.AfterBulk(id, docs, resp)
	return nil
}

// Enqueue buffers doc. It never blocks on I/O; reaching BatchSize wakes the
// dispatcher.
func (b *Batcher) Enqueue(doc models.OutputDocument) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.buf = append(b.buf, doc)
	full := len(b.buf) >= b.opts.BatchSize
	b.mu.Unlock()

	if full {
		b.signal()
	}
	return nil
}

// Tick drains the buffer as if the flush interval had elapsed.
func (b *Batcher) Tick() {
	b.markDrain()
	b.signal()
}

// Flush writes every buffered document as one bulk request and waits for
// it. It returns the transport error of that request, if any.
func (b *Batcher) Flush(ctx context.Context) error {
	docs := b.take(0)
	if len(docs) == 0 {
		return nil
	}
	done := make(chan error, 1)
	err := b.pool.SubmitContext(ctx, func() { done <- b.execute(docs) })
	if err != nil {
		b.requeue(docs)
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// requeue puts docs back at the head of the buffer.
func (b *Batcher) requeue(docs []models.OutputDocument) {
	b.mu.Lock()
	b.buf = append(docs, b.buf...)
	b.mu.Unlock()
}

// Close rejects further documents, writes what is buffered in BatchSize
// chunks and waits for every in-flight request. When ctx ends first the
// unwritten documents are reported to the listener as dropped.
func (b *Batcher) Close(ctx context.Context) error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		started := b.started
		b.mu.Unlock()

		b.stop()
		if started {
			<-b.dispatcherDone
		}

		for {
			docs := b.take(b.opts.BatchSize)
			if len(docs) == 0 {
				break
			}
			err := b.pool.SubmitContext(ctx, func() { b.execute(docs) })
			if err != nil {
				dropped := append(docs, b.take(0)...)
				b.listener.AfterBulkError("", dropped, err)
				b.closeErr = err
				break
			}
		}

		finished := make(chan struct{})
		go func() {
			b.pool.Close()
			close(finished)
		}()
		select {
		case <-finished:
		case <-ctx.Done():
			if b.closeErr == nil {
				b.closeErr = ctx.Err()
			}
		}
	})
	return b.closeErr
}

// Len is the number of buffered documents.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// InFlight is the number of bulk requests currently executing.
func (b *Batcher) InFlight() int {
	return b.pool.Active()
}
