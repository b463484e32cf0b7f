// Package pipeline wires the source, fetcher, transformer, batcher and
// scheduler into one component with a Start/Stop lifecycle.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"shorturl-analytics/analytics"
	"shorturl-analytics/batcher"
	"shorturl-analytics/config"
	"shorturl-analytics/logging"
	"shorturl-analytics/models"
	"shorturl-analytics/scheduler"
	"shorturl-analytics/source"
	"shorturl-analytics/writer"

	"github.com/getsentry/sentry-go"
	"golang.org/x/sync/errgroup"
)

var (
	ErrAlreadyStarted = errors.New("pipeline: already started")
	ErrStopped        = errors.New("pipeline: stopped")
)

type Pipeline struct {
	cfg       *config.Config
	batcher   *batcher.Batcher
	scheduler *scheduler.Scheduler
	stats     *Stats

	docs     chan models.OutputDocument
	streamMu sync.RWMutex
	closed   bool

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// New validates cfg and assembles the pipeline around w. The caller keeps
// ownership of w. Configuration problems are returned as *config.ConfigError.
func New(cfg *config.Config, w writer.BulkWriter, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, &config.ConfigError{Field: "config", Reason: "missing"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if w == nil {
		return nil, &config.ConfigError{Field: "destIndex", Reason: "no writer client"}
	}

	o := options{clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	reader := o.reader
	if reader == nil {
		var err error
		if reader, err = source.New(cfg.Source, o.scroller); err != nil {
			return nil, err
		}
	}

	fetcher := o.fetcher
	if fetcher == nil {
		client, err := analytics.NewClient(cfg.Analytics)
		if err != nil {
			return nil, &config.ConfigError{Field: "analytics.endpoint", Reason: "invalid", Err: err}
		}
		fetcher = client
	}
	if o.cache != nil {
		fetcher = analytics.NewCachingFetcher(fetcher, o.cache)
	}

	p := &Pipeline{
		cfg:   cfg,
		stats: newStats(),
		docs:  make(chan models.OutputDocument, cfg.StreamBuffer),
	}

	listeners := batcher.MultiListener{
		batcher.LogListener{},
		statsListener{p.stats},
		sentryListener{hub: sentry.CurrentHub()},
	}
	listeners = append(listeners, o.listeners...)

	d := cfg.Destination
	p.batcher = batcher.New(w, batcher.Options{
		BatchSize:      d.BulkSize,
		FlushInterval:  d.FlushInterval.D(),
		MaxConcurrent:  d.MaxConcurrentBulk,
		RequestTimeout: d.RequestTimeout.D(),
	}, listeners)

	p.scheduler = scheduler.New(reader, fetcher, p.emit, scheduler.Options{
		Interval: cfg.ScanInterval.D(),
		Now:      o.clock,
		OnReport: p.stats.recordScan,
	})

	logging.AuditLogger.Printf("pipeline configured: source %s, destination %s, bulk size %d, flush interval %s, max concurrent bulk %d",
		reader.Name(), d.Kind, d.BulkSize, d.FlushInterval.D(), d.MaxConcurrentBulk)
	return p, nil
}

// emit enqueues a document for writing and offers a copy to the stream.
func (p *Pipeline) emit(doc models.OutputDocument) error {
	if err := p.batcher.Enqueue(doc); err != nil {
		p.stats.docsDropped.Add(1)
		return err
	}
	p.stats.enqueued.Add(1)

	p.streamMu.RLock()
	defer p.streamMu.RUnlock()
	if p.closed {
		return nil
	}
	select {
	case p.docs <- doc:
	default:
		p.stats.streamDrops.Add(1)
	}
	return nil
}

// Start launches the flush engine and the scan loop. The scan loop ends
// when ctx is cancelled or Stop is called.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	p.group = g

	p.batcher.Start()
	g.Go(func() error {
		err := p.scheduler.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	logging.AuditLogger.Println("pipeline started")
	return nil
}

// Stop ends scanning at the next item boundary, writes every buffered
// document, waits for in-flight bulk requests and closes the document
// stream. ctx bounds the whole drain.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	cancel, group := p.cancel, p.group
	p.mu.Unlock()

	var errs []error
	if cancel != nil {
		cancel()
		done := make(chan error, 1)
		go func() { done <- group.Wait() }()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.DeadlineExceeded) {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			errs = append(errs, ctx.Err())
		}
	}

	if err := p.batcher.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	p.streamMu.Lock()
	p.closed = true
	close(p.docs)
	p.streamMu.Unlock()

	logging.AuditLogger.Println("pipeline stopped")
	return errors.Join(errs...)
}

// Flush writes everything buffered as one bulk request and waits for it.
func (p *Pipeline) Flush(ctx context.Context) error {
	return p.batcher.Flush(ctx)
}

// Documents streams every enqueued document. Sends never block the scan: a
// consumer that falls behind misses stream copies, never writes. The channel
// is closed by Stop.
func (p *Pipeline) Documents() <-chan models.OutputDocument {
	return p.docs
}

func (p *Pipeline) Stats() Snapshot {
	snap := p.stats.snapshot()
	snap.State = p.State().String()
	snap.Buffered = p.batcher.Len()
	snap.InFlight = p.batcher.InFlight()
	return snap
}

func (p *Pipeline) State() scheduler.State {
	p.mu.Lock()
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return scheduler.Stopped
	}
	return p.scheduler.State()
}
