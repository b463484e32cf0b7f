// Package scheduler drives repeated scans of the URL source through the
// fetch and transform steps into a document sink.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"shorturl-analytics/analytics"
	"shorturl-analytics/logging"
	"shorturl-analytics/models"
	"shorturl-analytics/source"
	"shorturl-analytics/transform"

	"github.com/getsentry/sentry-go"
)

type State int32

const (
	Idle State = iota
	Scanning
	Sleeping
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Sleeping:
		return "sleeping"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Sink receives every document a scan produces.
type Sink func(doc models.OutputDocument) error

// Report summarizes one scan.
type Report struct {
	Started     time.Time
	Finished    time.Time
	URLs        int
	FetchErrors int
	Skipped     int
	Emitted     int
	SinkErrors  int
	Panics      int
	// Err is the source error that ended the scan early, if any.
	Err error
}

type Options struct {
	Interval time.Duration
	// Now stamps clicksObservedAt and the scan report. Defaults to time.Now.
	Now func() time.Time
	// OnReport is called after every scan, from the scan goroutine.
	OnReport func(Report)
}

type Scheduler struct {
	reader  source.Reader
	fetcher analytics.Fetcher
	sink    Sink
	opts    Options
	state   atomic.Int32
}

func New(reader source.Reader, fetcher analytics.Fetcher, sink Sink, opts Options) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{reader: reader, fetcher: fetcher, sink: sink, opts: opts}
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Run scans, sleeps for the interval and scans again until ctx is done. The
// sleep is a timer raced against ctx, so cancellation is prompt.
func (s *Scheduler) Run(ctx context.Context) error {
	defer s.state.Store(int32(Stopped))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		report := s.Scan(ctx)
		if s.opts.OnReport != nil {
			s.opts.OnReport(report)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.state.Store(int32(Sleeping))
		logging.DebugLogger.Printf("scan finished, next scan in %s", s.opts.Interval)
		timer := time.NewTimer(s.opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Scan runs one pass over the source. URLs are processed sequentially in
// source order; a failing URL is logged and skipped. A source error ends the
// pass early and is recorded in the report.
func (s *Scheduler) Scan(ctx context.Context) Report {
	s.state.Store(int32(Scanning))
	defer func() {
		if s.State() == Scanning {
			s.state.Store(int32(Idle))
		}
	}()

	report := Report{Started: s.opts.Now()}

	cur, err := s.reader.Open(ctx)
	if err != nil {
		logging.ErrorLogger.Printf("opening %s: %v", s.reader.Name(), err)
		report.Err = err
		report.Finished = s.opts.Now()
		return report
	}
	defer cur.Close()

	for ctx.Err() == nil {
		url, err := cur.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() == nil {
				logging.ErrorLogger.Printf("reading %s: %v", s.reader.Name(), err)
				report.Err = err
			}
			break
		}
		report.URLs++
		s.process(ctx, url, &report)
	}

	logging.AuditLogger.Printf("scan of %s: %d urls, %d documents, %d skipped, %d fetch errors",
		s.reader.Name(), report.URLs, report.Emitted, report.Skipped, report.FetchErrors)
	report.Finished = s.opts.Now()
	return report
}

func (s *Scheduler) process(ctx context.Context, url string, report *Report) {
	defer func() {
		if r := recover(); r != nil {
			report.Panics++
			logging.ErrorLogger.Printf("processing %s panicked: %v", url, r)
			sentry.CurrentHub().Recover(r)
		}
	}()

	rec, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		report.FetchErrors++
		logging.ErrorLogger.Printf("skipping %s: %v", url, err)
		return
	}

	doc, ok := transform.Document(rec, s.opts.Now())
	if !ok {
		report.Skipped++
		logging.DebugLogger.Printf("skipping %s: no clicks in the last two hours", url)
		return
	}
	if err := s.sink(doc); err != nil {
		report.SinkErrors++
		logging.ErrorLogger.Printf("queueing document for %s: %v", url, err)
		return
	}
	report.Emitted++
}
