package scheduler

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"shorturl-analytics/models"
	"shorturl-analytics/source"
)

type fakeFetcher struct {
	mu      sync.Mutex
	records map[string]models.AnalyticsRecord
	errs    map[string]error
	panics  map[string]bool
	calls   []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (models.AnalyticsRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	if f.panics[url] {
		panic("unexpected response shape")
	}
	if err := f.errs[url]; err != nil {
		return models.AnalyticsRecord{}, err
	}
	return f.records[url], nil
}

type collector struct {
	mu   sync.Mutex
	docs []models.OutputDocument
}

func (c *collector) sink(doc models.OutputDocument) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = append(c.docs, doc)
	return nil
}

func fileSource(t *testing.T, lines string) source.Reader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "urls.txt")
	if err := os.WriteFile(path, []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := source.NewFileSource(path)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestScanEmitsOnlyActiveURLs(t *testing.T) {
	observed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	f := &fakeFetcher{records: map[string]models.AnalyticsRecord{
		"http://bit.ly/abc": {ID: "http://bit.ly/abc", Status: "OK", TotalClicksLast2h: 5,
			Countries: []models.Breakdown{{Count: 5, ID: "DE"}}},
		"http://bit.ly/def": {ID: "http://bit.ly/def", Status: "OK", TotalClicksLast2h: 0},
	}}
	c := &collector{}
	s := New(fileSource(t, "bit.ly/abc\nhttp://bit.ly/def\n"), f, c.sink, Options{
		Interval: time.Hour,
		Now:      func() time.Time { return observed },
	})

	report := s.Scan(context.Background())

	if report.URLs != 2 || report.Emitted != 1 || report.Skipped != 1 || report.Err != nil {
		t.Errorf("report = %+v", report)
	}
	if !report.Started.Equal(observed) || !report.Finished.Equal(observed) {
		t.Errorf("report times = %v..%v, want the injected clock", report.Started, report.Finished)
	}
	if len(c.docs) != 1 {
		t.Fatalf("docs = %+v", c.docs)
	}
	d := c.docs[0]
	if d.ID != "http://bit.ly/abc" || d.AllClicks != 5 || !d.ClicksObservedAt.Equal(observed) {
		t.Errorf("doc = %+v", d)
	}
	if d.Referrers == nil || len(d.Countries) != 1 {
		t.Errorf("breakdowns = %+v", d)
	}
	if s.State() != Idle {
		t.Errorf("state after Scan = %s", s.State())
	}
}

func TestScanContinuesAfterFailures(t *testing.T) {
	rec := func(id string) models.AnalyticsRecord {
		return models.AnalyticsRecord{ID: id, TotalClicksLast2h: 1}
	}
	f := &fakeFetcher{
		records: map[string]models.AnalyticsRecord{
			"http://a": rec("http://a"),
			"http://d": rec("http://d"),
		},
		errs:   map[string]error{"http://b": errors.New("503 from analytics")},
		panics: map[string]bool{"http://c": true},
	}
	c := &collector{}
	s := New(fileSource(t, "a\nb\nc\nd\n"), f, c.sink, Options{Interval: time.Hour})

	report := s.Scan(context.Background())
	if report.FetchErrors != 1 || report.Panics != 1 || report.Emitted != 2 {
		t.Errorf("report = %+v", report)
	}
	if len(c.docs) != 2 || c.docs[0].ID != "http://a" || c.docs[1].ID != "http://d" {
		t.Errorf("docs = %+v", c.docs)
	}
}

type brokenReader struct{ openErr, nextErr error }

func (b brokenReader) Name() string { return "broken" }

func (b brokenReader) Open(ctx context.Context) (source.Cursor, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	return &brokenCursor{err: b.nextErr}, nil
}

type brokenCursor struct {
	err   error
	calls int
}

func (c *brokenCursor) Next(ctx context.Context) (string, error) {
	c.calls++
	if c.calls == 1 {
		return "http://first", nil
	}
	if c.err != nil {
		return "", c.err
	}
	return "", io.EOF
}

func (c *brokenCursor) Close() error { return nil }

func TestSourceErrorEndsScan(t *testing.T) {
	f := &fakeFetcher{records: map[string]models.AnalyticsRecord{
		"http://first": {ID: "http://first", TotalClicksLast2h: 3},
	}}
	c := &collector{}

	readErr := &source.SourceError{Source: "broken", Err: errors.New("index unreachable")}
	report := New(brokenReader{nextErr: readErr}, f, c.sink, Options{}).Scan(context.Background())
	if !errors.Is(report.Err, readErr) || report.URLs != 1 || len(c.docs) != 1 {
		t.Errorf("report = %+v docs = %d", report, len(c.docs))
	}

	report = New(brokenReader{openErr: readErr}, f, c.sink, Options{}).Scan(context.Background())
	if report.Err == nil || report.URLs != 0 {
		t.Errorf("open failure report = %+v", report)
	}
}

func TestRunStopsPromptlyWhileSleeping(t *testing.T) {
	f := &fakeFetcher{}
	reports := make(chan Report, 4)
	s := New(fileSource(t, "a\n"), f, (&collector{}).sink, Options{
		Interval: time.Hour,
		OnReport: func(r Report) { reports <- r },
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-reports:
	case <-time.After(2 * time.Second):
		t.Fatal("first scan never finished")
	}
	deadline := time.Now().Add(time.Second)
	for s.State() != Sleeping && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s.State() != Sleeping {
		t.Fatalf("state = %s, want sleeping", s.State())
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if s.State() != Stopped {
		t.Errorf("state = %s, want stopped", s.State())
	}
}

func TestRunRepeatsScans(t *testing.T) {
	f := &fakeFetcher{}
	reports := make(chan Report, 8)
	s := New(fileSource(t, "a\n"), f, (&collector{}).sink, Options{
		Interval: 5 * time.Millisecond,
		OnReport: func(r Report) {
			select {
			case reports <- r:
			default:
			}
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	for i := 0; i < 3; i++ {
		select {
		case <-reports:
		case <-time.After(2 * time.Second):
			t.Fatalf("only %d scans ran", i)
		}
	}
}
