package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"shorturl-analytics/cache"
	"shorturl-analytics/config"
	"shorturl-analytics/models"
	"shorturl-analytics/scheduler"
	"shorturl-analytics/writer"
)

type memWriter struct {
	mu   sync.Mutex
	docs []models.OutputDocument
	reqs int
	fail bool
}

func (m *memWriter) Bulk(ctx context.Context, docs []models.OutputDocument) (*writer.BulkResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reqs++
	if m.fail {
		return nil, errors.New("no route to host")
	}
	m.docs = append(m.docs, docs...)
	resp := &writer.BulkResponse{}
	for _, d := range docs {
		resp.Items = append(resp.Items, writer.BulkItem{ID: d.ID, Status: 201})
	}
	return resp, nil
}

func (m *memWriter) Close() error { return nil }

func (m *memWriter) written() []models.OutputDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OutputDocument(nil), m.docs...)
}

type countingFetcher struct {
	mu    sync.Mutex
	calls map[string]int
}

func (f *countingFetcher) Fetch(ctx context.Context, url string) (models.AnalyticsRecord, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[url]++
	f.mu.Unlock()
	if url == "http://goo.gl/idle" {
		return models.AnalyticsRecord{ID: url, Status: "OK"}, nil
	}
	return models.AnalyticsRecord{ID: url, Status: "OK", TotalClicksLast2h: 7}, nil
}

func testConfig(t *testing.T, urls string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "urls.txt")
	if err := os.WriteFile(path, []byte(urls), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Defaults()
	cfg.Source.FilePath = path
	cfg.Destination.BulkSize = 2
	cfg.Destination.FlushInterval = config.Duration(time.Hour)
	cfg.ScanInterval = config.Duration(time.Hour)
	return cfg
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestPipelineScanWriteAndStop(t *testing.T) {
	cfg := testConfig(t, "goo.gl/a\ngoo.gl/idle\ngoo.gl/b\ngoo.gl/c\n")
	w := &memWriter{}
	observed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	p, err := New(cfg, w, WithFetcher(&countingFetcher{}), WithClock(func() time.Time { return observed }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start = %v", err)
	}
	waitFor(t, "the first scan", func() bool { return p.Stats().Scans == 1 })

	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	got := w.written()
	if len(got) != 3 {
		t.Fatalf("written = %d documents, want 3", len(got))
	}
	for _, d := range got {
		if d.AllClicks != 7 || !d.ClicksObservedAt.Equal(observed) {
			t.Errorf("doc = %+v", d)
		}
	}

	var streamed []string
	for d := range p.Documents() {
		streamed = append(streamed, d.ID)
	}
	if len(streamed) != 3 || streamed[0] != "http://goo.gl/a" {
		t.Errorf("streamed = %v", streamed)
	}

	snap := p.Stats()
	if snap.URLsRead != 4 || snap.Skipped != 1 || snap.Enqueued != 3 || snap.ItemsWritten != 3 || snap.BulkRequests != 2 {
		t.Errorf("stats = %+v", snap)
	}
	if p.State() != scheduler.Stopped || snap.State != "stopped" {
		t.Errorf("state = %s", p.State())
	}
	if err := p.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Errorf("Start after Stop = %v", err)
	}
}

func TestPipelineFlush(t *testing.T) {
	cfg := testConfig(t, "goo.gl/only\n")
	cfg.Destination.BulkSize = 100
	w := &memWriter{}
	p, err := New(cfg, w, WithFetcher(&countingFetcher{}))
	if err != nil {
		t.Fatal(err)
	}
	p.Start(context.Background())
	defer p.Stop(context.Background())

	waitFor(t, "the document", func() bool { return p.Stats().Buffered == 1 })
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if n := len(w.written()); n != 1 {
		t.Errorf("written = %d, want 1", n)
	}
}

func TestPipelineTransportFailureIsCounted(t *testing.T) {
	cfg := testConfig(t, "goo.gl/a\ngoo.gl/b\n")
	w := &memWriter{fail: true}
	p, err := New(cfg, w, WithFetcher(&countingFetcher{}))
	if err != nil {
		t.Fatal(err)
	}
	p.Start(context.Background())
	waitFor(t, "the failed request", func() bool { return p.Stats().BulkFailures == 1 })
	p.Stop(context.Background())

	snap := p.Stats()
	if snap.DocsDropped != 2 || snap.ItemsWritten != 0 {
		t.Errorf("stats = %+v", snap)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.reqs != 1 {
		t.Errorf("requests = %d, failed batches must not be retried", w.reqs)
	}
}

func TestPipelineCacheDedupesFetches(t *testing.T) {
	cfg := testConfig(t, "goo.gl/a\ngoo.gl/a\ngoo.gl/b\n")
	c, err := cache.NewBigCacheStore(time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	f := &countingFetcher{}
	p, err := New(cfg, &memWriter{}, WithFetcher(f), WithCache(c))
	if err != nil {
		t.Fatal(err)
	}
	p.Start(context.Background())
	waitFor(t, "the scan", func() bool { return p.Stats().Scans == 1 })
	p.Stop(context.Background())

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls["http://goo.gl/a"] != 1 {
		t.Errorf("fetches of a = %d, want 1", f.calls["http://goo.gl/a"])
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	cfg := config.Defaults()
	_, err := New(cfg, &memWriter{})
	var cfgErr *config.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Field != "source.filePath" {
		t.Fatalf("New = %v, want source.filePath ConfigError", err)
	}

	cfg.Source.FilePath = filepath.Join(t.TempDir(), "missing.txt")
	if _, err := New(cfg, &memWriter{}); !errors.As(err, &cfgErr) {
		t.Errorf("missing file: %v", err)
	}

	if _, err := New(testConfig(t, "a\n"), nil); !errors.As(err, &cfgErr) {
		t.Errorf("nil writer: %v", err)
	}
}

func TestStopWithoutStart(t *testing.T) {
	p, err := New(testConfig(t, "a\n"), &memWriter{}, WithFetcher(&countingFetcher{}))
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if _, ok := <-p.Documents(); ok {
		t.Error("stream should be closed")
	}
}
