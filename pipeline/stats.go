package pipeline

import (
	"sync/atomic"
	"time"

	"shorturl-analytics/models"
	"shorturl-analytics/scheduler"
	"shorturl-analytics/writer"
)

// Stats counts pipeline activity with atomic counters.
type Stats struct {
	scans         atomic.Int64
	urlsRead      atomic.Int64
	fetchFailures atomic.Int64
	skipped       atomic.Int64
	enqueued      atomic.Int64
	bulkRequests  atomic.Int64
	bulkFailures  atomic.Int64
	itemsWritten  atomic.Int64
	itemsFailed   atomic.Int64
	docsDropped   atomic.Int64
	streamDrops   atomic.Int64
	lastScan      atomic.Int64

	startTime time.Time
}

func newStats() *Stats {
	return &Stats{startTime: time.Now()}
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	State         string    `json:"state"`
	Scans         int64     `json:"scans"`
	LastScanAt    time.Time `json:"last_scan_at,omitempty"`
	URLsRead      int64     `json:"urls_read"`
	FetchFailures int64     `json:"fetch_failures"`
	Skipped       int64     `json:"skipped"`
	Enqueued      int64     `json:"enqueued"`
	Buffered      int       `json:"buffered"`
	InFlight      int       `json:"in_flight"`
	BulkRequests  int64     `json:"bulk_requests"`
	BulkFailures  int64     `json:"bulk_failures"`
	ItemsWritten  int64     `json:"items_written"`
	ItemsFailed   int64     `json:"items_failed"`
	DocsDropped   int64     `json:"docs_dropped"`
	StreamDrops   int64     `json:"stream_drops"`
	Uptime        string    `json:"uptime"`
}

func (s *Stats) snapshot() Snapshot {
	snap := Snapshot{
		Scans:         s.scans.Load(),
		URLsRead:      s.urlsRead.Load(),
		FetchFailures: s.fetchFailures.Load(),
		Skipped:       s.skipped.Load(),
		Enqueued:      s.enqueued.Load(),
		BulkRequests:  s.bulkRequests.Load(),
		BulkFailures:  s.bulkFailures.Load(),
		ItemsWritten:  s.itemsWritten.Load(),
		ItemsFailed:   s.itemsFailed.Load(),
		DocsDropped:   s.docsDropped.Load(),
		StreamDrops:   s.streamDrops.Load(),
		Uptime:        time.Since(s.startTime).Round(time.Second).String(),
	}
	if ts := s.lastScan.Load(); ts != 0 {
		snap.LastScanAt = time.Unix(0, ts).UTC()
	}
	return snap
}

func (s *Stats) recordScan(r scheduler.Report) {
	s.scans.Add(1)
	s.urlsRead.Add(int64(r.URLs))
	s.fetchFailures.Add(int64(r.FetchErrors + r.Panics))
	s.skipped.Add(int64(r.Skipped))
	s.lastScan.Store(r.Finished.UnixNano())
}

// statsListener feeds bulk outcomes into Stats.
type statsListener struct{ s *Stats }

func (l statsListener) BeforeBulk(id string, docs []models.OutputDocument) {
	l.s.bulkRequests.Add(1)
}

func (l statsListener) AfterBulk(id string, docs []models.OutputDocument, resp *writer.BulkResponse) {
	failed := int64(len(resp.Failed()))
	l.s.itemsFailed.Add(failed)
	l.s.itemsWritten.Add(int64(len(resp.Items)) - failed)
}

func (l statsListener) AfterBulkError(id string, docs []models.OutputDocument, err error) {
	if id != "" {
		l.s.bulkFailures.Add(1)
	}
	l.s.docsDropped.Add(int64(len(docs)))
}
