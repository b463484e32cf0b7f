package batcher

import (
	"shorturl-analytics/logging"
	"shorturl-analytics/models"
	"shorturl-analytics/writer"
)

// Listener observes bulk requests. Calls come from pool workers, so
// implementations must be safe for concurrent use. An empty executionID on
// AfterBulkError marks documents dropped at shutdown without a request.
type Listener interface {
	BeforeBulk(executionID string, docs []models.OutputDocument)
	AfterBulk(executionID string, docs []models.OutputDocument, resp *writer.BulkResponse)
	AfterBulkError(executionID string, docs []models.OutputDocument, err error)
}

type NopListener struct{}

func (NopListener) BeforeBulk(string, []models.OutputDocument)                      {}
func (NopListener) AfterBulk(string, []models.OutputDocument, *writer.BulkResponse) {}
func (NopListener) AfterBulkError(string, []models.OutputDocument, error)           {}

// LogListener writes bulk outcomes to the package loggers.
type LogListener struct{}

func (LogListener) BeforeBulk(id string, docs []models.OutputDocument) {
	logging.DebugLogger.Printf("bulk %s: sending %d documents", id, len(docs))
}

func (LogListener) AfterBulk(id string, docs []models.OutputDocument, resp *writer.BulkResponse) {
	if !resp.HasFailures() {
		logging.DebugLogger.Printf("bulk %s: %d documents written in %s", id, len(docs), resp.Took)
		return
	}
	failed := resp.Failed()
	logging.ErrorLogger.Printf("bulk %s: %d of %d documents failed", id, len(failed), len(resp.Items))
	if logging.DebugEnabled() {
		logging.DebugLogger.Printf("bulk %s: %s", id, resp.FailureMessage())
	}
}

func (LogListener) AfterBulkError(id string, docs []models.OutputDocument, err error) {
	if id == "" {
		logging.ErrorLogger.Printf("dropping %d unwritten documents: %v", len(docs), err)
		return
	}
	logging.ErrorLogger.Printf("bulk %s: request with %d documents failed: %v", id, len(docs), err)
}

// MultiListener fans every call out to each listener in order.
type MultiListener []Listener

func (m MultiListener) BeforeBulk(id string, docs []models.OutputDocument) {
	for _, l := range m {
		l.BeforeBulk(id, docs)
	}
}

func (m MultiListener) AfterBulk(id string, docs []models.OutputDocument, resp *writer.BulkResponse) {
	for _, l := range m {
		l.AfterBulk(id, docs, resp)
	}
}

func (m MultiListener) AfterBulkError(id string, docs []models.OutputDocument, err error) {
	for _, l := range m {
		l.AfterBulkError(id, docs, err)
	}
}
