package pipeline

import (
	"shorturl-analytics/models"
	"shorturl-analytics/writer"

	"github.com/getsentry/sentry-go"
)

// sentryListener reports failed bulk requests. Without sentry.Init the
// current hub has no client and captures are no-ops.
type sentryListener struct {
	hub *sentry.Hub
}

func (l sentryListener) BeforeBulk(string, []models.OutputDocument) {}

func (l sentryListener) AfterBulk(id string, docs []models.OutputDocument, resp *writer.BulkResponse) {
	if !resp.HasFailures() {
		return
	}
	l.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("execution_id", id)
		scope.SetContext("bulk", sentry.Context{"failed_items": len(resp.Failed()), "documents": len(docs)})
		scope.SetLevel(sentry.LevelWarning)
		l.hub.CaptureMessage(resp.FailureMessage())
	})
}

func (l sentryListener) AfterBulkError(id string, docs []models.OutputDocument, err error) {
	l.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("execution_id", id)
		scope.SetContext("bulk", sentry.Context{"documents": len(docs)})
		l.hub.CaptureException(err)
	})
}
