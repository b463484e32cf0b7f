package middlewares

import (
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
)

// SentryAlertMiddleware reports server errors to the Sentry hub that
// sentryhttp attached to the request context.
func SentryAlertMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)

		if rec.status < http.StatusInternalServerError {
			return
		}
		if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
			hub.WithScope(func(scope *sentry.Scope) {
				scope.SetTag("path", r.URL.Path)
				scope.SetTag("status", fmt.Sprint(rec.status))
				hub.CaptureMessage(fmt.Sprintf("%s %s returned %d", r.Method, r.URL.Path, rec.status))
			})
		}
	})
}
