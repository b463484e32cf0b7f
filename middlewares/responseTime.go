package middlewares

import (
	"net/http"
	"time"
)

// statusRecorder remembers the status code and stamps X-Response-Time when
// the header is written.
type statusRecorder struct {
	http.ResponseWriter
	start       time.Time
	status      int
	wroteHeader bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, start: time.Now(), status: http.StatusOK}
}

func (t *statusRecorder) WriteHeader(statusCode int) {
	if !t.wroteHeader {
		t.ResponseWriter.Header().Set("X-Response-Time", time.Since(t.start).String())
		t.status = statusCode
		t.wroteHeader = true
	}
	t.ResponseWriter.WriteHeader(statusCode)
}

func (t *statusRecorder) Write(b []byte) (int, error) {
	if !t.wroteHeader {
		t.WriteHeader(http.StatusOK)
	}
	return t.ResponseWriter.Write(b)
}

func ResponseTimeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(newStatusRecorder(w), r)
	})
}
