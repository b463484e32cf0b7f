package middlewares

import (
	"net"
	"net/http"
	"strings"
	"time"

	"shorturl-analytics/logging"
)

// LoggingMiddleware writes an audit line for every request once it has been
// served.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)

		logging.AuditLogger.Printf("Method: %s | URL: %s | Status: %d | Duration: %s | User-Agent: %s | IP: %s",
			r.Method, r.URL.String(), rec.status, time.Since(rec.start), r.UserAgent(), getIPAddress(r))
	})
}

func getIPAddress(r *http.Request) string {
	// Check X-Forwarded-For header for proxies
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
