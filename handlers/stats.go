package handlers

import (
	"context"
	"net/http"
	"time"
)

const flushTimeout = 30 * time.Second

func StatsHandler(s *Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Pipeline == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "disabled"})
			return
		}
		writeJSON(w, http.StatusOK, s.Pipeline.Stats())
	}
}

// FlushHandler writes every buffered document right away and reports how
// many were written.
func FlushHandler(s *Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Pipeline == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "disabled"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), flushTimeout)
		defer cancel()

		buffered := s.Pipeline.Stats().Buffered
		if err := s.Pipeline.Flush(ctx); err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{
				"status": "failed",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "flushed",
			"documents": buffered,
		})
	}
}
