package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"shorturl-analytics/pipeline"
	"shorturl-analytics/scheduler"
)

// Pipeline is the part of *pipeline.Pipeline the status routes use.
type Pipeline interface {
	State() scheduler.State
	Stats() pipeline.Snapshot
	Flush(ctx context.Context) error
}

// Check pings one dependency of the pipeline.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Status is what the status routes report on. A nil Pipeline with a
// Disabled error means the configuration was rejected at startup.
type Status struct {
	Pipeline Pipeline
	Disabled error
	Checks   []Check
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func HealthHandler(s *Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Pipeline == nil {
			response := map[string]interface{}{
				"status":  "disabled",
				"message": "Pipeline disabled by configuration",
			}
			if s.Disabled != nil {
				response["error"] = s.Disabled.Error()
			}
			writeJSON(w, http.StatusServiceUnavailable, response)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for _, c := range s.Checks {
			if err := c.Ping(ctx); err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
					"status":  "unhealthy",
					"message": c.Name + " connectivity failed",
					"error":   err.Error(),
					"state":   s.Pipeline.State().String(),
				})
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "healthy",
			"message": "Pipeline and destination are up and running",
			"state":   s.Pipeline.State().String(),
		})
	}
}
