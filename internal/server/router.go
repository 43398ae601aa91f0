package server

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/steelmarket-systems/gsocc/internal/handlers"
	"github.com/steelmarket-systems/gsocc/internal/middleware"
)

// NewRouter constructs a ServeMux with the GSOCC API routes registered.
func NewRouter(h *handlers.Handler) http.Handler {
	mux := http.NewServeMux()

	// Health check and metrics
	mux.HandleFunc("/healthz", h.HealthCheck)
	mux.Handle("/metrics", promhttp.Handler())

	// Event ingestion
	mux.HandleFunc("/api/v1/events", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			h.IngestEvent(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Incidents API
	mux.HandleFunc("/api/v1/incidents", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			h.ListIncidents(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/incidents/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		path := r.URL.Path
		// GET /api/v1/incidents/:id/evidence/verify
		if strings.HasSuffix(path, "/evidence/verify") {
			h.VerifyEvidence(w, r)
			// GET /api/v1/incidents/:id/evidence
		} else if strings.HasSuffix(path, "/evidence") {
			h.ListEvidence(w, r)
			// GET /api/v1/incidents/:id
		} else {
			h.GetIncident(w, r)
		}
	})

	// Rules API
	mux.HandleFunc("/api/v1/rules", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			h.ListRules(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	return middleware.RequestID(mux)
}
