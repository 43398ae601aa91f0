package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/steelmarket-systems/gsocc/internal/audit"
	"github.com/steelmarket-systems/gsocc/internal/httputil"
	"github.com/steelmarket-systems/gsocc/internal/ingestion"
	"github.com/steelmarket-systems/gsocc/internal/logging"
	"github.com/steelmarket-systems/gsocc/internal/models"
	"github.com/steelmarket-systems/gsocc/internal/repository"
)

// Handler exposes the pipeline over HTTP: event ingestion for the
// surrounding application, and read endpoints for operators.
type Handler struct {
	ingest *ingestion.Service
	repo   repository.Repository
	signer *audit.EvidenceSigner
	logger *logging.Logger
}

func NewHandler(ingest *ingestion.Service, repo repository.Repository, signer *audit.EvidenceSigner, logger *logging.Logger) *Handler {
	return &Handler{
		ingest: ingest,
		repo:   repo,
		signer: signer,
		logger: logger,
	}
}

// HealthCheck responds to liveness probes.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// IngestEvent accepts a security event from the surrounding application.
// A degraded pipeline still returns 202: ingestion never fails the
// triggering request.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if !req.EventType.Valid() {
		httputil.WriteError(w, http.StatusBadRequest, "unknown event_type")
		return
	}
	if !req.Severity.Valid() {
		httputil.WriteError(w, http.StatusBadRequest, "unknown severity")
		return
	}

	event := h.ingest.Ingest(r.Context(), &req)
	if event == nil {
		httputil.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
			"status":    "accepted",
			"persisted": false,
		})
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, event)
}

// ListIncidents returns a paginated incident listing.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	req := &models.ListIncidentsRequest{
		Page:     parseIntParam(r, "page", 1),
		Limit:    parseIntParam(r, "limit", 20),
		Status:   models.IncidentStatus(r.URL.Query().Get("status")),
		Severity: models.Severity(r.URL.Query().Get("severity")),
	}
	if req.Limit > 100 {
		req.Limit = 100
	}

	incidents, total, err := h.repo.ListIncidents(r.Context(), req)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list incidents", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list incidents")
		return
	}

	totalPages := 0
	if req.Limit > 0 {
		totalPages = (total + req.Limit - 1) / req.Limit
	}

	httputil.WriteJSON(w, http.StatusOK, &models.ListIncidentsResponse{
		Incidents: incidents,
		Pagination: models.Pagination{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}

// GetIncident returns a single incident.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	id := incidentIDFromPath(r.URL.Path)
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "missing incident id")
		return
	}

	inc, err := h.repo.GetIncidentByID(r.Context(), id)
	if err != nil {
		if err == repository.ErrIncidentNotFound {
			httputil.WriteError(w, http.StatusNotFound, "incident not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to get incident", "incident_id", id, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to get incident")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, inc)
}

// ListEvidence returns the evidence trail for an incident.
func (h *Handler) ListEvidence(w http.ResponseWriter, r *http.Request) {
	id := incidentIDFromPath(r.URL.Path)
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "missing incident id")
		return
	}

	logs, err := h.repo.ListEvidence(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list evidence", "incident_id", id, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list evidence")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"evidence": logs})
}

// VerifyEvidence recomputes every evidence signature for an incident and
// reports which rows still verify. A false entry means the stored record no
// longer matches its original signature.
func (h *Handler) VerifyEvidence(w http.ResponseWriter, r *http.Request) {
	id := incidentIDFromPath(r.URL.Path)
	if id == "" {
		httputil.WriteError(w, http.StatusBadRequest, "missing incident id")
		return
	}

	logs, err := h.repo.ListEvidence(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list evidence", "incident_id", id, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to verify evidence")
		return
	}

	results := make([]models.EvidenceVerification, 0, len(logs))
	tampered := 0
	for _, ev := range logs {
		valid := h.signer.Verify(ev.IncidentID, string(ev.ActionTaken), ev.EvidenceSnapshot, ev.Timestamp, ev.HashSignature)
		if !valid {
			tampered++
		}
		results = append(results, models.EvidenceVerification{EvidenceID: ev.ID, Valid: valid})
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"incident_id": id,
		"verified":    tampered == 0,
		"results":     results,
	})
}

// ListRules returns all standing enforcement rules.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.repo.ListRules(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to list rules", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list rules")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"rules": rules})
}

// incidentIDFromPath extracts the id segment from
// /api/v1/incidents/{id}[/evidence[/verify]].
func incidentIDFromPath(path string) string {
	trimmed := strings.TrimPrefix(path, "/api/v1/incidents/")
	if trimmed == path {
		return ""
	}
	if idx := strings.IndexByte(trimmed, '/'); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return trimmed
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
