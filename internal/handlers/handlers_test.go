package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steelmarket-systems/gsocc/internal/actions"
	"github.com/steelmarket-systems/gsocc/internal/audit"
	"github.com/steelmarket-systems/gsocc/internal/handlers"
	"github.com/steelmarket-systems/gsocc/internal/ingestion"
	"github.com/steelmarket-systems/gsocc/internal/logging"
	"github.com/steelmarket-systems/gsocc/internal/models"
	"github.com/steelmarket-systems/gsocc/internal/orchestrator"
	"github.com/steelmarket-systems/gsocc/internal/repository"
	"github.com/steelmarket-systems/gsocc/internal/safelist"
	"github.com/steelmarket-systems/gsocc/internal/server"
	"github.com/steelmarket-systems/gsocc/internal/velocity"
)

// testPipeline wires the full pipeline against the in-memory repository so
// handler tests exercise ingestion through containment.
type testPipeline struct {
	server *httptest.Server
	repo   *repository.InMemoryRepository
	ingest *ingestion.Service
	signer *audit.EvidenceSigner
}

func setupPipeline(t *testing.T, safe *safelist.SafeList) *testPipeline {
	t.Helper()

	repo := repository.NewInMemoryRepository()
	logger := logging.Default()
	signer := audit.NewEvidenceSigner("test-secret")
	if safe == nil {
		safe = safelist.New(nil, nil)
	}

	engine := actions.New(repo, safe, signer, nil, logger, "GSOCC-AUTOMATION")
	tracker := velocity.NewDatastoreTracker(repo)
	orch := orchestrator.New(repo, tracker, engine, nil, logger, orchestrator.DefaultConfig())
	ingest := ingestion.New(repo, orch, nil, logger, 5*time.Second)

	h := handlers.NewHandler(ingest, repo, signer, logger)
	srv := httptest.NewServer(server.NewRouter(h))
	t.Cleanup(srv.Close)

	return &testPipeline{server: srv, repo: repo, ingest: ingest, signer: signer}
}

func (p *testPipeline) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(p.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func (p *testPipeline) get(t *testing.T, path string) *http.Response {
	t.Helper()

	resp, err := http.Get(p.server.URL + path)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHealthCheck(t *testing.T) {
	p := setupPipeline(t, nil)

	resp := p.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestIngestEventValidation(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{name: "unknown event type", body: map[string]string{"event_type": "BAD_TYPE", "severity": "LOW"}},
		{name: "unknown severity", body: map[string]string{"event_type": "LOGIN_FAILED", "severity": "EXTREME"}},
		{name: "missing fields", body: map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := setupPipeline(t, nil)
			resp := p.post(t, "/api/v1/events", tt.body)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestIngestEventRejectsMalformedJSON(t *testing.T) {
	p := setupPipeline(t, nil)

	resp, err := http.Post(p.server.URL+"/api/v1/events", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngestEventRejectsWrongMethod(t *testing.T) {
	p := setupPipeline(t, nil)

	resp := p.get(t, "/api/v1/events")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCriticalEventFlowsThroughToContainment(t *testing.T) {
	p := setupPipeline(t, nil)

	resp := p.post(t, "/api/v1/events", &models.IngestRequest{
		EventType: models.EventSQLInjectionAttempt,
		Severity:  models.SeverityCritical,
		SourceIP:  "198.51.100.7",
		UserID:    "user-42",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var event models.SecurityEvent
	decodeBody(t, resp, &event)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, 100, event.RiskScore)

	// Let the fire-and-forget dispatch finish before inspecting the incident.
	p.ingest.Wait()

	listResp := p.get(t, "/api/v1/incidents")
	assert.Equal(t, http.StatusOK, listResp.StatusCode)

	var listing models.ListIncidentsResponse
	decodeBody(t, listResp, &listing)
	require.Equal(t, 1, listing.Pagination.Total)

	incident := listing.Incidents[0]
	assert.Equal(t, models.SeverityCritical, incident.Severity)
	assert.Equal(t, models.IncidentContained, incident.Status)

	getResp := p.get(t, "/api/v1/incidents/"+incident.ID)
	assert.Equal(t, http.StatusOK, getResp.StatusCode)
	var fetched models.Incident
	decodeBody(t, getResp, &fetched)
	assert.Equal(t, incident.ID, fetched.ID)

	evResp := p.get(t, "/api/v1/incidents/"+incident.ID+"/evidence")
	assert.Equal(t, http.StatusOK, evResp.StatusCode)
	var evBody struct {
		Evidence []*models.EvidenceLog `json:"evidence"`
	}
	decodeBody(t, evResp, &evBody)
	// IP block plus account isolation for a critical event with both targets.
	require.Len(t, evBody.Evidence, 2)

	rulesResp := p.get(t, "/api/v1/rules")
	assert.Equal(t, http.StatusOK, rulesResp.StatusCode)
	var rulesBody struct {
		Rules []*models.SecurityRule `json:"rules"`
	}
	decodeBody(t, rulesResp, &rulesBody)
	assert.Len(t, rulesBody.Rules, 2)
}

func TestSafeHavenEventLeavesNoteInsteadOfRule(t *testing.T) {
	p := setupPipeline(t, safelist.New([]string{"10.0.0.1"}, nil))

	resp := p.post(t, "/api/v1/events", &models.IngestRequest{
		EventType: models.EventSQLInjectionAttempt,
		Severity:  models.SeverityCritical,
		SourceIP:  "10.0.0.1",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	p.ingest.Wait()

	listResp := p.get(t, "/api/v1/incidents")
	var listing models.ListIncidentsResponse
	decodeBody(t, listResp, &listing)
	require.Equal(t, 1, listing.Pagination.Total)
	assert.Contains(t, listing.Incidents[0].Description, "[SAFE HAVEN] Block IP Command Bypassed for: 10.0.0.1")

	rulesResp := p.get(t, "/api/v1/rules")
	var rulesBody struct {
		Rules []*models.SecurityRule `json:"rules"`
	}
	decodeBody(t, rulesResp, &rulesBody)
	assert.Empty(t, rulesBody.Rules)
}

func TestGetIncidentNotFound(t *testing.T) {
	p := setupPipeline(t, nil)

	resp := p.get(t, "/api/v1/incidents/00000000-0000-0000-0000-000000000000")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListIncidentsFiltersBySeverity(t *testing.T) {
	p := setupPipeline(t, nil)
	ctx := context.Background()

	require.NoError(t, p.repo.CreateIncident(ctx, &models.Incident{
		Title: "a", Status: models.IncidentOpen, Severity: models.SeverityCritical,
	}))
	require.NoError(t, p.repo.CreateIncident(ctx, &models.Incident{
		Title: "b", Status: models.IncidentOpen, Severity: models.SeverityHigh,
	}))

	resp := p.get(t, "/api/v1/incidents?severity=CRITICAL")
	var listing models.ListIncidentsResponse
	decodeBody(t, resp, &listing)
	require.Equal(t, 1, listing.Pagination.Total)
	assert.Equal(t, "a", listing.Incidents[0].Title)
}

func TestVerifyEvidenceDetectsTampering(t *testing.T) {
	p := setupPipeline(t, nil)
	ctx := context.Background()

	incident := &models.Incident{Title: "t", Status: models.IncidentOpen, Severity: models.SeverityCritical}
	require.NoError(t, p.repo.CreateIncident(ctx, incident))

	ts := time.Now().UTC()
	goodSnapshot := map[string]interface{}{"blocked_ip": "198.51.100.7"}
	require.NoError(t, p.repo.CreateEvidence(ctx, &models.EvidenceLog{
		IncidentID:       incident.ID,
		ActionTaken:      models.ActionIPBlocked,
		ExecutedBy:       "GSOCC-AUTOMATION",
		EvidenceSnapshot: goodSnapshot,
		HashSignature:    p.signer.Sign(incident.ID, string(models.ActionIPBlocked), goodSnapshot, ts),
		Timestamp:        ts,
	}))

	// A second record whose snapshot no longer matches its signature.
	require.NoError(t, p.repo.CreateEvidence(ctx, &models.EvidenceLog{
		IncidentID:       incident.ID,
		ActionTaken:      models.ActionIPBlocked,
		ExecutedBy:       "GSOCC-AUTOMATION",
		EvidenceSnapshot: map[string]interface{}{"blocked_ip": "203.0.113.9"},
		HashSignature:    p.signer.Sign(incident.ID, string(models.ActionIPBlocked), goodSnapshot, ts),
		Timestamp:        ts.Add(time.Second),
	}))

	resp := p.get(t, "/api/v1/incidents/"+incident.ID+"/evidence/verify")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		IncidentID string                        `json:"incident_id"`
		Verified   bool                          `json:"verified"`
		Results    []models.EvidenceVerification `json:"results"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, incident.ID, body.IncidentID)
	assert.False(t, body.Verified)
	require.Len(t, body.Results, 2)
	assert.True(t, body.Results[0].Valid)
	assert.False(t, body.Results[1].Valid)
}

func TestDegradedPipelineStillAccepts(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	logger := logging.Default()
	signer := audit.NewEvidenceSigner("test-secret")

	failing := &failingEventRepo{repo}
	tracker := velocity.NewDatastoreTracker(failing)
	engine := actions.New(failing, safelist.New(nil, nil), signer, nil, logger, "GSOCC-AUTOMATION")
	orch := orchestrator.New(failing, tracker, engine, nil, logger, orchestrator.DefaultConfig())
	ingest := ingestion.New(failing, orch, nil, logger, 5*time.Second)

	h := handlers.NewHandler(ingest, failing, signer, logger)
	srv := httptest.NewServer(server.NewRouter(h))
	t.Cleanup(srv.Close)

	data, err := json.Marshal(&models.IngestRequest{
		EventType: models.EventLoginFailed,
		Severity:  models.SeverityLow,
	})
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/api/v1/events", "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "accepted", body["status"])
	assert.Equal(t, false, body["persisted"])
}

type failingEventRepo struct {
	*repository.InMemoryRepository
}

func (r *failingEventRepo) CreateEvent(_ context.Context, _ *models.SecurityEvent) error {
	return context.DeadlineExceeded
}
