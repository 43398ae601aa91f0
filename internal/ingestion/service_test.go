package ingestion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steelmarket-systems/gsocc/internal/logging"
	"github.com/steelmarket-systems/gsocc/internal/models"
	"github.com/steelmarket-systems/gsocc/internal/repository"
)

// recordingProcessor captures events handed off by the dispatch goroutine.
type recordingProcessor struct {
	mu     sync.Mutex
	events []*models.SecurityEvent
}

func (p *recordingProcessor) Process(_ context.Context, event *models.SecurityEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingProcessor) processed() []*models.SecurityEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*models.SecurityEvent{}, p.events...)
}

// failingRepo rejects every event write.
type failingRepo struct {
	*repository.InMemoryRepository
}

func (r *failingRepo) CreateEvent(_ context.Context, _ *models.SecurityEvent) error {
	return errors.New("datastore unreachable")
}

// panickingProcessor simulates a downstream crash on the dispatch path.
type panickingProcessor struct{}

func (panickingProcessor) Process(_ context.Context, _ *models.SecurityEvent) {
	panic("orchestrator blew up")
}

func TestComputeRiskScore(t *testing.T) {
	tests := []struct {
		name      string
		severity  models.Severity
		eventType models.EventType
		expected  int
	}{
		{name: "critical base is exactly 100", severity: models.SeverityCritical, eventType: models.EventSystemError, expected: 100},
		{name: "medium sql injection not clamped", severity: models.SeverityMedium, eventType: models.EventSQLInjectionAttempt, expected: 90},
		{name: "critical sql injection clamped to 100", severity: models.SeverityCritical, eventType: models.EventSQLInjectionAttempt, expected: 100},
		{name: "low login failure", severity: models.SeverityLow, eventType: models.EventLoginFailed, expected: 20},
		{name: "high anomalous behavior", severity: models.SeverityHigh, eventType: models.EventAnomalousBehavior, expected: 95},
		{name: "medium xss has no bonus", severity: models.SeverityMedium, eventType: models.EventXSSAttempt, expected: 40},
		{name: "low rate limit has no bonus", severity: models.SeverityLow, eventType: models.EventRateLimitExceeded, expected: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ComputeRiskScore(tt.severity, tt.eventType))
		})
	}
}

func TestIngestPersistsAndDispatches(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	proc := &recordingProcessor{}
	svc := New(repo, proc, nil, logging.Default(), time.Second)

	event := svc.Ingest(context.Background(), &models.IngestRequest{
		EventType: models.EventUnauthorizedAccess,
		Severity:  models.SeverityMedium,
		SourceIP:  "203.0.113.4",
		UserID:    "user-1",
	})
	require.NotNil(t, event)
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
	assert.Equal(t, 40, event.RiskScore)

	persisted, err := repo.GetEventByID(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventUnauthorizedAccess, persisted.EventType)

	svc.Wait()
	processed := proc.processed()
	require.Len(t, processed, 1)
	assert.Equal(t, event.ID, processed[0].ID)
}

func TestIngestNeverRaisesOnPersistenceFailure(t *testing.T) {
	repo := &failingRepo{repository.NewInMemoryRepository()}
	proc := &recordingProcessor{}
	svc := New(repo, proc, nil, logging.Default(), time.Second)

	var event *models.SecurityEvent
	assert.NotPanics(t, func() {
		event = svc.Ingest(context.Background(), &models.IngestRequest{
			EventType: models.EventLoginFailed,
			Severity:  models.SeverityLow,
		})
	})
	assert.Nil(t, event)

	// Nothing reaches the orchestrator for a dropped event.
	svc.Wait()
	assert.Empty(t, proc.processed())
}

func TestDispatchPanicDoesNotReachCaller(t *testing.T) {
	repo := repository.NewInMemoryRepository()
	svc := New(repo, panickingProcessor{}, nil, logging.Default(), time.Second)

	event := svc.Ingest(context.Background(), &models.IngestRequest{
		EventType: models.EventSystemError,
		Severity:  models.SeverityLow,
	})
	require.NotNil(t, event)

	// The dispatch goroutine swallows the panic.
	assert.NotPanics(t, svc.Wait)
}
