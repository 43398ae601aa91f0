// Package ingestion accepts raw security events on the request hot path:
// it scores and persists each event, then hands it to the orchestrator
// without waiting. Ingestion never fails the triggering request.
package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/steelmarket-systems/gsocc/internal/logging"
	"github.com/steelmarket-systems/gsocc/internal/metrics"
	"github.com/steelmarket-systems/gsocc/internal/models"
	"github.com/steelmarket-systems/gsocc/internal/repository"
)

// Processor is the downstream correlation stage.
type Processor interface {
	Process(ctx context.Context, event *models.SecurityEvent)
}

// Archiver copies accepted events to a long-term search index. Optional and
// best-effort.
type Archiver interface {
	ArchiveEvent(ctx context.Context, event *models.SecurityEvent) error
}

// Service ingests security events.
type Service struct {
	repo            repository.Repository
	processor       Processor
	archiver        Archiver
	logger          *logging.Logger
	dispatchTimeout time.Duration
	wg              sync.WaitGroup
}

// New creates an ingestion service. archiver may be nil.
func New(repo repository.Repository, processor Processor, archiver Archiver, logger *logging.Logger, dispatchTimeout time.Duration) *Service {
	if dispatchTimeout <= 0 {
		dispatchTimeout = 5 * time.Second
	}
	return &Service{
		repo:            repo,
		processor:       processor,
		archiver:        archiver,
		logger:          logger,
		dispatchTimeout: dispatchTimeout,
	}
}

// severity base scores.
const (
	scoreLow      = 10
	scoreMedium   = 40
	scoreHigh     = 75
	scoreCritical = 100
)

// ComputeRiskScore derives the deterministic risk score for an event:
// a severity base plus additive bonuses per event type, clamped to [0, 100].
func ComputeRiskScore(severity models.Severity, eventType models.EventType) int {
	var score int
	switch severity {
	case models.SeverityLow:
		score = scoreLow
	case models.SeverityMedium:
		score = scoreMedium
	case models.SeverityHigh:
		score = scoreHigh
	case models.SeverityCritical:
		score = scoreCritical
	}

	switch eventType {
	case models.EventSQLInjectionAttempt:
		score += 50
	case models.EventLoginFailed:
		score += 10
	case models.EventAnomalousBehavior:
		score += 20
	case models.EventRateLimitExceeded, models.EventXSSAttempt,
		models.EventUnauthorizedAccess, models.EventSystemError:
		// No type bonus.
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

// Ingest scores and persists an event, then dispatches it to the
// orchestrator without waiting for orchestration to complete. Persistence
// failure is logged and yields nil; it never propagates to the caller.
func (s *Service) Ingest(ctx context.Context, req *models.IngestRequest) *models.SecurityEvent {
	event := &models.SecurityEvent{
		EventType: req.EventType,
		Severity:  req.Severity,
		SourceIP:  req.SourceIP,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Endpoint:  req.Endpoint,
		Payload:   req.Payload,
		RiskScore: ComputeRiskScore(req.Severity, req.EventType),
	}

	if err := s.repo.CreateEvent(ctx, event); err != nil {
		metrics.IngestFailures.Inc()
		s.logger.ErrorContext(ctx, "GSOCC ingestion failed to persist event",
			"event_type", string(req.EventType), "source_ip", req.SourceIP, "error", err)
		return nil
	}

	metrics.EventsIngested.WithLabelValues(string(event.EventType), string(event.Severity)).Inc()

	// Fire-and-forget: correlation and containment proceed on their own
	// clock with their own error boundary, so ingestion latency stays
	// decoupled from downstream cost.
	s.wg.Add(1)
	go s.dispatch(event)

	return event
}

// dispatch runs the orchestration tail for one event. Failures here are
// independently caught and logged; they never reach the ingesting caller.
func (s *Service) dispatch(event *models.SecurityEvent) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.dispatchTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "GSOCC orchestration dispatch failed",
				"event_id", event.ID, "panic", fmt.Sprintf("%v", r))
		}
	}()

	s.processor.Process(ctx, event)

	if s.archiver != nil {
		if err := s.archiver.ArchiveEvent(ctx, event); err != nil {
			s.logger.WarnContext(ctx, "GSOCC event archival failed",
				"event_id", event.ID, "error", err)
		}
	}
}

// Wait blocks until all in-flight dispatches finish. Used on shutdown and
// in tests.
func (s *Service) Wait() {
	s.wg.Wait()
}
