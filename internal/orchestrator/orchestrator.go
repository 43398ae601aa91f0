// Package orchestrator decides whether ingested events escalate into
// incidents, correlates repeat attackers into existing incidents, and
// triggers containment for qualifying severities.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/steelmarket-systems/gsocc/internal/logging"
	"github.com/steelmarket-systems/gsocc/internal/messaging"
	"github.com/steelmarket-systems/gsocc/internal/metrics"
	"github.com/steelmarket-systems/gsocc/internal/models"
	"github.com/steelmarket-systems/gsocc/internal/repository"
	"github.com/steelmarket-systems/gsocc/internal/velocity"
)

// Containment is the downstream response engine invoked for CRITICAL and
// HIGH escalations.
type Containment interface {
	ExecuteContainment(ctx context.Context, incidentID string, event *models.SecurityEvent, severity models.Severity)
}

// Config holds the escalation thresholds.
type Config struct {
	// RiskThreshold escalates an event directly when its risk score meets it.
	RiskThreshold int
	// VelocityThreshold is the per-IP event count inside VelocityWindow that
	// triggers a velocity escalation.
	VelocityThreshold int
	VelocityWindow    time.Duration
}

// DefaultConfig returns the standing production thresholds.
func DefaultConfig() Config {
	return Config{
		RiskThreshold:     70,
		VelocityThreshold: 10,
		VelocityWindow:    60 * time.Second,
	}
}

// Orchestrator evaluates persisted events against the escalation rules.
type Orchestrator struct {
	repo        repository.Repository
	tracker     velocity.Tracker
	containment Containment
	notifier    messaging.Notifier
	logger      *logging.Logger
	cfg         Config
	now         func() time.Time
}

// New creates an orchestrator. notifier may be nil.
func New(repo repository.Repository, tracker velocity.Tracker, containment Containment, notifier messaging.Notifier, logger *logging.Logger, cfg Config) *Orchestrator {
	return &Orchestrator{
		repo:        repo,
		tracker:     tracker,
		containment: containment,
		notifier:    notifier,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the orchestrator's clock for tests.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Process evaluates one persisted event, exactly once, in order:
//
//  1. risk score at or above the threshold escalates immediately with
//     severity forced to CRITICAL;
//  2. otherwise, a source IP crossing the velocity threshold inside the
//     trailing window escalates with severity HIGH;
//  3. otherwise the event is filed and produces no incident.
//
// The orchestrator is defensive at its boundary: every failure is caught
// and logged, never propagated, because it is invoked both from the
// fire-and-forget ingestion path and directly.
func (o *Orchestrator) Process(ctx context.Context, event *models.SecurityEvent) {
	defer func() {
		if r := recover(); r != nil {
			metrics.OrchestratorErrors.Inc()
			o.logger.ErrorContext(ctx, "GSOCC Orchestrator Error: panic during event processing",
				"event_id", event.ID, "panic", fmt.Sprintf("%v", r))
		}
	}()

	if event.SourceIP != "" {
		if err := o.tracker.Observe(ctx, event.SourceIP, event.CreatedAt); err != nil {
			metrics.OrchestratorErrors.Inc()
			o.logger.WarnContext(ctx, "GSOCC Orchestrator Error: velocity observation failed",
				"event_id", event.ID, "source_ip", event.SourceIP, "error", err)
		}
	}

	if event.RiskScore >= o.cfg.RiskThreshold {
		o.correlateAndRaiseIncident(ctx, event, models.SeverityCritical,
			"high risk event detected directly from ingestion")
		return
	}

	if event.SourceIP == "" {
		return
	}

	since := o.now().Add(-o.cfg.VelocityWindow)
	count, err := o.tracker.CountSince(ctx, event.SourceIP, since)
	if err != nil {
		metrics.OrchestratorErrors.Inc()
		o.logger.ErrorContext(ctx, "GSOCC Orchestrator Error: velocity lookup failed",
			"event_id", event.ID, "source_ip", event.SourceIP, "error", err)
		return
	}

	if count >= o.cfg.VelocityThreshold {
		o.correlateAndRaiseIncident(ctx, event, models.SeverityHigh,
			fmt.Sprintf("velocity anomaly: %d events from %s within %s", count, event.SourceIP, o.cfg.VelocityWindow))
	}
}

// correlateAndRaiseIncident folds the event into an existing active incident
// for the same attacker IP, or raises a new one, then hands qualifying
// severities to containment.
func (o *Orchestrator) correlateAndRaiseIncident(ctx context.Context, event *models.SecurityEvent, severity models.Severity, reason string) {
	start := time.Now()
	defer func() {
		metrics.EscalationDuration.Observe(time.Since(start).Seconds())
	}()

	incidentID, err := o.resolveIncident(ctx, event, severity, reason)
	if err != nil {
		metrics.OrchestratorErrors.Inc()
		o.logger.ErrorContext(ctx, "GSOCC Orchestrator Error: incident escalation failed",
			"event_id", event.ID, "error", err)
		return
	}

	if err := o.repo.LinkEventToIncident(ctx, incidentID, event.ID); err != nil {
		metrics.OrchestratorErrors.Inc()
		o.logger.ErrorContext(ctx, "GSOCC Orchestrator Error: event linkage failed",
			"event_id", event.ID, "incident_id", incidentID, "error", err)
		// Linkage failure does not stop containment.
	}

	if o.notifier != nil {
		if err := o.notifier.IncidentEscalated(ctx, incidentID, event); err != nil {
			o.logger.WarnContext(ctx, "failed to publish escalation notification",
				"incident_id", incidentID, "error", err)
		}
	}

	switch severity {
	case models.SeverityCritical, models.SeverityHigh:
		o.containment.ExecuteContainment(ctx, incidentID, event, severity)
	case models.SeverityLow, models.SeverityMedium:
		// Below the containment tiers; the incident stands for analysts.
	}
}

// resolveIncident deduplicates by correlation key (the attacker IP) among
// OPEN and INVESTIGATING incidents, creating a new incident only when no
// active one matches. Reuse prevents incident storms from a single repeated
// attacker.
func (o *Orchestrator) resolveIncident(ctx context.Context, event *models.SecurityEvent, severity models.Severity, reason string) (string, error) {
	if event.SourceIP != "" {
		existing, err := o.repo.FindActiveIncidentByCorrelationKey(ctx, event.SourceIP)
		if err == nil {
			metrics.IncidentsDeduplicated.Inc()
			o.logger.InfoContext(ctx, "escalation correlated into existing incident",
				"incident_id", existing.ID, "event_id", event.ID, "source_ip", event.SourceIP)
			return existing.ID, nil
		}
		if !errors.Is(err, repository.ErrIncidentNotFound) {
			return "", fmt.Errorf("correlation lookup: %w", err)
		}
	}

	source := event.SourceIP
	if source == "" {
		source = "Unknown"
	}
	targetUser := event.UserID
	if targetUser == "" {
		targetUser = "N/A"
	}

	incident := &models.Incident{
		Title:    fmt.Sprintf("Security Threat: %s from %s", event.EventType, source),
		Status:   models.IncidentOpen,
		Severity: severity,
		Description: fmt.Sprintf("Automated escalation. Reason: %s. Target IP: %s. Target User: %s.",
			reason, source, targetUser),
		RootCause:      "Awaiting deep automated analysis",
		CorrelationKey: event.SourceIP,
	}
	if err := o.repo.CreateIncident(ctx, incident); err != nil {
		return "", fmt.Errorf("create incident: %w", err)
	}

	metrics.IncidentsRaised.WithLabelValues(string(severity)).Inc()
	o.logger.InfoContext(ctx, "incident raised",
		"incident_id", incident.ID, "severity", string(severity), "event_id", event.ID, "reason", reason)

	if o.notifier != nil {
		if err := o.notifier.IncidentCreated(ctx, incident); err != nil {
			o.logger.WarnContext(ctx, "failed to publish incident notification",
				"incident_id", incident.ID, "error", err)
		}
	}

	return incident.ID, nil
}
