// Package actions executes the tiered automated containment response:
// IP blocking, account isolation and session kills, each leaving a signed
// evidence record behind.
package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/steelmarket-systems/gsocc/internal/audit"
	"github.com/steelmarket-systems/gsocc/internal/logging"
	"github.com/steelmarket-systems/gsocc/internal/messaging"
	"github.com/steelmarket-systems/gsocc/internal/metrics"
	"github.com/steelmarket-systems/gsocc/internal/models"
	"github.com/steelmarket-systems/gsocc/internal/repository"
	"github.com/steelmarket-systems/gsocc/internal/safelist"
)

// Engine carries out containment actions against a repository and records a
// tamper-evident audit trail for every action taken.
type Engine struct {
	repo       repository.Repository
	safe       *safelist.SafeList
	signer     *audit.EvidenceSigner
	notifier   messaging.Notifier
	logger     *logging.Logger
	executedBy string
	now        func() time.Time
}

// New creates a containment engine. notifier may be nil when no notification
// sink is configured.
func New(repo repository.Repository, safe *safelist.SafeList, signer *audit.EvidenceSigner, notifier messaging.Notifier, logger *logging.Logger, executedBy string) *Engine {
	return &Engine{
		repo:       repo,
		safe:       safe,
		signer:     signer,
		notifier:   notifier,
		logger:     logger,
		executedBy: executedBy,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the engine's clock. Tests use this to pin evidence
// timestamps.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// ExecuteContainment runs the tier-appropriate response for an escalated
// event, then transitions the incident to CONTAINED. It is the last line of
// defense on a fire-and-forget path: nothing escapes it, every failure is
// logged and swallowed.
func (e *Engine) ExecuteContainment(ctx context.Context, incidentID string, event *models.SecurityEvent, severity models.Severity) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ContainmentFailures.Inc()
			e.logger.ErrorContext(ctx, "CRITICAL GSOCC containment failure",
				"incident_id", incidentID, "panic", fmt.Sprintf("%v", r))
		}
	}()

	switch severity {
	case models.SeverityCritical:
		// A CRITICAL IP-based breach is treated as potentially
		// account-compromising.
		if event.SourceIP != "" {
			if err := e.BlockIP(ctx, event.SourceIP, incidentID, "Automated block of critical threat source"); err != nil {
				metrics.ContainmentFailures.Inc()
				e.logger.ErrorContext(ctx, "CRITICAL GSOCC containment failure",
					"incident_id", incidentID, "action", "block_ip", "error", err)
			}
			if event.UserID != "" {
				if err := e.IsolateAccount(ctx, event.UserID, incidentID, "Account associated with critical network threat"); err != nil {
					metrics.ContainmentFailures.Inc()
					e.logger.ErrorContext(ctx, "CRITICAL GSOCC containment failure",
						"incident_id", incidentID, "action", "isolate_account", "error", err)
				}
			}
		}
	case models.SeverityHigh:
		// Lighter response for behavioral anomalies not yet tied to a
		// confirmed network-level threat.
		if event.UserID != "" {
			if err := e.KillSession(ctx, event.UserID, incidentID, "Session terminated on high-severity anomaly"); err != nil {
				metrics.ContainmentFailures.Inc()
				e.logger.ErrorContext(ctx, "CRITICAL GSOCC containment failure",
					"incident_id", incidentID, "action", "kill_session", "error", err)
			}
		}
	case models.SeverityLow, models.SeverityMedium:
		// No automated response below HIGH.
	}

	if err := e.repo.TransitionIncidentStatus(ctx, incidentID, models.IncidentContained); err != nil {
		metrics.ContainmentFailures.Inc()
		e.logger.ErrorContext(ctx, "CRITICAL GSOCC containment failure",
			"incident_id", incidentID, "action", "mark_contained", "error", err)
	}
}

// BlockIP installs a standing IP block rule and records IP_BLOCKED evidence.
// Protected IPs are never blocked; the bypass is a deliberate override that
// still leaves a note on the incident.
func (e *Engine) BlockIP(ctx context.Context, ip, incidentID, reason string) error {
	if e.safe.IsSafeHaven(ip, "") {
		return e.bypass(ctx, incidentID, models.ActionIPBlocked, ip,
			fmt.Sprintf("[SAFE HAVEN] Block IP Command Bypassed for: %s", ip))
	}

	rule := &models.SecurityRule{
		RuleType:    models.RuleIPBlock,
		TargetValue: ip,
		Action:      models.RuleActionBlock,
		Reason:      reason,
		IncidentID:  incidentID,
	}
	if err := e.repo.CreateRule(ctx, rule); err != nil {
		return fmt.Errorf("failed to install IP block rule: %w", err)
	}

	snapshot := map[string]interface{}{
		"blocked_ip": ip,
		"rule_id":    rule.ID,
		"reason":     reason,
	}
	if err := e.recordEvidence(ctx, incidentID, models.ActionIPBlocked, snapshot); err != nil {
		return err
	}

	metrics.ContainmentActions.WithLabelValues(string(models.ActionIPBlocked)).Inc()
	e.notify(ctx, incidentID, models.ActionIPBlocked, ip, false)
	e.logger.InfoContext(ctx, "IP blocked", "ip", ip, "incident_id", incidentID, "rule_id", rule.ID)
	return nil
}

// IsolateAccount deactivates a user profile, installs an isolation rule and
// records ACCOUNT_ISOLATED evidence. Profile deactivation is best-effort:
// its failure downgrades to a warning so the rule and evidence still land.
func (e *Engine) IsolateAccount(ctx context.Context, userID, incidentID, reason string) error {
	if e.safe.IsSafeHaven("", userID) {
		return e.bypass(ctx, incidentID, models.ActionAccountIsolated, userID,
			fmt.Sprintf("[SAFE HAVEN] Account Isolation Bypassed for: %s", userID))
	}

	deactivated := true
	if err := e.repo.DeactivateUserProfile(ctx, userID); err != nil {
		deactivated = false
		e.logger.WarnContext(ctx, "GSOCC account deactivation failed, continuing containment",
			"user_id", userID, "incident_id", incidentID, "error", err)
	}

	rule := &models.SecurityRule{
		RuleType:    models.RuleUserIsolate,
		TargetValue: userID,
		Action:      models.RuleActionIsolate,
		Reason:      reason,
		IncidentID:  incidentID,
	}
	if err := e.repo.CreateRule(ctx, rule); err != nil {
		return fmt.Errorf("failed to install isolation rule: %w", err)
	}

	snapshot := map[string]interface{}{
		"isolated_user":       userID,
		"rule_id":             rule.ID,
		"reason":              reason,
		"profile_deactivated": deactivated,
	}
	if err := e.recordEvidence(ctx, incidentID, models.ActionAccountIsolated, snapshot); err != nil {
		return err
	}

	metrics.ContainmentActions.WithLabelValues(string(models.ActionAccountIsolated)).Inc()
	e.notify(ctx, incidentID, models.ActionAccountIsolated, userID, false)
	e.logger.InfoContext(ctx, "account isolated", "user_id", userID, "incident_id", incidentID, "rule_id", rule.ID)
	return nil
}

// KillSession records a SESSION_KILLED evidence entry for the user's active
// sessions. No safe-list check applies to this lighter, reversible action.
func (e *Engine) KillSession(ctx context.Context, userID, incidentID, reason string) error {
	snapshot := map[string]interface{}{
		"user_id": userID,
		"scope":   "all_active_sessions",
		"reason":  reason,
	}
	if err := e.recordEvidence(ctx, incidentID, models.ActionSessionKilled, snapshot); err != nil {
		return err
	}

	metrics.ContainmentActions.WithLabelValues(string(models.ActionSessionKilled)).Inc()
	e.notify(ctx, incidentID, models.ActionSessionKilled, userID, false)
	e.logger.InfoContext(ctx, "sessions killed", "user_id", userID, "incident_id", incidentID)
	return nil
}

// recordEvidence signs and persists one immutable audit trail entry.
func (e *Engine) recordEvidence(ctx context.Context, incidentID string, action models.ActionTaken, snapshot map[string]interface{}) error {
	ts := e.now()
	ev := &models.EvidenceLog{
		IncidentID:       incidentID,
		ActionTaken:      action,
		ExecutedBy:       e.executedBy,
		EvidenceSnapshot: snapshot,
		HashSignature:    e.signer.Sign(incidentID, string(action), snapshot, ts),
		Timestamp:        ts,
	}
	if err := e.repo.CreateEvidence(ctx, ev); err != nil {
		return fmt.Errorf("failed to record evidence: %w", err)
	}
	return nil
}

// bypass appends the safe-haven note to the incident without enforcing.
func (e *Engine) bypass(ctx context.Context, incidentID string, action models.ActionTaken, target, note string) error {
	metrics.SafeHavenBypasses.WithLabelValues(string(action)).Inc()
	e.logger.InfoContext(ctx, "safe haven bypass", "incident_id", incidentID, "action", string(action), "target", target)
	e.notify(ctx, incidentID, action, target, true)

	if err := e.repo.AppendIncidentNote(ctx, incidentID, note); err != nil {
		return fmt.Errorf("failed to append bypass note: %w", err)
	}
	return nil
}

// notify emits a notification if a sink is configured. Publish failures are
// logged and swallowed: notifications are a side channel, not a return value.
func (e *Engine) notify(ctx context.Context, incidentID string, action models.ActionTaken, target string, bypassed bool) {
	if e.notifier == nil {
		return
	}

	var err error
	if bypassed {
		err = e.notifier.ContainmentBypassed(ctx, incidentID, action, target)
	} else {
		err = e.notifier.ContainmentExecuted(ctx, incidentID, action, target)
	}
	if err != nil {
		e.logger.WarnContext(ctx, "failed to publish containment notification",
			"incident_id", incidentID, "action", string(action), "error", err)
	}
}
