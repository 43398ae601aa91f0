package actions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steelmarket-systems/gsocc/internal/audit"
	"github.com/steelmarket-systems/gsocc/internal/logging"
	"github.com/steelmarket-systems/gsocc/internal/models"
	"github.com/steelmarket-systems/gsocc/internal/repository"
	"github.com/steelmarket-systems/gsocc/internal/safelist"
)

func newTestEngine(t *testing.T, safe *safelist.SafeList) (*Engine, *repository.InMemoryRepository, string) {
	t.Helper()

	repo := repository.NewInMemoryRepository()
	incident := &models.Incident{
		Title:       "Security Threat: SQL_INJECTION_ATTEMPT from 198.51.100.7",
		Status:      models.IncidentOpen,
		Severity:    models.SeverityCritical,
		Description: "Automated escalation.",
	}
	require.NoError(t, repo.CreateIncident(context.Background(), incident))

	if safe == nil {
		safe = safelist.New(nil, nil)
	}
	signer := audit.NewEvidenceSigner("test-secret")
	engine := New(repo, safe, signer, nil, logging.Default(), "GSOCC-AUTOMATION")
	return engine, repo, incident.ID
}

func TestExecuteContainmentTiers(t *testing.T) {
	tests := []struct {
		name            string
		severity        models.Severity
		sourceIP        string
		userID          string
		expectedActions []models.ActionTaken
		expectedRules   []models.RuleType
	}{
		{
			name:            "critical with ip and user blocks and isolates",
			severity:        models.SeverityCritical,
			sourceIP:        "198.51.100.7",
			userID:          "user-42",
			expectedActions: []models.ActionTaken{models.ActionIPBlocked, models.ActionAccountIsolated},
			expectedRules:   []models.RuleType{models.RuleIPBlock, models.RuleUserIsolate},
		},
		{
			name:            "critical with ip only blocks",
			severity:        models.SeverityCritical,
			sourceIP:        "198.51.100.7",
			expectedActions: []models.ActionTaken{models.ActionIPBlocked},
			expectedRules:   []models.RuleType{models.RuleIPBlock},
		},
		{
			name:     "critical without ip takes no action",
			severity: models.SeverityCritical,
			userID:   "user-42",
		},
		{
			name:            "high with user kills sessions only",
			severity:        models.SeverityHigh,
			sourceIP:        "198.51.100.7",
			userID:          "user-42",
			expectedActions: []models.ActionTaken{models.ActionSessionKilled},
		},
		{
			name:     "high without user takes no action",
			severity: models.SeverityHigh,
			sourceIP: "198.51.100.7",
		},
		{
			name:     "medium takes no action",
			severity: models.SeverityMedium,
			sourceIP: "198.51.100.7",
			userID:   "user-42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, repo, incidentID := newTestEngine(t, nil)
			repo.SeedProfile("user-42")
			ctx := context.Background()

			event := &models.SecurityEvent{
				ID:       "event-1",
				SourceIP: tt.sourceIP,
				UserID:   tt.userID,
			}
			engine.ExecuteContainment(ctx, incidentID, event, tt.severity)

			logs, err := repo.ListEvidence(ctx, incidentID)
			require.NoError(t, err)
			actions := make([]models.ActionTaken, 0, len(logs))
			for _, ev := range logs {
				actions = append(actions, ev.ActionTaken)
			}
			assert.ElementsMatch(t, tt.expectedActions, actions)

			rules, err := repo.ListRules(ctx)
			require.NoError(t, err)
			ruleTypes := make([]models.RuleType, 0, len(rules))
			for _, rule := range rules {
				ruleTypes = append(ruleTypes, rule.RuleType)
			}
			assert.ElementsMatch(t, tt.expectedRules, ruleTypes)

			// Containment always closes out by marking the incident.
			incident, err := repo.GetIncidentByID(ctx, incidentID)
			require.NoError(t, err)
			assert.Equal(t, models.IncidentContained, incident.Status)
		})
	}
}

func TestBlockIPSafeHavenBypass(t *testing.T) {
	safe := safelist.New([]string{"10.0.0.1"}, nil)
	engine, repo, incidentID := newTestEngine(t, safe)
	ctx := context.Background()

	require.NoError(t, engine.BlockIP(ctx, "10.0.0.1", incidentID, "test block"))

	// The protected IP gets no rule and no evidence, only the note.
	rules, err := repo.ListRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)

	logs, err := repo.ListEvidence(ctx, incidentID)
	require.NoError(t, err)
	assert.Empty(t, logs)

	incident, err := repo.GetIncidentByID(ctx, incidentID)
	require.NoError(t, err)
	assert.Contains(t, incident.Description, "[SAFE HAVEN] Block IP Command Bypassed for: 10.0.0.1")
}

func TestIsolateAccountSafeHavenBypass(t *testing.T) {
	safe := safelist.New(nil, []string{"admin-root"})
	engine, repo, incidentID := newTestEngine(t, safe)
	repo.SeedProfile("admin-root")
	ctx := context.Background()

	require.NoError(t, engine.IsolateAccount(ctx, "admin-root", incidentID, "test isolation"))

	assert.True(t, repo.ProfileActive("admin-root"))

	rules, err := repo.ListRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)

	incident, err := repo.GetIncidentByID(ctx, incidentID)
	require.NoError(t, err)
	assert.Contains(t, incident.Description, "[SAFE HAVEN] Account Isolation Bypassed for: admin-root")
}

func TestIsolateAccountDeactivationFailureContinues(t *testing.T) {
	engine, repo, incidentID := newTestEngine(t, nil)
	ctx := context.Background()

	// No seeded profile: deactivation fails, but the rule and evidence land.
	require.NoError(t, engine.IsolateAccount(ctx, "ghost-user", incidentID, "test isolation"))

	rules, err := repo.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, models.RuleUserIsolate, rules[0].RuleType)
	assert.Equal(t, "ghost-user", rules[0].TargetValue)

	logs, err := repo.ListEvidence(ctx, incidentID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.ActionAccountIsolated, logs[0].ActionTaken)
	assert.Equal(t, false, logs[0].EvidenceSnapshot["profile_deactivated"])
}

func TestEvidenceSignatureVerifies(t *testing.T) {
	engine, repo, incidentID := newTestEngine(t, nil)
	fixed := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	engine.WithClock(func() time.Time { return fixed })
	ctx := context.Background()

	require.NoError(t, engine.BlockIP(ctx, "198.51.100.7", incidentID, "test block"))

	logs, err := repo.ListEvidence(ctx, incidentID)
	require.NoError(t, err)
	require.Len(t, logs, 1)

	ev := logs[0]
	signer := audit.NewEvidenceSigner("test-secret")
	assert.Equal(t, fixed, ev.Timestamp)
	assert.True(t, signer.Verify(ev.IncidentID, string(ev.ActionTaken), ev.EvidenceSnapshot, ev.Timestamp, ev.HashSignature))

	// A tampered snapshot no longer verifies.
	ev.EvidenceSnapshot["blocked_ip"] = "203.0.113.9"
	assert.False(t, signer.Verify(ev.IncidentID, string(ev.ActionTaken), ev.EvidenceSnapshot, ev.Timestamp, ev.HashSignature))
}

// ruleCrashRepo simulates the enforcement store going down mid-containment.
type ruleCrashRepo struct {
	*repository.InMemoryRepository
}

func (r *ruleCrashRepo) CreateRule(_ context.Context, _ *models.SecurityRule) error {
	panic("enforcement store unavailable")
}

func TestExecuteContainmentSurvivesPanic(t *testing.T) {
	base := repository.NewInMemoryRepository()
	incident := &models.Incident{Title: "t", Status: models.IncidentOpen, Severity: models.SeverityCritical}
	require.NoError(t, base.CreateIncident(context.Background(), incident))

	repo := &ruleCrashRepo{base}
	signer := audit.NewEvidenceSigner("test-secret")
	engine := New(repo, safelist.New(nil, nil), signer, nil, logging.Default(), "GSOCC-AUTOMATION")

	event := &models.SecurityEvent{ID: "event-1", SourceIP: "198.51.100.7"}
	assert.NotPanics(t, func() {
		engine.ExecuteContainment(context.Background(), incident.ID, event, models.SeverityCritical)
	})
}

func TestRepeatedContainmentIsIdempotentOnStatus(t *testing.T) {
	engine, repo, incidentID := newTestEngine(t, nil)
	ctx := context.Background()
	event := &models.SecurityEvent{ID: "event-1", SourceIP: "198.51.100.7"}

	engine.ExecuteContainment(ctx, incidentID, event, models.SeverityCritical)
	engine.ExecuteContainment(ctx, incidentID, event, models.SeverityCritical)

	incident, err := repo.GetIncidentByID(ctx, incidentID)
	require.NoError(t, err)
	assert.Equal(t, models.IncidentContained, incident.Status)

	// Each run leaves its own evidence trail; the status simply stays put.
	logs, err := repo.ListEvidence(ctx, incidentID)
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}
