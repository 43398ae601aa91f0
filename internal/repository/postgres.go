package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/steelmarket-systems/gsocc/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// CreateEvent persists a security event, assigning id and created_at when unset.
func (r *PostgresRepository) CreateEvent(ctx context.Context, e *models.SecurityEvent) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO security_events (id, event_type, severity, source_ip, user_id, session_id, endpoint, payload, risk_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		e.ID, e.EventType, e.Severity, e.SourceIP, e.UserID,
		e.SessionID, e.Endpoint, e.Payload, e.RiskScore, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create event: %w", err)
	}

	return nil
}

// GetEventByID retrieves a single event
func (r *PostgresRepository) GetEventByID(ctx context.Context, id string) (*models.SecurityEvent, error) {
	query := `
		SELECT id, event_type, severity, source_ip, user_id, session_id, endpoint, payload, risk_score, created_at
		FROM security_events
		WHERE id = $1
	`

	e := &models.SecurityEvent{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.EventType, &e.Severity, &e.SourceIP, &e.UserID,
		&e.SessionID, &e.Endpoint, &e.Payload, &e.RiskScore, &e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	return e, nil
}

// CountEventsFromIP counts events observed from a source IP since the given time.
func (r *PostgresRepository) CountEventsFromIP(ctx context.Context, sourceIP string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM security_events WHERE source_ip = $1 AND created_at >= $2`

	var count int
	if err := r.pool.QueryRow(ctx, query, sourceIP, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}

	return count, nil
}

// CreateIncident creates a new incident
func (r *PostgresRepository) CreateIncident(ctx context.Context, inc *models.Incident) error {
	if inc.ID == "" {
		inc.ID = uuid.New().String()
	}
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO incidents (id, title, status, severity, description, root_cause, correlation_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		inc.ID, inc.Title, inc.Status, inc.Severity,
		inc.Description, inc.RootCause, inc.CorrelationKey, inc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create incident: %w", err)
	}

	return nil
}

// GetIncidentByID retrieves an incident by ID
func (r *PostgresRepository) GetIncidentByID(ctx context.Context, id string) (*models.Incident, error) {
	query := `
		SELECT id, title, status, severity, description, root_cause, correlation_key, created_at, updated_at
		FROM incidents
		WHERE id = $1
	`

	inc := &models.Incident{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&inc.ID, &inc.Title, &inc.Status, &inc.Severity,
		&inc.Description, &inc.RootCause, &inc.CorrelationKey,
		&inc.CreatedAt, &inc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIncidentNotFound
		}
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}

	return inc, nil
}

// ListIncidents retrieves a paginated list of incidents
func (r *PostgresRepository) ListIncidents(ctx context.Context, req *models.ListIncidentsRequest) ([]*models.Incident, int, error) {
	whereClause := "WHERE 1=1"
	args := []interface{}{}
	argPos := 1

	if req.Status != "" {
		whereClause += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, req.Status)
		argPos++
	}
	if req.Severity != "" {
		whereClause += fmt.Sprintf(" AND severity = $%d", argPos)
		args = append(args, req.Severity)
		argPos++
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM incidents %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count incidents: %w", err)
	}

	offset := (req.Page - 1) * req.Limit
	args = append(args, req.Limit, offset)

	query := fmt.Sprintf(`
		SELECT id, title, status, severity, description, root_cause, correlation_key, created_at, updated_at
		FROM incidents
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argPos, argPos+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	incidents := []*models.Incident{}
	for rows.Next() {
		inc := &models.Incident{}
		if err := rows.Scan(
			&inc.ID, &inc.Title, &inc.Status, &inc.Severity,
			&inc.Description, &inc.RootCause, &inc.CorrelationKey,
			&inc.CreatedAt, &inc.UpdatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan incident: %w", err)
		}
		incidents = append(incidents, inc)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("row iteration error: %w", err)
	}

	return incidents, total, nil
}

// FindActiveIncidentByCorrelationKey finds the newest OPEN or INVESTIGATING
// incident sharing the correlation key.
func (r *PostgresRepository) FindActiveIncidentByCorrelationKey(ctx context.Context, key string) (*models.Incident, error) {
	query := `
		SELECT id, title, status, severity, description, root_cause, correlation_key, created_at, updated_at
		FROM incidents
		WHERE correlation_key = $1 AND status IN ($2, $3)
		ORDER BY created_at DESC
		LIMIT 1
	`

	inc := &models.Incident{}
	err := r.pool.QueryRow(ctx, query, key, models.IncidentOpen, models.IncidentInvestigating).Scan(
		&inc.ID, &inc.Title, &inc.Status, &inc.Severity,
		&inc.Description, &inc.RootCause, &inc.CorrelationKey,
		&inc.CreatedAt, &inc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIncidentNotFound
		}
		return nil, fmt.Errorf("failed to find incident by correlation key: %w", err)
	}

	return inc, nil
}

// AppendIncidentNote appends a line to an incident's description.
// The description is an append-only log of automated actions.
func (r *PostgresRepository) AppendIncidentNote(ctx context.Context, id, note string) error {
	query := `
		UPDATE incidents
		SET description = description || E'\n' || $2, updated_at = $3
		WHERE id = $1
	`

	result, err := r.pool.Exec(ctx, query, id, note, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to append incident note: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrIncidentNotFound
	}

	return nil
}

// TransitionIncidentStatus advances an incident's lifecycle status.
// The WHERE clause restricts the update to legal predecessor states, so a
// call against an incident that already moved past the target is a no-op.
func (r *PostgresRepository) TransitionIncidentStatus(ctx context.Context, id string, status models.IncidentStatus) error {
	predecessors := legalPredecessors(status)
	if len(predecessors) == 0 {
		return fmt.Errorf("no legal transition into status %s", status)
	}

	query := `
		UPDATE incidents
		SET status = $2, updated_at = $3
		WHERE id = $1 AND status = ANY($4)
	`

	result, err := r.pool.Exec(ctx, query, id, status, time.Now().UTC(), predecessors)
	if err != nil {
		return fmt.Errorf("failed to update incident status: %w", err)
	}

	if result.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM incidents WHERE id = $1)", id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check incident existence: %w", err)
		}
		if !exists {
			return ErrIncidentNotFound
		}
		// Incident is already at or past the target status.
	}

	return nil
}

// legalPredecessors returns the statuses from which target may be reached.
func legalPredecessors(target models.IncidentStatus) []string {
	all := []models.IncidentStatus{
		models.IncidentOpen, models.IncidentInvestigating,
		models.IncidentContained, models.IncidentResolved, models.IncidentClosed,
	}
	preds := []string{}
	for _, s := range all {
		if s.CanTransitionTo(target) {
			preds = append(preds, string(s))
		}
	}
	return preds
}

// LinkEventToIncident associates an event with an incident. Duplicate links
// are no-ops.
func (r *PostgresRepository) LinkEventToIncident(ctx context.Context, incidentID, eventID string) error {
	query := `
		INSERT INTO incident_events (incident_id, event_id, linked_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (incident_id, event_id) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query, incidentID, eventID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to link event to incident: %w", err)
	}

	return nil
}

// CreateEvidence writes an immutable evidence record. There is no update path.
func (r *PostgresRepository) CreateEvidence(ctx context.Context, ev *models.EvidenceLog) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}

	query := `
		INSERT INTO evidence_logs (id, incident_id, action_taken, executed_by, evidence_snapshot, hash_signature, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		ev.ID, ev.IncidentID, ev.ActionTaken, ev.ExecutedBy,
		ev.EvidenceSnapshot, ev.HashSignature, ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create evidence log: %w", err)
	}

	return nil
}

// ListEvidence retrieves all evidence for an incident, oldest first.
func (r *PostgresRepository) ListEvidence(ctx context.Context, incidentID string) ([]*models.EvidenceLog, error) {
	query := `
		SELECT id, incident_id, action_taken, executed_by, evidence_snapshot, hash_signature, timestamp
		FROM evidence_logs
		WHERE incident_id = $1
		ORDER BY timestamp ASC
	`

	rows, err := r.pool.Query(ctx, query, incidentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list evidence: %w", err)
	}
	defer rows.Close()

	logs := []*models.EvidenceLog{}
	for rows.Next() {
		ev := &models.EvidenceLog{}
		if err := rows.Scan(
			&ev.ID, &ev.IncidentID, &ev.ActionTaken, &ev.ExecutedBy,
			&ev.EvidenceSnapshot, &ev.HashSignature, &ev.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan evidence log: %w", err)
		}
		logs = append(logs, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return logs, nil
}

// CreateRule inserts a standing enforcement rule.
func (r *PostgresRepository) CreateRule(ctx context.Context, rule *models.SecurityRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO security_rules (id, rule_type, target_value, action, reason, incident_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		rule.ID, rule.RuleType, rule.TargetValue, rule.Action,
		rule.Reason, rule.IncidentID, rule.ExpiresAt, rule.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	return nil
}

// ListRules retrieves all enforcement rules, newest first.
func (r *PostgresRepository) ListRules(ctx context.Context) ([]*models.SecurityRule, error) {
	query := `
		SELECT id, rule_type, target_value, action, reason, incident_id, expires_at, created_at
		FROM security_rules
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	rules := []*models.SecurityRule{}
	for rows.Next() {
		rule := &models.SecurityRule{}
		if err := rows.Scan(
			&rule.ID, &rule.RuleType, &rule.TargetValue, &rule.Action,
			&rule.Reason, &rule.IncidentID, &rule.ExpiresAt, &rule.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return rules, nil
}

// DeactivateUserProfile flags the external marketplace profile inactive.
func (r *PostgresRepository) DeactivateUserProfile(ctx context.Context, userID string) error {
	query := `UPDATE user_profiles SET active = FALSE, updated_at = $2 WHERE user_id = $1`

	result, err := r.pool.Exec(ctx, query, userID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to deactivate user profile: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrProfileNotFound
	}

	return nil
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}
