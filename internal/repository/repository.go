package repository

import (
	"context"
	"errors"
	"time"

	"github.com/steelmarket-systems/gsocc/internal/models"
)

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrIncidentNotFound = errors.New("incident not found")
	ErrProfileNotFound  = errors.New("user profile not found")
)

// Repository defines persistence for the detection and response pipeline.
// All writes are inserts or single-row updates; nothing is ever deleted.
type Repository interface {
	// Event operations
	CreateEvent(ctx context.Context, e *models.SecurityEvent) error
	GetEventByID(ctx context.Context, id string) (*models.SecurityEvent, error)
	CountEventsFromIP(ctx context.Context, sourceIP string, since time.Time) (int, error)

	// Incident operations
	CreateIncident(ctx context.Context, inc *models.Incident) error
	GetIncidentByID(ctx context.Context, id string) (*models.Incident, error)
	ListIncidents(ctx context.Context, req *models.ListIncidentsRequest) ([]*models.Incident, int, error)
	// FindActiveIncidentByCorrelationKey returns the most recent incident in
	// OPEN or INVESTIGATING state whose correlation key matches, or
	// ErrIncidentNotFound.
	FindActiveIncidentByCorrelationKey(ctx context.Context, key string) (*models.Incident, error)
	AppendIncidentNote(ctx context.Context, id, note string) error
	// TransitionIncidentStatus moves an incident forward in its lifecycle.
	// A transition that would move backward or repeat the current status is
	// a no-op, not an error.
	TransitionIncidentStatus(ctx context.Context, id string, status models.IncidentStatus) error

	// Incident-event linkage (idempotent)
	LinkEventToIncident(ctx context.Context, incidentID, eventID string) error

	// Evidence operations (append-only)
	CreateEvidence(ctx context.Context, ev *models.EvidenceLog) error
	ListEvidence(ctx context.Context, incidentID string) ([]*models.EvidenceLog, error)

	// Rule operations
	CreateRule(ctx context.Context, r *models.SecurityRule) error
	ListRules(ctx context.Context) ([]*models.SecurityRule, error)

	// DeactivateUserProfile marks an external user profile inactive.
	// Best-effort: callers tolerate failure here.
	DeactivateUserProfile(ctx context.Context, userID string) error

	// Utility
	Close() error
}
