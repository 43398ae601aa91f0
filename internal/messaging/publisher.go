package messaging

import (
	"context"
	"time"

	"github.com/steelmarket-systems/gsocc/internal/models"
)

// Notifier is the side channel the pipeline emits notifications on. A nil
// or disabled notifier is valid; publish failures are the caller's to log
// and swallow, never to propagate.
type Notifier interface {
	IncidentCreated(ctx context.Context, incident *models.Incident) error
	IncidentEscalated(ctx context.Context, incidentID string, event *models.SecurityEvent) error
	ContainmentExecuted(ctx context.Context, incidentID string, action models.ActionTaken, target string) error
	ContainmentBypassed(ctx context.Context, incidentID string, action models.ActionTaken, target string) error
}

// IncidentNotice is the wire shape for incident notifications.
type IncidentNotice struct {
	IncidentID string           `json:"incident_id"`
	Title      string           `json:"title,omitempty"`
	Severity   models.Severity  `json:"severity,omitempty"`
	EventID    string           `json:"event_id,omitempty"`
	EventType  models.EventType `json:"event_type,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// ContainmentNotice is the wire shape for containment notifications.
type ContainmentNotice struct {
	IncidentID string             `json:"incident_id"`
	Action     models.ActionTaken `json:"action"`
	Target     string             `json:"target"`
	Bypassed   bool               `json:"bypassed"`
	Timestamp  time.Time          `json:"timestamp"`
}

// Publisher implements Notifier over a NATS client.
type Publisher struct {
	client *Client
}

// NewPublisher creates a NATS-backed notifier.
func NewPublisher(client *Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) IncidentCreated(ctx context.Context, incident *models.Incident) error {
	return p.client.PublishJSON(ctx, SubjectIncidentCreated, &IncidentNotice{
		IncidentID: incident.ID,
		Title:      incident.Title,
		Severity:   incident.Severity,
		Timestamp:  time.Now().UTC(),
	})
}

func (p *Publisher) IncidentEscalated(ctx context.Context, incidentID string, event *models.SecurityEvent) error {
	return p.client.PublishJSON(ctx, SubjectIncidentEscalated, &IncidentNotice{
		IncidentID: incidentID,
		EventID:    event.ID,
		EventType:  event.EventType,
		Severity:   event.Severity,
		Timestamp:  time.Now().UTC(),
	})
}

func (p *Publisher) ContainmentExecuted(ctx context.Context, incidentID string, action models.ActionTaken, target string) error {
	return p.client.PublishJSON(ctx, SubjectContainmentExecuted, &ContainmentNotice{
		IncidentID: incidentID,
		Action:     action,
		Target:     target,
		Timestamp:  time.Now().UTC(),
	})
}

func (p *Publisher) ContainmentBypassed(ctx context.Context, incidentID string, action models.ActionTaken, target string) error {
	return p.client.PublishJSON(ctx, SubjectContainmentBypassed, &ContainmentNotice{
		IncidentID: incidentID,
		Action:     action,
		Target:     target,
		Bypassed:   true,
		Timestamp:  time.Now().UTC(),
	})
}
