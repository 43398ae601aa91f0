package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/steelmarket-systems/gsocc/internal/models"
)

// InMemoryRepository is a map-backed Repository used in tests and local
// development. It mirrors the Postgres implementation's semantics.
type InMemoryRepository struct {
	events    map[string]*models.SecurityEvent
	incidents map[string]*models.Incident
	links     map[string]map[string]bool // incident id -> event id set
	evidence  []*models.EvidenceLog
	rules     []*models.SecurityRule
	profiles  map[string]bool // user id -> active
	mu        sync.RWMutex
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		events:    make(map[string]*models.SecurityEvent),
		incidents: make(map[string]*models.Incident),
		links:     make(map[string]map[string]bool),
		profiles:  make(map[string]bool),
	}
}

// SeedProfile registers an active user profile so isolation can deactivate it.
func (r *InMemoryRepository) SeedProfile(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[userID] = true
}

// ProfileActive reports whether a seeded profile is still active.
func (r *InMemoryRepository) ProfileActive(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.profiles[userID]
}

func (r *InMemoryRepository) CreateEvent(_ context.Context, e *models.SecurityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	cp := *e
	r.events[e.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetEventByID(_ context.Context, id string) (*models.SecurityEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.events[id]
	if !exists {
		return nil, ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *InMemoryRepository) CountEventsFromIP(_ context.Context, sourceIP string, since time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, e := range r.events {
		if e.SourceIP == sourceIP && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *InMemoryRepository) CreateIncident(_ context.Context, inc *models.Incident) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if inc.ID == "" {
		inc.ID = uuid.New().String()
	}
	if inc.CreatedAt.IsZero() {
		inc.CreatedAt = time.Now().UTC()
	}

	cp := *inc
	r.incidents[inc.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetIncidentByID(_ context.Context, id string) (*models.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inc, exists := r.incidents[id]
	if !exists {
		return nil, ErrIncidentNotFound
	}
	cp := *inc
	return &cp, nil
}

func (r *InMemoryRepository) ListIncidents(_ context.Context, req *models.ListIncidentsRequest) ([]*models.Incident, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := []*models.Incident{}
	for _, inc := range r.incidents {
		if req.Status != "" && inc.Status != req.Status {
			continue
		}
		if req.Severity != "" && inc.Severity != req.Severity {
			continue
		}
		cp := *inc
		matched = append(matched, &cp)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (req.Page - 1) * req.Limit
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := start + req.Limit
	if req.Limit <= 0 || end > total {
		end = total
	}

	return matched[start:end], total, nil
}

func (r *InMemoryRepository) FindActiveIncidentByCorrelationKey(_ context.Context, key string) (*models.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *models.Incident
	for _, inc := range r.incidents {
		if inc.CorrelationKey != key {
			continue
		}
		if inc.Status != models.IncidentOpen && inc.Status != models.IncidentInvestigating {
			continue
		}
		if best == nil || inc.CreatedAt.After(best.CreatedAt) {
			best = inc
		}
	}
	if best == nil {
		return nil, ErrIncidentNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *InMemoryRepository) AppendIncidentNote(_ context.Context, id, note string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inc, exists := r.incidents[id]
	if !exists {
		return ErrIncidentNotFound
	}

	inc.Description += "\n" + note
	now := time.Now().UTC()
	inc.UpdatedAt = &now
	return nil
}

func (r *InMemoryRepository) TransitionIncidentStatus(_ context.Context, id string, status models.IncidentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inc, exists := r.incidents[id]
	if !exists {
		return ErrIncidentNotFound
	}

	if !inc.Status.CanTransitionTo(status) {
		// Already at or past the target status.
		return nil
	}

	inc.Status = status
	now := time.Now().UTC()
	inc.UpdatedAt = &now
	return nil
}

func (r *InMemoryRepository) LinkEventToIncident(_ context.Context, incidentID, eventID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.incidents[incidentID]; !exists {
		return ErrIncidentNotFound
	}

	if r.links[incidentID] == nil {
		r.links[incidentID] = make(map[string]bool)
	}
	r.links[incidentID][eventID] = true
	return nil
}

// LinkedEventCount returns how many distinct events are linked to an incident.
func (r *InMemoryRepository) LinkedEventCount(incidentID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.links[incidentID])
}

func (r *InMemoryRepository) CreateEvidence(_ context.Context, ev *models.EvidenceLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}

	cp := *ev
	r.evidence = append(r.evidence, &cp)
	return nil
}

func (r *InMemoryRepository) ListEvidence(_ context.Context, incidentID string) ([]*models.EvidenceLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	logs := []*models.EvidenceLog{}
	for _, ev := range r.evidence {
		if ev.IncidentID == incidentID {
			cp := *ev
			logs = append(logs, &cp)
		}
	}

	sort.Slice(logs, func(i, j int) bool {
		return logs[i].Timestamp.Before(logs[j].Timestamp)
	})

	return logs, nil
}

func (r *InMemoryRepository) CreateRule(_ context.Context, rule *models.SecurityRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	cp := *rule
	r.rules = append(r.rules, &cp)
	return nil
}

func (r *InMemoryRepository) ListRules(_ context.Context) ([]*models.SecurityRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rules := make([]*models.SecurityRule, 0, len(r.rules))
	for _, rule := range r.rules {
		cp := *rule
		rules = append(rules, &cp)
	}

	sort.Slice(rules, func(i, j int) bool {
		return rules[i].CreatedAt.After(rules[j].CreatedAt)
	})

	return rules, nil
}

func (r *InMemoryRepository) DeactivateUserProfile(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.profiles[userID]; !exists {
		return ErrProfileNotFound
	}

	r.profiles[userID] = false
	return nil
}

func (r *InMemoryRepository) Close() error {
	return nil
}
