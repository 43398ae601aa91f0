package models

import "time"

// EventType classifies a security-relevant occurrence observed by the platform.
type EventType string

const (
	EventLoginFailed         EventType = "LOGIN_FAILED"
	EventRateLimitExceeded   EventType = "RATE_LIMIT_EXCEEDED"
	EventSQLInjectionAttempt EventType = "SQL_INJECTION_ATTEMPT"
	EventXSSAttempt          EventType = "XSS_ATTEMPT"
	EventUnauthorizedAccess  EventType = "UNAUTHORIZED_ACCESS"
	EventAnomalousBehavior   EventType = "ANOMALOUS_BEHAVIOR"
	EventSystemError         EventType = "SYSTEM_ERROR"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventLoginFailed, EventRateLimitExceeded, EventSQLInjectionAttempt,
		EventXSSAttempt, EventUnauthorizedAccess, EventAnomalousBehavior,
		EventSystemError:
		return true
	}
	return false
}

// Severity is the assessed impact level of an event or incident.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// IncidentStatus is the lifecycle state of an incident. Progression is
// linear: OPEN -> INVESTIGATING -> CONTAINED -> RESOLVED -> CLOSED.
type IncidentStatus string

const (
	IncidentOpen          IncidentStatus = "OPEN"
	IncidentInvestigating IncidentStatus = "INVESTIGATING"
	IncidentContained     IncidentStatus = "CONTAINED"
	IncidentResolved      IncidentStatus = "RESOLVED"
	IncidentClosed        IncidentStatus = "CLOSED"
)

// rank maps each status onto the linear lifecycle so transitions can be
// checked without enumerating every pair.
func (s IncidentStatus) rank() int {
	switch s {
	case IncidentOpen:
		return 0
	case IncidentInvestigating:
		return 1
	case IncidentContained:
		return 2
	case IncidentResolved:
		return 3
	case IncidentClosed:
		return 4
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next respects the linear
// lifecycle (forward only, no skipping backward).
func (s IncidentStatus) CanTransitionTo(next IncidentStatus) bool {
	a, b := s.rank(), next.rank()
	return a >= 0 && b >= 0 && b > a
}

// ActionTaken identifies an automated containment action recorded as evidence.
type ActionTaken string

const (
	ActionIPBlocked       ActionTaken = "IP_BLOCKED"
	ActionAccountIsolated ActionTaken = "ACCOUNT_ISOLATED"
	ActionSessionKilled   ActionTaken = "SESSION_KILLED"
)

// RuleType classifies a standing enforcement rule.
type RuleType string

const (
	RuleIPBlock         RuleType = "IP_BLOCK"
	RuleUserIsolate     RuleType = "USER_ISOLATE"
	RuleRateLimitAdjust RuleType = "RATE_LIMIT_ADJUST"
	RuleCustom          RuleType = "CUSTOM"
)

// RuleAction is what the enforcement layer does with a matching rule.
type RuleAction string

const (
	RuleActionBlock   RuleAction = "BLOCK"
	RuleActionLog     RuleAction = "LOG"
	RuleActionAlert   RuleAction = "ALERT"
	RuleActionIsolate RuleAction = "ISOLATE"
)

// SecurityEvent is a single observed security-relevant occurrence.
// Immutable once persisted, except for linkage to incidents.
type SecurityEvent struct {
	ID        string                 `json:"id"`
	EventType EventType              `json:"event_type"`
	Severity  Severity               `json:"severity"`
	SourceIP  string                 `json:"source_ip,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Endpoint  string                 `json:"endpoint,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	RiskScore int                    `json:"risk_score"`
	CreatedAt time.Time              `json:"created_at"`
}

// Incident is a correlated, actionable security case. One incident
// aggregates many events and many evidence logs; incidents are never deleted.
type Incident struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Status         IncidentStatus `json:"status"`
	Severity       Severity       `json:"severity"`
	Description    string         `json:"description"`
	RootCause      string         `json:"root_cause"`
	CorrelationKey string         `json:"correlation_key,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      *time.Time     `json:"updated_at,omitempty"`
}

// EvidenceLog is an immutable, append-only proof of an automated action.
// The hash signature binds incident id, action, snapshot, and timestamp.
type EvidenceLog struct {
	ID               string                 `json:"id"`
	IncidentID       string                 `json:"incident_id"`
	ActionTaken      ActionTaken            `json:"action_taken"`
	ExecutedBy       string                 `json:"executed_by"`
	EvidenceSnapshot map[string]interface{} `json:"evidence_snapshot"`
	HashSignature    string                 `json:"hash_signature"`
	Timestamp        time.Time              `json:"timestamp"`
}

// SecurityRule is a standing enforcement directive produced by containment.
type SecurityRule struct {
	ID          string     `json:"id"`
	RuleType    RuleType   `json:"rule_type"`
	TargetValue string     `json:"target_value"`
	Action      RuleAction `json:"action"`
	Reason      string     `json:"reason"`
	IncidentID  string     `json:"incident_id"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IngestRequest is the inbound shape for event ingestion: a SecurityEvent
// minus the generated fields.
type IngestRequest struct {
	EventType EventType              `json:"event_type"`
	Severity  Severity               `json:"severity"`
	SourceIP  string                 `json:"source_ip,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Endpoint  string                 `json:"endpoint,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// ListIncidentsRequest holds query parameters for listing incidents.
type ListIncidentsRequest struct {
	Page     int
	Limit    int
	Status   IncidentStatus
	Severity Severity
}

// ListIncidentsResponse is the paginated incident listing.
type ListIncidentsResponse struct {
	Incidents  []*Incident `json:"incidents"`
	Pagination Pagination  `json:"pagination"`
}

// Pagination carries paging metadata for list responses.
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// EvidenceVerification reports the integrity check result for one
// evidence row.
type EvidenceVerification struct {
	EvidenceID string `json:"evidence_id"`
	Valid      bool   `json:"valid"`
}
