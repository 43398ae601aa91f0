package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	EventsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gsocc_events_ingested_total",
			Help: "Total number of security events ingested",
		},
		[]string{"event_type", "severity"},
	)

	IngestFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gsocc_ingest_failures_total",
			Help: "Total number of events dropped due to persistence failures",
		},
	)

	// Orchestration metrics
	IncidentsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gsocc_incidents_raised_total",
			Help: "Total number of incidents created",
		},
		[]string{"severity"},
	)

	IncidentsDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gsocc_incidents_deduplicated_total",
			Help: "Total number of escalations folded into an existing incident",
		},
	)

	OrchestratorErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gsocc_orchestrator_errors_total",
			Help: "Total number of errors caught at the orchestrator boundary",
		},
	)

	EscalationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gsocc_escalation_duration_seconds",
			Help:    "Duration of the correlate-and-raise path in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Containment metrics
	ContainmentActions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gsocc_containment_actions_total",
			Help: "Total number of automated containment actions executed",
		},
		[]string{"action"},
	)

	SafeHavenBypasses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gsocc_safe_haven_bypasses_total",
			Help: "Total number of containment actions bypassed for protected targets",
		},
		[]string{"action"},
	)

	ContainmentFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gsocc_containment_failures_total",
			Help: "Total number of errors caught at the containment boundary",
		},
	)
)
