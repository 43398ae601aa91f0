// Package velocity tracks per-source-IP event rates over a sliding time
// window, feeding the orchestrator's velocity-based escalation rule.
package velocity

import (
	"context"
	"time"
)

// Tracker counts events per source IP inside a trailing window. The window
// is sliding and computed at evaluation time, not a fixed bucket.
type Tracker interface {
	// Observe records one event from the source IP at the given instant.
	Observe(ctx context.Context, sourceIP string, at time.Time) error
	// CountSince returns how many events the source IP produced at or after
	// the given instant.
	CountSince(ctx context.Context, sourceIP string, since time.Time) (int, error)
}

// EventCounter is the subset of the repository the datastore-backed tracker
// needs.
type EventCounter interface {
	CountEventsFromIP(ctx context.Context, sourceIP string, since time.Time) (int, error)
}

// DatastoreTracker counts directly against persisted events. Observe is a
// no-op because ingestion has already written the event before the
// orchestrator evaluates it.
type DatastoreTracker struct {
	counter EventCounter
}

func NewDatastoreTracker(counter EventCounter) *DatastoreTracker {
	return &DatastoreTracker{counter: counter}
}

func (t *DatastoreTracker) Observe(_ context.Context, _ string, _ time.Time) error {
	return nil
}

func (t *DatastoreTracker) CountSince(ctx context.Context, sourceIP string, since time.Time) (int, error) {
	return t.counter.CountEventsFromIP(ctx, sourceIP, since)
}
