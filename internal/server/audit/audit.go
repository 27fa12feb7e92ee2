// Package audit defines the structured events the version-control engine
// emits and the sink contract it emits them through. Durable audit storage
// (hash-chained logs, dashboards) lives outside this service; the engine
// only calls the sink.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/ry86pkqf74-rgb/researchflow-production-sub006/internal/logging"
)

type EventType string

const (
	EventBranchCreated     EventType = "BRANCH_CREATED"
	EventBranchMerged      EventType = "BRANCH_MERGED"
	EventBranchDeleted     EventType = "BRANCH_DELETED"
	EventVersionCommitted  EventType = "VERSION_COMMITTED"
	EventVersionRolledBack EventType = "VERSION_ROLLED_BACK"
	EventVersionArchived   EventType = "VERSION_ARCHIVED"
)

// Event carries artifact/branch/actor metadata for one engine operation.
type Event struct {
	Type       EventType
	ArtifactID string
	Branch     string
	VersionID  string
	Actor      string
	At         time.Time
	Details    map[string]string
}

// Sink accepts audit events. Implementations must not block the calling
// operation for long; slow delivery belongs behind a queue on the sink side.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// LogSink writes events to the structured logger. It is the default wiring
// when no external audit collaborator is configured.
type LogSink struct {
	logger logging.Logger
}

func NewLogSink(logger logging.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(ctx context.Context, e Event) {
	args := []any{
		"type", string(e.Type),
		"artifact_id", e.ArtifactID,
		"branch", e.Branch,
		"actor", e.Actor,
	}
	if e.VersionID != "" {
		args = append(args, "version_id", e.VersionID)
	}
	for k, v := range e.Details {
		args = append(args, k, v)
	}
	s.logger.Info(ctx, "audit event", args...)
}

// MultiSink fans an event out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		s.Emit(ctx, e)
	}
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Emit(ctx context.Context, e Event) {}

// RecordingSink retains emitted events for assertions in tests.
type RecordingSink struct {
	mu     sync.Mutex
	events []Event
}

func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

func (s *RecordingSink) Emit(ctx context.Context, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns a copy of everything emitted so far.
func (s *RecordingSink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
