package audit

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/tenantguard/pkg/contextkeys"
	"github.com/platinummonkey/tenantguard/pkg/observability"
)

// Sink receives role change events
type Sink interface {
	Append(ctx context.Context, event *RoleChangeEvent) error
}

// Reader queries recorded role change events, newest first
type Reader interface {
	List(ctx context.Context, filter Filter) ([]*RoleChangeEvent, error)
}

// prepare fills the ID, timestamp and request ID when the caller left them empty
func prepare(ctx context.Context, event *RoleChangeEvent) {
	if event.ID == "" {
		event.ID = NewEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.RequestID == "" {
		event.RequestID = contextkeys.GetRequestID(ctx)
	}
}

// MultiSink appends to several sinks. Every sink is attempted and the
// failures are joined.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a sink writing to every given destination
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// Append implements Sink
func (m *MultiSink) Append(ctx context.Context, event *RoleChangeEvent) error {
	prepare(ctx, event)

	var errs []error
	for _, s := range m.sinks {
		if err := s.Append(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes events to the structured logger
type LogSink struct {
	logger *observability.Logger
}

// NewLogSink creates a sink that logs every event at info level
func NewLogSink(logger *observability.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Append implements Sink
func (l *LogSink) Append(ctx context.Context, event *RoleChangeEvent) error {
	prepare(ctx, event)

	fields := map[string]interface{}{
		"event_id":        event.ID,
		"scope":           string(event.Scope),
		"action":          string(event.Action),
		"organization_id": event.OrganizationID,
		"target_actor_id": event.TargetActorID,
		"performed_by":    event.PerformedBy,
		"old_role":        event.OldRole,
		"new_role":        event.NewRole,
	}
	if event.ProjectID != nil {
		fields["project_id"] = *event.ProjectID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	l.logger.WithFields(fields).Info("role change")
	return nil
}

// MemorySink keeps events in memory. It backs tests and single-process
// development setups.
type MemorySink struct {
	mu     sync.Mutex
	events []*RoleChangeEvent
}

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Append implements Sink
func (m *MemorySink) Append(ctx context.Context, event *RoleChangeEvent) error {
	prepare(ctx, event)

	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *event
	m.events = append(m.events, &copied)
	return nil
}

// List implements Reader
func (m *MemorySink) List(ctx context.Context, filter Filter) ([]*RoleChangeEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*RoleChangeEvent
	for _, e := range m.events {
		if filter.matches(e) {
			copied := *e
			out = append(out, &copied)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > filter.limit() {
		out = out[:filter.limit()]
	}
	return out, nil
}

// Events returns every recorded event in append order
func (m *MemorySink) Events() []RoleChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]RoleChangeEvent, len(m.events))
	for i, e := range m.events {
		out[i] = *e
	}
	return out
}
