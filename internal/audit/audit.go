package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Kind discriminates the three record shapes the engine emits.
type Kind string

const (
	// KindBehavior records a user-visible action (login, logout,
	// refresh, quota denial) with its provenance.
	KindBehavior Kind = "user_behavior"
	// KindMutation records a database mutation with before/after
	// snapshots.
	KindMutation Kind = "db_mutation"
	// KindExternalCall records an outbound call to a collaborator,
	// such as OTP delivery.
	KindExternalCall Kind = "external_call"
)

// Event is the canonical audit record. Only the fields relevant to its
// Kind are populated.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`

	// Behavior fields.
	Action    string `json:"action,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	IP        string `json:"ip,omitempty"`
	Device    string `json:"device,omitempty"`

	// Mutation fields.
	Table     string         `json:"table,omitempty"`
	Operation string         `json:"operation,omitempty"`
	RecordID  string         `json:"record_id,omitempty"`
	Before    map[string]any `json:"before,omitempty"`
	After     map[string]any `json:"after,omitempty"`

	// External-call fields.
	Target string `json:"target,omitempty"`

	Success  bool              `json:"success"`
	Error    string            `json:"error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Sink receives emitted audit events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink writes audit events into a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{events: make(chan Event, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{writer: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.writer == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, _ = s.writer.Write(data)
	_, _ = s.writer.Write([]byte("\n"))
}
