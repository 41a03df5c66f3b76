// Package audit carries the structured authentication-log events emitted on
// every branch of every flow, and fans them out to a sink without ever
// blocking or failing the flow that emitted them.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Well-known event types. Details maps carry the branch-specific reason.
const (
	EventAuthSuccess       = "authentication_success"
	EventAuthFailure       = "authentication_failure"
	EventRegistration      = "user_registration"
	EventTokenRefresh      = "token_refresh"
	EventTwoFactor         = "two_factor"
	EventEmailVerification = "email_verification"
	EventPasswordReset     = "password_reset"
	EventPasswordChange    = "password_change"
	EventSocialLogin       = "social_login"
	EventRateLimited       = "rate_limited"
)

// Event is one authentication-log entry.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType string            `json:"event_type"`
	UserID    int64             `json:"user_id,omitempty"`
	IP        string            `json:"ip_address,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	Success   bool              `json:"success"`
	Error     string            `json:"error,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Sink receives dispatched events.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink discards all events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink buffers events in a channel for consumption by a collector
// goroutine (a database writer, a log shipper, a test).
type ChannelSink struct {
	events chan Event
}

// NewChannelSink creates a ChannelSink with the given buffer capacity.
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

// Events exposes the receiving end of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes one JSON object per line to w.
type JSONWriterSink struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewJSONWriterSink creates a JSONWriterSink writing to w.
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
