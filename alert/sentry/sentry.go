// Package sentry delivers auth security alerts to Sentry.
package sentry

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	auth "github.com/kanenguyen264/library-management-sub001"
)

// Sink forwards alerts as Sentry events. Delivery is asynchronous; Close
// flushes the queue.
type Sink struct {
	hub *sentry.Hub
}

var _ auth.AlertSink = (*Sink)(nil)

// New creates a Sink with its own client so alert traffic never mixes with
// the host application's Sentry scope.
func New(dsn, environment string) (*Sink, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	})
	if err != nil {
		return nil, err
	}
	return &Sink{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Alert implements auth.AlertSink.
func (s *Sink) Alert(_ context.Context, a auth.Alert) error {
	event := sentry.NewEvent()
	event.Message = a.Title + ": " + a.Message
	event.Level = level(a.Severity)
	event.Tags = map[string]string{"component": "auth"}
	for _, tag := range a.Tags {
		event.Tags[tag] = "true"
	}

	s.hub.CaptureEvent(event)
	return nil
}

// Close flushes buffered events, waiting up to the given timeout.
func (s *Sink) Close(timeout time.Duration) {
	s.hub.Flush(timeout)
}

func level(sev auth.Severity) sentry.Level {
	switch sev {
	case auth.SeverityCritical:
		return sentry.LevelError
	case auth.SeverityWarning:
		return sentry.LevelWarning
	default:
		return sentry.LevelInfo
	}
}
