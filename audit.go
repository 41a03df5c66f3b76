package auth

import (
	"io"

	"github.com/kanenguyen264/library-management-sub001/internal/audit"
)

// AuditEvent and AuditSink re-export the audit types so embedding
// applications only import this package.
type (
	AuditEvent = audit.Event
	AuditSink  = audit.Sink
)

// Audit event types, one per flow.
const (
	AuditAuthSuccess       = audit.EventAuthSuccess
	AuditAuthFailure       = audit.EventAuthFailure
	AuditRegistration      = audit.EventRegistration
	AuditTokenRefresh      = audit.EventTokenRefresh
	AuditTwoFactor         = audit.EventTwoFactor
	AuditEmailVerification = audit.EventEmailVerification
	AuditPasswordReset     = audit.EventPasswordReset
	AuditPasswordChange    = audit.EventPasswordChange
	AuditSocialLogin       = audit.EventSocialLogin
	AuditRateLimited       = audit.EventRateLimited
)

// NewAuditChannelSink returns a sink that buffers events on a channel for a
// collector goroutine.
func NewAuditChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewAuditJSONSink returns a sink that writes one JSON event per line.
func NewAuditJSONSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}
