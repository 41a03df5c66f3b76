package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/kanenguyen264/library-management-sub001/token"
)

var (
	// ErrInvalidCredentials covers both unknown identifiers and wrong
	// passwords. The two cases are deliberately indistinguishable to the
	// caller so account existence cannot be probed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountDisabled is returned for inactive accounts.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrUserNotFound is returned by UserStore implementations when no
	// record matches. Flows translate it before it reaches callers.
	ErrUserNotFound = errors.New("user not found")
	// ErrNotFound covers unknown or expired opaque tokens (email
	// verification, password reset) and missing resources.
	ErrNotFound = errors.New("not found")
	// ErrUsernameTaken and ErrEmailTaken are registration conflicts.
	ErrUsernameTaken = errors.New("username already taken")
	ErrEmailTaken    = errors.New("email already registered")
	// ErrInvalidCode is a two-factor code mismatch.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrInvalidInput is a malformed request (missing social provider
	// fields, bad email format).
	ErrInvalidInput = errors.New("invalid input")
	// ErrWeakPassword is the sentinel behind PolicyError.
	ErrWeakPassword = errors.New("password too weak")
	// ErrPasswordReuse rejects a new password equal to the current one.
	ErrPasswordReuse = errors.New("new password must differ from current password")
	// ErrRateLimited is the sentinel behind RateLimitError.
	ErrRateLimited = errors.New("rate limit exceeded")

	// Token errors are re-exported so callers need only this package.
	ErrTokenExpired = token.ErrTokenExpired
	ErrTokenInvalid = token.ErrTokenInvalid
)

// RateLimitError reports an exceeded budget together with how long the
// caller must wait. It unwraps to ErrRateLimited.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// PolicyError reports a password-policy violation with a human-readable
// reason suitable for display. It unwraps to ErrWeakPassword.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string {
	return "password too weak: " + e.Reason
}

func (e *PolicyError) Is(target error) bool {
	return target == ErrWeakPassword
}

// RetryAfter extracts the wait duration from a rate-limit error, or zero.
func RetryAfter(err error) time.Duration {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle.RetryAfter
	}
	return 0
}
