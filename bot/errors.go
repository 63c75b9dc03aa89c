package bot

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure taxonomy. Sources and collaborators wrap the
// underlying cause with %w so callers can classify with errors.Is.
var (
	// ErrQuotaExceeded signals the metered polling collaborator has exhausted
	// its call quota. Terminal for the session; the loop degrades, never crashes.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrStreamEnded signals the remote stream itself has finished.
	ErrStreamEnded = errors.New("stream ended")

	// ErrRateLimited marks a generation attempt rejected by the collaborator's
	// rate limiter; the router skips silently.
	ErrRateLimited = errors.New("rate limited")
)

// AuthError is fatal: credentials are invalid or expired. The loop does not
// start (or stops) and the operator is surfaced the cause.
type AuthError struct {
	Provider string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth failure (%s): %v", e.Provider, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
