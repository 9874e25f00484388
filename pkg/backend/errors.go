package backend

import (
	"errors"
	"fmt"
)

// ErrNotConfigured signals that no backend base URL is set. Handlers map it
// to a specific user-facing message instead of the generic failure text.
var ErrNotConfigured = errors.New("AGENT_API_URL is not configured")

// StatusError reports a non-2xx HTTP status from the backend.
type StatusError struct {
	Status int
	Label  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend %s request returned status %d", e.Label, e.Status)
}

// Retryable reports whether the status indicates a transient server
// condition worth another attempt.
func (e *StatusError) Retryable() bool {
	return retryableStatus[e.Status]
}

// ProtocolError reports a 2xx response that violates the backend contract,
// for example a body missing the expected field. Never retried: the backend
// answered, it just answered wrong.
type ProtocolError struct {
	Label string
	Field string
	cause error
}

func (e *ProtocolError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("missing %q field in backend %s response", e.Field, e.Label)
	}

	return fmt.Sprintf("invalid backend %s response: %v", e.Label, e.cause)
}

func (e *ProtocolError) Unwrap() error {
	return e.cause
}
