package bridge

import "fmt"

// AuthError indicates an invalid or missing client or executor token.
// It is surfaced as HTTP 401 and never retried.
type AuthError struct {
	// Subject identifies what failed authentication ("client" or "executor").
	Subject string

	// Reason is a human-readable explanation.
	Reason string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("%s authentication failed: %s", e.Subject, e.Reason)
}

// NoMappingError indicates the requested model has no configured credential
// pool and fallback is disabled. It is surfaced before any dispatch attempt.
type NoMappingError struct {
	Model string
}

// Error implements the error interface.
func (e *NoMappingError) Error() string {
	return fmt.Sprintf("no session credentials configured for model %q", e.Model)
}

// NoWorkersError indicates no executor was ready and the reject-on-empty
// policy is active. Clients must retry; the broker does not.
type NoWorkersError struct {
	Model string
}

// Error implements the error interface.
func (e *NoWorkersError) Error() string {
	return fmt.Sprintf("no executors available to serve model %q", e.Model)
}

// TimeoutError indicates one of the three broker timeouts expired: queue
// wait, per-chunk inactivity while streaming, or total stream duration.
type TimeoutError struct {
	// Phase is "queue", "stream_inactivity", or "stream_duration".
	Phase string

	// RequestID is the affected request, empty for queue timeouts that
	// never reached dispatch.
	RequestID string
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	switch e.Phase {
	case "queue":
		return "timed out waiting for a free executor"
	case "stream_inactivity":
		return "executor stopped sending data mid-stream"
	default:
		return "request exceeded the maximum stream duration"
	}
}

// ExecutorTransportError indicates the executor connection dropped while a
// request was dispatched or streaming. The broker terminates the client's
// stream with an error rather than re-dispatching, because the remote
// interaction may already have side effects.
type ExecutorTransportError struct {
	ExecutorID string
	RequestID  string
	Cause      error
}

// Error implements the error interface.
func (e *ExecutorTransportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("executor %s lost while serving request: %v", e.ExecutorID, e.Cause)
	}
	return fmt.Sprintf("executor %s disconnected while serving request", e.ExecutorID)
}

// Unwrap returns the underlying transport error, if any.
func (e *ExecutorTransportError) Unwrap() error {
	return e.Cause
}
