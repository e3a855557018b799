package hyphae

import "time"

// InvokeEventType represents the type of invocation event.
type InvokeEventType string

const (
	// InvokeEventAttempt is emitted before the outbound call is sent.
	InvokeEventAttempt InvokeEventType = "attempt"

	// InvokeEventSuccess is emitted when the upstream answered, whatever the status.
	InvokeEventSuccess InvokeEventType = "success"

	// InvokeEventFailure is emitted on timeout or network failure.
	InvokeEventFailure InvokeEventType = "failure"
)

// InvokeEvent represents an outbound invocation lifecycle event.
type InvokeEvent struct {
	// Type is the event type (attempt, success, failure).
	Type InvokeEventType

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// AgentID is the agent being invoked.
	AgentID string

	// Method is the outbound HTTP method.
	Method string

	// URL is the upstream URL, without query string.
	URL string

	// Paid is true when a payment header was forwarded.
	Paid bool

	// StatusCode is the upstream status (success only).
	StatusCode int

	// Error contains error details (failure only).
	Error error

	// Duration is the time taken for the outbound call.
	Duration time.Duration
}

// InvokeCallback handles invocation events.
// Callbacks run synchronously on the request path and should be fast.
type InvokeCallback func(InvokeEvent)
