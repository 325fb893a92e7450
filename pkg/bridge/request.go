package bridge

import (
	"time"
)

// RequestState tracks a pending request through its lifecycle.
type RequestState int

const (
	// StateQueued means the request is waiting for a free executor.
	StateQueued RequestState = iota

	// StateDispatched means the request is bound to an executor but no
	// frame has arrived yet.
	StateDispatched

	// StateStreaming means at least one data frame has reached the client.
	StateStreaming

	// StateCompleted means the success sentinel was delivered.
	StateCompleted

	// StateFailed means an error terminal event was delivered.
	StateFailed

	// StateCancelled means the client went away before a terminal event.
	StateCancelled
)

// String returns the lowercase state name used in logs and metrics labels.
func (s RequestState) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateDispatched:
		return "dispatched"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// TaskMessage is one rendered conversation message in the shape the executor
// forwards to the remote service.
type TaskMessage struct {
	Role        string   `json:"role"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments,omitempty"`
}

// Task is the unit of work handed to an executor: the request identity, the
// credential to interact under, and the rendered conversation.
type Task struct {
	RequestID  string
	Model      string
	Credential SessionCredential
	Messages   []TaskMessage
}

// Request is a chat completion accepted by the ingress layer, before dispatch.
type Request struct {
	// Model is the client-requested model name.
	Model string

	// Messages is the rendered conversation to replay.
	Messages []TaskMessage

	// Principal identifies the authenticated client, for usage logging.
	Principal string
}

// pendingRequest is the broker's book-keeping for one in-flight request.
// Fields after construction are guarded by the broker's correlation table
// critical section.
type pendingRequest struct {
	id         string
	model      string
	credential SessionCredential
	messages   []TaskMessage
	principal  string
	state      RequestState
	executorID string
	retried    bool
	enqueuedAt time.Time
	dispatched time.Time
}
