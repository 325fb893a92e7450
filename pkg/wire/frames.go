package wire

import (
	"encoding/json"
	"fmt"

	"mercator-hq/ganymede/pkg/bridge"
)

// Kind discriminates the frame types on the executor channel.
type Kind string

const (
	// Broker to executor.

	// KindTask carries one unit of work.
	KindTask Kind = "task"

	// KindAbort asks the executor to abandon a request, best effort.
	KindAbort Kind = "abort"

	// KindRefresh asks the executor to refresh its remote session.
	KindRefresh Kind = "refresh"

	// KindReconnect asks the executor to drop and re-establish its broker
	// connection.
	KindReconnect Kind = "reconnect"

	// KindCapability forwards an opaque capability-activation command.
	KindCapability Kind = "capability"

	// KindRegistered is the broker's reply to a hello frame.
	KindRegistered Kind = "registered"

	// Executor to broker.

	// KindHello opens the registration handshake.
	KindHello Kind = "hello"

	// KindHeartbeat refreshes the executor's liveness.
	KindHeartbeat Kind = "heartbeat"

	// KindData carries one streamed result payload for a request.
	KindData Kind = "data"
)

// Envelope is the outer shape of every frame. Exactly one payload field is
// populated, matching Kind.
type Envelope struct {
	Kind Kind `json:"kind"`

	Task       *TaskFrame       `json:"task,omitempty"`
	Abort      *AbortFrame      `json:"abort,omitempty"`
	Capability *CapabilityFrame `json:"capability,omitempty"`
	Registered *RegisteredFrame `json:"registered,omitempty"`
	Hello      *HelloFrame      `json:"hello,omitempty"`
	Data       *DataFrame       `json:"data,omitempty"`
}

// TaskFrame binds a request to the credential and conversation the executor
// must replay against the remote service.
type TaskFrame struct {
	RequestID  string                   `json:"request_id"`
	Model      string                   `json:"model"`
	Credential bridge.SessionCredential `json:"session_credential"`
	Messages   []bridge.TaskMessage     `json:"messages"`
}

// AbortFrame tells the executor to stop working on a request.
type AbortFrame struct {
	RequestID string `json:"request_id"`
}

// CapabilityFrame is an opaque pass-through to executor-side helpers
// (file upload, model-list scraping, credential capture activation).
type CapabilityFrame struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RegisteredFrame is the broker's handshake reply.
type RegisteredFrame struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// HelloFrame is the executor's registration request. ExecutorID may be empty,
// in which case the broker assigns one.
type HelloFrame struct {
	ExecutorID string `json:"executor_id,omitempty"`
	AuthToken  string `json:"auth_token"`
}

// DataFrame carries one streamed payload. Data is a JSON string chunk, the
// "[DONE]" sentinel string, or an object with an "error" member; the broker's
// stream translator interprets it.
type DataFrame struct {
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

// Encode marshals a frame envelope.
func Encode(env *Envelope) ([]byte, error) {
	if err := validate(env); err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Decode unmarshals a frame envelope, rejecting unknown kinds and envelopes
// whose payload does not match their kind.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}
	if err := validate(&env); err != nil {
		return nil, err
	}
	return &env, nil
}

// validate checks that the envelope's payload matches its kind. The switch
// is exhaustive over Kind: a new kind cannot ship without a case here.
func validate(env *Envelope) error {
	switch env.Kind {
	case KindTask:
		if env.Task == nil {
			return fmt.Errorf("task frame missing payload")
		}
	case KindAbort:
		if env.Abort == nil {
			return fmt.Errorf("abort frame missing payload")
		}
	case KindCapability:
		if env.Capability == nil {
			return fmt.Errorf("capability frame missing payload")
		}
	case KindRegistered:
		if env.Registered == nil {
			return fmt.Errorf("registered frame missing payload")
		}
	case KindHello:
		if env.Hello == nil {
			return fmt.Errorf("hello frame missing payload")
		}
	case KindData:
		if env.Data == nil {
			return fmt.Errorf("data frame missing payload")
		}
	case KindRefresh, KindReconnect, KindHeartbeat:
		// No payload.
	default:
		return fmt.Errorf("unknown frame kind %q", env.Kind)
	}
	return nil
}

// NewTask wraps a broker task in its envelope.
func NewTask(task bridge.Task) *Envelope {
	return &Envelope{
		Kind: KindTask,
		Task: &TaskFrame{
			RequestID:  task.RequestID,
			Model:      task.Model,
			Credential: task.Credential,
			Messages:   task.Messages,
		},
	}
}

// NewAbort wraps an abort command.
func NewAbort(requestID string) *Envelope {
	return &Envelope{Kind: KindAbort, Abort: &AbortFrame{RequestID: requestID}}
}

// NewRegistered wraps a handshake reply.
func NewRegistered(accepted bool, reason string) *Envelope {
	return &Envelope{Kind: KindRegistered, Registered: &RegisteredFrame{Accepted: accepted, Reason: reason}}
}

// NewCapability wraps an opaque capability command.
func NewCapability(name string, payload json.RawMessage) *Envelope {
	return &Envelope{Kind: KindCapability, Capability: &CapabilityFrame{Name: name, Payload: payload}}
}
