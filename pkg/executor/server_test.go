package executor

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mercator-hq/ganymede/pkg/bridge"
	"mercator-hq/ganymede/pkg/wire"
)

type fakeBroker struct {
	mu           sync.Mutex
	registered   map[string]string
	sender       bridge.TaskSender
	heartbeats   int
	deregistered []string
	routed       []string
	rejectToken  string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{registered: make(map[string]string)}
}

func (f *fakeBroker) RegisterExecutor(id, token string, sender bridge.TaskSender) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token == f.rejectToken {
		return "", &bridge.AuthError{Subject: id, Reason: "unknown token"}
	}
	f.registered[id] = token
	f.sender = sender
	return "test-principal", nil
}

func (f *fakeBroker) HeartbeatExecutor(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats++
	return true
}

func (f *fakeBroker) DeregisterExecutor(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deregistered = append(f.deregistered, id)
}

func (f *fakeBroker) RouteFrame(requestID string, data json.RawMessage) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routed = append(f.routed, requestID)
}

func dialHandler(t *testing.T, h *Handler) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(h)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func sendFrame(t *testing.T, conn *websocket.Conn, env *wire.Envelope) {
	t.Helper()
	data, err := wire.Encode(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) *wire.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	env, err := wire.Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env
}

func helloEnvelope(id, token string) *wire.Envelope {
	return &wire.Envelope{
		Kind:  wire.KindHello,
		Hello: &wire.HelloFrame{ExecutorID: id, AuthToken: token},
	}
}

func TestHandshakeAccepted(t *testing.T) {
	broker := newFakeBroker()
	h := NewHandler(broker, DefaultHandlerConfig())

	conn, cleanup := dialHandler(t, h)
	defer cleanup()

	sendFrame(t, conn, helloEnvelope("exec-1", "token-1"))

	env := readFrame(t, conn)
	if env.Kind != wire.KindRegistered {
		t.Fatalf("expected registered frame, got %q", env.Kind)
	}
	if !env.Registered.Accepted {
		t.Fatalf("expected acceptance, got rejection: %s", env.Registered.Reason)
	}

	broker.mu.Lock()
	defer broker.mu.Unlock()
	if broker.registered["exec-1"] != "token-1" {
		t.Fatalf("executor not registered with broker: %v", broker.registered)
	}
}

func TestHandshakeRejectedBadToken(t *testing.T) {
	broker := newFakeBroker()
	broker.rejectToken = "bad"
	h := NewHandler(broker, DefaultHandlerConfig())

	conn, cleanup := dialHandler(t, h)
	defer cleanup()

	sendFrame(t, conn, helloEnvelope("exec-1", "bad"))

	env := readFrame(t, conn)
	if env.Kind != wire.KindRegistered {
		t.Fatalf("expected registered frame, got %q", env.Kind)
	}
	if env.Registered.Accepted {
		t.Fatal("expected rejection for bad token")
	}

	// The server closes the socket after a rejection.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected socket close after rejection")
	}
}

func TestHandshakeRequiresHelloFirst(t *testing.T) {
	broker := newFakeBroker()
	h := NewHandler(broker, DefaultHandlerConfig())

	conn, cleanup := dialHandler(t, h)
	defer cleanup()

	sendFrame(t, conn, &wire.Envelope{Kind: wire.KindHeartbeat})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected socket close when first frame is not hello")
	}

	broker.mu.Lock()
	defer broker.mu.Unlock()
	if len(broker.registered) != 0 {
		t.Fatalf("executor should not be registered: %v", broker.registered)
	}
}

func TestDataFramesRouted(t *testing.T) {
	broker := newFakeBroker()
	h := NewHandler(broker, DefaultHandlerConfig())

	conn, cleanup := dialHandler(t, h)
	defer cleanup()

	sendFrame(t, conn, helloEnvelope("exec-1", "token-1"))
	if env := readFrame(t, conn); !env.Registered.Accepted {
		t.Fatal("registration rejected")
	}

	chunk, _ := json.Marshal("hello world")
	sendFrame(t, conn, &wire.Envelope{
		Kind: wire.KindData,
		Data: &wire.DataFrame{RequestID: "req-1", Data: chunk},
	})

	waitFor(t, func() bool {
		broker.mu.Lock()
		defer broker.mu.Unlock()
		return len(broker.routed) == 1 && broker.routed[0] == "req-1"
	})
}

func TestHeartbeatFramesForwarded(t *testing.T) {
	broker := newFakeBroker()
	h := NewHandler(broker, DefaultHandlerConfig())

	conn, cleanup := dialHandler(t, h)
	defer cleanup()

	sendFrame(t, conn, helloEnvelope("exec-1", "token-1"))
	if env := readFrame(t, conn); !env.Registered.Accepted {
		t.Fatal("registration rejected")
	}

	sendFrame(t, conn, &wire.Envelope{Kind: wire.KindHeartbeat})

	waitFor(t, func() bool {
		broker.mu.Lock()
		defer broker.mu.Unlock()
		return broker.heartbeats >= 1
	})
}

func TestMalformedFrameDropped(t *testing.T) {
	broker := newFakeBroker()
	h := NewHandler(broker, DefaultHandlerConfig())

	conn, cleanup := dialHandler(t, h)
	defer cleanup()

	sendFrame(t, conn, helloEnvelope("exec-1", "token-1"))
	if env := readFrame(t, conn); !env.Registered.Accepted {
		t.Fatal("registration rejected")
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Connection stays up; a valid data frame after garbage still routes.
	chunk, _ := json.Marshal("still alive")
	sendFrame(t, conn, &wire.Envelope{
		Kind: wire.KindData,
		Data: &wire.DataFrame{RequestID: "req-2", Data: chunk},
	})

	waitFor(t, func() bool {
		broker.mu.Lock()
		defer broker.mu.Unlock()
		return len(broker.routed) == 1 && broker.routed[0] == "req-2"
	})
}

func TestDisconnectDeregisters(t *testing.T) {
	broker := newFakeBroker()
	h := NewHandler(broker, DefaultHandlerConfig())

	conn, cleanup := dialHandler(t, h)
	defer cleanup()

	sendFrame(t, conn, helloEnvelope("exec-1", "token-1"))
	if env := readFrame(t, conn); !env.Registered.Accepted {
		t.Fatal("registration rejected")
	}

	conn.Close()

	waitFor(t, func() bool {
		broker.mu.Lock()
		defer broker.mu.Unlock()
		return len(broker.deregistered) == 1 && broker.deregistered[0] == "exec-1"
	})
}

func TestChannelSendTask(t *testing.T) {
	broker := newFakeBroker()
	h := NewHandler(broker, DefaultHandlerConfig())

	conn, cleanup := dialHandler(t, h)
	defer cleanup()

	sendFrame(t, conn, helloEnvelope("exec-1", "token-1"))
	if env := readFrame(t, conn); !env.Registered.Accepted {
		t.Fatal("registration rejected")
	}

	waitFor(t, func() bool {
		broker.mu.Lock()
		defer broker.mu.Unlock()
		return broker.sender != nil
	})

	broker.mu.Lock()
	sender := broker.sender
	broker.mu.Unlock()

	task := bridge.Task{
		RequestID: "req-42",
		Model:     "test-model",
		Credential: bridge.SessionCredential{
			SessionID: "sess-1",
			MessageID: "msg-1",
			Mode:      bridge.ModeDirectChat,
		},
		Messages: []bridge.TaskMessage{{Role: "user", Content: "hi"}},
	}
	if err := sender.SendTask(task); err != nil {
		t.Fatalf("send task: %v", err)
	}

	env := readFrame(t, conn)
	if env.Kind != wire.KindTask {
		t.Fatalf("expected task frame, got %q", env.Kind)
	}
	if env.Task.RequestID != "req-42" || env.Task.Model != "test-model" {
		t.Fatalf("task frame mismatch: %+v", env.Task)
	}
	if env.Task.Credential.SessionID != "sess-1" {
		t.Fatalf("credential not carried: %+v", env.Task.Credential)
	}
}

func TestChannelSendAfterClose(t *testing.T) {
	broker := newFakeBroker()
	h := NewHandler(broker, DefaultHandlerConfig())

	conn, cleanup := dialHandler(t, h)
	defer cleanup()

	sendFrame(t, conn, helloEnvelope("exec-1", "token-1"))
	if env := readFrame(t, conn); !env.Registered.Accepted {
		t.Fatal("registration rejected")
	}

	waitFor(t, func() bool {
		broker.mu.Lock()
		defer broker.mu.Unlock()
		return broker.sender != nil
	})
	broker.mu.Lock()
	sender := broker.sender
	broker.mu.Unlock()

	conn.Close()
	waitFor(t, func() bool {
		broker.mu.Lock()
		defer broker.mu.Unlock()
		return len(broker.deregistered) == 1
	})

	err := sender.SendAbort("req-1")
	if err == nil {
		t.Fatal("expected error sending on a closed channel")
	}
	if !errors.Is(err, errChannelClosed) {
		t.Fatalf("expected errChannelClosed, got %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
