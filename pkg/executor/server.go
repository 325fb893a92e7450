package executor

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"mercator-hq/ganymede/pkg/bridge"
	"mercator-hq/ganymede/pkg/wire"
)

// Broker is the slice of the bridge the executor channel needs.
type Broker interface {
	RegisterExecutor(id, token string, sender bridge.TaskSender) (string, error)
	HeartbeatExecutor(id string) bool
	DeregisterExecutor(id string)
	RouteFrame(requestID string, data json.RawMessage)
}

// HandlerConfig carries the channel's timing knobs.
type HandlerConfig struct {
	// HandshakeTimeout bounds how long a fresh socket may take to send its
	// hello frame.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds individual socket writes.
	WriteTimeout time.Duration

	// PingInterval is how often the write pump pings the executor.
	PingInterval time.Duration

	// PongWait is how long the read pump waits for any inbound traffic
	// before treating the socket as dead. Must exceed PingInterval.
	PongWait time.Duration

	// AllowedOrigins restricts browser-based executors. Empty allows all,
	// since executors authenticate with a token anyway.
	AllowedOrigins []string
}

// DefaultHandlerConfig returns the timing defaults.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     20 * time.Second,
		PongWait:         60 * time.Second,
	}
}

// Handler upgrades executor connections and runs their read/write pumps.
type Handler struct {
	broker Broker
	cfg    HandlerConfig
	logger *slog.Logger
}

// NewHandler creates the executor channel endpoint.
func NewHandler(broker Broker, cfg HandlerConfig) *Handler {
	if cfg.HandshakeTimeout <= 0 {
		cfg = DefaultHandlerConfig()
	}
	return &Handler{
		broker: broker,
		cfg:    cfg,
		logger: slog.Default().With("component", "executor.channel"),
	}
}

// ServeHTTP implements http.Handler. The first frame on a fresh socket must
// be a hello carrying the executor's auth token; the broker replies with a
// registered frame and either starts the pumps or closes the socket.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r, h.cfg.AllowedOrigins)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	hello, err := h.readHello(conn)
	if err != nil {
		h.logger.Warn("executor handshake failed", "remote_addr", r.RemoteAddr, "error", err)
		conn.Close()
		return
	}

	id := hello.ExecutorID
	if id == "" {
		id = uuid.NewString()
	}

	ch := newChannel(conn, h.cfg.WriteTimeout, h.cfg.PingInterval)
	principal, err := h.broker.RegisterExecutor(id, hello.AuthToken, ch)
	if err != nil {
		h.reply(conn, wire.NewRegistered(false, err.Error()))
		conn.Close()
		return
	}

	go ch.writePump()
	if err := ch.enqueue(wire.NewRegistered(true, "")); err != nil {
		h.broker.DeregisterExecutor(id)
		ch.close()
		return
	}

	h.logger.Info("executor connected",
		"executor_id", id,
		"principal", principal,
		"remote_addr", r.RemoteAddr,
	)

	h.readPump(id, conn, ch)
}

// readHello waits for the registration frame within the handshake deadline.
func (h *Handler) readHello(conn *websocket.Conn) (*wire.HelloFrame, error) {
	if err := conn.SetReadDeadline(time.Now().Add(h.cfg.HandshakeTimeout)); err != nil {
		return nil, err
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	env, err := wire.Decode(data)
	if err != nil {
		return nil, err
	}
	if env.Kind != wire.KindHello {
		return nil, &bridge.AuthError{Subject: "executor", Reason: "expected hello frame"}
	}
	return env.Hello, nil
}

// reply writes a single frame synchronously, used before the write pump
// starts.
func (h *Handler) reply(conn *websocket.Conn, env *wire.Envelope) {
	data, err := wire.Encode(env)
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

// readPump consumes frames until the socket dies, then deregisters the
// executor so the broker can requeue or fail whatever it owned.
func (h *Handler) readPump(id string, conn *websocket.Conn, ch *channel) {
	defer func() {
		ch.close()
		h.broker.DeregisterExecutor(id)
	}()

	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		h.broker.HeartbeatExecutor(id)
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("executor connection lost", "executor_id", id, "error", err)
			} else {
				h.logger.Info("executor disconnected", "executor_id", id)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		env, err := wire.Decode(data)
		if err != nil {
			// Malformed frames are logged and dropped, never fatal.
			h.logger.Warn("dropping malformed executor frame", "executor_id", id, "error", err)
			continue
		}

		switch env.Kind {
		case wire.KindHeartbeat:
			h.broker.HeartbeatExecutor(id)
		case wire.KindData:
			h.broker.HeartbeatExecutor(id)
			h.broker.RouteFrame(env.Data.RequestID, env.Data.Data)
		case wire.KindHello:
			h.logger.Warn("duplicate hello frame ignored", "executor_id", id)
		default:
			h.logger.Warn("dropping unexpected frame from executor",
				"executor_id", id,
				"kind", string(env.Kind),
			)
		}
	}
}

// originAllowed applies the configured origin allow-list. Non-browser
// executors send no Origin header and always pass.
func originAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
