package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ExecutorStatus is the lifecycle state of an executor connection.
type ExecutorStatus string

const (
	// StatusConnecting means the socket is open but the handshake has not
	// completed.
	StatusConnecting ExecutorStatus = "connecting"

	// StatusReady means the executor is authenticated and idle.
	StatusReady ExecutorStatus = "ready"

	// StatusBusy means the executor owns exactly one in-flight request.
	StatusBusy ExecutorStatus = "busy"

	// StatusDraining means the executor was asked to reconnect and accepts
	// no new work.
	StatusDraining ExecutorStatus = "draining"

	// StatusDisconnected means the executor has been removed.
	StatusDisconnected ExecutorStatus = "disconnected"
)

// TaskSender is the opaque capability an executor connection provides to the
// broker. Any transport (WebSocket, a test fake, a native client) satisfies
// the broker as long as it can deliver these frames.
type TaskSender interface {
	// SendTask delivers a task frame. An error means the executor never
	// received the task and it is safe to re-dispatch.
	SendTask(task Task) error

	// SendAbort asks the executor to abandon a request, best effort.
	SendAbort(requestID string) error

	// SendRefresh asks the executor to refresh its session with the remote
	// service.
	SendRefresh() error

	// SendReconnect asks the executor to drop and re-establish its
	// connection to the broker.
	SendReconnect() error

	// SendCapability forwards an opaque capability-activation command to
	// the executor side.
	SendCapability(name string, payload json.RawMessage) error
}

// executor is the registry's record for one connection. All fields are
// guarded by the registry mutex.
type executor struct {
	id             string
	principal      string
	sender         TaskSender
	status         ExecutorStatus
	connectedAt    time.Time
	lastHeartbeat  time.Time
	currentRequest string
	processed      int
	totalBusy      time.Duration
	busySince      time.Time
	lastError      string

	// draining marks a busy executor that was asked to drain; Release
	// parks it in Draining instead of returning it to the ready set.
	draining bool
}

// ExecutorInfo is a point-in-time snapshot of one executor, safe to hand to
// the ops endpoints.
type ExecutorInfo struct {
	ID             string         `json:"executor_id"`
	Principal      string         `json:"principal"`
	Status         ExecutorStatus `json:"status"`
	ConnectedAt    time.Time      `json:"connected_at"`
	LastHeartbeat  time.Time      `json:"last_heartbeat"`
	CurrentRequest string         `json:"current_request_id,omitempty"`
	Processed      int            `json:"requests_processed"`
	AvgBusySeconds float64        `json:"avg_busy_seconds"`
	Healthy        bool           `json:"healthy"`
	LastError      string         `json:"last_error,omitempty"`
}

// RegistryConfig carries the executor pool limits and the valid token set.
type RegistryConfig struct {
	// Tokens maps each valid executor auth token to the principal name it
	// authenticates as.
	Tokens map[string]string

	// RequireAuth, when false, accepts any token. Intended for local
	// development only.
	RequireAuth bool

	// MaxExecutors caps concurrent registrations. Zero means no cap.
	MaxExecutors int

	// HeartbeatTimeout is how long an executor may stay silent before the
	// reaper deregisters it.
	HeartbeatTimeout time.Duration

	// ReapInterval is how often the reaper sweeps. Defaults to half the
	// heartbeat timeout.
	ReapInterval time.Duration
}

// Registry tracks executor connections: identity, auth principal, health and
// availability. It owns the ExecutorConnection records exclusively; other
// components only see snapshots and opaque sender handles.
type Registry struct {
	mu        sync.Mutex
	cfg       RegistryConfig
	executors map[string]*executor
	order     []string
	rr        int
	logger    *slog.Logger

	// onDeregister is invoked after an executor is removed, outside the
	// registry critical section, with the request it owned (if any).
	onDeregister func(info ExecutorInfo, activeRequest string)

	// onReady is invoked whenever an executor becomes available, so the
	// queue can hand it to the oldest waiter.
	onReady func()
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = cfg.HeartbeatTimeout / 2
	}
	return &Registry{
		cfg:       cfg,
		executors: make(map[string]*executor),
		logger:    slog.Default().With("component", "bridge.registry"),
	}
}

// OnDeregister installs the broker's disconnect hook. Must be called before
// any executor registers.
func (r *Registry) OnDeregister(fn func(info ExecutorInfo, activeRequest string)) {
	r.onDeregister = fn
}

// OnReady installs the hook invoked when an executor becomes available.
func (r *Registry) OnReady(fn func()) {
	r.onReady = fn
}

// Register authenticates and admits an executor connection. On success the
// executor transitions straight to Ready.
func (r *Registry) Register(id, token string, sender TaskSender) (string, error) {
	principal, ok := r.cfg.Tokens[token]
	if !ok {
		if r.cfg.RequireAuth {
			r.logger.Warn("executor authentication failed", "executor_id", id)
			return "", &AuthError{Subject: "executor", Reason: "unrecognized token"}
		}
		principal = "unauthenticated"
	}

	r.mu.Lock()
	if r.cfg.MaxExecutors > 0 && len(r.executors) >= r.cfg.MaxExecutors {
		r.mu.Unlock()
		return "", fmt.Errorf("executor limit reached (%d)", r.cfg.MaxExecutors)
	}
	if _, exists := r.executors[id]; exists {
		r.mu.Unlock()
		return "", fmt.Errorf("executor %q is already registered", id)
	}

	now := time.Now()
	r.executors[id] = &executor{
		id:            id,
		principal:     principal,
		sender:        sender,
		status:        StatusReady,
		connectedAt:   now,
		lastHeartbeat: now,
	}
	r.order = append(r.order, id)
	total := len(r.executors)
	r.mu.Unlock()

	r.logger.Info("executor registered",
		"executor_id", id,
		"principal", principal,
		"total_executors", total,
	)

	if r.onReady != nil {
		r.onReady()
	}
	return principal, nil
}

// Heartbeat refreshes an executor's liveness timestamp.
func (r *Registry) Heartbeat(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ex, ok := r.executors[id]
	if !ok {
		return false
	}
	ex.lastHeartbeat = time.Now()
	return true
}

// Acquire selects a ready, healthy executor using round-robin over the
// registration order and atomically marks it busy with the request. It
// returns the executor's sender handle, or false when none is available.
// The same executor is never concurrently assigned twice: the status flip
// happens under the registry lock.
func (r *Registry) Acquire(requestID string) (string, TaskSender, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.order)
	for i := 0; i < n; i++ {
		id := r.order[(r.rr+i)%n]
		ex, ok := r.executors[id]
		if !ok || ex.status != StatusReady || !r.healthyLocked(ex) {
			continue
		}
		r.rr = (r.rr + i + 1) % n
		ex.status = StatusBusy
		ex.currentRequest = requestID
		ex.busySince = time.Now()
		return ex.id, ex.sender, true
	}
	return "", nil, false
}

// Release returns a busy executor to the ready set and records the outcome
// of the request it served. Unknown executors are ignored: the reaper or a
// socket close may have already removed them.
func (r *Registry) Release(id string, errMsg string) {
	r.mu.Lock()
	ex, ok := r.executors[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	if ex.status == StatusBusy {
		ex.totalBusy += time.Since(ex.busySince)
		ex.processed++
	}
	if ex.draining {
		ex.draining = false
		ex.status = StatusDraining
	} else {
		ex.status = StatusReady
	}
	becameReady := ex.status == StatusReady
	ex.currentRequest = ""
	ex.lastError = errMsg
	r.mu.Unlock()

	if becameReady && r.onReady != nil {
		r.onReady()
	}
}

// Detach clears the request an executor owns without freeing it, used when
// a task send failed and the request is being handled elsewhere. The
// subsequent Deregister then sees no active request.
func (r *Registry) Detach(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ex, ok := r.executors[id]; ok {
		ex.currentRequest = ""
	}
}

// Drain marks an executor as draining so it accepts no further tasks. Used
// before asking it to reconnect. A busy executor finishes its in-flight
// request first; Release then parks it in Draining instead of handing it
// new work.
func (r *Registry) Drain(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ex, ok := r.executors[id]
	if !ok {
		return
	}
	switch ex.status {
	case StatusReady:
		ex.status = StatusDraining
	case StatusBusy:
		ex.draining = true
	}
}

// Deregister removes an executor. The broker's OnDeregister hook receives
// the request the executor owned, if any, so it can requeue or fail it.
func (r *Registry) Deregister(id string) bool {
	r.mu.Lock()
	ex, ok := r.executors[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	ex.status = StatusDisconnected
	info := r.infoLocked(ex)
	active := ex.currentRequest
	delete(r.executors, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	remaining := len(r.executors)
	r.mu.Unlock()

	if active != "" {
		r.logger.Warn("executor removed while serving a request",
			"executor_id", id,
			"request_id", active,
		)
	}
	r.logger.Info("executor deregistered",
		"executor_id", id,
		"remaining_executors", remaining,
	)

	if r.onDeregister != nil {
		r.onDeregister(info, active)
	}
	return true
}

// Sender returns the sender handle for a specific executor.
func (r *Registry) Sender(id string) (TaskSender, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ex, ok := r.executors[id]
	if !ok {
		return nil, false
	}
	return ex.sender, true
}

// Snapshot returns a consistent view of every registered executor.
func (r *Registry) Snapshot() []ExecutorInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]ExecutorInfo, 0, len(r.executors))
	for _, id := range r.order {
		if ex, ok := r.executors[id]; ok {
			infos = append(infos, r.infoLocked(ex))
		}
	}
	return infos
}

// ReadyCount returns how many executors could accept a task right now.
func (r *Registry) ReadyCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	ready := 0
	for _, ex := range r.executors {
		if ex.status == StatusReady && r.healthyLocked(ex) {
			ready++
		}
	}
	return ready
}

// Run sweeps for executors that have missed heartbeats past the configured
// timeout and deregisters them. It blocks until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	if r.cfg.HeartbeatTimeout <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(r.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reap()
		}
	}
}

// reap collects stale executor IDs under the lock, then deregisters them
// outside it so the broker's disconnect handling runs without holding the
// registry mutex.
func (r *Registry) reap() {
	r.mu.Lock()
	var stale []string
	for id, ex := range r.executors {
		if !r.healthyLocked(ex) {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	for _, id := range stale {
		r.logger.Warn("executor missed heartbeats, removing", "executor_id", id)
		r.Deregister(id)
	}
}

func (r *Registry) healthyLocked(ex *executor) bool {
	if r.cfg.HeartbeatTimeout <= 0 {
		return true
	}
	return time.Since(ex.lastHeartbeat) < r.cfg.HeartbeatTimeout
}

func (r *Registry) infoLocked(ex *executor) ExecutorInfo {
	avg := 0.0
	if ex.processed > 0 {
		avg = ex.totalBusy.Seconds() / float64(ex.processed)
	}
	return ExecutorInfo{
		ID:             ex.id,
		Principal:      ex.principal,
		Status:         ex.status,
		ConnectedAt:    ex.connectedAt,
		LastHeartbeat:  ex.lastHeartbeat,
		CurrentRequest: ex.currentRequest,
		Processed:      ex.processed,
		AvgBusySeconds: avg,
		Healthy:        r.healthyLocked(ex),
		LastError:      ex.lastError,
	}
}
