package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Config carries the broker's queue and streaming policy.
type Config struct {
	// MaxQueueWait bounds how long a request may wait for a free executor.
	MaxQueueWait time.Duration

	// RejectWhenNoWorkers makes ingress fail immediately with
	// NoWorkersError instead of queueing.
	RejectWhenNoWorkers bool

	// StreamInactivity bounds the gap between consecutive executor frames.
	StreamInactivity time.Duration

	// StreamDuration bounds the total lifetime of one streamed response.
	StreamDuration time.Duration
}

// UsageRecorder receives one event per finished request. Persistence lives
// elsewhere; pkg/usage provides the shipped implementations.
type UsageRecorder interface {
	Record(principal, model string, latency time.Duration, statusCode int)
}

// Observer receives broker-level measurements. The metrics collector
// implements it; a no-op is used when metrics are disabled.
type Observer interface {
	RequestDispatched(model string)
	RequestFinished(model, status string, duration time.Duration)
	QueueWait(d time.Duration)
	FrameDropped()
}

// nopObserver is the default Observer.
type nopObserver struct{}

func (nopObserver) RequestDispatched(string)                      {}
func (nopObserver) RequestFinished(string, string, time.Duration) {}
func (nopObserver) QueueWait(time.Duration)                       {}
func (nopObserver) FrameDropped()                                 {}

// Broker is the composition root: it binds ingress requests to executors and
// routes their frames back to clients.
type Broker struct {
	cfg      Config
	pool     *CredentialPool
	registry *Registry
	table    *CorrelationTable
	q        *queue
	usage    UsageRecorder
	observer Observer
	logger   *slog.Logger
}

// NewBroker wires the broker components together. usage and observer may be
// nil.
func NewBroker(cfg Config, pool *CredentialPool, registry *Registry, usage UsageRecorder, observer Observer) *Broker {
	b := &Broker{
		cfg:      cfg,
		pool:     pool,
		registry: registry,
		table:    NewCorrelationTable(),
		q:        newQueue(),
		usage:    usage,
		observer: observer,
		logger:   slog.Default().With("component", "bridge.broker"),
	}
	if b.observer == nil {
		b.observer = nopObserver{}
	}
	registry.OnReady(b.q.wake)
	registry.OnDeregister(b.handleExecutorLoss)
	return b
}

// Run starts the registry's heartbeat reaper and blocks until ctx is
// cancelled.
func (b *Broker) Run(ctx context.Context) {
	b.registry.Run(ctx)
}

// Dispatch resolves the request's credential, binds it to a ready executor
// (queueing when none is available) and returns the stream of client-visible
// events. The returned stream always ends with exactly one terminal event.
func (b *Broker) Dispatch(ctx context.Context, req Request) (*Stream, error) {
	cred, err := b.pool.Get(req.Model)
	if err != nil {
		return nil, err
	}

	pr := &pendingRequest{
		id:         uuid.NewString(),
		model:      req.Model,
		credential: cred,
		messages:   req.Messages,
		principal:  req.Principal,
		state:      StateQueued,
		enqueuedAt: time.Now(),
	}

	execID, sender, err := b.acquireExecutor(ctx, pr.id)
	if err != nil {
		return nil, err
	}

	st := newStream(pr, b.cfg.StreamInactivity, b.cfg.StreamDuration)
	pr.executorID = execID
	pr.state = StateDispatched
	pr.dispatched = time.Now()

	if !b.table.Register(pr.id, st) {
		// A colliding UUID means ID generation is broken; do not touch the
		// existing entry.
		b.registry.Release(execID, "")
		return nil, errors.New("request id collision")
	}

	st.setTerminal(func(terr error) {
		b.finishStream(st, terr, false)
	})

	task := Task{
		RequestID:  pr.id,
		Model:      req.Model,
		Credential: cred,
		Messages:   req.Messages,
	}
	if err := sender.SendTask(task); err != nil {
		b.logger.Warn("task send failed, retrying on another executor",
			"request_id", pr.id,
			"executor_id", execID,
			"error", err,
		)
		b.registry.Detach(execID)
		b.registry.Deregister(execID)
		if rerr := b.trySendElsewhere(st, task); rerr != nil {
			b.table.Remove(pr.id)
			return nil, rerr
		}
	}

	b.observer.RequestDispatched(req.Model)
	b.logger.Info("request dispatched",
		"request_id", pr.id,
		"model", req.Model,
		"executor_id", pr.executorID,
	)
	return st, nil
}

// Cancel handles a client disconnect: the correlation entry is removed, the
// executor is told to abandon the task (best effort) and returned to Ready.
func (b *Broker) Cancel(requestID string) {
	st, ok := b.table.Remove(requestID)
	if !ok {
		return
	}
	b.finishRemoved(st, nil, true)
}

// RouteFrame delivers one executor data frame to the stream awaiting it.
func (b *Broker) RouteFrame(requestID string, data json.RawMessage) {
	b.table.Route(requestID, data)
}

// RegisterExecutor admits an executor connection through the registry.
func (b *Broker) RegisterExecutor(id, token string, sender TaskSender) (string, error) {
	return b.registry.Register(id, token, sender)
}

// HeartbeatExecutor refreshes an executor's liveness.
func (b *Broker) HeartbeatExecutor(id string) bool {
	return b.registry.Heartbeat(id)
}

// DeregisterExecutor removes an executor, requeueing or failing its active
// request per policy.
func (b *Broker) DeregisterExecutor(id string) {
	b.registry.Deregister(id)
}

// Executors returns the registry snapshot for the ops endpoints.
func (b *Broker) Executors() []ExecutorInfo {
	return b.registry.Snapshot()
}

// QueueStats returns the queue controller's counters.
func (b *Broker) QueueStats() QueueStats {
	return b.q.stats()
}

// QueueDepth returns how many requests are waiting for an executor.
func (b *Broker) QueueDepth() int {
	return b.q.depth()
}

// ReadyExecutors returns how many executors could take a task right now.
func (b *Broker) ReadyExecutors() int {
	return b.registry.ReadyCount()
}

// InFlight returns the number of requests between dispatch and terminal.
func (b *Broker) InFlight() int {
	return b.table.Len()
}

// Models returns the model names the credential pool can serve.
func (b *Broker) Models() []string {
	return b.pool.Models()
}

// InstallCredential adds a captured credential to a model's pool.
func (b *Broker) InstallCredential(model string, cred SessionCredential) error {
	return b.pool.Install(model, cred)
}

// SendRefresh forwards a refresh command to one executor.
func (b *Broker) SendRefresh(executorID string) error {
	sender, ok := b.registry.Sender(executorID)
	if !ok {
		return errors.New("executor not connected")
	}
	return sender.SendRefresh()
}

// SendReconnect drains an executor and asks it to re-establish its
// connection.
func (b *Broker) SendReconnect(executorID string) error {
	sender, ok := b.registry.Sender(executorID)
	if !ok {
		return errors.New("executor not connected")
	}
	b.registry.Drain(executorID)
	return sender.SendReconnect()
}

// SendCapability forwards an opaque capability-activation command to one
// executor. The payload is passed through untouched; the executor decides
// what the capability means.
func (b *Broker) SendCapability(executorID, name string, payload json.RawMessage) error {
	sender, ok := b.registry.Sender(executorID)
	if !ok {
		return errors.New("executor not connected")
	}
	return sender.SendCapability(name, payload)
}

// acquireExecutor binds the request to a ready executor, applying the queue
// wait/reject policy when none is available.
func (b *Broker) acquireExecutor(ctx context.Context, requestID string) (string, TaskSender, error) {
	// The fast path is only for an empty queue: a request arriving while
	// others are parked joins the back of the line instead of racing them
	// for a freshly freed executor.
	if b.q.depth() == 0 {
		if id, sender, ok := b.registry.Acquire(requestID); ok {
			return id, sender, nil
		}
	}

	if b.cfg.RejectWhenNoWorkers {
		b.q.recordRejected()
		return "", nil, &NoWorkersError{}
	}

	waitStart := time.Now()
	timer := time.NewTimer(b.cfg.MaxQueueWait)
	defer timer.Stop()

	// w is reassigned when a woken waiter loses the acquire race, so the
	// cleanup must resolve it late: removing the original waiter here
	// would orphan the re-parked one and eat a wake-up.
	w := b.q.add()
	defer func() { b.q.remove(w) }()

	// An executor may have freed between the failed acquire and parking;
	// check once more so the wake-up is not missed. Only the front of the
	// line may take this shortcut.
	if b.q.isFront(w) {
		if id, sender, ok := b.registry.Acquire(requestID); ok {
			b.observer.QueueWait(time.Since(waitStart))
			return id, sender, nil
		}
	}

	for {
		select {
		case <-w.ready:
			if id, sender, ok := b.registry.Acquire(requestID); ok {
				b.observer.QueueWait(time.Since(waitStart))
				return id, sender, nil
			}
			// Lost the race; keep the place in line.
			w = b.q.readdFront()
		case <-timer.C:
			b.q.recordTimeout()
			return "", nil, &TimeoutError{Phase: "queue"}
		case <-ctx.Done():
			return "", nil, ctx.Err()
		}
	}
}

// trySendElsewhere performs the single bounded retry after a task send
// failed before any frame was produced.
func (b *Broker) trySendElsewhere(st *Stream, task Task) error {
	id, sender, ok := b.registry.Acquire(task.RequestID)
	if !ok {
		return &ExecutorTransportError{RequestID: task.RequestID}
	}
	if err := sender.SendTask(task); err != nil {
		b.registry.Detach(id)
		b.registry.Deregister(id)
		return &ExecutorTransportError{ExecutorID: id, RequestID: task.RequestID, Cause: err}
	}
	st.mu.Lock()
	st.req.executorID = id
	st.req.retried = true
	st.req.dispatched = time.Now()
	st.mu.Unlock()
	return nil
}

// handleExecutorLoss is the registry's deregistration hook. A request that
// never produced a frame is requeued once; a streaming request gets a
// transport error terminal, because the remote interaction may already have
// side effects that are unsafe to duplicate.
func (b *Broker) handleExecutorLoss(info ExecutorInfo, activeRequest string) {
	if activeRequest == "" {
		return
	}
	st, ok := b.table.Get(activeRequest)
	if !ok {
		return
	}

	st.mu.Lock()
	retry := st.req.state == StateDispatched && !st.req.retried
	if retry {
		st.req.retried = true
	}
	st.mu.Unlock()

	if !retry {
		b.finishStream(st, &ExecutorTransportError{
			ExecutorID: info.ID,
			RequestID:  activeRequest,
		}, false)
		return
	}

	b.logger.Info("requeueing request after executor loss",
		"request_id", activeRequest,
		"lost_executor", info.ID,
	)
	go b.redispatch(st)
}

// redispatch re-binds a requeued request to another executor, bounded by the
// queue wait policy.
func (b *Broker) redispatch(st *Stream) {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.MaxQueueWait+time.Second)
	defer cancel()

	id, sender, err := b.acquireExecutor(ctx, st.req.id)
	if err != nil {
		b.finishStream(st, err, false)
		return
	}

	st.mu.Lock()
	terminated := st.terminated
	if !terminated {
		st.req.executorID = id
		st.req.dispatched = time.Now()
	}
	task := Task{
		RequestID:  st.req.id,
		Model:      st.req.model,
		Credential: st.req.credential,
		Messages:   st.req.messages,
	}
	st.mu.Unlock()

	if terminated {
		b.registry.Release(id, "")
		return
	}

	if err := sender.SendTask(task); err != nil {
		b.registry.Detach(id)
		b.registry.Deregister(id)
		b.finishStream(st, &ExecutorTransportError{ExecutorID: id, RequestID: st.req.id, Cause: err}, false)
	}
}

// finishStream applies the terminal outcome if this caller wins the
// correlation removal. Cancellation, completion and failure all converge
// here so the three effects (entry removed, slot freed, state transition)
// happen exactly once, together.
func (b *Broker) finishStream(st *Stream, terr error, cancelled bool) {
	if _, ok := b.table.Remove(st.req.id); !ok {
		return
	}
	b.finishRemoved(st, terr, cancelled)
}

// finishRemoved completes a stream whose correlation entry has already been
// removed by the caller.
func (b *Broker) finishRemoved(st *Stream, terr error, cancelled bool) {
	st.mu.Lock()
	execID := st.req.executorID
	model := st.req.model
	principal := st.req.principal
	start := st.req.enqueuedAt
	switch {
	case cancelled:
		st.req.state = StateCancelled
	case terr == nil:
		st.req.state = StateCompleted
	default:
		st.req.state = StateFailed
	}
	state := st.req.state
	st.mu.Unlock()

	if execID != "" {
		msg := ""
		if terr != nil {
			msg = terr.Error()
		}
		b.registry.Release(execID, msg)
		if cancelled {
			if sender, ok := b.registry.Sender(execID); ok {
				if err := sender.SendAbort(st.req.id); err != nil {
					b.logger.Debug("abort delivery failed", "request_id", st.req.id, "error", err)
				}
			}
		}
	}

	status := terminalStatusCode(terr, cancelled)
	duration := time.Since(start)
	if b.usage != nil && principal != "" {
		b.usage.Record(principal, model, duration, status)
	}
	b.observer.RequestFinished(model, state.String(), duration)

	b.logger.Info("request finished",
		"request_id", st.req.id,
		"model", model,
		"state", state.String(),
		"status", status,
		"duration_ms", duration.Milliseconds(),
	)

	st.terminate(terr)
}

// terminalStatusCode maps a terminal outcome to the HTTP status recorded in
// usage logs.
func terminalStatusCode(terr error, cancelled bool) int {
	if cancelled {
		return 499
	}
	if terr == nil {
		return 200
	}
	var toErr *TimeoutError
	if errors.As(terr, &toErr) {
		return 504
	}
	var nwErr *NoWorkersError
	if errors.As(terr, &nwErr) {
		return 503
	}
	return 502
}
