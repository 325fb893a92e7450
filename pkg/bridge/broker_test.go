package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type usageEntry struct {
	principal string
	model     string
	status    int
}

// fakeUsage captures broker usage events.
type fakeUsage struct {
	mu      sync.Mutex
	entries []usageEntry
}

func (f *fakeUsage) Record(principal, model string, latency time.Duration, statusCode int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, usageEntry{principal: principal, model: model, status: statusCode})
}

func (f *fakeUsage) all() []usageEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]usageEntry(nil), f.entries...)
}

// fakeObserver counts broker measurements.
type fakeObserver struct {
	mu         sync.Mutex
	dispatched int
	finished   []string
	queueWaits int
}

func (f *fakeObserver) RequestDispatched(string) {
	f.mu.Lock()
	f.dispatched++
	f.mu.Unlock()
}

func (f *fakeObserver) RequestFinished(_, status string, _ time.Duration) {
	f.mu.Lock()
	f.finished = append(f.finished, status)
	f.mu.Unlock()
}

func (f *fakeObserver) QueueWait(time.Duration) {
	f.mu.Lock()
	f.queueWaits++
	f.mu.Unlock()
}

func (f *fakeObserver) FrameDropped() {}

func testPool() *CredentialPool {
	return NewCredentialPool(map[string][]SessionCredential{
		"gpt-4": {{SessionID: "sess-1", MessageID: "msg-1", Mode: ModeDirectChat}},
	}, nil)
}

func newTestBroker(cfg Config, usage UsageRecorder, observer Observer) (*Broker, *Registry) {
	if cfg.MaxQueueWait == 0 {
		cfg.MaxQueueWait = 2 * time.Second
	}
	if cfg.StreamInactivity == 0 {
		cfg.StreamInactivity = 5 * time.Second
	}
	if cfg.StreamDuration == 0 {
		cfg.StreamDuration = 10 * time.Second
	}
	registry := NewRegistry(RegistryConfig{Tokens: map[string]string{"tok": "lab"}})
	return NewBroker(cfg, testPool(), registry, usage, observer), registry
}

func readEvent(t *testing.T, st *Stream) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ev, err := st.Recv(ctx)
	if err != nil {
		t.Fatal("timed out waiting for stream event")
	}
	return ev
}

func expectNoEvent(t *testing.T, st *Stream) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if ev, err := st.Recv(ctx); err == nil {
		t.Fatalf("unexpected event after terminal: %+v", ev)
	}
}

func chatRequest() Request {
	return Request{
		Model:     "gpt-4",
		Messages:  []TaskMessage{{Role: "user", Content: "hi"}},
		Principal: "alice",
	}
}

func TestBrokerDispatchAndStream(t *testing.T) {
	b, _ := newTestBroker(Config{}, nil, nil)
	sender := &fakeSender{}
	if _, err := b.RegisterExecutor("ex-1", "tok", sender); err != nil {
		t.Fatalf("RegisterExecutor() error: %v", err)
	}

	st, err := b.Dispatch(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	task, ok := sender.lastTask()
	if !ok {
		t.Fatal("executor never received the task")
	}
	if task.RequestID != st.RequestID() {
		t.Errorf("task request id = %q, want %q", task.RequestID, st.RequestID())
	}
	if task.Credential.SessionID != "sess-1" || task.Credential.Mode != ModeDirectChat {
		t.Errorf("task credential = %+v, want the configured session", task.Credential)
	}
	if b.InFlight() != 1 {
		t.Errorf("InFlight() = %d, want 1", b.InFlight())
	}

	b.RouteFrame(st.RequestID(), json.RawMessage(`"Hello"`))
	b.RouteFrame(st.RequestID(), json.RawMessage(`" world"`))
	b.RouteFrame(st.RequestID(), json.RawMessage(`"[DONE]"`))

	var text strings.Builder
	for {
		ev := readEvent(t, st)
		if ev.Kind == EventChunk {
			text.WriteString(ev.Chunk)
			continue
		}
		if ev.Kind != EventDone {
			t.Fatalf("terminal event = %+v, want EventDone", ev)
		}
		break
	}
	if text.String() != "Hello world" {
		t.Errorf("streamed text = %q, want %q", text.String(), "Hello world")
	}

	if b.InFlight() != 0 {
		t.Errorf("InFlight() after terminal = %d, want 0", b.InFlight())
	}
	if b.ReadyExecutors() != 1 {
		t.Errorf("ReadyExecutors() = %d, want executor returned to ready", b.ReadyExecutors())
	}
}

func TestBrokerDispatchNoMapping(t *testing.T) {
	b, _ := newTestBroker(Config{}, nil, nil)

	// The credential check runs before any executor is consulted, so the
	// failure is immediate even with an empty registry.
	_, err := b.Dispatch(context.Background(), Request{Model: "unknown"})
	var nmErr *NoMappingError
	if !errors.As(err, &nmErr) {
		t.Fatalf("Dispatch() error = %v, want NoMappingError", err)
	}
}

func TestBrokerRejectWhenNoWorkers(t *testing.T) {
	b, _ := newTestBroker(Config{RejectWhenNoWorkers: true}, nil, nil)

	_, err := b.Dispatch(context.Background(), chatRequest())
	var nwErr *NoWorkersError
	if !errors.As(err, &nwErr) {
		t.Fatalf("Dispatch() error = %v, want NoWorkersError", err)
	}
	if got := b.QueueStats().TotalRejected; got != 1 {
		t.Errorf("TotalRejected = %d, want 1", got)
	}
}

func TestBrokerQueueTimeout(t *testing.T) {
	b, _ := newTestBroker(Config{MaxQueueWait: 50 * time.Millisecond}, nil, nil)

	_, err := b.Dispatch(context.Background(), chatRequest())
	var toErr *TimeoutError
	if !errors.As(err, &toErr) {
		t.Fatalf("Dispatch() error = %v, want TimeoutError", err)
	}
	if toErr.Phase != "queue" {
		t.Errorf("Phase = %q, want %q", toErr.Phase, "queue")
	}
	if got := b.QueueStats().TotalTimeouts; got != 1 {
		t.Errorf("TotalTimeouts = %d, want 1", got)
	}
}

func TestBrokerQueueDrainsOnRelease(t *testing.T) {
	obs := &fakeObserver{}
	b, _ := newTestBroker(Config{}, nil, obs)
	sender := &fakeSender{}
	b.RegisterExecutor("ex-1", "tok", sender)

	first, err := b.Dispatch(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("first Dispatch() error: %v", err)
	}

	type result struct {
		st  *Stream
		err error
	}
	second := make(chan result, 1)
	go func() {
		st, err := b.Dispatch(context.Background(), chatRequest())
		second <- result{st: st, err: err}
	}()

	// Give the second request time to park, then free the executor.
	time.Sleep(50 * time.Millisecond)
	b.RouteFrame(first.RequestID(), json.RawMessage(`"[DONE]"`))
	if ev := readEvent(t, first); ev.Kind != EventDone {
		t.Fatalf("first terminal = %+v, want EventDone", ev)
	}

	res := <-second
	if res.err != nil {
		t.Fatalf("queued Dispatch() error: %v", res.err)
	}
	b.RouteFrame(res.st.RequestID(), json.RawMessage(`"[DONE]"`))
	if ev := readEvent(t, res.st); ev.Kind != EventDone {
		t.Fatalf("second terminal = %+v, want EventDone", ev)
	}
	if sender.taskCount() != 2 {
		t.Errorf("executor served %d tasks, want 2", sender.taskCount())
	}

	obs.mu.Lock()
	waits := obs.queueWaits
	obs.mu.Unlock()
	if waits != 1 {
		t.Errorf("queue wait observations = %d, want 1", waits)
	}
}

func TestBrokerExecutorErrorFrame(t *testing.T) {
	rec := &fakeUsage{}
	b, _ := newTestBroker(Config{}, rec, nil)
	b.RegisterExecutor("ex-1", "tok", &fakeSender{})

	st, err := b.Dispatch(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	b.RouteFrame(st.RequestID(), json.RawMessage(`{"error": "rate limited upstream"}`))

	ev := readEvent(t, st)
	if ev.Kind != EventError {
		t.Fatalf("event = %+v, want EventError", ev)
	}
	var xtErr *ExecutorTransportError
	if !errors.As(ev.Err, &xtErr) {
		t.Fatalf("terminal error = %v, want ExecutorTransportError", ev.Err)
	}
	if !strings.Contains(ev.Err.Error(), "rate limited upstream") {
		t.Errorf("terminal error %q does not carry the executor's message", ev.Err)
	}

	entries := rec.all()
	if len(entries) != 1 || entries[0].status != 502 {
		t.Errorf("usage entries = %+v, want one 502 record", entries)
	}
}

func TestBrokerCancel(t *testing.T) {
	b, _ := newTestBroker(Config{}, nil, nil)
	sender := &fakeSender{}
	b.RegisterExecutor("ex-1", "tok", sender)

	st, err := b.Dispatch(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	b.Cancel(st.RequestID())

	if b.InFlight() != 0 {
		t.Errorf("InFlight() after cancel = %d, want 0", b.InFlight())
	}
	if b.ReadyExecutors() != 1 {
		t.Errorf("executor not freed after cancel")
	}

	sender.mu.Lock()
	aborts := append([]string(nil), sender.aborts...)
	sender.mu.Unlock()
	if len(aborts) != 1 || aborts[0] != st.RequestID() {
		t.Errorf("aborts = %v, want [%s]", aborts, st.RequestID())
	}

	// Frames arriving after cancellation have no destination and are dropped.
	b.RouteFrame(st.RequestID(), json.RawMessage(`"late"`))
	if got := b.table.Dropped(); got != 1 {
		t.Errorf("Dropped() = %d, want 1", got)
	}
}

func TestBrokerRequeuesOnLossBeforeFirstFrame(t *testing.T) {
	b, _ := newTestBroker(Config{}, nil, nil)
	first := &fakeSender{}
	b.RegisterExecutor("ex-1", "tok", first)

	st, err := b.Dispatch(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	// The executor dies before producing a frame: the request is requeued
	// once and picked up by the next executor to register.
	b.DeregisterExecutor("ex-1")

	second := &fakeSender{}
	if _, err := b.RegisterExecutor("ex-2", "tok", second); err != nil {
		t.Fatalf("RegisterExecutor(ex-2) error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for second.taskCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	task, ok := second.lastTask()
	if !ok {
		t.Fatal("request never re-dispatched to the replacement executor")
	}
	if task.RequestID != st.RequestID() {
		t.Errorf("re-dispatched request id = %q, want %q", task.RequestID, st.RequestID())
	}

	b.RouteFrame(st.RequestID(), json.RawMessage(`"[DONE]"`))
	if ev := readEvent(t, st); ev.Kind != EventDone {
		t.Fatalf("terminal = %+v, want EventDone", ev)
	}
}

func TestBrokerFailsStreamOnMidStreamLoss(t *testing.T) {
	b, _ := newTestBroker(Config{}, nil, nil)
	b.RegisterExecutor("ex-1", "tok", &fakeSender{})

	st, err := b.Dispatch(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	// Once a frame has reached the client the remote interaction may have
	// side effects, so the loss must surface as an error, never a retry.
	b.RouteFrame(st.RequestID(), json.RawMessage(`"partial"`))
	if ev := readEvent(t, st); ev.Kind != EventChunk || ev.Chunk != "partial" {
		t.Fatalf("event = %+v, want the first chunk", ev)
	}

	b.DeregisterExecutor("ex-1")

	ev := readEvent(t, st)
	if ev.Kind != EventError {
		t.Fatalf("event = %+v, want EventError", ev)
	}
	var xtErr *ExecutorTransportError
	if !errors.As(ev.Err, &xtErr) {
		t.Fatalf("terminal error = %v, want ExecutorTransportError", ev.Err)
	}
}

func TestBrokerSingleTerminal(t *testing.T) {
	b, _ := newTestBroker(Config{}, nil, nil)
	b.RegisterExecutor("ex-1", "tok", &fakeSender{})

	st, err := b.Dispatch(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	b.RouteFrame(st.RequestID(), json.RawMessage(`"[DONE]"`))
	if ev := readEvent(t, st); ev.Kind != EventDone {
		t.Fatalf("terminal = %+v, want EventDone", ev)
	}

	// Everything after the terminal is dropped: more data, another done
	// sentinel, even an error report.
	b.RouteFrame(st.RequestID(), json.RawMessage(`"extra"`))
	b.RouteFrame(st.RequestID(), json.RawMessage(`"[DONE]"`))
	b.RouteFrame(st.RequestID(), json.RawMessage(`{"error": "too late"}`))
	expectNoEvent(t, st)
}

func TestBrokerRetriesSendFailureOnAnotherExecutor(t *testing.T) {
	b, _ := newTestBroker(Config{}, nil, nil)
	broken := &fakeSender{failSend: true}
	healthy := &fakeSender{}
	b.RegisterExecutor("ex-broken", "tok", broken)
	b.RegisterExecutor("ex-healthy", "tok", healthy)

	st, err := b.Dispatch(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	if healthy.taskCount() != 1 {
		t.Fatalf("healthy executor task count = %d, want 1", healthy.taskCount())
	}

	// The broken executor is removed from the pool entirely.
	for _, info := range b.Executors() {
		if info.ID == "ex-broken" {
			t.Error("failed executor still registered")
		}
	}

	b.RouteFrame(st.RequestID(), json.RawMessage(`"[DONE]"`))
	if ev := readEvent(t, st); ev.Kind != EventDone {
		t.Fatalf("terminal = %+v, want EventDone", ev)
	}
}

func TestBrokerUsageAndObserver(t *testing.T) {
	rec := &fakeUsage{}
	obs := &fakeObserver{}
	b, _ := newTestBroker(Config{}, rec, obs)
	b.RegisterExecutor("ex-1", "tok", &fakeSender{})

	st, err := b.Dispatch(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}
	b.RouteFrame(st.RequestID(), json.RawMessage(`"[DONE]"`))
	if ev := readEvent(t, st); ev.Kind != EventDone {
		t.Fatalf("terminal = %+v, want EventDone", ev)
	}

	entries := rec.all()
	if len(entries) != 1 {
		t.Fatalf("usage entries = %d, want 1", len(entries))
	}
	if entries[0] != (usageEntry{principal: "alice", model: "gpt-4", status: 200}) {
		t.Errorf("usage entry = %+v", entries[0])
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.dispatched != 1 {
		t.Errorf("dispatched observations = %d, want 1", obs.dispatched)
	}
	if len(obs.finished) != 1 || obs.finished[0] != "completed" {
		t.Errorf("finished observations = %v, want [completed]", obs.finished)
	}
}

func TestBrokerStreamInactivityTimeout(t *testing.T) {
	b, _ := newTestBroker(Config{StreamInactivity: 60 * time.Millisecond}, nil, nil)
	b.RegisterExecutor("ex-1", "tok", &fakeSender{})

	st, err := b.Dispatch(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	ev := readEvent(t, st)
	if ev.Kind != EventError {
		t.Fatalf("event = %+v, want EventError", ev)
	}
	var toErr *TimeoutError
	if !errors.As(ev.Err, &toErr) {
		t.Fatalf("terminal error = %v, want TimeoutError", ev.Err)
	}
	if toErr.Phase != "stream_inactivity" {
		t.Errorf("Phase = %q, want %q", toErr.Phase, "stream_inactivity")
	}
	if b.ReadyExecutors() != 1 {
		t.Error("executor not freed after stream timeout")
	}
}

func waitForDepth(t *testing.T, b *Broker, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if b.QueueDepth() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("queue depth never reached %d", want)
}

func TestBrokerQueueSurvivesLostWakeRace(t *testing.T) {
	b, _ := newTestBroker(Config{MaxQueueWait: 300 * time.Millisecond}, nil, nil)
	sender := &fakeSender{}
	b.RegisterExecutor("ex-1", "tok", sender)

	first, err := b.Dispatch(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("first Dispatch() error: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := b.Dispatch(context.Background(), chatRequest())
		errCh <- err
	}()
	waitForDepth(t, b, 1)

	// Spurious wake-up: the executor is still busy, so the woken waiter
	// loses the acquire race and re-parks at the front of the line.
	b.q.wake()

	// When it then times out, the re-parked entry must leave with it.
	err = <-errCh
	var toErr *TimeoutError
	if !errors.As(err, &toErr) {
		t.Fatalf("queued Dispatch() error = %v, want TimeoutError", err)
	}
	if got := b.QueueDepth(); got != 0 {
		t.Fatalf("queue depth after timeout = %d, want 0", got)
	}

	// An orphaned waiter would now consume the next wake-up. A later
	// queued request must still be woken when the executor frees.
	type result struct {
		st  *Stream
		err error
	}
	third := make(chan result, 1)
	go func() {
		st, err := b.Dispatch(context.Background(), chatRequest())
		third <- result{st: st, err: err}
	}()
	waitForDepth(t, b, 1)

	b.RouteFrame(first.RequestID(), json.RawMessage(`"[DONE]"`))
	if ev := readEvent(t, first); ev.Kind != EventDone {
		t.Fatalf("first terminal = %+v, want EventDone", ev)
	}

	res := <-third
	if res.err != nil {
		t.Fatalf("queued Dispatch() error: %v", res.err)
	}
	b.RouteFrame(res.st.RequestID(), json.RawMessage(`"[DONE]"`))
	if ev := readEvent(t, res.st); ev.Kind != EventDone {
		t.Fatalf("terminal = %+v, want EventDone", ev)
	}
}

func TestBrokerNewRequestQueuesBehindWaiters(t *testing.T) {
	b, _ := newTestBroker(Config{}, nil, nil)
	sender := &fakeSender{}
	b.RegisterExecutor("ex-1", "tok", sender)

	// Park a stand-in waiter by hand so the executor is free while the
	// line is non-empty.
	w := b.q.add()

	type result struct {
		st  *Stream
		err error
	}
	resCh := make(chan result, 1)
	go func() {
		st, err := b.Dispatch(context.Background(), chatRequest())
		resCh <- result{st: st, err: err}
	}()
	waitForDepth(t, b, 2)

	if sender.taskCount() != 0 {
		t.Fatal("new request barged past a parked waiter")
	}

	// With the stand-in gone the real request is first in line and takes
	// the executor on the next wake-up.
	b.q.remove(w)
	b.q.wake()

	res := <-resCh
	if res.err != nil {
		t.Fatalf("Dispatch() error: %v", res.err)
	}
	b.RouteFrame(res.st.RequestID(), json.RawMessage(`"[DONE]"`))
	if ev := readEvent(t, res.st); ev.Kind != EventDone {
		t.Fatalf("terminal = %+v, want EventDone", ev)
	}
}

func TestBrokerTerminalSurvivesFullBuffer(t *testing.T) {
	b, _ := newTestBroker(Config{}, nil, nil)
	b.RegisterExecutor("ex-1", "tok", &fakeSender{})

	st, err := b.Dispatch(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	// Fill the event buffer completely before the consumer reads anything,
	// then finish the stream.
	for i := 0; i < streamBuffer; i++ {
		b.RouteFrame(st.RequestID(), json.RawMessage(`"x"`))
	}
	b.RouteFrame(st.RequestID(), json.RawMessage(`"[DONE]"`))

	chunks := 0
	for {
		ev := readEvent(t, st)
		if ev.Kind == EventChunk {
			chunks++
			continue
		}
		if ev.Kind != EventDone {
			t.Fatalf("terminal = %+v, want EventDone", ev)
		}
		break
	}
	if chunks != streamBuffer {
		t.Errorf("chunks = %d, want %d", chunks, streamBuffer)
	}
}

func TestBrokerTimeoutTerminalSurvivesFullBuffer(t *testing.T) {
	b, _ := newTestBroker(Config{StreamDuration: 80 * time.Millisecond}, nil, nil)
	b.RegisterExecutor("ex-1", "tok", &fakeSender{})

	st, err := b.Dispatch(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Dispatch() error: %v", err)
	}

	// A slow client has a full buffer when the duration limit fires from
	// the timer goroutine; the timeout terminal must still reach it after
	// the buffered chunks.
	for i := 0; i < streamBuffer; i++ {
		b.RouteFrame(st.RequestID(), json.RawMessage(`"x"`))
	}

	chunks := 0
	var terminal Event
	for {
		ev := readEvent(t, st)
		if ev.Kind == EventChunk {
			chunks++
			continue
		}
		terminal = ev
		break
	}
	if chunks != streamBuffer {
		t.Errorf("chunks = %d, want %d", chunks, streamBuffer)
	}
	if terminal.Kind != EventError {
		t.Fatalf("terminal = %+v, want EventError", terminal)
	}
	var toErr *TimeoutError
	if !errors.As(terminal.Err, &toErr) {
		t.Fatalf("terminal error = %v, want TimeoutError", terminal.Err)
	}
	if toErr.Phase != "stream_duration" {
		t.Errorf("Phase = %q, want %q", toErr.Phase, "stream_duration")
	}
}
