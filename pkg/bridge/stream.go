package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// EventKind discriminates the client-visible events a stream can emit.
type EventKind int

const (
	// EventChunk carries one increment of generated text.
	EventChunk EventKind = iota

	// EventDone is the success terminal: the stream closed cleanly.
	EventDone

	// EventError is the failure terminal: Err explains why.
	EventError
)

// Event is one client-visible item in a request's result stream. Exactly one
// EventDone or EventError is ever emitted per request, always last.
type Event struct {
	Kind  EventKind
	Chunk string
	Err   error
}

// doneSentinel is the in-band marker executors send when the remote service
// finished generating.
const doneSentinel = "[DONE]"

// executorError is the error shape executors embed in a data frame.
type executorError struct {
	Error json.RawMessage `json:"error"`
}

// Stream translates inbound raw executor frames into the client-visible
// event sequence for one request. It preserves arrival order, never
// coalesces, and enforces single-terminal semantics: after the first
// terminal event every later frame is dropped.
//
// The stream also owns the two in-flight timeouts: per-chunk inactivity and
// total duration. Either expiry produces a terminal error through the
// broker's finish path, never a silent hang.
type Stream struct {
	req *pendingRequest

	events chan Event
	done   chan struct{}

	mu         sync.Mutex
	terminated bool
	terminal   Event
	delivered  bool

	inactivity        *time.Timer
	inactivityTimeout time.Duration
	total             *time.Timer

	// onTerminal is the broker's finish path: it removes the correlation
	// entry, frees the executor and records the outcome, then calls back
	// into terminate. nil err means the success sentinel.
	onTerminal func(err error)

	logger *slog.Logger
}

// streamBuffer is the per-request event buffer depth. Delivery blocks the
// executor read pump only when a client consumes slower than this.
const streamBuffer = 256

func newStream(req *pendingRequest, inactivityTimeout, totalTimeout time.Duration) *Stream {
	s := &Stream{
		req:    req,
		events: make(chan Event, streamBuffer),
		done:   make(chan struct{}),
		logger: slog.Default().With("component", "bridge.stream", "request_id", req.id),
	}
	if inactivityTimeout > 0 {
		s.inactivityTimeout = inactivityTimeout
		s.inactivity = time.AfterFunc(inactivityTimeout, func() {
			s.timeout(&TimeoutError{Phase: "stream_inactivity", RequestID: req.id})
		})
	}
	if totalTimeout > 0 {
		s.total = time.AfterFunc(totalTimeout, func() {
			s.timeout(&TimeoutError{Phase: "stream_duration", RequestID: req.id})
		})
	}
	return s
}

// Recv returns the next client-visible event, blocking until one is
// available or ctx ends. Chunks buffered before the terminal fired are
// delivered first; the terminal event (EventDone or EventError) is always
// the last one returned, exactly once. After that Recv blocks on ctx alone,
// so consumers must stop at the terminal.
func (s *Stream) Recv(ctx context.Context) (Event, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.done:
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}

	// Terminal reached. Hand out any chunk still buffered before it.
	select {
	case ev := <-s.events:
		return ev, nil
	default:
	}

	s.mu.Lock()
	if s.delivered {
		s.mu.Unlock()
		<-ctx.Done()
		return Event{}, ctx.Err()
	}
	s.delivered = true
	ev := s.terminal
	s.mu.Unlock()
	return ev, nil
}

// RequestID returns the request this stream belongs to.
func (s *Stream) RequestID() string {
	return s.req.id
}

// deliver translates one raw executor frame payload. Called from the
// executor read pump via the correlation table.
func (s *Stream) deliver(data json.RawMessage) {
	// A bare JSON string is either the done sentinel or a text chunk.
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		if text == doneSentinel {
			s.finish(nil)
			return
		}
		s.emitChunk(text)
		return
	}

	// An object with an "error" member is the executor reporting failure.
	var ee executorError
	if err := json.Unmarshal(data, &ee); err == nil && len(ee.Error) > 0 {
		s.finish(&ExecutorTransportError{
			ExecutorID: s.req.executorID,
			RequestID:  s.req.id,
			Cause:      &remoteError{message: decodeErrorMessage(ee.Error)},
		})
		return
	}

	s.logger.Warn("dropping malformed executor frame")
}

func (s *Stream) emitChunk(text string) {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}
	if s.req.state == StateDispatched {
		s.req.state = StateStreaming
	}
	if s.inactivity != nil {
		s.inactivity.Reset(s.inactivityTimeout)
	}
	s.mu.Unlock()

	select {
	case s.events <- Event{Kind: EventChunk, Chunk: text}:
	case <-s.done:
	}
}

// finish routes a terminal condition through the broker so correlation
// entry, executor slot and request state change together.
func (s *Stream) finish(err error) {
	s.mu.Lock()
	fn := s.onTerminal
	s.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (s *Stream) timeout(terr *TimeoutError) {
	s.logger.Warn("stream timeout", "phase", terr.Phase)
	s.finish(terr)
}

// terminate emits the single terminal event and closes the stream. Only the
// first caller has any effect. Invoked exclusively by the broker's finish
// path after it has won the correlation table removal.
func (s *Stream) terminate(err error) {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}
	s.terminated = true
	if s.inactivity != nil {
		s.inactivity.Stop()
	}
	if s.total != nil {
		s.total.Stop()
	}
	ev := Event{Kind: EventDone}
	if err != nil {
		ev = Event{Kind: EventError, Err: err}
	}
	s.terminal = ev
	s.mu.Unlock()

	// The terminal never rides the events channel: a buffer full of chunks
	// must not swallow it. Recv drains the buffered chunks and then returns
	// the stored terminal. Closing done releases any blocked deliverers.
	close(s.done)
}

// setTerminal installs the broker finish callback.
func (s *Stream) setTerminal(fn func(err error)) {
	s.mu.Lock()
	s.onTerminal = fn
	s.mu.Unlock()
}

// remoteError wraps the error text an executor relayed from the remote
// service.
type remoteError struct {
	message string
}

func (e *remoteError) Error() string {
	return e.message
}

// decodeErrorMessage renders the executor's error payload, which may be a
// plain string or an arbitrary JSON value.
func decodeErrorMessage(raw json.RawMessage) string {
	var msg string
	if err := json.Unmarshal(raw, &msg); err == nil {
		return msg
	}
	return strings.TrimSpace(string(raw))
}
