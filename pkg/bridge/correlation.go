package bridge

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// CorrelationTable maps every in-flight request ID to the client-facing
// stream awaiting its frames. An entry is created exactly once per dispatch
// and removed exactly once; Remove reports whether this caller won the
// removal so that completion, cancellation and disconnect handling never
// double-apply their cleanup.
type CorrelationTable struct {
	mu      sync.Mutex
	entries map[string]*Stream
	logger  *slog.Logger

	dropped int64
}

// NewCorrelationTable creates an empty table.
func NewCorrelationTable() *CorrelationTable {
	return &CorrelationTable{
		entries: make(map[string]*Stream),
		logger:  slog.Default().With("component", "bridge.correlation"),
	}
}

// Register binds a request ID to its stream. A duplicate ID is a fatal
// generation error per the broker's invariants, so it is rejected loudly.
func (t *CorrelationTable) Register(requestID string, s *Stream) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[requestID]; exists {
		t.logger.Error("request id collision, refusing to register", "request_id", requestID)
		return false
	}
	t.entries[requestID] = s
	return true
}

// Remove deletes the entry for requestID and returns the stream it pointed
// to. The second return is false when another path already removed it.
func (t *CorrelationTable) Remove(requestID string) (*Stream, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.entries[requestID]
	if !ok {
		return nil, false
	}
	delete(t.entries, requestID)
	return s, true
}

// Get returns the stream for requestID without removing it.
func (t *CorrelationTable) Get(requestID string) (*Stream, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.entries[requestID]
	return s, ok
}

// Route delivers a raw executor frame payload to the stream registered for
// requestID. Frames with no matching entry are late arrivals for requests
// that already completed or were cancelled; they are counted and dropped.
func (t *CorrelationTable) Route(requestID string, data json.RawMessage) {
	t.mu.Lock()
	s, ok := t.entries[requestID]
	if !ok {
		t.dropped++
		t.mu.Unlock()
		t.logger.Debug("dropping frame for unknown request", "request_id", requestID)
		return
	}
	t.mu.Unlock()

	s.deliver(data)
}

// Len returns the number of in-flight entries.
func (t *CorrelationTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Dropped returns how many unaddressable frames have been discarded.
func (t *CorrelationTable) Dropped() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}
