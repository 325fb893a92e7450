package bridge

import (
	"container/list"
	"sync"
)

// QueueStats is a snapshot of the queue controller's counters.
type QueueStats struct {
	Depth         int   `json:"depth"`
	TotalQueued   int64 `json:"total_queued"`
	TotalTimeouts int64 `json:"total_timeouts"`
	TotalRejected int64 `json:"total_rejected"`
}

// waiter is one request parked until an executor frees up. Its ready channel
// is closed exactly once when the queue hands it a wake-up.
type waiter struct {
	ready chan struct{}
	elem  *list.Element
}

// queue holds requests when no executor is ready and wakes them in strict
// FIFO order as executors free up. Wake-ups are advisory: the woken request
// races for the executor through Registry.Acquire and re-parks at the front
// of the line if it loses, preserving FIFO.
type queue struct {
	mu      sync.Mutex
	waiters *list.List

	totalQueued   int64
	totalTimeouts int64
	totalRejected int64
}

func newQueue() *queue {
	return &queue{waiters: list.New()}
}

// add parks a new waiter at the back of the queue.
func (q *queue) add() *waiter {
	w := &waiter{ready: make(chan struct{})}

	q.mu.Lock()
	w.elem = q.waiters.PushBack(w)
	q.totalQueued++
	q.mu.Unlock()
	return w
}

// readdFront parks a fresh waiter at the front of the queue, used when a
// woken request loses the acquire race and must keep its place in line.
func (q *queue) readdFront() *waiter {
	w := &waiter{ready: make(chan struct{})}

	q.mu.Lock()
	w.elem = q.waiters.PushFront(w)
	q.mu.Unlock()
	return w
}

// remove takes a waiter out of the queue, if it is still parked.
func (q *queue) remove(w *waiter) {
	q.mu.Lock()
	if w.elem != nil {
		q.waiters.Remove(w.elem)
		w.elem = nil
	}
	q.mu.Unlock()
}

// wake releases the oldest parked waiter, if any. Called whenever an
// executor registers or returns to the ready set.
func (q *queue) wake() {
	q.mu.Lock()
	front := q.waiters.Front()
	if front == nil {
		q.mu.Unlock()
		return
	}
	w := front.Value.(*waiter)
	q.waiters.Remove(front)
	w.elem = nil
	q.mu.Unlock()

	close(w.ready)
}

// isFront reports whether w is parked at the front of the queue.
func (q *queue) isFront(w *waiter) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return w.elem != nil && q.waiters.Front() == w.elem
}

// depth returns how many requests are parked.
func (q *queue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiters.Len()
}

func (q *queue) recordTimeout() {
	q.mu.Lock()
	q.totalTimeouts++
	q.mu.Unlock()
}

func (q *queue) recordRejected() {
	q.mu.Lock()
	q.totalRejected++
	q.mu.Unlock()
}

// stats returns a snapshot of the queue counters.
func (q *queue) stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Depth:         q.waiters.Len(),
		TotalQueued:   q.totalQueued,
		TotalTimeouts: q.totalTimeouts,
		TotalRejected: q.totalRejected,
	}
}
