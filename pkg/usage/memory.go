package usage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and ephemeral deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert writes one record.
func (s *MemoryStore) Insert(ctx context.Context, rec *Record) error {
	copied := *rec
	s.mu.Lock()
	s.records = append(s.records, &copied)
	s.mu.Unlock()
	return nil
}

// Query returns matching records, newest first.
func (s *MemoryStore) Query(ctx context.Context, f Filter) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Record
	for _, rec := range s.records {
		if matches(rec, f) {
			copied := *rec
			matched = append(matched, &copied)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := f.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Count returns the number of matching records.
func (s *MemoryStore) Count(ctx context.Context, f Filter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, rec := range s.records {
		if matches(rec, f) {
			count++
		}
	}
	return count, nil
}

// Summarize aggregates matching records.
func (s *MemoryStore) Summarize(ctx context.Context, f Filter) (*Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := &Summary{ByModel: make(map[string]int64)}
	for _, rec := range s.records {
		if !matches(rec, f) {
			continue
		}
		summary.Requests++
		if rec.StatusCode >= 300 {
			summary.Errors++
		}
		summary.ByModel[rec.Model]++
	}
	return summary, nil
}

// DeleteBefore removes records created before the cutoff.
func (s *MemoryStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var deleted int64
	for _, rec := range s.records {
		if rec.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	return deleted, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

func matches(rec *Record, f Filter) bool {
	if f.Principal != "" && rec.Principal != f.Principal {
		return false
	}
	if f.Model != "" && rec.Model != f.Model {
		return false
	}
	if !f.Since.IsZero() && rec.CreatedAt.Before(f.Since) {
		return false
	}
	return true
}
