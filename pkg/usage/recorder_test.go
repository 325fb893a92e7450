package usage

import (
	"context"
	"testing"
	"time"
)

func TestRecorder_WritesAsync(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, nil)

	rec.Record("alice", "model-a", 1200*time.Millisecond, 200)
	rec.Record("bob", "model-b", 800*time.Millisecond, 504)

	// Close drains the buffer.
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	count, err := store.Count(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 records written, got %d", count)
	}

	records, err := store.Query(context.Background(), Filter{Principal: "bob"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(records) != 1 || records[0].StatusCode != 504 {
		t.Errorf("unexpected bob record: %+v", records)
	}
}

func TestRecorder_DisabledWritesNothing(t *testing.T) {
	store := NewMemoryStore()
	cfg := DefaultRecorderConfig()
	cfg.Enabled = false
	rec := NewRecorder(store, cfg)

	rec.Record("alice", "model-a", time.Second, 200)
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	count, _ := store.Count(context.Background(), Filter{})
	if count != 0 {
		t.Errorf("disabled recorder should write nothing, got %d records", count)
	}
}

func TestRecorder_FullBufferDrops(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	cfg := DefaultRecorderConfig()
	cfg.BufferSize = 1
	rec := NewRecorder(store, cfg)

	// First record occupies the worker, second fills the buffer, the rest drop.
	for i := 0; i < 5; i++ {
		rec.Record("p", "m", time.Second, 200)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && rec.Dropped() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if rec.Dropped() == 0 {
		t.Error("expected drops when the buffer is full")
	}

	close(store.release)
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

// blockingStore blocks Insert until released, to back up the recorder.
type blockingStore struct {
	MemoryStore
	release chan struct{}
}

func (s *blockingStore) Insert(ctx context.Context, rec *Record) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return s.MemoryStore.Insert(context.Background(), rec)
}

func TestPruner_Prune(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_ = store.Insert(ctx, newTestRecord("p", "m", 200, 40*24*time.Hour))
	_ = store.Insert(ctx, newTestRecord("p", "m", 200, time.Hour))

	pruner := NewPruner(store, &RetentionConfig{Days: 30, Schedule: ""})
	deleted, err := pruner.Prune(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deletion, got %d", deleted)
	}

	count, _ := store.Count(ctx, Filter{})
	if count != 1 {
		t.Errorf("expected 1 remaining record, got %d", count)
	}
}

func TestPruner_ZeroDaysKeepsEverything(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_ = store.Insert(ctx, newTestRecord("p", "m", 200, 365*24*time.Hour))

	pruner := NewPruner(store, &RetentionConfig{Days: 0})
	deleted, err := pruner.Prune(ctx)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if deleted != 0 {
		t.Errorf("retention of 0 days must not prune, deleted %d", deleted)
	}
}

func TestPruner_InvalidSchedule(t *testing.T) {
	pruner := NewPruner(NewMemoryStore(), &RetentionConfig{Days: 30, Schedule: "not a cron"})
	if err := pruner.Start(context.Background()); err == nil {
		t.Error("expected error for invalid cron expression")
	}
}

func TestPruner_SchedulerLifecycle(t *testing.T) {
	pruner := NewPruner(NewMemoryStore(), &RetentionConfig{Days: 30, Schedule: "0 3 * * *"})

	ctx, cancel := context.WithCancel(context.Background())
	if err := pruner.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	if pruner.NextRun() == nil {
		t.Error("expected a scheduled next run")
	}

	cancel()
	// Stop is idempotent and safe after context cancellation.
	pruner.Stop()
}
