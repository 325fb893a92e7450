package usage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// RetentionConfig contains configuration for the retention pruner.
type RetentionConfig struct {
	// Days is the number of days to retain usage records.
	// 0 means keep records forever (no pruning).
	Days int

	// Schedule is a cron expression for scheduling pruning.
	// Example: "0 3 * * *" (daily at 3 AM)
	Schedule string
}

// DefaultRetentionConfig returns the default retention configuration.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		Days:     30,
		Schedule: "0 3 * * *",
	}
}

// Pruner enforces the retention policy on stored usage records.
type Pruner struct {
	store  Store
	config *RetentionConfig
	cron   *cron.Cron

	mu      sync.Mutex
	running bool
	logger  *slog.Logger
}

// NewPruner creates a retention pruner over the given store.
func NewPruner(store Store, config *RetentionConfig) *Pruner {
	if config == nil {
		config = DefaultRetentionConfig()
	}
	return &Pruner{
		store:  store,
		config: config,
		cron:   cron.New(),
		logger: slog.Default().With("component", "usage.retention"),
	}
}

// Prune deletes records older than the retention period and returns how
// many were deleted.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.config.Days <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -p.config.Days)
	deleted, err := p.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("usage pruning failed: %w", err)
	}

	if deleted > 0 {
		p.logger.Info("pruned usage records",
			"deleted_count", deleted,
			"retention_days", p.config.Days,
		)
	}
	return deleted, nil
}

// Start schedules pruning per the cron expression. If the schedule is
// empty the pruner does nothing. The scheduler stops when the context is
// cancelled.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.config.Schedule == "" {
		p.logger.Info("prune schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(p.config.Schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", p.config.Schedule, err)
	}

	if _, err := p.cron.AddFunc(p.config.Schedule, func() {
		if _, err := p.Prune(ctx); err != nil {
			p.logger.Error("scheduled pruning failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	p.cron.Start()
	p.running = true

	p.logger.Info("usage retention scheduler started",
		"schedule", p.config.Schedule,
		"retention_days", p.config.Days,
	)

	go func() {
		<-ctx.Done()
		p.Stop()
	}()

	return nil
}

// Stop stops the scheduler and waits for any running job to complete.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		ctx := p.cron.Stop()
		<-ctx.Done()
		p.running = false
		p.logger.Info("usage retention scheduler stopped")
	}
}

// NextRun returns the next scheduled pruning time, or nil when the
// scheduler is idle.
func (p *Pruner) NextRun() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := p.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
