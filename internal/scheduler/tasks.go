package scheduler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gophora/discovery-service/internal/config"
	"gophora/discovery-service/internal/ingest"
)

// Task names.
const (
	TaskPrimary    = "primary"
	TaskEntryLevel = "entry_level"
	TaskCleanup    = "cleanup"
)

// Passes runs ingestion passes.
type Passes interface {
	RunPrimary(ctx context.Context) ingest.Summary
	RunEntryLevel(ctx context.Context) ingest.Summary
}

// Cleaner deactivates stale listings.
type Cleaner interface {
	DeactivateOlderThan(ctx context.Context, days int) (int64, error)
}

// DefaultTasks builds the primary, entry-level and cleanup tasks from cfg.
func DefaultTasks(logger *zap.Logger, cfg *config.Config, p Passes, c Cleaner) []Task {
	return []Task{
		{
			Name:       TaskPrimary,
			Interval:   cfg.PrimaryInterval,
			RunOnStart: cfg.RunOnStart,
			Run: func(ctx context.Context) error {
				p.RunPrimary(ctx)
				return ctx.Err()
			},
		},
		{
			Name:         TaskEntryLevel,
			Interval:     cfg.EntryInterval,
			InitialDelay: cfg.EntryOffset,
			RunOnStart:   cfg.RunOnStart,
			Run: func(ctx context.Context) error {
				p.RunEntryLevel(ctx)
				return ctx.Err()
			},
		},
		{
			Name: TaskCleanup,
			Spec: cfg.CleanupSpec,
			Run:  CleanupFunc(logger, c, cfg.RetentionDays),
		},
	}
}

// CleanupFunc returns a task body that deactivates listings older than
// retentionDays.
func CleanupFunc(logger *zap.Logger, c Cleaner, retentionDays int) func(context.Context) error {
	return func(ctx context.Context) error {
		n, err := c.DeactivateOlderThan(ctx, retentionDays)
		if err != nil {
			return fmt.Errorf("deactivate older than %d days: %w", retentionDays, err)
		}
		logger.Info("cleanup complete", zap.Int64("deactivated", n), zap.Int("retention_days", retentionDays))
		return nil
	}
}
