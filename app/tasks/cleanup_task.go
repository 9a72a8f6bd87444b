package tasks

import (
	"context"
	"fmt"
	"log/slog"
)

const cleanupTarget = "store"

type CleanupTask struct {
	Task
	retentionDays int
	cleaner       Cleaner
}

func NewCleanupTask(retentionDays int, cleaner Cleaner) *CleanupTask {
	task := &CleanupTask{
		Task:          NewTask(TaskTypeCleanup, cleanupTarget),
		retentionDays: retentionDays,
		cleaner:       cleaner,
	}
	// A failed cleanup is picked up by the next scheduled run.
	task.Retries = 1
	return task
}

func (t *CleanupTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result, err := t.cleaner.Cleanup(ctx, t.retentionDays)
	if err != nil {
		return fmt.Errorf("failed to clean up store: %w", err)
	}

	slog.Info("Retention cleanup finished", "id", t.ID, "retention_days", t.retentionDays, "deleted", result.Total())
	return nil
}
