package tasks

import (
	"context"
	"log/slog"

	"github.com/huanchen1107/TawinCWA/app/service"
)

type RefreshTask struct {
	Task
	kind      service.Kind
	refresher Refresher
}

func NewRefreshTask(kind service.Kind, refresher Refresher) *RefreshTask {
	return &RefreshTask{
		Task:      NewTask(TaskTypeRefresh, string(kind)),
		kind:      kind,
		refresher: refresher,
	}
}

func (t *RefreshTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	refreshed, err := t.refresher.RefreshIfStale(ctx, t.kind)
	if err != nil {
		return err
	}

	if !refreshed {
		slog.Debug("Data still fresh, skipping refresh", "type", t.Target)
		return nil
	}

	slog.Info("Background refresh completed", "type", t.Target, "id", t.ID, "duration", t.Elapsed())
	return nil
}
