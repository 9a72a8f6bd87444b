package tasks

import (
	"context"

	"github.com/huanchen1107/TawinCWA/app/database"
	"github.com/huanchen1107/TawinCWA/app/service"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application to manage background refresh and retention.
// Example usage:
//
//	scheduler, err := NewScheduler(dataService, Options{Interval: time.Minute, WorkerCount: 2})
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueTask(NewCleanupTask(30, dataService))
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	Health() map[string]interface{}
}

type Refresher interface {
	RefreshIfStale(ctx context.Context, kind service.Kind) (bool, error)
}

type Cleaner interface {
	Cleanup(ctx context.Context, retentionDays int) (*database.CleanupResult, error)
}

// DataService is the part of the data service the scheduler drives.
type DataService interface {
	Refresher
	Cleaner
}

var _ DataService = (*service.DataService)(nil)
