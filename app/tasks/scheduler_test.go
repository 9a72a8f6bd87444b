package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/huanchen1107/TawinCWA/app/database"
	"github.com/huanchen1107/TawinCWA/app/service"
)

// MockDataService records refresh and cleanup calls.
type MockDataService struct {
	mu         sync.Mutex
	refreshed  []service.Kind
	cleanups   []int
	refreshErr error
	cleanupErr error
	stillFresh bool
}

func (m *MockDataService) RefreshIfStale(ctx context.Context, kind service.Kind) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshed = append(m.refreshed, kind)
	if m.refreshErr != nil {
		return false, m.refreshErr
	}
	return !m.stillFresh, nil
}

func (m *MockDataService) Cleanup(ctx context.Context, retentionDays int) (*database.CleanupResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanups = append(m.cleanups, retentionDays)
	if m.cleanupErr != nil {
		return nil, m.cleanupErr
	}
	return &database.CleanupResult{Forecasts: 2, CallLogs: 1}, nil
}

func (m *MockDataService) refreshCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.refreshed)
}

func (m *MockDataService) cleanupCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cleanups)
}

func TestNewScheduler(t *testing.T) {
	scheduler, err := NewScheduler(&MockDataService{}, Options{Interval: time.Second, WorkerCount: 2})
	if err != nil {
		t.Fatal(err)
	}

	if scheduler.workerCount != 2 {
		t.Errorf("Expected worker count 2, got %d", scheduler.workerCount)
	}
	if scheduler.interval != time.Second {
		t.Errorf("Expected interval 1s, got %v", scheduler.interval)
	}
	if len(scheduler.kinds) != len(service.Kinds) {
		t.Errorf("Expected all data types by default, got %v", scheduler.kinds)
	}
	if scheduler.GetStats().CurrentWorkers != 2 {
		t.Errorf("Expected current workers 2, got %d", scheduler.GetStats().CurrentWorkers)
	}
}

func TestNewSchedulerValidation(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no workers", Options{Interval: time.Second}},
		{"no interval", Options{WorkerCount: 1}},
		{"bad cron", Options{Interval: time.Second, WorkerCount: 1, RetentionDays: 30, CleanupSchedule: "every night"}},
		{"cron without retention", Options{Interval: time.Second, WorkerCount: 1, CleanupSchedule: "0 0 3 * * *"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewScheduler(&MockDataService{}, tt.opts); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestNewTaskIDs(t *testing.T) {
	a := NewTask(TaskTypeRefresh, "earthquakes")
	b := NewTask(TaskTypeRefresh, "earthquakes")

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("Expected unique task IDs, got %q and %q", a.ID, b.ID)
	}
	if a.Retries != DefaultMaxRetries {
		t.Errorf("Expected %d retries, got %d", DefaultMaxRetries, a.Retries)
	}
	if a.Elapsed() != 0 {
		t.Errorf("Expected no elapsed time before the first attempt, got %v", a.Elapsed())
	}
}

func TestTaskBackoff(t *testing.T) {
	task := NewTask(TaskTypeRefresh, "forecasts")

	var delays []time.Duration
	for {
		task.begin()
		delay, ok := task.Backoff()
		if !ok {
			break
		}
		delays = append(delays, delay)
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("Expected delays %v, got %v", want, delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("Expected delay %d to be %v, got %v", i, want[i], delays[i])
		}
	}
	if task.Attempts != DefaultMaxRetries+1 || task.Reruns() != DefaultMaxRetries {
		t.Errorf("Expected %d attempts, got %d", DefaultMaxRetries+1, task.Attempts)
	}

	long := NewTask(TaskTypeRefresh, "forecasts")
	long.Retries = 10
	long.Attempts = 8
	if delay, ok := long.Backoff(); !ok || delay != maxRetryDelay {
		t.Errorf("Expected delay capped at %v, got %v", maxRetryDelay, delay)
	}
}

func TestRefreshTaskExecute(t *testing.T) {
	mock := &MockDataService{}
	task := NewRefreshTask(service.KindEarthquakes, mock)

	if task.Type != TaskTypeRefresh || task.Target != "earthquakes" {
		t.Errorf("Unexpected task identity: %s %s", task.Type, task.Target)
	}
	if err := task.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(mock.refreshed) != 1 || mock.refreshed[0] != service.KindEarthquakes {
		t.Errorf("Expected one earthquakes refresh, got %v", mock.refreshed)
	}

	mock.refreshErr = errors.New("upstream down")
	if err := task.Execute(context.Background()); err == nil {
		t.Error("Expected refresh error to be returned")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := task.Execute(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context canceled, got %v", err)
	}
}

func TestCleanupTaskExecute(t *testing.T) {
	mock := &MockDataService{}
	task := NewCleanupTask(30, mock)

	if task.Retries != 1 {
		t.Errorf("Expected cleanup to retry once, got %d", task.Retries)
	}
	if err := task.Execute(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(mock.cleanups) != 1 || mock.cleanups[0] != 30 {
		t.Errorf("Expected cleanup with 30 days, got %v", mock.cleanups)
	}

	mock.cleanupErr = errors.New("disk full")
	if err := task.Execute(context.Background()); err == nil {
		t.Error("Expected cleanup error to be returned")
	}
}

func TestExecuteTaskStatistics(t *testing.T) {
	mock := &MockDataService{}
	scheduler, err := NewScheduler(mock, Options{Interval: time.Second, WorkerCount: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer scheduler.cancel()

	scheduler.executeTask(0, NewRefreshTask(service.KindForecasts, mock))

	stats := scheduler.GetStats()
	if stats.TotalProcessed != 1 || stats.TotalErrors != 0 {
		t.Errorf("Expected 1 processed and 0 errors, got %d and %d", stats.TotalProcessed, stats.TotalErrors)
	}
	if stats.LastProcessedAt == nil {
		t.Error("Expected last processed at to be set")
	}

	mock.refreshErr = errors.New("boom")
	task := NewRefreshTask(service.KindForecasts, mock)
	scheduler.executeTask(0, task)

	stats = scheduler.GetStats()
	if stats.TotalProcessed != 2 || stats.TotalErrors != 1 {
		t.Errorf("Expected 2 processed and 1 error, got %d and %d", stats.TotalProcessed, stats.TotalErrors)
	}
	if task.Attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", task.Attempts)
	}
	if _, ok := task.Backoff(); !ok {
		t.Error("Expected a retry to be scheduled")
	}
}

func TestHealth(t *testing.T) {
	scheduler, err := NewScheduler(&MockDataService{}, Options{Interval: time.Second, WorkerCount: 2})
	if err != nil {
		t.Fatal(err)
	}

	health := scheduler.Health()
	if health["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", health["status"])
	}
	if health["workers"] != 2 {
		t.Errorf("Expected workers 2, got %v", health["workers"])
	}

	scheduler.mu.Lock()
	scheduler.stats.TotalProcessed = 10
	scheduler.stats.TotalErrors = 2
	scheduler.mu.Unlock()

	health = scheduler.Health()
	if health["error_rate"] != 0.2 {
		t.Errorf("Expected error rate 0.2, got %v", health["error_rate"])
	}
	if health["status"] != "degraded" {
		t.Errorf("Expected status 'degraded' with 20%% error rate, got %v", health["status"])
	}

	scheduler.mu.Lock()
	scheduler.stats.TotalErrors = 6
	scheduler.mu.Unlock()

	if health = scheduler.Health(); health["status"] != "unhealthy" {
		t.Errorf("Expected status 'unhealthy' with 60%% error rate, got %v", health["status"])
	}
}

func TestEnqueueTaskQueueFull(t *testing.T) {
	mock := &MockDataService{}
	scheduler, err := NewScheduler(mock, Options{Interval: time.Second, WorkerCount: 1})
	if err != nil {
		t.Fatal(err)
	}
	defer scheduler.cancel()

	for i := 0; i < queueCapacity; i++ {
		if err := scheduler.EnqueueTask(NewRefreshTask(service.KindForecasts, mock)); err != nil {
			t.Fatalf("Unexpected error at %d: %v", i, err)
		}
	}
	if err := scheduler.EnqueueTask(NewRefreshTask(service.KindForecasts, mock)); err == nil {
		t.Error("Expected error when queue is full")
	}
}

func TestSchedulerLifecycle(t *testing.T) {
	mock := &MockDataService{stillFresh: true}
	scheduler, err := NewScheduler(mock, Options{
		Interval:        100 * time.Millisecond,
		WorkerCount:     1,
		RetentionDays:   7,
		CleanupSchedule: "* * * * * *",
	})
	if err != nil {
		t.Fatal(err)
	}

	scheduler.Start()
	time.Sleep(1500 * time.Millisecond)
	scheduler.Stop()

	if mock.refreshCount() < len(service.Kinds) {
		t.Errorf("Expected at least %d refreshes, got %d", len(service.Kinds), mock.refreshCount())
	}
	if mock.cleanupCount() == 0 {
		t.Error("Expected the cron schedule to trigger a cleanup")
	}

	if err := scheduler.EnqueueTask(NewCleanupTask(7, mock)); err == nil {
		t.Error("Expected enqueue to fail after stop")
	}
}
