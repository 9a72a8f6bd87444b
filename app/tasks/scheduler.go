package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/huanchen1107/TawinCWA/app/service"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const (
	taskTimeout   = 5 * time.Minute
	queueCapacity = 300
)

type Options struct {
	Interval      time.Duration
	WorkerCount   int
	Kinds         []service.Kind
	RetentionDays int
	// CleanupSchedule is a cron expression with a seconds field. Empty
	// disables scheduled cleanup.
	CleanupSchedule string
}

type Stats struct {
	CurrentWorkers  int        `json:"current_workers"`
	TotalProcessed  int64      `json:"total_processed"`
	TotalErrors     int64      `json:"total_errors"`
	QueueSize       int        `json:"queue_size"`
	LastProcessedAt *time.Time `json:"last_processed_at"`
}

type Scheduler struct {
	svc           DataService
	kinds         []service.Kind
	interval      time.Duration
	workerCount   int
	retentionDays int
	cron          *cron.Cron
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	taskQueue     chan TaskInterface

	mu    sync.Mutex
	stats Stats
}

func NewScheduler(svc DataService, opts Options) (*Scheduler, error) {
	if opts.WorkerCount < 1 {
		return nil, fmt.Errorf("worker count must be at least 1, got %d", opts.WorkerCount)
	}
	if opts.Interval <= 0 {
		return nil, fmt.Errorf("scheduler interval must be positive, got %s", opts.Interval)
	}
	if len(opts.Kinds) == 0 {
		opts.Kinds = service.Kinds
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		svc:           svc,
		kinds:         opts.Kinds,
		interval:      opts.Interval,
		workerCount:   opts.WorkerCount,
		retentionDays: opts.RetentionDays,
		cron:          cron.New(cron.WithSeconds()),
		ctx:           ctx,
		cancel:        cancel,
		taskQueue:     make(chan TaskInterface, queueCapacity),
		stats:         Stats{CurrentWorkers: opts.WorkerCount},
	}

	if opts.CleanupSchedule != "" {
		if opts.RetentionDays < 1 {
			cancel()
			return nil, fmt.Errorf("retention days must be at least 1, got %d", opts.RetentionDays)
		}
		_, err := s.cron.AddFunc(opts.CleanupSchedule, func() {
			slog.Info("Scheduled cleanup triggered", "retention_days", s.retentionDays)
			if err := s.EnqueueTask(NewCleanupTask(s.retentionDays, s.svc)); err != nil {
				slog.Warn("Failed to enqueue CleanupTask", "error", err)
			}
		})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("invalid cleanup schedule %q: %w", opts.CleanupSchedule, err)
		}
	}

	return s, nil
}

func (s *Scheduler) Start() {
	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueTasks()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueTasks()
			}
		}
	}()

	s.cron.Start()
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := s.stats
	stats.QueueSize = len(s.taskQueue)
	return stats
}

// Health reports the worker pool as degraded above a 10% task error rate and
// unhealthy above 50%.
func (s *Scheduler) Health() map[string]interface{} {
	stats := s.GetStats()

	errorRate := 0.0
	if stats.TotalProcessed > 0 {
		errorRate = float64(stats.TotalErrors) / float64(stats.TotalProcessed)
	}

	status := "healthy"
	switch {
	case errorRate > 0.5:
		status = "unhealthy"
	case errorRate > 0.1:
		status = "degraded"
	}

	return map[string]interface{}{
		"status":          status,
		"workers":         stats.CurrentWorkers,
		"queue_size":      stats.QueueSize,
		"total_processed": stats.TotalProcessed,
		"total_errors":    stats.TotalErrors,
		"error_rate":      errorRate,
	}
}

// enqueueTasks queues a refresh for every data type. The refresh itself
// returns early when the stored copy is still fresh.
func (s *Scheduler) enqueueTasks() {
	slog.Debug("Scheduling background refresh", "types", len(s.kinds))

	for _, kind := range s.kinds {
		if err := s.EnqueueTask(NewRefreshTask(kind, s.svc)); err != nil {
			slog.Warn("Failed to enqueue RefreshTask", "type", string(kind), "error", err)
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(id, task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(workerID int, task TaskInterface) {
	meta := task.Meta()
	meta.begin()

	taskCtx, cancel := context.WithTimeout(s.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	s.record(err)
	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "worker_id", workerID, "task", meta, "error", err)

	delay, ok := meta.Backoff()
	if !ok {
		slog.Error("Task failed after maximum retries", "task", meta, "retries", meta.Retries, "last_error", err)
		return
	}

	slog.Warn("Task retry scheduled", "task", meta, "retries", meta.Retries, "delay", delay.String())
	go func() {
		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "task", meta)
		case <-time.After(delay):
			if retryErr := s.EnqueueTask(task); retryErr != nil {
				slog.Error("Failed to re-enqueue task for retry", "task", meta, "error", retryErr)
			}
		}
	}()
}

func (s *Scheduler) record(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.stats.TotalProcessed++
	s.stats.LastProcessedAt = &now
	if err != nil {
		s.stats.TotalErrors++
	}
}
