package tasks

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskTypeRefresh TaskType = "refresh"
	TaskTypeCleanup TaskType = "cleanup"
)

const (
	DefaultMaxRetries = 3
	maxRetryDelay     = 30 * time.Second
)

// TaskInterface is a unit of work run by a scheduler worker. Implementations
// embed Task to get Meta.
type TaskInterface interface {
	Execute(ctx context.Context) error
	Meta() *Task
}

// Task identifies a job and counts its attempts. Target is the data type a
// refresh works on, or "store" for maintenance jobs.
type Task struct {
	ID     string
	Type   TaskType
	Target string
	// Retries is how many reruns a failed job gets.
	Retries  int
	Attempts int

	startedAt time.Time
}

func NewTask(taskType TaskType, target string) Task {
	return Task{
		ID:      uuid.NewString(),
		Type:    taskType,
		Target:  target,
		Retries: DefaultMaxRetries,
	}
}

func (t *Task) Meta() *Task {
	return t
}

// begin marks the start of another attempt.
func (t *Task) begin() {
	t.Attempts++
	t.startedAt = time.Now()
}

// Elapsed is the time since the current attempt began.
func (t *Task) Elapsed() time.Duration {
	if t.startedAt.IsZero() {
		return 0
	}
	return time.Since(t.startedAt)
}

// Reruns is the number of attempts after the first.
func (t *Task) Reruns() int {
	if t.Attempts == 0 {
		return 0
	}
	return t.Attempts - 1
}

// Backoff returns the wait before the next attempt, doubling from one second
// up to maxRetryDelay. It reports false once the retries are used up.
func (t *Task) Backoff() (time.Duration, bool) {
	n := t.Reruns()
	if n >= t.Retries {
		return 0, false
	}
	if n >= 5 {
		return maxRetryDelay, true
	}
	return min(time.Second<<n, maxRetryDelay), true
}

func (t *Task) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", t.ID),
		slog.String("type", string(t.Type)),
		slog.String("target", t.Target),
		slog.Int("attempts", t.Attempts),
	)
}
