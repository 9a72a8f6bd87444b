package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type callLogRepository struct {
	q Querier
}

func NewCallLogRepository(q Querier) CallLogRepository {
	return &callLogRepository{q: q}
}

// Append inserts one audit entry. Entries are never updated or deduplicated.
// A zero CalledAt is stamped with the current time.
func (r *callLogRepository) Append(ctx context.Context, entry CallLog) error {
	calledAt := entry.CalledAt
	if calledAt.IsZero() {
		calledAt = r.q.now()
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO api_call_logs (endpoint, source, success, response_time_ms, records_processed, error_message, called_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.Endpoint, entry.Source, entry.Success, entry.ResponseTimeMs, entry.RecordsProcessed,
		entry.ErrorMessage, unixMilli(calledAt))
	if err != nil {
		return fmt.Errorf("failed to append call log: %w", err)
	}

	return nil
}

// Since summarises calls made at or after since.
func (r *callLogRepository) Since(ctx context.Context, since time.Time) (int, int, float64, error) {
	var (
		total     int
		succeeded sql.NullInt64
		avgMs     sql.NullFloat64
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*), SUM(success), AVG(response_time_ms)
		FROM api_call_logs
		WHERE called_at >= ?
	`, unixMilli(since)).Scan(&total, &succeeded, &avgMs)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to summarise call logs: %w", err)
	}

	return total, int(succeeded.Int64), avgMs.Float64, nil
}

func (r *callLogRepository) All(ctx context.Context) ([]CallLog, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, endpoint, source, success, response_time_ms, records_processed, error_message, called_at
		FROM api_call_logs
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get call logs: %w", err)
	}
	defer rows.Close()

	logs := []CallLog{}
	for rows.Next() {
		var (
			l        CallLog
			calledAt int64
		)
		err := rows.Scan(&l.ID, &l.Endpoint, &l.Source, &l.Success, &l.ResponseTimeMs,
			&l.RecordsProcessed, &l.ErrorMessage, &calledAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan call log row: %w", err)
		}
		l.CalledAt = fromMilli(calledAt)
		logs = append(logs, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating call log rows: %w", err)
	}

	return logs, nil
}

func (r *callLogRepository) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.q, TableCallLogs)
}
