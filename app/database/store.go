package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Store is the only path through which refresh results, audit entries and
// freshness bookkeeping are written.
type Store struct {
	db           *DB
	Forecasts    ForecastRepository
	Earthquakes  EarthquakeRepository
	Observations ObservationRepository
	CallLogs     CallLogRepository
	Freshness    FreshnessRepository
}

func NewStore(db *DB) *Store {
	return &Store{
		db:           db,
		Forecasts:    NewForecastRepository(db),
		Earthquakes:  NewEarthquakeRepository(db),
		Observations: NewObservationRepository(db),
		CallLogs:     NewCallLogRepository(db),
		Freshness:    NewFreshnessRepository(db),
	}
}

func (s *Store) Now() time.Time {
	return s.db.now()
}

// SaveForecasts upserts forecasts and overwrites the freshness entry for
// dataType as one transaction.
func (s *Store) SaveForecasts(ctx context.Context, dataType string, forecasts []Forecast, qualityScore *float64) (int, error) {
	var n int
	err := s.db.InTx(ctx, func(tx *Tx) error {
		var err error
		if n, err = NewForecastRepository(tx).Upsert(ctx, forecasts); err != nil {
			return err
		}
		return NewFreshnessRepository(tx).Set(ctx, dataType, n, qualityScore)
	})
	if err != nil {
		return 0, storeError("save forecasts", err)
	}
	return n, nil
}

func (s *Store) SaveEarthquakes(ctx context.Context, dataType string, earthquakes []Earthquake, qualityScore *float64) (int, error) {
	var n int
	err := s.db.InTx(ctx, func(tx *Tx) error {
		var err error
		if n, err = NewEarthquakeRepository(tx).Upsert(ctx, earthquakes); err != nil {
			return err
		}
		return NewFreshnessRepository(tx).Set(ctx, dataType, n, qualityScore)
	})
	if err != nil {
		return 0, storeError("save earthquakes", err)
	}
	return n, nil
}

func (s *Store) SaveObservations(ctx context.Context, dataType string, observations []Observation, qualityScore *float64) (int, error) {
	var n int
	err := s.db.InTx(ctx, func(tx *Tx) error {
		var err error
		if n, err = NewObservationRepository(tx).Upsert(ctx, observations); err != nil {
			return err
		}
		return NewFreshnessRepository(tx).Set(ctx, dataType, n, qualityScore)
	})
	if err != nil {
		return 0, storeError("save observations", err)
	}
	return n, nil
}

func (s *Store) AppendCallLog(ctx context.Context, entry CallLog) error {
	return storeError("append call log", s.CallLogs.Append(ctx, entry))
}

// Stats reports row counts, the store file size and the last 24 hours of call
// outcomes. With no calls in the window the success rate is 100.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Counts: make(map[string]int, len(Tables))}

	for _, table := range Tables {
		n, err := countRows(ctx, s.db, table)
		if err != nil {
			return nil, err
		}
		stats.Counts[table] = n
	}

	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return nil, fmt.Errorf("failed to read page count: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return nil, fmt.Errorf("failed to read page size: %w", err)
	}
	stats.SizeBytes = pageCount * pageSize
	stats.SizeMB = float64(stats.SizeBytes) / (1024 * 1024)

	total, succeeded, avgMs, err := s.CallLogs.Since(ctx, s.db.now().Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}
	stats.Calls24h = total
	stats.SuccessRate24h = 100
	if total > 0 {
		stats.SuccessRate24h = float64(succeeded) / float64(total) * 100
	}
	stats.AvgResponseTime = avgMs

	return stats, nil
}

// Cleanup deletes forecasts, observations and call logs older than
// retentionDays and earthquakes older than twice that, then vacuums the file.
func (s *Store) Cleanup(ctx context.Context, retentionDays int) (*CleanupResult, error) {
	if retentionDays < 1 {
		return nil, fmt.Errorf("retention days must be at least 1, got %d", retentionDays)
	}

	now := s.db.now()
	cutoff := unixMilli(now.AddDate(0, 0, -retentionDays))
	quakeCutoff := unixMilli(now.AddDate(0, 0, -2*retentionDays))

	result := &CleanupResult{}
	err := s.db.InTx(ctx, func(tx *Tx) error {
		deletes := []struct {
			query  string
			cutoff int64
			count  *int64
		}{
			{"DELETE FROM weather_forecasts WHERE created_at < ?", cutoff, &result.Forecasts},
			{"DELETE FROM weather_observations WHERE created_at < ?", cutoff, &result.Observations},
			{"DELETE FROM api_call_logs WHERE called_at < ?", cutoff, &result.CallLogs},
			{"DELETE FROM earthquakes WHERE created_at < ?", quakeCutoff, &result.Earthquakes},
		}
		for _, d := range deletes {
			res, err := tx.ExecContext(ctx, d.query, d.cutoff)
			if err != nil {
				return fmt.Errorf("failed to delete expired rows: %w", err)
			}
			if *d.count, err = res.RowsAffected(); err != nil {
				return fmt.Errorf("failed to read deleted row count: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeError("cleanup", err)
	}

	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		slog.Warn("Failed to vacuum database", "error", err)
	}

	slog.Info("Cleanup completed", "retention_days", retentionDays, "forecasts", result.Forecasts,
		"earthquakes", result.Earthquakes, "observations", result.Observations, "call_logs", result.CallLogs)

	return result, nil
}
