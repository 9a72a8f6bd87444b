package database

import (
	"context"
	"database/sql"
	"fmt"
)

type freshnessRepository struct {
	q Querier
}

func NewFreshnessRepository(q Querier) FreshnessRepository {
	return &freshnessRepository{q: q}
}

// Set overwrites the entry for dataType, stamping it with the current time.
func (r *freshnessRepository) Set(ctx context.Context, dataType string, recordCount int, qualityScore *float64) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO data_freshness (data_type, last_update, record_count, quality_score)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (data_type) DO UPDATE SET
			last_update = excluded.last_update,
			record_count = excluded.record_count,
			quality_score = excluded.quality_score
	`, dataType, unixMilli(r.q.now()), recordCount, nullableFloat(qualityScore))
	if err != nil {
		return fmt.Errorf("failed to set freshness for %s: %w", dataType, err)
	}

	return nil
}

func (r *freshnessRepository) Get(ctx context.Context, dataType string) (*Freshness, error) {
	var (
		f            Freshness
		lastUpdate   int64
		qualityScore sql.NullFloat64
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT data_type, last_update, record_count, quality_score
		FROM data_freshness
		WHERE data_type = ?
	`, dataType).Scan(&f.DataType, &lastUpdate, &f.RecordCount, &qualityScore)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get freshness for %s: %w", dataType, err)
	}

	r.derive(&f, lastUpdate, qualityScore)
	return &f, nil
}

func (r *freshnessRepository) All(ctx context.Context) (map[string]Freshness, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT data_type, last_update, record_count, quality_score
		FROM data_freshness
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get freshness: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]Freshness)
	for rows.Next() {
		var (
			f            Freshness
			lastUpdate   int64
			qualityScore sql.NullFloat64
		)
		if err := rows.Scan(&f.DataType, &lastUpdate, &f.RecordCount, &qualityScore); err != nil {
			return nil, fmt.Errorf("failed to scan freshness row: %w", err)
		}
		r.derive(&f, lastUpdate, qualityScore)
		entries[f.DataType] = f
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating freshness rows: %w", err)
	}

	return entries, nil
}

func (r *freshnessRepository) derive(f *Freshness, lastUpdate int64, qualityScore sql.NullFloat64) {
	f.LastUpdate = fromMilli(lastUpdate)
	f.QualityScore = floatPtr(qualityScore)
	f.Age = r.q.now().Sub(f.LastUpdate)
	if f.Age < 0 {
		f.Age = 0
	}
}
