package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jszwec/csvutil"
)

// Export writes one table as CSV with a header row to path.
func (s *Store) Export(ctx context.Context, table, path string) (int, error) {
	data, rows, err := s.marshalTable(ctx, table)
	if err != nil {
		return 0, err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("failed to create export directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("failed to write export file: %w", err)
	}

	return rows, nil
}

// ExportAll writes every table to {table}_{timestamp}.csv in dir and returns
// the written paths keyed by table.
func (s *Store) ExportAll(ctx context.Context, dir string) (map[string]string, error) {
	stamp := s.db.now().Format("20060102_150405")

	paths := make(map[string]string, len(Tables))
	for _, table := range Tables {
		path := filepath.Join(dir, table+"_"+stamp+".csv")
		if _, err := s.Export(ctx, table, path); err != nil {
			return paths, fmt.Errorf("failed to export %s: %w", table, err)
		}
		paths[table] = path
	}
	return paths, nil
}

func (s *Store) marshalTable(ctx context.Context, table string) ([]byte, int, error) {
	var (
		v   interface{}
		n   int
		err error
	)

	switch table {
	case TableForecasts:
		var rows []Forecast
		rows, err = s.Forecasts.All(ctx)
		v, n = rows, len(rows)
	case TableEarthquakes:
		var rows []Earthquake
		rows, err = s.Earthquakes.All(ctx)
		v, n = rows, len(rows)
	case TableObservations:
		var rows []Observation
		rows, err = s.Observations.All(ctx)
		v, n = rows, len(rows)
	case TableCallLogs:
		var rows []CallLog
		rows, err = s.CallLogs.All(ctx)
		v, n = rows, len(rows)
	case TableFreshness:
		var entries map[string]Freshness
		entries, err = s.Freshness.All(ctx)
		rows := make([]Freshness, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, e)
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].DataType < rows[j].DataType })
		v, n = rows, len(rows)
	default:
		return nil, 0, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	if err != nil {
		return nil, 0, err
	}

	data, err := csvutil.Marshal(v)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode %s as CSV: %w", table, err)
	}
	return data, n, nil
}
