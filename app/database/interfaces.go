package database

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Table names as stored and as accepted by Export.
const (
	TableForecasts    = "weather_forecasts"
	TableEarthquakes  = "earthquakes"
	TableObservations = "weather_observations"
	TableCallLogs     = "api_call_logs"
	TableFreshness    = "data_freshness"
)

var ErrUnknownTable = errors.New("unknown table")

// Tables lists every exportable table.
var Tables = []string{TableForecasts, TableEarthquakes, TableObservations, TableCallLogs, TableFreshness}

type ForecastRepository interface {
	Upsert(ctx context.Context, forecasts []Forecast) (int, error)
	Query(ctx context.Context, maxAge time.Duration) ([]Forecast, error)
	All(ctx context.Context) ([]Forecast, error)
	Count(ctx context.Context) (int, error)
}

type EarthquakeRepository interface {
	Upsert(ctx context.Context, earthquakes []Earthquake) (int, error)
	Query(ctx context.Context, daysBack int, minMagnitude float64) ([]Earthquake, error)
	All(ctx context.Context) ([]Earthquake, error)
	Count(ctx context.Context) (int, error)
}

type ObservationRepository interface {
	Upsert(ctx context.Context, observations []Observation) (int, error)
	Query(ctx context.Context, maxAge time.Duration) ([]Observation, error)
	All(ctx context.Context) ([]Observation, error)
	Count(ctx context.Context) (int, error)
}

type CallLogRepository interface {
	Append(ctx context.Context, entry CallLog) error
	Since(ctx context.Context, since time.Time) (total int, succeeded int, avgMs float64, err error)
	All(ctx context.Context) ([]CallLog, error)
	Count(ctx context.Context) (int, error)
}

type FreshnessRepository interface {
	Set(ctx context.Context, dataType string, recordCount int, qualityScore *float64) error
	Get(ctx context.Context, dataType string) (*Freshness, error)
	All(ctx context.Context) (map[string]Freshness, error)
}

// StoreError wraps a failed store operation. It is fatal to the current
// operation and always propagated.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
