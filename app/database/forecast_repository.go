package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type forecastRepository struct {
	q Querier
}

func NewForecastRepository(q Querier) ForecastRepository {
	return &forecastRepository{q: q}
}

// Upsert replaces any existing row with the same location and period start in
// full. Fields missing from the newer record are not merged from the old one.
func (r *forecastRepository) Upsert(ctx context.Context, forecasts []Forecast) (int, error) {
	createdAt := unixMilli(r.q.now())

	n := 0
	for _, f := range forecasts {
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO weather_forecasts (
				location, temperature, temperature_unit, weather_condition,
				rain_probability, humidity, wind_speed, period_start, period_end, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (location, period_start) DO UPDATE SET
				temperature = excluded.temperature,
				temperature_unit = excluded.temperature_unit,
				weather_condition = excluded.weather_condition,
				rain_probability = excluded.rain_probability,
				humidity = excluded.humidity,
				wind_speed = excluded.wind_speed,
				period_end = excluded.period_end,
				created_at = excluded.created_at
		`, f.Location, nullableFloat(f.Temperature), f.TemperatureUnit, f.WeatherCondition,
			nullableFloat(f.RainProbability), nullableFloat(f.Humidity), nullableFloat(f.WindSpeed),
			f.PeriodStart, f.PeriodEnd, createdAt)
		if err != nil {
			return n, fmt.Errorf("failed to upsert forecast for %s: %w", f.Location, err)
		}
		n++
	}

	return n, nil
}

// Query returns forecasts stored within maxAge, by location then newest first.
func (r *forecastRepository) Query(ctx context.Context, maxAge time.Duration) ([]Forecast, error) {
	since := unixMilli(r.q.now().Add(-maxAge))
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, location, temperature, temperature_unit, weather_condition,
		       rain_probability, humidity, wind_speed, period_start, period_end, created_at
		FROM weather_forecasts
		WHERE created_at >= ?
		ORDER BY location, created_at DESC, period_start
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query forecasts: %w", err)
	}
	return scanForecasts(rows)
}

func (r *forecastRepository) All(ctx context.Context) ([]Forecast, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, location, temperature, temperature_unit, weather_condition,
		       rain_probability, humidity, wind_speed, period_start, period_end, created_at
		FROM weather_forecasts
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get forecasts: %w", err)
	}
	return scanForecasts(rows)
}

func (r *forecastRepository) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.q, TableForecasts)
}

func scanForecasts(rows *sql.Rows) ([]Forecast, error) {
	defer rows.Close()

	forecasts := []Forecast{}
	for rows.Next() {
		var (
			f                                      Forecast
			temperature, rain, humidity, windSpeed sql.NullFloat64
			createdAt                              int64
		)
		err := rows.Scan(
			&f.ID, &f.Location, &temperature, &f.TemperatureUnit, &f.WeatherCondition,
			&rain, &humidity, &windSpeed, &f.PeriodStart, &f.PeriodEnd, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan forecast row: %w", err)
		}
		f.Temperature = floatPtr(temperature)
		f.RainProbability = floatPtr(rain)
		f.Humidity = floatPtr(humidity)
		f.WindSpeed = floatPtr(windSpeed)
		f.CreatedAt = fromMilli(createdAt)
		forecasts = append(forecasts, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating forecast rows: %w", err)
	}

	return forecasts, nil
}

// countRows is only called with table name constants.
func countRows(ctx context.Context, q Querier, table string) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}
