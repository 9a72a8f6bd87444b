package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type observationRepository struct {
	q Querier
}

func NewObservationRepository(q Querier) ObservationRepository {
	return &observationRepository{q: q}
}

func (r *observationRepository) Upsert(ctx context.Context, observations []Observation) (int, error) {
	createdAt := unixMilli(r.q.now())

	n := 0
	for _, o := range observations {
		_, err := r.q.ExecContext(ctx, `
			INSERT INTO weather_observations (
				station_id, station_name, observation_time, lat, lon,
				temperature, humidity, pressure, wind_speed, wind_direction, visibility, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (station_id, observation_time) DO UPDATE SET
				station_name = excluded.station_name,
				lat = excluded.lat,
				lon = excluded.lon,
				temperature = excluded.temperature,
				humidity = excluded.humidity,
				pressure = excluded.pressure,
				wind_speed = excluded.wind_speed,
				wind_direction = excluded.wind_direction,
				visibility = excluded.visibility,
				created_at = excluded.created_at
		`, o.StationID, o.StationName, o.ObservationTime, nullableFloat(o.Lat), nullableFloat(o.Lon),
			nullableFloat(o.Temperature), nullableFloat(o.Humidity), nullableFloat(o.Pressure),
			nullableFloat(o.WindSpeed), nullableFloat(o.WindDirection), o.Visibility, createdAt)
		if err != nil {
			return n, fmt.Errorf("failed to upsert observation for station %s: %w", o.StationID, err)
		}
		n++
	}

	return n, nil
}

func (r *observationRepository) Query(ctx context.Context, maxAge time.Duration) ([]Observation, error) {
	since := unixMilli(r.q.now().Add(-maxAge))
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, station_id, station_name, observation_time, lat, lon,
		       temperature, humidity, pressure, wind_speed, wind_direction, visibility, created_at
		FROM weather_observations
		WHERE created_at >= ?
		ORDER BY station_id, observation_time DESC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	return scanObservations(rows)
}

func (r *observationRepository) All(ctx context.Context) ([]Observation, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, station_id, station_name, observation_time, lat, lon,
		       temperature, humidity, pressure, wind_speed, wind_direction, visibility, created_at
		FROM weather_observations
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get observations: %w", err)
	}
	return scanObservations(rows)
}

func (r *observationRepository) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.q, TableObservations)
}

func scanObservations(rows *sql.Rows) ([]Observation, error) {
	defer rows.Close()

	observations := []Observation{}
	for rows.Next() {
		var (
			o                                  Observation
			lat, lon, temp, humidity, pressure sql.NullFloat64
			windSpeed, windDirection           sql.NullFloat64
			createdAt                          int64
		)
		err := rows.Scan(
			&o.ID, &o.StationID, &o.StationName, &o.ObservationTime, &lat, &lon,
			&temp, &humidity, &pressure, &windSpeed, &windDirection, &o.Visibility, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan observation row: %w", err)
		}
		o.Lat = floatPtr(lat)
		o.Lon = floatPtr(lon)
		o.Temperature = floatPtr(temp)
		o.Humidity = floatPtr(humidity)
		o.Pressure = floatPtr(pressure)
		o.WindSpeed = floatPtr(windSpeed)
		o.WindDirection = floatPtr(windDirection)
		o.CreatedAt = fromMilli(createdAt)
		observations = append(observations, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating observation rows: %w", err)
	}

	return observations, nil
}
