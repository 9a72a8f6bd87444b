package database

import (
	"context"
	"database/sql"
	"fmt"
)

type earthquakeRepository struct {
	q Querier
}

func NewEarthquakeRepository(q Querier) EarthquakeRepository {
	return &earthquakeRepository{q: q}
}

func (r *earthquakeRepository) Upsert(ctx context.Context, earthquakes []Earthquake) (int, error) {
	createdAt := unixMilli(r.q.now())

	n := 0
	for _, e := range earthquakes {
		var originAt interface{}
		if e.OriginAt != nil {
			originAt = unixMilli(*e.OriginAt)
		}

		_, err := r.q.ExecContext(ctx, `
			INSERT INTO earthquakes (
				earthquake_no, origin_time, origin_at, magnitude_value, magnitude_type, depth,
				location, epicenter_lat, epicenter_lon,
				report_type, report_color, report_content, report_url, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (earthquake_no) DO UPDATE SET
				origin_time = excluded.origin_time,
				origin_at = excluded.origin_at,
				magnitude_value = excluded.magnitude_value,
				magnitude_type = excluded.magnitude_type,
				depth = excluded.depth,
				location = excluded.location,
				epicenter_lat = excluded.epicenter_lat,
				epicenter_lon = excluded.epicenter_lon,
				report_type = excluded.report_type,
				report_color = excluded.report_color,
				report_content = excluded.report_content,
				report_url = excluded.report_url,
				created_at = excluded.created_at
		`, e.EarthquakeNo, e.OriginTime, originAt, nullableFloat(e.MagnitudeValue), e.MagnitudeType,
			nullableFloat(e.Depth), e.Location, nullableFloat(e.EpicenterLat), nullableFloat(e.EpicenterLon),
			e.ReportType, e.ReportColor, e.ReportContent, e.ReportURL, createdAt)
		if err != nil {
			return n, fmt.Errorf("failed to upsert earthquake %s: %w", e.EarthquakeNo, err)
		}
		n++
	}

	return n, nil
}

// Query returns reports stored within daysBack days with at least
// minMagnitude, most recent origin first. Reports without a magnitude are
// only included when minMagnitude is zero or less.
func (r *earthquakeRepository) Query(ctx context.Context, daysBack int, minMagnitude float64) ([]Earthquake, error) {
	since := unixMilli(r.q.now().AddDate(0, 0, -daysBack))
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, earthquake_no, origin_time, origin_at, magnitude_value, magnitude_type, depth,
		       location, epicenter_lat, epicenter_lon,
		       report_type, report_color, report_content, report_url, created_at
		FROM earthquakes
		WHERE created_at >= ?
		  AND (COALESCE(magnitude_value, 0) >= ?)
		ORDER BY origin_at DESC, origin_time DESC
	`, since, minMagnitude)
	if err != nil {
		return nil, fmt.Errorf("failed to query earthquakes: %w", err)
	}
	return scanEarthquakes(rows)
}

func (r *earthquakeRepository) All(ctx context.Context) ([]Earthquake, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, earthquake_no, origin_time, origin_at, magnitude_value, magnitude_type, depth,
		       location, epicenter_lat, epicenter_lon,
		       report_type, report_color, report_content, report_url, created_at
		FROM earthquakes
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get earthquakes: %w", err)
	}
	return scanEarthquakes(rows)
}

func (r *earthquakeRepository) Count(ctx context.Context) (int, error) {
	return countRows(ctx, r.q, TableEarthquakes)
}

func scanEarthquakes(rows *sql.Rows) ([]Earthquake, error) {
	defer rows.Close()

	earthquakes := []Earthquake{}
	for rows.Next() {
		var (
			e                          Earthquake
			originAt                   sql.NullInt64
			magnitude, depth, lat, lon sql.NullFloat64
			createdAt                  int64
		)
		err := rows.Scan(
			&e.ID, &e.EarthquakeNo, &e.OriginTime, &originAt, &magnitude, &e.MagnitudeType, &depth,
			&e.Location, &lat, &lon,
			&e.ReportType, &e.ReportColor, &e.ReportContent, &e.ReportURL, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan earthquake row: %w", err)
		}
		if originAt.Valid {
			t := fromMilli(originAt.Int64)
			e.OriginAt = &t
		}
		e.MagnitudeValue = floatPtr(magnitude)
		e.Depth = floatPtr(depth)
		e.EpicenterLat = floatPtr(lat)
		e.EpicenterLon = floatPtr(lon)
		e.CreatedAt = fromMilli(createdAt)
		earthquakes = append(earthquakes, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating earthquake rows: %w", err)
	}

	return earthquakes, nil
}
