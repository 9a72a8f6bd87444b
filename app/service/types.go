package service

import (
	"time"

	"github.com/huanchen1107/TawinCWA/app/database"
	"github.com/huanchen1107/TawinCWA/app/quality"
	"github.com/huanchen1107/TawinCWA/app/table"
)

// Kind is a refreshable data type. Its value doubles as the freshness key
// and the table name.
type Kind string

const (
	KindForecasts    Kind = database.TableForecasts
	KindEarthquakes  Kind = database.TableEarthquakes
	KindObservations Kind = database.TableObservations
)

// Kinds lists every refreshable data type in reporting order.
var Kinds = []Kind{KindForecasts, KindEarthquakes, KindObservations}

func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

type State string

const (
	StateFresh      State = "fresh"
	StateStale      State = "stale"
	StateRefreshing State = "refreshing"
)

// Metadata accompanies every read of a data type.
type Metadata struct {
	RecordCount   int                       `json:"record_count"`
	LastUpdate    *time.Time                `json:"last_update"`
	DataAgeHours  *float64                  `json:"data_age_hours"`
	IsFresh       bool                      `json:"is_fresh"`
	Refreshed     bool                      `json:"refreshed"`
	Error         string                    `json:"error,omitempty"`
	QualityScore  *float64                  `json:"quality_score"`
	QualityIssues []quality.ValidationError `json:"quality_issues,omitempty"`
	Source        string                    `json:"source"`
	Dataset       string                    `json:"dataset"`
	Filters       map[string]interface{}    `json:"filters,omitempty"`
}

type TypeHealth struct {
	DataType       string     `json:"data_type"`
	Dataset        string     `json:"dataset"`
	State          State      `json:"state"`
	LastUpdate     *time.Time `json:"last_update"`
	AgeHours       *float64   `json:"age_hours"`
	ThresholdHours float64    `json:"threshold_hours"`
	RecordCount    int        `json:"record_count"`
	QualityScore   *float64   `json:"quality_score"`
	LastError      string     `json:"last_error,omitempty"`
}

type HealthStatus struct {
	Score           float64                `json:"health_score"`
	Status          string                 `json:"status"`
	DataTypes       map[string]TypeHealth  `json:"data_types"`
	Stats           *database.Stats        `json:"database_stats"`
	Recommendations []string               `json:"recommendations"`
	Cache           map[string]interface{} `json:"cache,omitempty"`
	CheckedAt       time.Time              `json:"last_checked"`
}

type ConnectivityResult struct {
	Status         string    `json:"status"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	Error          string    `json:"error,omitempty"`
	LastTested     time.Time `json:"last_tested"`
}

// DatasetResult is a normalized dataset fetched on demand from any source.
type DatasetResult struct {
	Source          string                    `json:"source"`
	DatasetID       string                    `json:"dataset_id"`
	Records         *table.Table              `json:"records"`
	Summary         quality.Summary           `json:"summary"`
	QualityScore    float64                   `json:"quality_score"`
	Issues          []quality.ValidationError `json:"issues"`
	Cached          bool                      `json:"cached"`
	CacheTTLSeconds int64                     `json:"cache_ttl_seconds,omitempty"`
	FetchedAt       time.Time                 `json:"fetched_at"`
}
