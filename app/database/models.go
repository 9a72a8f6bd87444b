package database

import (
	"time"
)

// Forecast is one stored weather forecast row, unique by location and period start.
type Forecast struct {
	ID               int64     `json:"id" csv:"id"`
	Location         string    `json:"location" csv:"location"`
	Temperature      *float64  `json:"temperature" csv:"temperature"`
	TemperatureUnit  string    `json:"temperature_unit" csv:"temperature_unit"`
	WeatherCondition string    `json:"weather_condition" csv:"weather_condition"`
	RainProbability  *float64  `json:"rain_probability" csv:"rain_probability"`
	Humidity         *float64  `json:"humidity" csv:"humidity"`
	WindSpeed        *float64  `json:"wind_speed" csv:"wind_speed"`
	PeriodStart      string    `json:"period_start" csv:"period_start"`
	PeriodEnd        string    `json:"period_end" csv:"period_end"`
	CreatedAt        time.Time `json:"created_at" csv:"created_at"`
}

// Earthquake is one stored earthquake report, unique by report number.
type Earthquake struct {
	ID             int64      `json:"id" csv:"id"`
	EarthquakeNo   string     `json:"earthquake_no" csv:"earthquake_no"`
	OriginTime     string     `json:"origin_time" csv:"origin_time"`
	OriginAt       *time.Time `json:"-" csv:"-"`
	MagnitudeValue *float64   `json:"magnitude_value" csv:"magnitude_value"`
	MagnitudeType  string     `json:"magnitude_type" csv:"magnitude_type"`
	Depth          *float64   `json:"depth" csv:"depth"`
	Location       string     `json:"location" csv:"location"`
	EpicenterLat   *float64   `json:"epicenter_lat" csv:"epicenter_lat"`
	EpicenterLon   *float64   `json:"epicenter_lon" csv:"epicenter_lon"`
	ReportType     string     `json:"report_type" csv:"report_type"`
	ReportColor    string     `json:"report_color" csv:"report_color"`
	ReportContent  string     `json:"report_content" csv:"report_content"`
	ReportURL      string     `json:"report_url" csv:"report_url"`
	CreatedAt      time.Time  `json:"created_at" csv:"created_at"`
}

// Observation is one station reading, unique by station and observation time.
type Observation struct {
	ID              int64     `json:"id" csv:"id"`
	StationID       string    `json:"station_id" csv:"station_id"`
	StationName     string    `json:"station_name" csv:"station_name"`
	ObservationTime string    `json:"observation_time" csv:"observation_time"`
	Lat             *float64  `json:"lat" csv:"lat"`
	Lon             *float64  `json:"lon" csv:"lon"`
	Temperature     *float64  `json:"temperature" csv:"temperature"`
	Humidity        *float64  `json:"humidity" csv:"humidity"`
	Pressure        *float64  `json:"pressure" csv:"pressure"`
	WindSpeed       *float64  `json:"wind_speed" csv:"wind_speed"`
	WindDirection   *float64  `json:"wind_direction" csv:"wind_direction"`
	Visibility      string    `json:"visibility" csv:"visibility"`
	CreatedAt       time.Time `json:"created_at" csv:"created_at"`
}

// CallLog is one upstream call in the append-only audit trail.
type CallLog struct {
	ID               int64     `json:"id" csv:"id"`
	Endpoint         string    `json:"endpoint" csv:"endpoint"`
	Source           string    `json:"source" csv:"source"`
	Success          bool      `json:"success" csv:"success"`
	ResponseTimeMs   int64     `json:"response_time_ms" csv:"response_time_ms"`
	RecordsProcessed int       `json:"records_processed" csv:"records_processed"`
	ErrorMessage     string    `json:"error_message" csv:"error_message"`
	CalledAt         time.Time `json:"called_at" csv:"called_at"`
}

// Freshness is the per data type refresh bookkeeping. Age is derived on read.
type Freshness struct {
	DataType     string        `json:"data_type" csv:"data_type"`
	LastUpdate   time.Time     `json:"last_update" csv:"last_update"`
	RecordCount  int           `json:"record_count" csv:"record_count"`
	QualityScore *float64      `json:"quality_score" csv:"quality_score"`
	Age          time.Duration `json:"-" csv:"-"`
}

type Stats struct {
	Counts          map[string]int `json:"counts"`
	SizeBytes       int64          `json:"size_bytes"`
	SizeMB          float64        `json:"size_mb"`
	SuccessRate24h  float64        `json:"success_rate_24h"`
	Calls24h        int            `json:"calls_24h"`
	AvgResponseTime float64        `json:"avg_response_time_ms"`
}

type CleanupResult struct {
	Forecasts    int64 `json:"forecasts"`
	Earthquakes  int64 `json:"earthquakes"`
	Observations int64 `json:"observations"`
	CallLogs     int64 `json:"call_logs"`
}

func (r CleanupResult) Total() int64 {
	return r.Forecasts + r.Earthquakes + r.Observations + r.CallLogs
}
