package service

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/huanchen1107/TawinCWA/app/cache"
	"github.com/huanchen1107/TawinCWA/app/database"
	"github.com/huanchen1107/TawinCWA/app/metrics"
	"github.com/huanchen1107/TawinCWA/app/normalize"
	"github.com/huanchen1107/TawinCWA/app/quality"
	"github.com/huanchen1107/TawinCWA/app/source"
)

const (
	DefaultWeatherSource  = "taiwan_cwa"
	DefaultRefreshTimeout = 2 * time.Minute
	DefaultCacheTTL       = time.Hour

	readWindow = 24 * time.Hour
)

// DefaultDatasets names the CWA dataset refreshed for each data type.
var DefaultDatasets = map[Kind]string{
	KindForecasts:    "F-C0032-001",
	KindEarthquakes:  "E-A0015-001",
	KindObservations: "O-A0001-001",
}

var DefaultThresholds = map[Kind]time.Duration{
	KindForecasts:    3 * time.Hour,
	KindEarthquakes:  time.Hour,
	KindObservations: 30 * time.Minute,
}

type Options struct {
	Store    *database.Store
	Registry source.Registry
	// Cache is optional. Without it search and dataset reads always go upstream.
	Cache          cache.ResponseCache
	CacheTTL       time.Duration
	WeatherSource  string
	Datasets       map[Kind]string
	Thresholds     map[Kind]time.Duration
	RefreshTimeout time.Duration
	ExportDir      string
	Location       *time.Location
}

// DataService answers reads from the store and refreshes a data type from its
// upstream source first when the stored copy is stale. At most one refresh per
// data type is in flight and concurrent callers share its result.
type DataService struct {
	store          *database.Store
	registry       source.Registry
	cache          cache.ResponseCache
	cacheTTL       time.Duration
	weatherSource  string
	datasets       map[Kind]string
	thresholds     map[Kind]time.Duration
	refreshTimeout time.Duration
	exportDir      string
	location       *time.Location
	normalizer     *normalize.Normalizer
	validator      *quality.Validator

	mu         sync.Mutex
	flights    map[Kind]*flight
	refreshing map[Kind]bool
	lastErrors map[Kind]error
}

func NewDataService(opts Options) *DataService {
	s := &DataService{
		store:          opts.Store,
		registry:       opts.Registry,
		cache:          opts.Cache,
		cacheTTL:       opts.CacheTTL,
		weatherSource:  opts.WeatherSource,
		datasets:       make(map[Kind]string, len(Kinds)),
		thresholds:     make(map[Kind]time.Duration, len(Kinds)),
		refreshTimeout: opts.RefreshTimeout,
		exportDir:      opts.ExportDir,
		location:       opts.Location,
		validator:      quality.NewValidator(),
		flights:        make(map[Kind]*flight),
		refreshing:     make(map[Kind]bool),
		lastErrors:     make(map[Kind]error),
	}

	if s.registry == nil {
		s.registry = source.Registry{}
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = DefaultCacheTTL
	}
	if s.weatherSource == "" {
		s.weatherSource = DefaultWeatherSource
	}
	if s.refreshTimeout <= 0 {
		s.refreshTimeout = DefaultRefreshTimeout
	}
	if s.location == nil {
		s.location = time.UTC
	}
	s.normalizer = normalize.NewNormalizer(s.location)

	for _, kind := range Kinds {
		s.datasets[kind] = DefaultDatasets[kind]
		if id := opts.Datasets[kind]; id != "" {
			s.datasets[kind] = id
		}
		s.thresholds[kind] = DefaultThresholds[kind]
		if th := opts.Thresholds[kind]; th > 0 {
			s.thresholds[kind] = th
		}
	}

	return s
}

// GetWeatherForecast returns forecasts stored within the last 24 hours,
// refreshing them first when stale or when force is set.
func (s *DataService) GetWeatherForecast(ctx context.Context, force bool) ([]database.Forecast, *Metadata, error) {
	outcome, err := s.ensureFresh(ctx, KindForecasts, force)
	if err != nil {
		return nil, nil, err
	}

	forecasts, err := s.store.Forecasts.Query(ctx, readWindow)
	if err != nil {
		return nil, nil, err
	}
	if forecasts == nil {
		forecasts = []database.Forecast{}
	}

	meta, err := s.metadata(ctx, KindForecasts, len(forecasts), outcome)
	if err != nil {
		return nil, nil, err
	}
	return forecasts, meta, nil
}

// GetEarthquakes returns reports from the last daysBack days with at least
// minMagnitude.
func (s *DataService) GetEarthquakes(ctx context.Context, daysBack int, minMagnitude float64, force bool) ([]database.Earthquake, *Metadata, error) {
	if daysBack < 1 {
		return nil, nil, fmt.Errorf("days back must be at least 1, got %d", daysBack)
	}

	outcome, err := s.ensureFresh(ctx, KindEarthquakes, force)
	if err != nil {
		return nil, nil, err
	}

	earthquakes, err := s.store.Earthquakes.Query(ctx, daysBack, minMagnitude)
	if err != nil {
		return nil, nil, err
	}
	if earthquakes == nil {
		earthquakes = []database.Earthquake{}
	}

	meta, err := s.metadata(ctx, KindEarthquakes, len(earthquakes), outcome)
	if err != nil {
		return nil, nil, err
	}
	meta.Filters = map[string]interface{}{
		"days_back":     daysBack,
		"min_magnitude": minMagnitude,
	}
	return earthquakes, meta, nil
}

// GetObservations returns station readings stored within the last 24
// hours.
func (s *DataService) GetObservations(ctx context.Context, force bool) ([]database.Observation, *Metadata, error) {
	outcome, err := s.ensureFresh(ctx, KindObservations, force)
	if err != nil {
		return nil, nil, err
	}

	observations, err := s.store.Observations.Query(ctx, readWindow)
	if err != nil {
		return nil, nil, err
	}
	if observations == nil {
		observations = []database.Observation{}
	}

	meta, err := s.metadata(ctx, KindObservations, len(observations), outcome)
	if err != nil {
		return nil, nil, err
	}
	return observations, meta, nil
}

// State reports whether kind is fresh, stale or being refreshed.
func (s *DataService) State(ctx context.Context, kind Kind) (State, error) {
	if refreshing, _ := s.refreshState(kind); refreshing {
		return StateRefreshing, nil
	}
	stale, err := s.isStale(ctx, kind)
	if err != nil {
		return "", err
	}
	if stale {
		return StateStale, nil
	}
	return StateFresh, nil
}

func (s *DataService) Thresholds() map[Kind]time.Duration {
	thresholds := make(map[Kind]time.Duration, len(s.thresholds))
	for k, v := range s.thresholds {
		thresholds[k] = v
	}
	return thresholds
}

// ExportTable writes one table as CSV. An empty path picks a timestamped
// file in the export directory.
func (s *DataService) ExportTable(ctx context.Context, name, path string) (string, int, error) {
	if path == "" {
		path = filepath.Join(s.exportDir, fmt.Sprintf("%s_%s.csv", name, s.store.Now().Format("20060102_150405")))
	}
	n, err := s.store.Export(ctx, name, path)
	if err != nil {
		return "", 0, err
	}
	return path, n, nil
}

func (s *DataService) ExportAll(ctx context.Context) (map[string]string, error) {
	return s.store.ExportAll(ctx, s.exportDir)
}

func (s *DataService) Cleanup(ctx context.Context, retentionDays int) (*database.CleanupResult, error) {
	return s.store.Cleanup(ctx, retentionDays)
}

func (s *DataService) isStale(ctx context.Context, kind Kind) (bool, error) {
	entry, err := s.store.Freshness.Get(ctx, string(kind))
	if err != nil {
		return false, fmt.Errorf("failed to get freshness for %s: %w", kind, err)
	}
	if entry == nil {
		return true, nil
	}
	return entry.Age > s.thresholds[kind], nil
}

func (s *DataService) metadata(ctx context.Context, kind Kind, count int, outcome *refreshOutcome) (*Metadata, error) {
	entry, err := s.store.Freshness.Get(ctx, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to get freshness for %s: %w", kind, err)
	}

	meta := &Metadata{
		RecordCount: count,
		Source:      s.weatherSource,
		Dataset:     s.datasets[kind],
	}

	if entry != nil {
		lastUpdate := entry.LastUpdate
		age := entry.Age.Hours()
		meta.LastUpdate = &lastUpdate
		meta.DataAgeHours = &age
		meta.QualityScore = entry.QualityScore
		meta.IsFresh = entry.Age <= s.thresholds[kind]
		metrics.DataAge.WithLabelValues(string(kind)).Set(entry.Age.Seconds())
	}

	if outcome != nil {
		meta.Refreshed = outcome.Err == nil
		meta.QualityIssues = outcome.Issues
		if outcome.Err != nil {
			meta.IsFresh = false
			meta.Error = outcome.Err.Error()
		}
	}

	if meta.Error != "" {
		slog.Debug("Serving stored data after failed refresh", "type", string(kind), "records", count, "error", meta.Error)
	}

	return meta, nil
}
