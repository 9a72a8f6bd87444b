package api

import (
	"context"

	"github.com/huanchen1107/TawinCWA/app/database"
	"github.com/huanchen1107/TawinCWA/app/service"
	"github.com/huanchen1107/TawinCWA/app/source"
	"github.com/huanchen1107/TawinCWA/app/tasks"
)

// DataService is the query and command surface the HTTP handlers expose.
type DataService interface {
	Search(ctx context.Context, sourceName, query, category string, limit int) ([]source.Descriptor, error)
	GetDataset(ctx context.Context, sourceName, datasetID, format string, refresh bool) (*service.DatasetResult, error)
	Categories(ctx context.Context, sourceName string) ([]string, error)
	Sources() []string
	GetWeatherForecast(ctx context.Context, force bool) ([]database.Forecast, *service.Metadata, error)
	GetEarthquakes(ctx context.Context, daysBack int, minMagnitude float64, force bool) ([]database.Earthquake, *service.Metadata, error)
	GetObservations(ctx context.Context, force bool) ([]database.Observation, *service.Metadata, error)
	GetHealthStatus(ctx context.Context) (*service.HealthStatus, error)
	ForceRefresh(ctx context.Context, kind service.Kind) (int, error)
	ForceRefreshAll(ctx context.Context) (map[string]bool, error)
	ExportTable(ctx context.Context, name, path string) (string, int, error)
	ExportAll(ctx context.Context) (map[string]string, error)
	Cleanup(ctx context.Context, retentionDays int) (*database.CleanupResult, error)
	TestConnectivity(ctx context.Context) map[string]service.ConnectivityResult
}

var _ DataService = (*service.DataService)(nil)

// SourceConfigs exposes the loaded source configuration files.
type SourceConfigs interface {
	GetConfig(sourceName string) (*source.Config, error)
	GetConfigs() map[string]*source.Config
}

var _ SourceConfigs = (*source.ConfigCache)(nil)

type Handler struct {
	svc           DataService
	configs       SourceConfigs
	scheduler     tasks.TaskSchedulerInterface
	retentionDays int
}
