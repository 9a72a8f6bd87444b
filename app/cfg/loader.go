package cfg

import (
	"cmp"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath     string `long:"db-path" env:"DB_PATH" default:"./data/gov_data.db" description:"Path to the SQLite store file"`
	SourcesDir string `long:"sources-dir" env:"SOURCES_DIR" default:"./sources" description:"Directory containing source configuration files"`
	ExportDir  string `long:"export-dir" env:"EXPORT_DIR" default:"./exports" description:"Directory for CSV exports"`

	// Application configuration
	Port              string        `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey      string        `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	WorkerCount       int           `long:"worker-count" env:"WORKER_COUNT" default:"3" description:"Number of background workers for refresh tasks"`
	SchedulerInterval int           `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"300" description:"Scheduler interval in seconds"`
	RefreshTimeout    time.Duration `long:"refresh-timeout" env:"REFRESH_TIMEOUT" default:"2m" description:"Maximum duration of one refresh cycle"`

	// Refresh policy
	WeatherSource        string        `long:"weather-source" env:"WEATHER_SOURCE" default:"taiwan_cwa" description:"Source name serving weather and earthquake data"`
	ForecastDataset      string        `long:"forecast-dataset" env:"FORECAST_DATASET" default:"F-C0032-001" description:"Dataset id for weather forecasts"`
	EarthquakeDataset    string        `long:"earthquake-dataset" env:"EARTHQUAKE_DATASET" default:"E-A0015-001" description:"Dataset id for earthquake reports"`
	ObservationDataset   string        `long:"observation-dataset" env:"OBSERVATION_DATASET" default:"O-A0001-001" description:"Dataset id for weather observations"`
	ForecastThreshold    time.Duration `long:"forecast-threshold" env:"FORECAST_THRESHOLD" default:"3h" description:"Age after which forecasts are stale"`
	EarthquakeThreshold  time.Duration `long:"earthquake-threshold" env:"EARTHQUAKE_THRESHOLD" default:"1h" description:"Age after which earthquake reports are stale"`
	ObservationThreshold time.Duration `long:"observation-threshold" env:"OBSERVATION_THRESHOLD" default:"30m" description:"Age after which observations are stale"`
	RetentionDays        int           `long:"retention-days" env:"RETENTION_DAYS" default:"30" description:"Days of forecasts and call logs to keep (earthquakes are kept twice as long)"`
	CleanupSchedule      string        `long:"cleanup-schedule" env:"CLEANUP_SCHEDULE" default:"0 0 3 * * *" description:"Cron schedule (with seconds) for retention cleanup"`

	// Response cache
	RedisAddr string        `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for the response cache (optional)"`
	CacheTTL  time.Duration `long:"cache-ttl" env:"CACHE_TTL" default:"24h" description:"Time to live of cached responses"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"GovDataCrawler/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, Asia/Taipei)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:               raw.DBPath,
		SourcesDir:           raw.SourcesDir,
		ExportDir:            raw.ExportDir,
		Port:                 raw.Port,
		APIAccessKey:         raw.APIAccessKey,
		WorkerCount:          raw.WorkerCount,
		SchedulerInterval:    raw.SchedulerInterval,
		RefreshTimeout:       raw.RefreshTimeout,
		WeatherSource:        raw.WeatherSource,
		ForecastDataset:      raw.ForecastDataset,
		EarthquakeDataset:    raw.EarthquakeDataset,
		ObservationDataset:   raw.ObservationDataset,
		ForecastThreshold:    raw.ForecastThreshold,
		EarthquakeThreshold:  raw.EarthquakeThreshold,
		ObservationThreshold: raw.ObservationThreshold,
		RetentionDays:        raw.RetentionDays,
		CleanupSchedule:      raw.CleanupSchedule,
		RedisAddr:            raw.RedisAddr,
		CacheTTL:             raw.CacheTTL,
		UserAgent:            raw.UserAgent,
		Timezone:             raw.Timezone,
		Debug:                raw.Debug,
		Version:              GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func validate(cfg *Cfg) error {
	positiveDurations := map[string]time.Duration{
		"refresh timeout":       cfg.RefreshTimeout,
		"forecast threshold":    cfg.ForecastThreshold,
		"earthquake threshold":  cfg.EarthquakeThreshold,
		"observation threshold": cfg.ObservationThreshold,
	}

	for name, d := range positiveDurations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if cfg.WorkerCount < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if cfg.SchedulerInterval < 1 {
		return fmt.Errorf("scheduler interval must be at least 1 second")
	}
	if cfg.RetentionDays < 1 {
		return fmt.Errorf("retention days must be at least 1")
	}

	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}
