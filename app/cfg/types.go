package cfg

import "time"

type Cfg struct {
	// Storage configuration
	DBPath     string
	SourcesDir string
	ExportDir  string

	// Application configuration
	Port              string
	APIAccessKey      string
	WorkerCount       int
	SchedulerInterval int
	RefreshTimeout    time.Duration

	// Refresh policy
	WeatherSource        string
	ForecastDataset      string
	EarthquakeDataset    string
	ObservationDataset   string
	ForecastThreshold    time.Duration
	EarthquakeThreshold  time.Duration
	ObservationThreshold time.Duration
	RetentionDays        int
	CleanupSchedule      string

	// Response cache
	RedisAddr string
	CacheTTL  time.Duration

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
