package cfg

import (
	"testing"
	"time"
)

func TestGetVersion(t *testing.T) {
	// Test default version
	if GetVersion() == "" {
		t.Error("GetVersion should never return empty string")
	}

	version := GetVersion()
	if version != "dev" && version != "unknown" {
		// This is fine, version could be set at build time
		t.Logf("Version: %s", version)
	}
}

func TestLoadArgsDefaults(t *testing.T) {
	cfg, err := LoadArgs([]string{"--timezone", ""})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.ForecastThreshold != 3*time.Hour {
		t.Errorf("Expected forecast threshold 3h, got %v", cfg.ForecastThreshold)
	}
	if cfg.EarthquakeThreshold != time.Hour {
		t.Errorf("Expected earthquake threshold 1h, got %v", cfg.EarthquakeThreshold)
	}
	if cfg.ObservationThreshold != 30*time.Minute {
		t.Errorf("Expected observation threshold 30m, got %v", cfg.ObservationThreshold)
	}
	if cfg.UserAgent != "GovDataCrawler/1.0" {
		t.Errorf("Expected user agent 'GovDataCrawler/1.0', got '%s'", cfg.UserAgent)
	}
	if cfg.RetentionDays != 30 {
		t.Errorf("Expected retention days 30, got %d", cfg.RetentionDays)
	}
	if cfg.ForecastDataset != "F-C0032-001" {
		t.Errorf("Expected forecast dataset 'F-C0032-001', got '%s'", cfg.ForecastDataset)
	}
	if Get() != cfg {
		t.Error("Expected Get to return the loaded configuration")
	}
}

func TestLoadArgsOverrides(t *testing.T) {
	cfg, err := LoadArgs([]string{
		"--timezone", "",
		"--db-path", "/tmp/test.db",
		"--forecast-threshold", "90m",
		"--worker-count", "7",
		"--api-key", "test-key",
		"--debug",
	})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.DBPath != "/tmp/test.db" {
		t.Errorf("Expected DB path '/tmp/test.db', got '%s'", cfg.DBPath)
	}
	if cfg.ForecastThreshold != 90*time.Minute {
		t.Errorf("Expected forecast threshold 90m, got %v", cfg.ForecastThreshold)
	}
	if cfg.WorkerCount != 7 {
		t.Errorf("Expected worker count 7, got %d", cfg.WorkerCount)
	}
	if cfg.APIAccessKey != "test-key" {
		t.Errorf("Expected API key 'test-key', got '%s'", cfg.APIAccessKey)
	}
	if !cfg.Debug {
		t.Error("Expected debug to be enabled")
	}
}

func TestLoadArgsEnv(t *testing.T) {
	t.Setenv("EARTHQUAKE_THRESHOLD", "2h")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := LoadArgs([]string{"--timezone", ""})
	if err != nil {
		t.Fatal(err)
	}

	if cfg.EarthquakeThreshold != 2*time.Hour {
		t.Errorf("Expected earthquake threshold 2h, got %v", cfg.EarthquakeThreshold)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("Expected redis addr 'localhost:6379', got '%s'", cfg.RedisAddr)
	}
}

func TestLoadArgsInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"zero threshold", []string{"--timezone", "", "--forecast-threshold", "0s"}},
		{"no workers", []string{"--timezone", "", "--worker-count", "0"}},
		{"bad duration", []string{"--timezone", "", "--refresh-timeout", "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadArgs(tt.args); err == nil {
				t.Error("Expected error")
			}
		})
	}
}
