package source

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeSourceFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestConfigCacheLoadValidConfig(t *testing.T) {
	tempDir := t.TempDir()

	writeSourceFile(t, tempDir, "taiwan_cwa.yml", `
type: cwa
enabled: true
base_url: "https://opendata.cwa.gov.tw"
api_url: "https://opendata.cwa.gov.tw/fileapi/v1/opendataapi/"
api_key: "secret"
rate_limit: 0.5
timeout: 15
`)

	configCache := NewConfigCache(tempDir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	if configCache.GetConfigCount() != 1 {
		t.Errorf("Expected 1 config, got %d", configCache.GetConfigCount())
	}

	config, err := configCache.GetConfig("taiwan_cwa")
	if err != nil {
		t.Fatal(err)
	}

	if config.Name != "taiwan_cwa" {
		t.Errorf("Expected name 'taiwan_cwa', got '%s'", config.Name)
	}
	if config.Type != TypeCWA {
		t.Errorf("Expected type 'cwa', got '%s'", config.Type)
	}
	if config.APIURL != "https://opendata.cwa.gov.tw/fileapi/v1/opendataapi" {
		t.Errorf("Expected trailing slash trimmed from API URL, got '%s'", config.APIURL)
	}
	if config.Delay() != 500*time.Millisecond {
		t.Errorf("Expected delay 500ms, got %v", config.Delay())
	}
	if config.TimeoutDuration() != 15*time.Second {
		t.Errorf("Expected timeout 15s, got %v", config.TimeoutDuration())
	}
}

func TestConfigCacheLoadConfigWithDefaults(t *testing.T) {
	tempDir := t.TempDir()

	writeSourceFile(t, tempDir, "census.yml", `
type: census
enabled: true
api_url: "https://api.census.gov/data"
`)

	configCache := NewConfigCache(tempDir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	config, err := configCache.GetConfig("census")
	if err != nil {
		t.Fatal(err)
	}

	if config.RateLimit != 1.0 {
		t.Errorf("Expected default rate limit 1.0, got %v", config.RateLimit)
	}
	if config.MaxResults != 100 {
		t.Errorf("Expected default max results 100, got %d", config.MaxResults)
	}
	if config.Timeout != 30 {
		t.Errorf("Expected default timeout 30, got %d", config.Timeout)
	}
	if config.MaxRetries != 3 {
		t.Errorf("Expected default max retries 3, got %d", config.MaxRetries)
	}
	if strings.Join(config.Variables, ",") != "NAME,POP" {
		t.Errorf("Expected default variables NAME,POP, got %v", config.Variables)
	}
	if config.Geography != "state:*" {
		t.Errorf("Expected default geography 'state:*', got '%s'", config.Geography)
	}
}

func TestConfigCacheExpandsEnvironment(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("CWA_TEST_KEY", "from-env")

	writeSourceFile(t, tempDir, "cwa.yml", `
type: cwa
enabled: true
api_url: "https://opendata.cwa.gov.tw/fileapi/v1/opendataapi"
api_key: "${CWA_TEST_KEY}"
`)

	configCache := NewConfigCache(tempDir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	config, _ := configCache.GetConfig("cwa")
	if config.APIKey != "from-env" {
		t.Errorf("Expected API key from environment, got '%s'", config.APIKey)
	}
}

func TestConfigCacheInvalidConfigs(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errText string
	}{
		{
			name:    "missing type",
			content: "api_url: \"https://example.com/api\"\n",
			errText: "type is required",
		},
		{
			name:    "missing api url",
			content: "type: catalog\n",
			errText: "API URL is required",
		},
		{
			name:    "unknown type",
			content: "type: ftp\napi_url: \"https://example.com/api\"\n",
			errText: "unknown source type",
		},
		{
			name:    "relative api url",
			content: "type: catalog\napi_url: \"/api/3\"\n",
			errText: "invalid API URL",
		},
		{
			name:    "negative rate limit",
			content: "type: catalog\napi_url: \"https://example.com/api\"\nrate_limit: -1\n",
			errText: "rate limit must be non-negative",
		},
		{
			name:    "negative retries",
			content: "type: catalog\napi_url: \"https://example.com/api\"\nmax_retries: -2\n",
			errText: "max retries must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()
			writeSourceFile(t, tempDir, "bad.yml", tt.content)

			err := NewConfigCache(tempDir).Run()
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("Expected error containing %q, got %q", tt.errText, err.Error())
			}
		})
	}
}

func TestConfigCacheMissingDirectory(t *testing.T) {
	configCache := NewConfigCache(filepath.Join(t.TempDir(), "missing"))
	if err := configCache.Run(); err != nil {
		t.Errorf("Expected no error for missing directory, got %v", err)
	}
	if configCache.GetConfigCount() != 0 {
		t.Errorf("Expected 0 configs, got %d", configCache.GetConfigCount())
	}
}

func TestConfigCacheGetEnabledConfigs(t *testing.T) {
	tempDir := t.TempDir()

	writeSourceFile(t, tempDir, "on.yml", "type: catalog\nenabled: true\napi_url: \"https://example.com/api\"\n")
	writeSourceFile(t, tempDir, "off.yml", "type: catalog\nenabled: false\napi_url: \"https://example.com/api\"\n")

	configCache := NewConfigCache(tempDir)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	if configCache.GetConfigCount() != 2 {
		t.Errorf("Expected 2 configs, got %d", configCache.GetConfigCount())
	}

	enabled := configCache.GetEnabledConfigs()
	if len(enabled) != 1 {
		t.Fatalf("Expected 1 enabled config, got %d", len(enabled))
	}
	if _, ok := enabled["on"]; !ok {
		t.Error("Expected 'on' to be enabled")
	}

	if _, err := configCache.GetConfig("missing"); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("Expected ErrUnknownSource, got %v", err)
	}
}

func TestNewRegistrySkipsDisabledSources(t *testing.T) {
	configs := map[string]*Config{
		"data_gov":   {Name: "data_gov", Type: TypeCatalog, Enabled: true, APIURL: "https://example.com/api/3", MaxResults: 10},
		"census":     {Name: "census", Type: TypeCensus, Enabled: false, APIURL: "https://example.com/data", MaxResults: 10},
		"taiwan_cwa": {Name: "taiwan_cwa", Type: TypeCWA, Enabled: true, APIURL: "https://example.com/cwa", MaxResults: 10},
	}

	registry, err := NewRegistry(configs, nil, "test-agent")
	if err != nil {
		t.Fatal(err)
	}

	names := registry.Names()
	if strings.Join(names, ",") != "data_gov,taiwan_cwa" {
		t.Errorf("Expected data_gov,taiwan_cwa, got %v", names)
	}

	if _, err := registry.Get("census"); err == nil {
		t.Error("Expected error for disabled source")
	}
	adapter, err := registry.Get("taiwan_cwa")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := adapter.(*CWAAdapter); !ok {
		t.Errorf("Expected *CWAAdapter, got %T", adapter)
	}
}
