package source

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	TypeCatalog = "catalog"
	TypeCensus  = "census"
	TypeCWA     = "cwa"
)

type Config struct {
	Name       string   // Derived from filename (without .yml extension)
	Type       string   `yaml:"type"`
	Enabled    bool     `yaml:"enabled"`
	BaseURL    string   `yaml:"base_url"`
	APIURL     string   `yaml:"api_url"`
	APIKey     string   `yaml:"api_key"`
	RateLimit  float64  `yaml:"rate_limit"` // seconds between requests
	MaxResults int      `yaml:"max_results"`
	Timeout    int      `yaml:"timeout"` // seconds
	MaxRetries int      `yaml:"max_retries"`
	Format     string   `yaml:"format"`    // preferred catalog resource format
	Variables  []string `yaml:"variables"` // census variables to request
	Geography  string   `yaml:"geography"` // census "for" clause
}

func (c *Config) Delay() time.Duration {
	return time.Duration(c.RateLimit * float64(time.Second))
}

func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

type ConfigCache struct {
	sourcesDir string
	cache      map[string]*Config
	mu         sync.RWMutex
}

func NewConfigCache(sourcesDir string) *ConfigCache {
	return &ConfigCache{
		sourcesDir: sourcesDir,
		cache:      make(map[string]*Config),
	}
}

func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.sourcesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.sourcesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		sourceName := strings.TrimSuffix(filepath.Base(file), ".yml")

		config, err := cc.LoadConfig(sourceName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Source configuration loaded", "source", sourceName, "type", config.Type, "enabled", config.Enabled, "rate_limit", config.RateLimit)
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(sourceName string) (*Config, error) {
	configFile := cc.getConfigFilePath(sourceName)
	config, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	config.Name = sourceName

	if err := cc.validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[config.Name] = config

	return config, nil
}

func (cc *ConfigCache) GetConfig(sourceName string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	config, ok := cc.cache[sourceName]
	if !ok {
		return nil, fmt.Errorf("%w: no config named '%s'", ErrUnknownSource, sourceName)
	}
	return config, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

func (cc *ConfigCache) GetEnabledConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	enabledConfigs := make(map[string]*Config)
	for k, v := range cc.cache {
		if v.Enabled {
			enabledConfigs[k] = v
		}
	}
	return enabledConfigs
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.Type = strings.ToLower(strings.TrimSpace(config.Type))
	config.APIURL = strings.TrimRight(config.APIURL, "/")

	if config.RateLimit == 0 {
		config.RateLimit = 1.0
	}
	if config.MaxResults == 0 {
		config.MaxResults = 100
	}
	if config.Timeout == 0 {
		config.Timeout = 30
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 3
	}
	if config.Format == "" {
		config.Format = "JSON"
	}
	if len(config.Variables) == 0 {
		config.Variables = []string{"NAME", "POP"}
	}
	if config.Geography == "" {
		config.Geography = "state:*"
	}

	return &config, nil
}

func (cc *ConfigCache) validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	requiredFields := map[string]string{
		"source name": config.Name,
		"type":        config.Type,
		"API URL":     config.APIURL,
	}

	for _, fieldName := range sortedKeys(requiredFields) {
		if requiredFields[fieldName] == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	switch config.Type {
	case TypeCatalog, TypeCensus, TypeCWA:
	default:
		return fmt.Errorf("unknown source type: %s", config.Type)
	}

	if u, err := url.Parse(config.APIURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid API URL: %s", config.APIURL)
	}

	if config.RateLimit < 0 {
		return fmt.Errorf("rate limit must be non-negative")
	}

	nonNegativeFields := map[string]int{
		"max results": config.MaxResults,
		"timeout":     config.Timeout,
		"max retries": config.MaxRetries,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(sourceName string) string {
	return filepath.Join(cc.sourcesDir, sourceName+".yml")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
