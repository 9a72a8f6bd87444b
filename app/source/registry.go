package source

import (
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/huanchen1107/TawinCWA/app/fetch"
)

var ErrUnknownSource = errors.New("unknown source")

// Registry maps a source name to its adapter. It is built once at startup and
// shared read-only.
type Registry map[string]Adapter

// NewRegistry builds one adapter, with its own rate-limited fetcher, for every
// enabled source configuration.
func NewRegistry(configs map[string]*Config, client *http.Client, userAgent string) (Registry, error) {
	registry := make(Registry, len(configs))
	for name, config := range configs {
		if !config.Enabled {
			continue
		}

		fetcher := fetch.NewFetcher(client, fetch.Options{
			Name:       name,
			Delay:      config.Delay(),
			MaxRetries: config.MaxRetries,
			Timeout:    config.TimeoutDuration(),
			UserAgent:  userAgent,
		})

		adapter, err := NewAdapter(config, fetcher)
		if err != nil {
			return nil, err
		}
		registry[name] = adapter
	}
	return registry, nil
}

func NewAdapter(config *Config, fetcher *fetch.Fetcher) (Adapter, error) {
	switch config.Type {
	case TypeCatalog:
		return NewCatalogAdapter(config, fetcher), nil
	case TypeCensus:
		return NewCensusAdapter(config, fetcher), nil
	case TypeCWA:
		return NewCWAAdapter(config, fetcher), nil
	default:
		return nil, fmt.Errorf("unknown source type '%s' for source '%s'", config.Type, config.Name)
	}
}

func (r Registry) Get(name string) (Adapter, error) {
	adapter, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}
	return adapter, nil
}

func (r Registry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
