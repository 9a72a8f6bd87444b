package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/huanchen1107/TawinCWA/app/cache"
	"github.com/huanchen1107/TawinCWA/app/database"
	"github.com/huanchen1107/TawinCWA/app/fetch"
	"github.com/huanchen1107/TawinCWA/app/metrics"
	"github.com/huanchen1107/TawinCWA/app/quality"
	"github.com/huanchen1107/TawinCWA/app/source"
)

const (
	searchEndpoint = "search"
	pingTimeout    = 15 * time.Second
)

// Search lists datasets of one source. Listings are served from the response
// cache when present.
func (s *DataService) Search(ctx context.Context, sourceName, query, category string, limit int) ([]source.Descriptor, error) {
	adapter, err := s.registry.Get(sourceName)
	if err != nil {
		return nil, err
	}

	key := cache.ResponseKey(searchEndpoint, sourceName, query, category, strconv.Itoa(limit))
	if entry := s.cached(ctx, key); entry != nil {
		var descriptors []source.Descriptor
		if err := json.Unmarshal(entry.Body, &descriptors); err == nil {
			return descriptors, nil
		}
	}

	start := time.Now()
	descriptors, err := adapter.Search(ctx, query, category, limit)
	s.logCall(ctx, searchEndpoint, sourceName, time.Since(start), len(descriptors), err)
	if err != nil {
		return nil, err
	}
	if descriptors == nil {
		descriptors = []source.Descriptor{}
	}

	if body, err := json.Marshal(descriptors); err == nil {
		s.remember(ctx, key, &cache.Entry{
			Source:    sourceName,
			Endpoint:  searchEndpoint,
			Format:    "json",
			Body:      body,
			FetchedAt: time.Now(),
		})
	}

	return descriptors, nil
}

// GetDataset fetches, parses and normalizes one dataset and reports its
// quality. Raw payloads are read through the response cache unless refresh
// is set. format picks a resource on sources that publish several; other
// sources ignore it.
func (s *DataService) GetDataset(ctx context.Context, sourceName, datasetID, format string, refresh bool) (*DatasetResult, error) {
	adapter, err := s.registry.Get(sourceName)
	if err != nil {
		return nil, err
	}

	formats, _ := adapter.(source.FormatFetcher)
	if formats == nil {
		format = ""
	}
	format = strings.ToLower(strings.TrimSpace(format))

	key := cache.ResponseKey("dataset", sourceName, datasetID, format)

	var raw *source.RawResponse
	cached := false
	if !refresh {
		if entry := s.cached(ctx, key); entry != nil {
			raw = &source.RawResponse{
				Source:    entry.Source,
				DatasetID: entry.DatasetID,
				Endpoint:  entry.Endpoint,
				Format:    entry.Format,
				Body:      entry.Body,
				FetchedAt: entry.FetchedAt,
			}
			cached = true
		}
	}

	if raw == nil {
		start := time.Now()
		if formats != nil && format != "" {
			raw, err = formats.FetchFormat(ctx, datasetID, format)
		} else {
			raw, err = adapter.Fetch(ctx, datasetID)
		}
		if err != nil {
			s.logCall(ctx, datasetID, sourceName, time.Since(start), 0, err)
			return nil, err
		}
	}

	parsed, err := adapter.Parse(raw)
	if !cached {
		s.logCall(ctx, datasetID, sourceName, raw.Latency, parsed.Len(), err)
	}
	if err != nil {
		if cached {
			s.evict(ctx, key)
		}
		return nil, err
	}

	if !cached {
		s.remember(ctx, key, &cache.Entry{
			Source:    raw.Source,
			DatasetID: raw.DatasetID,
			Endpoint:  raw.Endpoint,
			Format:    raw.Format,
			Body:      raw.Body,
			FetchedAt: raw.FetchedAt,
		})
	}

	t := s.normalizer.Run(parsed)
	_, issues := s.validator.Validate(t, quality.DefaultRules())
	issues = append(issues, s.validator.Consistency(t)...)
	if issues == nil {
		issues = []quality.ValidationError{}
	}

	result := &DatasetResult{
		Source:       sourceName,
		DatasetID:    datasetID,
		Records:      t,
		Summary:      quality.Summarize(t),
		QualityScore: s.validator.Score(t),
		Issues:       issues,
		Cached:       cached,
		FetchedAt:    raw.FetchedAt,
	}
	if cached {
		if ttl, err := s.cache.GetTTL(ctx, key); err == nil && ttl > 0 {
			result.CacheTTLSeconds = int64(ttl.Seconds())
		}
	}
	return result, nil
}

func (s *DataService) Categories(ctx context.Context, sourceName string) ([]string, error) {
	adapter, err := s.registry.Get(sourceName)
	if err != nil {
		return nil, err
	}
	return adapter.Categories(ctx)
}

func (s *DataService) Sources() []string {
	return s.registry.Names()
}

// TestConnectivity pings every registered source concurrently. A source that
// cannot be reached is "offline"; one that answers with an unexpected payload
// is "error".
func (s *DataService) TestConnectivity(ctx context.Context) map[string]ConnectivityResult {
	var mu sync.Mutex
	results := make(map[string]ConnectivityResult, len(s.registry))

	var g errgroup.Group
	for name, adapter := range s.registry {
		g.Go(func() error {
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			defer cancel()

			start := time.Now()
			err := adapter.Ping(pingCtx)
			result := ConnectivityResult{
				Status:         "online",
				ResponseTimeMs: time.Since(start).Milliseconds(),
				LastTested:     time.Now(),
			}

			var fetchErr *fetch.FetchError
			switch {
			case err == nil:
			case errors.As(err, &fetchErr):
				result.Status = "offline"
				result.Error = err.Error()
			default:
				result.Status = "error"
				result.Error = err.Error()
			}

			mu.Lock()
			results[name] = result
			mu.Unlock()
			return nil
		})
	}
	g.Wait()

	return results
}

func (s *DataService) cached(ctx context.Context, key string) *cache.Entry {
	if s.cache == nil {
		return nil
	}

	entry, ok, err := s.cache.GetResponse(ctx, key)
	if err != nil {
		slog.Warn("Failed to read response cache", "key", key, "error", err)
		return nil
	}
	if !ok {
		metrics.CacheMisses.Inc()
		return nil
	}

	metrics.CacheHits.Inc()
	return entry
}

func (s *DataService) remember(ctx context.Context, key string, entry *cache.Entry) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetResponse(ctx, key, entry, s.cacheTTL); err != nil {
		slog.Warn("Failed to write response cache", "key", key, "error", err)
	}
}

// evict drops a cached payload that can no longer be parsed so the next read
// goes upstream.
func (s *DataService) evict(ctx context.Context, key string) {
	if err := s.cache.Delete(ctx, key); err != nil {
		slog.Warn("Failed to evict cached response", "key", key, "error", err)
		return
	}
	slog.Info("Evicted unparseable cached response", "key", key)
}

// logCall appends an audit entry for an on-demand upstream call. Failing to
// record it does not fail the read.
func (s *DataService) logCall(ctx context.Context, endpoint, sourceName string, elapsed time.Duration, records int, callErr error) {
	entry := database.CallLog{
		Endpoint:         endpoint,
		Source:           sourceName,
		Success:          callErr == nil,
		ResponseTimeMs:   elapsed.Milliseconds(),
		RecordsProcessed: records,
	}
	if callErr != nil {
		entry.ErrorMessage = callErr.Error()
	}
	if err := s.store.AppendCallLog(context.WithoutCancel(ctx), entry); err != nil {
		slog.Error("Failed to record API call", "source", sourceName, "endpoint", endpoint, "error", err)
	}
}
