package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/huanchen1107/TawinCWA/app/database"
	"github.com/huanchen1107/TawinCWA/app/metrics"
	"github.com/huanchen1107/TawinCWA/app/quality"
	"github.com/huanchen1107/TawinCWA/app/source"
	"github.com/huanchen1107/TawinCWA/app/table"
)

// refreshOutcome is the result of one refresh cycle. Err holds a fetch, parse
// or timeout failure; those leave the stored data as it was.
type refreshOutcome struct {
	Records int
	Issues  []quality.ValidationError
	Err     error
}

// ensureFresh refreshes kind when force is set or its stored copy is stale.
// It returns nil when no refresh was needed.
func (s *DataService) ensureFresh(ctx context.Context, kind Kind, force bool) (*refreshOutcome, error) {
	if !force {
		stale, err := s.isStale(ctx, kind)
		if err != nil {
			return nil, err
		}
		if !stale {
			return nil, nil
		}
	}
	return s.refresh(ctx, kind)
}

// flight is one in-progress refresh of a data type and the callers waiting
// on it.
type flight struct {
	done    chan struct{}
	cancel  context.CancelFunc
	waiters int
	outcome *refreshOutcome
	err     error
}

// refresh joins the in-flight refresh of kind or starts one. A caller that
// gives up waiting gets its context error as a failed outcome. Once every
// waiting caller has given up the refresh itself is cancelled, which rolls
// back any write it had started.
func (s *DataService) refresh(ctx context.Context, kind Kind) (*refreshOutcome, error) {
	s.mu.Lock()
	f, ok := s.flights[kind]
	if !ok {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.refreshTimeout)
		f = &flight{done: make(chan struct{}), cancel: cancel}
		s.flights[kind] = f

		go func() {
			defer cancel()
			outcome, err := s.runRefresh(runCtx, kind)

			s.mu.Lock()
			delete(s.flights, kind)
			f.outcome, f.err = outcome, err
			s.mu.Unlock()
			close(f.done)
		}()
	}
	f.waiters++
	s.mu.Unlock()

	select {
	case <-f.done:
		return f.outcome, f.err
	case <-ctx.Done():
		s.mu.Lock()
		f.waiters--
		if f.waiters == 0 {
			slog.Warn("Abandoning refresh, no callers left waiting", "type", string(kind), "error", ctx.Err())
			f.cancel()
		}
		s.mu.Unlock()
		return &refreshOutcome{Err: ctx.Err()}, nil
	}
}

// RefreshIfStale refreshes kind only when it is stale and reports whether it
// did. A failed refresh is returned as an error.
func (s *DataService) RefreshIfStale(ctx context.Context, kind Kind) (bool, error) {
	outcome, err := s.ensureFresh(ctx, kind, false)
	if err != nil {
		return false, err
	}
	if outcome == nil {
		return false, nil
	}
	if outcome.Err != nil {
		return false, fmt.Errorf("failed to refresh %s: %w", kind, outcome.Err)
	}
	return true, nil
}

// ForceRefresh refreshes one data type regardless of its age and returns the
// number of records stored.
func (s *DataService) ForceRefresh(ctx context.Context, kind Kind) (int, error) {
	outcome, err := s.refresh(ctx, kind)
	if err != nil {
		return 0, err
	}
	if outcome.Err != nil {
		return 0, fmt.Errorf("failed to refresh %s: %w", kind, outcome.Err)
	}
	return outcome.Records, nil
}

// ForceRefreshAll refreshes every data type in parallel and reports which
// succeeded. Only store failures are returned as an error.
func (s *DataService) ForceRefreshAll(ctx context.Context) (map[string]bool, error) {
	slog.Info("Force refreshing all data types")

	var mu sync.Mutex
	results := make(map[string]bool, len(Kinds))

	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range Kinds {
		g.Go(func() error {
			outcome, err := s.refresh(gctx, kind)
			if err != nil {
				return err
			}
			mu.Lock()
			results[string(kind)] = outcome.Err == nil
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (s *DataService) runRefresh(ctx context.Context, kind Kind) (*refreshOutcome, error) {
	s.setRefreshing(kind, true)
	defer s.setRefreshing(kind, false)

	datasetID := s.datasets[kind]
	slog.Info("Refreshing data", "type", string(kind), "source", s.weatherSource, "dataset", datasetID)

	start := time.Now()
	n, issues, err := s.fetchAndStore(ctx, kind, datasetID)
	elapsed := time.Since(start)

	entry := database.CallLog{
		Endpoint:         datasetID,
		Source:           s.weatherSource,
		Success:          err == nil,
		ResponseTimeMs:   elapsed.Milliseconds(),
		RecordsProcessed: n,
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	// The audit entry is written even when the refresh ran out of time.
	logErr := s.store.AppendCallLog(context.WithoutCancel(ctx), entry)

	s.mu.Lock()
	s.lastErrors[kind] = err
	s.mu.Unlock()

	if err != nil {
		metrics.RefreshTotal.WithLabelValues(string(kind), "failure").Inc()

		if isFatal(err) {
			slog.Error("Refresh failed to store data", "type", string(kind), "dataset", datasetID, "error", err)
			return nil, err
		}

		slog.Warn("Refresh failed, serving stored data", "type", string(kind), "dataset", datasetID,
			"duration", elapsed, "error", err)
		if logErr != nil {
			slog.Error("Failed to record API call", "type", string(kind), "error", logErr)
		}
		return &refreshOutcome{Issues: issues, Err: err}, nil
	}

	if logErr != nil {
		return nil, logErr
	}

	metrics.RefreshTotal.WithLabelValues(string(kind), "success").Inc()
	metrics.RecordsStored.WithLabelValues(string(kind)).Add(float64(n))
	slog.Info("Refresh completed", "type", string(kind), "dataset", datasetID, "records", n, "duration", elapsed)

	return &refreshOutcome{Records: n, Issues: issues}, nil
}

func (s *DataService) fetchAndStore(ctx context.Context, kind Kind, datasetID string) (int, []quality.ValidationError, error) {
	adapter, err := s.registry.Get(s.weatherSource)
	if err != nil {
		return 0, nil, err
	}

	raw, err := adapter.Fetch(ctx, datasetID)
	if err != nil {
		return 0, nil, err
	}

	parsed, err := adapter.Parse(raw)
	if err != nil {
		return 0, nil, err
	}

	t := s.normalizer.Run(parsed)
	score := s.validator.Score(t)
	_, issues := s.validator.Validate(t, rulesFor(kind))

	n, err := s.save(ctx, kind, t, score)
	if err != nil {
		return 0, issues, err
	}
	if n == 0 {
		return 0, issues, &source.ParseError{Source: adapter.Name(), Dataset: datasetID, Reason: "no usable records"}
	}
	return n, issues, nil
}

func (s *DataService) save(ctx context.Context, kind Kind, t *table.Table, score float64) (int, error) {
	switch kind {
	case KindForecasts:
		forecasts, err := toForecasts(t)
		if err != nil || len(forecasts) == 0 {
			return 0, err
		}
		return s.store.SaveForecasts(ctx, string(kind), forecasts, &score)
	case KindEarthquakes:
		earthquakes, err := toEarthquakes(t, s.location)
		if err != nil || len(earthquakes) == 0 {
			return 0, err
		}
		return s.store.SaveEarthquakes(ctx, string(kind), earthquakes, &score)
	case KindObservations:
		observations, err := toObservations(t)
		if err != nil || len(observations) == 0 {
			return 0, err
		}
		return s.store.SaveObservations(ctx, string(kind), observations, &score)
	default:
		return 0, fmt.Errorf("unknown data type: %s", kind)
	}
}

func (s *DataService) setRefreshing(kind Kind, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshing[kind] = on
}

func (s *DataService) refreshState(kind Kind) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshing[kind], s.lastErrors[kind]
}

// isFatal reports whether err is a store failure other than the refresh
// running out of time.
func isFatal(err error) bool {
	var storeErr *database.StoreError
	if !errors.As(err, &storeErr) {
		return false
	}
	return !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled)
}

func rulesFor(kind Kind) quality.Rules {
	rules := quality.DefaultRules()
	switch kind {
	case KindForecasts:
		rules.RequiredColumns = []string{"location"}
	case KindEarthquakes:
		rules.RequiredColumns = []string{"earthquake_no", "origin_time"}
	case KindObservations:
		rules.RequiredColumns = []string{"station_id", "observation_time"}
	}
	return rules
}
