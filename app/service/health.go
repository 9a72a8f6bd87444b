package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/huanchen1107/TawinCWA/app/metrics"
)

const (
	sizePenaltyThresholdMB = 100
	maxSizePenalty         = 20
)

// GetHealthStatus scores the freshness of every data type together with the
// last day of upstream call outcomes and the store size.
func (s *DataService) GetHealthStatus(ctx context.Context) (*HealthStatus, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get store stats: %w", err)
	}

	entries, err := s.store.Freshness.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get freshness entries: %w", err)
	}

	ages := make(map[Kind]time.Duration, len(entries))
	types := make(map[string]TypeHealth, len(Kinds))
	for _, kind := range Kinds {
		th := TypeHealth{
			DataType:       string(kind),
			Dataset:        s.datasets[kind],
			State:          StateStale,
			ThresholdHours: s.thresholds[kind].Hours(),
		}

		if entry, ok := entries[string(kind)]; ok {
			ages[kind] = entry.Age
			lastUpdate := entry.LastUpdate
			age := entry.Age.Hours()
			th.LastUpdate = &lastUpdate
			th.AgeHours = &age
			th.RecordCount = entry.RecordCount
			th.QualityScore = entry.QualityScore
			if entry.Age <= s.thresholds[kind] {
				th.State = StateFresh
			}
			metrics.DataAge.WithLabelValues(string(kind)).Set(entry.Age.Seconds())
		}

		refreshing, lastErr := s.refreshState(kind)
		if refreshing {
			th.State = StateRefreshing
		}
		if lastErr != nil {
			th.LastError = lastErr.Error()
		}
		types[string(kind)] = th
	}

	score := computeHealthScore(ages, s.thresholds, stats.SuccessRate24h, stats.SizeMB)
	metrics.HealthScore.Set(score)

	status := &HealthStatus{
		Score:           score,
		Status:          healthLabel(score),
		DataTypes:       types,
		Stats:           stats,
		Recommendations: recommendations(ages, s.thresholds),
		CheckedAt:       s.store.Now(),
	}
	if s.cache != nil {
		status.Cache = s.cache.Health(ctx)
	}
	return status, nil
}

// computeHealthScore starts at 100 and deducts 20 for every data type older
// than twice its threshold or 10 when only past it, half the 24h failure
// percentage, and up to 20 for a store file over 100MB. Types without a
// freshness entry are not scored.
func computeHealthScore(ages map[Kind]time.Duration, thresholds map[Kind]time.Duration, successRate, sizeMB float64) float64 {
	score := 100.0

	for _, kind := range Kinds {
		age, ok := ages[kind]
		if !ok {
			continue
		}
		threshold := thresholds[kind]
		switch {
		case age > 2*threshold:
			score -= 20
		case age > threshold:
			score -= 10
		}
	}

	score -= (100 - successRate) / 2

	if sizeMB > sizePenaltyThresholdMB {
		score -= math.Min(maxSizePenalty, (sizeMB-sizePenaltyThresholdMB)/10)
	}

	return math.Max(0, math.Min(100, score))
}

func recommendations(ages map[Kind]time.Duration, thresholds map[Kind]time.Duration) []string {
	var recs []string
	for _, kind := range Kinds {
		age, ok := ages[kind]
		if !ok {
			continue
		}
		threshold := thresholds[kind]
		switch {
		case age > 3*threshold:
			recs = append(recs, fmt.Sprintf("%s data is very old (%.1fh), consider refreshing", kind, age.Hours()))
		case age > 2*threshold:
			recs = append(recs, fmt.Sprintf("%s data should be refreshed soon (%.1fh)", kind, age.Hours()))
		}
	}

	if len(recs) == 0 {
		recs = append(recs, "All data is fresh and up to date")
	}
	return recs
}

func healthLabel(score float64) string {
	switch {
	case score >= 80:
		return "healthy"
	case score >= 50:
		return "degraded"
	default:
		return "unhealthy"
	}
}
