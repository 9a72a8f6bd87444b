package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govdata_fetch_total",
			Help: "Total upstream HTTP fetches by outcome",
		},
		[]string{"source", "status"},
	)

	FetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "govdata_fetch_duration_seconds",
			Help:    "Upstream fetch duration in seconds, including retries",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"source"},
	)

	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govdata_refresh_total",
			Help: "Total refresh cycles by data type and outcome",
		},
		[]string{"data_type", "status"},
	)

	RecordsStored = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "govdata_records_stored_total",
			Help: "Records upserted into the store",
		},
		[]string{"data_type"},
	)

	DataAge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "govdata_data_age_seconds",
			Help: "Age of the stored data per type",
		},
		[]string{"data_type"},
	)

	HealthScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "govdata_health_score",
			Help: "Aggregate health score from 0 to 100",
		},
	)

	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "govdata_cache_hits_total",
			Help: "Response cache hits",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "govdata_cache_misses_total",
			Help: "Response cache misses",
		},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(FetchTotal)
		prometheus.MustRegister(FetchDuration)
		prometheus.MustRegister(RefreshTotal)
		prometheus.MustRegister(RecordsStored)
		prometheus.MustRegister(DataAge)
		prometheus.MustRegister(HealthScore)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}
