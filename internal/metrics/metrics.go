// Package metrics holds the pipeline's prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stellar_insights"

// Metrics groups the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	PaymentsIngested  prometheus.Counter
	IngestionFailures *prometheus.CounterVec
	HourlyBuckets     prometheus.Counter
	JobOutcomes       *prometheus.CounterVec
	CacheRequests     *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
}

// New registers the collectors on reg. A nil registerer yields nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)
	return &Metrics{
		PaymentsIngested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_ingested_total",
			Help:      "Payments newly persisted by the ingestor",
		}),
		IngestionFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingestion_failures_total",
			Help:      "Ingestion runs that failed, by failure kind",
		}, []string{"kind"}),
		HourlyBuckets: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hourly_buckets_written_total",
			Help:      "Hourly corridor buckets written",
		}),
		JobOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregation_job_outcomes_total",
			Help:      "Aggregation job terminal transitions, by status",
		}, []string{"status"}),
		CacheRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_requests_total",
			Help:      "Cache-aside lookups, by result",
		}, []string{"result"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of scheduled ingestion cycles",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}
}

// Cache lookup results.
const (
	CacheHit        = "hit"
	CacheMiss       = "miss"
	CacheReadError  = "read_error"
	CacheWriteError = "write_error"
)

func (m *Metrics) AddIngested(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PaymentsIngested.Add(float64(n))
}

func (m *Metrics) IngestionFailed(kind string) {
	if m == nil {
		return
	}
	m.IngestionFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) AddBuckets(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.HourlyBuckets.Add(float64(n))
}

func (m *Metrics) JobOutcome(status string) {
	if m == nil {
		return
	}
	m.JobOutcomes.WithLabelValues(status).Inc()
}

func (m *Metrics) CacheResult(result string) {
	if m == nil {
		return
	}
	m.CacheRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveCycle(d time.Duration) {
	if m == nil {
		return
	}
	m.CycleDuration.Observe(d.Seconds())
}
