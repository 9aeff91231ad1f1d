package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.AddIngested(3)
	m.AddIngested(0)
	m.IngestionFailed("remote_fetch")
	m.AddBuckets(2)
	m.JobOutcome("completed")
	m.CacheResult(CacheHit)
	m.CacheResult(CacheHit)
	m.ObserveCycle(150 * time.Millisecond)

	if got := testutil.ToFloat64(m.PaymentsIngested); got != 3 {
		t.Fatalf("expected 3 ingested, got %v", got)
	}
	if got := testutil.ToFloat64(m.IngestionFailures.WithLabelValues("remote_fetch")); got != 1 {
		t.Fatalf("expected 1 failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.CacheRequests.WithLabelValues(CacheHit)); got != 2 {
		t.Fatalf("expected 2 hits, got %v", got)
	}
	if n := testutil.CollectAndCount(m.CycleDuration); n != 1 {
		t.Fatalf("expected histogram to be collected, got %d", n)
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics
	m.AddIngested(1)
	m.IngestionFailed("x")
	m.AddBuckets(1)
	m.JobOutcome("failed")
	m.CacheResult(CacheMiss)
	m.ObserveCycle(time.Second)

	if New(nil) != nil {
		t.Fatal("nil registerer should yield nil metrics")
	}
}
