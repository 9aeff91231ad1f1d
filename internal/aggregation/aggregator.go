// Package aggregation derives hourly corridor metrics and tracks the resumable job that computes them.
package aggregation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stellar-insights/internal/metrics"
	"stellar-insights/internal/storage"
)

// Store is the persistence the aggregator needs.
type Store interface {
	ListPaymentsBetween(ctx context.Context, from, to time.Time) ([]storage.PaymentRecord, error)
	storage.HourlyMetricStore
}

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Hours widens the range to whole hours: Start truncated, End rounded up.
func (r TimeRange) Hours() (time.Time, time.Time) {
	start := r.Start.UTC().Truncate(time.Hour)
	end := r.End.UTC().Truncate(time.Hour)
	if end.Before(r.End.UTC()) {
		end = end.Add(time.Hour)
	}
	return start, end
}

// Summary reports what an aggregation pass wrote.
type Summary struct {
	Hours    int
	Buckets  int
	LastHour time.Time
}

// Aggregator recomputes hourly corridor buckets from stored payments.
type Aggregator struct {
	store   Store
	metrics *metrics.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// NewAggregator constructs an Aggregator.
func NewAggregator(store Store, m *metrics.Metrics, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		store:   store,
		metrics: m,
		logger:  logger.With().Str("component", "aggregator").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Aggregate replaces every hour bucket of the widened range. Rerunning yields the same rows.
func (a *Aggregator) Aggregate(ctx context.Context, r TimeRange) (Summary, error) {
	start, end := r.Hours()
	if !end.After(start) {
		return Summary{}, nil
	}

	var summary Summary
	for hour := start; hour.Before(end); hour = hour.Add(time.Hour) {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		buckets, err := a.aggregateHour(ctx, hour)
		if err != nil {
			return summary, err
		}
		summary.Hours++
		summary.Buckets += buckets
		summary.LastHour = hour
	}

	a.metrics.AddBuckets(summary.Buckets)
	a.logger.Info().
		Time("from", start).
		Time("to", end).
		Int("hours", summary.Hours).
		Int("buckets", summary.Buckets).
		Msg("hourly aggregation completed")
	return summary, nil
}

func (a *Aggregator) aggregateHour(ctx context.Context, hour time.Time) (int, error) {
	payments, err := a.store.ListPaymentsBetween(ctx, hour, hour.Add(time.Hour))
	if err != nil {
		return 0, fmt.Errorf("load payments for %s: %w", hour.Format(time.RFC3339), err)
	}

	previous, err := a.store.ListHourlyMetrics(ctx, hour, hour.Add(time.Hour))
	if err != nil {
		return 0, fmt.Errorf("load buckets for %s: %w", hour.Format(time.RFC3339), err)
	}

	buckets := keepUnchanged(BucketPayments(hour, payments, a.now()), previous)
	if err := a.store.ReplaceHour(ctx, hour, buckets); err != nil {
		return 0, fmt.Errorf("replace hour %s: %w", hour.Format(time.RFC3339), err)
	}
	return len(buckets), nil
}

// keepUnchanged carries the stored UpdatedAt over to buckets whose values did not change,
// so re-aggregating unchanged payments leaves the rows identical.
func keepUnchanged(buckets, previous []storage.HourlyCorridorMetric) []storage.HourlyCorridorMetric {
	if len(previous) == 0 {
		return buckets
	}
	byKey := make(map[string]storage.HourlyCorridorMetric, len(previous))
	for _, p := range previous {
		byKey[p.CorridorKey] = p
	}
	for i, b := range buckets {
		if p, ok := byKey[b.CorridorKey]; ok && b.SameValues(p) {
			buckets[i].UpdatedAt = p.UpdatedAt
		}
	}
	return buckets
}

// RecordHourlyMetric upserts a single bucket.
func (a *Aggregator) RecordHourlyMetric(ctx context.Context, m storage.HourlyCorridorMetric) error {
	m.HourBucket = m.HourBucket.UTC().Truncate(time.Hour)
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = a.now()
	}
	if err := a.store.UpsertHourlyMetric(ctx, m); err != nil {
		return fmt.Errorf("record hourly metric: %w", err)
	}
	return nil
}

type accumulator struct {
	volume        decimal.Decimal
	txCount       int64
	successCount  int64
	settlementSum float64
	settled       int64
}

// BucketPayments groups one hour's payments by corridor, sorted by corridor key.
func BucketPayments(hour time.Time, payments []storage.PaymentRecord, updatedAt time.Time) []storage.HourlyCorridorMetric {
	byCorridor := make(map[string]*accumulator)
	for _, p := range payments {
		key := p.CorridorKey()
		acc, ok := byCorridor[key]
		if !ok {
			acc = &accumulator{volume: decimal.Zero}
			byCorridor[key] = acc
		}
		acc.volume = acc.volume.Add(p.Amount)
		acc.txCount++
		if p.Successful {
			acc.successCount++
		}
		if p.SettlementMs != nil {
			acc.settlementSum += float64(*p.SettlementMs)
			acc.settled++
		}
	}

	keys := make([]string, 0, len(byCorridor))
	for k := range byCorridor {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]storage.HourlyCorridorMetric, 0, len(keys))
	for _, k := range keys {
		acc := byCorridor[k]
		var avg float64
		if acc.settled > 0 {
			avg = acc.settlementSum / float64(acc.settled)
		}
		out = append(out, storage.HourlyCorridorMetric{
			CorridorKey:     k,
			HourBucket:      hour,
			Volume:          acc.volume,
			TxCount:         acc.txCount,
			SuccessCount:    acc.successCount,
			SettledCount:    acc.settled,
			AvgSettlementMs: avg,
			UpdatedAt:       updatedAt,
		})
	}
	return out
}
