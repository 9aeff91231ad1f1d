package aggregation

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stellar-insights/internal/storage"
)

var (
	hour0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	usdc  = storage.Asset{Type: "credit_alphanum4", Code: "USDC", Issuer: "GISSUER"}
)

func newStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	s, err := storage.OpenSQLite(storage.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func pay(id string, at time.Time, amount string, ok bool, settlement int64, dest storage.Asset) storage.PaymentRecord {
	p := storage.PaymentRecord{
		ID:                 id,
		TxHash:             "tx" + id,
		SourceAccount:      "GA",
		DestinationAccount: "GB",
		Asset:              dest,
		SourceAsset:        storage.NativeAsset,
		Amount:             decimal.RequireFromString(amount),
		Successful:         ok,
		CreatedAt:          at,
	}
	if settlement > 0 {
		p.SettlementMs = &settlement
	}
	return p
}

func TestTimeRangeHours(t *testing.T) {
	start, end := TimeRange{Start: hour0.Add(15 * time.Minute), End: hour0.Add(2*time.Hour + time.Second)}.Hours()
	assert.True(t, start.Equal(hour0))
	assert.True(t, end.Equal(hour0.Add(3*time.Hour)))

	start, end = TimeRange{Start: hour0, End: hour0.Add(time.Hour)}.Hours()
	assert.True(t, start.Equal(hour0))
	assert.True(t, end.Equal(hour0.Add(time.Hour)))
}

func TestBucketPayments(t *testing.T) {
	payments := []storage.PaymentRecord{
		pay("1", hour0.Add(time.Minute), "10", true, 1000, usdc),
		pay("2", hour0.Add(2*time.Minute), "5.5", false, 3000, usdc),
		pay("3", hour0.Add(3*time.Minute), "1", true, 0, usdc),
		pay("4", hour0.Add(4*time.Minute), "2", true, 0, storage.NativeAsset),
	}
	buckets := BucketPayments(hour0, payments, hour0)
	require.Len(t, buckets, 2)

	assert.Equal(t, "native->USDC:GISSUER", buckets[0].CorridorKey)
	assert.True(t, buckets[0].Volume.Equal(decimal.RequireFromString("16.5")))
	assert.EqualValues(t, 3, buckets[0].TxCount)
	assert.EqualValues(t, 2, buckets[0].SuccessCount)
	assert.InDelta(t, 2000, buckets[0].AvgSettlementMs, 1e-9)
	assert.EqualValues(t, 2, buckets[0].SettledCount)

	assert.Equal(t, "native->native", buckets[1].CorridorKey)
	assert.Zero(t, buckets[1].AvgSettlementMs)
	assert.Zero(t, buckets[1].SettledCount)
}

func TestAggregateIsIdempotent(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	_, err := store.SavePayments(ctx, []storage.PaymentRecord{
		pay("1", hour0.Add(5*time.Minute), "10", true, 1000, usdc),
		pay("2", hour0.Add(70*time.Minute), "4", true, 2000, usdc),
	})
	require.NoError(t, err)

	agg := NewAggregator(store, nil, zerolog.Nop())
	r := TimeRange{Start: hour0.Add(20 * time.Minute), End: hour0.Add(90 * time.Minute)}

	first, err := agg.Aggregate(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Hours)
	assert.Equal(t, 2, first.Buckets)
	assert.True(t, first.LastHour.Equal(hour0.Add(time.Hour)))

	second, err := agg.Aggregate(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, first.Buckets, second.Buckets)

	metrics, err := store.ListHourlyMetrics(ctx, hour0, hour0.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, metrics, 2)
	assert.True(t, metrics[0].Volume.Equal(decimal.NewFromInt(10)), "partial range must still cover the whole hour")
	assert.EqualValues(t, 1, metrics[0].TxCount)
	assert.True(t, metrics[1].Volume.Equal(decimal.NewFromInt(4)))
}

func TestAggregateDropsStaleCorridors(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	agg := NewAggregator(store, nil, zerolog.Nop())

	require.NoError(t, agg.RecordHourlyMetric(ctx, storage.HourlyCorridorMetric{
		CorridorKey: "stale->corridor", HourBucket: hour0.Add(10 * time.Minute), Volume: decimal.NewFromInt(1), TxCount: 1,
	}))
	_, err := store.SavePayments(ctx, []storage.PaymentRecord{pay("1", hour0.Add(time.Minute), "3", true, 0, usdc)})
	require.NoError(t, err)

	_, err = agg.Aggregate(ctx, TimeRange{Start: hour0, End: hour0.Add(time.Hour)})
	require.NoError(t, err)

	metrics, err := store.ListHourlyMetrics(ctx, hour0, hour0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, "native->USDC:GISSUER", metrics[0].CorridorKey)
}

func TestRecordHourlyMetricTruncatesBucket(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	agg := NewAggregator(store, nil, zerolog.Nop())

	require.NoError(t, agg.RecordHourlyMetric(ctx, storage.HourlyCorridorMetric{
		CorridorKey: "a->b", HourBucket: hour0.Add(42 * time.Minute), Volume: decimal.NewFromInt(2), TxCount: 2, SuccessCount: 2,
	}))
	metrics, err := store.ListHourlyMetrics(ctx, hour0, hour0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.True(t, metrics[0].HourBucket.Equal(hour0))
}

func TestAggregateEmptyRange(t *testing.T) {
	agg := NewAggregator(newStore(t), nil, zerolog.Nop())
	summary, err := agg.Aggregate(context.Background(), TimeRange{Start: hour0, End: hour0})
	require.NoError(t, err)
	assert.Zero(t, summary.Hours)
}

func TestAggregateUnchangedHourKeepsRows(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	_, err := store.SavePayments(ctx, []storage.PaymentRecord{
		pay("1", hour0.Add(5*time.Minute), "10", true, 1000, usdc),
		pay("2", hour0.Add(6*time.Minute), "2", true, 0, storage.NativeAsset),
	})
	require.NoError(t, err)

	agg := NewAggregator(store, nil, zerolog.Nop())
	clock := hour0.Add(2 * time.Hour)
	agg.now = func() time.Time { return clock }
	r := TimeRange{Start: hour0, End: hour0.Add(time.Hour)}

	_, err = agg.Aggregate(ctx, r)
	require.NoError(t, err)
	first, err := store.ListHourlyMetrics(ctx, hour0, hour0.Add(time.Hour))
	require.NoError(t, err)

	clock = clock.Add(time.Hour)
	_, err = agg.Aggregate(ctx, r)
	require.NoError(t, err)
	second, err := store.ListHourlyMetrics(ctx, hour0, hour0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, err = store.SavePayments(ctx, []storage.PaymentRecord{pay("3", hour0.Add(7*time.Minute), "1", false, 0, usdc)})
	require.NoError(t, err)
	clock = clock.Add(time.Hour)
	_, err = agg.Aggregate(ctx, r)
	require.NoError(t, err)
	third, err := store.ListHourlyMetrics(ctx, hour0, hour0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, third, 2)
	assert.Equal(t, "native->USDC:GISSUER", third[0].CorridorKey)
	assert.True(t, third[0].UpdatedAt.Equal(clock), "changed bucket gets a new timestamp")
	assert.EqualValues(t, 1, third[0].SettledCount)
	assert.Equal(t, second[1], third[1], "untouched corridor keeps its row")
}
