package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stellar-insights/internal/config"
)

const postgresDSNEnv = "STELLAR_INSIGHTS_TEST_POSTGRES_DSN"

var (
	usdc    = Asset{Type: "credit_alphanum4", Code: "USDC", Issuer: "GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN"}
	baseDay = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
)

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	store, err := OpenSQLite(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func newPostgresStore(t *testing.T) Store {
	t.Helper()
	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set", postgresDSNEnv)
	}
	ctx := context.Background()
	store, err := Open(ctx, config.DatabaseConfig{Driver: config.DriverPostgres, DSN: dsn})
	require.NoError(t, err)
	pg := store.(*PostgresStore)
	_, err = pg.pool.Exec(ctx, "TRUNCATE ingestion_state, payments, hourly_corridor_metrics, aggregation_jobs, anchor_metrics_history")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func payment(id string, at time.Time, amount string, ok bool, settlement *int64) PaymentRecord {
	return PaymentRecord{
		ID:                 id,
		TxHash:             "tx-" + id,
		SourceAccount:      "GSOURCE",
		DestinationAccount: "GDEST",
		Asset:              usdc,
		SourceAsset:        NativeAsset,
		Amount:             decimal.RequireFromString(amount),
		Successful:         ok,
		SettlementMs:       settlement,
		CreatedAt:          at,
	}
}

func int64Ptr(v int64) *int64 { return &v }

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, newSQLiteStore)
}

func TestPostgresStore(t *testing.T) {
	runStoreSuite(t, newPostgresStore)
}

func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("cursor absent then upserted", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, ok, err := store.GetCursor(ctx, "payments")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, store.SetCursor(ctx, "payments", "100"))
		require.NoError(t, store.SetCursor(ctx, "payments", "200"))
		require.NoError(t, store.SetCursor(ctx, "trades", "7"))

		pos, ok, err := store.GetCursor(ctx, "payments")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "200", pos)

		cursors, err := store.ListCursors(ctx)
		require.NoError(t, err)
		require.Len(t, cursors, 2)
		assert.Equal(t, "payments", cursors[0].TaskName)
		assert.Equal(t, "trades", cursors[1].TaskName)
	})

	t.Run("save payments ignores duplicates", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		batch := []PaymentRecord{
			payment("1", baseDay.Add(10*time.Minute), "10.5", true, int64Ptr(4000)),
			payment("2", baseDay.Add(20*time.Minute), "2", false, nil),
		}
		n, err := store.SavePayments(ctx, batch)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = store.SavePayments(ctx, append(batch, payment("3", baseDay.Add(90*time.Minute), "1", true, nil)))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		count, err := store.CountPayments(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 3, count)

		got, err := store.ListPaymentsBetween(ctx, baseDay, baseDay.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "1", got[0].ID)
		assert.True(t, got[0].Amount.Equal(decimal.RequireFromString("10.5")))
		require.NotNil(t, got[0].SettlementMs)
		assert.EqualValues(t, 4000, *got[0].SettlementMs)
		assert.Nil(t, got[1].SettlementMs)
		assert.False(t, got[1].Successful)
		assert.Equal(t, "native->"+usdc.String(), got[0].CorridorKey())
		assert.True(t, got[0].CreatedAt.Equal(baseDay.Add(10*time.Minute)))

		byID, err := store.GetPaymentsByIDs(ctx, []string{"3", "1", "3", "", "missing"})
		require.NoError(t, err)
		require.Len(t, byID, 2)
		assert.Equal(t, "1", byID[0].ID)
		assert.Equal(t, "3", byID[1].ID)

		earliest, latest, ok, err := store.PaymentTimeBounds(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, earliest.Equal(baseDay.Add(10*time.Minute)))
		assert.True(t, latest.Equal(baseDay.Add(90*time.Minute)))
	})

	t.Run("empty inputs", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		n, err := store.SavePayments(ctx, nil)
		require.NoError(t, err)
		assert.Zero(t, n)

		_, _, ok, err := store.PaymentTimeBounds(ctx)
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := store.GetPaymentsByIDs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, got)

		keys := make([]string, MaxInClauseKeys+1)
		for i := range keys {
			keys[i] = decimal.NewFromInt(int64(i)).String()
		}
		_, err = store.GetPaymentsByIDs(ctx, keys)
		assert.True(t, errors.Is(err, ErrTooManyKeys))
	})

	t.Run("muxed participants and account counters", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		muxed := "M" + strings.Repeat("A", MuxedLength-1)
		notMuxed := "M" + strings.Repeat("A", 10)
		p1 := payment("1", baseDay, "5", true, int64Ptr(1000))
		p1.SourceAccount = muxed
		p2 := payment("2", baseDay.Add(time.Minute), "7", false, int64Ptr(3000))
		p2.DestinationAccount = muxed
		p3 := payment("3", baseDay.Add(2*time.Minute), "1", true, nil)
		p3.SourceAccount = notMuxed
		_, err := store.SavePayments(ctx, []PaymentRecord{p1, p2, p3})
		require.NoError(t, err)

		parts, err := store.ListMuxedParticipants(ctx)
		require.NoError(t, err)
		require.Len(t, parts, 2)
		assert.Equal(t, muxed, parts[0].SourceAccount)
		assert.Equal(t, muxed, parts[1].DestinationAccount)

		counters, err := store.AccountCounters(ctx, muxed, baseDay, baseDay.Add(time.Hour))
		require.NoError(t, err)
		assert.EqualValues(t, 2, counters.Total)
		assert.EqualValues(t, 1, counters.Successful)
		assert.EqualValues(t, 1, counters.Failed)
		require.NotNil(t, counters.AvgSettlementMs)
		assert.InDelta(t, 2000, *counters.AvgSettlementMs, 1e-9)
		assert.True(t, counters.Volume.Equal(decimal.NewFromInt(12)))

		empty, err := store.AccountCounters(ctx, "GNOBODY", baseDay, baseDay.Add(time.Hour))
		require.NoError(t, err)
		assert.Zero(t, empty.Total)
		assert.Nil(t, empty.AvgSettlementMs)
		assert.True(t, empty.Volume.IsZero())
	})

	t.Run("replace hour swaps buckets", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		hour := baseDay.Add(3 * time.Hour)

		require.NoError(t, store.UpsertHourlyMetric(ctx, HourlyCorridorMetric{
			CorridorKey: "stale", HourBucket: hour, Volume: decimal.NewFromInt(1), TxCount: 1, SuccessCount: 1,
		}))
		require.NoError(t, store.UpsertHourlyMetric(ctx, HourlyCorridorMetric{
			CorridorKey: "other-hour", HourBucket: hour.Add(time.Hour), Volume: decimal.NewFromInt(2), TxCount: 2,
		}))

		require.NoError(t, store.ReplaceHour(ctx, hour, []HourlyCorridorMetric{
			{CorridorKey: "a", HourBucket: hour, Volume: decimal.RequireFromString("3.25"), TxCount: 3, SuccessCount: 2, SettledCount: 2, AvgSettlementMs: 1500},
		}))

		metrics, err := store.ListHourlyMetrics(ctx, hour, hour.Add(2*time.Hour))
		require.NoError(t, err)
		require.Len(t, metrics, 2)
		assert.Equal(t, "a", metrics[0].CorridorKey)
		assert.True(t, metrics[0].Volume.Equal(decimal.RequireFromString("3.25")))
		assert.InDelta(t, 1500, metrics[0].AvgSettlementMs, 1e-9)
		assert.EqualValues(t, 2, metrics[0].SettledCount)
		assert.True(t, metrics[0].HourBucket.Equal(hour))
		assert.Equal(t, "other-hour", metrics[1].CorridorKey)

		require.NoError(t, store.UpsertHourlyMetric(ctx, HourlyCorridorMetric{
			CorridorKey: "a", HourBucket: hour, Volume: decimal.NewFromInt(9), TxCount: 9, SuccessCount: 9,
		}))
		metrics, err = store.ListHourlyMetrics(ctx, hour, hour.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, metrics, 1)
		assert.EqualValues(t, 9, metrics[0].TxCount)
	})

	t.Run("jobs round trip", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, ok, err := store.GetJob(ctx, "hourly")
		require.NoError(t, err)
		assert.False(t, ok)

		hour := baseDay.Add(5 * time.Hour)
		msg := "boom"
		require.NoError(t, store.SaveJob(ctx, AggregationJob{JobID: "hourly", JobType: "hourly_corridor", Status: JobRunning}))
		require.NoError(t, store.SaveJob(ctx, AggregationJob{
			JobID: "hourly", JobType: "hourly_corridor", Status: JobFailed, RetryCount: 2,
			LastProcessedHour: &hour, ErrorMessage: &msg,
		}))

		job, ok, err := store.GetJob(ctx, "hourly")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, JobFailed, job.Status)
		assert.Equal(t, 2, job.RetryCount)
		require.NotNil(t, job.LastProcessedHour)
		assert.True(t, job.LastProcessedHour.Equal(hour))
		require.NotNil(t, job.ErrorMessage)
		assert.Equal(t, "boom", *job.ErrorMessage)

		jobs, err := store.ListJobs(ctx)
		require.NoError(t, err)
		assert.Len(t, jobs, 1)
	})

	t.Run("anchor history newest first", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		empty, err := store.ListAnchorHistory(ctx, "GANCHOR", 0)
		require.NoError(t, err)
		assert.Empty(t, empty)

		avg := 1250.5
		for i := 0; i < 3; i++ {
			require.NoError(t, store.RecordAnchorSnapshot(ctx, AnchorMetricsRecord{
				Account:                "GANCHOR",
				WindowStart:            baseDay,
				WindowEnd:              baseDay.Add(time.Duration(i+1) * time.Hour),
				RecordedAt:             baseDay.Add(time.Duration(i) * time.Minute),
				TotalTransactions:      int64(10 + i),
				SuccessfulTransactions: 9,
				FailedTransactions:     int64(1 + i),
				AvgSettlementMs:        &avg,
				Volume:                 decimal.RequireFromString("12.5"),
				SuccessRate:            90,
				FailureRate:            10,
				ReliabilityScore:       88.25,
				Status:                 "degraded",
			}))
		}
		require.NoError(t, store.RecordAnchorSnapshot(ctx, AnchorMetricsRecord{Account: "GOTHER", Status: "healthy", Volume: decimal.Zero}))

		history, err := store.ListAnchorHistory(ctx, "GANCHOR", 2)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.EqualValues(t, 12, history[0].TotalTransactions)
		assert.EqualValues(t, 11, history[1].TotalTransactions)
		assert.NotEmpty(t, history[0].ID)
		assert.True(t, history[0].RecordedAt.Equal(baseDay.Add(2*time.Minute)))
		assert.True(t, history[0].WindowEnd.Equal(baseDay.Add(3*time.Hour)))
		require.NotNil(t, history[0].AvgSettlementMs)
		assert.InDelta(t, 1250.5, *history[0].AvgSettlementMs, 1e-9)
		assert.True(t, history[0].Volume.Equal(decimal.RequireFromString("12.5")))
		assert.Equal(t, "degraded", history[0].Status)

		all, err := store.ListAnchorHistory(ctx, "GANCHOR", 0)
		require.NoError(t, err)
		assert.Len(t, all, 3)
		other, err := store.ListAnchorHistory(ctx, "GOTHER", 0)
		require.NoError(t, err)
		require.Len(t, other, 1)
		assert.Nil(t, other[0].AvgSettlementMs)
	})
}

func TestOpenSQLiteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "insights.db")
	store, err := OpenSQLite(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, store.SetCursor(ctx, "payments", "42"))
	store.Close()

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()
	pos, ok, err := reopened.GetCursor(ctx, "payments")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "42", pos)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.DatabaseConfig{Driver: "mysql"})
	assert.Error(t, err)
}

func TestNilStoresReportNotConfigured(t *testing.T) {
	var pg *PostgresStore
	_, _, err := pg.GetCursor(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNotConfigured)

	var lite *SQLiteStore
	_, err = lite.CountPayments(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}
