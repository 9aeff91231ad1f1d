package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stellar-insights/internal/analytics"
	"stellar-insights/internal/config"
	"stellar-insights/internal/service"
	"stellar-insights/internal/storage"
	"stellar-insights/internal/validation"
)

var simStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// newTestApp points the app at a file SQLite database and the simulated source,
// which emits one payment every 30s from simStart.
func newTestApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{
		Database:    config.DatabaseConfig{Driver: config.DriverSQLite, Path: filepath.Join(t.TempDir(), "insights.db")},
		Scheduler:   config.SchedulerConfig{Interval: time.Minute, CycleTimeout: time.Minute},
		Horizon:     config.HorizonConfig{MockMode: true, PageLimit: 200},
		Ingestion:   config.IngestionConfig{TaskName: "payments", MaxBatches: 2},
		Aggregation: config.AggregationConfig{JobID: "hourly_corridor_metrics", MaxRetries: 3, MaxHoursPerRun: 24},
		Muxed:       config.MuxedConfig{TopN: 5},
		Scoring:     config.ScoringConfig{SuccessWeight: 0.8, SettlementWeight: 0.2, TargetSettlementMs: 5000},
		Export:      config.ExportConfig{MaxDataPoints: 1000},
	}
	a := NewApp(cfg, zerolog.Nop())
	out := &bytes.Buffer{}
	a.Out = out
	return a, out
}

func TestRunOnceThenReports(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.RunOnce(ctx))
	assert.Contains(t, out.String(), "400 new payments")

	out.Reset()
	require.NoError(t, a.Show(ctx))
	assert.Contains(t, out.String(), "payments stored: 400")
	assert.Contains(t, out.String(), "hourly_corridor_metrics")

	out.Reset()
	require.NoError(t, a.Corridors(ctx, CorridorOptions{From: simStart, To: simStart.Add(4 * time.Hour), JSON: true}))
	var corridors []service.CorridorSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &corridors))
	require.NotEmpty(t, corridors)
	var txs int64
	for _, c := range corridors {
		txs += c.TxCount
	}
	assert.EqualValues(t, 400, txs)

	out.Reset()
	require.NoError(t, a.Muxed(ctx, MuxedOptions{}))
	assert.Contains(t, out.String(), "muxed payments:")

	out.Reset()
	require.NoError(t, a.Muxed(ctx, MuxedOptions{TopN: 2, JSON: true}))
	var muxedReport analytics.MuxedAnalytics
	require.NoError(t, json.Unmarshal(out.Bytes(), &muxedReport))
	assert.Len(t, muxedReport.TopMuxedByActivity, 2)
}

func TestIngestAndAggregate(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.Ingest(ctx))
	assert.Contains(t, out.String(), `cursor "400"`)

	out.Reset()
	require.NoError(t, a.Aggregate(ctx, AggregateOptions{From: simStart.Add(10 * time.Minute), To: simStart.Add(2 * time.Hour)}))
	assert.Contains(t, out.String(), "aggregated 2 hours")

	assert.Error(t, a.Aggregate(ctx, AggregateOptions{From: simStart, To: simStart}))
}

func TestCorridorsRejectsInvalidFilters(t *testing.T) {
	a, _ := newTestApp(t)
	bad := -1.0
	err := a.Corridors(context.Background(), CorridorOptions{From: simStart, To: simStart.Add(time.Hour), VolumeMin: &bad})
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "volume_min", verr.Param)
}

func TestScoreCountersAndAccount(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.Score(ctx, ScoreOptions{Total: 10, Successful: 10, JSON: true}))
	var snap analytics.Snapshot
	require.NoError(t, json.Unmarshal(out.Bytes(), &snap))
	assert.Equal(t, analytics.StatusHealthy, snap.Status)

	assert.Error(t, a.Score(ctx, ScoreOptions{Total: 1, Successful: 1, Failed: 1}))

	require.NoError(t, a.Ingest(ctx))
	out.Reset()
	require.NoError(t, a.Score(ctx, ScoreOptions{Account: "GUNKNOWN", From: simStart, To: simStart.Add(time.Hour)}))
	assert.Contains(t, out.String(), "Transactions")
	assert.Contains(t, out.String(), "unhealthy")
}

func TestExportCSVAndPNG(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, a.RunOnce(ctx))

	dir := t.TempDir()
	from, to := simStart, simStart.Add(4*time.Hour)
	csvPath := filepath.Join(dir, "out", "metrics.csv")
	pngPath := filepath.Join(dir, "out", "metrics.png")
	require.NoError(t, a.Export(ctx, ExportOptions{From: &from, To: &to, CSVPath: csvPath, PNGPath: pngPath}))

	file, err := os.Open(csvPath)
	require.NoError(t, err)
	defer file.Close()
	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Greater(t, len(rows), 1)
	assert.Equal(t, "hour_bucket", rows[0][0])

	info, err := os.Stat(pngPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	assert.Error(t, a.Export(ctx, ExportOptions{}))
	assert.Error(t, a.Export(ctx, ExportOptions{From: &to, To: &from, CSVPath: csvPath}))
}

func TestDownsample(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	assert.Equal(t, items, downsample(items, 0))
	assert.Equal(t, items, downsample(items, 20))
	assert.Equal(t, []int{0, 3, 6, 9}, downsample(items, 4))
	assert.Equal(t, []int{9}, downsample(items, 1))
}

func TestSimulateAlertRequiresChannel(t *testing.T) {
	a, _ := newTestApp(t)
	assert.Error(t, a.SimulateAlert(context.Background(), "boom"))
	a.Config.Alerting.Enabled = true
	assert.Error(t, a.SimulateAlert(context.Background(), "boom"))
}

func TestResetJobResumesAggregation(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, a.Ingest(ctx))

	watermark := simStart.Add(time.Hour)
	msg := "disk full"
	store, err := storage.OpenSQLite(a.Config.Database.Path)
	require.NoError(t, err)
	require.NoError(t, store.SaveJob(ctx, storage.AggregationJob{
		JobID:             a.Config.Aggregation.JobID,
		JobType:           service.JobType,
		Status:            storage.JobFailed,
		RetryCount:        a.Config.Aggregation.MaxRetries,
		LastProcessedHour: &watermark,
		ErrorMessage:      &msg,
	}))
	store.Close()

	out.Reset()
	require.NoError(t, a.RunOnce(ctx))
	assert.Contains(t, out.String(), "0 hours aggregated")

	out.Reset()
	require.NoError(t, a.ResetJob(ctx, ""))
	assert.Contains(t, out.String(), "reset to pending, resuming after "+watermark.Format(time.RFC3339))

	// each run ingests 400 more payments; the latest now falls in hour 9,
	// so hours 2..8 close and hour 9 is refreshed as the open tail
	out.Reset()
	require.NoError(t, a.RunOnce(ctx))
	assert.Contains(t, out.String(), "8 hours aggregated")

	assert.Error(t, a.ResetJob(ctx, "unknown"))
}

func TestPaymentsLookup(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, a.Ingest(ctx))

	out.Reset()
	require.NoError(t, a.Payments(ctx, PaymentsOptions{IDs: []string{"2", "nope"}}))
	assert.Contains(t, out.String(), simStart.Add(30*time.Second).Format(time.RFC3339))
	assert.Contains(t, out.String(), "not found: nope")

	out.Reset()
	require.NoError(t, a.Payments(ctx, PaymentsOptions{IDs: []string{"1", "2"}, JSON: true}))
	var payments []storage.PaymentRecord
	require.NoError(t, json.Unmarshal(out.Bytes(), &payments))
	require.Len(t, payments, 2)
	assert.Equal(t, "1", payments[0].ID)
}

func TestScoreHistory(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, a.Score(ctx, ScoreOptions{Account: "GUNKNOWN", History: true}))
	assert.Contains(t, out.String(), "no snapshots recorded for GUNKNOWN")

	require.NoError(t, a.Score(ctx, ScoreOptions{Account: "GUNKNOWN", From: simStart, To: simStart.Add(time.Hour)}))
	require.NoError(t, a.Score(ctx, ScoreOptions{Account: "GUNKNOWN", From: simStart, To: simStart.Add(2 * time.Hour)}))

	out.Reset()
	require.NoError(t, a.Score(ctx, ScoreOptions{Account: "GUNKNOWN", History: true, Limit: 1, JSON: true}))
	var history []storage.AnchorMetricsRecord
	require.NoError(t, json.Unmarshal(out.Bytes(), &history))
	require.Len(t, history, 1)
	assert.Equal(t, "GUNKNOWN", history[0].Account)

	out.Reset()
	require.NoError(t, a.Score(ctx, ScoreOptions{Account: "GUNKNOWN", History: true}))
	assert.Contains(t, out.String(), "Reliability")
	assert.Contains(t, out.String(), "unhealthy")
}
