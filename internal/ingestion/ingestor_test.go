package ingestion

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stellar-insights/internal/fetcher"
	"stellar-insights/internal/metrics"
	"stellar-insights/internal/storage"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type pagedSource struct {
	pages map[string]fetcher.Batch
	err   error
	calls []string
}

func (p *pagedSource) FetchSince(_ context.Context, position string) (fetcher.Batch, error) {
	p.calls = append(p.calls, position)
	if p.err != nil {
		return fetcher.Batch{}, p.err
	}
	if b, ok := p.pages[position]; ok {
		return b, nil
	}
	return fetcher.Batch{Next: position}, nil
}

type faultyStore struct {
	Store
	saveErr   error
	cursorErr error
}

func (f *faultyStore) SavePayments(ctx context.Context, p []storage.PaymentRecord) (int, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	return f.Store.SavePayments(ctx, p)
}

func (f *faultyStore) SetCursor(ctx context.Context, task, position string) error {
	if f.cursorErr != nil {
		return f.cursorErr
	}
	return f.Store.SetCursor(ctx, task, position)
}

func records(from, to int) []storage.PaymentRecord {
	out := make([]storage.PaymentRecord, 0, to-from+1)
	for n := from; n <= to; n++ {
		out = append(out, storage.PaymentRecord{
			ID:                 strconv.Itoa(n),
			TxHash:             "tx" + strconv.Itoa(n),
			SourceAccount:      "GA",
			DestinationAccount: "GB",
			Asset:              storage.NativeAsset,
			Amount:             decimal.NewFromInt(int64(n)),
			Successful:         true,
			CreatedAt:          t0.Add(time.Duration(n) * time.Minute),
		})
	}
	return out
}

func newStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	s, err := storage.OpenSQLite(storage.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestRunAdvancesAfterPersisting(t *testing.T) {
	store := newStore(t)
	src := &pagedSource{pages: map[string]fetcher.Batch{
		"":  {Records: records(1, 3), Next: "3", Full: true},
		"3": {Records: records(4, 5), Next: "5"},
	}}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	ing := New(src, store, Options{StartCursor: fetcher.StartOfHistory, MaxBatches: 5}, m, zerolog.Nop())

	res, err := ing.Run(context.Background(), "payments")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Batches)
	assert.Equal(t, 5, res.Fetched)
	assert.Equal(t, 5, res.Inserted)
	assert.Equal(t, "5", res.Cursor)
	assert.True(t, res.LatestCreatedAt.Equal(t0.Add(5*time.Minute)))
	assert.Equal(t, []string{"", "3"}, src.calls)
	assert.EqualValues(t, 5, testutil.ToFloat64(m.PaymentsIngested))

	pos, ok, err := store.GetCursor(context.Background(), "payments")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "5", pos)
}

func TestRunIsIdempotentOnReplay(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	_, err := store.SavePayments(ctx, records(1, 2))
	require.NoError(t, err)

	// source replays already stored ids
	src := &pagedSource{pages: map[string]fetcher.Batch{"": {Records: records(1, 3), Next: "3"}}}
	res, err := New(src, store, Options{MaxBatches: 1}, nil, zerolog.Nop()).Run(ctx, "payments")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 1, res.Inserted)

	count, err := store.CountPayments(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

func TestRunStopsAtMaxBatches(t *testing.T) {
	store := newStore(t)
	src := &pagedSource{pages: map[string]fetcher.Batch{
		"":  {Records: records(1, 1), Next: "1", Full: true},
		"1": {Records: records(2, 2), Next: "2", Full: true},
		"2": {Records: records(3, 3), Next: "3", Full: true},
	}}
	res, err := New(src, store, Options{MaxBatches: 2}, nil, zerolog.Nop()).Run(context.Background(), "payments")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Batches)
	assert.Equal(t, "2", res.Cursor)
}

func TestRunResumesFromStoredCursor(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetCursor(ctx, "payments", "10"))

	src := &pagedSource{}
	res, err := New(src, store, Options{StartCursor: "999", MaxBatches: 3}, nil, zerolog.Nop()).Run(ctx, "payments")
	require.NoError(t, err)
	assert.Equal(t, []string{"10"}, src.calls)
	assert.Equal(t, "10", res.Cursor)
	assert.Zero(t, res.Fetched)
}

func TestRunRemoteFailureLeavesCursor(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetCursor(ctx, "payments", "7"))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	src := &pagedSource{err: errors.New("connection reset")}
	_, err := New(src, store, Options{MaxBatches: 1}, m, zerolog.Nop()).Run(ctx, "payments")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteFetch)
	assert.NotErrorIs(t, err, ErrPersistence)

	var ie *Error
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "payments", ie.Task)
	assert.EqualValues(t, 1, testutil.ToFloat64(m.IngestionFailures.WithLabelValues(string(KindRemoteFetch))))

	pos, _, err := store.GetCursor(ctx, "payments")
	require.NoError(t, err)
	assert.Equal(t, "7", pos)
}

func TestRunRejectsBackwardsCursor(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SetCursor(ctx, "payments", "50"))

	src := &pagedSource{pages: map[string]fetcher.Batch{"50": {Records: records(1, 1), Next: "40"}}}
	_, err := New(src, store, Options{MaxBatches: 1}, nil, zerolog.Nop()).Run(ctx, "payments")
	assert.ErrorIs(t, err, ErrRemoteFetch)

	count, err := store.CountPayments(ctx)
	require.NoError(t, err)
	assert.Zero(t, count, "malformed batch must not be persisted")
}

func TestRunPersistenceFailureLeavesCursor(t *testing.T) {
	base := newStore(t)
	ctx := context.Background()
	require.NoError(t, base.SetCursor(ctx, "payments", "1"))

	store := &faultyStore{Store: base, saveErr: errors.New("disk full")}
	src := &pagedSource{pages: map[string]fetcher.Batch{"1": {Records: records(2, 3), Next: "3"}}}
	ingestor := New(src, store, Options{MaxBatches: 1}, nil, zerolog.Nop())
	_, err := ingestor.Run(ctx, "payments")
	assert.ErrorIs(t, err, ErrPersistence)

	pos, _, err := base.GetCursor(ctx, "payments")
	require.NoError(t, err)
	assert.Equal(t, "1", pos)

	// the retry starts from the same cursor and stores each payment once
	store.saveErr = nil
	res, err := ingestor.Run(ctx, "payments")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, []string{"1", "1"}, src.calls)

	pos, _, err = base.GetCursor(ctx, "payments")
	require.NoError(t, err)
	assert.Equal(t, "3", pos)
	count, err := base.CountPayments(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestRunCursorWriteFailureIsPersistence(t *testing.T) {
	base := newStore(t)
	store := &faultyStore{Store: base, cursorErr: errors.New("locked")}
	src := &pagedSource{pages: map[string]fetcher.Batch{"": {Records: records(1, 2), Next: "2"}}}
	ingestor := New(src, store, Options{MaxBatches: 1}, nil, zerolog.Nop())
	_, err := ingestor.Run(context.Background(), "payments")
	assert.ErrorIs(t, err, ErrPersistence)

	_, ok, err := base.GetCursor(context.Background(), "payments")
	require.NoError(t, err)
	assert.False(t, ok)

	// the saved batch is fetched again; the duplicate ids are ignored
	store.cursorErr = nil
	res, err := ingestor.Run(context.Background(), "payments")
	require.NoError(t, err)
	assert.Zero(t, res.Inserted)
	count, err := base.CountPayments(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
	pos, _, err := base.GetCursor(context.Background(), "payments")
	require.NoError(t, err)
	assert.Equal(t, "2", pos)
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: KindPersistence, Task: "payments", Err: errors.New("boom")}
	assert.Equal(t, "ingest payments: persistence: boom", err.Error())
	assert.ErrorIs(t, err, ErrPersistence)
}
