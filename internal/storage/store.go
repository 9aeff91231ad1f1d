package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotConfigured indicates the storage backend was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
	// ErrTooManyKeys rejects batch lookups above MaxInClauseKeys.
	ErrTooManyKeys = errors.New("storage: too many keys for batch lookup")
)

// MuxedSignature is the structural shape of a multiplexed Stellar address.
const (
	MuxedPrefix = "M"
	MuxedLength = 69
)

// DefaultHistoryLimit caps anchor history reads without an explicit limit.
const DefaultHistoryLimit = 50

// CursorStore persists per-task ingestion watermarks.
type CursorStore interface {
	GetCursor(ctx context.Context, task string) (string, bool, error)
	SetCursor(ctx context.Context, task, position string) error
	ListCursors(ctx context.Context) ([]Cursor, error)
}

// PaymentStore holds immutable payment records.
type PaymentStore interface {
	// SavePayments inserts the batch atomically, ignoring ids already present.
	SavePayments(ctx context.Context, payments []PaymentRecord) (int, error)
	ListPaymentsBetween(ctx context.Context, from, to time.Time) ([]PaymentRecord, error)
	GetPaymentsByIDs(ctx context.Context, ids []string) ([]PaymentRecord, error)
	PaymentTimeBounds(ctx context.Context) (earliest, latest time.Time, ok bool, err error)
	ListMuxedParticipants(ctx context.Context) ([]Participants, error)
	AccountCounters(ctx context.Context, account string, from, to time.Time) (AccountCounters, error)
	CountPayments(ctx context.Context) (int64, error)
}

// HourlyMetricStore holds hourly corridor aggregates.
type HourlyMetricStore interface {
	UpsertHourlyMetric(ctx context.Context, metric HourlyCorridorMetric) error
	// ReplaceHour swaps every bucket of the hour for the supplied set in one transaction.
	ReplaceHour(ctx context.Context, hour time.Time, metrics []HourlyCorridorMetric) error
	ListHourlyMetrics(ctx context.Context, from, to time.Time) ([]HourlyCorridorMetric, error)
}

// JobStore persists aggregation job rows.
type JobStore interface {
	GetJob(ctx context.Context, jobID string) (AggregationJob, bool, error)
	SaveJob(ctx context.Context, job AggregationJob) error
	ListJobs(ctx context.Context) ([]AggregationJob, error)
}

// AnchorHistoryStore keeps recomputed account reliability snapshots.
type AnchorHistoryStore interface {
	RecordAnchorSnapshot(ctx context.Context, record AnchorMetricsRecord) error
	// ListAnchorHistory returns the newest records first; limit <= 0 means DefaultHistoryLimit.
	ListAnchorHistory(ctx context.Context, account string, limit int) ([]AnchorMetricsRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates every persistence concern of the pipeline.
type Store interface {
	CursorStore
	PaymentStore
	HourlyMetricStore
	JobStore
	AnchorHistoryStore
	Close()
}
