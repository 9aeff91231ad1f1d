package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Cursor is the ingestion watermark of a named task.
type Cursor struct {
	TaskName  string
	Position  string
	UpdatedAt time.Time
}

// Asset identifies a Stellar asset. Native lumens carry no code or issuer.
type Asset struct {
	Type   string
	Code   string
	Issuer string
}

// NativeAsset is the lumen asset descriptor.
var NativeAsset = Asset{Type: "native"}

// IsNative reports whether the asset is XLM.
func (a Asset) IsNative() bool {
	return a.Type == "native" || (a.Type == "" && a.Code == "")
}

// String renders the asset as native or CODE:ISSUER.
func (a Asset) String() string {
	if a.IsNative() {
		return "native"
	}
	if a.Issuer == "" {
		return a.Code
	}
	return a.Code + ":" + a.Issuer
}

// PaymentRecord is an immutable payment operation pulled from the ledger.
type PaymentRecord struct {
	ID                 string
	TxHash             string
	SourceAccount      string
	DestinationAccount string
	Asset              Asset
	// SourceAsset differs from Asset only for path payments.
	SourceAsset  Asset
	Amount       decimal.Decimal
	Successful   bool
	SettlementMs *int64
	CreatedAt    time.Time
}

// EffectiveSourceAsset falls back to the delivered asset when no source asset was recorded.
func (p PaymentRecord) EffectiveSourceAsset() Asset {
	if p.SourceAsset.Type == "" && p.SourceAsset.Code == "" {
		return p.Asset
	}
	return p.SourceAsset
}

// CorridorKey is the directed source->destination asset pair of the payment.
func (p PaymentRecord) CorridorKey() string {
	return CorridorKey(p.EffectiveSourceAsset(), p.Asset)
}

// CorridorKey renders a corridor identifier from two assets.
func CorridorKey(source, destination Asset) string {
	return source.String() + "->" + destination.String()
}

// HourlyCorridorMetric is one corridor's aggregate over a single hour bucket.
type HourlyCorridorMetric struct {
	CorridorKey     string
	HourBucket      time.Time
	Volume          decimal.Decimal
	TxCount         int64
	SuccessCount    int64
	SettledCount    int64 // payments that carried a settlement time; AvgSettlementMs averages over these
	AvgSettlementMs float64
	UpdatedAt       time.Time
}

// SameValues reports whether two buckets carry identical aggregates, ignoring UpdatedAt.
func (m HourlyCorridorMetric) SameValues(o HourlyCorridorMetric) bool {
	return m.CorridorKey == o.CorridorKey &&
		m.HourBucket.Equal(o.HourBucket) &&
		m.Volume.Equal(o.Volume) &&
		m.TxCount == o.TxCount &&
		m.SuccessCount == o.SuccessCount &&
		m.SettledCount == o.SettledCount &&
		m.AvgSettlementMs == o.AvgSettlementMs
}

// JobStatus enumerates aggregation job lifecycle states.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// AggregationJob tracks a named aggregation job and its resume watermark.
type AggregationJob struct {
	JobID             string
	JobType           string
	Status            JobStatus
	RetryCount        int
	LastProcessedHour *time.Time
	ErrorMessage      *string
	UpdatedAt         time.Time
}

// Participants is the source/destination pair of a stored payment.
type Participants struct {
	SourceAccount      string
	DestinationAccount string
}

// AccountCounters are raw payment counters for one account over a window.
type AccountCounters struct {
	Total           int64
	Successful      int64
	Failed          int64
	AvgSettlementMs *float64
	Volume          decimal.Decimal
}

// AnchorMetricsRecord is one recomputed reliability snapshot of an account,
// kept as history.
type AnchorMetricsRecord struct {
	ID                     string          `json:"id"`
	Account                string          `json:"account"`
	WindowStart            time.Time       `json:"window_start"`
	WindowEnd              time.Time       `json:"window_end"`
	RecordedAt             time.Time       `json:"recorded_at"`
	TotalTransactions      int64           `json:"total_transactions"`
	SuccessfulTransactions int64           `json:"successful_transactions"`
	FailedTransactions     int64           `json:"failed_transactions"`
	AvgSettlementMs        *float64        `json:"avg_settlement_ms,omitempty"`
	Volume                 decimal.Decimal `json:"volume"`
	SuccessRate            float64         `json:"success_rate"`
	FailureRate            float64         `json:"failure_rate"`
	ReliabilityScore       float64         `json:"reliability_score"`
	Status                 string          `json:"status"`
}

// normalized fills the id, recorded time and UTC windows before a write.
func (r AnchorMetricsRecord) normalized() AnchorMetricsRecord {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now()
	}
	r.RecordedAt = r.RecordedAt.UTC()
	r.WindowStart = r.WindowStart.UTC()
	r.WindowEnd = r.WindowEnd.UTC()
	return r
}
