package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

// MemoryPath opens a private in-memory SQLite database.
const MemoryPath = ":memory:"

// Timestamps are stored as unix microseconds so range filters compare integers.

type cursorRow struct {
	TaskName   string `gorm:"column:task_name;primaryKey"`
	LastCursor string `gorm:"column:last_cursor;not null"`
	UpdatedAt  int64  `gorm:"column:updated_at;not null"`
}

func (cursorRow) TableName() string { return "ingestion_state" }

type paymentRow struct {
	ID                 string        `gorm:"column:id;primaryKey"`
	TxHash             string        `gorm:"column:tx_hash;not null"`
	SourceAccount      string        `gorm:"column:source_account;not null;index"`
	DestinationAccount string        `gorm:"column:destination_account;not null;index"`
	AssetType          string        `gorm:"column:asset_type;not null"`
	AssetCode          string        `gorm:"column:asset_code;not null;default:''"`
	AssetIssuer        string        `gorm:"column:asset_issuer;not null;default:''"`
	SourceAssetType    string        `gorm:"column:source_asset_type;not null;default:''"`
	SourceAssetCode    string        `gorm:"column:source_asset_code;not null;default:''"`
	SourceAssetIssuer  string        `gorm:"column:source_asset_issuer;not null;default:''"`
	Amount             string        `gorm:"column:amount;not null"`
	Successful         bool          `gorm:"column:successful;not null"`
	SettlementMs       sql.NullInt64 `gorm:"column:settlement_ms"`
	CreatedAt          int64         `gorm:"column:created_at;not null;index"`
}

func (paymentRow) TableName() string { return "payments" }

type hourlyMetricRow struct {
	CorridorKey   string  `gorm:"column:corridor_key;primaryKey"`
	HourBucket    int64   `gorm:"column:hour_bucket;primaryKey;index"`
	Volume        string  `gorm:"column:volume;not null"`
	TxCount       int64   `gorm:"column:tx_count;not null"`
	SuccessCount  int64   `gorm:"column:success_count;not null"`
	SettledCount  int64   `gorm:"column:settled_count;not null;default:0"`
	AvgSettlement float64 `gorm:"column:avg_settlement;not null"`
	UpdatedAt     int64   `gorm:"column:updated_at;not null"`
}

func (hourlyMetricRow) TableName() string { return "hourly_corridor_metrics" }

type jobRow struct {
	JobID             string         `gorm:"column:job_id;primaryKey"`
	JobType           string         `gorm:"column:job_type;not null"`
	Status            string         `gorm:"column:status;not null"`
	RetryCount        int            `gorm:"column:retry_count;not null"`
	LastProcessedHour sql.NullInt64  `gorm:"column:last_processed_hour"`
	ErrorMessage      sql.NullString `gorm:"column:error_message"`
	UpdatedAt         int64          `gorm:"column:updated_at;not null"`
}

func (jobRow) TableName() string { return "aggregation_jobs" }

type anchorHistoryRow struct {
	ID                     string          `gorm:"column:id;primaryKey"`
	Account                string          `gorm:"column:account;not null;index:idx_anchor_history_account,priority:1"`
	WindowStart            int64           `gorm:"column:window_start;not null"`
	WindowEnd              int64           `gorm:"column:window_end;not null"`
	RecordedAt             int64           `gorm:"column:recorded_at;not null;index:idx_anchor_history_account,priority:2"`
	TotalTransactions      int64           `gorm:"column:total_transactions;not null"`
	SuccessfulTransactions int64           `gorm:"column:successful_transactions;not null"`
	FailedTransactions     int64           `gorm:"column:failed_transactions;not null"`
	AvgSettlementMs        sql.NullFloat64 `gorm:"column:avg_settlement_ms"`
	Volume                 string          `gorm:"column:volume;not null"`
	SuccessRate            float64         `gorm:"column:success_rate;not null"`
	FailureRate            float64         `gorm:"column:failure_rate;not null"`
	ReliabilityScore       float64         `gorm:"column:reliability_score;not null"`
	Status                 string          `gorm:"column:status;not null"`
}

func (anchorHistoryRow) TableName() string { return "anchor_metrics_history" }

// SQLiteStore implements Store on an embedded SQLite database.
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) the database at path and migrates the schema.
// An empty path or MemoryPath selects a private in-memory database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	var dsn string
	if path == "" || path == MemoryPath {
		// cache=shared lets the pool's connection see the same named memory database
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	} else {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	// single writer; also pins the in-memory database for the store's lifetime
	sqlDB.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (s *SQLiteStore) getDB(ctx context.Context) (*gorm.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db.WithContext(ctx), nil
}

// Migrate creates missing tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	db, err := s.getDB(ctx)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(&cursorRow{}, &paymentRow{}, &hourlyMetricRow{}, &jobRow{}, &anchorHistoryRow{}); err != nil {
		return fmt.Errorf("migrate sqlite schema: %w", err)
	}
	return nil
}

// GetCursor returns the stored position of a task.
func (s *SQLiteStore) GetCursor(ctx context.Context, task string) (string, bool, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return "", false, err
	}
	var row cursorRow
	if err := db.Where("task_name = ?", task).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get cursor: %w", err)
	}
	return row.LastCursor, true, nil
}

// SetCursor upserts the position of a task.
func (s *SQLiteStore) SetCursor(ctx context.Context, task, position string) error {
	db, err := s.getDB(ctx)
	if err != nil {
		return err
	}
	row := cursorRow{TaskName: task, LastCursor: position, UpdatedAt: toMicros(time.Now())}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_cursor", "updated_at"}),
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

// ListCursors lists every task watermark.
func (s *SQLiteStore) ListCursors(ctx context.Context) ([]Cursor, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return nil, err
	}
	var rows []cursorRow
	if err := db.Order("task_name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	cursors := make([]Cursor, 0, len(rows))
	for _, r := range rows {
		cursors = append(cursors, Cursor{TaskName: r.TaskName, Position: r.LastCursor, UpdatedAt: fromMicros(r.UpdatedAt)})
	}
	return cursors, nil
}

// SavePayments inserts the batch in one transaction, skipping known ids.
func (s *SQLiteStore) SavePayments(ctx context.Context, payments []PaymentRecord) (int, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return 0, err
	}
	if len(payments) == 0 {
		return 0, nil
	}

	inserted := 0
	err = db.Transaction(func(tx *gorm.DB) error {
		for _, p := range payments {
			row := toPaymentRow(p)
			result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
			if result.Error != nil {
				return fmt.Errorf("insert payment: %w", result.Error)
			}
			inserted += int(result.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListPaymentsBetween lists payments created within [from, to).
func (s *SQLiteStore) ListPaymentsBetween(ctx context.Context, from, to time.Time) ([]PaymentRecord, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return nil, err
	}
	var rows []paymentRow
	if err := db.Where("created_at >= ? AND created_at < ?", toMicros(from), toMicros(to)).
		Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list payments between: %w", err)
	}
	return fromPaymentRows(rows)
}

// GetPaymentsByIDs loads payments for a bounded key set.
func (s *SQLiteStore) GetPaymentsByIDs(ctx context.Context, ids []string) ([]PaymentRecord, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return nil, err
	}
	keys := dedupeKeys(ids)
	if len(keys) == 0 {
		return []PaymentRecord{}, nil
	}
	if len(keys) > MaxInClauseKeys {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyKeys, len(keys), MaxInClauseKeys)
	}
	var rows []paymentRow
	if err := db.Where("id IN ?", keys).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("get payments by ids: %w", err)
	}
	return fromPaymentRows(rows)
}

// PaymentTimeBounds returns the earliest and latest created_at of stored payments.
func (s *SQLiteStore) PaymentTimeBounds(ctx context.Context) (time.Time, time.Time, bool, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	var bounds struct {
		Earliest sql.NullInt64
		Latest   sql.NullInt64
	}
	if err := db.Model(&paymentRow{}).
		Select("MIN(created_at) AS earliest, MAX(created_at) AS latest").
		Scan(&bounds).Error; err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("payment time bounds: %w", err)
	}
	if !bounds.Earliest.Valid || !bounds.Latest.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	return fromMicros(bounds.Earliest.Int64), fromMicros(bounds.Latest.Int64), true, nil
}

// ListMuxedParticipants lists payment parties where either side has the muxed shape.
func (s *SQLiteStore) ListMuxedParticipants(ctx context.Context) ([]Participants, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return nil, err
	}
	var rows []Participants
	if err := db.Model(&paymentRow{}).
		Select("source_account, destination_account").
		Where("(source_account LIKE ? AND LENGTH(source_account) = ?) OR (destination_account LIKE ? AND LENGTH(destination_account) = ?)",
			MuxedPrefix+"%", MuxedLength, MuxedPrefix+"%", MuxedLength).
		Order("id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("list muxed participants: %w", err)
	}
	if rows == nil {
		rows = []Participants{}
	}
	return rows, nil
}

// AccountCounters tallies payments touching the account within [from, to).
func (s *SQLiteStore) AccountCounters(ctx context.Context, account string, from, to time.Time) (AccountCounters, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return AccountCounters{}, err
	}
	var rows []paymentRow
	if err := db.Select("amount, successful, settlement_ms").
		Where("(source_account = ? OR destination_account = ?) AND created_at >= ? AND created_at < ?",
			account, account, toMicros(from), toMicros(to)).
		Find(&rows).Error; err != nil {
		return AccountCounters{}, fmt.Errorf("account counters: %w", err)
	}

	counters := AccountCounters{Volume: decimal.Zero}
	var (
		settlementSum float64
		settled       int64
	)
	for _, r := range rows {
		counters.Total++
		if r.Successful {
			counters.Successful++
		} else {
			counters.Failed++
		}
		if r.SettlementMs.Valid {
			settlementSum += float64(r.SettlementMs.Int64)
			settled++
		}
		amount, err := decimal.NewFromString(r.Amount)
		if err != nil {
			return AccountCounters{}, fmt.Errorf("parse amount: %w", err)
		}
		counters.Volume = counters.Volume.Add(amount)
	}
	if settled > 0 {
		avg := settlementSum / float64(settled)
		counters.AvgSettlementMs = &avg
	}
	return counters, nil
}

// CountPayments counts stored payments.
func (s *SQLiteStore) CountPayments(ctx context.Context) (int64, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := db.Model(&paymentRow{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count payments: %w", err)
	}
	return count, nil
}

// UpsertHourlyMetric writes one bucket, replacing any prior value.
func (s *SQLiteStore) UpsertHourlyMetric(ctx context.Context, m HourlyCorridorMetric) error {
	db, err := s.getDB(ctx)
	if err != nil {
		return err
	}
	row := toHourlyMetricRow(m)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "corridor_key"}, {Name: "hour_bucket"}},
		UpdateAll: true,
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("upsert hourly metric: %w", err)
	}
	return nil
}

// ReplaceHour deletes the hour's buckets and writes the new set atomically.
func (s *SQLiteStore) ReplaceHour(ctx context.Context, hour time.Time, metrics []HourlyCorridorMetric) error {
	db, err := s.getDB(ctx)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("hour_bucket = ?", toMicros(hour)).Delete(&hourlyMetricRow{}).Error; err != nil {
			return fmt.Errorf("delete hour buckets: %w", err)
		}
		for _, m := range metrics {
			row := toHourlyMetricRow(m)
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "corridor_key"}, {Name: "hour_bucket"}},
				UpdateAll: true,
			}).Create(&row).Error; err != nil {
				return fmt.Errorf("insert hour bucket: %w", err)
			}
		}
		return nil
	})
}

// ListHourlyMetrics lists buckets with hour_bucket within [from, to).
func (s *SQLiteStore) ListHourlyMetrics(ctx context.Context, from, to time.Time) ([]HourlyCorridorMetric, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return nil, err
	}
	var rows []hourlyMetricRow
	if err := db.Where("hour_bucket >= ? AND hour_bucket < ?", toMicros(from), toMicros(to)).
		Order("hour_bucket, corridor_key").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list hourly metrics: %w", err)
	}
	metrics := make([]HourlyCorridorMetric, 0, len(rows))
	for _, r := range rows {
		volume, err := decimal.NewFromString(r.Volume)
		if err != nil {
			return nil, fmt.Errorf("parse volume: %w", err)
		}
		metrics = append(metrics, HourlyCorridorMetric{
			CorridorKey:     r.CorridorKey,
			HourBucket:      fromMicros(r.HourBucket),
			Volume:          volume,
			TxCount:         r.TxCount,
			SuccessCount:    r.SuccessCount,
			SettledCount:    r.SettledCount,
			AvgSettlementMs: r.AvgSettlement,
			UpdatedAt:       fromMicros(r.UpdatedAt),
		})
	}
	return metrics, nil
}

// GetJob loads an aggregation job by id.
func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (AggregationJob, bool, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return AggregationJob{}, false, err
	}
	var row jobRow
	if err := db.Where("job_id = ?", jobID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return AggregationJob{}, false, nil
		}
		return AggregationJob{}, false, fmt.Errorf("get job: %w", err)
	}
	return fromJobRow(row), true, nil
}

// SaveJob upserts the full job row.
func (s *SQLiteStore) SaveJob(ctx context.Context, job AggregationJob) error {
	db, err := s.getDB(ctx)
	if err != nil {
		return err
	}
	row := jobRow{
		JobID:      job.JobID,
		JobType:    job.JobType,
		Status:     string(job.Status),
		RetryCount: job.RetryCount,
		UpdatedAt:  toMicros(job.UpdatedAt),
	}
	if job.UpdatedAt.IsZero() {
		row.UpdatedAt = toMicros(time.Now())
	}
	if job.LastProcessedHour != nil {
		row.LastProcessedHour = sql.NullInt64{Int64: toMicros(*job.LastProcessedHour), Valid: true}
	}
	if job.ErrorMessage != nil {
		row.ErrorMessage = sql.NullString{String: *job.ErrorMessage, Valid: true}
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_id"}},
		UpdateAll: true,
	}).Create(&row).Error; err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

// ListJobs lists every aggregation job.
func (s *SQLiteStore) ListJobs(ctx context.Context) ([]AggregationJob, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return nil, err
	}
	var rows []jobRow
	if err := db.Order("job_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	jobs := make([]AggregationJob, 0, len(rows))
	for _, r := range rows {
		jobs = append(jobs, fromJobRow(r))
	}
	return jobs, nil
}

// RecordAnchorSnapshot appends one reliability snapshot to the account history.
func (s *SQLiteStore) RecordAnchorSnapshot(ctx context.Context, r AnchorMetricsRecord) error {
	db, err := s.getDB(ctx)
	if err != nil {
		return err
	}
	r = r.normalized()
	row := anchorHistoryRow{
		ID:                     r.ID,
		Account:                r.Account,
		WindowStart:            toMicros(r.WindowStart),
		WindowEnd:              toMicros(r.WindowEnd),
		RecordedAt:             toMicros(r.RecordedAt),
		TotalTransactions:      r.TotalTransactions,
		SuccessfulTransactions: r.SuccessfulTransactions,
		FailedTransactions:     r.FailedTransactions,
		Volume:                 r.Volume.String(),
		SuccessRate:            r.SuccessRate,
		FailureRate:            r.FailureRate,
		ReliabilityScore:       r.ReliabilityScore,
		Status:                 r.Status,
	}
	if r.AvgSettlementMs != nil {
		row.AvgSettlementMs = sql.NullFloat64{Float64: *r.AvgSettlementMs, Valid: true}
	}
	if err := db.Create(&row).Error; err != nil {
		return fmt.Errorf("record anchor snapshot: %w", err)
	}
	return nil
}

// ListAnchorHistory lists the account's snapshots, newest first.
func (s *SQLiteStore) ListAnchorHistory(ctx context.Context, account string, limit int) ([]AnchorMetricsRecord, error) {
	db, err := s.getDB(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var rows []anchorHistoryRow
	if err := db.Where("account = ?", account).
		Order("recorded_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list anchor history: %w", err)
	}
	history := make([]AnchorMetricsRecord, 0, len(rows))
	for _, r := range rows {
		volume, err := decimal.NewFromString(r.Volume)
		if err != nil {
			return nil, fmt.Errorf("parse volume: %w", err)
		}
		record := AnchorMetricsRecord{
			ID:                     r.ID,
			Account:                r.Account,
			WindowStart:            fromMicros(r.WindowStart),
			WindowEnd:              fromMicros(r.WindowEnd),
			RecordedAt:             fromMicros(r.RecordedAt),
			TotalTransactions:      r.TotalTransactions,
			SuccessfulTransactions: r.SuccessfulTransactions,
			FailedTransactions:     r.FailedTransactions,
			Volume:                 volume,
			SuccessRate:            r.SuccessRate,
			FailureRate:            r.FailureRate,
			ReliabilityScore:       r.ReliabilityScore,
			Status:                 r.Status,
		}
		if r.AvgSettlementMs.Valid {
			value := r.AvgSettlementMs.Float64
			record.AvgSettlementMs = &value
		}
		history = append(history, record)
	}
	return history, nil
}

func toMicros(t time.Time) int64 {
	return t.UTC().UnixMicro()
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

func toPaymentRow(p PaymentRecord) paymentRow {
	source := p.EffectiveSourceAsset()
	row := paymentRow{
		ID:                 p.ID,
		TxHash:             p.TxHash,
		SourceAccount:      p.SourceAccount,
		DestinationAccount: p.DestinationAccount,
		AssetType:          p.Asset.Type,
		AssetCode:          p.Asset.Code,
		AssetIssuer:        p.Asset.Issuer,
		SourceAssetType:    source.Type,
		SourceAssetCode:    source.Code,
		SourceAssetIssuer:  source.Issuer,
		Amount:             p.Amount.String(),
		Successful:         p.Successful,
		CreatedAt:          toMicros(p.CreatedAt),
	}
	if p.SettlementMs != nil {
		row.SettlementMs = sql.NullInt64{Int64: *p.SettlementMs, Valid: true}
	}
	return row
}

func fromPaymentRows(rows []paymentRow) ([]PaymentRecord, error) {
	payments := make([]PaymentRecord, 0, len(rows))
	for _, r := range rows {
		amount, err := decimal.NewFromString(r.Amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		p := PaymentRecord{
			ID:                 r.ID,
			TxHash:             r.TxHash,
			SourceAccount:      r.SourceAccount,
			DestinationAccount: r.DestinationAccount,
			Asset:              Asset{Type: r.AssetType, Code: r.AssetCode, Issuer: r.AssetIssuer},
			SourceAsset:        Asset{Type: r.SourceAssetType, Code: r.SourceAssetCode, Issuer: r.SourceAssetIssuer},
			Amount:             amount,
			Successful:         r.Successful,
			CreatedAt:          fromMicros(r.CreatedAt),
		}
		if r.SettlementMs.Valid {
			value := r.SettlementMs.Int64
			p.SettlementMs = &value
		}
		payments = append(payments, p)
	}
	return payments, nil
}

func toHourlyMetricRow(m HourlyCorridorMetric) hourlyMetricRow {
	updated := m.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return hourlyMetricRow{
		CorridorKey:   m.CorridorKey,
		HourBucket:    toMicros(m.HourBucket),
		Volume:        m.Volume.String(),
		TxCount:       m.TxCount,
		SuccessCount:  m.SuccessCount,
		SettledCount:  m.SettledCount,
		AvgSettlement: m.AvgSettlementMs,
		UpdatedAt:     toMicros(updated),
	}
}

func fromJobRow(r jobRow) AggregationJob {
	job := AggregationJob{
		JobID:      r.JobID,
		JobType:    r.JobType,
		Status:     JobStatus(r.Status),
		RetryCount: r.RetryCount,
		UpdatedAt:  fromMicros(r.UpdatedAt),
	}
	if r.LastProcessedHour.Valid {
		hour := fromMicros(r.LastProcessedHour.Int64)
		job.LastProcessedHour = &hour
	}
	if r.ErrorMessage.Valid {
		msg := r.ErrorMessage.String
		job.ErrorMessage = &msg
	}
	return job
}

var _ Store = (*SQLiteStore)(nil)
