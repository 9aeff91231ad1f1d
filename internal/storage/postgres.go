package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"stellar-insights/internal/config"
)

//go:embed schema/postgres.sql
var postgresSchema string

const (
	getCursorSQL = `SELECT last_cursor FROM ingestion_state WHERE task_name = $1;`

	setCursorSQL = `INSERT INTO ingestion_state (task_name, last_cursor, updated_at)
    VALUES ($1, $2, $3)
    ON CONFLICT (task_name) DO UPDATE
    SET last_cursor = EXCLUDED.last_cursor,
        updated_at  = EXCLUDED.updated_at;`

	listCursorsSQL = `SELECT task_name, last_cursor, updated_at FROM ingestion_state ORDER BY task_name;`

	insertPaymentSQL = `INSERT INTO payments (
        id,
        tx_hash,
        source_account,
        destination_account,
        asset_type,
        asset_code,
        asset_issuer,
        source_asset_type,
        source_asset_code,
        source_asset_issuer,
        amount,
        successful,
        settlement_ms,
        created_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::numeric,$12,$13,$14
    )
    ON CONFLICT (id) DO NOTHING;`

	selectPaymentColumns = `SELECT
        id,
        tx_hash,
        source_account,
        destination_account,
        asset_type,
        asset_code,
        asset_issuer,
        source_asset_type,
        source_asset_code,
        source_asset_issuer,
        amount::text,
        successful,
        settlement_ms,
        created_at
    FROM payments`

	listPaymentsBetweenSQL = selectPaymentColumns + `
    WHERE created_at >= $1
      AND created_at < $2
    ORDER BY created_at, id;`

	paymentTimeBoundsSQL = `SELECT MIN(created_at), MAX(created_at) FROM payments;`

	listMuxedParticipantsSQL = `SELECT source_account, destination_account FROM payments
    WHERE (source_account LIKE $1 AND LENGTH(source_account) = $2)
       OR (destination_account LIKE $1 AND LENGTH(destination_account) = $2)
    ORDER BY id;`

	accountCountersSQL = `SELECT
        COUNT(*),
        COUNT(*) FILTER (WHERE successful),
        COUNT(*) FILTER (WHERE NOT successful),
        AVG(settlement_ms)::float8,
        COALESCE(SUM(amount), 0)::text
    FROM payments
    WHERE (source_account = $1 OR destination_account = $1)
      AND created_at >= $2
      AND created_at < $3;`

	countPaymentsSQL = `SELECT COUNT(*) FROM payments;`

	upsertHourlyMetricSQL = `INSERT INTO hourly_corridor_metrics (
        corridor_key,
        hour_bucket,
        volume,
        tx_count,
        success_count,
        settled_count,
        avg_settlement,
        updated_at
    ) VALUES (
        $1,$2,$3::numeric,$4,$5,$6,$7,$8
    )
    ON CONFLICT (corridor_key, hour_bucket) DO UPDATE
    SET volume         = EXCLUDED.volume,
        tx_count       = EXCLUDED.tx_count,
        success_count  = EXCLUDED.success_count,
        settled_count  = EXCLUDED.settled_count,
        avg_settlement = EXCLUDED.avg_settlement,
        updated_at     = EXCLUDED.updated_at;`

	deleteHourSQL = `DELETE FROM hourly_corridor_metrics WHERE hour_bucket = $1;`

	listHourlyMetricsSQL = `SELECT
        corridor_key,
        hour_bucket,
        volume::text,
        tx_count,
        success_count,
        settled_count,
        avg_settlement,
        updated_at
    FROM hourly_corridor_metrics
    WHERE hour_bucket >= $1
      AND hour_bucket < $2
    ORDER BY hour_bucket, corridor_key;`

	getJobSQL = `SELECT job_id, job_type, status, retry_count, last_processed_hour, error_message, updated_at
    FROM aggregation_jobs WHERE job_id = $1;`

	listJobsSQL = `SELECT job_id, job_type, status, retry_count, last_processed_hour, error_message, updated_at
    FROM aggregation_jobs ORDER BY job_id;`

	saveJobSQL = `INSERT INTO aggregation_jobs (
        job_id,
        job_type,
        status,
        retry_count,
        last_processed_hour,
        error_message,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (job_id) DO UPDATE
    SET job_type            = EXCLUDED.job_type,
        status              = EXCLUDED.status,
        retry_count         = EXCLUDED.retry_count,
        last_processed_hour = EXCLUDED.last_processed_hour,
        error_message       = EXCLUDED.error_message,
        updated_at          = EXCLUDED.updated_at;`

	insertAnchorHistorySQL = `INSERT INTO anchor_metrics_history (
        id,
        account,
        window_start,
        window_end,
        recorded_at,
        total_transactions,
        successful_transactions,
        failed_transactions,
        avg_settlement_ms,
        volume,
        success_rate,
        failure_rate,
        reliability_score,
        status
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10::numeric,$11,$12,$13,$14
    );`

	listAnchorHistorySQL = `SELECT
        id,
        account,
        window_start,
        window_end,
        recorded_at,
        total_transactions,
        successful_transactions,
        failed_transactions,
        avg_settlement_ms,
        volume::text,
        success_rate,
        failure_rate,
        reliability_score,
        status
    FROM anchor_metrics_history
    WHERE account = $1
    ORDER BY recorded_at DESC, id DESC
    LIMIT $2;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires a pgx pool into a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PostgresStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// Migrate creates the schema when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate postgres schema: %w", err)
	}
	return nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PostgresStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// a failed unlock is released with the session
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// GetCursor returns the stored position of a task.
func (s *PostgresStore) GetCursor(ctx context.Context, task string) (string, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return "", false, err
	}
	var position string
	if err := pool.QueryRow(ctx, getCursorSQL, task).Scan(&position); err != nil {
		if err == pgx.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get cursor: %w", err)
	}
	return position, true, nil
}

// SetCursor upserts the position of a task.
func (s *PostgresStore) SetCursor(ctx context.Context, task, position string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, setCursorSQL, task, position, time.Now().UTC()); err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}

// ListCursors lists every task watermark.
func (s *PostgresStore) ListCursors(ctx context.Context) ([]Cursor, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listCursorsSQL)
	if err != nil {
		return nil, fmt.Errorf("list cursors: %w", err)
	}
	defer rows.Close()

	cursors := make([]Cursor, 0)
	for rows.Next() {
		var c Cursor
		if err := rows.Scan(&c.TaskName, &c.Position, &c.UpdatedAt); err != nil {
			return nil, err
		}
		cursors = append(cursors, c)
	}
	return cursors, rows.Err()
}

// SavePayments inserts the batch in one transaction, skipping known ids.
func (s *PostgresStore) SavePayments(ctx context.Context, payments []PaymentRecord) (int, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	if len(payments) == 0 {
		return 0, nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin save payments: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, p := range payments {
		var settlement interface{}
		if p.SettlementMs != nil {
			settlement = *p.SettlementMs
		}
		source := p.EffectiveSourceAsset()
		batch.Queue(insertPaymentSQL,
			p.ID,
			p.TxHash,
			p.SourceAccount,
			p.DestinationAccount,
			p.Asset.Type,
			p.Asset.Code,
			p.Asset.Issuer,
			source.Type,
			source.Code,
			source.Issuer,
			p.Amount.String(),
			p.Successful,
			settlement,
			p.CreatedAt.UTC(),
		)
	}

	results := tx.SendBatch(ctx, batch)
	inserted := 0
	for range payments {
		tag, execErr := results.Exec()
		if execErr != nil {
			_ = results.Close()
			return 0, fmt.Errorf("insert payment: %w", execErr)
		}
		inserted += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("close payment batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit save payments: %w", err)
	}
	return inserted, nil
}

// ListPaymentsBetween lists payments created within [from, to).
func (s *PostgresStore) ListPaymentsBetween(ctx context.Context, from, to time.Time) ([]PaymentRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listPaymentsBetweenSQL, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list payments between: %w", err)
	}
	return collectPayments(rows)
}

// GetPaymentsByIDs loads payments for a bounded key set.
func (s *PostgresStore) GetPaymentsByIDs(ctx context.Context, ids []string) ([]PaymentRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	keys := dedupeKeys(ids)
	if len(keys) == 0 {
		return []PaymentRecord{}, nil
	}
	in, err := InClause("id", len(keys), 0)
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, selectPaymentColumns+" WHERE "+in+" ORDER BY created_at, id;", StringArgs(keys)...)
	if err != nil {
		return nil, fmt.Errorf("get payments by ids: %w", err)
	}
	return collectPayments(rows)
}

// PaymentTimeBounds returns the earliest and latest created_at of stored payments.
func (s *PostgresStore) PaymentTimeBounds(ctx context.Context) (time.Time, time.Time, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return time.Time{}, time.Time{}, false, err
	}
	var earliest, latest sql.NullTime
	if err := pool.QueryRow(ctx, paymentTimeBoundsSQL).Scan(&earliest, &latest); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("payment time bounds: %w", err)
	}
	if !earliest.Valid || !latest.Valid {
		return time.Time{}, time.Time{}, false, nil
	}
	return earliest.Time.UTC(), latest.Time.UTC(), true, nil
}

// ListMuxedParticipants lists payment parties where either side has the muxed shape.
func (s *PostgresStore) ListMuxedParticipants(ctx context.Context) ([]Participants, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listMuxedParticipantsSQL, MuxedPrefix+"%", MuxedLength)
	if err != nil {
		return nil, fmt.Errorf("list muxed participants: %w", err)
	}
	defer rows.Close()

	out := make([]Participants, 0)
	for rows.Next() {
		var p Participants
		if err := rows.Scan(&p.SourceAccount, &p.DestinationAccount); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AccountCounters tallies payments touching the account within [from, to).
func (s *PostgresStore) AccountCounters(ctx context.Context, account string, from, to time.Time) (AccountCounters, error) {
	pool, err := s.getPool()
	if err != nil {
		return AccountCounters{}, err
	}
	var (
		counters  AccountCounters
		avg       sql.NullFloat64
		volumeStr string
	)
	if err := pool.QueryRow(ctx, accountCountersSQL, account, from.UTC(), to.UTC()).Scan(
		&counters.Total,
		&counters.Successful,
		&counters.Failed,
		&avg,
		&volumeStr,
	); err != nil {
		return AccountCounters{}, fmt.Errorf("account counters: %w", err)
	}
	if avg.Valid {
		value := avg.Float64
		counters.AvgSettlementMs = &value
	}
	volume, err := decimal.NewFromString(volumeStr)
	if err != nil {
		return AccountCounters{}, fmt.Errorf("parse volume: %w", err)
	}
	counters.Volume = volume
	return counters, nil
}

// CountPayments counts stored payments.
func (s *PostgresStore) CountPayments(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if err := pool.QueryRow(ctx, countPaymentsSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("count payments: %w", err)
	}
	return count, nil
}

// UpsertHourlyMetric writes one bucket, replacing any prior value.
func (s *PostgresStore) UpsertHourlyMetric(ctx context.Context, m HourlyCorridorMetric) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, upsertHourlyMetricSQL, hourlyMetricArgs(m)...); err != nil {
		return fmt.Errorf("upsert hourly metric: %w", err)
	}
	return nil
}

// ReplaceHour deletes the hour's buckets and writes the new set atomically.
func (s *PostgresStore) ReplaceHour(ctx context.Context, hour time.Time, metrics []HourlyCorridorMetric) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace hour: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, deleteHourSQL, hour.UTC()); err != nil {
		return fmt.Errorf("delete hour buckets: %w", err)
	}
	for _, m := range metrics {
		if _, err := tx.Exec(ctx, upsertHourlyMetricSQL, hourlyMetricArgs(m)...); err != nil {
			return fmt.Errorf("insert hour bucket: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace hour: %w", err)
	}
	return nil
}

// ListHourlyMetrics lists buckets with hour_bucket within [from, to).
func (s *PostgresStore) ListHourlyMetrics(ctx context.Context, from, to time.Time) ([]HourlyCorridorMetric, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listHourlyMetricsSQL, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("list hourly metrics: %w", err)
	}
	defer rows.Close()

	metrics := make([]HourlyCorridorMetric, 0)
	for rows.Next() {
		var (
			m         HourlyCorridorMetric
			volumeStr string
		)
		if err := rows.Scan(&m.CorridorKey, &m.HourBucket, &volumeStr, &m.TxCount, &m.SuccessCount, &m.SettledCount, &m.AvgSettlementMs, &m.UpdatedAt); err != nil {
			return nil, err
		}
		volume, err := decimal.NewFromString(volumeStr)
		if err != nil {
			return nil, fmt.Errorf("parse volume: %w", err)
		}
		m.Volume = volume
		m.HourBucket = m.HourBucket.UTC()
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// GetJob loads an aggregation job by id.
func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (AggregationJob, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return AggregationJob{}, false, err
	}
	job, err := scanJob(pool.QueryRow(ctx, getJobSQL, jobID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return AggregationJob{}, false, nil
		}
		return AggregationJob{}, false, fmt.Errorf("get job: %w", err)
	}
	return job, true, nil
}

// SaveJob upserts the full job row.
func (s *PostgresStore) SaveJob(ctx context.Context, job AggregationJob) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	var lastHour, errMsg interface{}
	if job.LastProcessedHour != nil {
		lastHour = job.LastProcessedHour.UTC()
	}
	if job.ErrorMessage != nil {
		errMsg = *job.ErrorMessage
	}
	updated := job.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	if _, err := pool.Exec(ctx, saveJobSQL, job.JobID, job.JobType, string(job.Status), job.RetryCount, lastHour, errMsg, updated); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

// ListJobs lists every aggregation job.
func (s *PostgresStore) ListJobs(ctx context.Context) ([]AggregationJob, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, listJobsSQL)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]AggregationJob, 0)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// RecordAnchorSnapshot appends one reliability snapshot to the account history.
func (s *PostgresStore) RecordAnchorSnapshot(ctx context.Context, r AnchorMetricsRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	r = r.normalized()
	var avg interface{}
	if r.AvgSettlementMs != nil {
		avg = *r.AvgSettlementMs
	}
	if _, err := pool.Exec(ctx, insertAnchorHistorySQL,
		r.ID,
		r.Account,
		r.WindowStart,
		r.WindowEnd,
		r.RecordedAt,
		r.TotalTransactions,
		r.SuccessfulTransactions,
		r.FailedTransactions,
		avg,
		r.Volume.String(),
		r.SuccessRate,
		r.FailureRate,
		r.ReliabilityScore,
		r.Status,
	); err != nil {
		return fmt.Errorf("record anchor snapshot: %w", err)
	}
	return nil
}

// ListAnchorHistory lists the account's snapshots, newest first.
func (s *PostgresStore) ListAnchorHistory(ctx context.Context, account string, limit int) ([]AnchorMetricsRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := pool.Query(ctx, listAnchorHistorySQL, account, limit)
	if err != nil {
		return nil, fmt.Errorf("list anchor history: %w", err)
	}
	defer rows.Close()

	history := make([]AnchorMetricsRecord, 0)
	for rows.Next() {
		var (
			r         AnchorMetricsRecord
			avg       sql.NullFloat64
			volumeStr string
		)
		if err := rows.Scan(
			&r.ID,
			&r.Account,
			&r.WindowStart,
			&r.WindowEnd,
			&r.RecordedAt,
			&r.TotalTransactions,
			&r.SuccessfulTransactions,
			&r.FailedTransactions,
			&avg,
			&volumeStr,
			&r.SuccessRate,
			&r.FailureRate,
			&r.ReliabilityScore,
			&r.Status,
		); err != nil {
			return nil, err
		}
		volume, err := decimal.NewFromString(volumeStr)
		if err != nil {
			return nil, fmt.Errorf("parse volume: %w", err)
		}
		r.Volume = volume
		if avg.Valid {
			value := avg.Float64
			r.AvgSettlementMs = &value
		}
		r.WindowStart, r.WindowEnd, r.RecordedAt = r.WindowStart.UTC(), r.WindowEnd.UTC(), r.RecordedAt.UTC()
		history = append(history, r)
	}
	return history, rows.Err()
}

func hourlyMetricArgs(m HourlyCorridorMetric) []any {
	updated := m.UpdatedAt
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return []any{
		m.CorridorKey,
		m.HourBucket.UTC(),
		m.Volume.String(),
		m.TxCount,
		m.SuccessCount,
		m.SettledCount,
		m.AvgSettlementMs,
		updated,
	}
}

func collectPayments(rows pgx.Rows) ([]PaymentRecord, error) {
	defer rows.Close()

	payments := make([]PaymentRecord, 0)
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return payments, nil
}

func scanPayment(rows pgx.Rows) (PaymentRecord, error) {
	var (
		p          PaymentRecord
		amountStr  string
		settlement sql.NullInt64
	)
	if err := rows.Scan(
		&p.ID,
		&p.TxHash,
		&p.SourceAccount,
		&p.DestinationAccount,
		&p.Asset.Type,
		&p.Asset.Code,
		&p.Asset.Issuer,
		&p.SourceAsset.Type,
		&p.SourceAsset.Code,
		&p.SourceAsset.Issuer,
		&amountStr,
		&p.Successful,
		&settlement,
		&p.CreatedAt,
	); err != nil {
		return PaymentRecord{}, err
	}

	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return PaymentRecord{}, fmt.Errorf("parse amount: %w", err)
	}
	p.Amount = amount
	p.CreatedAt = p.CreatedAt.UTC()
	if settlement.Valid {
		value := settlement.Int64
		p.SettlementMs = &value
	}
	return p, nil
}

func scanJob(row pgx.Row) (AggregationJob, error) {
	var (
		job      AggregationJob
		status   string
		lastHour sql.NullTime
		errMsg   sql.NullString
	)
	if err := row.Scan(&job.JobID, &job.JobType, &status, &job.RetryCount, &lastHour, &errMsg, &job.UpdatedAt); err != nil {
		return AggregationJob{}, err
	}
	job.Status = JobStatus(status)
	if lastHour.Valid {
		hour := lastHour.Time.UTC()
		job.LastProcessedHour = &hour
	}
	if errMsg.Valid {
		msg := errMsg.String
		job.ErrorMessage = &msg
	}
	return job, nil
}

var (
	_ Store          = (*PostgresStore)(nil)
	_ AdvisoryLocker = (*PostgresStore)(nil)
)
