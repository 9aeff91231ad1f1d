package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"stellar-insights/internal/aggregation"
	"stellar-insights/internal/analytics"
	"stellar-insights/internal/cache"
	"stellar-insights/internal/storage"
	"stellar-insights/internal/validation"
)

// MaxCorridorHours bounds the range of a corridor listing.
const MaxCorridorHours = 31 * 24

// CorridorQuery selects corridors over [From, To), widened to whole hours.
type CorridorQuery struct {
	From    time.Time
	To      time.Time
	Filters validation.CorridorFilters
}

// CorridorSummary rolls the hourly buckets of one corridor up over a range.
type CorridorSummary struct {
	CorridorKey     string          `json:"corridor_key"`
	Volume          decimal.Decimal `json:"volume"`
	TxCount         int64           `json:"tx_count"`
	SuccessCount    int64           `json:"success_count"`
	SuccessRate     float64         `json:"success_rate"`
	AvgSettlementMs float64         `json:"avg_settlement_ms"`
	Hours           int             `json:"hours"`
}

// AnchorSnapshot is the reliability view of one account over a range.
type AnchorSnapshot struct {
	Account string             `json:"account"`
	From    time.Time          `json:"from"`
	To      time.Time          `json:"to"`
	Volume  decimal.Decimal    `json:"volume"`
	Metrics analytics.Snapshot `json:"metrics"`
}

// Cursor returns the stored position of task.
func (s *Service) Cursor(ctx context.Context, task string) (string, bool, error) {
	if task == "" {
		task = s.task
	}
	return s.store.GetCursor(ctx, task)
}

// Cursors lists every ingestion cursor.
func (s *Service) Cursors(ctx context.Context) ([]storage.Cursor, error) {
	return s.store.ListCursors(ctx)
}

// Jobs lists aggregation jobs.
func (s *Service) Jobs(ctx context.Context) ([]storage.AggregationJob, error) {
	return s.store.ListJobs(ctx)
}

// PaymentCount reports the number of stored payments.
func (s *Service) PaymentCount(ctx context.Context) (int64, error) {
	return s.store.CountPayments(ctx)
}

// HourlyMetrics returns raw buckets, uncached, for exports.
func (s *Service) HourlyMetrics(ctx context.Context, from, to time.Time) ([]storage.HourlyCorridorMetric, error) {
	return s.store.ListHourlyMetrics(ctx, from, to)
}

// Payments loads stored payments by id, in batches of storage.MaxInClauseKeys.
// Unknown ids are absent from the result.
func (s *Service) Payments(ctx context.Context, ids []string) ([]storage.PaymentRecord, error) {
	keys := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		keys = append(keys, id)
	}
	if len(keys) == 0 {
		return nil, &validation.Error{Param: "id", Reason: "at least one payment id is required"}
	}

	out := make([]storage.PaymentRecord, 0, len(keys))
	for start := 0; start < len(keys); start += storage.MaxInClauseKeys {
		end := min(start+storage.MaxInClauseKeys, len(keys))
		batch, err := s.store.GetPaymentsByIDs(ctx, keys[start:end])
		if err != nil {
			return nil, fmt.Errorf("get payments by ids: %w", err)
		}
		out = append(out, batch...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Score validates counters and scores them.
func (s *Service) Score(c analytics.Counters) (analytics.Snapshot, error) {
	if err := c.Validate(); err != nil {
		return analytics.Snapshot{}, err
	}
	return s.scorer.Score(c), nil
}

// CorridorMetrics lists corridors whose range totals pass the filters, by volume descending.
// Each hour is read through the cache and dropped from it when re-aggregated.
func (s *Service) CorridorMetrics(ctx context.Context, q CorridorQuery) ([]CorridorSummary, error) {
	if err := q.Filters.Validate(); err != nil {
		return nil, err
	}
	start, end := aggregation.TimeRange{Start: q.From, End: q.To}.Hours()
	if end.Before(start) {
		return nil, &validation.Error{Param: "to", Reason: "must not precede from"}
	}
	if hours := int(end.Sub(start) / time.Hour); hours > MaxCorridorHours {
		return nil, &validation.Error{
			Param:  "to",
			Value:  strconv.Itoa(hours) + "h",
			Reason: fmt.Sprintf("range must not exceed %d hours", MaxCorridorHours),
		}
	}

	rollup := make(map[string]*corridorTotals)
	for hour := start; hour.Before(end); hour = hour.Add(time.Hour) {
		buckets, err := s.hourBuckets(ctx, hour)
		if err != nil {
			return nil, err
		}
		for _, b := range buckets {
			t, ok := rollup[b.CorridorKey]
			if !ok {
				t = &corridorTotals{summary: CorridorSummary{CorridorKey: b.CorridorKey, Volume: decimal.Zero}}
				rollup[b.CorridorKey] = t
			}
			t.add(b)
		}
	}

	out := make([]CorridorSummary, 0, len(rollup))
	for _, t := range rollup {
		summary := t.finish()
		if q.Filters.Match(summary.SuccessRate, summary.Volume.InexactFloat64()) {
			out = append(out, summary)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Volume.Cmp(out[j].Volume); c != 0 {
			return c > 0
		}
		return out[i].CorridorKey < out[j].CorridorKey
	})
	return out, nil
}

// MuxedAnalytics reports activity of multiplexed addresses. topN <= 0 uses the configured default.
func (s *Service) MuxedAnalytics(ctx context.Context, topN int) (analytics.MuxedAnalytics, error) {
	if topN <= 0 {
		topN = s.topN
	}
	params := struct {
		TopN int `json:"top_n"`
	}{TopN: topN}
	return cache.FetchWithParams(ctx, s.cache, s.key("muxed"), params, s.cacheCfg.MuxedTTL, func(ctx context.Context) (analytics.MuxedAnalytics, error) {
		pairs, err := s.store.ListMuxedParticipants(ctx)
		if err != nil {
			return analytics.MuxedAnalytics{}, fmt.Errorf("list muxed participants: %w", err)
		}
		return s.analyzer.Analyze(pairs, topN), nil
	})
}

// AnchorSnapshot scores an account's payments in [from, to).
func (s *Service) AnchorSnapshot(ctx context.Context, account string, from, to time.Time) (AnchorSnapshot, error) {
	if account == "" {
		return AnchorSnapshot{}, &validation.Error{Param: "account", Reason: "must not be empty"}
	}
	if to.Before(from) {
		return AnchorSnapshot{}, &validation.Error{Param: "to", Reason: "must not precede from"}
	}
	from, to = from.UTC(), to.UTC()
	params := struct {
		Account string `json:"account"`
		From    int64  `json:"from"`
		To      int64  `json:"to"`
	}{Account: account, From: from.Unix(), To: to.Unix()}

	return cache.FetchWithParams(ctx, s.cache, s.key("anchor"), params, s.cacheCfg.AnchorTTL, func(ctx context.Context) (AnchorSnapshot, error) {
		counters, err := s.store.AccountCounters(ctx, account, from, to)
		if err != nil {
			return AnchorSnapshot{}, fmt.Errorf("account counters: %w", err)
		}
		snapshot, err := s.Score(analytics.Counters{
			Total:           counters.Total,
			Successful:      counters.Successful,
			Failed:          counters.Failed,
			AvgSettlementMs: counters.AvgSettlementMs,
		})
		if err != nil {
			return AnchorSnapshot{}, err
		}
		result := AnchorSnapshot{Account: account, From: from, To: to, Volume: counters.Volume, Metrics: snapshot}
		if err := s.store.RecordAnchorSnapshot(ctx, result.record(s.now())); err != nil {
			return AnchorSnapshot{}, fmt.Errorf("record anchor snapshot: %w", err)
		}
		return result, nil
	})
}

// AnchorHistory lists the recorded snapshots of an account, newest first.
// limit <= 0 uses storage.DefaultHistoryLimit.
func (s *Service) AnchorHistory(ctx context.Context, account string, limit int) ([]storage.AnchorMetricsRecord, error) {
	if account == "" {
		return nil, &validation.Error{Param: "account", Reason: "must not be empty"}
	}
	return s.store.ListAnchorHistory(ctx, account, limit)
}

func (a AnchorSnapshot) record(at time.Time) storage.AnchorMetricsRecord {
	return storage.AnchorMetricsRecord{
		Account:                a.Account,
		WindowStart:            a.From,
		WindowEnd:              a.To,
		RecordedAt:             at,
		TotalTransactions:      a.Metrics.Total,
		SuccessfulTransactions: a.Metrics.Successful,
		FailedTransactions:     a.Metrics.Failed,
		AvgSettlementMs:        a.Metrics.AvgSettlementMs,
		Volume:                 a.Volume,
		SuccessRate:            a.Metrics.SuccessRate,
		FailureRate:            a.Metrics.FailureRate,
		ReliabilityScore:       a.Metrics.ReliabilityScore,
		Status:                 string(a.Metrics.Status),
	}
}

func (s *Service) hourBuckets(ctx context.Context, hour time.Time) ([]storage.HourlyCorridorMetric, error) {
	return cache.Fetch(ctx, s.cache, s.hourKey(hour), s.cacheCfg.CorridorTTL, func(ctx context.Context) ([]storage.HourlyCorridorMetric, error) {
		buckets, err := s.store.ListHourlyMetrics(ctx, hour, hour.Add(time.Hour))
		if err != nil {
			return nil, fmt.Errorf("list hourly metrics: %w", err)
		}
		return buckets, nil
	})
}

func (s *Service) invalidateHours(ctx context.Context, from, to time.Time) {
	keys := make([]string, 0, int(to.Sub(from)/time.Hour))
	for hour := from; hour.Before(to); hour = hour.Add(time.Hour) {
		keys = append(keys, s.hourKey(hour))
	}
	s.cache.Invalidate(ctx, keys...)
}

func (s *Service) hourKey(hour time.Time) string {
	return s.key("corridors:" + strconv.FormatInt(hour.UTC().Truncate(time.Hour).Unix(), 10))
}

func (s *Service) key(name string) string {
	if s.cacheCfg.KeyPrefix == "" {
		return name
	}
	return s.cacheCfg.KeyPrefix + ":" + name
}

type corridorTotals struct {
	summary       CorridorSummary
	settlementSum float64
	settled       int64
}

func (t *corridorTotals) add(b storage.HourlyCorridorMetric) {
	t.summary.Volume = t.summary.Volume.Add(b.Volume)
	t.summary.TxCount += b.TxCount
	t.summary.SuccessCount += b.SuccessCount
	t.summary.Hours++
	// hourly averages cover settled payments only
	if b.SettledCount > 0 {
		t.settlementSum += b.AvgSettlementMs * float64(b.SettledCount)
		t.settled += b.SettledCount
	}
}

func (t *corridorTotals) finish() CorridorSummary {
	out := t.summary
	if out.TxCount > 0 {
		out.SuccessRate = float64(out.SuccessCount) / float64(out.TxCount) * 100
	}
	if t.settled > 0 {
		out.AvgSettlementMs = t.settlementSum / float64(t.settled)
	}
	return out
}
