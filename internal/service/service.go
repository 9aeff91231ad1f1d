package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"stellar-insights/internal/aggregation"
	"stellar-insights/internal/alerting"
	"stellar-insights/internal/analytics"
	"stellar-insights/internal/cache"
	"stellar-insights/internal/config"
	"stellar-insights/internal/fetcher"
	"stellar-insights/internal/ingestion"
	"stellar-insights/internal/metrics"
	"stellar-insights/internal/muxed"
	"stellar-insights/internal/scheduler"
	"stellar-insights/internal/storage"
)

// JobType labels the hourly corridor aggregation job row.
const JobType = "hourly_corridor"

// Dependencies are the collaborators a Service orchestrates.
type Dependencies struct {
	Scheduler *scheduler.Scheduler
	Source    fetcher.PaymentSource
	Store     storage.Store
	Cache     *cache.Aside
	Scorer    analytics.Scorer
	Decoder   muxed.Decoder
	Notifier  alerting.Notifier
	Metrics   *metrics.Metrics
}

// Service orchestrates ingestion, aggregation and the cached read paths.
type Service struct {
	scheduler  *scheduler.Scheduler
	store      storage.Store
	ingestor   *ingestion.Ingestor
	aggregator *aggregation.Aggregator
	jobs       *aggregation.JobManager
	cache      *cache.Aside
	scorer     analytics.Scorer
	analyzer   *analytics.MuxedAnalyzer
	notifier   alerting.Notifier
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	task     string
	jobID    string
	maxHours int
	topN     int
	cacheCfg config.CacheConfig
	channels []string
	alertsOn bool
	locker   storage.AdvisoryLocker
	lockKey  int64
	now      func() time.Time
}

// CycleReport summarises one scheduled cycle.
type CycleReport struct {
	ID          string
	Tick        time.Time
	Skipped     bool
	Ingestion   ingestion.Result
	Aggregation aggregation.Summary
	Duration    time.Duration
}

// New constructs the service.
func New(cfg *config.Config, deps Dependencies, logger zerolog.Logger) *Service {
	scorer := deps.Scorer
	if scorer == nil {
		scorer = analytics.DefaultScorer()
	}
	decoder := deps.Decoder
	if decoder == nil {
		decoder = muxed.StrkeyDecoder{}
	}
	aside := deps.Cache
	if aside == nil {
		aside = cache.New(nil, deps.Metrics, logger)
	}

	var locker storage.AdvisoryLocker
	if l, ok := deps.Store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	ingestor := ingestion.New(deps.Source, deps.Store, ingestion.Options{
		StartCursor: cfg.Ingestion.StartCursor,
		MaxBatches:  cfg.Ingestion.MaxBatches,
	}, deps.Metrics, logger)

	return &Service{
		scheduler:  deps.Scheduler,
		store:      deps.Store,
		ingestor:   ingestor,
		aggregator: aggregation.NewAggregator(deps.Store, deps.Metrics, logger),
		jobs:       aggregation.NewJobManager(deps.Store, cfg.Aggregation.MaxRetries, deps.Metrics, logger),
		cache:      aside,
		scorer:     scorer,
		analyzer:   analytics.NewMuxedAnalyzer(decoder),
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		logger:     logger.With().Str("component", "service").Logger(),
		task:       cfg.Ingestion.TaskName,
		jobID:      cfg.Aggregation.JobID,
		maxHours:   cfg.Aggregation.MaxHoursPerRun,
		topN:       cfg.Muxed.TopN,
		cacheCfg:   cfg.Cache,
		channels:   cfg.Alerting.Channels,
		alertsOn:   cfg.Alerting.Enabled,
		locker:     locker,
		lockKey:    cfg.Scheduler.AdvisoryLockKey,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run recovers interrupted jobs, then drives cycles until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	if _, err := s.jobs.Recover(ctx); err != nil {
		return fmt.Errorf("recover jobs: %w", err)
	}
	return s.scheduler.Run(ctx, s.RunCycle)
}

// RunCycle is the scheduler tick.
func (s *Service) RunCycle(ctx context.Context, tick time.Time) error {
	_, err := s.Cycle(ctx, tick)
	return err
}

// Cycle ingests new payments, then aggregates the hours they completed.
// An ingestion failure does not prevent aggregating what is already stored.
func (s *Service) Cycle(ctx context.Context, tick time.Time) (CycleReport, error) {
	report := CycleReport{ID: uuid.NewString(), Tick: tick}
	logger := s.logger.With().Str("cycle_id", report.ID).Time("tick", tick).Logger()

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return report, err
	}
	if !proceed {
		report.Skipped = true
		logger.Debug().Msg("skip cycle because advisory lock held elsewhere")
		return report, nil
	}
	if unlock != nil {
		defer unlock()
	}

	started := time.Now()
	res, ingestErr := s.ingestor.Run(ctx, s.task)
	report.Ingestion = res
	if ingestErr != nil {
		logger.Error().Err(ingestErr).Str("cursor", res.Cursor).Msg("ingestion failed")
	}

	summary, aggErr := s.aggregateStep(ctx)
	report.Aggregation = summary
	if aggErr != nil {
		logger.Error().Err(aggErr).Msg("aggregation failed")
	}

	report.Duration = time.Since(started)
	s.metrics.ObserveCycle(report.Duration)

	if err := errors.Join(ingestErr, aggErr); err != nil {
		return report, err
	}
	logger.Info().
		Int("inserted", res.Inserted).
		Str("cursor", res.Cursor).
		Int("hours", summary.Hours).
		Int("buckets", summary.Buckets).
		Dur("duration", report.Duration).
		Msg("cycle completed")
	return report, nil
}

// Ingest runs ingestion only.
func (s *Service) Ingest(ctx context.Context) (ingestion.Result, error) {
	return s.ingestor.Run(ctx, s.task)
}

// Backfill recomputes every hour of r without touching the job watermark.
func (s *Service) Backfill(ctx context.Context, r aggregation.TimeRange) (aggregation.Summary, error) {
	summary, err := s.aggregator.Aggregate(ctx, r)
	if err != nil {
		return summary, err
	}
	start, end := r.Hours()
	s.invalidateHours(ctx, start, end)
	return summary, nil
}

// ResetJob clears the retry count and error of a job so the next cycle resumes it
// from its watermark. An empty jobID means the configured aggregation job.
func (s *Service) ResetJob(ctx context.Context, jobID string) (storage.AggregationJob, error) {
	if jobID == "" {
		jobID = s.jobID
	}
	return s.jobs.Reset(ctx, jobID)
}

func (s *Service) aggregateStep(ctx context.Context) (aggregation.Summary, error) {
	job, err := s.jobs.Start(ctx, s.jobID, JobType)
	switch {
	case errors.Is(err, aggregation.ErrJobRunning):
		s.logger.Warn().Str("job_id", s.jobID).Msg("aggregation job already running; skipping")
		return aggregation.Summary{}, nil
	case errors.Is(err, aggregation.ErrRetriesExhausted):
		s.logger.Error().Err(err).Str("job_id", s.jobID).Msg("aggregation job disabled until reset (jobs reset)")
		return aggregation.Summary{}, nil
	case err != nil:
		return aggregation.Summary{}, err
	}

	summary, lastHour, err := s.aggregatePending(ctx, job)
	if err != nil {
		s.failJob(ctx, err)
		return summary, err
	}
	if _, err := s.jobs.Complete(ctx, s.jobID, lastHour); err != nil {
		return summary, err
	}
	return summary, nil
}

// aggregatePending covers [watermark+1h, latest hour) and then refreshes the
// still-open latest hour. It returns the new watermark, zero when unchanged.
func (s *Service) aggregatePending(ctx context.Context, job storage.AggregationJob) (aggregation.Summary, time.Time, error) {
	earliest, latest, ok, err := s.store.PaymentTimeBounds(ctx)
	if err != nil {
		return aggregation.Summary{}, time.Time{}, fmt.Errorf("payment time bounds: %w", err)
	}
	if !ok {
		return aggregation.Summary{}, time.Time{}, nil
	}

	from := earliest.UTC().Truncate(time.Hour)
	if job.LastProcessedHour != nil {
		from = job.LastProcessedHour.UTC().Add(time.Hour)
	}
	tail := latest.UTC().Truncate(time.Hour)
	to := tail
	if limit := time.Duration(s.maxHours) * time.Hour; s.maxHours > 0 && to.Sub(from) > limit {
		to = from.Add(limit)
	}

	var (
		summary  aggregation.Summary
		lastHour time.Time
	)
	if to.After(from) {
		summary, err = s.aggregator.Aggregate(ctx, aggregation.TimeRange{Start: from, End: to})
		if err != nil {
			return summary, time.Time{}, err
		}
		lastHour = to.Add(-time.Hour)
		s.invalidateHours(ctx, from, to)
	}

	if to.Equal(tail) && !tail.Before(from) {
		open, err := s.aggregator.Aggregate(ctx, aggregation.TimeRange{Start: tail, End: tail.Add(time.Hour)})
		if err != nil {
			return summary, time.Time{}, err
		}
		summary.Hours += open.Hours
		summary.Buckets += open.Buckets
		summary.LastHour = open.LastHour
		s.invalidateHours(ctx, tail, tail.Add(time.Hour))
	}
	return summary, lastHour, nil
}

func (s *Service) failJob(ctx context.Context, cause error) {
	job, err := s.jobs.Fail(ctx, s.jobID, cause)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", s.jobID).Msg("failed to record job failure")
		return
	}
	if s.jobs.Exhausted(job) {
		s.alert(ctx, job)
	}
}

func (s *Service) alert(ctx context.Context, job storage.AggregationJob) {
	if !s.alertsOn || s.notifier == nil {
		return
	}
	note := alerting.Notification{
		JobID:             job.JobID,
		JobType:           job.JobType,
		RetryCount:        job.RetryCount,
		MaxRetries:        s.jobs.MaxRetries(),
		LastProcessedHour: job.LastProcessedHour,
		OccurredAt:        s.now(),
		Channels:          s.channels,
	}
	if job.ErrorMessage != nil {
		note.Error = *job.ErrorMessage
	}
	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.JobID).Msg("failed to dispatch alert")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
