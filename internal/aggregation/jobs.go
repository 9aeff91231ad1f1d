package aggregation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"stellar-insights/internal/metrics"
	"stellar-insights/internal/storage"
)

var (
	// ErrJobNotFound is returned for transitions on an unknown job.
	ErrJobNotFound = errors.New("aggregation: job not found")
	// ErrJobRunning is returned when starting a job that is already running.
	ErrJobRunning = errors.New("aggregation: job already running")
	// ErrRetriesExhausted is returned when a failed job reached the retry cap.
	ErrRetriesExhausted = errors.New("aggregation: retries exhausted")
	// ErrInvalidTransition is returned for any other disallowed state change.
	ErrInvalidTransition = errors.New("aggregation: invalid job transition")
)

// InterruptedMessage is recorded on jobs found running at startup.
const InterruptedMessage = "interrupted"

// JobManager drives the lifecycle of persisted aggregation jobs.
type JobManager struct {
	store      storage.JobStore
	maxRetries int
	metrics    *metrics.Metrics
	logger     zerolog.Logger
	now        func() time.Time
}

// NewJobManager constructs a JobManager. maxRetries <= 0 disables the cap.
func NewJobManager(store storage.JobStore, maxRetries int, m *metrics.Metrics, logger zerolog.Logger) *JobManager {
	return &JobManager{
		store:      store,
		maxRetries: maxRetries,
		metrics:    m,
		logger:     logger.With().Str("component", "job_manager").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// MaxRetries reports the configured cap.
func (m *JobManager) MaxRetries() int { return m.maxRetries }

// Exhausted reports whether the job hit the retry cap.
func (m *JobManager) Exhausted(job storage.AggregationJob) bool {
	return m.maxRetries > 0 && job.Status == storage.JobFailed && job.RetryCount >= m.maxRetries
}

// Get loads a job.
func (m *JobManager) Get(ctx context.Context, jobID string) (storage.AggregationJob, bool, error) {
	job, ok, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return storage.AggregationJob{}, false, fmt.Errorf("load job %s: %w", jobID, err)
	}
	return job, ok, nil
}

// Start moves the job to running, creating it pending first when absent.
func (m *JobManager) Start(ctx context.Context, jobID, jobType string) (storage.AggregationJob, error) {
	job, ok, err := m.Get(ctx, jobID)
	if err != nil {
		return storage.AggregationJob{}, err
	}

	if !ok {
		job = storage.AggregationJob{JobID: jobID, JobType: jobType, Status: storage.JobPending}
		if err := m.save(ctx, &job); err != nil {
			return storage.AggregationJob{}, err
		}
	}

	switch job.Status {
	case storage.JobRunning:
		return job, ErrJobRunning
	case storage.JobFailed:
		if m.Exhausted(job) {
			return job, fmt.Errorf("%w: job %s failed %d times", ErrRetriesExhausted, jobID, job.RetryCount)
		}
		job.Status = storage.JobPending
	case storage.JobCompleted:
		job.Status = storage.JobPending
	case storage.JobPending:
	default:
		return job, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, job.Status)
	}

	job.Status = storage.JobRunning
	if jobType != "" {
		job.JobType = jobType
	}
	if err := m.save(ctx, &job); err != nil {
		return storage.AggregationJob{}, err
	}
	m.logger.Debug().Str("job_id", jobID).Int("retry_count", job.RetryCount).Msg("job started")
	return job, nil
}

// Complete marks a running job completed and advances its watermark to lastHour.
// A zero lastHour completes without touching the watermark.
func (m *JobManager) Complete(ctx context.Context, jobID string, lastHour time.Time) (storage.AggregationJob, error) {
	job, err := m.running(ctx, jobID)
	if err != nil {
		return storage.AggregationJob{}, err
	}

	if !lastHour.IsZero() {
		hour := lastHour.UTC().Truncate(time.Hour)
		if job.LastProcessedHour == nil || hour.After(*job.LastProcessedHour) {
			job.LastProcessedHour = &hour
		}
	}
	job.Status = storage.JobCompleted
	job.ErrorMessage = nil
	if err := m.save(ctx, &job); err != nil {
		return storage.AggregationJob{}, err
	}
	m.metrics.JobOutcome(string(storage.JobCompleted))
	return job, nil
}

// Fail marks a running job failed and counts the retry. The watermark is kept.
func (m *JobManager) Fail(ctx context.Context, jobID string, cause error) (storage.AggregationJob, error) {
	job, err := m.running(ctx, jobID)
	if err != nil {
		return storage.AggregationJob{}, err
	}

	msg := InterruptedMessage
	if cause != nil {
		msg = cause.Error()
	}
	job.Status = storage.JobFailed
	job.RetryCount++
	job.ErrorMessage = &msg
	if err := m.save(ctx, &job); err != nil {
		return storage.AggregationJob{}, err
	}
	m.metrics.JobOutcome(string(storage.JobFailed))
	m.logger.Warn().
		Str("job_id", jobID).
		Int("retry_count", job.RetryCount).
		Str("error", msg).
		Msg("job failed")
	return job, nil
}

// Reset returns a failed or completed job to pending with a zero retry count and no
// error, keeping its watermark, so the next cycle resumes after the last good hour.
func (m *JobManager) Reset(ctx context.Context, jobID string) (storage.AggregationJob, error) {
	job, ok, err := m.Get(ctx, jobID)
	if err != nil {
		return storage.AggregationJob{}, err
	}
	if !ok {
		return storage.AggregationJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.Status == storage.JobRunning {
		return job, fmt.Errorf("%w: %s", ErrJobRunning, jobID)
	}

	previous := job.RetryCount
	job.Status = storage.JobPending
	job.RetryCount = 0
	job.ErrorMessage = nil
	if err := m.save(ctx, &job); err != nil {
		return storage.AggregationJob{}, err
	}
	m.logger.Info().Str("job_id", jobID).Int("previous_retries", previous).Msg("job reset")
	return job, nil
}

// Recover fails jobs left running by a crashed process.
func (m *JobManager) Recover(ctx context.Context) ([]storage.AggregationJob, error) {
	jobs, err := m.store.ListJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	recovered := make([]storage.AggregationJob, 0)
	for _, job := range jobs {
		if job.Status != storage.JobRunning {
			continue
		}
		failed, err := m.Fail(ctx, job.JobID, errors.New(InterruptedMessage))
		if err != nil {
			return recovered, err
		}
		recovered = append(recovered, failed)
	}
	if len(recovered) > 0 {
		m.logger.Warn().Int("jobs", len(recovered)).Msg("recovered interrupted jobs")
	}
	return recovered, nil
}

func (m *JobManager) running(ctx context.Context, jobID string) (storage.AggregationJob, error) {
	job, ok, err := m.Get(ctx, jobID)
	if err != nil {
		return storage.AggregationJob{}, err
	}
	if !ok {
		return storage.AggregationJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.Status != storage.JobRunning {
		return job, fmt.Errorf("%w: %s is %s, not running", ErrInvalidTransition, jobID, job.Status)
	}
	return job, nil
}

func (m *JobManager) save(ctx context.Context, job *storage.AggregationJob) error {
	job.UpdatedAt = m.now()
	if err := m.store.SaveJob(ctx, *job); err != nil {
		return fmt.Errorf("save job %s: %w", job.JobID, err)
	}
	return nil
}
