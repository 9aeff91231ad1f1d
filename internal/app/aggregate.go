package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stellar-insights/internal/aggregation"
)

// Aggregate recomputes every hourly bucket of a range. The job watermark is not moved.
func (a *App) Aggregate(ctx context.Context, opts AggregateOptions) error {
	r := aggregation.TimeRange{Start: opts.From, End: opts.To}
	start, end := r.Hours()
	if !start.Before(end) {
		return errors.New("aggregation range is empty; check --from/--to")
	}

	svc, closeService, err := a.newService(ctx, nil)
	if err != nil {
		return err
	}
	defer closeService()

	summary, err := svc.Backfill(ctx, r)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Time("from", start).
		Time("to", end).
		Int("hours", summary.Hours).
		Int("buckets", summary.Buckets).
		Msg("aggregation backfill completed")
	fmt.Fprintf(a.Out, "aggregated %d hours (%s to %s), %d corridor buckets\n",
		summary.Hours, start.Format(time.RFC3339), end.Format(time.RFC3339), summary.Buckets)
	return nil
}

// Ingest runs a single ingestion pass without aggregating.
func (a *App) Ingest(ctx context.Context) error {
	svc, closeService, err := a.newService(ctx, nil)
	if err != nil {
		return err
	}
	defer closeService()

	res, err := svc.Ingest(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "fetched %d payments in %d batches, %d new, cursor %q\n",
		res.Fetched, res.Batches, res.Inserted, res.Cursor)
	return nil
}

// RunOnce executes one full cycle and exits.
func (a *App) RunOnce(ctx context.Context) error {
	svc, closeService, err := a.newService(ctx, nil)
	if err != nil {
		return err
	}
	defer closeService()

	report, err := svc.Cycle(ctx, time.Now().UTC())
	fmt.Fprintf(a.Out, "cycle %s: %d new payments, %d hours aggregated, %d buckets\n",
		report.ID, report.Ingestion.Inserted, report.Aggregation.Hours, report.Aggregation.Buckets)
	return err
}

// ResetJob clears the retry count and error of an aggregation job so the
// scheduler resumes it from its watermark. An empty id selects the configured job.
func (a *App) ResetJob(ctx context.Context, jobID string) error {
	svc, closeService, err := a.newService(ctx, nil)
	if err != nil {
		return err
	}
	defer closeService()

	job, err := svc.ResetJob(ctx, jobID)
	if err != nil {
		return err
	}
	watermark := "-"
	if job.LastProcessedHour != nil {
		watermark = job.LastProcessedHour.UTC().Format(time.RFC3339)
	}
	fmt.Fprintf(a.Out, "job %s reset to %s, resuming after %s\n", job.JobID, job.Status, watermark)
	return nil
}
