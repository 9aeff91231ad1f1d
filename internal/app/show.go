package app

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints ingestion cursors, aggregation jobs and the stored payment count.
func (a *App) Show(ctx context.Context) error {
	svc, closeService, err := a.newService(ctx, nil)
	if err != nil {
		return err
	}
	defer closeService()

	cursors, err := svc.Cursors(ctx)
	if err != nil {
		return err
	}
	jobs, err := svc.Jobs(ctx)
	if err != nil {
		return err
	}
	count, err := svc.PaymentCount(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "payments stored: %d\n\n", count)

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Task\tCursor\tUpdated (UTC)")
	if len(cursors) == 0 {
		fmt.Fprintln(writer, "-\t-\t-")
	}
	for _, c := range cursors {
		fmt.Fprintf(writer, "%s\t%s\t%s\n", c.TaskName, c.Position, c.UpdatedAt.UTC().Format(time.RFC3339))
	}
	fmt.Fprintln(writer)

	fmt.Fprintln(writer, "Job\tType\tStatus\tRetries\tLast hour (UTC)\tError")
	if len(jobs) == 0 {
		fmt.Fprintln(writer, "-\t-\t-\t-\t-\t-")
	}
	for _, job := range jobs {
		lastHour := "-"
		if job.LastProcessedHour != nil {
			lastHour = job.LastProcessedHour.UTC().Format(time.RFC3339)
		}
		errMsg := ""
		if job.ErrorMessage != nil {
			errMsg = sanitizeInline(*job.ErrorMessage)
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			job.JobID, job.JobType, job.Status, job.RetryCount, a.Config.Aggregation.MaxRetries, lastHour, errMsg)
	}
	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
