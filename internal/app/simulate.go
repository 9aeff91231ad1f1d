package app

import (
	"context"
	"errors"
	"time"

	"stellar-insights/internal/alerting"
)

// SimulateAlert sends a synthetic exhausted-job alert through the configured channels.
func (a *App) SimulateAlert(ctx context.Context, message string) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	now := time.Now().UTC()
	lastHour := now.Truncate(time.Hour).Add(-time.Hour)
	note := alerting.Notification{
		JobID:             a.Config.Aggregation.JobID,
		JobType:           "simulated",
		RetryCount:        a.Config.Aggregation.MaxRetries,
		MaxRetries:        a.Config.Aggregation.MaxRetries,
		Error:             message,
		LastProcessedHour: &lastHour,
		OccurredAt:        now,
		Channels:          a.Config.Alerting.Channels,
		AdditionalMsg:     "This is a test alert.",
	}
	return notifier.Notify(ctx, note)
}
