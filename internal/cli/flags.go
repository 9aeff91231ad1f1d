package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func parseTime(flag, value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s value: %w", flag, err)
	}
	return t.UTC(), nil
}

// parseWindow resolves optional --from/--to flags, defaulting to the trailing window.
func parseWindow(fromValue, toValue string, window time.Duration) (time.Time, time.Time, error) {
	to := time.Now().UTC()
	if toValue != "" {
		parsed, err := parseTime("--to", toValue)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed
	}
	from := to.Add(-window)
	if fromValue != "" {
		parsed, err := parseTime("--from", fromValue)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--from must not be after --to")
	}
	return from, to, nil
}

// optionalFloat returns nil unless the flag was set explicitly.
func optionalFloat(cmd *cobra.Command, name string, value float64) *float64 {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &value
}
