package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"stellar-insights/internal/app"
)

var (
	aggregateFrom string
	aggregateTo   string
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Recompute hourly corridor metrics for a time range",
	RunE: func(cmd *cobra.Command, args []string) error {
		if aggregateFrom == "" || aggregateTo == "" {
			return fmt.Errorf("--from and --to must be provided")
		}

		from, err := parseTime("--from", aggregateFrom)
		if err != nil {
			return err
		}
		to, err := parseTime("--to", aggregateTo)
		if err != nil {
			return err
		}
		if !from.Before(to) {
			return fmt.Errorf("--from must be before --to")
		}

		return getApp().Aggregate(cmd.Context(), app.AggregateOptions{From: from, To: to})
	},
}

func init() {
	aggregateCmd.Flags().StringVar(&aggregateFrom, "from", "", "Start timestamp (RFC3339, truncated to the hour)")
	aggregateCmd.Flags().StringVar(&aggregateTo, "to", "", "End timestamp (RFC3339, rounded up to the hour)")
}
