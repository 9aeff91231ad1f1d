package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"stellar-insights/internal/app"
)

var (
	corridorsFrom           string
	corridorsTo             string
	corridorsSuccessRateMin float64
	corridorsSuccessRateMax float64
	corridorsVolumeMin      float64
	corridorsVolumeMax      float64
	corridorsLimit          int
	corridorsJSON           bool

	muxedTop  int
	muxedJSON bool

	scoreAccount    string
	scoreFrom       string
	scoreTo         string
	scoreTotal      int64
	scoreSuccessful int64
	scoreFailed     int64
	scoreSettlement float64
	scoreHistory    bool
	scoreLimit      int
	scoreJSON       bool

	paymentsJSON bool
)

var corridorsCmd = &cobra.Command{
	Use:   "corridors",
	Short: "List payment corridors by volume",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, to, err := parseWindow(corridorsFrom, corridorsTo, 24*time.Hour)
		if err != nil {
			return err
		}
		if corridorsLimit < 0 {
			return fmt.Errorf("--limit must not be negative")
		}
		return getApp().Corridors(cmd.Context(), app.CorridorOptions{
			From:           from,
			To:             to,
			SuccessRateMin: optionalFloat(cmd, "success-rate-min", corridorsSuccessRateMin),
			SuccessRateMax: optionalFloat(cmd, "success-rate-max", corridorsSuccessRateMax),
			VolumeMin:      optionalFloat(cmd, "volume-min", corridorsVolumeMin),
			VolumeMax:      optionalFloat(cmd, "volume-max", corridorsVolumeMax),
			Limit:          corridorsLimit,
			JSON:           corridorsJSON,
		})
	},
}

var muxedCmd = &cobra.Command{
	Use:   "muxed",
	Short: "Report activity of multiplexed (M...) addresses",
	RunE: func(cmd *cobra.Command, args []string) error {
		if muxedTop < 0 {
			return fmt.Errorf("--top must not be negative")
		}
		return getApp().Muxed(cmd.Context(), app.MuxedOptions{TopN: muxedTop, JSON: muxedJSON})
	},
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute a reliability score from counters or an account's payments",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ScoreOptions{
			Account:         scoreAccount,
			Total:           scoreTotal,
			Successful:      scoreSuccessful,
			Failed:          scoreFailed,
			AvgSettlementMs: optionalFloat(cmd, "avg-settlement-ms", scoreSettlement),
			History:         scoreHistory,
			Limit:           scoreLimit,
			JSON:            scoreJSON,
		}
		if scoreHistory {
			if scoreAccount == "" {
				return fmt.Errorf("--history requires --account")
			}
			if scoreLimit < 0 {
				return fmt.Errorf("--limit must not be negative")
			}
			return getApp().Score(cmd.Context(), opts)
		}
		if scoreAccount != "" {
			from, to, err := parseWindow(scoreFrom, scoreTo, 24*time.Hour)
			if err != nil {
				return err
			}
			opts.From, opts.To = from, to
		} else if !cmd.Flags().Changed("total") {
			return fmt.Errorf("either --account or --total must be provided")
		}
		return getApp().Score(cmd.Context(), opts)
	},
}

var paymentsCmd = &cobra.Command{
	Use:   "payments <id>...",
	Short: "Look up stored payments by id",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Payments(cmd.Context(), app.PaymentsOptions{IDs: args, JSON: paymentsJSON})
	},
}

func init() {
	corridorsCmd.Flags().StringVar(&corridorsFrom, "from", "", "Start timestamp (RFC3339, defaults to 24h before --to)")
	corridorsCmd.Flags().StringVar(&corridorsTo, "to", "", "End timestamp (RFC3339, defaults to now)")
	corridorsCmd.Flags().Float64Var(&corridorsSuccessRateMin, "success-rate-min", 0, "Minimum success rate (0-100)")
	corridorsCmd.Flags().Float64Var(&corridorsSuccessRateMax, "success-rate-max", 0, "Maximum success rate (0-100)")
	corridorsCmd.Flags().Float64Var(&corridorsVolumeMin, "volume-min", 0, "Minimum volume")
	corridorsCmd.Flags().Float64Var(&corridorsVolumeMax, "volume-max", 0, "Maximum volume")
	corridorsCmd.Flags().IntVar(&corridorsLimit, "limit", 0, "Maximum corridors to print (0 prints all)")
	corridorsCmd.Flags().BoolVar(&corridorsJSON, "json", false, "Print JSON")

	muxedCmd.Flags().IntVar(&muxedTop, "top", 0, "Number of addresses to rank (defaults to config)")
	muxedCmd.Flags().BoolVar(&muxedJSON, "json", false, "Print JSON")

	scoreCmd.Flags().StringVar(&scoreAccount, "account", "", "Score this account's stored payments")
	scoreCmd.Flags().StringVar(&scoreFrom, "from", "", "Start timestamp for --account (RFC3339)")
	scoreCmd.Flags().StringVar(&scoreTo, "to", "", "End timestamp for --account (RFC3339)")
	scoreCmd.Flags().Int64Var(&scoreTotal, "total", 0, "Total transactions")
	scoreCmd.Flags().Int64Var(&scoreSuccessful, "successful", 0, "Successful transactions")
	scoreCmd.Flags().Int64Var(&scoreFailed, "failed", 0, "Failed transactions")
	scoreCmd.Flags().Float64Var(&scoreSettlement, "avg-settlement-ms", 0, "Average settlement time in milliseconds")
	scoreCmd.Flags().BoolVar(&scoreHistory, "history", false, "List recorded snapshots of --account instead of scoring")
	scoreCmd.Flags().IntVar(&scoreLimit, "limit", 0, "Maximum snapshots listed with --history (defaults to 50)")
	scoreCmd.Flags().BoolVar(&scoreJSON, "json", false, "Print JSON")

	paymentsCmd.Flags().BoolVar(&paymentsJSON, "json", false, "Print JSON")
}
