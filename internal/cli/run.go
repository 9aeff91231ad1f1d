package cli

import (
	"github.com/spf13/cobra"
)

var runOnce bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduled ingestion and aggregation service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runOnce {
			return getApp().RunOnce(cmd.Context())
		}
		return getApp().Run(cmd.Context())
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch new payments once without aggregating",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Ingest(cmd.Context())
	},
}

func init() {
	runCmd.Flags().BoolVar(&runOnce, "once", false, "Run a single cycle and exit")
}
