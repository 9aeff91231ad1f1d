package cli

import (
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage aggregation jobs",
}

var jobsResetCmd = &cobra.Command{
	Use:   "reset [job-id]",
	Short: "Clear retries of a failed job so the scheduler resumes it from its watermark",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID := ""
		if len(args) == 1 {
			jobID = args[0]
		}
		return getApp().ResetJob(cmd.Context(), jobID)
	},
}

func init() {
	jobsCmd.AddCommand(jobsResetCmd)
}
