package cli

import (
	"github.com/spf13/cobra"
)

var simulateMessage string

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a test alert for an exhausted aggregation job",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateAlert(cmd.Context(), simulateMessage)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateMessage, "message", "simulated failure", "Error text carried by the alert")
}
