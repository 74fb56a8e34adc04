package cli

import (
	"github.com/spf13/cobra"
)

var (
	simulateDate string
	simulateSend bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-digest",
	Short: "Render the digest of a stored snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := parseDay("date", simulateDate)
		if err != nil {
			return err
		}
		return getApp().SimulateDigest(cmd.Context(), date, simulateSend)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateDate, "date", "", "Snapshot date YYYY-MM-DD (defaults to latest)")
	simulateCmd.Flags().BoolVar(&simulateSend, "send", false, "Deliver through the configured channel instead of printing")
}
