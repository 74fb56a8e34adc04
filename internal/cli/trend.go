package cli

import (
	"github.com/spf13/cobra"
)

var trendCmd = &cobra.Command{
	Use:   "trend [TICKER...]",
	Short: "Score EMA trend for tickers or the configured watchlist",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Trend(cmd.Context(), args)
	},
}
