package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"options-flow-scanner/internal/app"
)

var (
	showDate string
	showList bool
	showDiff bool
	showTopN int
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display stored snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showTopN < 0 {
			return fmt.Errorf("--top cannot be negative")
		}
		date, err := parseDay("date", showDate)
		if err != nil {
			return err
		}

		opts := app.ShowOptions{
			Date: date,
			List: showList,
			Diff: showDiff,
			TopN: showTopN,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().StringVar(&showDate, "date", "", "Snapshot date YYYY-MM-DD (defaults to latest)")
	showCmd.Flags().BoolVar(&showList, "list", false, "List stored snapshot dates")
	showCmd.Flags().BoolVar(&showDiff, "diff", false, "Compare with the previous snapshot")
	showCmd.Flags().IntVar(&showTopN, "top", 0, "Rows to display (defaults to analysis.top_n)")
}
