package cli

import (
	"time"

	"github.com/spf13/cobra"

	"options-flow-scanner/internal/app"
)

var (
	analyzeInput        string
	analyzeAsOf         string
	analyzeTopN         int
	analyzeOutDir       string
	analyzeNotify       bool
	analyzeSkipTrend    bool
	analyzeSkipSnapshot bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the pipeline once over the sheet export",
	RunE: func(cmd *cobra.Command, args []string) error {
		asOf, err := parseDay("as-of", analyzeAsOf)
		if err != nil {
			return err
		}
		if !asOf.IsZero() {
			asOf = asOf.Add(12 * time.Hour)
		}

		opts := app.AnalyzeOptions{
			Input:  analyzeInput,
			AsOf:   asOf,
			TopN:   analyzeTopN,
			OutDir: analyzeOutDir,
			Notify: analyzeNotify,
			PipelineOptions: app.PipelineOptions{
				SkipTrend:    analyzeSkipTrend,
				SkipSnapshot: analyzeSkipSnapshot,
			},
		}
		return getApp().Analyze(cmd.Context(), opts)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeInput, "input", "", "Sheet export JSON (defaults to input.path)")
	analyzeCmd.Flags().StringVar(&analyzeAsOf, "as-of", "", "Run date YYYY-MM-DD (defaults to today)")
	analyzeCmd.Flags().IntVar(&analyzeTopN, "top", 0, "Rows per table (defaults to analysis.top_n)")
	analyzeCmd.Flags().StringVar(&analyzeOutDir, "out", "", "Directory to write the analysis tables as CSV")
	analyzeCmd.Flags().BoolVar(&analyzeNotify, "notify", false, "Send the digest through the configured channel")
	analyzeCmd.Flags().BoolVar(&analyzeSkipTrend, "skip-trend", false, "Skip EMA trend scoring")
	analyzeCmd.Flags().BoolVar(&analyzeSkipSnapshot, "no-snapshot", false, "Do not write the dated snapshot")
}
