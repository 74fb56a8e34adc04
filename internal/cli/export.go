package cli

import (
	"github.com/spf13/cobra"

	"options-flow-scanner/internal/app"
)

var (
	exportDate   string
	exportOutDir string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a stored snapshot as CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := parseDay("date", exportDate)
		if err != nil {
			return err
		}

		opts := app.ExportOptions{
			Date:   date,
			OutDir: exportOutDir,
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportDate, "date", "", "Snapshot date YYYY-MM-DD (defaults to latest)")
	exportCmd.Flags().StringVar(&exportOutDir, "out", "", "Directory to write CSV files")
}
