package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"options-flow-scanner/internal/app"
)

var (
	backfillInput  string
	backfillFrom   string
	backfillTo     string
	backfillDryRun bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Rebuild daily snapshots from the sheet export",
	RunE: func(cmd *cobra.Command, args []string) error {
		if backfillFrom == "" || backfillTo == "" {
			return fmt.Errorf("--from and --to must be provided")
		}

		from, err := parseDay("from", backfillFrom)
		if err != nil {
			return err
		}

		to, err := parseDay("to", backfillTo)
		if err != nil {
			return err
		}

		if to.Before(from) {
			return fmt.Errorf("--from must not be after --to")
		}

		opts := app.BackfillOptions{
			Input:  backfillInput,
			From:   from,
			To:     to,
			DryRun: backfillDryRun,
		}

		return getApp().Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillInput, "input", "", "Sheet export JSON (defaults to input.path)")
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "First day YYYY-MM-DD (inclusive)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "Last day YYYY-MM-DD (inclusive)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "Run without writing snapshots")
}
