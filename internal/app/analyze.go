package app

import (
	"context"
	"errors"
	"os"
	"time"

	"options-flow-scanner/internal/metrics"
	"options-flow-scanner/internal/storage"
)

// Analyze runs the pipeline once over the sheet export and prints the
// tables. A failed snapshot write is reported after the output.
func (a *App) Analyze(ctx context.Context, opts AnalyzeOptions) error {
	blocks, err := a.loadSheet(opts.Input)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	rec := metrics.New()
	pipeline, err := a.newPipeline(store, rec, opts.PipelineOptions)
	if err != nil {
		return err
	}

	now := opts.AsOf
	if now.IsZero() {
		now = time.Now()
	}
	res, runErr := pipeline.Run(ctx, blocks, now)
	a.writeMetrics(rec)
	if runErr != nil && !errors.Is(runErr, storage.ErrSnapshotWrite) {
		return runErr
	}

	printResult(os.Stdout, res, a.Config.ResolveTopN(opts.TopN))

	if opts.OutDir != "" {
		if err := writeTables(a.Fs, opts.OutDir, res); err != nil {
			return err
		}
		a.Logger.Info().Str("dir", opts.OutDir).Msg("analysis tables written")
	}

	if opts.Notify {
		notifier := a.newNotifier()
		if notifier == nil {
			return errors.New("no digest channel configured")
		}
		if err := notifier.Notify(ctx, res.Digest(a.Config.Alerting.TopN)); err != nil {
			return err
		}
	}
	return runErr
}
