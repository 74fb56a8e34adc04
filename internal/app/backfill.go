package app

import (
	"context"
	"errors"
	"time"

	"options-flow-scanner/internal/flow"
)

// Backfill rebuilds one snapshot per calendar day in [From, To] from the
// sheet export, as if the pipeline had run on each of those days. Trend
// scoring is skipped because the feed only serves current prices.
func (a *App) Backfill(ctx context.Context, opts BackfillOptions) error {
	start := flow.Date(opts.From)
	end := flow.Date(opts.To)
	if end.Before(start) {
		return errors.New("empty backfill range, check --from/--to")
	}

	blocks, err := a.loadSheet(opts.Input)
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if opts.DryRun {
		a.Logger.Warn().Msg("backfill dry-run: snapshots will not be written")
	}
	pipeline, err := a.newPipeline(store, nil, PipelineOptions{SkipTrend: true, SkipSnapshot: opts.DryRun})
	if err != nil {
		return err
	}

	loc, err := a.Config.Location()
	if err != nil {
		return err
	}

	processed := 0
	failed := 0
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		at := time.Date(day.Year(), day.Month(), day.Day(), 12, 0, 0, 0, loc)
		res, err := pipeline.Run(ctx, blocks, at)
		if err != nil {
			failed++
			a.Logger.Error().Err(err).Time("date", day).Msg("backfill failed")
			continue
		}
		processed++
		a.Logger.Info().Time("date", res.Date).
			Int("filtered", res.Summary.Filtered).
			Int("repeated", res.Summary.Repeated).
			Msg("day backfilled")
	}

	a.Logger.Info().Int("processed", processed).Int("failed", failed).Msg("backfill finished")
	if failed > 0 {
		return errors.New("some days failed to backfill, check the logs")
	}
	return nil
}
