package app

import (
	"context"
	"os"
	"strings"

	"options-flow-scanner/internal/metrics"
)

// Trend scores tickers, or the configured watchlist when none are given.
func (a *App) Trend(ctx context.Context, tickers []string) error {
	if len(tickers) == 0 {
		tickers = a.Config.Trend.Watchlist
	}
	symbols := make([]string, len(tickers))
	for i, t := range tickers {
		symbols[i] = strings.ToUpper(strings.TrimSpace(t))
	}

	rec := metrics.New()
	scorer, err := a.newScorer(rec)
	if err != nil {
		return err
	}

	res := scorer.ScoreAll(ctx, symbols)
	a.writeMetrics(rec)
	printTrend(os.Stdout, res)
	return ctx.Err()
}
