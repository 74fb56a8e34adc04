package app

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-flow-scanner/internal/config"
	"options-flow-scanner/internal/flow"
	"options-flow-scanner/internal/service"
	"options-flow-scanner/internal/storage"
)

const sheetJSON = `{
  "buying": [
    ["Today's Date", "Ticker", "xMonth", "xDate", "xYear", "Strike", "Calls Qty", "Calls $", "Order Insights"],
    ["1/20/2026", "GLD", "2", "20", "26", 380, 50, "$2,000,000", "Bullish call"],
    ["1/21/2026", "GLD", "2", "20", "26", 380, 40, "$3,000,000", "Bullish call"],
    ["1/22/2026", "NVDA", "3", "20", "26", 200, 10, "$6,500,000", "Bullish call"]
  ],
  "selling": []
}`

func testApp(t *testing.T) *App {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "sheet.json", []byte(sheetJSON), 0o644))

	cfg := &config.Config{
		App:      config.AppConfig{Timezone: "UTC"},
		Input:    config.InputConfig{Path: "sheet.json"},
		Analysis: config.AnalysisConfig{DaysBack: 15, NearTermMonths: 2, RepetitionThreshold: 2, LargeOrderMin: 5_000_000, TopN: 10},
		Snapshot: config.SnapshotConfig{Enabled: true, Dir: "snapshots"},
		Alerting: config.AlertingConfig{TopN: 5},
	}
	return &App{Config: cfg, Logger: zerolog.Nop(), Fs: fs}
}

func TestAnalyzeWritesSnapshotAndTables(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()

	err := a.Analyze(ctx, AnalyzeOptions{
		AsOf:   time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
		OutDir: "out",
	})
	require.NoError(t, err)

	dates, err := a.fileStore().ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, dates, 1)
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), dates[0])

	for _, name := range []string{"coarse", "detailed", "repeated", "large_orders"} {
		ok, err := afero.Exists(a.Fs, "out/"+name+"_2026-02-01.csv")
		require.NoError(t, err)
		assert.True(t, ok, name)
	}

	repeated, err := afero.ReadFile(a.Fs, "out/repeated_2026-02-01.csv")
	require.NoError(t, err)
	assert.Contains(t, string(repeated), "GLD,2026-02-20,380,CALL,2,5000000")
	assert.NotContains(t, string(repeated), "NVDA")
}

func TestBackfillBuildsOneSnapshotPerDay(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()

	err := a.Backfill(ctx, BackfillOptions{
		From: time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 1, 22, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	store := a.fileStore()
	dates, err := store.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, dates, 3)

	first, err := store.LoadSnapshot(ctx, dates[0])
	require.NoError(t, err)
	assert.Len(t, first.Records, 3, "snapshots keep the whole normalized sheet")
	require.Len(t, first.Detailed, 1, "only orders placed by 2026-01-20 are aggregated that day")
	assert.Equal(t, 1, first.Detailed[0].HitCount)

	last, err := store.LoadSnapshot(ctx, dates[2])
	require.NoError(t, err)
	assert.Len(t, last.Records, 3)
	assert.Len(t, last.Detailed, 2)
}

func TestBackfillDryRunWritesNothing(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()

	err := a.Backfill(ctx, BackfillOptions{
		From:   time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
		To:     time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC),
		DryRun: true,
	})
	require.NoError(t, err)

	dates, err := a.fileStore().ListSnapshots(ctx)
	require.NoError(t, err)
	assert.Empty(t, dates)

	assert.Error(t, a.Backfill(ctx, BackfillOptions{
		From: time.Date(2026, 1, 21, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
	}))
}

func TestExportLatestSnapshot(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()

	require.ErrorIs(t, a.Export(ctx, ExportOptions{OutDir: "export"}), storage.ErrSnapshotNotFound)

	require.NoError(t, a.Analyze(ctx, AnalyzeOptions{AsOf: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)}))
	require.NoError(t, a.Export(ctx, ExportOptions{OutDir: "export"}))

	orders, err := afero.ReadFile(a.Fs, "export/orders_2026-02-01.csv")
	require.NoError(t, err)
	assert.Contains(t, string(orders), "order_date,side,ticker")
	assert.Contains(t, string(orders), "NVDA")

	ok, err := afero.Exists(a.Fs, "export/flow_2026-02-01.csv")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSimulateDigestUsesSnapshotWindow(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()
	require.NoError(t, a.Analyze(ctx, AnalyzeOptions{AsOf: time.Date(2026, 1, 20, 12, 0, 0, 0, time.UTC)}))

	digest, err := a.snapshotDigest(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, digest.LargeOrders, "the 2026-01-22 NVDA order lies after the snapshot date")
	assert.True(t, digest.Sentiment[flow.Bullish].Equal(decimal.NewFromInt(2_000_000)))
}

func TestTrendKeepsConfiguredWatchlist(t *testing.T) {
	a := testApp(t)
	a.Config.Trend.Watchlist = []string{" gld", "spy"}
	a.Config.Trend.Workers = 1

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = a.Trend(ctx, nil)
	assert.Equal(t, []string{" gld", "spy"}, a.Config.Trend.Watchlist)
}

func TestPrintResult(t *testing.T) {
	a := testApp(t)
	blocks, err := a.loadSheet("")
	require.NoError(t, err)

	p, err := a.newPipeline(nil, nil, PipelineOptions{SkipTrend: true, SkipSnapshot: true})
	require.NoError(t, err)
	res, err := p.Run(context.Background(), blocks, time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	var buf bytes.Buffer
	printResult(&buf, res, 10)
	out := buf.String()
	assert.Contains(t, out, "Options flow 2026-02-01")
	assert.Contains(t, out, "Repeated flows (1)")
	assert.Contains(t, out, "$5,000,000")
	assert.Contains(t, out, "Large orders (1)")
	assert.Contains(t, out, "$6,500,000")
	assert.NotContains(t, out, "EMA trend")

	var empty bytes.Buffer
	printResult(&empty, service.Result{Date: res.Date}, 10)
	assert.Contains(t, empty.String(), "none")
}

func TestFormatDollars(t *testing.T) {
	assert.Equal(t, "$1,234,568", formatDollars(decimal.RequireFromString("1234567.8")))
	assert.Equal(t, "-$2,500", formatDollars(decimal.RequireFromString("-2500")))
}
