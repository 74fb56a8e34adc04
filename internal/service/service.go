package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"options-flow-scanner/internal/flow"
	"options-flow-scanner/internal/sheet"
	"options-flow-scanner/internal/storage"
	"options-flow-scanner/internal/trend"
)

// Metrics receives pipeline measurements.
type Metrics interface {
	trend.Observer
	RecordDrop(reason string, n int)
	RecordStage(stage string, n int)
	RecordSnapshot(err error)
	RecordRun(elapsed time.Duration, err error)
}

// TrendScorer scores a watchlist.
type TrendScorer interface {
	ScoreAll(ctx context.Context, watchlist []string) trend.Result
}

// Options tune one pipeline.
type Options struct {
	Location            *time.Location
	LookbackDays        int
	ForwardMonths       int
	RepetitionThreshold int
	LargeOrderMin       decimal.Decimal
	Watchlist           []string
}

// Summary carries the counters of one run.
type Summary struct {
	Rows           int
	Normalized     int
	Drops          flow.DropCounts
	Filtered       int
	CoarseGroups   int
	DetailedGroups int
	Repeated       int
	LargeOrders    int
	TrendTickers   int
	TrendFailures  int
	SnapshotError  string
}

// Result is everything one run produced.
type Result struct {
	Date        time.Time
	Records     []flow.OrderRecord
	Filtered    []flow.OrderRecord
	Coarse      []flow.AggregateGroup
	Detailed    []flow.AggregateGroup
	Repeated    []flow.AggregateGroup
	LargeOrders []flow.OrderRecord
	Sentiment   map[flow.Sentiment]decimal.Decimal
	Trend       trend.Result
	Summary     Summary
}

// Pipeline runs normalize, filter, aggregate, detect and score in order and
// saves the dated snapshot.
type Pipeline struct {
	opts       Options
	normalizer *flow.Normalizer
	scorer     TrendScorer
	store      storage.SnapshotStore
	metrics    Metrics
	logger     zerolog.Logger
}

// NewPipeline constructs a pipeline. scorer, store and metrics may be nil to
// skip trend scoring, snapshots and metrics respectively.
func NewPipeline(opts Options, scorer TrendScorer, store storage.SnapshotStore, metrics Metrics, logger zerolog.Logger) *Pipeline {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Pipeline{
		opts:       opts,
		normalizer: flow.NewNormalizer(logger),
		scorer:     scorer,
		store:      store,
		metrics:    metrics,
		logger:     logger.With().Str("component", "pipeline").Logger(),
	}
}

// Run processes the sheet blocks as of now. A snapshot failure is returned
// wrapped in storage.ErrSnapshotWrite together with the complete result.
func (p *Pipeline) Run(ctx context.Context, blocks []sheet.Block, now time.Time) (Result, error) {
	start := time.Now()
	res, err := p.run(ctx, blocks, now)
	if p.metrics != nil {
		p.metrics.RecordRun(time.Since(start), err)
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, blocks []sheet.Block, now time.Time) (Result, error) {
	window := flow.Window{
		Now:           now,
		Location:      p.opts.Location,
		LookbackDays:  p.opts.LookbackDays,
		ForwardMonths: p.opts.ForwardMonths,
	}
	res := Result{Date: window.Today()}

	batches := sheet.Batches(blocks)
	for _, b := range batches {
		res.Summary.Rows += len(b.Rows)
	}

	records, drops := p.normalizer.NormalizeBatches(batches)
	res.Records = records
	res.Summary.Normalized = len(records)
	res.Summary.Drops = drops
	if drops.Total() > 0 {
		ev := p.logger.Info().Int("dropped", drops.Total())
		for reason, n := range drops {
			ev = ev.Int("drop_"+string(reason), n)
		}
		ev.Msg("rows dropped during normalization")
	}

	res.Filtered = window.Apply(records)
	res.Summary.Filtered = len(res.Filtered)

	tables := flow.Aggregate(res.Filtered)
	res.Coarse = tables.Coarse
	res.Detailed = tables.Detailed
	res.Repeated = flow.DetectRepeated(tables.Detailed, p.opts.RepetitionThreshold)
	res.LargeOrders = flow.LargeOrders(res.Filtered, p.opts.LargeOrderMin)
	res.Sentiment = flow.SentimentTotals(res.Filtered)
	res.Summary.CoarseGroups = len(res.Coarse)
	res.Summary.DetailedGroups = len(res.Detailed)
	res.Summary.Repeated = len(res.Repeated)
	res.Summary.LargeOrders = len(res.LargeOrders)

	p.logger.Info().
		Time("date", res.Date).
		Int("rows", res.Summary.Rows).
		Int("normalized", res.Summary.Normalized).
		Int("filtered", res.Summary.Filtered).
		Int("detailed_groups", res.Summary.DetailedGroups).
		Int("repeated", res.Summary.Repeated).
		Msg("flow aggregated")

	if p.scorer != nil && len(p.opts.Watchlist) > 0 {
		res.Trend = p.scorer.ScoreAll(ctx, p.opts.Watchlist)
		res.Summary.TrendTickers = len(res.Trend.Statuses)
		res.Summary.TrendFailures = len(res.Trend.Failures)
	}

	p.record(res)

	if err := ctx.Err(); err != nil {
		return res, err
	}

	if p.store != nil {
		snap := storage.Snapshot{Date: res.Date, Records: res.Records, Detailed: res.Detailed}
		err := p.store.SaveSnapshot(ctx, snap)
		if p.metrics != nil {
			p.metrics.RecordSnapshot(err)
		}
		if err != nil {
			if !errors.Is(err, storage.ErrSnapshotWrite) {
				err = fmt.Errorf("%w: %w", storage.ErrSnapshotWrite, err)
			}
			res.Summary.SnapshotError = err.Error()
			p.logger.Error().Err(err).Time("date", res.Date).Msg("snapshot not saved")
			return res, err
		}
	}
	return res, nil
}

func (p *Pipeline) record(res Result) {
	if p.metrics == nil {
		return
	}
	for reason, n := range res.Summary.Drops {
		p.metrics.RecordDrop(string(reason), n)
	}
	p.metrics.RecordStage("rows", res.Summary.Rows)
	p.metrics.RecordStage("normalized", res.Summary.Normalized)
	p.metrics.RecordStage("filtered", res.Summary.Filtered)
	p.metrics.RecordStage("coarse_groups", res.Summary.CoarseGroups)
	p.metrics.RecordStage("detailed_groups", res.Summary.DetailedGroups)
	p.metrics.RecordStage("repeated", res.Summary.Repeated)
	p.metrics.RecordStage("large_orders", res.Summary.LargeOrders)
	p.metrics.RecordStage("trend_failures", res.Summary.TrendFailures)
}
