package trend

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"options-flow-scanner/internal/fetcher"
)

// Options parameterise the scorer.
type Options struct {
	Timeframes   []Timeframe
	Workers      int
	FetchTimeout time.Duration
	MinHistory   int
}

// Observer receives one call per feed request.
type Observer interface {
	ObserveFetch(timeframe string, elapsed time.Duration, err error)
}

// Failure records a timeframe or price request that produced no usable data.
type Failure struct {
	Ticker    string
	Timeframe string
	Reason    string
}

// Result is the outcome of one batch.
type Result struct {
	// Statuses follow the watchlist order.
	Statuses []Status
	Failures []Failure
}

// priceTimeframe labels the current price request in failures and metrics.
const priceTimeframe = "price"

// Scorer fetches bars concurrently and scores each ticker.
type Scorer struct {
	feed     fetcher.PriceFeed
	opts     Options
	logger   zerolog.Logger
	observer Observer
}

// NewScorer constructs a scorer. Empty options fall back to the default
// timeframes, four workers and a 15 second fetch timeout.
func NewScorer(feed fetcher.PriceFeed, opts Options, logger zerolog.Logger) *Scorer {
	if len(opts.Timeframes) == 0 {
		opts.Timeframes = DefaultTimeframes()
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	if opts.MinHistory < 1 {
		opts.MinHistory = 1
	}
	return &Scorer{
		feed:   feed,
		opts:   opts,
		logger: logger.With().Str("component", "trend_scorer").Logger(),
	}
}

// WithObserver attaches a fetch observer.
func (s *Scorer) WithObserver(o Observer) *Scorer {
	s.observer = o
	return s
}

type fetchResult struct {
	bars []fetcher.Bar
	err  error
}

// ScoreAll scores every ticker. Fetches run on a bounded pool, each under
// its own timeout. A failed fetch marks that timeframe unavailable and is
// reported in Failures; it never aborts the batch.
func (s *Scorer) ScoreAll(ctx context.Context, watchlist []string) Result {
	tfs := s.opts.Timeframes
	series := make([][]fetchResult, len(watchlist))
	prices := make([]float64, len(watchlist))
	priceErrs := make([]error, len(watchlist))

	g := new(errgroup.Group)
	g.SetLimit(s.opts.Workers)
	for i, ticker := range watchlist {
		series[i] = make([]fetchResult, len(tfs))
		i, ticker := i, ticker
		g.Go(func() error {
			prices[i], priceErrs[i] = s.lastPrice(ctx, ticker)
			return nil
		})
		for j, tf := range tfs {
			j, tf := j, tf
			g.Go(func() error {
				bars, err := s.bars(ctx, ticker, tf)
				series[i][j] = fetchResult{bars: bars, err: err}
				return nil
			})
		}
	}
	_ = g.Wait()

	res := Result{Statuses: make([]Status, 0, len(watchlist)), Failures: make([]Failure, 0)}
	for i, ticker := range watchlist {
		price := prices[i]
		if priceErrs[i] != nil {
			res.Failures = append(res.Failures, Failure{Ticker: ticker, Timeframe: priceTimeframe, Reason: reason(priceErrs[i])})
			price = fallbackPrice(series[i])
		}

		status := Status{Ticker: ticker, Price: price, Readings: make([]Reading, 0, len(tfs))}
		for j, tf := range tfs {
			fr := series[i][j]
			if fr.err != nil {
				res.Failures = append(res.Failures, Failure{Ticker: ticker, Timeframe: tf.Label, Reason: reason(fr.err)})
				status.Readings = append(status.Readings, Reading{Timeframe: tf.Label, Reason: ReasonFetchFailed})
				continue
			}
			r := Score(tf, fr.bars, price, s.opts.MinHistory)
			// A missing price is already reported once under "price".
			if r.Reason == ReasonNoData || r.Reason == ReasonInsufficient {
				res.Failures = append(res.Failures, Failure{Ticker: ticker, Timeframe: tf.Label, Reason: r.Reason})
			}
			status.Readings = append(status.Readings, r)
		}
		s.logger.Debug().Str("ticker", ticker).Float64("price", price).Str("score", status.Summary()).Msg("ticker scored")
		res.Statuses = append(res.Statuses, status)
	}

	if len(res.Failures) > 0 {
		s.logger.Warn().Int("failures", len(res.Failures)).Int("tickers", len(watchlist)).Msg("trend fetches failed")
	}
	return res
}

func (s *Scorer) bars(ctx context.Context, ticker string, tf Timeframe) ([]fetcher.Bar, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()

	start := time.Now()
	bars, err := s.feed.Bars(fetchCtx, ticker, tf.Interval, tf.Range)
	s.observe(tf.Label, time.Since(start), err)
	return bars, err
}

func (s *Scorer) lastPrice(ctx context.Context, ticker string) (float64, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
	defer cancel()

	start := time.Now()
	price, err := s.feed.LastPrice(fetchCtx, ticker)
	if err == nil && price <= 0 {
		err = errors.New("non-positive price")
	}
	s.observe(priceTimeframe, time.Since(start), err)
	return price, err
}

func (s *Scorer) observe(timeframe string, elapsed time.Duration, err error) {
	if s.observer != nil {
		s.observer.ObserveFetch(timeframe, elapsed, err)
	}
}

// fallbackPrice is the last close of the first timeframe that returned bars.
func fallbackPrice(series []fetchResult) float64 {
	for _, fr := range series {
		if fr.err == nil && len(fr.bars) > 0 {
			return fr.bars[len(fr.bars)-1].Close
		}
	}
	return 0
}

func reason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return err.Error()
}
