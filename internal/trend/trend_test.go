package trend

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-flow-scanner/internal/fetcher"
)

type fakeFeed struct {
	price    float64
	priceErr error
	// fail maps "interval/range" to the error returned for that request.
	fail   map[string]error
	closes []float64
	delay  time.Duration

	inflight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeFeed) Bars(ctx context.Context, ticker, interval, rng string) ([]fetcher.Bar, error) {
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	if err := f.fail[interval+"/"+rng]; err != nil {
		return nil, err
	}
	start := time.Date(2026, 1, 20, 14, 0, 0, 0, time.UTC)
	bars := make([]fetcher.Bar, len(f.closes))
	for i, c := range f.closes {
		bars[i] = fetcher.Bar{Time: start.Add(time.Duration(i) * time.Hour), Close: c}
	}
	return bars, nil
}

func (f *fakeFeed) LastPrice(ctx context.Context, ticker string) (float64, error) {
	return f.price, f.priceErr
}

func TestEMASeedAndRecurrence(t *testing.T) {
	got := EMA([]float64{10, 20, 30}, 3)
	require.Len(t, got, 3)
	assert.Equal(t, 10.0, got[0])
	assert.InDelta(t, 15.0, got[1], 1e-9)
	assert.InDelta(t, 22.5, got[2], 1e-9)

	assert.Nil(t, EMA(nil, 39))
}

func TestEMAConvergesToConstant(t *testing.T) {
	closes := make([]float64, 400)
	closes[0] = 50
	for i := 1; i < len(closes); i++ {
		closes[i] = 100
	}
	series := EMA(closes, DefaultSpan)
	assert.InDelta(t, 100.0, series[len(series)-1], 1e-6)
	for i := 1; i < len(series); i++ {
		assert.GreaterOrEqual(t, series[i], series[i-1])
	}
}

func TestResampleKeepsLastClose(t *testing.T) {
	start := time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC)
	var bars []fetcher.Bar
	for i := 0; i < 9; i++ {
		bars = append(bars, fetcher.Bar{Time: start.Add(time.Duration(i) * time.Hour), Close: float64(i)})
	}

	got := Resample(bars, 4*time.Hour)
	require.Len(t, got, 3)
	assert.Equal(t, 3.0, got[0].Close)
	assert.Equal(t, 7.0, got[1].Close)
	assert.Equal(t, 8.0, got[2].Close)
	assert.Equal(t, start.Add(4*time.Hour), got[1].Time)
}

func TestScoreDistance(t *testing.T) {
	tf := Timeframe{Label: "1d", Span: 1}
	bars := []fetcher.Bar{{Close: 100}}

	r := Score(tf, bars, 110, 1)
	require.True(t, r.Available)
	assert.True(t, r.Above)
	assert.InDelta(t, 10.0, r.Distance, 1e-9)

	r = Score(tf, bars, 90, 1)
	assert.False(t, r.Above)
	assert.InDelta(t, -10.0, r.Distance, 1e-9)

	short := Score(tf, bars, 110, 39)
	assert.False(t, short.Available, "short history")
	assert.Equal(t, ReasonInsufficient, short.Reason)
	assert.Equal(t, ReasonNoData, Score(tf, nil, 110, 1).Reason)
	assert.Equal(t, ReasonNoPrice, Score(tf, bars, 0, 1).Reason)
}

func TestScoreAllExcludesFailedTimeframe(t *testing.T) {
	feed := &fakeFeed{
		price:  200,
		closes: []float64{100, 101, 102},
		fail:   map[string]error{"5m/5d": errors.New("feed down")},
	}
	res := NewScorer(feed, Options{}, zerolog.Nop()).ScoreAll(context.Background(), []string{"NVDA"})

	require.Len(t, res.Statuses, 1)
	st := res.Statuses[0]
	assert.Equal(t, 5, st.AvailableCount())
	assert.Equal(t, 5, st.BullishCount())
	assert.Equal(t, "5/5 bullish", st.Summary())

	five, ok := st.Reading("5m")
	require.True(t, ok)
	assert.False(t, five.Available)
	assert.False(t, five.Above)
	assert.Equal(t, ReasonFetchFailed, five.Reason)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, Failure{Ticker: "NVDA", Timeframe: "5m", Reason: "feed down"}, res.Failures[0])
}

func TestScoreAllNoData(t *testing.T) {
	down := errors.New("down")
	feed := &fakeFeed{priceErr: down, fail: map[string]error{}}
	for _, tf := range DefaultTimeframes() {
		feed.fail[tf.Interval+"/"+tf.Range] = down
	}

	res := NewScorer(feed, Options{}, zerolog.Nop()).ScoreAll(context.Background(), []string{"SPX", "NDX"})

	require.Len(t, res.Statuses, 2)
	assert.Equal(t, "SPX", res.Statuses[0].Ticker)
	assert.Equal(t, "NDX", res.Statuses[1].Ticker)
	for _, st := range res.Statuses {
		assert.Equal(t, "no data", st.Summary())
		assert.Len(t, st.Readings, 6)
	}
	assert.Len(t, res.Failures, 14)
}

func TestScoreAllFallsBackToLastClose(t *testing.T) {
	feed := &fakeFeed{priceErr: errors.New("quote failed"), closes: []float64{10, 10, 12}}
	res := NewScorer(feed, Options{}, zerolog.Nop()).ScoreAll(context.Background(), []string{"GLD"})

	require.Len(t, res.Statuses, 1)
	assert.Equal(t, 12.0, res.Statuses[0].Price)
	assert.Equal(t, 6, res.Statuses[0].AvailableCount())
	assert.Equal(t, priceTimeframe, res.Failures[0].Timeframe)
}

func TestScoreAllTimeoutIsIsolated(t *testing.T) {
	feed := &fakeFeed{price: 5, closes: []float64{1, 2, 3}, delay: 200 * time.Millisecond}
	opts := Options{FetchTimeout: 20 * time.Millisecond, Workers: 8}

	start := time.Now()
	res := NewScorer(feed, opts, zerolog.Nop()).ScoreAll(context.Background(), []string{"AAPL", "MSFT"})

	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, res.Statuses, 2)
	assert.Len(t, res.Failures, 12)
	for _, f := range res.Failures {
		assert.Equal(t, "timeout", f.Reason)
	}
}

func TestScoreAllBoundsConcurrency(t *testing.T) {
	feed := &fakeFeed{price: 5, closes: []float64{1, 2, 3}, delay: 5 * time.Millisecond}
	watchlist := []string{"A", "B", "C", "D", "E", "F"}

	NewScorer(feed, Options{Workers: 2}, zerolog.Nop()).ScoreAll(context.Background(), watchlist)
	assert.LessOrEqual(t, feed.peak.Load(), int32(2))
}

type recordingObserver struct {
	mu    sync.Mutex
	calls map[string]int
	errs  int
}

func (o *recordingObserver) ObserveFetch(timeframe string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = make(map[string]int)
	}
	o.calls[timeframe]++
	if err != nil {
		o.errs++
	}
}

func TestScoreAllReportsFetches(t *testing.T) {
	feed := &fakeFeed{price: 5, closes: []float64{1}, fail: map[string]error{"1wk/2y": errors.New("x")}}
	obs := &recordingObserver{}

	NewScorer(feed, Options{}, zerolog.Nop()).WithObserver(obs).ScoreAll(context.Background(), []string{"QQQ"})

	assert.Equal(t, 1, obs.calls["price"])
	assert.Equal(t, 1, obs.calls["4h"])
	assert.Equal(t, 1, obs.errs)
}

func TestSelectTimeframesKeepsGivenOrder(t *testing.T) {
	tfs, err := SelectTimeframes([]string{"1D", "5m"})
	require.NoError(t, err)
	require.Len(t, tfs, 2)
	assert.Equal(t, "1d", tfs[0].Label)
	assert.Equal(t, "5m", tfs[1].Label)

	_, err = SelectTimeframes([]string{"3h"})
	assert.Error(t, err)
	_, err = SelectTimeframes([]string{"1h", "1H"})
	assert.Error(t, err)

	all, err := SelectTimeframes(nil)
	require.NoError(t, err)
	assert.Len(t, all, 6)
	assert.Equal(t, 4*time.Hour, all[3].Resample)
}

func TestScoreAllReadingsFollowTimeframeOrder(t *testing.T) {
	tfs, err := SelectTimeframes([]string{"1wk", "1h", "5m"})
	require.NoError(t, err)
	feed := &fakeFeed{price: 5, closes: []float64{1, 2, 3}}

	res := NewScorer(feed, Options{Timeframes: tfs}, zerolog.Nop()).ScoreAll(context.Background(), []string{"AMD"})

	require.Len(t, res.Statuses, 1)
	var labels []string
	for _, r := range res.Statuses[0].Readings {
		labels = append(labels, r.Timeframe)
	}
	assert.Equal(t, []string{"1wk", "1h", "5m"}, labels)
}

func TestScoreAllReportsMissingBars(t *testing.T) {
	tfs, err := SelectTimeframes([]string{"1d"})
	require.NoError(t, err)

	empty := &fakeFeed{price: 5}
	res := NewScorer(empty, Options{Timeframes: tfs}, zerolog.Nop()).ScoreAll(context.Background(), []string{"SPX"})
	require.Len(t, res.Failures, 1)
	assert.Equal(t, Failure{Ticker: "SPX", Timeframe: "1d", Reason: ReasonNoData}, res.Failures[0])
	assert.Equal(t, ReasonNoData, res.Statuses[0].Readings[0].Reason)

	short := &fakeFeed{price: 5, closes: []float64{1, 2}}
	res = NewScorer(short, Options{Timeframes: tfs, MinHistory: 39}, zerolog.Nop()).ScoreAll(context.Background(), []string{"NDX"})
	require.Len(t, res.Failures, 1)
	assert.Equal(t, Failure{Ticker: "NDX", Timeframe: "1d", Reason: ReasonInsufficient}, res.Failures[0])
	assert.Equal(t, "no data", res.Statuses[0].Summary())
}
