package trend

import (
	"fmt"
	"strings"
	"time"

	"options-flow-scanner/internal/fetcher"
)

// Timeframe describes how one chart resolution is fetched.
type Timeframe struct {
	Label    string
	Interval string
	Range    string
	Span     int
	// Resample, when set, rebuckets the fetched bars before the EMA runs.
	Resample time.Duration
}

// DefaultTimeframes returns the six standard resolutions. 10m has no native
// interval and reads 15m bars; 4h is built from hourly bars.
func DefaultTimeframes() []Timeframe {
	return []Timeframe{
		{Label: "5m", Interval: "5m", Range: "5d", Span: DefaultSpan},
		{Label: "10m", Interval: "15m", Range: "5d", Span: DefaultSpan},
		{Label: "1h", Interval: "1h", Range: "1mo", Span: DefaultSpan},
		{Label: "4h", Interval: "1h", Range: "3mo", Span: DefaultSpan, Resample: 4 * time.Hour},
		{Label: "1d", Interval: "1d", Range: "6mo", Span: DefaultSpan},
		{Label: "1wk", Interval: "1wk", Range: "2y", Span: DefaultSpan},
	}
}

// LookupTimeframe returns the default resolution for label.
func LookupTimeframe(label string) (Timeframe, bool) {
	label = strings.ToLower(strings.TrimSpace(label))
	for _, tf := range DefaultTimeframes() {
		if tf.Label == label {
			return tf, true
		}
	}
	return Timeframe{}, false
}

// SelectTimeframes resolves labels in the order given. No labels selects
// every default.
func SelectTimeframes(labels []string) ([]Timeframe, error) {
	if len(labels) == 0 {
		return DefaultTimeframes(), nil
	}
	out := make([]Timeframe, 0, len(labels))
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		tf, ok := LookupTimeframe(l)
		if !ok {
			return nil, fmt.Errorf("unknown timeframe %q", l)
		}
		if seen[tf.Label] {
			return nil, fmt.Errorf("timeframe %q listed twice", tf.Label)
		}
		seen[tf.Label] = true
		out = append(out, tf)
	}
	return out, nil
}

// Reasons a reading is unavailable.
const (
	ReasonNoData       = "no data"
	ReasonInsufficient = "insufficient data"
	ReasonNoPrice      = "no price"
	ReasonFetchFailed  = "fetch failed"
)

// Reading is the EMA comparison on one timeframe. Available is false when
// the timeframe could not be scored; Reason then says why and the other
// fields are zero.
type Reading struct {
	Timeframe string
	Available bool
	Reason    string
	EMA       float64
	Distance  float64
	Above     bool
	Bars      int
}

// Score compares price with the last EMA of bars. Fewer than minHistory bars
// leave the reading unavailable.
func Score(tf Timeframe, bars []fetcher.Bar, price float64, minHistory int) Reading {
	r := Reading{Timeframe: tf.Label}
	if tf.Resample > 0 {
		bars = Resample(bars, tf.Resample)
	}
	if minHistory < 1 {
		minHistory = 1
	}
	r.Bars = len(bars)
	switch {
	case len(bars) == 0:
		r.Reason = ReasonNoData
		return r
	case len(bars) < minHistory:
		r.Reason = ReasonInsufficient
		return r
	case price <= 0:
		r.Reason = ReasonNoPrice
		return r
	}

	series := EMA(closes(bars), tf.Span)
	ema := series[len(series)-1]
	if ema == 0 {
		r.Reason = ReasonNoData
		return r
	}
	r.Available = true
	r.EMA = ema
	r.Above = price > ema
	r.Distance = (price - ema) / ema * 100
	return r
}

// Status is the multi-timeframe reading of one ticker.
type Status struct {
	Ticker   string
	Price    float64
	Readings []Reading
}

// BullishCount is the number of available timeframes with price above EMA.
func (s Status) BullishCount() int {
	n := 0
	for _, r := range s.Readings {
		if r.Available && r.Above {
			n++
		}
	}
	return n
}

// AvailableCount is the number of timeframes that could be scored.
func (s Status) AvailableCount() int {
	n := 0
	for _, r := range s.Readings {
		if r.Available {
			n++
		}
	}
	return n
}

// Reading returns the reading for label.
func (s Status) Reading(label string) (Reading, bool) {
	for _, r := range s.Readings {
		if r.Timeframe == label {
			return r, true
		}
	}
	return Reading{}, false
}

// Summary renders "N/M bullish", or "no data" when nothing was scored.
func (s Status) Summary() string {
	total := s.AvailableCount()
	if total == 0 {
		return "no data"
	}
	return fmt.Sprintf("%d/%d bullish", s.BullishCount(), total)
}
