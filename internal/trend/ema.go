// Package trend scores a watchlist against exponential moving averages on
// several chart timeframes.
package trend

import (
	"time"

	"options-flow-scanner/internal/fetcher"
)

// DefaultSpan is the EMA period used by every default timeframe.
const DefaultSpan = 39

// EMA returns the exponential moving average series of closes with
// alpha = 2/(span+1), seeded with the first close.
func EMA(closes []float64, span int) []float64 {
	if len(closes) == 0 {
		return nil
	}
	if span < 1 {
		span = 1
	}
	alpha := 2 / (float64(span) + 1)

	out := make([]float64, len(closes))
	out[0] = closes[0]
	for i := 1; i < len(closes); i++ {
		out[i] = closes[i]*alpha + out[i-1]*(1-alpha)
	}
	return out
}

// Resample buckets bars by window, keeping the last close of each bucket.
// Input must be time ordered.
func Resample(bars []fetcher.Bar, window time.Duration) []fetcher.Bar {
	if window <= 0 || len(bars) == 0 {
		return bars
	}
	out := make([]fetcher.Bar, 0, len(bars))
	for _, b := range bars {
		start := b.Time.Truncate(window)
		if n := len(out); n > 0 && out[n-1].Time.Equal(start) {
			out[n-1].Close = b.Close
			continue
		}
		out = append(out, fetcher.Bar{Time: start, Close: b.Close})
	}
	return out
}

func closes(bars []fetcher.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
