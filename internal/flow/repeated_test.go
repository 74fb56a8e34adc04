package flow

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func group(ticker string, hits int, dollar int64) AggregateGroup {
	return AggregateGroup{
		Key:         GroupKey{Ticker: ticker, Expiry: day(2026, 2, 20), Strike: "100", Type: Call},
		HitCount:    hits,
		TotalDollar: decimal.NewFromInt(dollar),
	}
}

func TestDetectRepeatedRanking(t *testing.T) {
	detailed := []AggregateGroup{
		group("AMD", 2, 500),
		group("GLD", 25, 50_000_000),
		group("SLV", 1, 90_000_000),
		group("MU", 3, 100),
		group("META", 3, 900),
		group("AAPL", 2, 500),
	}

	got := DetectRepeated(detailed, 2)

	tickers := make([]string, 0, len(got))
	for _, g := range got {
		tickers = append(tickers, g.Key.Ticker)
	}
	assert.Equal(t, []string{"GLD", "META", "MU", "AAPL", "AMD"}, tickers)
}

func TestDetectRepeatedPartitionsInput(t *testing.T) {
	detailed := []AggregateGroup{group("A", 1, 1), group("B", 2, 2), group("C", 5, 3), group("D", 1, 4)}

	for _, threshold := range []int{1, 2, 3, 6} {
		got := DetectRepeated(detailed, threshold)
		kept := make(map[GroupKey]bool)
		for _, g := range got {
			assert.GreaterOrEqual(t, g.HitCount, threshold)
			kept[g.Key] = true
		}
		for _, g := range detailed {
			if !kept[g.Key] {
				assert.Less(t, g.HitCount, threshold)
			}
		}
	}
}

func TestDetectRepeatedDefaults(t *testing.T) {
	got := DetectRepeated(nil, 2)
	require.NotNil(t, got)
	assert.Empty(t, got)

	detailed := []AggregateGroup{group("A", 1, 1), group("B", 2, 2)}
	assert.Len(t, DetectRepeated(detailed, 0), 1, "non-positive threshold falls back to 2")
}

func TestLargeOrders(t *testing.T) {
	records := []OrderRecord{
		{Ticker: "A", DollarAmount: decimal.NewFromInt(4_999_999)},
		{Ticker: "B", DollarAmount: decimal.NewFromInt(5_000_000)},
		{Ticker: "C", DollarAmount: decimal.NewFromInt(12_000_000)},
	}
	got := LargeOrders(records, decimal.NewFromInt(5_000_000))
	require.Len(t, got, 2)
	assert.Equal(t, "C", got[0].Ticker)
	assert.Equal(t, "B", got[1].Ticker)
}

func TestSentimentTotals(t *testing.T) {
	records := []OrderRecord{
		{Sentiment: Bullish, DollarAmount: decimal.NewFromInt(10)},
		{Sentiment: Bearish, DollarAmount: decimal.NewFromInt(4)},
		{Sentiment: Bullish, DollarAmount: decimal.NewFromInt(5)},
		{DollarAmount: decimal.NewFromInt(1)},
	}
	totals := SentimentTotals(records)
	assert.True(t, totals[Bullish].Equal(decimal.NewFromInt(15)))
	assert.True(t, totals[Bearish].Equal(decimal.NewFromInt(4)))
	assert.True(t, totals[Unknown].Equal(decimal.NewFromInt(1)))
}
