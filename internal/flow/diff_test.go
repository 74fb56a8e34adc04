package flow

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiffClassifiesChanges(t *testing.T) {
	prev := []AggregateGroup{
		group("AAPL", 2, 1_000),
		group("MSFT", 3, 5_000),
		group("NVDA", 1, 700),
		group("TSLA", 4, 400),
	}
	curr := []AggregateGroup{
		group("AAPL", 3, 1_500),
		group("MSFT", 2, 4_000),
		group("TSLA", 4, 400),
		group("AMD", 1, 250),
	}

	deltas := Diff(prev, curr)
	require.Len(t, deltas, 4)

	byTicker := make(map[string]GroupDelta)
	for _, d := range deltas {
		byTicker[d.Key.Ticker] = d
	}
	assert.Equal(t, ChangeNew, byTicker["AMD"].Kind)
	assert.Equal(t, ChangeGrown, byTicker["AAPL"].Kind)
	assert.True(t, byTicker["AAPL"].DollarDelta.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, 1, byTicker["AAPL"].HitDelta)
	assert.Equal(t, ChangeShrunk, byTicker["MSFT"].Kind)
	assert.Equal(t, ChangeGone, byTicker["NVDA"].Kind)
	assert.True(t, byTicker["NVDA"].DollarDelta.Equal(decimal.NewFromInt(-700)))
	assert.NotContains(t, byTicker, "TSLA")

	assert.Equal(t, "AAPL", deltas[0].Key.Ticker)
	assert.Equal(t, "AMD", deltas[1].Key.Ticker)
}

func TestDiffOfIdenticalTablesIsEmpty(t *testing.T) {
	table := []AggregateGroup{group("AAPL", 2, 1_000), group("GLD", 25, 50_000_000)}
	assert.Empty(t, Diff(table, table))
}
