package flow

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DefaultRepetitionThreshold is the minimum hit count of a repeated flow.
const DefaultRepetitionThreshold = 2

// DetectRepeated keeps detailed groups hit at least threshold times, ranked
// by hit count then dollar flow. Thresholds below one fall back to the default.
func DetectRepeated(detailed []AggregateGroup, threshold int) []AggregateGroup {
	if threshold < 1 {
		threshold = DefaultRepetitionThreshold
	}
	out := make([]AggregateGroup, 0)
	for _, g := range detailed {
		if g.HitCount >= threshold {
			out = append(out, g)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].HitCount != out[j].HitCount {
			return out[i].HitCount > out[j].HitCount
		}
		if c := out[i].TotalDollar.Cmp(out[j].TotalDollar); c != 0 {
			return c > 0
		}
		return out[i].Key.Less(out[j].Key)
	})
	return out
}

// LargeOrders returns records whose dollar amount is at least floor, largest first.
func LargeOrders(records []OrderRecord, floor decimal.Decimal) []OrderRecord {
	out := make([]OrderRecord, 0)
	for _, r := range records {
		if r.DollarAmount.GreaterThanOrEqual(floor) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DollarAmount.GreaterThan(out[j].DollarAmount)
	})
	return out
}

// SentimentTotals sums dollar flow per sentiment.
func SentimentTotals(records []OrderRecord) map[Sentiment]decimal.Decimal {
	totals := make(map[Sentiment]decimal.Decimal)
	for _, r := range records {
		s := r.Sentiment
		if s == "" {
			s = Unknown
		}
		totals[s] = totals[s].Add(r.DollarAmount)
	}
	return totals
}
