package flow

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Tables holds both aggregation granularities.
type Tables struct {
	// Coarse is grouped by ticker, sorted by TotalDollar descending.
	Coarse []AggregateGroup
	// Detailed is grouped by ticker/expiry/strike/type in first-seen order.
	Detailed []AggregateGroup
}

// Aggregate builds the coarse and detailed tables in one pass.
func Aggregate(records []OrderRecord) Tables {
	return Tables{
		Coarse:   AggregateCoarse(records),
		Detailed: AggregateDetailed(records),
	}
}

// AggregateCoarse groups records by ticker.
func AggregateCoarse(records []OrderRecord) []AggregateGroup {
	groups := reduce(records, func(r OrderRecord) GroupKey {
		return GroupKey{Ticker: r.Ticker}
	})
	SortByDollar(groups)
	return groups
}

// AggregateDetailed groups records by ticker, expiry, strike and type.
func AggregateDetailed(records []OrderRecord) []AggregateGroup {
	return reduce(records, DetailedKey)
}

// DetailedKey builds the exact-match detailed key for a record.
func DetailedKey(r OrderRecord) GroupKey {
	return GroupKey{
		Ticker: r.Ticker,
		Expiry: Date(r.Expiry),
		Strike: r.Strike.String(),
		Type:   r.Type,
	}
}

func reduce(records []OrderRecord, keyOf func(OrderRecord) GroupKey) []AggregateGroup {
	index := make(map[GroupKey]int)
	groups := make([]AggregateGroup, 0)
	for _, r := range records {
		key := keyOf(r)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, newGroup(key))
		}
		groups[i] = groups[i].add(r)
	}
	return groups
}

func newGroup(key GroupKey) AggregateGroup {
	return AggregateGroup{
		Key:           key,
		TotalDollar:   decimal.Zero,
		CallDollar:    decimal.Zero,
		PutDollar:     decimal.Zero,
		BullishDollar: decimal.Zero,
		BearishDollar: decimal.Zero,
	}
}

func (g AggregateGroup) add(r OrderRecord) AggregateGroup {
	g.TotalDollar = g.TotalDollar.Add(r.DollarAmount)
	switch r.Type {
	case Call:
		g.CallQty += r.Quantity
		g.CallDollar = g.CallDollar.Add(r.DollarAmount)
	case Put:
		g.PutQty += r.Quantity
		g.PutDollar = g.PutDollar.Add(r.DollarAmount)
	}
	switch r.Sentiment {
	case Bullish:
		g.BullishDollar = g.BullishDollar.Add(r.DollarAmount)
	case Bearish:
		g.BearishDollar = g.BearishDollar.Add(r.DollarAmount)
	}
	g.HitCount++
	return g
}

func (g AggregateGroup) merge(o AggregateGroup) AggregateGroup {
	g.TotalDollar = g.TotalDollar.Add(o.TotalDollar)
	g.CallDollar = g.CallDollar.Add(o.CallDollar)
	g.PutDollar = g.PutDollar.Add(o.PutDollar)
	g.BullishDollar = g.BullishDollar.Add(o.BullishDollar)
	g.BearishDollar = g.BearishDollar.Add(o.BearishDollar)
	g.CallQty += o.CallQty
	g.PutQty += o.PutQty
	g.HitCount += o.HitCount
	return g
}

// Merge sums two tables of the same granularity key by key. Keys keep the
// order in which they first appear across a then b.
func Merge(a, b []AggregateGroup) []AggregateGroup {
	index := make(map[GroupKey]int, len(a)+len(b))
	out := make([]AggregateGroup, 0, len(a)+len(b))
	for _, table := range [][]AggregateGroup{a, b} {
		for _, g := range table {
			if i, ok := index[g.Key]; ok {
				out[i] = out[i].merge(g)
				continue
			}
			index[g.Key] = len(out)
			out = append(out, g)
		}
	}
	return out
}

// SortByDollar orders groups by TotalDollar descending, then by key.
func SortByDollar(groups []AggregateGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		if c := groups[i].TotalDollar.Cmp(groups[j].TotalDollar); c != 0 {
			return c > 0
		}
		return groups[i].Key.Less(groups[j].Key)
	})
}

// SortByKey orders groups by key only.
func SortByKey(groups []AggregateGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Key.Less(groups[j].Key)
	})
}
