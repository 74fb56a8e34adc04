package flow

import (
	"sort"

	"github.com/shopspring/decimal"
)

// ChangeKind classifies a detailed group between two snapshots.
type ChangeKind string

const (
	ChangeNew    ChangeKind = "new"
	ChangeGone   ChangeKind = "gone"
	ChangeGrown  ChangeKind = "grown"
	ChangeShrunk ChangeKind = "shrunk"
)

// GroupDelta is the change of one key between a previous and current table.
type GroupDelta struct {
	Key         GroupKey
	Kind        ChangeKind
	DollarDelta decimal.Decimal
	HitDelta    int
	Current     AggregateGroup
}

// Diff compares two detailed tables. Unchanged groups are omitted. The
// result is ordered by key.
func Diff(prev, curr []AggregateGroup) []GroupDelta {
	before := make(map[GroupKey]AggregateGroup, len(prev))
	for _, g := range prev {
		before[g.Key] = g
	}
	seen := make(map[GroupKey]bool, len(curr))

	deltas := make([]GroupDelta, 0)
	for _, g := range curr {
		seen[g.Key] = true
		old, ok := before[g.Key]
		if !ok {
			deltas = append(deltas, GroupDelta{Key: g.Key, Kind: ChangeNew, DollarDelta: g.TotalDollar, HitDelta: g.HitCount, Current: g})
			continue
		}
		dollar := g.TotalDollar.Sub(old.TotalDollar)
		hits := g.HitCount - old.HitCount
		switch {
		case dollar.IsPositive() || (dollar.IsZero() && hits > 0):
			deltas = append(deltas, GroupDelta{Key: g.Key, Kind: ChangeGrown, DollarDelta: dollar, HitDelta: hits, Current: g})
		case dollar.IsNegative() || hits < 0:
			deltas = append(deltas, GroupDelta{Key: g.Key, Kind: ChangeShrunk, DollarDelta: dollar, HitDelta: hits, Current: g})
		}
	}
	for _, g := range prev {
		if seen[g.Key] {
			continue
		}
		deltas = append(deltas, GroupDelta{Key: g.Key, Kind: ChangeGone, DollarDelta: g.TotalDollar.Neg(), HitDelta: -g.HitCount})
	}

	sort.SliceStable(deltas, func(i, j int) bool {
		return deltas[i].Key.Less(deltas[j].Key)
	})
	return deltas
}
