package flow

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the block of the sheet an order came from.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OptionType distinguishes calls from puts.
type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// Sentiment is the directional read derived from the order insight text.
type Sentiment string

const (
	Bullish Sentiment = "BULLISH"
	Bearish Sentiment = "BEARISH"
	Neutral Sentiment = "NEUTRAL"
	Unknown Sentiment = "UNKNOWN"
)

// OrderRecord is one normalized options order.
type OrderRecord struct {
	Ticker       string
	Side         Side
	Type         OptionType
	Strike       decimal.Decimal
	Expiry       time.Time
	Quantity     int64
	DollarAmount decimal.Decimal
	OrderDate    time.Time
	Sentiment    Sentiment
}

// GroupKey identifies an aggregate bucket. Coarse keys only carry Ticker.
type GroupKey struct {
	Ticker string
	Expiry time.Time
	Strike string
	Type   OptionType
}

// Detailed reports whether the key addresses a ticker/expiry/strike/type bucket.
func (k GroupKey) Detailed() bool {
	return k.Strike != "" || k.Type != "" || !k.Expiry.IsZero()
}

// Less orders keys by ticker, expiry, strike value, then type.
func (k GroupKey) Less(o GroupKey) bool {
	if k.Ticker != o.Ticker {
		return k.Ticker < o.Ticker
	}
	if !k.Expiry.Equal(o.Expiry) {
		return k.Expiry.Before(o.Expiry)
	}
	if k.Strike != o.Strike {
		ks, kerr := decimal.NewFromString(k.Strike)
		ostrike, oerr := decimal.NewFromString(o.Strike)
		if kerr == nil && oerr == nil && !ks.Equal(ostrike) {
			return ks.LessThan(ostrike)
		}
		return k.Strike < o.Strike
	}
	return k.Type < o.Type
}

// AggregateGroup sums the records that share a GroupKey.
type AggregateGroup struct {
	Key           GroupKey
	TotalDollar   decimal.Decimal
	CallDollar    decimal.Decimal
	PutDollar     decimal.Decimal
	BullishDollar decimal.Decimal
	BearishDollar decimal.Decimal
	CallQty       int64
	PutQty        int64
	HitCount      int
}

// StrikeValue parses the canonical strike string of a detailed group.
func (g AggregateGroup) StrikeValue() decimal.Decimal {
	d, err := decimal.NewFromString(g.Key.Strike)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Date truncates t to its calendar date at UTC midnight.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateIn returns the calendar date of t as observed in loc.
func DateIn(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return Date(t.In(loc))
}
