package flow

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buyingManifest() Manifest {
	return Manifest{
		Side: SideBuy,
		Columns: map[Field]string{
			FieldTicker:     "Ticker",
			FieldOrderDate:  "Order Date",
			FieldExpMonth:   "xMonth",
			FieldExpDay:     "xDate",
			FieldExpYear:    "xYear",
			FieldDTE:        "DTE",
			FieldStrike:     "Strike",
			FieldCallQty:    "Calls Qty",
			FieldPutQty:     "Puts Qty",
			FieldCallDollar: "Calls $",
			FieldPutDollar:  "Puts $",
			FieldTradePrice: "Trade Price",
			FieldInsights:   "Order Insights",
		},
	}
}

func gldRow() RawRow {
	return RawRow{
		"Ticker":         "gld",
		"Order Date":     "1/20/2026",
		"xMonth":         "2",
		"xDate":          "20",
		"xYear":          "26",
		"Strike":         "380",
		"Calls Qty":      "50",
		"Calls $":        "$2,000,000",
		"Order Insights": "Bullish call buyer",
	}
}

func TestNormalizeResolvesRecord(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())

	rec, err := n.Normalize(gldRow(), buyingManifest())
	require.NoError(t, err)

	assert.Equal(t, "GLD", rec.Ticker)
	assert.Equal(t, SideBuy, rec.Side)
	assert.Equal(t, Call, rec.Type)
	assert.True(t, rec.Strike.Equal(decimal.NewFromInt(380)))
	assert.Equal(t, day(2026, 2, 20), rec.Expiry)
	assert.Equal(t, day(2026, 1, 20), rec.OrderDate)
	assert.Equal(t, int64(50), rec.Quantity)
	assert.True(t, rec.DollarAmount.Equal(decimal.NewFromInt(2_000_000)))
	assert.Equal(t, Bullish, rec.Sentiment)
}

func TestNormalizeIsDeterministic(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())
	first, err := n.Normalize(gldRow(), buyingManifest())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := n.Normalize(gldRow(), buyingManifest())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestNormalizeDropReasons(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())
	cases := map[DropReason]func(RawRow){
		DropTicker:    func(r RawRow) { r["Ticker"] = "  " },
		DropOrderDate: func(r RawRow) { r["Order Date"] = "yesterday" },
		DropExpiry:    func(r RawRow) { delete(r, "xYear") },
		DropStrike:    func(r RawRow) { r["Strike"] = "" },
		DropOptionType: func(r RawRow) {
			delete(r, "Calls Qty")
			delete(r, "Calls $")
		},
	}
	for reason, mutate := range cases {
		row := gldRow()
		mutate(row)
		_, err := n.Normalize(row, buyingManifest())
		require.Error(t, err, reason)
		assert.True(t, errors.Is(err, ErrMalformedRecord), reason)

		var mre *MalformedRecordError
		require.True(t, errors.As(err, &mre))
		assert.Equal(t, reason, mre.Reason)
	}
}

func TestNormalizeDefaultsMissingAmounts(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())
	row := gldRow()
	row["Calls Qty"] = ""
	row["Calls $"] = "n/a"

	rec, err := n.Normalize(row, buyingManifest())
	require.NoError(t, err)
	assert.Equal(t, Call, rec.Type)
	assert.Equal(t, int64(0), rec.Quantity)
	assert.True(t, rec.DollarAmount.IsZero())
}

func TestNormalizePutAndSuffixes(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())
	m := buyingManifest()
	m.Side = SideSell
	row := RawRow{
		"Ticker":         "$spy",
		"Order Date":     "2026-01-21",
		"xMonth":         "03",
		"xDate":          "20",
		"xYear":          "2026",
		"Strike":         "640.5",
		"Puts Qty":       "1.2K",
		"Puts $":         "$3.5M",
		"Order Insights": "bullish put seller",
	}

	rec, err := n.Normalize(row, m)
	require.NoError(t, err)
	assert.Equal(t, "SPY", rec.Ticker)
	assert.Equal(t, Put, rec.Type)
	assert.Equal(t, int64(1200), rec.Quantity)
	assert.True(t, rec.DollarAmount.Equal(decimal.NewFromInt(3_500_000)))
	assert.Equal(t, "640.5", rec.Strike.String())
	assert.Equal(t, Bullish, rec.Sentiment)
}

func TestNormalizeDTEAndTradePrice(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())
	row := RawRow{
		"Ticker":      "NVDA",
		"Order Date":  "01/20/2026",
		"DTE":         "4",
		"Strike":      "200",
		"Calls Qty":   "10",
		"Trade Price": "2.50",
	}

	rec, err := n.Normalize(row, buyingManifest())
	require.NoError(t, err)
	assert.Equal(t, day(2026, 1, 24), rec.Expiry)
	assert.True(t, rec.DollarAmount.Equal(decimal.NewFromInt(2500)), rec.DollarAmount.String())
	assert.Equal(t, Unknown, rec.Sentiment)
}

func TestNormalizeExplicitTypeAndCombinedExpiry(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())
	m := Manifest{Side: SideBuy, Columns: map[Field]string{
		FieldTicker:     "Symbol",
		FieldOrderDate:  "Date",
		FieldExpiry:     "Expiration",
		FieldStrike:     "Strike",
		FieldType:       "C/P",
		FieldCallQty:    "Qty",
		FieldCallDollar: "Premium",
	}}
	row := RawRow{"Symbol": "aapl", "Date": "1/20/26", "Expiration": "2026-02-20", "Strike": "250", "C/P": "p", "Qty": "5"}

	rec, err := n.Normalize(row, m)
	require.NoError(t, err)
	assert.Equal(t, Put, rec.Type)
	assert.Equal(t, day(2026, 2, 20), rec.Expiry)
}

func TestNormalizeBatchesCountsDrops(t *testing.T) {
	n := NewNormalizer(zerolog.Nop())
	empty := gldRow()
	empty["Ticker"] = ""
	badDate := gldRow()
	badDate["Order Date"] = "?"

	records, drops := n.NormalizeBatches([]Batch{
		{Manifest: buyingManifest(), Rows: []RawRow{gldRow(), empty, badDate, gldRow()}},
	})

	assert.Len(t, records, 2)
	assert.Equal(t, 1, drops[DropTicker])
	assert.Equal(t, 1, drops[DropOrderDate])
	assert.Equal(t, 2, drops.Total())
}

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"$1,234,567": "1234567",
		"1.2M":       "1200000",
		"500k":       "500000",
		"$2B":        "2000000000",
		" 42 ":       "42",
	}
	for in, want := range cases {
		got, ok := ParseAmount(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got.String(), in)
	}
	for _, in := range []string{"", "$", "abc", "M"} {
		_, ok := ParseAmount(in)
		assert.False(t, ok, in)
	}
}

func TestClassifySentiment(t *testing.T) {
	assert.Equal(t, Bullish, ClassifySentiment("Bullish Call", SideBuy))
	assert.Equal(t, Bearish, ClassifySentiment("bearish put", SideBuy))
	assert.Equal(t, Bearish, ClassifySentiment("Bearish call writer", SideSell))
	assert.Equal(t, Bullish, ClassifySentiment("bullish put sale", SideSell))
	assert.Equal(t, Neutral, ClassifySentiment("call spread", SideBuy))
	assert.Equal(t, Unknown, ClassifySentiment("", SideSell))
}
