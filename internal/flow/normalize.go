package flow

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Field is a logical column of an order row.
type Field string

const (
	FieldTicker     Field = "ticker"
	FieldOrderDate  Field = "order_date"
	FieldExpiry     Field = "expiry"
	FieldExpMonth   Field = "exp_month"
	FieldExpDay     Field = "exp_day"
	FieldExpYear    Field = "exp_year"
	FieldDTE        Field = "dte"
	FieldStrike     Field = "strike"
	FieldType       Field = "option_type"
	FieldCallQty    Field = "call_qty"
	FieldPutQty     Field = "put_qty"
	FieldCallDollar Field = "call_dollar"
	FieldPutDollar  Field = "put_dollar"
	FieldTradePrice Field = "trade_price"
	FieldInsights   Field = "insights"
)

// contractMultiple is the share count one option contract controls.
const contractMultiple = 100

// RawRow maps a header label to the raw cell text.
type RawRow map[string]string

// Manifest records which header label carries each field within one range
// of the sheet, and which side that range holds.
type Manifest struct {
	Side    Side
	Columns map[Field]string
}

// Has reports whether the range carries a column for f.
func (m Manifest) Has(f Field) bool {
	_, ok := m.Columns[f]
	return ok
}

// Value returns the trimmed cell for f, or "" when absent.
func (m Manifest) Value(row RawRow, f Field) string {
	label, ok := m.Columns[f]
	if !ok {
		return ""
	}
	return strings.TrimSpace(row[label])
}

// DropReason names why a row was rejected.
type DropReason string

const (
	DropTicker     DropReason = "ticker"
	DropOrderDate  DropReason = "order_date"
	DropExpiry     DropReason = "expiry"
	DropStrike     DropReason = "strike"
	DropOptionType DropReason = "option_type"
)

// ErrMalformedRecord matches every normalization drop.
var ErrMalformedRecord = errors.New("malformed record")

// MalformedRecordError carries the reason a row was dropped.
type MalformedRecordError struct {
	Reason DropReason
	Value  string
}

func (e *MalformedRecordError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("malformed record: missing %s", e.Reason)
	}
	return fmt.Sprintf("malformed record: bad %s %q", e.Reason, e.Value)
}

// Is lets errors.Is match ErrMalformedRecord.
func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

// DropCounts tallies dropped rows by reason.
type DropCounts map[DropReason]int

// Total sums all reasons.
func (d DropCounts) Total() int {
	n := 0
	for _, c := range d {
		n += c
	}
	return n
}

// Batch is one range of raw rows sharing a manifest.
type Batch struct {
	Manifest Manifest
	Rows     []RawRow
}

// Normalizer turns raw rows into OrderRecords.
type Normalizer struct {
	logger zerolog.Logger
}

// NewNormalizer constructs a Normalizer.
func NewNormalizer(logger zerolog.Logger) *Normalizer {
	return &Normalizer{logger: logger.With().Str("component", "normalizer").Logger()}
}

// NormalizeBatches normalizes every row, preserving input order, and counts
// the rows it drops.
func (n *Normalizer) NormalizeBatches(batches []Batch) ([]OrderRecord, DropCounts) {
	records := make([]OrderRecord, 0)
	drops := make(DropCounts)
	for _, batch := range batches {
		for i, row := range batch.Rows {
			rec, err := n.Normalize(row, batch.Manifest)
			if err != nil {
				var mre *MalformedRecordError
				if errors.As(err, &mre) {
					drops[mre.Reason]++
				}
				n.logger.Debug().Err(err).Str("side", string(batch.Manifest.Side)).Int("row", i).Msg("row dropped")
				continue
			}
			records = append(records, rec)
		}
	}
	return records, drops
}

// Normalize resolves a single row. It returns a *MalformedRecordError when
// the ticker, order date, expiry, strike or option type cannot be resolved.
// Missing quantities and dollar amounts default to zero.
func (n *Normalizer) Normalize(row RawRow, m Manifest) (OrderRecord, error) {
	ticker := strings.ToUpper(strings.TrimPrefix(m.Value(row, FieldTicker), "$"))
	ticker = strings.TrimSpace(ticker)
	if ticker == "" {
		return OrderRecord{}, &MalformedRecordError{Reason: DropTicker}
	}

	rawDate := m.Value(row, FieldOrderDate)
	orderDate, _, ok := ParseDate(rawDate)
	if !ok {
		return OrderRecord{}, &MalformedRecordError{Reason: DropOrderDate, Value: rawDate}
	}

	expiry, ok := resolveExpiry(row, m, orderDate)
	if !ok {
		return OrderRecord{}, &MalformedRecordError{Reason: DropExpiry, Value: m.Value(row, FieldExpiry)}
	}

	rawStrike := m.Value(row, FieldStrike)
	strike, ok := ParseAmount(rawStrike)
	if !ok || !strike.IsPositive() {
		return OrderRecord{}, &MalformedRecordError{Reason: DropStrike, Value: rawStrike}
	}

	optType, ok := resolveType(row, m)
	if !ok {
		return OrderRecord{}, &MalformedRecordError{Reason: DropOptionType, Value: m.Value(row, FieldType)}
	}

	qty := contracts(m.Value(row, FieldCallQty)) + contracts(m.Value(row, FieldPutQty))

	callDollar := m.Value(row, FieldCallDollar)
	putDollar := m.Value(row, FieldPutDollar)
	dollar := nonNegative(callDollar).Add(nonNegative(putDollar))
	if callDollar == "" && putDollar == "" && qty > 0 {
		if price := nonNegative(m.Value(row, FieldTradePrice)); price.IsPositive() {
			dollar = price.Mul(decimal.NewFromInt(qty * contractMultiple))
		}
	}

	return OrderRecord{
		Ticker:       ticker,
		Side:         m.Side,
		Type:         optType,
		Strike:       strike,
		Expiry:       expiry,
		Quantity:     qty,
		DollarAmount: dollar,
		OrderDate:    orderDate,
		Sentiment:    ClassifySentiment(m.Value(row, FieldInsights), m.Side),
	}, nil
}

func resolveExpiry(row RawRow, m Manifest, orderDate time.Time) (time.Time, bool) {
	if raw := m.Value(row, FieldExpiry); raw != "" {
		if t, _, ok := ParseDate(raw); ok {
			return t, true
		}
	}

	month, day, year := m.Value(row, FieldExpMonth), m.Value(row, FieldExpDay), m.Value(row, FieldExpYear)
	if month != "" && day != "" && year != "" {
		if t, ok := DateFromParts(month, day, year); ok {
			return t, true
		}
	}

	if raw := m.Value(row, FieldDTE); raw != "" && month == "" && day == "" {
		if days, err := strconv.Atoi(raw); err == nil && days >= 0 {
			return orderDate.AddDate(0, 0, days), true
		}
	}
	return time.Time{}, false
}

func resolveType(row RawRow, m Manifest) (OptionType, bool) {
	switch strings.ToUpper(m.Value(row, FieldType)) {
	case "C", "CALL", "CALLS":
		return Call, true
	case "P", "PUT", "PUTS":
		return Put, true
	}

	callQty, callDollar := m.Value(row, FieldCallQty), m.Value(row, FieldCallDollar)
	putQty, putDollar := m.Value(row, FieldPutQty), m.Value(row, FieldPutDollar)

	if nonNegative(putQty).IsPositive() || nonNegative(putDollar).IsPositive() {
		return Put, true
	}
	if nonNegative(callQty).IsPositive() || nonNegative(callDollar).IsPositive() {
		return Call, true
	}
	if putQty != "" || putDollar != "" {
		return Put, true
	}
	if callQty != "" || callDollar != "" {
		return Call, true
	}
	return "", false
}
