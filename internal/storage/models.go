package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"options-flow-scanner/internal/flow"
)

var (
	// ErrSnapshotWrite wraps every failure to persist a snapshot.
	ErrSnapshotWrite = errors.New("snapshot write failed")
	// ErrSnapshotNotFound is returned when no snapshot exists for a date.
	ErrSnapshotNotFound = errors.New("snapshot not found")
)

const dateLayout = "2006-01-02"

// Snapshot is one calendar date of normalized orders and their detailed
// aggregation.
type Snapshot struct {
	Date     time.Time
	Records  []flow.OrderRecord
	Detailed []flow.AggregateGroup
}

// SnapshotStore persists one snapshot per calendar date. Saving a date
// replaces only that date.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
	// ListSnapshots returns stored dates in ascending order.
	ListSnapshots(ctx context.Context) ([]time.Time, error)
	LoadSnapshot(ctx context.Context, date time.Time) (Snapshot, error)
}

var orderHeader = []string{"order_date", "side", "ticker", "type", "strike", "expiry", "quantity", "dollar_amount", "sentiment"}

var flowHeader = []string{
	"ticker", "expiry", "strike", "type", "hit_count", "total_dollar",
	"call_qty", "put_qty", "call_dollar", "put_dollar", "bullish_dollar", "bearish_dollar",
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}

// WriteOrders encodes records as CSV in the given order.
func WriteOrders(w io.Writer, records []flow.OrderRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(orderHeader); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write([]string{
			formatDate(r.OrderDate),
			string(r.Side),
			r.Ticker,
			string(r.Type),
			r.Strike.String(),
			formatDate(r.Expiry),
			strconv.FormatInt(r.Quantity, 10),
			r.DollarAmount.String(),
			string(r.Sentiment),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeFlow writes the detailed table sorted by key so equal tables give
// equal bytes regardless of first-seen order.
func writeFlow(w io.Writer, detailed []flow.AggregateGroup) error {
	sorted := append([]flow.AggregateGroup(nil), detailed...)
	flow.SortByKey(sorted)
	return WriteGroups(w, sorted)
}

// WriteGroups encodes aggregate groups as CSV in the given order. Coarse
// groups leave expiry, strike and type empty.
func WriteGroups(w io.Writer, groups []flow.AggregateGroup) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(flowHeader); err != nil {
		return err
	}
	for _, g := range groups {
		if err := cw.Write([]string{
			g.Key.Ticker,
			formatDate(g.Key.Expiry),
			g.Key.Strike,
			string(g.Key.Type),
			strconv.Itoa(g.HitCount),
			g.TotalDollar.String(),
			strconv.FormatInt(g.CallQty, 10),
			strconv.FormatInt(g.PutQty, 10),
			g.CallDollar.String(),
			g.PutDollar.String(),
			g.BullishDollar.String(),
			g.BearishDollar.String(),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func readRows(r io.Reader, header []string) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(header)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("missing header row")
	}
	for i, h := range header {
		if rows[0][i] != h {
			return nil, fmt.Errorf("unexpected column %q at %d", rows[0][i], i)
		}
	}
	return rows[1:], nil
}

func readOrders(r io.Reader) ([]flow.OrderRecord, error) {
	rows, err := readRows(r, orderHeader)
	if err != nil {
		return nil, fmt.Errorf("read orders: %w", err)
	}
	records := make([]flow.OrderRecord, 0, len(rows))
	for i, row := range rows {
		rec, err := parseOrder(row)
		if err != nil {
			return nil, fmt.Errorf("read orders line %d: %w", i+2, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func parseOrder(row []string) (flow.OrderRecord, error) {
	var (
		rec flow.OrderRecord
		err error
	)
	if rec.OrderDate, err = parseDate(row[0]); err != nil {
		return rec, err
	}
	rec.Side = flow.Side(row[1])
	rec.Ticker = row[2]
	rec.Type = flow.OptionType(row[3])
	if rec.Strike, err = decimal.NewFromString(row[4]); err != nil {
		return rec, err
	}
	if rec.Expiry, err = parseDate(row[5]); err != nil {
		return rec, err
	}
	if rec.Quantity, err = strconv.ParseInt(row[6], 10, 64); err != nil {
		return rec, err
	}
	if rec.DollarAmount, err = decimal.NewFromString(row[7]); err != nil {
		return rec, err
	}
	rec.Sentiment = flow.Sentiment(row[8])
	return rec, nil
}

func readFlow(r io.Reader) ([]flow.AggregateGroup, error) {
	rows, err := readRows(r, flowHeader)
	if err != nil {
		return nil, fmt.Errorf("read flow: %w", err)
	}
	groups := make([]flow.AggregateGroup, 0, len(rows))
	for i, row := range rows {
		g, err := parseGroup(row)
		if err != nil {
			return nil, fmt.Errorf("read flow line %d: %w", i+2, err)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func parseGroup(row []string) (flow.AggregateGroup, error) {
	var (
		g   flow.AggregateGroup
		err error
	)
	g.Key.Ticker = row[0]
	if g.Key.Expiry, err = parseDate(row[1]); err != nil {
		return g, err
	}
	g.Key.Strike = row[2]
	g.Key.Type = flow.OptionType(row[3])
	if g.HitCount, err = strconv.Atoi(row[4]); err != nil {
		return g, err
	}
	if g.CallQty, err = strconv.ParseInt(row[6], 10, 64); err != nil {
		return g, err
	}
	if g.PutQty, err = strconv.ParseInt(row[7], 10, 64); err != nil {
		return g, err
	}
	amounts := []*decimal.Decimal{&g.TotalDollar, &g.CallDollar, &g.PutDollar, &g.BullishDollar, &g.BearishDollar}
	for i, col := range []int{5, 8, 9, 10, 11} {
		if *amounts[i], err = decimal.NewFromString(row[col]); err != nil {
			return g, err
		}
	}
	return g, nil
}
