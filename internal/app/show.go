package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"options-flow-scanner/internal/flow"
	"options-flow-scanner/internal/service"
	"options-flow-scanner/internal/trend"
)

// Show prints a stored snapshot, the list of stored dates, or the change
// against the previous snapshot.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	dates, err := store.ListSnapshots(ctx)
	if err != nil {
		return err
	}
	if len(dates) == 0 {
		fmt.Fprintln(os.Stdout, "no snapshots found")
		return nil
	}

	if opts.List {
		for _, d := range dates {
			fmt.Fprintln(os.Stdout, d.Format("2006-01-02"))
		}
		return nil
	}

	date := dates[len(dates)-1]
	if !opts.Date.IsZero() {
		date = flow.Date(opts.Date)
	}
	snap, err := store.LoadSnapshot(ctx, date)
	if err != nil {
		return err
	}

	topN := a.Config.ResolveTopN(opts.TopN)
	if !opts.Diff {
		repeated := flow.DetectRepeated(snap.Detailed, a.Config.Analysis.RepetitionThreshold)
		fmt.Fprintf(os.Stdout, "Snapshot %s: %d orders, %d groups\n\n", date.Format("2006-01-02"), len(snap.Records), len(snap.Detailed))
		printGroups(os.Stdout, "Repeated flows", repeated, topN)
		return nil
	}

	prev, ok := previousDate(dates, date)
	if !ok {
		return errors.New("no earlier snapshot to diff against")
	}
	before, err := store.LoadSnapshot(ctx, prev)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "Changes %s -> %s\n\n", prev.Format("2006-01-02"), date.Format("2006-01-02"))
	printDeltas(os.Stdout, flow.Diff(before.Detailed, snap.Detailed), topN)
	return nil
}

func previousDate(dates []time.Time, date time.Time) (time.Time, bool) {
	var prev time.Time
	found := false
	for _, d := range dates {
		if d.Before(date) {
			prev = d
			found = true
		}
	}
	return prev, found
}

func formatDollars(d decimal.Decimal) string {
	n := d.Round(0).IntPart()
	if n < 0 {
		return "-$" + humanize.Comma(-n)
	}
	return "$" + humanize.Comma(n)
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02")
}

func capped(n, topN int) int {
	if topN > 0 && n > topN {
		return topN
	}
	return n
}

func printResult(w io.Writer, res service.Result, topN int) {
	s := res.Summary
	fmt.Fprintf(w, "Options flow %s\n", res.Date.Format("2006-01-02"))
	fmt.Fprintf(w, "rows %d, normalized %d, dropped %d, in window %d, groups %d\n",
		s.Rows, s.Normalized, s.Drops.Total(), s.Filtered, s.DetailedGroups)
	if len(res.Sentiment) > 0 {
		fmt.Fprintf(w, "bullish %s, bearish %s, neutral %s\n",
			formatDollars(res.Sentiment[flow.Bullish]),
			formatDollars(res.Sentiment[flow.Bearish]),
			formatDollars(res.Sentiment[flow.Neutral]))
	}
	if s.SnapshotError != "" {
		fmt.Fprintf(w, "snapshot: %s\n", sanitizeInline(s.SnapshotError))
	}
	fmt.Fprintln(w)

	printGroups(w, "Repeated flows", res.Repeated, topN)
	printGroups(w, "Top tickers", res.Coarse, topN)
	printOrders(w, "Large orders", res.LargeOrders, topN)
	if len(res.Trend.Statuses) > 0 {
		printTrend(w, res.Trend)
	}
}

func printGroups(w io.Writer, title string, groups []flow.AggregateGroup, topN int) {
	fmt.Fprintf(w, "%s (%d)\n", title, len(groups))
	if len(groups) == 0 {
		fmt.Fprintln(w, "  none")
		fmt.Fprintln(w)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Ticker\tExpiry\tStrike\tType\tHits\tDollar\tCall Qty\tPut Qty\tBullish\tBearish")
	for _, g := range groups[:capped(len(groups), topN)] {
		strike := g.Key.Strike
		if strike == "" {
			strike = "-"
		}
		typ := string(g.Key.Type)
		if typ == "" {
			typ = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			g.Key.Ticker,
			formatExpiry(g.Key.Expiry),
			strike,
			typ,
			g.HitCount,
			formatDollars(g.TotalDollar),
			humanize.Comma(g.CallQty),
			humanize.Comma(g.PutQty),
			formatDollars(g.BullishDollar),
			formatDollars(g.BearishDollar),
		)
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func printOrders(w io.Writer, title string, records []flow.OrderRecord, topN int) {
	fmt.Fprintf(w, "%s (%d)\n", title, len(records))
	if len(records) == 0 {
		fmt.Fprintln(w, "  none")
		fmt.Fprintln(w)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Date\tSide\tTicker\tExpiry\tStrike\tType\tQty\tDollar\tSentiment")
	for _, r := range records[:capped(len(records), topN)] {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.OrderDate.Format("2006-01-02"),
			r.Side,
			r.Ticker,
			formatExpiry(r.Expiry),
			r.Strike.String(),
			r.Type,
			humanize.Comma(r.Quantity),
			formatDollars(r.DollarAmount),
			r.Sentiment,
		)
	}
	tw.Flush()
	fmt.Fprintln(w)
}

func printTrend(w io.Writer, res trend.Result) {
	fmt.Fprintln(w, "EMA trend")
	labels := make([]string, 0)
	if len(res.Statuses) > 0 {
		for _, r := range res.Statuses[0].Readings {
			labels = append(labels, r.Timeframe)
		}
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Ticker\tPrice\t%s\tSummary\n", strings.Join(labels, "\t"))
	for _, st := range res.Statuses {
		cells := make([]string, 0, len(labels))
		for _, label := range labels {
			r, ok := st.Reading(label)
			switch {
			case !ok || !r.Available:
				cells = append(cells, "-")
			case r.Above:
				cells = append(cells, fmt.Sprintf("above %+.2f%%", r.Distance))
			default:
				cells = append(cells, fmt.Sprintf("below %+.2f%%", r.Distance))
			}
		}
		price := "-"
		if st.Price > 0 {
			price = humanize.CommafWithDigits(st.Price, 2)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", st.Ticker, price, strings.Join(cells, "\t"), st.Summary())
	}
	tw.Flush()

	for _, f := range res.Failures {
		fmt.Fprintf(w, "  %s %s: %s\n", f.Ticker, f.Timeframe, sanitizeInline(f.Reason))
	}
	fmt.Fprintln(w)
}

func printDeltas(w io.Writer, deltas []flow.GroupDelta, topN int) {
	if len(deltas) == 0 {
		fmt.Fprintln(w, "no changes")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Change\tTicker\tExpiry\tStrike\tType\tHits\tDollar")
	for _, d := range deltas[:capped(len(deltas), topN)] {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%+d\t%s\n",
			d.Kind,
			d.Key.Ticker,
			formatExpiry(d.Key.Expiry),
			d.Key.Strike,
			d.Key.Type,
			d.HitDelta,
			formatDollars(d.DollarDelta),
		)
	}
	tw.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
