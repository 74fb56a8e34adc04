package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"options-flow-scanner/internal/alerting"
	"options-flow-scanner/internal/flow"
	"options-flow-scanner/internal/storage"
)

// SimulateDigest renders the digest of a stored snapshot without fetching
// prices. With send set it is delivered through the configured channel,
// otherwise it is printed.
func (a *App) SimulateDigest(ctx context.Context, date time.Time, send bool) error {
	digest, err := a.snapshotDigest(ctx, date)
	if err != nil {
		return err
	}

	if !send {
		fmt.Fprint(os.Stdout, alerting.RenderDigest(digest))
		return nil
	}

	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is disabled")
	}
	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no digest channel configured")
	}
	return notifier.Notify(ctx, digest)
}

// snapshotDigest rebuilds the digest of the snapshot for date, or the latest
// one. Stored records cover the whole sheet, so the window of the snapshot
// day is applied again before large orders and sentiment are computed.
func (a *App) snapshotDigest(ctx context.Context, date time.Time) (alerting.Digest, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return alerting.Digest{}, err
	}
	defer closeStore()

	if date.IsZero() {
		dates, err := store.ListSnapshots(ctx)
		if err != nil {
			return alerting.Digest{}, err
		}
		if len(dates) == 0 {
			return alerting.Digest{}, storage.ErrSnapshotNotFound
		}
		date = dates[len(dates)-1]
	}

	snap, err := store.LoadSnapshot(ctx, flow.Date(date))
	if err != nil {
		return alerting.Digest{}, err
	}

	loc, err := a.Config.Location()
	if err != nil {
		return alerting.Digest{}, err
	}
	window := flow.Window{
		Now:           time.Date(snap.Date.Year(), snap.Date.Month(), snap.Date.Day(), 12, 0, 0, 0, loc),
		Location:      loc,
		LookbackDays:  a.Config.Analysis.DaysBack,
		ForwardMonths: a.Config.Analysis.NearTermMonths,
	}
	records := window.Apply(snap.Records)

	return alerting.Digest{
		Date:        snap.Date,
		Repeated:    flow.DetectRepeated(snap.Detailed, a.Config.Analysis.RepetitionThreshold),
		LargeOrders: flow.LargeOrders(records, largeOrderMin(a.Config.Analysis.LargeOrderMin)),
		Sentiment:   flow.SentimentTotals(records),
		TopN:        a.Config.Alerting.TopN,
	}, nil
}
