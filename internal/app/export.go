package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"options-flow-scanner/internal/flow"
	"options-flow-scanner/internal/service"
	"options-flow-scanner/internal/storage"
)

// Export writes a stored snapshot as orders and flow CSV files.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.OutDir == "" {
		return errors.New("--out must be provided")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	date := opts.Date
	if date.IsZero() {
		dates, err := store.ListSnapshots(ctx)
		if err != nil {
			return err
		}
		if len(dates) == 0 {
			return storage.ErrSnapshotNotFound
		}
		date = dates[len(dates)-1]
	}

	snap, err := store.LoadSnapshot(ctx, flow.Date(date))
	if err != nil {
		return err
	}

	stamp := snap.Date.Format("2006-01-02")
	if err := writeCSV(a.Fs, filepath.Join(opts.OutDir, "orders_"+stamp+".csv"), func(buf *bytes.Buffer) error {
		return storage.WriteOrders(buf, snap.Records)
	}); err != nil {
		return err
	}
	if err := writeCSV(a.Fs, filepath.Join(opts.OutDir, "flow_"+stamp+".csv"), func(buf *bytes.Buffer) error {
		return storage.WriteGroups(buf, snap.Detailed)
	}); err != nil {
		return err
	}

	a.Logger.Info().Str("date", stamp).Int("orders", len(snap.Records)).Int("groups", len(snap.Detailed)).Msg("snapshot exported")
	return nil
}

// writeTables writes the four analysis tables of a run into dir.
func writeTables(fs afero.Fs, dir string, res service.Result) error {
	stamp := res.Date.Format("2006-01-02")
	tables := []struct {
		name   string
		groups []flow.AggregateGroup
	}{
		{"coarse", res.Coarse},
		{"detailed", res.Detailed},
		{"repeated", res.Repeated},
	}
	for _, t := range tables {
		groups := t.groups
		path := filepath.Join(dir, fmt.Sprintf("%s_%s.csv", t.name, stamp))
		if err := writeCSV(fs, path, func(buf *bytes.Buffer) error {
			return storage.WriteGroups(buf, groups)
		}); err != nil {
			return err
		}
	}
	return writeCSV(fs, filepath.Join(dir, "large_orders_"+stamp+".csv"), func(buf *bytes.Buffer) error {
		return storage.WriteOrders(buf, res.LargeOrders)
	})
}

func writeCSV(fs afero.Fs, path string, encode func(*bytes.Buffer) error) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	var buf bytes.Buffer
	if err := encode(&buf); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := afero.WriteFile(fs, path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
