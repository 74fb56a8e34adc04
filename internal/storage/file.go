package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

var flowFilePattern = regexp.MustCompile(`^flow_(\d{4}-\d{2}-\d{2})\.csv$`)

// FileStore keeps each snapshot as orders_<date>.csv and flow_<date>.csv in
// one directory.
type FileStore struct {
	fs     afero.Fs
	dir    string
	logger zerolog.Logger
}

// NewFileStore constructs a file store rooted at dir.
func NewFileStore(fs afero.Fs, dir string, logger zerolog.Logger) *FileStore {
	return &FileStore{
		fs:     fs,
		dir:    dir,
		logger: logger.With().Str("component", "snapshot_files").Logger(),
	}
}

// Dir returns the snapshot directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) ordersPath(date time.Time) string {
	return filepath.Join(s.dir, "orders_"+date.Format(dateLayout)+".csv")
}

func (s *FileStore) flowPath(date time.Time) string {
	return filepath.Join(s.dir, "flow_"+date.Format(dateLayout)+".csv")
}

// SaveSnapshot writes both artifacts through a temp file and rename so a
// reader never sees a partial file.
func (s *FileStore) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshotWrite, err)
	}
	if snap.Date.IsZero() {
		return fmt.Errorf("%w: snapshot date required", ErrSnapshotWrite)
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create dir: %w", ErrSnapshotWrite, err)
	}

	var orders, detailed bytes.Buffer
	if err := WriteOrders(&orders, snap.Records); err != nil {
		return fmt.Errorf("%w: encode orders: %w", ErrSnapshotWrite, err)
	}
	if err := writeFlow(&detailed, snap.Detailed); err != nil {
		return fmt.Errorf("%w: encode flow: %w", ErrSnapshotWrite, err)
	}

	if err := s.writeAtomic(s.ordersPath(snap.Date), orders.Bytes()); err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshotWrite, err)
	}
	if err := s.writeAtomic(s.flowPath(snap.Date), detailed.Bytes()); err != nil {
		return fmt.Errorf("%w: %w", ErrSnapshotWrite, err)
	}

	s.logger.Info().
		Str("date", snap.Date.Format(dateLayout)).
		Int("records", len(snap.Records)).
		Int("groups", len(snap.Detailed)).
		Msg("snapshot saved")
	return nil
}

func (s *FileStore) writeAtomic(path string, data []byte) error {
	tmp, err := afero.TempFile(s.fs, s.dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := s.fs.Rename(tmpPath, path); err != nil {
		_ = s.fs.Remove(tmpPath)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ListSnapshots lists dates that have a flow artifact.
func (s *FileStore) ListSnapshots(ctx context.Context) ([]time.Time, error) {
	entries, err := afero.ReadDir(s.fs, s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []time.Time{}, nil
		}
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	dates := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := flowFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		d, err := time.Parse(dateLayout, m[1])
		if err != nil {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates, nil
}

// LoadSnapshot reads both artifacts for date. A missing orders file yields a
// snapshot with only the detailed table.
func (s *FileStore) LoadSnapshot(ctx context.Context, date time.Time) (Snapshot, error) {
	snap := Snapshot{Date: date}

	flowFile, err := s.fs.Open(s.flowPath(date))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, fmt.Errorf("%w: %s", ErrSnapshotNotFound, date.Format(dateLayout))
		}
		return Snapshot{}, fmt.Errorf("open flow snapshot: %w", err)
	}
	defer flowFile.Close()
	if snap.Detailed, err = readFlow(flowFile); err != nil {
		return Snapshot{}, err
	}

	ordersFile, err := s.fs.Open(s.ordersPath(date))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return snap, nil
		}
		return Snapshot{}, fmt.Errorf("open orders snapshot: %w", err)
	}
	defer ordersFile.Close()
	if snap.Records, err = readOrders(ordersFile); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

var _ SnapshotStore = (*FileStore)(nil)
