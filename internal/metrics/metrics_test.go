package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := New()

	r.RecordDrop("ticker", 2)
	r.RecordDrop("ticker", 1)
	r.RecordStage("filtered", 42)
	r.ObserveFetch("5m", 30*time.Millisecond, errors.New("down"))
	r.ObserveFetch("5m", 10*time.Millisecond, nil)
	r.RecordSnapshot(nil)
	r.RecordRun(2*time.Second, nil)

	assert.Equal(t, 3.0, testutil.ToFloat64(r.rowsDropped.WithLabelValues("ticker")))
	assert.Equal(t, 42.0, testutil.ToFloat64(r.stageRecords.WithLabelValues("filtered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.feedRequests.WithLabelValues("5m", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.feedRequests.WithLabelValues("5m", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.snapshots.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("ok")))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.RecordStage("normalized", 7)

	path := filepath.Join(t.TempDir(), "flowscan.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `flowscan_stage_records{stage="normalized"} 7`)

	assert.NoError(t, r.WriteTextfile(""))
}
