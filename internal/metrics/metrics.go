// Package metrics records pipeline counters in a private Prometheus registry
// and exports them as a node_exporter textfile.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "flowscan"

// Recorder implements service.Metrics and trend.Observer using Prometheus.
type Recorder struct {
	registry      *prometheus.Registry
	rowsDropped   *prometheus.CounterVec
	stageRecords  *prometheus.GaugeVec
	feedRequests  *prometheus.CounterVec
	feedLatency   *prometheus.HistogramVec
	snapshots     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	runsTotal     *prometheus.CounterVec
	lastRunUnixTS prometheus.Gauge
}

// New creates a recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		rowsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_dropped_total",
				Help:      "Rows rejected by the normalizer, by reason",
			},
			[]string{"reason"},
		),
		stageRecords: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "stage_records",
				Help:      "Records or groups produced by each pipeline stage in the last run",
			},
			[]string{"stage"},
		),
		feedRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_requests_total",
				Help:      "Price feed requests by timeframe and result",
			},
			[]string{"timeframe", "result"},
		),
		feedLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "feed_request_duration_seconds",
				Help:      "Duration of price feed requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"timeframe"},
		),
		snapshots: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_writes_total",
				Help:      "Snapshot writes by result",
			},
			[]string{"result"},
		),
		runDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of full pipeline runs",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Pipeline runs by result",
			},
			[]string{"result"},
		),
		lastRunUnixTS: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Registry exposes the private registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// RecordDrop adds n dropped rows for reason.
func (r *Recorder) RecordDrop(reason string, n int) {
	r.rowsDropped.WithLabelValues(reason).Add(float64(n))
}

// RecordStage sets the output size of a stage.
func (r *Recorder) RecordStage(stage string, n int) {
	r.stageRecords.WithLabelValues(stage).Set(float64(n))
}

// ObserveFetch records one feed request.
func (r *Recorder) ObserveFetch(timeframe string, elapsed time.Duration, err error) {
	r.feedRequests.WithLabelValues(timeframe, result(err)).Inc()
	r.feedLatency.WithLabelValues(timeframe).Observe(elapsed.Seconds())
}

// RecordSnapshot records a snapshot write.
func (r *Recorder) RecordSnapshot(err error) {
	r.snapshots.WithLabelValues(result(err)).Inc()
}

// RecordRun records a finished pipeline run.
func (r *Recorder) RecordRun(elapsed time.Duration, err error) {
	r.runDuration.Observe(elapsed.Seconds())
	r.runsTotal.WithLabelValues(result(err)).Inc()
	r.lastRunUnixTS.SetToCurrentTime()
}

// WriteTextfile writes the registry in text exposition format. The file is
// replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
