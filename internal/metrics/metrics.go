// Package metrics provides Prometheus instrumentation for pipeline runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the run series registered on one registry.
type Recorder struct {
	RunsTotal     *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	RowsLoaded    *prometheus.CounterVec
	MissingCells  *prometheus.CounterVec
	SnapshotCache *prometheus.CounterVec
}

// New registers the series on reg. A nil reg gives an unregistered recorder.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trialsnap_runs_total",
				Help: "Pipeline runs by outcome",
			},
			[]string{"status"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "trialsnap_stage_duration_seconds",
				Help:    "Time spent in each pipeline stage",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"stage"},
		),
		RowsLoaded: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trialsnap_rows_loaded_total",
				Help: "Data rows loaded per report table",
			},
			[]string{"table"},
		),
		MissingCells: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trialsnap_missing_cells_total",
				Help: "Date cells that could not be parsed, per report table",
			},
			[]string{"table"},
		),
		SnapshotCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trialsnap_snapshot_cache_total",
				Help: "Snapshot cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

func (r *Recorder) RecordRun(status string) {
	r.RunsTotal.WithLabelValues(status).Inc()
}

func (r *Recorder) RecordStage(stage string, duration time.Duration) {
	r.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

func (r *Recorder) RecordTable(table string, rows, missingCells int) {
	r.RowsLoaded.WithLabelValues(table).Add(float64(rows))
	r.MissingCells.WithLabelValues(table).Add(float64(missingCells))
}

func (r *Recorder) RecordCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.SnapshotCache.WithLabelValues(result).Inc()
}
