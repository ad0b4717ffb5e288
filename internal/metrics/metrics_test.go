package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := New(reg)

	rec.RecordRun("ok")
	rec.RecordRun("ok")
	rec.RecordRun("schema_error")
	rec.RecordTable("assets", 12, 3)
	rec.RecordCache(true)
	rec.RecordCache(false)
	rec.RecordStage("load", 20*time.Millisecond)

	assert.Equal(t, 2.0, counterValue(t, rec.RunsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, counterValue(t, rec.RunsTotal.WithLabelValues("schema_error")))
	assert.Equal(t, 12.0, counterValue(t, rec.RowsLoaded.WithLabelValues("assets")))
	assert.Equal(t, 3.0, counterValue(t, rec.MissingCells.WithLabelValues("assets")))
	assert.Equal(t, 1.0, counterValue(t, rec.SnapshotCache.WithLabelValues("hit")))

	path := filepath.Join(t.TempDir(), "trialsnap.prom")
	require.NoError(t, prometheus.WriteToTextfile(path, reg))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `trialsnap_runs_total{status="ok"} 2`)
	assert.Contains(t, string(data), "trialsnap_stage_duration_seconds_bucket")
}

func TestNilRegistererDoesNotRegister(t *testing.T) {
	a := New(nil)
	b := New(nil)
	a.RecordRun("ok")
	b.RecordRun("ok")
	assert.Equal(t, 1.0, counterValue(t, b.RunsTotal.WithLabelValues("ok")))
}
