package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"trialsnap/internal/kpi"
)

func fixtureResult(t *testing.T) *Result {
	t.Helper()
	res, err := NewService(testConfig(), Deps{}).Run(context.Background(), fixtureInputs(t), kpi.DefaultConfig())
	require.NoError(t, err)
	return res
}

func TestExportXLSX(t *testing.T) {
	res := fixtureResult(t)
	out := filepath.Join(t.TempDir(), "out", "report.xlsx")
	require.NoError(t, ExportXLSX(res, out))

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetReconciled, SheetSites, SheetSummary, SheetLateUploads, SheetMissingForms}, f.GetSheetList())

	rows, err := f.GetRows(SheetReconciled)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "site", rows[0][0])
	assert.Equal(t, "A1", rows[1][4])
	assert.Equal(t, "2024-01-01", rows[1][5])

	sites, err := f.GetRows(SheetSites)
	require.NoError(t, err)
	require.Len(t, sites, 3)
	assert.Equal(t, "Site A", sites[1][0])

	late, err := f.GetRows(SheetLateUploads)
	require.NoError(t, err)
	require.Len(t, late, 2)
	assert.Equal(t, "8", late[1][6])

	missing, err := f.GetRows(SheetMissingForms)
	require.NoError(t, err)
	require.Len(t, missing, 3)
	assert.Equal(t, "A3", missing[1][4])

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"run_id", res.RunID}, summary[1])
	found := false
	for _, row := range summary {
		if len(row) == 2 && row[0] == "total_assessments" {
			found = true
			assert.Equal(t, "4", row[1])
		}
	}
	assert.True(t, found)
}

func TestExportArrow(t *testing.T) {
	res := fixtureResult(t)
	out := filepath.Join(t.TempDir(), "reconciled.arrow")
	require.NoError(t, ExportArrow(res.Snapshot.Records, out))

	file, err := os.Open(out)
	require.NoError(t, err)
	defer file.Close()

	r, err := ipc.NewFileReader(file)
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, ReconciledSchema.NumFields(), r.Schema().NumFields())
	for i, field := range ReconciledSchema.Fields() {
		assert.Equal(t, field.Name, r.Schema().Field(i).Name)
	}
	require.Equal(t, 1, r.NumRecords())
	rec, err := r.Record(0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), rec.NumRows())

	ids := rec.Column(4).(*array.String)
	assert.Equal(t, "A1", ids.Value(0))

	formDelay := rec.Column(13).(*array.Int64)
	assert.Equal(t, int64(18), formDelay.Value(0))
	assert.True(t, formDelay.IsNull(2))

	submitted := rec.Column(11).(*array.Date32)
	assert.False(t, submitted.IsNull(0))
	assert.True(t, submitted.IsNull(3))
}
