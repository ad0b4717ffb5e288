package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trialsnap/internal"
	"trialsnap/internal/config"
	"trialsnap/internal/kpi"
	"trialsnap/internal/loader"
	"trialsnap/internal/metrics"
	"trialsnap/internal/schema"
	"trialsnap/internal/storage"
)

func testConfig() config.Config {
	return config.Config{UnmatchedUploadDelay: "zero", HeaderMarkers: loader.DefaultMarkers}
}

func fixtureInputs(t *testing.T) Inputs {
	t.Helper()
	in, err := InputsFromFiles(
		filepath.Join("testdata", "schedule.csv"),
		filepath.Join("testdata", "assets.csv"),
		filepath.Join("testdata", "forms.csv"),
	)
	require.NoError(t, err)
	return in
}

func TestRunFixtureBundle(t *testing.T) {
	svc := NewService(testConfig(), Deps{})
	res, err := svc.Run(context.Background(), fixtureInputs(t), kpi.DefaultConfig())
	require.NoError(t, err)

	assert.False(t, res.CacheHit)
	assert.Len(t, res.Identity, 16)
	require.Len(t, res.Snapshot.Records, 4)
	assert.True(t, res.Snapshot.HasStatus)

	first := res.Snapshot.Records[0]
	assert.Equal(t, "A1", first.AssessmentID)
	assert.Equal(t, 2, first.UploadCount)
	assert.Equal(t, 8, *first.MaxUploadDelay)
	assert.Equal(t, 8, *first.TaskDelay)
	assert.Equal(t, 18, *first.FormDelay)

	siteA, ok := res.Report.Site("Site A")
	require.True(t, ok)
	assert.Equal(t, 1, siteA.LateAssets)
	assert.Equal(t, 1, siteA.LateTasks)
	assert.Equal(t, 1, siteA.LateForms)
	assert.Equal(t, 1, siteA.OpenActions)
	assert.Equal(t, 1, siteA.OutOfWindow)
	assert.InDelta(t, 100*(1.0/3+0.5+0.5+0.5)/4, *siteA.RiskScore, 1e-9)
	assert.InDelta(t, 100*(1-(1.0/3+0.5+0.5+0.5+1)/5), *siteA.DataQualityIndex, 1e-9)

	siteB, ok := res.Report.Site("Site B")
	require.True(t, ok)
	assert.InDelta(t, 0.0, *siteB.RiskScore, 1e-9)
	assert.Nil(t, siteB.FormLateRate)

	s := res.Report.Summary
	assert.Equal(t, 4, s.TotalAssessments)
	assert.Equal(t, 3, *s.CompletedAssessments)
	assert.InDelta(t, 75.0, *s.PctCompleted, 1e-9)
	assert.Equal(t, 1, s.LateUploadRows)
	assert.InDelta(t, 75.0, *s.OnTimeUploadRate, 1e-9)
	assert.Equal(t, 2, s.FormsSubmitted)
	assert.Equal(t, 2, s.MissingForms)
	assert.Equal(t, 1, s.OutOfWindow)
}

func TestRunReusesSnapshotAcrossThresholds(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	svc := NewService(testConfig(), Deps{Metrics: rec})
	in := fixtureInputs(t)

	first, err := svc.Run(context.Background(), in, kpi.DefaultConfig())
	require.NoError(t, err)

	strict := kpi.DefaultConfig()
	strict.Thresholds = kpi.UniformThresholds(0)
	second, err := svc.Run(context.Background(), in, strict)
	require.NoError(t, err)

	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Identity, second.Identity)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Same(t, first.Snapshot, second.Snapshot)

	a1, _ := first.Report.Site("Site A")
	a2, _ := second.Report.Site("Site A")
	assert.Equal(t, 1, a1.LateAssets)
	assert.Equal(t, 2, a2.LateAssets)

	again, err := svc.Run(context.Background(), in, kpi.DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, first.Report, again.Report)
}

func TestRunIdentityFollowsReconcilePolicy(t *testing.T) {
	in := fixtureInputs(t)
	zero := NewService(testConfig(), Deps{})
	cfg := testConfig()
	cfg.UnmatchedUploadDelay = "missing"
	missing := NewService(cfg, Deps{})
	assert.NotEqual(t, zero.Identity(in), missing.Identity(in))

	res, err := missing.Run(context.Background(), in, kpi.DefaultConfig())
	require.NoError(t, err)
	assert.Nil(t, res.Snapshot.Records[2].MaxUploadDelay)
}

func TestRunSchemaErrorListsEveryTable(t *testing.T) {
	in := Inputs{
		Schedule: Source{Name: "schedule.csv", Data: []byte("Site,Subject,Scheduled Date\nA,1,2024-01-01\n")},
		Assets:   Source{Name: "assets.csv", Data: []byte("Site,Subject,Visit,Assessment,Procedure Date\nA,1,V1,ECG,2024-01-01\n")},
		Forms:    Source{Name: "forms.csv", Data: []byte("Assessment ID,Date Created\nX1,2024-01-01\n")},
	}
	svc := NewService(testConfig(), Deps{})
	_, err := svc.Run(context.Background(), in, kpi.DefaultConfig())

	var schemaErr *schema.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	require.Len(t, schemaErr.Missing, 3)
	assert.Equal(t, schema.TableSchedule, schemaErr.Missing[0].Table)
	assert.Contains(t, schemaErr.Missing[0].Fields, schema.FieldVisit)
	assert.Equal(t, []string{schema.FieldUploadDate}, schemaErr.Missing[1].Fields)
	assert.Equal(t, []string{schema.FieldSubmittedDate}, schemaErr.Missing[2].Fields)
	assert.Equal(t, internal.RunSchemaError, RunStatus(err))
}

func TestRunFormatError(t *testing.T) {
	in := fixtureInputs(t)
	in.Assets = Source{Name: "assets.xlsx", Data: []byte{0x00, 0x01, 0x02}}

	svc := NewService(testConfig(), Deps{})
	_, err := svc.Run(context.Background(), in, kpi.DefaultConfig())

	var formatErr *loader.FormatError
	require.True(t, errors.As(err, &formatErr))
	assert.Equal(t, schema.TableAssets, formatErr.Table)
	assert.Equal(t, internal.RunFormatError, RunStatus(err))
}

func TestRunRecordsHistory(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	defer db.Close()

	svc := NewService(testConfig(), Deps{DB: db})
	in := fixtureInputs(t)
	res, err := svc.Run(context.Background(), in, kpi.DefaultConfig())
	require.NoError(t, err)

	broken := in
	broken.Forms = Source{Name: "forms.csv", Data: []byte("Comment\nnone\n")}
	_, err = svc.Run(context.Background(), broken, kpi.DefaultConfig())
	require.Error(t, err)

	runs, err := db.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, internal.RunSchemaError, runs[0].Status)
	assert.Contains(t, runs[0].Report, `"table":"forms"`)
	assert.Equal(t, res.RunID, runs[1].ID)
	assert.Equal(t, internal.RunOK, runs[1].Status)
	assert.Equal(t, "files", runs[1].Source)
	assert.Equal(t, 4, runs[1].Counts["reconciled"])

	last, err := db.GetMetadata("last_identity")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, res.Identity, *last)
}

func TestRunHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := NewService(testConfig(), Deps{})
	_, err := svc.Run(ctx, fixtureInputs(t), kpi.DefaultConfig())
	assert.ErrorIs(t, err, context.Canceled)
}
