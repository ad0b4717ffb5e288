package storage

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trialsnap/internal"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "nested", "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEmailUpsertKeepsStatus(t *testing.T) {
	db := openTestDB(t)

	row, err := db.UpsertEmail("imap", "<a@x>", "Weekly reports", "cro@example.org", "2024-03-01T10:00:00Z", "h1", "/raw/h1.eml", "fetched")
	require.NoError(t, err)
	assert.Equal(t, "fetched", row.Status)
	require.NoError(t, db.UpdateEmailStatus(row.ID, "processed"))

	again, err := db.UpsertEmail("imap", "<a@x>", "Weekly reports (resent)", "cro@example.org", "2024-03-01T10:00:00Z", "h2", "/raw/h2.eml", "fetched")
	require.NoError(t, err)
	assert.Equal(t, row.ID, again.ID)
	assert.Equal(t, "processed", again.Status)
	assert.Equal(t, "h2", again.Hash)

	byID, err := db.GetEmailByID(row.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "Weekly reports (resent)", byID.Subject)

	missing, err := db.GetEmailByID(999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = db.MustEmailByProviderMessageID("gmail", "<a@x>")
	assert.Error(t, err)
}

func TestListEmailsByStatus(t *testing.T) {
	db := openTestDB(t)
	_, err := db.UpsertEmail("imap", "1", "", "", "2024-03-02", "h1", "r1", "fetched")
	require.NoError(t, err)
	_, err = db.UpsertEmail("gmail", "2", "", "", "2024-03-01", "h2", "r2", "fetched")
	require.NoError(t, err)
	_, err = db.UpsertEmail("imap", "3", "", "", "2024-03-03", "h3", "r3", "processed")
	require.NoError(t, err)

	all, err := db.ListEmailsByStatus("fetched", "", 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "2", all[0].MessageID)

	imapOnly, err := db.ListEmailsByStatus("fetched", "imap", 10)
	require.NoError(t, err)
	require.Len(t, imapOnly, 1)
	assert.Equal(t, "1", imapOnly[0].MessageID)
}

func TestRunHistoryRoundTrip(t *testing.T) {
	db := openTestDB(t)
	email, err := db.UpsertEmail("imap", "1", "", "", "", "h", "r", "fetched")
	require.NoError(t, err)

	first := internal.RunRow{
		ID:       uuid.NewString(),
		Identity: "abc123",
		Source:   "files",
		Status:   internal.RunOK,
		Counts:   map[string]int{"schedule": 4, "assets": 3},
		Timings:  map[string]float64{"load": 0.01},
	}
	second := internal.RunRow{
		ID:       uuid.NewString(),
		Identity: "abc123",
		Source:   "email:1",
		Status:   internal.RunSchemaError,
		CacheHit: true,
		Counts:   map[string]int{},
		Timings:  map[string]float64{},
		Report:   `{"missing":[]}`,
	}
	require.NoError(t, db.InsertRun(first, 0))
	require.NoError(t, db.InsertRun(second, email.ID))

	runs, err := db.ListRuns(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, internal.RunSchemaError, runs[0].Status)
	assert.True(t, runs[0].CacheHit)
	assert.Equal(t, `{"missing":[]}`, runs[0].Report)
	assert.Equal(t, first.Counts, runs[1].Counts)
	assert.Equal(t, first.Timings, runs[1].Timings)
	assert.NotEmpty(t, runs[1].CreatedAt)

	limited, err := db.ListRuns(1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMetadata(t *testing.T) {
	db := openTestDB(t)
	value, err := db.GetMetadata("last_identity")
	require.NoError(t, err)
	assert.Nil(t, value)

	require.NoError(t, db.SetMetadata("last_identity", "a"))
	require.NoError(t, db.SetMetadata("last_identity", "b"))
	value, err = db.GetMetadata("last_identity")
	require.NoError(t, err)
	require.NotNil(t, value)
	assert.Equal(t, "b", *value)
}
