package connectors

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jhillyerd/enmime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trialsnap/internal"
	"trialsnap/internal/storage"
)

func mkEML(t *testing.T, messageID string, attachments map[string][]byte) []byte {
	t.Helper()
	b := enmime.Builder().
		From("Site Monitor", "monitor@cro.example").
		To("Data Desk", "desk@sponsor.example").
		Subject("Weekly trial reports").
		Date(time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)).
		Header("Message-ID", messageID).
		Text([]byte("reports attached"))
	for name, data := range attachments {
		b = b.AddAttachment(data, "application/octet-stream", name)
	}
	part, err := b.Build()
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, part.Encode(&buf))
	return buf.Bytes()
}

type fakeConnector struct {
	messages []internal.FetchedMailMessage
	err      error
}

func (f fakeConnector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	return f.messages, f.err
}

func TestIsReportAttachment(t *testing.T) {
	for _, name := range []string{"schedule.xlsx", "ASSETS.CSV", "forms.xls", "export.html"} {
		assert.True(t, IsReportAttachment(name), name)
	}
	for _, name := range []string{"protocol.pdf", "logo.png", ""} {
		assert.False(t, IsReportAttachment(name), name)
	}
}

func TestMessageFromRaw(t *testing.T) {
	raw := mkEML(t, "<weekly-1@cro.example>", map[string][]byte{"schedule.csv": []byte("Site,Subject\nA,1\n")})
	msg, err := MessageFromRaw("imap", "imap-7", raw)
	require.NoError(t, err)
	assert.Equal(t, "<weekly-1@cro.example>", msg.MessageID)
	assert.Equal(t, "Weekly trial reports", msg.Subject)
	assert.Contains(t, msg.From, "monitor@cro.example")
	assert.Equal(t, "2024-03-04T09:30:00Z", msg.ReceivedAt)

	names, err := ReportAttachments(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"schedule.csv"}, names)
}

func TestFetchAndStore(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "app.db"))
	require.NoError(t, err)
	defer db.Close()

	withReport := mkEML(t, "<a@cro.example>", map[string][]byte{"assets.csv": []byte("Site\nA\n")})
	withoutReport := mkEML(t, "<b@cro.example>", map[string][]byte{"notes.pdf": []byte("%PDF-1.4")})
	conn := fakeConnector{messages: []internal.FetchedMailMessage{
		{Provider: "imap", MessageID: "<a@cro.example>", Subject: "reports", ReceivedAt: "2024-03-04T09:30:00Z", Raw: withReport},
		{Provider: "imap", MessageID: "<b@cro.example>", Raw: withoutReport},
	}}

	svc := NewFetchService(db, filepath.Join(dir, "raw"), conn, nil)
	result, err := svc.FetchAndStore(context.Background(), "imap", "INBOX", 10)
	require.NoError(t, err)
	assert.Equal(t, FetchResult{Fetched: 2, Stored: 1, Ignored: 1}, result)

	rows, err := db.ListEmailsByStatus(EmailFetched, "imap", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	stored, err := NewMailStoreService(db, filepath.Join(dir, "raw")).Load(rows[0])
	require.NoError(t, err)
	assert.Equal(t, withReport, stored)
	_, err = os.Stat(rows[0].RawRef)
	assert.NoError(t, err)

	last, err := db.GetMetadata("mail_last_fetch:imap")
	require.NoError(t, err)
	assert.NotNil(t, last)
}

func TestFetchAndStorePropagatesConnectorError(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	require.NoError(t, err)
	defer db.Close()

	svc := NewFetchService(db, t.TempDir(), fakeConnector{err: errors.New("auth failed")}, nil)
	_, err = svc.FetchAndStore(context.Background(), "gmail", "INBOX", 10)
	assert.ErrorContains(t, err, "auth failed")
}
