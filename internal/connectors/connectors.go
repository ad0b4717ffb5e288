package connectors

import (
	"bytes"
	"context"
	"net/mail"
	"path/filepath"
	"strings"
	"time"

	"github.com/jhillyerd/enmime"

	"trialsnap/internal"
	"trialsnap/internal/util"
)

type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

var reportExtensions = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".xls":  true,
	".csv":  true,
	".htm":  true,
	".html": true,
}

// IsReportAttachment reports whether a file name looks like a tabular report export.
func IsReportAttachment(name string) bool {
	return reportExtensions[strings.ToLower(filepath.Ext(strings.TrimSpace(name)))]
}

// ReportAttachments lists the attachment names of a raw message that could
// hold a report.
func ReportAttachments(raw []byte) ([]string, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	var names []string
	for _, part := range append(env.Attachments, env.Inlines...) {
		if IsReportAttachment(part.FileName) {
			names = append(names, part.FileName)
		}
	}
	return names, nil
}

// MessageFromRaw fills the routing fields of a fetched message from its own
// headers. fallbackID is used when the message carries no Message-ID.
func MessageFromRaw(provider, fallbackID string, raw []byte) (internal.FetchedMailMessage, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return internal.FetchedMailMessage{}, err
	}

	msg := internal.FetchedMailMessage{
		Provider:   provider,
		MessageID:  strings.TrimSpace(util.FirstNonEmpty(env.GetHeader("Message-ID"), fallbackID)),
		Subject:    env.GetHeader("Subject"),
		From:       env.GetHeader("From"),
		ReceivedAt: time.Now().UTC().Format(time.RFC3339),
		Raw:        raw,
	}
	if date := env.GetHeader("Date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			msg.ReceivedAt = t.UTC().Format(time.RFC3339)
		}
	}
	return msg, nil
}
