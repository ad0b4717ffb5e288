package imap

import (
	"testing"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"

	"trialsnap/internal/config"
)

func TestNewConnectorRequiresCredentials(t *testing.T) {
	_, err := NewConnector(config.Config{IMAPHost: "mail.example.org"})
	assert.ErrorContains(t, err, "IMAP_USER")

	c, err := NewConnector(config.Config{IMAPHost: "mail.example.org", IMAPUser: "u", IMAPPassword: "p", IMAPPort: 993})
	assert.NoError(t, err)
	assert.Equal(t, 993, c.port)
}

func TestNewest(t *testing.T) {
	assert.Equal(t, []uint32{4, 5}, newest([]uint32{1, 2, 3, 4, 5}, 2))
	assert.Equal(t, []uint32{1, 2}, newest([]uint32{1, 2}, 5))
	assert.Equal(t, []uint32{1, 2}, newest([]uint32{1, 2}, 0))
}

func TestFormatAddresses(t *testing.T) {
	got := formatAddresses([]*imap.Address{
		{PersonalName: "Site Monitor", MailboxName: "monitor", HostName: "cro.example"},
		nil,
		{MailboxName: "noreply", HostName: "edc.example"},
	})
	assert.Equal(t, "Site Monitor <monitor@cro.example>, noreply@edc.example", got)
}
