package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const simpleMessage = "Message-ID: <abc123@example.com>\r\n" +
	"In-Reply-To: <parent@example.com>\r\n" +
	"References: <root@example.com> <parent@example.com>\r\n" +
	"Subject: Re: Quarterly report\r\n" +
	"From: Jane Doe <jane@example.com>\r\n" +
	"To: bob@example.com, carol@example.com\r\n" +
	"Cc: bob@example.com\r\n" +
	"Date: Mon, 02 Jun 2025 10:30:00 +0000\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"See attached numbers.\r\n"

func TestParse_Envelope(t *testing.T) {
	parsed, err := NewMessageParser().Parse([]byte(simpleMessage))
	require.NoError(t, err)

	assert.Equal(t, "abc123@example.com", parsed.MessageID)
	assert.Equal(t, "parent@example.com", parsed.InReplyTo)
	assert.Equal(t, []string{"root@example.com", "parent@example.com"}, parsed.References)
	assert.Equal(t, "Re: Quarterly report", parsed.Subject)
	assert.Equal(t, "jane@example.com", parsed.FromAddress)
	assert.Equal(t, "Jane Doe", parsed.FromName)
	assert.Equal(t, []string{"bob@example.com", "carol@example.com"}, parsed.ToAddresses)
	assert.Equal(t, []string{"bob@example.com"}, parsed.CcAddresses)
	require.NotNil(t, parsed.Date)
	assert.Equal(t, 2025, parsed.Date.Year())
	assert.Contains(t, parsed.BodyText, "See attached numbers.")
}

func TestParse_MissingMessageID(t *testing.T) {
	raw := "Subject: hello\r\n" +
		"From: someone@example.com\r\n" +
		"\r\n" +
		"body\r\n"

	parsed, err := NewMessageParser().Parse([]byte(raw))
	require.NoError(t, err)
	assert.Empty(t, parsed.MessageID)
	assert.Empty(t, parsed.InReplyTo)
	assert.Empty(t, parsed.References)
}

func TestParse_MultipartWithAttachment(t *testing.T) {
	raw := strings.Join([]string{
		"Message-ID: <mp@example.com>",
		"Subject: invoice",
		"From: billing@example.com",
		"To: me@example.com",
		"MIME-Version: 1.0",
		"Content-Type: multipart/mixed; boundary=\"XYZ\"",
		"",
		"--XYZ",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Invoice attached.",
		"--XYZ",
		"Content-Type: application/pdf; name=\"invoice.pdf\"",
		"Content-Disposition: attachment; filename=\"invoice.pdf\"",
		"Content-Transfer-Encoding: base64",
		"",
		"JVBERi0xLjQK",
		"--XYZ--",
		"",
	}, "\r\n")

	parsed, err := NewMessageParser().Parse([]byte(raw))
	require.NoError(t, err)

	require.Len(t, parsed.Attachments, 1)
	assert.Equal(t, "invoice.pdf", parsed.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", parsed.Attachments[0].ContentType)
	assert.False(t, parsed.Attachments[0].IsInline)
	assert.NotEmpty(t, parsed.Attachments[0].Content)
	assert.Contains(t, parsed.BodyText, "Invoice attached.")
}
