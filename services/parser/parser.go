package parser

import (
	"bytes"
	"net/mail"
	"strings"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/jhillyerd/enmime"

	"github.com/mailmirror/mailmirror/interfaces"
	mmerrors "github.com/mailmirror/mailmirror/internal/errors"
	"github.com/mailmirror/mailmirror/internal/utils"
)

type enmimeParser struct{}

func NewMessageParser() interfaces.MessageParser {
	return &enmimeParser{}
}

func (p *enmimeParser) Parse(raw []byte) (*interfaces.ParsedMessage, error) {
	envelope, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, mmerrors.Parse(err)
	}

	parsed := &interfaces.ParsedMessage{
		MessageID: strings.Trim(envelope.GetHeader("Message-Id"), "<> "),
		Subject:   envelope.GetHeader("Subject"),
		BodyText:  envelope.Text,
		BodyHTML:  envelope.HTML,
	}

	// In-Reply-To may carry several IDs; the first is the direct parent.
	inReplyToRefs := utils.SplitReferences(envelope.GetHeader("In-Reply-To"))
	if len(inReplyToRefs) > 0 {
		parsed.InReplyTo = inReplyToRefs[0]
	}
	parsed.References = utils.SplitReferences(envelope.GetHeader("References"))

	processFrom(parsed, envelope)
	parsed.ToAddresses = cleanAddressList(envelope, "To")
	parsed.CcAddresses = cleanAddressList(envelope, "Cc")

	if dateHeader := envelope.GetHeader("Date"); dateHeader != "" {
		if date, derr := mail.ParseDate(dateHeader); derr == nil && !date.IsZero() {
			d := date.UTC()
			parsed.Date = &d
		}
	}

	headers := make(map[string]interface{})
	for _, key := range envelope.GetHeaderKeys() {
		values := envelope.GetHeaderValues(key)
		if len(values) > 0 {
			headers[key] = values
		}
	}
	parsed.RawHeaders = headers

	for _, attachment := range envelope.Attachments {
		parsed.Attachments = append(parsed.Attachments, interfaces.AttachmentPart{
			Filename:    attachment.FileName,
			ContentType: attachment.ContentType,
			IsInline:    false,
			Content:     attachment.Content,
		})
	}
	for _, inline := range envelope.Inlines {
		parsed.Attachments = append(parsed.Attachments, interfaces.AttachmentPart{
			Filename:    inline.FileName,
			ContentType: inline.ContentType,
			ContentID:   inline.ContentID,
			IsInline:    true,
			Content:     inline.Content,
		})
	}

	return parsed, nil
}

func processFrom(parsed *interfaces.ParsedMessage, envelope *enmime.Envelope) {
	addresses, err := envelope.AddressList("From")
	if err != nil || len(addresses) == 0 {
		return
	}
	sender := addresses[0]
	parsed.FromName = sender.Name

	syntaxValidation := mailvalidate.ValidateEmailSyntax(sender.Address)
	if syntaxValidation.IsValid {
		parsed.FromAddress = syntaxValidation.CleanEmail
	} else {
		parsed.FromAddress = strings.ToLower(strings.TrimSpace(sender.Address))
	}
}

func cleanAddressList(envelope *enmime.Envelope, header string) []string {
	addresses, err := envelope.AddressList(header)
	if err != nil || len(addresses) == 0 {
		return nil
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		validation := mailvalidate.ValidateEmailSyntax(addr.Address)
		if validation.IsValid {
			result = append(result, validation.CleanEmail)
		}
	}
	return utils.UniqueEmails(result)
}
