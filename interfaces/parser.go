package interfaces

import "time"

type AttachmentPart struct {
	Filename    string
	ContentType string
	ContentID   string
	IsInline    bool
	Content     []byte
}

// ParsedMessage is the envelope and content extracted from raw message
// bytes by the MIME parser collaborator. Message-IDs carry no angle
// brackets.
type ParsedMessage struct {
	MessageID   string
	InReplyTo   string
	References  []string
	Subject     string
	FromAddress string
	FromName    string
	ToAddresses []string
	CcAddresses []string
	Date        *time.Time
	BodyText    string
	BodyHTML    string
	RawHeaders  map[string]interface{}
	Attachments []AttachmentPart
}

type MessageParser interface {
	Parse(raw []byte) (*ParsedMessage, error)
}
