package enum

type EmailClassification string

const (
	EmailOK   EmailClassification = "ok"
	EmailSpam EmailClassification = "spam"
)

func (t EmailClassification) String() string {
	return string(t)
}

type EmailDirection string

const (
	EmailInbound  EmailDirection = "inbound"
	EmailOutbound EmailDirection = "outbound"
)

func (t EmailDirection) String() string {
	return string(t)
}

type EmailStatus string

const (
	EmailStatusReceived EmailStatus = "received"
	EmailStatusDraft    EmailStatus = "draft"
	EmailStatusSent     EmailStatus = "sent"
	EmailStatusFailed   EmailStatus = "failed"
)

func (t EmailStatus) String() string {
	return string(t)
}

type EmailSecurity string

const (
	EmailSecurityNone     EmailSecurity = "none"
	EmailSecuritySSL      EmailSecurity = "ssl"
	EmailSecurityTLS      EmailSecurity = "tls"
	EmailSecurityStartTLS EmailSecurity = "startTLS"
)

func (t EmailSecurity) String() string {
	return string(t)
}

type ConnectionStatus string

const (
	ConnectionActive    ConnectionStatus = "active"
	ConnectionNotActive ConnectionStatus = "not_active"
)

func (t ConnectionStatus) String() string {
	return string(t)
}
