package smtp

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/customeros/mailsherpa/mailvalidate"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mailmirror/mailmirror/interfaces"
	"github.com/mailmirror/mailmirror/internal/enum"
	"github.com/mailmirror/mailmirror/internal/models"
	"github.com/mailmirror/mailmirror/internal/tracing"
	"github.com/mailmirror/mailmirror/internal/utils"
)

// Client submits outbound mail over the account's SMTP endpoint. The
// built message bytes are returned to the caller so the same bytes can
// be appended to the Sent folder afterwards.
type Client struct {
	account *models.Account
}

func NewClient(account *models.Account) *Client {
	return &Client{account: account}
}

// Send validates and submits the email. On success the email's status
// and sent time are set on the model; persisting them is the caller's
// responsibility. The returned bytes are the exact wire message.
func (s *Client) Send(ctx context.Context, email *models.Email, attachments []interfaces.AttachmentPart) ([]byte, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Client.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, s.account.ID)

	if err := s.validateEmail(ctx, email); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	recipients, buffer, err := s.prepareMessage(ctx, email, attachments)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	if err := s.sendToServer(ctx, email.FromAddress, recipients, buffer); err != nil {
		tracing.TraceErr(span, err)
		email.Status = enum.EmailStatusFailed
		return nil, err
	}

	email.SentAt = utils.NowPtr()
	email.Status = enum.EmailStatusSent
	email.Direction = enum.EmailOutbound
	return buffer.Bytes(), nil
}

func (s *Client) validateEmail(ctx context.Context, email *models.Email) error {
	if email == nil {
		return errors.New("email cannot be nil")
	}

	if email.FromAddress == "" {
		email.FromAddress = s.account.EmailAddress
	}
	validation := mailvalidate.ValidateEmailSyntax(email.FromAddress)
	if !validation.IsValid {
		return errors.New("from address is not valid")
	}
	email.FromAddress = validation.CleanEmail

	if len(email.ToAddresses) == 0 {
		return errors.New("at least one recipient is required")
	}
	if email.BodyText == "" && email.BodyHTML == "" {
		return errors.New("email must have either text or HTML content")
	}
	if email.Subject == "" {
		return errors.New("email must have a subject")
	}

	if email.MessageID == "" {
		domain := utils.ExtractDomainFromEmail(email.FromAddress)
		email.MessageID = utils.GenerateMessageID(domain, "")
	}
	return nil
}

func (s *Client) prepareMessage(ctx context.Context, email *models.Email, attachments []interfaces.AttachmentPart) ([]string, *bytes.Buffer, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "Client.prepareMessage")
	defer span.Finish()

	buffer := bytes.NewBuffer(nil)
	headers := s.buildHeaders(email)
	tracing.LogObjectAsJson(span, "headers", headers)

	var err error
	if email.BodyHTML != "" || len(attachments) > 0 {
		err = s.buildMultipartMessage(email, headers, attachments, buffer)
	} else {
		err = s.buildPlainTextMessage(email, headers, buffer)
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, nil, err
	}

	rawHeaders := make(models.JSONMap)
	for k, v := range headers {
		rawHeaders[k] = v
	}
	email.RawHeaders = rawHeaders

	recipients := append([]string{}, email.ToAddresses...)
	recipients = append(recipients, email.CcAddresses...)
	return utils.UniqueEmails(recipients), buffer, nil
}

func (s *Client) buildHeaders(email *models.Email) map[string]string {
	headers := map[string]string{
		"From":         formatFrom(email),
		"To":           strings.Join(email.ToAddresses, ", "),
		"Subject":      email.Subject,
		"Message-ID":   fmt.Sprintf("<%s>", email.MessageID),
		"Date":         time.Now().UTC().Format(time.RFC1123Z),
		"MIME-Version": "1.0",
	}
	if len(email.CcAddresses) > 0 {
		headers["Cc"] = strings.Join(email.CcAddresses, ", ")
	}
	if email.InReplyTo != "" {
		headers["In-Reply-To"] = fmt.Sprintf("<%s>", email.InReplyTo)
	}
	if len(email.References) > 0 {
		refs := make([]string, 0, len(email.References))
		for _, ref := range email.References {
			refs = append(refs, fmt.Sprintf("<%s>", ref))
		}
		headers["References"] = strings.Join(refs, " ")
	}
	return headers
}

func formatFrom(email *models.Email) string {
	if email.FromName != "" {
		return fmt.Sprintf("%s <%s>", email.FromName, email.FromAddress)
	}
	return email.FromAddress
}

func (s *Client) buildMultipartMessage(email *models.Email, headers map[string]string, attachments []interfaces.AttachmentPart, buffer *bytes.Buffer) error {
	writer := multipart.NewWriter(buffer)
	headers["Content-Type"] = "multipart/mixed; boundary=" + writer.Boundary()

	writeHeaders(headers, buffer)

	if email.BodyText != "" {
		if err := addPart(writer, "text/plain; charset=UTF-8", []byte(email.BodyText)); err != nil {
			return err
		}
	}
	if email.BodyHTML != "" {
		if err := addPart(writer, "text/html; charset=UTF-8", []byte(email.BodyHTML)); err != nil {
			return err
		}
	}
	for _, attachment := range attachments {
		if err := addAttachment(writer, attachment); err != nil {
			return err
		}
	}
	return writer.Close()
}

func (s *Client) buildPlainTextMessage(email *models.Email, headers map[string]string, buffer *bytes.Buffer) error {
	headers["Content-Type"] = "text/plain; charset=UTF-8"
	writeHeaders(headers, buffer)
	_, err := buffer.WriteString(email.BodyText)
	return err
}

func writeHeaders(headers map[string]string, buffer *bytes.Buffer) {
	for k, v := range headers {
		buffer.WriteString(fmt.Sprintf("%s: %s\r\n", k, v))
	}
	buffer.WriteString("\r\n")
}

func addPart(writer *multipart.Writer, contentType string, content []byte) error {
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {contentType},
		"Content-Transfer-Encoding": {"quoted-printable"},
	})
	if err != nil {
		return fmt.Errorf("failed to create part: %w", err)
	}
	if _, err = part.Write(content); err != nil {
		return fmt.Errorf("failed to write part content: %w", err)
	}
	return nil
}

func addAttachment(writer *multipart.Writer, attachment interfaces.AttachmentPart) error {
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {fmt.Sprintf("%s; name=%q", attachment.ContentType, attachment.Filename)},
		"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", attachment.Filename)},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return fmt.Errorf("failed to create attachment part: %w", err)
	}
	if _, err = part.Write(attachment.Content); err != nil {
		return fmt.Errorf("failed to write attachment content: %w", err)
	}
	return nil
}

func (s *Client) sendToServer(ctx context.Context, from string, recipients []string, buffer *bytes.Buffer) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Client.sendToServer")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	addr := fmt.Sprintf("%s:%d", s.account.SmtpServer, s.account.SmtpPort)
	auth := smtp.PlainAuth("", s.account.SmtpUsername, s.account.SmtpPassword, s.account.SmtpServer)

	var err error
	switch s.account.SmtpSecurity {
	case enum.EmailSecuritySSL, enum.EmailSecurityTLS:
		err = s.sendWithExplicitTLS(ctx, addr, auth, from, recipients, buffer)
	case enum.EmailSecurityStartTLS:
		err = s.sendWithSTARTTLS(ctx, addr, auth, from, recipients, buffer)
	default:
		err = smtp.SendMail(addr, auth, from, recipients, buffer.Bytes())
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func (s *Client) sendWithSTARTTLS(ctx context.Context, addr string, auth smtp.Auth, from string, recipients []string, buffer *bytes.Buffer) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "Client.sendWithSTARTTLS")
	defer span.Finish()
	span.LogKV("smtp_server", s.account.SmtpServer)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.account.SmtpServer)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if err = client.StartTLS(&tls.Config{ServerName: s.account.SmtpServer}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}
	if err = client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	return submit(client, from, recipients, buffer)
}

func (s *Client) sendWithExplicitTLS(ctx context.Context, addr string, auth smtp.Auth, from string, recipients []string, buffer *bytes.Buffer) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "Client.sendWithExplicitTLS")
	defer span.Finish()
	span.LogKV("address", addr)

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.account.SmtpServer})
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.account.SmtpServer)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	if err = client.Auth(auth); err != nil {
		return fmt.Errorf("SMTP authentication failed: %w", err)
	}
	return submit(client, from, recipients, buffer)
}

func submit(client *smtp.Client, from string, recipients []string, buffer *bytes.Buffer) error {
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("SMTP MAIL command failed: %w", err)
	}
	for _, recipient := range recipients {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("SMTP RCPT command failed for %s: %w", recipient, err)
		}
	}

	dataWriter, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA command failed: %w", err)
	}
	if _, err = dataWriter.Write(buffer.Bytes()); err != nil {
		return fmt.Errorf("failed to write email data: %w", err)
	}
	if err = dataWriter.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}
	return client.Quit()
}
