package email

import (
	"context"
	"log"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mailmirror/mailmirror/interfaces"
	"github.com/mailmirror/mailmirror/internal/enum"
	mmerrors "github.com/mailmirror/mailmirror/internal/errors"
	"github.com/mailmirror/mailmirror/internal/models"
	"github.com/mailmirror/mailmirror/internal/tracing"
	"github.com/mailmirror/mailmirror/internal/utils"
	"github.com/mailmirror/mailmirror/services/attachments"
	"github.com/mailmirror/mailmirror/services/smtp"
)

const sentFolder = "Sent"

// Service implements user-facing mailbox operations on mirrored
// messages: flags, moves, the two-tier delete model, and outbound send.
// Soft delete is a flag flip; rows are only removed by EmptyTrash and
// PermanentDelete.
type Service struct {
	emailRepo     interfaces.EmailRepository
	accountRepo   interfaces.AccountRepository
	clientFactory interfaces.MailClientFactory
	materializer  *attachments.Materializer
}

func NewService(
	emailRepo interfaces.EmailRepository,
	accountRepo interfaces.AccountRepository,
	clientFactory interfaces.MailClientFactory,
	materializer *attachments.Materializer,
) *Service {
	return &Service{
		emailRepo:     emailRepo,
		accountRepo:   accountRepo,
		clientFactory: clientFactory,
		materializer:  materializer,
	}
}

func (s *Service) MarkRead(ctx context.Context, emailID string, read bool) error {
	return s.setFlag(ctx, emailID, func(email *models.Email) { email.IsRead = read })
}

func (s *Service) Star(ctx context.Context, emailID string, starred bool) error {
	return s.setFlag(ctx, emailID, func(email *models.Email) { email.IsStarred = starred })
}

func (s *Service) MarkImportant(ctx context.Context, emailID string, important bool) error {
	return s.setFlag(ctx, emailID, func(email *models.Email) { email.IsImportant = important })
}

func (s *Service) setFlag(ctx context.Context, emailID string, apply func(*models.Email)) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Service.setFlag")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("email.id", emailID)

	email, err := s.emailRepo.GetByID(ctx, emailID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if email == nil {
		return errors.New("email not found")
	}
	apply(email)
	return s.emailRepo.Update(ctx, email)
}

// Move relocates a message on the server and updates the stored row in
// place. The row keeps its identity but drops its UID to 0, leaving the
// target folder's uid space and watermark untouched until the next sync
// of that folder matches the row by message id and assigns the
// server-side UID.
func (s *Service) Move(ctx context.Context, emailID, targetFolder string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Service.Move")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("email.id", emailID)
	tracing.TagFolder(span, targetFolder)

	email, err := s.emailRepo.GetByID(ctx, emailID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if email == nil {
		return errors.New("email not found")
	}
	if email.Folder == targetFolder {
		return nil
	}

	client, err := s.openClient(ctx, email.AccountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	defer client.Disconnect()

	if _, err := client.OpenFolder(ctx, email.Folder, false); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err := client.Move(ctx, []uint32{email.UID}, targetFolder); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return s.emailRepo.SetFolder(ctx, emailID, targetFolder, 0)
}

// SoftDelete flips the deletion flag; the row and its attachments stay.
func (s *Service) SoftDelete(ctx context.Context, emailID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Service.SoftDelete")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("email.id", emailID)

	return s.emailRepo.SoftDelete(ctx, emailID)
}

func (s *Service) Restore(ctx context.Context, emailID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Service.Restore")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("email.id", emailID)

	return s.emailRepo.Restore(ctx, emailID)
}

// PermanentDelete removes the message from the server, its stored
// attachments, and the row itself. One of the two hard-delete paths.
func (s *Service) PermanentDelete(ctx context.Context, emailID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Service.PermanentDelete")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("email.id", emailID)

	email, err := s.emailRepo.GetByID(ctx, emailID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if email == nil {
		return nil
	}

	client, err := s.openClient(ctx, email.AccountID)
	if err != nil {
		tracing.TraceErr(span, err)
		log.Printf("[%s] remote delete skipped for %s: %v", email.AccountID, emailID, err)
	} else {
		defer client.Disconnect()
		if _, err := client.OpenFolder(ctx, email.Folder, false); err == nil {
			if err := client.Delete(ctx, []uint32{email.UID}); err != nil {
				tracing.TraceErr(span, err)
				log.Printf("[%s][%s] remote delete failed for uid %d: %v", email.AccountID, email.Folder, email.UID, err)
			}
		}
	}

	if s.materializer != nil {
		if err := s.materializer.Purge(ctx, emailID); err != nil {
			tracing.TraceErr(span, err)
			return err
		}
	}
	return s.emailRepo.HardDelete(ctx, emailID)
}

// EmptyTrash hard-deletes every soft-deleted message of an account.
func (s *Service) EmptyTrash(ctx context.Context, accountID string) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Service.EmptyTrash")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	deleted, err := s.emailRepo.ListDeleted(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}

	removed := 0
	for _, email := range deleted {
		if err := s.PermanentDelete(ctx, email.ID); err != nil {
			tracing.TraceErr(span, err)
			log.Printf("[%s] failed to purge %s: %v", accountID, email.ID, err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Send submits an outbound message over the account's SMTP endpoint,
// appends the wire bytes to the Sent folder, and stores the sent row.
func (s *Service) Send(ctx context.Context, accountID string, email *models.Email, parts []interfaces.AttachmentPart) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Service.Send")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if account == nil {
		return mmerrors.ErrAccountNotFound
	}

	rawMessage, err := smtp.NewClient(account).Send(ctx, email, parts)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	email.AccountID = account.ID
	email.Folder = sentFolder
	// UID stays 0 until the Sent folder sync assigns the server identity.
	email.UID = 0
	email.IsRead = true
	email.CleanSubject = utils.NormalizeEmailSubject(email.Subject)
	email.Classification = enum.EmailOK
	if err := s.emailRepo.Create(ctx, email); err != nil {
		tracing.TraceErr(span, err)
		return mmerrors.Storage(err)
	}

	if len(parts) > 0 && s.materializer != nil {
		if _, err := s.materializer.Materialize(ctx, email, parts); err != nil {
			tracing.TraceErr(span, err)
		}
	}

	// Best effort; the message is already accepted by the SMTP server.
	client, err := s.openClient(ctx, account.ID)
	if err != nil {
		tracing.TraceErr(span, err)
		log.Printf("[%s] sent-folder append skipped: %v", account.ID, err)
		return nil
	}
	defer client.Disconnect()
	if err := client.Append(ctx, sentFolder, rawMessage, []string{"\\Seen"}); err != nil {
		tracing.TraceErr(span, err)
		log.Printf("[%s] sent-folder append failed: %v", account.ID, err)
	}
	return nil
}

func (s *Service) openClient(ctx context.Context, accountID string) (interfaces.MailClient, error) {
	client, err := s.clientFactory.NewClient(accountID)
	if err != nil {
		return nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return client, nil
}
