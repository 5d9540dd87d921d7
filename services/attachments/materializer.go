package attachments

import (
	"context"
	"fmt"
	"log"

	"github.com/opentracing/opentracing-go"

	"github.com/mailmirror/mailmirror/interfaces"
	"github.com/mailmirror/mailmirror/internal/models"
	"github.com/mailmirror/mailmirror/internal/tracing"
	"github.com/mailmirror/mailmirror/internal/utils"
)

// Materializer stores attachment bytes and records one row per part. A
// failing part is logged and skipped; the remaining parts still land.
type Materializer struct {
	storage        interfaces.AttachmentStorage
	attachmentRepo interfaces.EmailAttachmentRepository
}

func NewMaterializer(storage interfaces.AttachmentStorage, attachmentRepo interfaces.EmailAttachmentRepository) *Materializer {
	return &Materializer{
		storage:        storage,
		attachmentRepo: attachmentRepo,
	}
}

// Materialize persists every attachment part of an email. The returned
// count is the number of parts successfully stored.
func (m *Materializer) Materialize(ctx context.Context, email *models.Email, parts []interfaces.AttachmentPart) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Materializer.Materialize")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("email.id", email.ID)
	span.SetTag("parts", len(parts))

	stored := 0
	for _, part := range parts {
		if err := m.materializePart(ctx, email, part); err != nil {
			tracing.TraceErr(span, err)
			log.Printf("[%s][%s] failed to store attachment %s: %v", email.AccountID, email.Folder, part.Filename, err)
			continue
		}
		stored++
	}
	return stored, nil
}

func (m *Materializer) materializePart(ctx context.Context, email *models.Email, part interfaces.AttachmentPart) error {
	filename := utils.SanitizeFilename(part.Filename)
	// Prefix with the email ID so equal filenames from different emails
	// never collide.
	key := fmt.Sprintf("%s/%s_%s", email.AccountID, email.ID, filename)

	if err := m.storage.Upload(ctx, key, part.Content, part.ContentType); err != nil {
		return err
	}

	attachment := &models.EmailAttachment{
		EmailID:        email.ID,
		Filename:       filename,
		ContentType:    part.ContentType,
		ContentID:      part.ContentID,
		Size:           len(part.Content),
		IsInline:       part.IsInline,
		StorageService: m.storage.ServiceName(),
		StorageKey:     key,
	}
	return m.attachmentRepo.Create(ctx, attachment)
}

// Purge removes the stored bytes and rows for every attachment of an
// email. Used on permanent delete.
func (m *Materializer) Purge(ctx context.Context, emailID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Materializer.Purge")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("email.id", emailID)

	attachments, err := m.attachmentRepo.ListByEmail(ctx, emailID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	for _, attachment := range attachments {
		if err := m.storage.Delete(ctx, attachment.StorageKey); err != nil {
			tracing.TraceErr(span, err)
			log.Printf("failed to delete stored attachment %s: %v", attachment.StorageKey, err)
		}
	}
	return m.attachmentRepo.DeleteByEmail(ctx, emailID)
}
