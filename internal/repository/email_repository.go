package repository

import (
	"context"
	"errors"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/mailmirror/mailmirror/interfaces"
	"github.com/mailmirror/mailmirror/internal/models"
	"github.com/mailmirror/mailmirror/internal/tracing"
	"github.com/mailmirror/mailmirror/internal/utils"
)

type emailRepository struct {
	db *gorm.DB
}

func NewEmailRepository(db *gorm.DB) interfaces.EmailRepository {
	return &emailRepository{
		db: db,
	}
}

func (r *emailRepository) Create(ctx context.Context, email *models.Email) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	// Dedup by durable identity before insert; the unique indexes are the
	// backstop for concurrent writers.
	if email.MessageID != "" && !email.SyntheticID {
		existing := &models.Email{}
		err := r.db.WithContext(ctx).
			Where("message_id = ?", email.MessageID).
			First(existing).Error
		if err == nil {
			span.SetTag("duplicate", true)
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			tracing.TraceErr(span, err)
			return err
		}
	}

	result := r.db.WithContext(ctx).Create(email)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}

	return nil
}

func (r *emailRepository) GetByID(ctx context.Context, id string) (*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var email models.Email
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &email, nil
}

// GetByUID retrieves an email by its remote UID within an account folder
func (r *emailRepository) GetByUID(ctx context.Context, accountID, folder string, uid uint32) (*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.GetByUID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var email models.Email
	if err := r.db.WithContext(ctx).
		Where("account_id = ? AND folder = ? AND uid = ?", accountID, folder, uid).
		First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &email, nil
}

// GetByMessageID retrieves an email by its Message-ID header, regardless of folder
func (r *emailRepository) GetByMessageID(ctx context.Context, messageID string) (*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.GetByMessageID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var email models.Email
	if err := r.db.WithContext(ctx).Where("message_id = ?", messageID).First(&email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &email, nil
}

// HighestUID returns the incremental-sync watermark: the highest UID already
// stored for the account folder, 0 when the folder has never been synced.
func (r *emailRepository) HighestUID(ctx context.Context, accountID, folder string) (uint32, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.HighestUID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var maxUID uint32
	err := r.db.WithContext(ctx).
		Model(&models.Email{}).
		Where("account_id = ? AND folder = ?", accountID, folder).
		Select("COALESCE(MAX(uid), 0)").
		Scan(&maxUID).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return maxUID, nil
}

// ListByFolder lists non-deleted emails in a folder, newest first, with pagination
func (r *emailRepository) ListByFolder(ctx context.Context, accountID, folder string, limit, offset int) ([]*models.Email, int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.ListByFolder")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var emails []*models.Email
	var count int64

	query := r.db.WithContext(ctx).
		Model(&models.Email{}).
		Where("account_id = ? AND folder = ? AND is_deleted = ?", accountID, folder, false)

	if err := query.Count(&count).Error; err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}

	err := query.
		Order("sent_at DESC NULLS LAST").
		Limit(limit).
		Offset(offset).
		Find(&emails).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, 0, err
	}

	return emails, count, nil
}

// ListForThreading returns the full non-deleted message set of an account,
// oldest first, the working set the conversation threader operates on.
func (r *emailRepository) ListForThreading(ctx context.Context, accountID string) ([]*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.ListForThreading")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var emails []*models.Email
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND is_deleted = ?", accountID, false).
		Order("sent_at ASC NULLS LAST").
		Find(&emails).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return emails, nil
}

func (r *emailRepository) ListDeleted(ctx context.Context, accountID string) ([]*models.Email, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.ListDeleted")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var emails []*models.Email
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND is_deleted = ?", accountID, true).
		Order("deleted_at DESC").
		Find(&emails).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return emails, nil
}

func (r *emailRepository) Update(ctx context.Context, email *models.Email) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.Update")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	email.UpdatedAt = utils.Now()
	if err := r.db.WithContext(ctx).Save(email).Error; err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *emailRepository) SetThreadID(ctx context.Context, emailID, threadID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.SetThreadID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).
		Model(&models.Email{}).
		Where("id = ?", emailID).
		Updates(map[string]interface{}{"thread_id": threadID, "updated_at": utils.Now()}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// SetFolder records a server-side move: the row is updated in place, never
// re-created, so local state (flags, thread id) survives the move.
func (r *emailRepository) SetFolder(ctx context.Context, emailID, folder string, uid uint32) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.SetFolder")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).
		Model(&models.Email{}).
		Where("id = ?", emailID).
		Updates(map[string]interface{}{"folder": folder, "uid": uid, "updated_at": utils.Now()}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *emailRepository) SoftDelete(ctx context.Context, emailID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.SoftDelete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).
		Model(&models.Email{}).
		Where("id = ?", emailID).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": utils.Now(),
			"updated_at": utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *emailRepository) Restore(ctx context.Context, emailID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.Restore")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).
		Model(&models.Email{}).
		Where("id = ?", emailID).
		Updates(map[string]interface{}{
			"is_deleted": false,
			"deleted_at": (*time.Time)(nil),
			"updated_at": utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// HardDelete permanently removes the row and its attachments. Only the
// trash-empty and permanent-delete paths call this.
func (r *emailRepository) HardDelete(ctx context.Context, emailID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailRepository.HardDelete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email_id = ?", emailID).Delete(&models.EmailAttachment{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", emailID).Delete(&models.Email{}).Error
	})
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
