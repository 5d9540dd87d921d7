package repository

import (
	"context"
	"errors"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/mailmirror/mailmirror/interfaces"
	mmerrors "github.com/mailmirror/mailmirror/internal/errors"
	"github.com/mailmirror/mailmirror/internal/models"
	"github.com/mailmirror/mailmirror/internal/tracing"
	"github.com/mailmirror/mailmirror/internal/utils"
)

type accountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) interfaces.AccountRepository {
	return &accountRepository{
		db: db,
	}
}

func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.Create")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing := &models.Account{}
		err := tx.Where("email_address = ?", account.EmailAddress).First(existing).Error
		if err == nil {
			return mmerrors.ErrAccountExists
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			tracing.TraceErr(span, err)
			return err
		}

		// First account becomes the default.
		var count int64
		if err := tx.Model(&models.Account{}).Count(&count).Error; err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		if count == 0 {
			account.IsDefault = true
		}

		if account.IsDefault {
			if err := tx.Model(&models.Account{}).
				Where("is_default = ?", true).
				Update("is_default", false).Error; err != nil {
				tracing.TraceErr(span, err)
				return err
			}
		}

		if err := tx.Create(account).Error; err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		return nil
	})
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.GetByID")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var account models.Account
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) GetByEmailAddress(ctx context.Context, address string) (*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.GetByEmailAddress")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var account models.Account
	if err := r.db.WithContext(ctx).Where("email_address = ?", address).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) GetDefault(ctx context.Context) (*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.GetDefault")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var account models.Account
	if err := r.db.WithContext(ctx).Where("is_default = ?", true).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) ListEnabled(ctx context.Context) ([]*models.Account, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.ListEnabled")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var accounts []*models.Account
	err := r.db.WithContext(ctx).
		Where("is_enabled = ?", true).
		Order("created_at ASC").
		Find(&accounts).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return accounts, nil
}

// SetDefault makes the given account the single default.
func (r *accountRepository) SetDefault(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.SetDefault")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Account{}).
			Where("is_default = ?", true).
			Update("is_default", false).Error; err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		result := tx.Model(&models.Account{}).Where("id = ?", id).Update("is_default", true)
		if result.Error != nil {
			tracing.TraceErr(span, result.Error)
			return result.Error
		}
		if result.RowsAffected == 0 {
			return mmerrors.ErrAccountNotFound
		}
		return nil
	})
}

// Delete removes an account. Deleting the only account is refused; deleting
// the default promotes the oldest remaining account.
func (r *accountRepository) Delete(ctx context.Context, id string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.Delete")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var account models.Account
		if err := tx.Where("id = ?", id).First(&account).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return mmerrors.ErrAccountNotFound
			}
			tracing.TraceErr(span, err)
			return err
		}

		var count int64
		if err := tx.Model(&models.Account{}).Count(&count).Error; err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		if count <= 1 {
			return mmerrors.ErrLastAccount
		}

		if err := tx.Delete(&account).Error; err != nil {
			tracing.TraceErr(span, err)
			return err
		}

		if account.IsDefault {
			var next models.Account
			if err := tx.Order("created_at ASC").First(&next).Error; err != nil {
				tracing.TraceErr(span, err)
				return err
			}
			if err := tx.Model(&next).Update("is_default", true).Error; err != nil {
				tracing.TraceErr(span, err)
				return err
			}
		}
		return nil
	})
}

func (r *accountRepository) UpdateLastSync(ctx context.Context, id string, at time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.UpdateLastSync")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"last_sync_at": at, "updated_at": utils.Now()}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *accountRepository) UpdateConnectionStatus(ctx context.Context, id string, status string, errorMessage string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "accountRepository.UpdateConnectionStatus")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"connection_status": status,
			"error_message":     errorMessage,
			"updated_at":        utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
