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

type folderRepository struct {
	db *gorm.DB
}

func NewFolderRepository(db *gorm.DB) interfaces.FolderRepository {
	return &folderRepository{
		db: db,
	}
}

// Upsert creates the folder row or refreshes its remote metadata
// (delimiter, flags, parent) without touching the sync watermark.
func (r *folderRepository) Upsert(ctx context.Context, folder *models.Folder) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderRepository.Upsert")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var existing models.Folder
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND name = ?", folder.AccountID, folder.Name).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := r.db.WithContext(ctx).Create(folder).Error; err != nil {
			tracing.TraceErr(span, err)
			return err
		}
		return nil
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	err = r.db.WithContext(ctx).
		Model(&existing).
		Updates(map[string]interface{}{
			"delimiter":  folder.Delimiter,
			"flags":      folder.Flags,
			"parent_id":  folder.ParentID,
			"updated_at": utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	folder.ID = existing.ID
	return nil
}

func (r *folderRepository) GetByName(ctx context.Context, accountID, name string) (*models.Folder, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderRepository.GetByName")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var folder models.Folder
	if err := r.db.WithContext(ctx).
		Where("account_id = ? AND name = ?", accountID, name).
		First(&folder).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &folder, nil
}

func (r *folderRepository) ListByAccount(ctx context.Context, accountID string) ([]*models.Folder, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderRepository.ListByAccount")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	var folders []*models.Folder
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("name ASC").
		Find(&folders).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return folders, nil
}

// UpdateLastSync advances the display watermark. It never moves backwards,
// so a stale writer cannot regress a newer run's progress.
func (r *folderRepository) UpdateLastSync(ctx context.Context, accountID, name string, at time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderRepository.UpdateLastSync")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).
		Model(&models.Folder{}).
		Where("account_id = ? AND name = ? AND (last_sync_at IS NULL OR last_sync_at <= ?)", accountID, name, at).
		Updates(map[string]interface{}{"last_sync_at": at, "updated_at": utils.Now()}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *folderRepository) UpdateCounts(ctx context.Context, accountID, name string, unread, total int) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "folderRepository.UpdateCounts")
	defer span.Finish()
	tracing.TagComponentPostgresRepository(span)

	err := r.db.WithContext(ctx).
		Model(&models.Folder{}).
		Where("account_id = ? AND name = ?", accountID, name).
		Updates(map[string]interface{}{
			"unread_count": unread,
			"total_count":  total,
			"updated_at":   utils.Now(),
		}).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
