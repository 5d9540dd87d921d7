package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/mailmirror/mailmirror/internal/utils"
)

// EmailAttachment is owned by exactly one email and is removed with it on
// permanent delete. Never shared between emails.
type EmailAttachment struct {
	ID          string `gorm:"column:id;type:varchar(50);primaryKey"`
	EmailID     string `gorm:"column:email_id;type:varchar(50);index;not null"`
	Filename    string `gorm:"column:filename;type:varchar(500)"`
	ContentType string `gorm:"column:content_type;type:varchar(255)"`
	ContentID   string `gorm:"column:content_id;type:varchar(255)"` // inline attachments
	Size        int    `gorm:"column:size;default:0"`
	IsInline    bool   `gorm:"column:is_inline;default:false"`

	// Where the bytes live: "local" paths are relative to the attachment
	// directory, "s3" keys are bucket-relative.
	StorageService string `gorm:"column:storage_service;type:varchar(50)"`
	StorageKey     string `gorm:"column:storage_key;type:varchar(1000)"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (EmailAttachment) TableName() string {
	return "email_attachments"
}

func (e *EmailAttachment) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("file", 12)
	}
	e.CreatedAt = utils.Now()
	return nil
}
