package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/mailmirror/mailmirror/internal/utils"
)

// Folder mirrors a remote mailbox container. LastSyncAt is the display
// watermark: it only moves forward and is never written by a failed run.
// The fetch watermark itself is derived from the highest stored email UID.
type Folder struct {
	ID        string         `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	AccountID string         `gorm:"column:account_id;type:varchar(50);uniqueIndex:idx_folders_account_name;index" json:"accountId"`
	Name      string         `gorm:"column:name;type:varchar(255);uniqueIndex:idx_folders_account_name;not null" json:"name"`
	Delimiter string         `gorm:"column:delimiter;type:varchar(10)" json:"delimiter"`
	Flags     pq.StringArray `gorm:"column:flags;type:text[]" json:"flags"`
	ParentID  *string        `gorm:"column:parent_id;type:varchar(50);index" json:"parentId"`

	IsFavorite  bool `gorm:"column:is_favorite;default:false" json:"isFavorite"`
	UnreadCount int  `gorm:"column:unread_count;default:0" json:"unreadCount"`
	TotalCount  int  `gorm:"column:total_count;default:0" json:"totalCount"`

	LastSyncAt *time.Time `gorm:"column:last_sync_at;type:timestamp" json:"lastSyncAt"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Folder) TableName() string {
	return "folders"
}

func (f *Folder) BeforeCreate(tx *gorm.DB) error {
	if f.ID == "" {
		f.ID = utils.GenerateNanoIDWithPrefix("fold", 16)
	}
	return nil
}
