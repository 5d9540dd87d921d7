package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/mailmirror/mailmirror/internal/enum"
	"github.com/mailmirror/mailmirror/internal/utils"
)

// Account is a configured mailbox identity. Credentials are stored
// encrypted by the surrounding system; this engine treats them as opaque.
type Account struct {
	ID           string `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	EmailAddress string `gorm:"column:email_address;type:varchar(255);uniqueIndex;not null" json:"emailAddress"`
	DisplayName  string `gorm:"column:display_name;type:varchar(255)" json:"displayName"`

	// IMAP configuration
	ImapServer   string             `gorm:"column:imap_server;type:varchar(255);not null" json:"imapServer"`
	ImapPort     int                `gorm:"column:imap_port;not null" json:"imapPort"`
	ImapUsername string             `gorm:"column:imap_username;type:varchar(255);not null" json:"imapUsername"`
	ImapPassword string             `gorm:"column:imap_password;type:varchar(512);not null" json:"-"`
	ImapSecurity enum.EmailSecurity `gorm:"column:imap_security;type:varchar(50);default:tls" json:"imapSecurity"`

	// SMTP configuration
	SmtpServer   string             `gorm:"column:smtp_server;type:varchar(255)" json:"smtpServer"`
	SmtpPort     int                `gorm:"column:smtp_port" json:"smtpPort"`
	SmtpUsername string             `gorm:"column:smtp_username;type:varchar(255)" json:"smtpUsername"`
	SmtpPassword string             `gorm:"column:smtp_password;type:varchar(512)" json:"-"`
	SmtpSecurity enum.EmailSecurity `gorm:"column:smtp_security;type:varchar(50);default:tls" json:"smtpSecurity"`

	// Sync configuration
	SyncFolders  pq.StringArray `gorm:"column:sync_folders;type:text[]" json:"syncFolders"`
	SyncInterval int            `gorm:"column:sync_interval;default:15" json:"syncInterval"` // minutes
	IsDefault    bool           `gorm:"column:is_default;default:false;index" json:"isDefault"`
	IsEnabled    bool           `gorm:"column:is_enabled;default:true;index" json:"isEnabled"`

	// Status
	LastSyncAt       *time.Time            `gorm:"column:last_sync_at;type:timestamp" json:"lastSyncAt"`
	ConnectionStatus enum.ConnectionStatus `gorm:"column:connection_status;type:varchar(50)" json:"connectionStatus"`
	ErrorMessage     string                `gorm:"column:error_message;type:text" json:"errorMessage"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp" json:"updatedAt"`
}

func (Account) TableName() string {
	return "accounts"
}

func (a *Account) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = utils.GenerateNanoIDWithPrefix("acct", 16)
	}
	return nil
}
