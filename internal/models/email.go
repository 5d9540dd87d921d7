package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/mailmirror/mailmirror/internal/enum"
	"github.com/mailmirror/mailmirror/internal/utils"
)

// Email represents one mirrored message. Remote identity is the
// (account_id, folder, uid) triple; durable identity across folders and
// re-syncs is the message_id. UID 0 means the row has no server identity
// yet (locally moved or sent rows wait there until the next sync of
// their folder assigns one), so the unique index is partial on uid > 0.
type Email struct {
	ID        string `gorm:"column:id;type:varchar(50);primaryKey"`
	AccountID string `gorm:"column:account_id;type:varchar(50);uniqueIndex:idx_emails_account_folder_uid;not null"`
	Folder    string `gorm:"column:folder;type:varchar(255);uniqueIndex:idx_emails_account_folder_uid;not null"`
	UID       uint32 `gorm:"column:uid;uniqueIndex:idx_emails_account_folder_uid,where:uid > 0"`

	MessageID   string         `gorm:"column:message_id;uniqueIndex;type:varchar(255);not null"`
	SyntheticID bool           `gorm:"column:synthetic_id;default:false"`
	ThreadID    string         `gorm:"column:thread_id;type:varchar(255);index"`
	InReplyTo   string         `gorm:"column:in_reply_to;type:varchar(255);index"`
	References  pq.StringArray `gorm:"column:references;type:text[]"`

	// Envelope
	Subject      string         `gorm:"column:subject;type:varchar(1000)"`
	CleanSubject string         `gorm:"column:clean_subject;type:varchar(1000);index"`
	FromAddress  string         `gorm:"column:from_address;type:varchar(255);index"`
	FromName     string         `gorm:"column:from_name;type:varchar(255)"`
	ToAddresses  pq.StringArray `gorm:"column:to_addresses;type:text[]"`
	CcAddresses  pq.StringArray `gorm:"column:cc_addresses;type:text[]"`

	SentAt     *time.Time `gorm:"column:sent_at;type:timestamp;index"`
	ReceivedAt *time.Time `gorm:"column:received_at;type:timestamp;index"`

	// Content, nullable until materialized
	BodyText      string `gorm:"column:body_text;type:text"`
	BodyHTML      string `gorm:"column:body_html;type:text"`
	HasAttachment bool   `gorm:"column:has_attachment;default:false"`

	// User-visible flags
	IsRead      bool `gorm:"column:is_read;default:false"`
	IsStarred   bool `gorm:"column:is_starred;default:false"`
	IsImportant bool `gorm:"column:is_important;default:false"`
	IsSpam      bool `gorm:"column:is_spam;default:false"`
	IsDraft     bool `gorm:"column:is_draft;default:false"`

	// Soft delete. Rows are only physically removed by the trash-empty
	// and permanent-delete paths.
	IsDeleted bool       `gorm:"column:is_deleted;default:false;index"`
	DeletedAt *time.Time `gorm:"column:deleted_at;type:timestamp"`

	Direction enum.EmailDirection `gorm:"column:direction;type:varchar(50);index"`
	Status    enum.EmailStatus    `gorm:"column:status;type:varchar(50);index"`

	Classification       enum.EmailClassification `gorm:"column:classification;type:varchar(50);index"`
	ClassificationReason string                   `gorm:"column:classification_reason;type:text"`

	RawHeaders JSONMap `gorm:"column:raw_headers;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (Email) TableName() string {
	return "emails"
}

func (e *Email) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("email", 24)
	}
	e.CreatedAt = utils.Now()
	return nil
}

// AllParticipants returns the deduplicated set of addresses on the message.
func (e *Email) AllParticipants() []string {
	participants := make([]string, 0, 1+len(e.ToAddresses)+len(e.CcAddresses))
	if e.FromAddress != "" {
		participants = append(participants, e.FromAddress)
	}
	participants = append(participants, e.ToAddresses...)
	participants = append(participants, e.CcAddresses...)
	return utils.UniqueEmails(participants)
}

// Date returns the best-known timestamp for ordering: the sent date when
// the header carried one, otherwise the receive time.
func (e *Email) Date() time.Time {
	if e.SentAt != nil {
		return *e.SentAt
	}
	if e.ReceivedAt != nil {
		return *e.ReceivedAt
	}
	return e.CreatedAt
}
