package interfaces

import (
	"context"
	"time"

	"github.com/mailmirror/mailmirror/internal/models"
)

type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmailAddress(ctx context.Context, address string) (*models.Account, error)
	GetDefault(ctx context.Context) (*models.Account, error)
	ListEnabled(ctx context.Context) ([]*models.Account, error)
	SetDefault(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	UpdateLastSync(ctx context.Context, id string, at time.Time) error
	UpdateConnectionStatus(ctx context.Context, id string, status string, errorMessage string) error
}

type FolderRepository interface {
	Upsert(ctx context.Context, folder *models.Folder) error
	GetByName(ctx context.Context, accountID, name string) (*models.Folder, error)
	ListByAccount(ctx context.Context, accountID string) ([]*models.Folder, error)
	UpdateLastSync(ctx context.Context, accountID, name string, at time.Time) error
	UpdateCounts(ctx context.Context, accountID, name string, unread, total int) error
}

type EmailRepository interface {
	Create(ctx context.Context, email *models.Email) error
	GetByID(ctx context.Context, id string) (*models.Email, error)
	GetByUID(ctx context.Context, accountID, folder string, uid uint32) (*models.Email, error)
	GetByMessageID(ctx context.Context, messageID string) (*models.Email, error)
	HighestUID(ctx context.Context, accountID, folder string) (uint32, error)
	ListByFolder(ctx context.Context, accountID, folder string, limit, offset int) ([]*models.Email, int64, error)
	ListForThreading(ctx context.Context, accountID string) ([]*models.Email, error)
	ListDeleted(ctx context.Context, accountID string) ([]*models.Email, error)
	Update(ctx context.Context, email *models.Email) error
	SetThreadID(ctx context.Context, emailID, threadID string) error
	SetFolder(ctx context.Context, emailID, folder string, uid uint32) error
	SoftDelete(ctx context.Context, emailID string) error
	Restore(ctx context.Context, emailID string) error
	HardDelete(ctx context.Context, emailID string) error
}

type EmailAttachmentRepository interface {
	Create(ctx context.Context, attachment *models.EmailAttachment) error
	ListByEmail(ctx context.Context, emailID string) ([]*models.EmailAttachment, error)
	DeleteByEmail(ctx context.Context, emailID string) error
}
