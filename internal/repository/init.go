package repository

import (
	"gorm.io/gorm"

	"github.com/mailmirror/mailmirror/interfaces"
	"github.com/mailmirror/mailmirror/internal/models"
)

type Repositories struct {
	AccountRepository         interfaces.AccountRepository
	FolderRepository          interfaces.FolderRepository
	EmailRepository           interfaces.EmailRepository
	EmailAttachmentRepository interfaces.EmailAttachmentRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		AccountRepository:         NewAccountRepository(db),
		FolderRepository:          NewFolderRepository(db),
		EmailRepository:           NewEmailRepository(db),
		EmailAttachmentRepository: NewEmailAttachmentRepository(db),
	}
}

func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Account{},
		&models.Folder{},
		&models.Email{},
		&models.EmailAttachment{},
	)
}
