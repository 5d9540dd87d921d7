package interfaces

import (
	"context"
	"time"
)

// SearchCriteria is the subset of IMAP search the sync engine needs:
// everything, or everything above a UID watermark.
type SearchCriteria struct {
	All     bool
	UIDFrom uint32 // inclusive lower bound, used when All is false
}

type FetchOptions struct {
	FetchBody bool
}

// RawMessage is one fetched message with its server attributes. Header
// bytes are always present; body bytes only when fetched with FetchBody.
type RawMessage struct {
	UID          uint32
	HeaderBytes  []byte
	BodyBytes    []byte
	Flags        []string
	InternalDate time.Time
}

type FolderInfo struct {
	Name      string
	Delimiter string
	Flags     []string
}

type FolderStatus struct {
	TotalMessages  uint32
	UnseenMessages uint32
	UIDValidity    uint32
}

// MailClient wraps one live connection to a remote mailbox. Implementations
// buffer any streamed protocol events internally so FetchBatch returns
// complete messages synchronously.
type MailClient interface {
	Connect(ctx context.Context) error
	ListFolders(ctx context.Context) ([]FolderInfo, error)
	OpenFolder(ctx context.Context, name string, readOnly bool) (*FolderStatus, error)
	Search(ctx context.Context, criteria SearchCriteria) ([]uint32, error)
	FetchBatch(ctx context.Context, uids []uint32, opts FetchOptions) ([]*RawMessage, error)
	Move(ctx context.Context, uids []uint32, targetFolder string) error
	Copy(ctx context.Context, uids []uint32, targetFolder string) error
	Delete(ctx context.Context, uids []uint32) error
	Append(ctx context.Context, folder string, raw []byte, flags []string) error
	Disconnect() error
}

// MailClientFactory opens a fresh session per sync run so concurrent
// account runs never share a connection.
type MailClientFactory interface {
	NewClient(accountID string) (MailClient, error)
}
