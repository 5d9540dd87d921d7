package interfaces

import "context"

// AttachmentStorage persists attachment bytes. Keys are
// "<accountID>/<emailID>_<sanitizedFilename>"; the local backend maps them
// under the attachment directory, the S3 backend to object keys.
type AttachmentStorage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	ServiceName() string
}
