package attachments

import (
	"context"
	"os"
	"path/filepath"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/mailmirror/mailmirror/interfaces"
	"github.com/mailmirror/mailmirror/internal/tracing"
)

// localStorage writes attachment bytes under a base directory. Keys use
// forward slashes regardless of platform and map to nested directories.
type localStorage struct {
	baseDir string
}

func NewLocalStorage(baseDir string) (interfaces.AttachmentStorage, error) {
	if baseDir == "" {
		return nil, errors.New("attachment directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "error creating attachment directory")
	}
	return &localStorage{baseDir: baseDir}, nil
}

func (s *localStorage) ServiceName() string {
	return "local"
}

func (s *localStorage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "localStorage.Upload")
	defer span.Finish()
	span.SetTag("key", key)

	path := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "error creating attachment subdirectory")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "error writing attachment file")
	}
	return nil
}

func (s *localStorage) Download(ctx context.Context, key string) ([]byte, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "localStorage.Download")
	defer span.Finish()
	span.SetTag("key", key)

	data, err := os.ReadFile(s.pathFor(key))
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "error reading attachment file")
	}
	return data, nil
}

func (s *localStorage) Delete(ctx context.Context, key string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "localStorage.Delete")
	defer span.Finish()
	span.SetTag("key", key)

	err := os.Remove(s.pathFor(key))
	if err != nil && !os.IsNotExist(err) {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "error deleting attachment file")
	}
	return nil
}

func (s *localStorage) pathFor(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(key))
}
