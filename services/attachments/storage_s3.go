package attachments

import (
	"bytes"
	"context"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/opentracing/opentracing-go"

	"github.com/mailmirror/mailmirror/interfaces"
	"github.com/mailmirror/mailmirror/internal/tracing"
)

// s3Storage keeps attachments in an S3-compatible bucket. The aws.Config
// endpoint can point at any S3-compatible provider.
type s3Storage struct {
	uploader   *s3manager.Uploader
	downloader *s3manager.Downloader
	session    *session.Session
	bucketName string
}

func NewS3Storage(config *aws.Config, bucketName string) interfaces.AttachmentStorage {
	s := session.Must(session.NewSession(config))
	return &s3Storage{
		uploader:   s3manager.NewUploader(s),
		downloader: s3manager.NewDownloader(s),
		session:    s,
		bucketName: bucketName,
	}
}

func (s *s3Storage) ServiceName() string {
	return "s3"
}

func (s *s3Storage) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "s3Storage.Upload")
	defer span.Finish()
	span.SetTag("key", key)

	_, err := s.uploader.Upload(&s3manager.UploadInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func (s *s3Storage) Download(ctx context.Context, key string) ([]byte, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "s3Storage.Download")
	defer span.Finish()
	span.SetTag("key", key)

	buffer := &aws.WriteAtBuffer{}
	_, err := s.downloader.Download(buffer,
		&s3.GetObjectInput{
			Bucket: aws.String(s.bucketName),
			Key:    aws.String(key),
		})
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return buffer.Bytes(), nil
}

func (s *s3Storage) Delete(ctx context.Context, key string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "s3Storage.Delete")
	defer span.Finish()
	span.SetTag("key", key)

	svc := s3.New(s.session)
	_, err := svc.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}
