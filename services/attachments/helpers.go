package attachments

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"

	"github.com/mailmirror/mailmirror/interfaces"
)

// NewAWSStorage configures attachment storage against AWS S3.
func NewAWSStorage(awsRegion, accessKeyID, accessKeySecret, bucketName string) interfaces.AttachmentStorage {
	return NewS3Storage(&aws.Config{
		Region:      aws.String(awsRegion),
		Credentials: credentials.NewStaticCredentials(accessKeyID, accessKeySecret, ""),
	}, bucketName)
}

// NewR2Storage configures attachment storage against Cloudflare R2, which
// speaks the S3 protocol behind an account-scoped endpoint.
func NewR2Storage(accountID, accessKeyID, accessKeySecret, bucketName string) interfaces.AttachmentStorage {
	return NewS3Storage(&aws.Config{
		Endpoint:         aws.String("https://" + accountID + ".r2.cloudflarestorage.com"),
		Region:           aws.String("auto"),
		Credentials:      credentials.NewStaticCredentials(accessKeyID, accessKeySecret, ""),
		S3ForcePathStyle: aws.Bool(true),
	}, bucketName)
}
