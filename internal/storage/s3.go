package storage

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

const imageContentType = "image/jpeg"

// S3Uploader puts uploads into a public-read S3 bucket.
type S3Uploader struct {
	bucket   string
	baseURL  string
	uploader s3manageriface.UploaderAPI
}

// NewS3Uploader opens an AWS session for region. When baseURL is empty the
// location reported by S3 is returned.
func NewS3Uploader(bucket, region, baseURL string) (*S3Uploader, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return NewS3UploaderWithAPI(bucket, baseURL, s3manager.NewUploader(sess)), nil
}

// NewS3UploaderWithAPI builds an S3Uploader around an existing uploader.
func NewS3UploaderWithAPI(bucket, baseURL string, api s3manageriface.UploaderAPI) *S3Uploader {
	return &S3Uploader{bucket: bucket, baseURL: baseURL, uploader: api}
}

func (u *S3Uploader) Upload(ctx context.Context, localPath, destPath string) (string, error) {
	key, err := cleanKey(destPath)
	if err != nil {
		return "", err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open upload source: %w", err)
	}
	defer func() { _ = f.Close() }()

	out, err := u.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		ACL:         aws.String("public-read"),
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(imageContentType),
		Body:        f,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s to s3: %w", key, err)
	}
	if u.baseURL != "" || out == nil || out.Location == "" {
		return publicURL(u.baseURL, key), nil
	}
	return out.Location, nil
}
