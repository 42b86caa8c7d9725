package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DocumentSource fetches the scanned paperwork for a work item.
type DocumentSource interface {
	Fetch(ctx context.Context, key string) ([]byte, string, error)
}

// s3GetAPI is the S3 surface the source needs. Narrowed for tests.
type s3GetAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads documents from the intake assets bucket.
type S3Source struct {
	client s3GetAPI
	bucket string
}

// NewS3Source builds a source on the given bucket.
func NewS3Source(client s3GetAPI, bucket string) *S3Source {
	return &S3Source{client: client, bucket: bucket}
}

// Fetch downloads the object and returns its bytes and content type.
func (s *S3Source) Fetch(ctx context.Context, key string) ([]byte, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, "", fmt.Errorf("S3 GetObject %s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", key, err)
	}
	contentType := ""
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	return data, contentType, nil
}
