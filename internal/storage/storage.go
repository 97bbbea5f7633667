// Package storage stores submission attachments in an S3-compatible bucket
// (MinIO in the default deployment) and hands back durable object URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"intakeservice/pkg/logging"
)

type ObjectStorage struct {
	s3Client *s3.Client
	bucket   *string
	urlBase  string
}

// New wires the bucket client. urlBase is the address attachments are served
// from, which may differ from the S3 endpoint when a public host fronts the
// bucket.
func New(ctx context.Context, client *s3.Client, bucketName string, urlBase string) (*ObjectStorage, error) {
	s := &ObjectStorage{
		s3Client: client,
		bucket:   aws.String(bucketName),
		urlBase:  strings.TrimSuffix(urlBase, "/"),
	}
	err := s.createBucket(ctx, bucketName)
	return s, err
}

// Upload streams one attachment under the given key and returns its URL.
// Keys are stable per submission, so a re-submitted file overwrites the
// previous object rather than duplicating it.
func (s *ObjectStorage) Upload(ctx context.Context, key string, contentType string, body io.Reader) (string, error) {
	_, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      s.bucket,
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return s.objectURL(key), nil
}

func (s *ObjectStorage) objectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.urlBase, *s.bucket, key)
}

// Delete removes a stored object; used for compensating cleanup when a later
// upload in the same submission fails.
func (s *ObjectStorage) Delete(ctx context.Context, key string) error {
	_, err := s.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: s.bucket,
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

func (s *ObjectStorage) createBucket(ctx context.Context, name string) error {
	_, err := s.s3Client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)})
	if err != nil {
		var opErr *http.ResponseError
		if errors.As(err, &opErr) && opErr.HTTPStatusCode() == 409 {
			if logger, ok := logging.GetFromContext(ctx); ok {
				logger.Info(ctx, "Bucket already exists", zap.String("bucket", name))
			}
			return nil
		}
	}
	return err
}
