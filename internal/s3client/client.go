// Package s3client builds the S3 API client for the attachment bucket. The
// default deployment fronts MinIO, so credentials are static and addressing
// is path-style.
package s3client

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3Config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"intakeservice/internal/config"
	"intakeservice/internal/errdefs"
)

func New(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	s3Cfg, err := s3Config.LoadDefaultConfig(ctx,
		s3Config.WithRegion(cfg.S3Region),
		s3Config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(
				cfg.S3AccessKeyID,
				cfg.S3SecretAccessKey,
				"",
			),
		),
	)
	if err != nil {
		return nil, err
	}
	s3Client := s3.NewFromConfig(s3Cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		o.UsePathStyle = true
	})
	return s3Client, nil
}

// validate catches bucket misconfiguration at startup rather than on the
// first upload, where it would fail a participant's submission.
func validate(cfg *config.Config) error {
	switch {
	case !strings.HasPrefix(cfg.S3Endpoint, "http://") && !strings.HasPrefix(cfg.S3Endpoint, "https://"):
		return fmt.Errorf("%w: s3 endpoint must be an http(s) URL, got %q", errdefs.ErrConfigMissing, cfg.S3Endpoint)
	case cfg.S3Bucket == "":
		return fmt.Errorf("%w: s3 bucket name is empty", errdefs.ErrConfigMissing)
	case cfg.S3AccessKeyID == "" || cfg.S3SecretAccessKey == "":
		return fmt.Errorf("%w: s3 credentials are empty", errdefs.ErrConfigMissing)
	}
	return nil
}
