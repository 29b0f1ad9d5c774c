package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vmaximov/sellhub/internal/config"
)

// S3 stores blobs in an S3-compatible bucket (AWS S3, MinIO, DO Spaces).
type S3 struct {
	client    *s3.Client
	bucket    string
	publicURL string
}

func NewS3(cfg *config.Config) (*S3, error) {
	ctx := context.Background()

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.S3_REGION),
	}
	if cfg.S3_ACCESS_KEY != "" && cfg.S3_SECRET_KEY != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3_ACCESS_KEY, cfg.S3_SECRET_KEY, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage: load aws config: %w", err)
	}

	var client *s3.Client
	if cfg.S3_ENDPOINT != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.S3_ENDPOINT)
			// path style is required for MinIO and most S3-compatible services
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	publicURL := cfg.S3_ENDPOINT
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3_BUCKET, cfg.S3_REGION)
	} else {
		publicURL = strings.TrimSuffix(publicURL, "/") + "/" + cfg.S3_BUCKET
	}

	return &S3{client: client, bucket: cfg.S3_BUCKET, publicURL: publicURL}, nil
}

func (s *S3) Save(ctx context.Context, name string, r io.Reader) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("storage: s3 put %q: %w", name, err)
	}
	return nil
}

func (s *S3) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("storage: s3 delete %q: %w", name, err)
	}
	return nil
}

func (s *S3) URL(name string) string {
	return s.publicURL + "/" + name
}
