// Package sinks delivers conversion results to remote storage.
package sinks

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Uploader is an interface for uploading objects to S3.
// This allows for easy mocking in tests.
type S3Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Config contains configuration for the S3 sink.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// S3Sink writes conversion results to S3-compatible object storage.
type S3Sink struct {
	bucket   string
	prefix   string
	uploader S3Uploader
}

// NewS3Sink creates a new S3 sink with the given configuration.
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	var opts []func(*config.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	// Explicit credentials win over the default chain
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)

	// Set custom endpoint for S3-compatible services (R2, MinIO, etc.)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	return NewS3SinkWithUploader(cfg.Bucket, cfg.Prefix, manager.NewUploader(client)), nil
}

// NewS3SinkWithUploader creates a new S3 sink with a custom uploader.
func NewS3SinkWithUploader(bucket, prefix string, uploader S3Uploader) *S3Sink {
	return &S3Sink{
		bucket:   bucket,
		prefix:   prefix,
		uploader: uploader,
	}
}

func (s *S3Sink) Name() string {
	if s.prefix != "" {
		return fmt.Sprintf("s3(%s/%s)", s.bucket, s.prefix)
	}
	return fmt.Sprintf("s3(%s)", s.bucket)
}

// Key returns the object key objectPath is stored under.
func (s *S3Sink) Key(objectPath string) string {
	if s.prefix != "" {
		return path.Join(s.prefix, objectPath)
	}
	return objectPath
}

func (s *S3Sink) Write(ctx context.Context, objectPath string, data io.Reader) error {
	key := s.Key(objectPath)

	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   data,
	}

	if contentType := contentTypeFromPath(objectPath); contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("failed to upload to s3://%s/%s: %w", s.bucket, key, err)
	}

	return nil
}

// contentTypeFromPath returns the Content-Type based on the file extension.
func contentTypeFromPath(p string) string {
	switch path.Ext(p) {
	case ".gz", ".tgz":
		return "application/gzip"
	case ".zst":
		return "application/zstd"
	case ".tar":
		return "application/x-tar"
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/x-yaml"
	case ".csv":
		return "text/csv"
	case ".txt", ".yoda":
		return "text/plain"
	default:
		return ""
	}
}
