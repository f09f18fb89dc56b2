package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store implements ObjectStore using AWS S3 (or any S3-compatible endpoint).
type S3Store struct {
	client S3API
	bucket string
}

// S3StoreConfig holds configuration for S3Store.
type S3StoreConfig struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional custom endpoint (for MinIO, LocalStack, etc.)
	AccessKeyID     string // Optional static credentials; default chain otherwise
	SecretAccessKey string
	MaxAttempts     int // 0 keeps the SDK default retryer
}

// NewS3Store creates a new S3-backed object store.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: %w", ErrBucketRequired)
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	if cfg.MaxAttempts > 0 {
		opts = append(opts, config.WithRetryMaxAttempts(cfg.MaxAttempts))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO/LocalStack
		}
	})

	return NewS3StoreWithClient(client, cfg.Bucket), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client S3API, bucket string) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
	}
}

// Bucket returns the destination bucket name.
func (s *S3Store) Bucket() string {
	return s.bucket
}

// Put uploads obj to the bucket.
func (s *S3Store) Put(ctx context.Context, obj Object) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(obj.Key),
		Body:          bytes.NewReader(obj.Body),
		ContentLength: aws.Int64(int64(len(obj.Body))),
	}
	if obj.ContentType != "" {
		input.ContentType = aws.String(obj.ContentType)
	}
	if obj.ContentEncoding != "" {
		input.ContentEncoding = aws.String(obj.ContentEncoding)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3 put failed for %s: %w", obj.Key, err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *S3Store) Close() error {
	return nil
}
