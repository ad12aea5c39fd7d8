// Package objectstore provides a small capability interface over S3-
// compatible object storage, backed by aws-sdk-go-v2 configured for MinIO
// (custom endpoint, path-style addressing).
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

// Store is the capability surface the pipeline needs from object storage.
type Store interface {
	Put(ctx context.Context, bucket, key string, body []byte, contentType string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Exists(ctx context.Context, bucket, key string) (bool, error)
	EnsureBucket(ctx context.Context, bucket string) error
}

// Config configures the S3 client for a MinIO-compatible endpoint.
type Config struct {
	Endpoint  string // e.g. http://localhost:9000
	AccessKey string
	SecretKey string
	Region    string // MinIO ignores this but the SDK requires a value
}

// S3Store is the aws-sdk-go-v2-backed implementation used in production.
type S3Store struct {
	client *s3.Client
	log    zerolog.Logger
}

// New builds an S3Store pointed at a MinIO-compatible endpoint using
// path-style addressing, since MinIO does not support virtual-hosted
// bucket addressing by default.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*S3Store, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})

	return &S3Store{client: client, log: log.With().Str("component", "objectstore").Logger()}, nil
}

func (s *S3Store) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	return err
}

func (s *S3Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3Store) Exists(ctx context.Context, bucket, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, err
}

// EnsureBucket creates bucket if it does not already exist, retrying up
// to 5 times with exponential backoff (500ms doubling, capped at 10s) so
// services can come up before MinIO has finished initializing in a fresh
// compose stack.
func (s *S3Store) EnsureBucket(ctx context.Context, bucket string) error {
	const attempts = 5
	var lastErr error
	for i := 0; i < attempts; i++ {
		_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
		if err == nil {
			return nil
		}
		_, createErr := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucket)})
		if createErr == nil {
			return nil
		}
		lastErr = createErr
		s.log.Warn().Err(createErr).Str("bucket", bucket).Int("attempt", i+1).Msg("bucket not ready, retrying")
		delay := (500 * time.Millisecond) << i
		if delay > 10*time.Second {
			delay = 10 * time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("ensure bucket %s after %d attempts: %w", bucket, attempts, lastErr)
}
