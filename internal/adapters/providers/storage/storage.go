// Package storage is the object-storage adapter, backed by AWS S3.
// It persists generated policy-certificate documents.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/bodaboda-insure/core/internal/platform/apperr"
	"github.com/bodaboda-insure/core/internal/platform/otel"
)

// Store is the capability contract every object-storage client implements.
type Store interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (url string, err error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// S3Store is the production Store, backed by AWS S3.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds an S3Store for bucket, authenticating with static
// credentials if provided (accessKeyID non-empty) or falling back to
// the default AWS credential chain otherwise.
func NewS3Store(ctx context.Context, region, bucket, accessKeyID, secretAccessKey string) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(region))

	if accessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, apperr.InternalError{Message: "storage: load aws config", Err: err}
	}

	return &S3Store{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// Put uploads body under key and returns its S3 URL.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "storage.s3.put")
	defer span.End()

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		otel.HandleSpanError(&span, "s3 put failed", err)
		return "", apperr.TransientUpstreamError{Provider: "s3", Message: "put object failed", Err: err}
	}

	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// Get downloads the object at key.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	tracer := otel.FromContext(ctx)
	ctx, span := tracer.Start(ctx, "storage.s3.get")
	defer span.End()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		otel.HandleSpanError(&span, "s3 get failed", err)
		return nil, apperr.TransientUpstreamError{Provider: "s3", Message: "get object failed", Err: err}
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, apperr.InternalError{Message: "storage: read body", Err: err}
	}

	return data, nil
}

var _ Store = (*S3Store)(nil)
