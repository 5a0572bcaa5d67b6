// Package storage archives dead-lettered payloads to object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/smarteros/backend/internal/domain/messaging"
	infraconfig "github.com/smarteros/backend/internal/infrastructure/config"
)

// S3Archiver writes dead-letter payloads to an S3-compatible bucket
// (AWS S3, MinIO, RustFS). One object per ticket, keyed by tenant and
// subject, so operators can inspect and re-submit by hand.
type S3Archiver struct {
	client *s3.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewS3Archiver creates an archiver from configuration
func NewS3Archiver(cfg *infraconfig.StorageConfig, log *zap.Logger) (*S3Archiver, error) {
	if cfg == nil {
		return nil, errors.New("storage configuration is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("storage bucket is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("storage credentials are required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "http://localhost:9000"
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		if cfg.UseSSL {
			endpoint = "https://" + endpoint
		} else {
			endpoint = "http://" + endpoint
		}
	}
	if _, err := url.Parse(endpoint); err != nil {
		return nil, fmt.Errorf("invalid storage endpoint: %w", err)
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		o.BaseEndpoint = aws.String(endpoint)
	})

	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "dead-letters"
	}
	return &S3Archiver{client: client, bucket: cfg.Bucket, prefix: prefix, logger: log}, nil
}

// EnsureBucket creates the bucket if it does not exist yet. Call during
// startup.
func (a *S3Archiver) EnsureBucket(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if !errors.As(err, &notFound) && !errors.As(err, &noSuchBucket) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	a.logger.Info("creating dead-letter bucket", zap.String("bucket", a.bucket))
	_, err = a.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(a.bucket)})
	if err != nil {
		var alreadyOwned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &alreadyOwned) {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// Archive uploads the payload and returns its s3:// location
func (a *S3Archiver) Archive(ctx context.Context, ticket *messaging.RetryTicket, payload []byte) (string, error) {
	key := a.objectKey(ticket)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to archive dead letter: %w", err)
	}
	location := fmt.Sprintf("s3://%s/%s", a.bucket, key)
	a.logger.Info("dead letter archived",
		zap.String("ticket_id", ticket.ID.String()),
		zap.String("location", location))
	return location, nil
}

func (a *S3Archiver) objectKey(ticket *messaging.RetryTicket) string {
	return fmt.Sprintf("%s/%s/%s/%s-%s.json",
		a.prefix,
		ticket.TenantID,
		ticket.SubjectType,
		ticket.CreatedAt.UTC().Format(time.RFC3339),
		ticket.ID,
	)
}
