// Package archive keeps the raw bytes of uploaded images in an S3-compatible
// bucket. Normalized artifacts stay authoritative; originals are for admins.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/fundkeeper/internal/common"
	"github.com/dmitrijs2005/fundkeeper/internal/server/config"
	"github.com/google/uuid"
)

// Image kinds used in object keys.
const (
	KindImage = "image"
	KindQR    = "qr"
)

// PresignExpiry is the lifetime of download links.
const PresignExpiry = 15 * time.Minute

// Archiver stores raw uploads and hands out download links for them.
type Archiver interface {
	Archive(ctx context.Context, projectID, kind string, raw []byte) (string, error)
	PresignedGetURL(ctx context.Context, key string) (string, error)
}

var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	putObject = func(c *s3.Client, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
		return c.PutObject(ctx, in, optFns...)
	}

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}

	now = time.Now
)

// StorageKey builds projects/<id>/<kind>/<yyyy>/<mm>/<dd>/<uuid>.
func StorageKey(projectID, kind string, t time.Time) string {
	return fmt.Sprintf("projects/%s/%s/%04d/%02d/%02d/%s",
		projectID, kind, t.Year(), int(t.Month()), t.Day(), uuid.New())
}

// S3Archiver talks to MinIO or AWS S3 with static credentials.
type S3Archiver struct {
	bucket  string
	client  *s3.Client
	presign *s3.PresignClient
}

// NewS3Archiver builds a client from the S3 settings in cfg.
func NewS3Archiver(ctx context.Context, cfg *config.Config) (*S3Archiver, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("archive: bucket is not configured")
	}

	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
		}
		// MinIO serves buckets by path.
		o.UsePathStyle = true
	})

	return &S3Archiver{
		bucket:  cfg.S3Bucket,
		client:  client,
		presign: newS3PresignClient(client),
	}, nil
}

// Archive uploads raw and returns its object key.
func (a *S3Archiver) Archive(ctx context.Context, projectID, kind string, raw []byte) (string, error) {
	key := StorageKey(projectID, kind, now())

	_, err := putObject(a.client, ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(raw),
		ContentLength: aws.Int64(int64(len(raw))),
	})
	if err != nil {
		return "", fmt.Errorf("archive: put %s: %w", key, err)
	}

	return key, nil
}

// PresignedGetURL returns a link valid for PresignExpiry.
func (a *S3Archiver) PresignedGetURL(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", common.ErrorNotFound
	}

	req, err := presignGetObject(a.presign, ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(PresignExpiry))
	if err != nil {
		return "", fmt.Errorf("archive: presign %s: %w", key, err)
	}

	return req.URL, nil
}

// Nop is used when archiving is disabled.
type Nop struct{}

func (Nop) Archive(context.Context, string, string, []byte) (string, error) { return "", nil }

func (Nop) PresignedGetURL(context.Context, string) (string, error) {
	return "", common.ErrorNotFound
}
