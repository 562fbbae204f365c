package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xaenox/x-agent/internal/failure"
)

const s3Name = "s3"

// S3Config holds configuration for the S3 uploader
type S3Config struct {
	Bucket        string // bucket name
	Prefix        string // key prefix for uploaded media
	Region        string // default: us-east-1
	Endpoint      string // custom endpoint for S3-compatible storage
	AccessKey     string // optional, default credential chain when empty
	SecretKey     string
	PublicBaseURL string // base for returned URLs, e.g. a CDN
}

// Uploader stores media and returns a publicly reachable URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, mimeType string) (string, error)
}

type S3Uploader struct {
	cfg    S3Config
	logger *zap.Logger

	once    sync.Once
	client  *s3.Client
	initErr error
}

func NewS3Uploader(cfg S3Config, logger *zap.Logger) *S3Uploader {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "x-agent"
	}
	return &S3Uploader{cfg: cfg, logger: logger}
}

func (u *S3Uploader) getClient(ctx context.Context) (*s3.Client, error) {
	u.once.Do(func() {
		opts := []func(*config.LoadOptions) error{config.WithRegion(u.cfg.Region)}
		if u.cfg.AccessKey != "" && u.cfg.SecretKey != "" {
			opts = append(opts, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(u.cfg.AccessKey, u.cfg.SecretKey, ""),
			))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			u.initErr = fmt.Errorf("failed to load AWS config: %w", err)
			return
		}

		var s3Opts []func(*s3.Options)
		if u.cfg.Endpoint != "" {
			s3Opts = append(s3Opts, func(o *s3.Options) {
				o.BaseEndpoint = aws.String(u.cfg.Endpoint)
				o.UsePathStyle = true
			})
		}
		u.client = s3.NewFromConfig(awsCfg, s3Opts...)

		u.logger.Info("S3 client initialized",
			zap.String("bucket", u.cfg.Bucket),
			zap.String("region", u.cfg.Region),
			zap.String("endpoint", u.cfg.Endpoint))
	})
	return u.client, u.initErr
}

// Upload puts data under a fresh key and returns its public URL.
func (u *S3Uploader) Upload(ctx context.Context, data []byte, mimeType string) (string, error) {
	if u.cfg.Bucket == "" {
		return "", failure.MissingCredential(s3Name)
	}
	client, err := u.getClient(ctx)
	if err != nil {
		return "", failure.New(failure.KindProvider, "s3 client unavailable", err)
	}

	key := u.objectKey(mimeType)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return "", classifyS3Error(err)
	}

	u.logger.Debug("Uploaded media",
		zap.String("bucket", u.cfg.Bucket),
		zap.String("key", key),
		zap.Int("size", len(data)))
	return u.publicURL(key), nil
}

func (u *S3Uploader) objectKey(mimeType string) string {
	ext := ""
	if m := mimetype.Lookup(mimeType); m != nil {
		ext = m.Extension()
	}
	return strings.TrimSuffix(u.cfg.Prefix, "/") + "/" + uuid.NewString() + ext
}

func (u *S3Uploader) publicURL(key string) string {
	switch {
	case u.cfg.PublicBaseURL != "":
		return strings.TrimSuffix(u.cfg.PublicBaseURL, "/") + "/" + key
	case u.cfg.Endpoint != "":
		return strings.TrimSuffix(u.cfg.Endpoint, "/") + "/" + u.cfg.Bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", u.cfg.Bucket, u.cfg.Region, key)
}

func classifyS3Error(err error) error {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		fe := failure.FromStatus(s3Name, re.HTTPStatusCode(), "")
		fe.Err = err
		return fe
	}
	return &failure.Error{Kind: failure.KindProvider, Provider: s3Name, Message: "upload failed", Err: err}
}
