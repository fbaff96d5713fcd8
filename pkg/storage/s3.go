package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/SaintWyss/rag-corp-sub003/pkg/observability"
)

// S3API is the subset of the S3 client the storage layer uses. Narrowed for
// testability, mirroring the queue package's SQSAPI.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner produces presigned GET URLs
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (string, error)
}

// Config holds S3 storage configuration
type Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	// EndpointURL targets S3-compatible services (MinIO, LocalStack)
	EndpointURL    string `mapstructure:"endpoint_url"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// S3Storage implements FileStorage over S3
type S3Storage struct {
	client    S3API
	presigner Presigner
	bucket    string
	logger    observability.Logger
}

// NewS3Storage builds the S3 clients from config. Static credentials are
// optional: when absent the default AWS credential chain applies (IRSA, env,
// shared config).
func NewS3Storage(ctx context.Context, cfg Config, logger observability.Logger) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, &Error{Kind: ErrConfiguration, Op: "init", cause: errors.New("bucket is required")}
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}

	var options []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		options = append(options, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		options = append(options, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, &Error{Kind: ErrConfiguration, Op: "init", cause: err}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3Storage{
		client:    client,
		presigner: &sdkPresigner{inner: s3.NewPresignClient(client)},
		bucket:    cfg.Bucket,
		logger:    logger,
	}, nil
}

// NewS3StorageWithAPI injects custom clients (for testing)
func NewS3StorageWithAPI(api S3API, presigner Presigner, bucket string, logger observability.Logger) *S3Storage {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &S3Storage{client: api, presigner: presigner, bucket: bucket, logger: logger}
}

// Upload stores the content under key
func (s *S3Storage) Upload(ctx context.Context, key string, content io.Reader, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   content,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return s.wrap("upload", key, err)
	}
	return nil
}

// Download returns the blob bytes
func (s *S3Storage) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.wrap("download", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, s.wrap("download", key, err)
	}
	return data, nil
}

// Delete removes the blob. S3 DeleteObject succeeds for missing keys, which
// gives us idempotence for free.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return s.wrap("delete", key, err)
	}
	return nil
}

// Presign returns a GET-only URL valid for ttl
func (s *S3Storage) Presign(ctx context.Context, key string, ttl time.Duration, suggestedFilename string) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if suggestedFilename != "" {
		input.ResponseContentDisposition = aws.String(contentDisposition(suggestedFilename))
	}
	url, err := s.presigner.PresignGetObject(ctx, input, func(o *s3.PresignOptions) {
		o.Expires = ttl
	})
	if err != nil {
		return "", s.wrap("presign", key, err)
	}
	return url, nil
}

// contentDisposition builds an attachment header value, escaping quotes in
// the filename
func contentDisposition(filename string) string {
	escaped := strings.ReplaceAll(filename, `"`, `\"`)
	return fmt.Sprintf(`attachment; filename="%s"`, escaped)
}

func (s *S3Storage) wrap(op, key string, err error) error {
	kind := ErrUnavailable
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket":
			kind = ErrNotFound
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			kind = ErrPermission
		}
	}
	return &Error{Kind: kind, Op: op, Key: key, cause: err}
}

// sdkPresigner adapts the SDK presign client to the Presigner interface
type sdkPresigner struct {
	inner *s3.PresignClient
}

func (p *sdkPresigner) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (string, error) {
	req, err := p.inner.PresignGetObject(ctx, params, optFns...)
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
