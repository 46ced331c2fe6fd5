package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/catalog_api/internal/config"
	"github.com/GTDGit/catalog_api/internal/models"
)

// ErrImageStorageDisabled is returned by uploads when no bucket is configured.
var ErrImageStorageDisabled = errors.New("image storage not configured")

// objectPutter is the subset of the S3 client used for uploads.
type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Service stores product images in an S3 bucket.
type S3Service struct {
	client        objectPutter
	bucket        string
	region        string
	keyPrefix     string
	publicBaseURL string
	timeout       time.Duration
	now           func() time.Time
}

// NewS3Service creates an S3Service. Static credentials from the config take
// precedence over the default AWS credential chain; a custom endpoint switches
// to path-style addressing (MinIO, LocalStack).
func NewS3Service(ctx context.Context, cfg *config.S3Config) (*S3Service, error) {
	if cfg == nil {
		return nil, fmt.Errorf("S3 config is nil")
	}
	if cfg.Bucket == "" {
		return nil, ErrImageStorageDisabled
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return newS3Service(client, cfg), nil
}

func newS3Service(client objectPutter, cfg *config.S3Config) *S3Service {
	base := strings.TrimSuffix(cfg.PublicBaseURL, "/")
	if base == "" {
		if cfg.Endpoint != "" {
			base = strings.TrimSuffix(cfg.Endpoint, "/") + "/" + cfg.Bucket
		} else {
			base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
		}
	}
	return &S3Service{
		client:        client,
		bucket:        cfg.Bucket,
		region:        cfg.Region,
		keyPrefix:     strings.Trim(cfg.KeyPrefix, "/"),
		publicBaseURL: base,
		timeout:       cfg.UploadTimeout,
		now:           time.Now,
	}
}

// UploadImage stores one product image under a fresh key and returns its
// public URL.
func (s *S3Service) UploadImage(ctx context.Context, img models.ImageFile) (string, error) {
	if len(img.Data) == 0 {
		return "", fmt.Errorf("image %q is empty", img.Filename)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	key := s.objectKey(img.Filename)
	contentType := img.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	start := time.Now()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(img.Data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(img.Data))),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		log.Error().Err(err).Str("key", key).Str("filename", img.Filename).Msg("Failed to upload image to S3")
		return "", fmt.Errorf("failed to upload %s: %w", img.Filename, err)
	}

	log.Debug().Str("key", key).Dur("duration", time.Since(start)).Msg("Uploaded image to S3")
	return s.GetObjectURL(key), nil
}

// GetObjectURL returns the public URL for an object key.
func (s *S3Service) GetObjectURL(key string) string {
	return s.publicBaseURL + "/" + key
}

// objectKey builds <prefix>/<yyyy>/<mm>/<uuid><ext>.
func (s *S3Service) objectKey(filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	t := s.now().UTC()
	key := fmt.Sprintf("%04d/%02d/%s%s", t.Year(), int(t.Month()), uuid.New().String(), ext)
	if s.keyPrefix != "" {
		key = s.keyPrefix + "/" + key
	}
	return key
}

// DisabledImageUploader fails every upload. It stands in for S3Service when no
// bucket is configured so imports without images keep working.
type DisabledImageUploader struct{}

func (DisabledImageUploader) UploadImage(ctx context.Context, img models.ImageFile) (string, error) {
	return "", ErrImageStorageDisabled
}
