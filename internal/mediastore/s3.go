package mediastore

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"relaymirror/internal/config"
	"relaymirror/internal/logger"
	pkgerrors "relaymirror/pkg/errors"
	"relaymirror/pkg/metrics"
)

// S3 offloads oversized attachments to S3-compatible object storage and
// hands back a public link to relay in the attachment's place.
type S3 struct {
	client    *s3.Client
	bucket    string
	endpoint  string
	region    string
	publicURL string
	pathStyle bool
	logger    logger.Logger
}

func New(cfg config.MediaStoreConfig, log logger.Logger) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "media store bucket is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, pkgerrors.ErrValidation.WithDetail("message", "media store credentials are required")
	}

	awsCfg := aws.Config{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		// The dispatcher owns retry scheduling; a failed upload reschedules
		// the whole delivery attempt instead of stalling a worker here.
		RetryMaxAttempts: 1,
	}

	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		hostImmutable := cfg.PathStyle
		awsCfg.EndpointResolverWithOptions = aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				if service == s3.ServiceID {
					return aws.Endpoint{URL: endpoint, HostnameImmutable: hostImmutable}, nil
				}
				return aws.Endpoint{}, &aws.EndpointNotFoundError{}
			})
	}

	// Bucket names with dots break virtual-hosted TLS verification.
	pathStyle := cfg.PathStyle || strings.Contains(cfg.Bucket, ".")

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = pathStyle
	})

	return &S3{
		client:    client,
		bucket:    cfg.Bucket,
		endpoint:  cfg.Endpoint,
		region:    cfg.Region,
		publicURL: cfg.PublicURL,
		pathStyle: pathStyle,
		logger:    log,
	}, nil
}

// Ping lists a single object to verify the bucket is reachable with the
// configured credentials.
func (s *S3) Ping(ctx context.Context) error {
	_, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return pkgerrors.ErrServiceUnavailable.WithCause(err).
			WithDetail("message", "media store unreachable").
			WithDetail("bucket", s.bucket)
	}
	return nil
}

// Store uploads the attachment under a date-partitioned key and returns the
// public URL for it.
func (s *S3) Store(ctx context.Context, fileName, mimeType string, data []byte) (string, error) {
	key := s.objectKey(fileName, mimeType)

	contentType := mimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	input := &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=3600"),
	}
	if strings.HasPrefix(contentType, "image/") || strings.HasPrefix(contentType, "video/") || contentType == "application/pdf" {
		input.ContentDisposition = aws.String("inline")
	} else {
		input.ContentDisposition = aws.String(fmt.Sprintf("attachment; filename=%q", path.Base(fileName)))
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		metrics.IncMediaOffload("error")
		return "", pkgerrors.ErrServiceUnavailable.WithCause(err).
			WithDetail("message", "media store upload failed").
			WithDetail("key", key)
	}

	metrics.IncMediaOffload("success")
	link := s.objectURL(key)
	s.logger.InfowCtx(ctx, "Attachment offloaded",
		"key", key,
		"size_bytes", len(data),
		"mime_type", contentType,
	)
	return link, nil
}

func (s *S3) objectKey(fileName, mimeType string) string {
	folder := "documents"
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		folder = "images"
	case strings.HasPrefix(mimeType, "video/"):
		folder = "videos"
	case strings.HasPrefix(mimeType, "audio/"):
		folder = "audio"
	}

	ext := path.Ext(fileName)
	if ext == "" {
		ext = extensionForMime(mimeType)
	}

	return fmt.Sprintf("media/%s/%s/%s%s",
		time.Now().UTC().Format("2006/01/02"), folder, uuid.NewString(), ext)
}

func extensionForMime(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "jpeg"):
		return ".jpg"
	case strings.Contains(mimeType, "png"):
		return ".png"
	case strings.Contains(mimeType, "gif"):
		return ".gif"
	case strings.Contains(mimeType, "webp"):
		return ".webp"
	case strings.Contains(mimeType, "mp4"):
		return ".mp4"
	case strings.Contains(mimeType, "webm"):
		return ".webm"
	case strings.Contains(mimeType, "ogg"):
		return ".ogg"
	case strings.Contains(mimeType, "pdf"):
		return ".pdf"
	default:
		return ".bin"
	}
}

func (s *S3) objectURL(key string) string {
	if s.publicURL != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.publicURL, "/"), s.bucket, key)
	}

	if s.endpoint == "" || strings.Contains(s.endpoint, "amazonaws.com") {
		if s.pathStyle {
			return fmt.Sprintf("https://s3.%s.amazonaws.com/%s/%s", s.region, s.bucket, key)
		}
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	}

	if s.pathStyle {
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(s.endpoint, "/"), s.bucket, key)
	}
	host := strings.TrimPrefix(strings.TrimPrefix(s.endpoint, "https://"), "http://")
	return fmt.Sprintf("https://%s.%s/%s", s.bucket, host, key)
}
