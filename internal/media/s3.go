// ABOUTME: S3-compatible blob store built on aws-sdk-go-v2
// ABOUTME: Supports custom endpoints, path-style addressing and a public URL override

package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/lexdesk/chat-gateway/internal/config"
)

const defaultRegion = "us-east-1"

// S3Store stores objects in one bucket
type S3Store struct {
	client    *s3.Client
	bucket    string
	endpoint  string
	region    string
	pathStyle bool
	publicURL string
	logger    zerolog.Logger
}

// NewS3Store creates a client for cfg. Static credentials are used when set,
// otherwise the SDK's anonymous access.
func NewS3Store(_ context.Context, cfg config.S3Config, publicURL string, logger zerolog.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("media.s3.bucket is required")
	}

	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	// Endpoints that embed the bucket name are a common misconfiguration.
	endpoint = strings.Replace(endpoint, "://"+cfg.Bucket+".", "://", 1)

	awsCfg := aws.Config{Region: region}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		awsCfg.Credentials = aws.AnonymousCredentials{}
	}

	// Dotted bucket names break virtual-host TLS certificates.
	pathStyle := cfg.PathStyle || strings.Contains(cfg.Bucket, ".")

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = pathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	logger = logger.With().Str("component", "media.s3").Logger()
	logger.Info().
		Str("bucket", cfg.Bucket).
		Str("region", region).
		Str("endpoint", endpoint).
		Bool("path_style", pathStyle).
		Msg("s3 media store initialized")

	return &S3Store{
		client:    client,
		bucket:    cfg.Bucket,
		endpoint:  endpoint,
		region:    region,
		pathStyle: pathStyle,
		publicURL: strings.TrimRight(publicURL, "/"),
		logger:    logger,
	}, nil
}

// Put implements Store.
func (s *S3Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	key, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		CacheControl:  aws.String("public, max-age=3600"),
	}
	if strings.HasPrefix(contentType, "image/") || contentType == "application/pdf" {
		input.ContentDisposition = aws.String("inline")
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		s.logger.Error().Err(err).Str("key", key).Int("size", len(data)).Msg("failed to upload media")
		return "", fmt.Errorf("uploading %s: %w", key, err)
	}
	s.logger.Debug().Str("key", key).Int("size", len(data)).Msg("media uploaded")
	return s.URL(key), nil
}

// Get implements Store.
func (s *S3Store) Get(ctx context.Context, key string) (*Object, error) {
	key, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("downloading %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return &Object{Data: data, ContentType: aws.ToString(out.ContentType)}, nil
}

// URL returns the public URL of key.
func (s *S3Store) URL(key string) string {
	if s.publicURL != "" {
		return fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, key)
	}
	if s.endpoint != "" && !strings.Contains(s.endpoint, "amazonaws.com") {
		if s.pathStyle {
			return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)
		}
		scheme, host, found := strings.Cut(s.endpoint, "://")
		if !found {
			scheme, host = "https", s.endpoint
		}
		return fmt.Sprintf("%s://%s.%s/%s", scheme, s.bucket, host, key)
	}
	if s.pathStyle {
		return fmt.Sprintf("https://s3.%s.amazonaws.com/%s/%s", s.region, s.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}
