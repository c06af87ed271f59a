package imagehost

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// S3API is the subset of the S3 client used for image hosting.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type S3Opts struct {
	Bucket string
	Prefix string
	// PublicBaseURL serves objects directly when set, e.g. a CDN in front of
	// the bucket. Otherwise presigned GET URLs are returned.
	PublicBaseURL string
	PresignExpiry time.Duration
}

// S3 stores images in an S3 bucket.
type S3 struct {
	client    S3API
	presign   func(ctx context.Context, bucket, key string, expiry time.Duration) (string, error)
	opts      S3Opts
	newObject func() string
}

// s3RequestTimeout bounds a single S3 HTTP request.
const s3RequestTimeout = 30 * time.Second

// NewS3FromEnv builds an S3 host from the default AWS credential chain.
func NewS3FromEnv(ctx context.Context, opts S3Opts) (*S3, error) {
	httpClient := awshttp.NewBuildableClient().WithTimeout(s3RequestTimeout)
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return NewS3(client, s3.NewPresignClient(client), opts)
}

// NewS3 builds an S3 host. presigner may be nil when PublicBaseURL is set.
func NewS3(client S3API, presigner *s3.PresignClient, opts S3Opts) (*S3, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if opts.PublicBaseURL == "" && presigner == nil {
		return nil, fmt.Errorf("s3 needs a public base url or a presigner")
	}
	if opts.PresignExpiry == 0 {
		opts.PresignExpiry = 7 * 24 * time.Hour
	}
	h := &S3{
		client:    client,
		opts:      opts,
		newObject: func() string { return uuid.New().String() },
	}
	if presigner != nil {
		h.presign = func(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
			result, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
				Bucket: &bucket, Key: &key,
			}, s3.WithPresignExpires(expiry))
			if err != nil {
				return "", fmt.Errorf("presign GetObject: %w", err)
			}
			return result.URL, nil
		}
	}
	return h, nil
}

func (h *S3) Upload(ctx context.Context, data []byte, filename string) (*Image, error) {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" {
		ext = ".jpg"
	}
	key := path.Join(h.opts.Prefix, h.newObject()+ext)
	contentType := http.DetectContentType(data)

	_, err := h.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &h.opts.Bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload image to S3: %w", err)
	}

	url, err := h.url(ctx, key)
	if err != nil {
		return nil, err
	}

	log.Info().Str("key", key).Int("bytes", len(data)).Msg("uploaded image to S3")
	return &Image{URL: url, ID: key}, nil
}

func (h *S3) url(ctx context.Context, key string) (string, error) {
	if h.opts.PublicBaseURL != "" {
		return strings.TrimRight(h.opts.PublicBaseURL, "/") + "/" + key, nil
	}
	return h.presign(ctx, h.opts.Bucket, key, h.opts.PresignExpiry)
}

func (h *S3) Delete(ctx context.Context, id string) error {
	_, err := h.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(h.opts.Bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return fmt.Errorf("failed to delete image from S3: %w", err)
	}
	log.Info().Str("key", id).Msg("deleted image from S3")
	return nil
}
