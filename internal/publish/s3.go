package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/haasonsaas/switchboard/internal/failure"
)

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Prefix          string `yaml:"prefix"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// s3API is the subset of *s3.Client used here.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Publisher uploads audio to a bucket.
type S3Publisher struct {
	client  s3API
	bucket  string
	prefix  string
	baseURL string
	logger  *slog.Logger
}

var (
	_ Publisher = (*S3Publisher)(nil)
	_ Pruner    = (*S3Publisher)(nil)
)

// NewS3Publisher creates an S3-backed publisher. When baseURL is empty,
// URLs use the bucket's virtual-hosted address.
func NewS3Publisher(ctx context.Context, cfg S3Config, baseURL string, logger *slog.Logger) (*S3Publisher, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("publish: s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	loadOptions := []func(*config.LoadOptions) error{
		config.WithRegion(region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("publish: load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
		if cfg.Prefix != "" {
			baseURL += "/" + strings.Trim(cfg.Prefix, "/")
		}
	}
	return newS3Publisher(client, bucket, cfg.Prefix, baseURL, logger), nil
}

func newS3Publisher(client s3API, bucket, prefix, baseURL string, logger *slog.Logger) *S3Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Publisher{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		baseURL: baseURL,
		logger:  logger.With("component", component, "backend", "s3"),
	}
}

// Publish uploads audio and returns its URL.
func (p *S3Publisher) Publish(ctx context.Context, callID string, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", failure.New(failure.KindMalformedInput, component, "publish", errors.New("audio is empty"))
	}
	name := objectName(mimeType)
	key := p.objectKey(name)
	input := &s3.PutObjectInput{
		Bucket:        aws.String(p.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(audio),
		ContentLength: aws.Int64(int64(len(audio))),
		Metadata:      map[string]string{"call-id": callID},
	}
	if mimeType != "" {
		input.ContentType = aws.String(mimeType)
	}
	if _, err := p.client.PutObject(ctx, input); err != nil {
		return "", classifyS3(err)
	}

	url := joinURL(p.baseURL, name)
	p.logger.DebugContext(ctx, "audio published", "call_id", callID, "bytes", len(audio), "key", key)
	return url, nil
}

// Prune deletes objects under the prefix last modified before olderThan.
func (p *S3Publisher) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(p.bucket)}
	if p.prefix != "" {
		input.Prefix = aws.String(p.prefix + "/")
	}
	removed := 0
	paginator := s3.NewListObjectsV2Paginator(p.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return removed, fmt.Errorf("publish: list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || obj.LastModified == nil || !obj.LastModified.Before(olderThan) {
				continue
			}
			if _, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(p.bucket),
				Key:    obj.Key,
			}); err != nil {
				p.logger.Warn("failed to prune audio object", "key", *obj.Key, "error", err)
				continue
			}
			removed++
		}
	}
	return removed, nil
}

func (p *S3Publisher) objectKey(name string) string {
	if p.prefix == "" {
		return name
	}
	return path.Join(p.prefix, name)
}

func classifyS3(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return failure.New(failure.KindTimeout, component, "publish", err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return failure.New(failure.KindAuth, component, "publish", err)
		}
	}
	return failure.New(failure.KindStorage, component, "publish", err)
}
