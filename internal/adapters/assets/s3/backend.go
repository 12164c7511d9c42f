// Package s3 stores badge metadata documents as JSON objects in an
// S3-compatible bucket.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/okian/growth/internal/adapters/assets"
	"github.com/okian/growth/internal/domain/model"
)

const (
	defaultRegion = "us-east-1"
	defaultPrefix = "metadata/"
	contentType   = "application/json"
)

// API is the subset of the S3 client the backend calls.
type API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds construction parameters.
type Config struct {
	Region          string
	Bucket          string
	Endpoint        string // optional; enables a custom endpoint such as MinIO
	AccessKeyID     string // optional; falls back to the default credentials chain
	SecretAccessKey string
	PathStyle       bool
	Prefix          string
}

// Backend implements assets.Backend on S3.
type Backend struct {
	client API
	bucket string
	prefix string
}

var _ assets.Backend = (*Backend)(nil)

// New builds an S3 client from cfg and the default AWS configuration chain.
func New(ctx context.Context, cfg Config, extra ...func(*s3.Options)) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		for _, fn := range extra {
			fn(o)
		}
	})
	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client API, bucket, prefix string) *Backend {
	if prefix == "" {
		prefix = defaultPrefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Backend{client: client, bucket: bucket, prefix: prefix}
}

// Key is the object key holding mint's document.
func (b *Backend) Key(mint model.Key) string {
	return b.prefix + mint.String() + ".json"
}

// Load implements assets.Backend.
func (b *Backend) Load(ctx context.Context, mint model.Key) (assets.Metadata, error) {
	key := b.Key(mint)
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &b.bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return assets.Metadata{}, fmt.Errorf("%w: %s", assets.ErrNotFound, mint)
		}
		return assets.Metadata{}, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()
	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return assets.Metadata{}, fmt.Errorf("read %s: %w", key, err)
	}
	var md assets.Metadata
	if err := json.Unmarshal(raw, &md); err != nil {
		return assets.Metadata{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return md, nil
}

// Save implements assets.Backend.
func (b *Backend) Save(ctx context.Context, md assets.Metadata) error {
	raw, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	key := b.Key(md.Mint)
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &b.bucket,
		Key:         &key,
		Body:        bytes.NewReader(raw),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var re *awshttp.ResponseError
	return errors.As(err, &re) && re.HTTPStatusCode() == http.StatusNotFound
}
