// Package storage reads template and signature images from, and archives
// finished letter PDFs to, S3-compatible blob storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/lvillar/letterpdf/config"
)

// MaxObjectSize caps how much of an object Fetch will read.
const MaxObjectSize = 32 << 20

// ErrNotConfigured is returned by a nil Client.
var ErrNotConfigured = errors.New("storage: blob storage not configured")

// Client wraps a MinIO client bound to a default bucket.
type Client struct {
	client *minio.Client
	bucket string
	prefix string
}

// New connects to the configured endpoint. It does not perform any request;
// the first operation surfaces connectivity problems.
func New(cfg config.MinioConfig) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, ErrNotConfigured
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: creating minio client: %w", err)
	}
	return &Client{client: client, bucket: cfg.Bucket, prefix: cfg.ArchivePrefix}, nil
}

// EnsureBucket creates the default bucket if it does not exist.
func (c *Client) EnsureBucket(ctx context.Context) error {
	if c == nil {
		return ErrNotConfigured
	}
	exists, err := c.client.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("storage: checking bucket %s: %w", c.bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.client.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("storage: creating bucket %s: %w", c.bucket, err)
	}
	return nil
}

// Fetch reads an object in full. An empty bucket means the default bucket.
func (c *Client) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	if c == nil {
		return nil, ErrNotConfigured
	}
	if bucket == "" {
		bucket = c.bucket
	}
	obj, err := c.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("storage: get %s/%s: %w", bucket, key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, MaxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("storage: read %s/%s: %w", bucket, key, err)
	}
	if len(data) > MaxObjectSize {
		return nil, fmt.Errorf("storage: %s/%s exceeds %d bytes", bucket, key, MaxObjectSize)
	}
	return data, nil
}

// Archive uploads a PDF under the archive prefix and returns the object key.
func (c *Client) Archive(ctx context.Context, name string, pdf []byte) (string, error) {
	if c == nil {
		return "", ErrNotConfigured
	}
	key := ArchiveKey(c.prefix, name)
	_, err := c.client.PutObject(ctx, c.bucket, key, bytes.NewReader(pdf), int64(len(pdf)),
		minio.PutObjectOptions{ContentType: "application/pdf"})
	if err != nil {
		return "", fmt.Errorf("storage: archiving %s: %w", key, err)
	}
	return key, nil
}

// ArchiveKey joins prefix and name with exactly one slash.
func ArchiveKey(prefix, name string) string {
	name = strings.TrimLeft(name, "/")
	if prefix == "" {
		return name
	}
	return strings.TrimRight(prefix, "/") + "/" + name
}

// ParseS3URL splits s3://bucket/key into its parts.
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("storage: parsing %q: %w", raw, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("storage: %q is not an s3 URL", raw)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("storage: %q has no object key", raw)
	}
	return u.Host, key, nil
}
