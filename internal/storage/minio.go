package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"echograph/internal/config"
	"echograph/internal/logger"
)

// Client wraps the S3-compatible blob store holding original document files.
// Objects are keyed by "{uuid}{ext}" names generated at upload time.
type Client struct {
	mc     *minio.Client
	bucket string
}

// New connects to MinIO and ensures the configured bucket exists.
func New(cfg *config.Config) (*Client, error) {
	mc, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	exists, err := mc.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %q: %w", cfg.MinioBucket, err)
	}
	if !exists {
		if err := mc.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.MinioBucket, err)
		}
		logger.Info("Created blob store bucket", "bucket", cfg.MinioBucket)
	}

	return &Client{mc: mc, bucket: cfg.MinioBucket}, nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string { return c.bucket }

// Upload stores a byte slice under the given object name.
func (c *Client) Upload(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	_, err := c.mc.PutObject(ctx, c.bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %q: %w", name, err)
	}
	return name, nil
}

// UploadStream stores a reader of known length under the given object name.
func (c *Client) UploadStream(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	_, err := c.mc.PutObject(ctx, c.bucket, name, r, size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %q: %w", name, err)
	}
	return name, nil
}

// Download writes the object to a local file path.
func (c *Client) Download(ctx context.Context, name, localPath string) error {
	if err := c.mc.FGetObject(ctx, c.bucket, name, localPath, minio.GetObjectOptions{}); err != nil {
		return fmt.Errorf("failed to download object %q: %w", name, err)
	}
	return nil
}

// Delete removes an object. Callers treat failures as non-fatal and log them.
func (c *Client) Delete(ctx context.Context, name string) error {
	if err := c.mc.RemoveObject(ctx, c.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object %q: %w", name, err)
	}
	return nil
}

// DefaultPresignTTL is how long generated download links stay valid.
const DefaultPresignTTL = 15 * time.Minute

// PresignedURL returns a time-limited GET URL for the object.
func (c *Client) PresignedURL(ctx context.Context, name string, ttl time.Duration) (string, error) {
	u, err := c.mc.PresignedGetObject(ctx, c.bucket, name, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign object %q: %w", name, err)
	}
	return u.String(), nil
}
