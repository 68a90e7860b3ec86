package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/lexiqai/voice-reply/internal/config"
)

// S3Mirror copies finished artifacts to an S3-compatible bucket.
type S3Mirror struct {
	client *minio.Client
	bucket string
	host   string
}

// NewS3Mirror connects to the configured endpoint. The bucket must already exist.
func NewS3Mirror(ctx context.Context, cfg *config.Config) (*S3Mirror, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3Secure,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init S3 client: %w", err)
	}

	scheme := "https"
	if !cfg.S3Secure {
		scheme = "http"
	}

	m := &S3Mirror{
		client: client,
		bucket: cfg.S3Bucket,
		host:   fmt.Sprintf("%s://%s", scheme, cfg.S3Endpoint),
	}

	if err := m.Ping(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Upload stores the artifact under its own name and returns its public URL.
func (m *S3Mirror) Upload(ctx context.Context, a Artifact) (string, error) {
	f, err := os.Open(a.Path)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	_, err = m.client.PutObject(ctx, m.bucket, a.Name, f, a.Size, minio.PutObjectOptions{
		ContentType:  "audio/mpeg",
		UserMetadata: map[string]string{"uploaded-at": time.Now().Format(time.RFC3339)},
	})
	if err != nil {
		return "", fmt.Errorf("upload failed: %w", err)
	}

	return m.publicURL(a.Name), nil
}

// Ping checks that the bucket is reachable.
func (m *S3Mirror) Ping(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", m.bucket)
	}
	return nil
}

func (m *S3Mirror) publicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", m.host, m.bucket, url.PathEscape(key))
}
