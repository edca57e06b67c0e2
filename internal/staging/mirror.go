package staging

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"warehouse/internal/config"
)

// objectStore is the subset of *minio.Client the mirror needs.
type objectStore interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// MinIOMirror uploads artifacts to an S3-compatible bucket under Prefix.
type MinIOMirror struct {
	store  objectStore
	bucket string
	prefix string
	region string
	ready  bool
}

// NewMinIOMirror builds a mirror from pipeline settings. The endpoint may be a
// bare host:port or a URL; an https scheme forces TLS.
func NewMinIOMirror(cfg config.Mirror) (*MinIOMirror, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("staging mirror: endpoint is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("staging mirror: bucket is required")
	}

	endpoint, useSSL := cfg.Endpoint, cfg.UseSSL
	if u, err := url.Parse(cfg.Endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			useSSL = true
		}
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("staging mirror: create client: %w", err)
	}
	return newMirror(client, cfg), nil
}

func newMirror(store objectStore, cfg config.Mirror) *MinIOMirror {
	return &MinIOMirror{
		store:  store,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		region: cfg.Region,
	}
}

// Key returns the object key used for name.
func (m *MinIOMirror) Key(name string) string {
	if m.prefix == "" {
		return name
	}
	return path.Join(m.prefix, name)
}

// Put uploads the file at localPath as key, creating the bucket on first use.
func (m *MinIOMirror) Put(ctx context.Context, key, localPath string) error {
	if !m.ready {
		exists, err := m.store.BucketExists(ctx, m.bucket)
		if err != nil {
			return fmt.Errorf("bucket %s: %w", m.bucket, err)
		}
		if !exists {
			if err := m.store.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region}); err != nil {
				return fmt.Errorf("make bucket %s: %w", m.bucket, err)
			}
		}
		m.ready = true
	}

	object := m.Key(key)
	info, err := m.store.FPutObject(ctx, m.bucket, object, localPath, minio.PutObjectOptions{
		ContentType: "text/csv",
	})
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", m.bucket, object, err)
	}
	log.Printf("staging: mirrored bucket=%s key=%s size=%d", m.bucket, object, info.Size)
	return nil
}
