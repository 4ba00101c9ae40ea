package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/docshare/conduit/internal/config"
	"github.com/docshare/conduit/pkg/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const userMetaPrefix = "x-amz-meta-"

// ObjectMeta is what an uploaded object tells us about itself.
type ObjectMeta struct {
	Size     int64
	Metadata map[string]string
}

type MinIOClient struct {
	client *minio.Client
	bucket string
}

func NewMinIOClient(cfg config.MinIOConfig) (*MinIOClient, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	return &MinIOClient{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

func (m *MinIOClient) Bucket() string {
	return m.bucket
}

// StatMetadata reads the user metadata of an object. An empty bucket means the configured one.
func (m *MinIOClient) StatMetadata(ctx context.Context, bucket, objectName string) (*ObjectMeta, error) {
	if bucket == "" {
		bucket = m.bucket
	}

	info, err := m.client.StatObject(ctx, bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		logger.Error("minio_stat_failed", err, map[string]interface{}{
			"object_name": objectName,
			"bucket":      bucket,
		})
		return nil, fmt.Errorf("stat %s/%s: %w", bucket, objectName, err)
	}

	return &ObjectMeta{Size: info.Size, Metadata: userMetadata(info)}, nil
}

// userMetadata merges the prefixed response headers with minio's parsed user metadata.
func userMetadata(info minio.ObjectInfo) map[string]string {
	out := make(map[string]string)
	for key, values := range info.Metadata {
		lower := strings.ToLower(key)
		if !strings.HasPrefix(lower, userMetaPrefix) || len(values) == 0 {
			continue
		}
		out[strings.TrimPrefix(lower, userMetaPrefix)] = values[0]
	}
	for key, value := range info.UserMetadata {
		out[strings.ToLower(strings.TrimPrefix(strings.ToLower(key), userMetaPrefix))] = value
	}
	return out
}

func (m *MinIOClient) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed creating bucket %s: %w", m.bucket, err)
	}
	logger.Info("minio_bucket_created", map[string]interface{}{
		"bucket": m.bucket,
	})
	return nil
}
