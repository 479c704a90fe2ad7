package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioOptions locates the bucket snapshots are uploaded to.
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}

// MinioStore uploads snapshots to an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
	index  Indexer
}

// NewMinioStore connects to the endpoint and makes sure the bucket exists.
func NewMinioStore(ctx context.Context, opts MinioOptions, index Indexer) (*MinioStore, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	s := &MinioStore{client: client, bucket: opts.Bucket, index: index}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinioStore) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("bucket error: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("bucket error: %w", err)
		}
	}
	return nil
}

// SaveSnapshot uploads data and returns the object URL.
func (s *MinioStore) SaveSnapshot(ctx context.Context, cameraName string, ts time.Time, data []byte) (string, error) {
	object := slug(cameraName) + "/" + ObjectName(cameraName, ts)

	_, err := s.client.PutObject(ctx, s.bucket, object, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "image/jpeg"})
	if err != nil {
		return "", fmt.Errorf("upload error: %w", err)
	}

	u := *s.client.EndpointURL()
	u.Path = "/" + s.bucket + "/" + object
	location := u.String()

	if err := index(ctx, s.index, cameraName, location, len(data), ts); err != nil {
		return "", err
	}
	return location, nil
}
