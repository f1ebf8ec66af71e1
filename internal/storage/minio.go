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

	"github.com/your-org/presensi/internal/config"
)

// MinIOStore keeps attendance photos and avatars in two buckets. Both are
// publicly readable so stored addresses can be opened directly.
type MinIOStore struct {
	client       *minio.Client
	bucket       string
	avatarBucket string
	baseURL      string
}

func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	base := cfg.PublicURL
	if base == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		base = scheme + "://" + cfg.Endpoint
	}

	return &MinIOStore{
		client:       client,
		bucket:       cfg.Bucket,
		avatarBucket: cfg.AvatarBucket,
		baseURL:      strings.TrimRight(base, "/"),
	}, nil
}

// EnsureBuckets creates both buckets if needed and makes them publicly readable.
func (s *MinIOStore) EnsureBuckets(ctx context.Context) error {
	for _, bucket := range []string{s.bucket, s.avatarBucket} {
		exists, err := s.client.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
		}
		if err := s.client.SetBucketPolicy(ctx, bucket, publicReadPolicy(bucket)); err != nil {
			return fmt.Errorf("set policy on %s: %w", bucket, err)
		}
	}
	return nil
}

func publicReadPolicy(bucket string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, bucket)
}

// ObjectURL is the public address of key in bucket.
func (s *MinIOStore) ObjectURL(bucket, key string) string {
	return s.baseURL + "/" + bucket + "/" + url.PathEscape(key)
}

func (s *MinIOStore) put(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s/%s: %w", bucket, key, err)
	}
	return nil
}

// UploadPhoto stores an attendance photo and returns its public address.
func (s *MinIOStore) UploadPhoto(ctx context.Context, key string, data []byte) (string, error) {
	if err := s.put(ctx, s.bucket, key, data, "image/jpeg"); err != nil {
		return "", err
	}
	return s.ObjectURL(s.bucket, key), nil
}

// UploadAvatar stores an enrollment avatar and returns its public address.
func (s *MinIOStore) UploadAvatar(ctx context.Context, key string, data []byte) (string, error) {
	if err := s.put(ctx, s.avatarBucket, key, data, "image/jpeg"); err != nil {
		return "", err
	}
	return s.ObjectURL(s.avatarBucket, key), nil
}

// GetPhoto retrieves an attendance photo by key.
func (s *MinIOStore) GetPhoto(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// DeleteAvatar removes an avatar. A missing object is not an error.
func (s *MinIOStore) DeleteAvatar(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	return s.client.RemoveObject(ctx, s.avatarBucket, key, minio.RemoveObjectOptions{})
}

// Ping checks MinIO connectivity.
func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
