package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinIOConfig struct {
	Endpoint   string `env:"MINIO_ENDPOINT" env-default:"minio:9000"`
	BucketName string `env:"MINIO_BUCKET_NAME" env-default:"artifacts"`
	AccessKey  string `env:"MINIO_ACCESS_KEY" env-default:"admin"`
	SecretKey  string `env:"MINIO_SECRET_KEY" env-default:"admin-secret"`
	UseSSL     bool   `env:"MINIO_USE_SSL" env-default:"false"`
}

type MinIO struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// NewMinIO connects and makes sure the bucket exists.
func NewMinIO(ctx context.Context, cfg MinIOConfig, expiry time.Duration) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize minio client: %w", err)
	}

	if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
		exists, errBucketExists := client.BucketExists(ctx, cfg.BucketName)
		if errBucketExists != nil || !exists {
			return nil, fmt.Errorf("failed to create bucket %q: %w", cfg.BucketName, err)
		}
	}

	return &MinIO{client: client, bucket: cfg.BucketName, expiry: expiry}, nil
}

func isMinIONotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}

func (m *MinIO) Put(ctx context.Context, data []byte) (Handle, error) {
	h := HandleFor(data)
	key, _ := ObjectKey(h)

	if _, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{}); err == nil {
		return h, nil
	}
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return "", fmt.Errorf("minio put %s: %w", key, err)
	}
	return h, nil
}

func (m *MinIO) PutKey(ctx context.Context, key string, data []byte) (Handle, error) {
	h, err := rawHandle(key)
	if err != nil {
		return "", err
	}
	_, err = m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/zip"})
	if err != nil {
		return "", fmt.Errorf("minio put %s: %w", key, err)
	}
	return h, nil
}

func (m *MinIO) Get(ctx context.Context, h Handle) ([]byte, error) {
	key, err := ObjectKey(h)
	if err != nil {
		return nil, err
	}
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		if isMinIONotFound(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("minio get %s: %w", key, err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key surfaces on first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		if isMinIONotFound(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("minio read %s: %w", key, err)
	}
	return data, nil
}

func (m *MinIO) URL(ctx context.Context, h Handle) (*string, error) {
	key, err := ObjectKey(h)
	if err != nil {
		return nil, err
	}
	if _, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isMinIONotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("minio stat %s: %w", key, err)
	}
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, m.expiry, url.Values{})
	if err != nil {
		return nil, fmt.Errorf("minio presign get %s: %w", key, err)
	}
	s := u.String()
	return &s, nil
}

func (m *MinIO) Delete(ctx context.Context, h Handle) error {
	key, err := ObjectKey(h)
	if err != nil {
		return err
	}
	return m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
}

func (m *MinIO) UploadURL(ctx context.Context, key string) (string, error) {
	if _, err := ObjectKey(Handle(key)); err != nil {
		return "", err
	}
	u, err := m.client.PresignedPutObject(ctx, m.bucket, key, m.expiry)
	if err != nil {
		return "", fmt.Errorf("minio presign put %s: %w", key, err)
	}
	return u.String(), nil
}
