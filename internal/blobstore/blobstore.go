// Package blobstore persists opaque file bodies. Content written through Put
// is addressed by its BLAKE3 digest, so storing the same bytes twice yields
// the same handle and a single object.
package blobstore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"artifact-review/internal/metrics"
)

const (
	handlePrefix = "blake3:"
	blobPrefix   = "blobs/"

	DriverMinIO  = "minio"
	DriverS3     = "s3"
	DriverMemory = "memory"
)

var (
	ErrBlobNotFound        = errors.New("blob not found")
	ErrPresignNotSupported = errors.New("blob driver does not support presigned uploads")
	ErrInvalidHandle       = errors.New("invalid blob handle")
)

// Handle identifies a stored blob. Handles returned by Put look like
// "blake3:<hex>"; handles of client uploads are the raw object key.
type Handle string

func HandleFor(data []byte) Handle {
	sum := blake3.Sum256(data)
	return Handle(handlePrefix + hex.EncodeToString(sum[:]))
}

func (h Handle) String() string { return string(h) }

// ContentAddressed reports whether h was produced by HandleFor.
func (h Handle) ContentAddressed() bool {
	return strings.HasPrefix(string(h), handlePrefix)
}

// ObjectKey maps a handle onto the bucket namespace.
func ObjectKey(h Handle) (string, error) {
	s := string(h)
	if s == "" || strings.Contains(s, "..") || strings.HasPrefix(s, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidHandle, s)
	}
	if h.ContentAddressed() {
		digest := strings.TrimPrefix(s, handlePrefix)
		if len(digest) != 64 {
			return "", fmt.Errorf("%w: %q", ErrInvalidHandle, s)
		}
		return blobPrefix + digest, nil
	}
	return s, nil
}

// UploadKey is where a pending version's archive is put before ingestion.
func UploadKey(artifactID, versionID uuid.UUID) string {
	return fmt.Sprintf("uploads/%s/%s.zip", artifactID, versionID)
}

// rawHandle validates a caller-chosen key. Keys may not impersonate content
// addresses.
func rawHandle(key string) (Handle, error) {
	h := Handle(key)
	if h.ContentAddressed() {
		return "", fmt.Errorf("%w: %q", ErrInvalidHandle, key)
	}
	if _, err := ObjectKey(h); err != nil {
		return "", err
	}
	return h, nil
}

type Store interface {
	Put(ctx context.Context, data []byte) (Handle, error)
	// PutKey stores data under a caller-chosen key, the way a presigned
	// upload lands in the bucket. The key itself is the handle.
	PutKey(ctx context.Context, key string, data []byte) (Handle, error)
	// Get returns ErrBlobNotFound when nothing is stored under h.
	Get(ctx context.Context, h Handle) ([]byte, error)
	// URL returns a time-limited download URL, or nil when the blob is missing.
	URL(ctx context.Context, h Handle) (*string, error)
	Delete(ctx context.Context, h Handle) error
	// UploadURL returns a presigned PUT URL for key.
	UploadURL(ctx context.Context, key string) (string, error)
}

type Config struct {
	Driver    string        `env:"BLOB_DRIVER" env-default:"minio"`
	URLExpiry time.Duration `env:"BLOB_URL_EXPIRY" env-default:"15m"`
	MinIO     MinIOConfig
	S3        S3Config
}

// New builds the configured driver wrapped with operation metrics.
func New(ctx context.Context, cfg Config) (Store, error) {
	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case DriverMinIO:
		store, err = NewMinIO(ctx, cfg.MinIO, cfg.URLExpiry)
	case DriverS3:
		store, err = NewS3(ctx, cfg.S3, cfg.URLExpiry)
	case DriverMemory:
		store = NewMemory()
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(cfg.Driver, store), nil
}

type instrumented struct {
	driver string
	next   Store
}

// Instrument records every call on next under the given driver label.
func Instrument(driver string, next Store) Store {
	return &instrumented{driver: driver, next: next}
}

func (s *instrumented) Put(ctx context.Context, data []byte) (h Handle, err error) {
	defer func(start time.Time) { metrics.RecordBlobOperation(s.driver, "put", err, start) }(time.Now())
	return s.next.Put(ctx, data)
}

func (s *instrumented) PutKey(ctx context.Context, key string, data []byte) (h Handle, err error) {
	defer func(start time.Time) { metrics.RecordBlobOperation(s.driver, "put", err, start) }(time.Now())
	return s.next.PutKey(ctx, key, data)
}

func (s *instrumented) Get(ctx context.Context, h Handle) (data []byte, err error) {
	defer func(start time.Time) {
		if errors.Is(err, ErrBlobNotFound) {
			metrics.RecordBlobOperation(s.driver, "get", nil, start)
			return
		}
		metrics.RecordBlobOperation(s.driver, "get", err, start)
	}(time.Now())
	return s.next.Get(ctx, h)
}

func (s *instrumented) URL(ctx context.Context, h Handle) (u *string, err error) {
	defer func(start time.Time) { metrics.RecordBlobOperation(s.driver, "url", err, start) }(time.Now())
	return s.next.URL(ctx, h)
}

func (s *instrumented) Delete(ctx context.Context, h Handle) (err error) {
	defer func(start time.Time) { metrics.RecordBlobOperation(s.driver, "delete", err, start) }(time.Now())
	return s.next.Delete(ctx, h)
}

func (s *instrumented) UploadURL(ctx context.Context, key string) (u string, err error) {
	defer func(start time.Time) { metrics.RecordBlobOperation(s.driver, "presign_put", err, start) }(time.Now())
	return s.next.UploadURL(ctx, key)
}
