package blobstore

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 answers the handful of path-style object calls the driver makes.
type fakeS3 struct {
	mu      sync.Mutex
	bucket  string
	objects map[string][]byte
	puts    int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/"+f.bucket+"/")

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[key] = body
		f.puts++
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		data, ok := f.objects[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		data, ok := f.objects[key]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(data)
	case http.MethodDelete:
		delete(f.objects, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeS3) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func (f *fakeS3) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

func newTestS3(t *testing.T) (*S3, *fakeS3) {
	t.Helper()
	fake := &fakeS3{bucket: "artifacts", objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := NewS3(context.Background(), S3Config{
		Bucket:    "artifacts",
		Region:    "us-east-1",
		Endpoint:  srv.URL,
		AccessKey: "test",
		SecretKey: "test-secret",
	}, time.Minute)
	require.NoError(t, err)
	return s, fake
}

func TestS3RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, fake := newTestS3(t)

	h, err := s.Put(ctx, []byte("body{}"))
	require.NoError(t, err)
	key, _ := ObjectKey(h)
	assert.True(t, fake.has(key))

	// content addressed puts are idempotent
	_, err = s.Put(ctx, []byte("body{}"))
	require.NoError(t, err)
	assert.Equal(t, 1, fake.putCount())

	data, err := s.Get(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "body{}", string(data))

	u, err := s.URL(ctx, h)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Contains(t, *u, key)
	assert.Contains(t, *u, "X-Amz-Signature")

	require.NoError(t, s.Delete(ctx, h))
	_, err = s.Get(ctx, h)
	assert.ErrorIs(t, err, ErrBlobNotFound)

	u, err = s.URL(ctx, h)
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestS3UploadURL(t *testing.T) {
	s, _ := newTestS3(t)

	u, err := s.UploadURL(context.Background(), "uploads/abc.zip")
	require.NoError(t, err)
	assert.Contains(t, u, "/artifacts/uploads/abc.zip")

	_, err = s.UploadURL(context.Background(), "../escape")
	assert.ErrorIs(t, err, ErrInvalidHandle)
}
