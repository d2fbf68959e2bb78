package retrievalService_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artifact-review/internal/blobstore"
	"artifact-review/internal/model/artifact"
	"artifact-review/internal/repository/artifactRepo"
	"artifact-review/internal/service/permission"
	"artifact-review/internal/service/retrievalService"
	"artifact-review/pkg/logger"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc   *retrievalService.Service
	store *artifactRepo.Memory
	blobs *blobstore.Memory
	owner uuid.UUID
	art   *artifact.Artifact
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: artifactRepo.NewMemory(), blobs: blobstore.NewMemory(), owner: uuid.New()}
	f.svc = retrievalService.New(f.store, f.blobs, permission.New(f.store), logger.NewNop())
	return f
}

// addVersion stores a ready multi-file version with the given files.
func (f *fixture) addVersion(t *testing.T, entry string, files map[string]string) *artifact.Version {
	t.Helper()
	ctx := context.Background()
	v := &artifact.Version{
		ID: uuid.New(), FileType: artifact.FileTypeZip, EntryPoint: entry,
		Status: artifact.StatusReady, CreatedBy: f.owner, CreatedAt: now, UpdatedAt: now,
	}
	if f.art == nil {
		f.art = &artifact.Artifact{ID: uuid.New(), Name: "site", CreatedBy: f.owner, ShareToken: "share123", CreatedAt: now, UpdatedAt: now}
		require.NoError(t, f.store.CreateArtifact(ctx, f.art, v, nil))
	} else {
		v.ArtifactID = f.art.ID
		require.NoError(t, f.store.AddVersion(ctx, v, nil))
	}
	for p, body := range files {
		h, err := f.blobs.Put(ctx, []byte(body))
		require.NoError(t, err)
		require.NoError(t, f.store.CreateFile(ctx, &artifact.File{
			ID: uuid.New(), VersionID: v.ID, Path: p, BlobHandle: string(h),
			MimeType: artifact.MimeTypeForPath(p), Size: int64(len(body)), CreatedAt: now,
		}))
	}
	return v
}

func TestGetEntryPointContent(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	v := f.addVersion(t, "index.html", map[string]string{"index.html": "<h1>x</h1>", "about.html": "a"})

	c, err := f.svc.GetEntryPointContent(ctx, v.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "index.html", c.Path)
	assert.Equal(t, "text/html", c.MimeType)
	assert.EqualValues(t, 10, c.Size)
	assert.Equal(t, artifact.FileTypeZip, c.FileType)
	require.NotNil(t, c.URL)

	missing, err := f.svc.GetEntryPointContent(ctx, uuid.New(), nil)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetEntryPointContent_MissingBlob(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	v := f.addVersion(t, "index.html", map[string]string{"index.html": "gone soon"})

	file, err := f.svc.GetFileByPath(ctx, v.ID, "index.html")
	require.NoError(t, err)
	require.NoError(t, f.blobs.Delete(ctx, blobstore.Handle(file.BlobHandle)))

	c, err := f.svc.GetEntryPointContent(ctx, v.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, c, "a missing blob is not a missing file")
	assert.Nil(t, c.URL)
}

func TestGetEntryPointContent_NoEntryOrFile(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	pending := f.addVersion(t, "", nil)
	dangling := f.addVersion(t, "index.html", map[string]string{"other.html": "x"})

	for _, id := range []uuid.UUID{pending.ID, dangling.ID} {
		c, err := f.svc.GetEntryPointContent(ctx, id, nil)
		require.NoError(t, err)
		assert.Nil(t, c)
	}
}

func TestDeletedArtifactHidesEverything(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	v := f.addVersion(t, "index.html", map[string]string{"index.html": "x"})
	require.NoError(t, f.store.SoftDeleteArtifact(ctx, f.art.ID, f.owner, now))

	c, err := f.svc.GetEntryPointContent(ctx, v.ID, &artifact.Principal{ID: f.owner})
	require.NoError(t, err)
	assert.Nil(t, c)

	files, err := f.svc.ListFiles(ctx, v.ID, &artifact.Principal{ID: f.owner})
	require.NoError(t, err)
	assert.Nil(t, files)

	shared, err := f.svc.OpenSharedFile(ctx, f.art.ShareToken, 1, "")
	require.NoError(t, err)
	assert.Nil(t, shared)
}

func TestGetFileByPathIsExact(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	v := f.addVersion(t, "index.html", map[string]string{"index.html": "x", "docs/guide.html": "y"})

	got, err := f.svc.GetFileByPath(ctx, v.ID, "docs/guide.html")
	require.NoError(t, err)
	require.NotNil(t, got)

	for _, p := range []string{"guide.html", "DOCS/guide.html", "/docs/guide.html", "docs/guide"} {
		got, err := f.svc.GetFileByPath(ctx, v.ID, p)
		require.NoError(t, err)
		assert.Nil(t, got, p)
	}
}

func TestListHTMLFiles(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	v := f.addVersion(t, "index.html", map[string]string{
		"index.html": "x", "b/page.HTM": "y", "app.js": "z", "style.css": "w",
	})

	files, err := f.svc.ListHTMLFiles(ctx, v.ID, nil)
	require.NoError(t, err)
	var paths []string
	for _, file := range files {
		paths = append(paths, file.Path)
	}
	assert.Equal(t, []string{"b/page.HTM", "index.html"}, paths)
}

func TestOpenSharedFile(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.addVersion(t, "docs/index.html", map[string]string{"docs/index.html": "one", "app.js": "js1"})
	f.addVersion(t, "index.html", map[string]string{"index.html": "two", "img/a.png": "png"})

	tests := []struct {
		name   string
		number int
		path   string
		body   string
		mime   string
	}{
		{"latest entry", 0, "", "two", "text/html"},
		{"numbered entry", 1, "", "one", "text/html"},
		{"index falls back to entry", 1, "index.html", "one", "text/html"},
		{"nested asset", 2, "img/a.png", "png", "image/png"},
		{"leading slash", 1, "/app.js", "js1", "application/javascript"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.OpenSharedFile(ctx, "share123", tt.number, tt.path)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, tt.body, string(got.Data))
			assert.Equal(t, tt.mime, got.MimeType)
		})
	}

	for _, miss := range []struct {
		token  string
		number int
		path   string
	}{
		{"nope", 0, ""},
		{"share123", 9, ""},
		{"share123", 2, "missing.html"},
		{"share123", 2, "../index.html"},
	} {
		got, err := f.svc.OpenSharedFile(ctx, miss.token, miss.number, miss.path)
		require.NoError(t, err)
		assert.Nil(t, got, "%+v", miss)
	}
}

func TestOpenSharedFileSkipsPendingVersions(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.addVersion(t, "index.html", map[string]string{"index.html": "ready"})
	pending := f.addVersion(t, "", nil)
	marked, err := f.store.MarkVersionError(ctx, pending.ID, artifact.StatusReady, "boom", now)
	require.NoError(t, err)
	require.True(t, marked)

	got, err := f.svc.OpenSharedFile(ctx, "share123", 2, "")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestOpenSharedFileLatestSkipsProcessing(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.addVersion(t, "index.html", map[string]string{"index.html": "ready"})
	processing := f.addVersion(t, "", nil)
	marked, err := f.store.MarkVersionError(ctx, processing.ID, artifact.StatusReady, "boom", now)
	require.NoError(t, err)
	require.True(t, marked)

	got, err := f.svc.OpenSharedFile(ctx, "share123", 0, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ready", string(got.Data))
}
