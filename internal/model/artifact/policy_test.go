package artifact_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artifact-review/internal/model/artifact"
)

func TestFileTypes(t *testing.T) {
	t.Run("valid types", func(t *testing.T) {
		for _, s := range []string{"html", "markdown", "zip"} {
			assert.True(t, artifact.IsValidFileType(s), s)
		}
		assert.False(t, artifact.IsValidFileType("pdf"))
		assert.False(t, artifact.IsValidFileType("HTML"))
	})

	t.Run("single file types exclude zip", func(t *testing.T) {
		assert.True(t, artifact.IsSingleFileType("html"))
		assert.True(t, artifact.IsSingleFileType("markdown"))
		assert.False(t, artifact.IsSingleFileType("zip"))
		assert.False(t, artifact.IsSingleFileType("exe"))
	})

	t.Run("lookup tables", func(t *testing.T) {
		assert.Equal(t, "index.html", artifact.FileTypeHTML.DefaultPath())
		assert.Equal(t, "README.md", artifact.FileTypeMarkdown.DefaultPath())
		assert.Equal(t, "text/html", artifact.FileTypeHTML.MimeType())
		assert.Equal(t, "text/markdown", artifact.FileTypeMarkdown.MimeType())
		assert.Equal(t, "application/zip", artifact.FileTypeZip.MimeType())
	})

	t.Run("parse error is a policy violation", func(t *testing.T) {
		_, err := artifact.ParseFileType("docx")
		require.Error(t, err)
		assert.Equal(t, artifact.KindPolicyViolation, artifact.KindOf(err))
	})

	t.Run("json round trip uses names", func(t *testing.T) {
		b, err := json.Marshal(artifact.FileTypeMarkdown)
		require.NoError(t, err)
		assert.Equal(t, `"markdown"`, string(b))

		var ft artifact.FileType
		require.NoError(t, json.Unmarshal([]byte(`"zip"`), &ft))
		assert.Equal(t, artifact.FileTypeZip, ft)
		assert.Error(t, json.Unmarshal([]byte(`"exe"`), &ft))
	})
}

func TestArchiveSizeBoundary(t *testing.T) {
	assert.NoError(t, artifact.CheckArchiveSize(52428800))

	err := artifact.CheckArchiveSize(52428801)
	require.Error(t, err)
	assert.Equal(t, artifact.KindPolicyViolation, artifact.KindOf(err))
	assert.Contains(t, err.Error(), "52428801")
}

func TestSingleFileSizeBoundary(t *testing.T) {
	assert.NoError(t, artifact.CheckSingleFileSize(5*artifact.MiB))
	err := artifact.CheckSingleFileSize(5*artifact.MiB + 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprint(5*artifact.MiB+1))
}

func TestIsForbiddenExtension(t *testing.T) {
	cases := map[string]bool{
		"video.mp4":            true,
		"ASSETS/VIDEO.MP4":     true,
		"deep/dir/setup.EXE":   true,
		"report.docx":          true,
		"scripts/install.sh":   true,
		"index.html":           false,
		"app.js":               false,
		"mp4.txt":              false,
		"styles/main.css":      false,
		"readme.md":            false,
		"assets/movie.mp4.png": false,
	}
	for p, want := range cases {
		assert.Equal(t, want, artifact.IsForbiddenExtension(p), p)
	}
}

func TestMimeTypeForPath(t *testing.T) {
	assert.Equal(t, "text/html", artifact.MimeTypeForPath("a/b/INDEX.HTM"))
	assert.Equal(t, "text/css", artifact.MimeTypeForPath("styles/main.css"))
	assert.Equal(t, "image/svg+xml", artifact.MimeTypeForPath("logo.svg"))
	assert.Equal(t, "text/markdown", artifact.MimeTypeForPath("docs/guide.markdown"))
	assert.Equal(t, artifact.OctetStream, artifact.MimeTypeForPath("LICENSE"))
	assert.Equal(t, artifact.OctetStream, artifact.MimeTypeForPath("data.bin"))
}

func TestErrorKinds(t *testing.T) {
	base := errors.New("disk on fire")
	wrapped := artifact.IngestionFailure(base)
	assert.Equal(t, artifact.KindIngestionFailure, artifact.KindOf(wrapped))
	assert.ErrorIs(t, wrapped, base)

	policy := artifact.Policyf("too many files")
	assert.Equal(t, artifact.KindPolicyViolation, artifact.KindOf(artifact.IngestionFailure(policy)))
	assert.Equal(t, artifact.KindPolicyViolation, artifact.KindOf(fmt.Errorf("ctx: %w", policy)))

	assert.Equal(t, artifact.KindInternal, artifact.KindOf(base))
	assert.Nil(t, artifact.IngestionFailure(nil))
}

func TestStatusAndLevel(t *testing.T) {
	assert.Equal(t, artifact.StatusReady, artifact.Status("").Effective())
	assert.Equal(t, artifact.StatusError, artifact.StatusError.Effective())

	assert.False(t, artifact.LevelNone.CanView())
	assert.True(t, artifact.LevelPublic.CanView())
	assert.Equal(t, "reviewer", artifact.LevelReviewer.String())
	assert.Equal(t, "owner", artifact.LevelOwner.String())
}
