package artifactRepo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artifact-review/internal/model/artifact"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newArtifact(owner uuid.UUID) *artifact.Artifact {
	return &artifact.Artifact{
		ID:         uuid.New(),
		Name:       "Landing page",
		CreatedBy:  owner,
		ShareToken: uuid.NewString()[:8],
		CreatedAt:  epoch,
		UpdatedAt:  epoch,
	}
}

func newVersion(artifactID, owner uuid.UUID, at time.Time) *artifact.Version {
	return &artifact.Version{
		ID:         uuid.New(),
		ArtifactID: artifactID,
		FileType:   artifact.FileTypeHTML,
		EntryPoint: "index.html",
		Size:       11,
		Status:     artifact.StatusReady,
		CreatedBy:  owner,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
}

func newFile(path string, at time.Time) *artifact.File {
	return &artifact.File{
		ID:         uuid.New(),
		Path:       path,
		BlobHandle: "blake3:" + uuid.NewString(),
		MimeType:   artifact.MimeTypeForPath(path),
		Size:       11,
		CreatedAt:  at,
	}
}

func seed(t *testing.T, s Store, owner uuid.UUID) (*artifact.Artifact, *artifact.Version) {
	t.Helper()
	a := newArtifact(owner)
	v := newVersion(a.ID, owner, epoch)
	require.NoError(t, s.CreateArtifact(context.Background(), a, v, newFile("index.html", epoch)))
	require.Equal(t, 1, v.Number)
	return a, v
}

func addVersion(t *testing.T, s Store, a *artifact.Artifact, at time.Time) *artifact.Version {
	t.Helper()
	v := newVersion(a.ID, a.CreatedBy, at)
	require.NoError(t, s.AddVersion(context.Background(), v, newFile("index.html", at)))
	return v
}

func numbers(vs []*artifact.Version) []int {
	out := make([]int, len(vs))
	for i, v := range vs {
		out[i] = v.Number
	}
	return out
}

// runStoreContract exercises the behaviour every Store must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	owner := uuid.New()

	t.Run("create and read back", func(t *testing.T) {
		s := newStore(t)
		a, v := seed(t, s, owner)

		got, err := s.GetArtifact(ctx, a.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, a.Name, got.Name)
		assert.Equal(t, a.ShareToken, got.ShareToken)

		byToken, err := s.GetArtifactByShareToken(ctx, a.ShareToken)
		require.NoError(t, err)
		require.NotNil(t, byToken)
		assert.Equal(t, a.ID, byToken.ID)

		gotV, err := s.GetVersion(ctx, v.ID)
		require.NoError(t, err)
		require.NotNil(t, gotV)
		assert.Equal(t, artifact.FileTypeHTML, gotV.FileType)
		assert.Equal(t, "index.html", gotV.EntryPoint)

		f, err := s.GetFileByPath(ctx, v.ID, "index.html")
		require.NoError(t, err)
		require.NotNil(t, f)
		assert.Equal(t, "text/html", f.MimeType)

		missing, err := s.GetArtifact(ctx, uuid.New())
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("share token is unique", func(t *testing.T) {
		s := newStore(t)
		a, _ := seed(t, s, owner)

		clash := newArtifact(owner)
		clash.ShareToken = a.ShareToken
		err := s.CreateArtifact(ctx, clash, newVersion(clash.ID, owner, epoch), nil)
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("numbers are never reused", func(t *testing.T) {
		s := newStore(t)
		a, _ := seed(t, s, owner)
		v2 := addVersion(t, s, a, epoch.Add(time.Minute))
		assert.Equal(t, 2, v2.Number)

		require.NoError(t, s.SoftDeleteVersion(ctx, v2.ID, owner, epoch.Add(2*time.Minute)))
		v3 := addVersion(t, s, a, epoch.Add(3*time.Minute))
		assert.Equal(t, 3, v3.Number)

		active, err := s.ListActiveVersions(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, []int{3, 1}, numbers(active))

		got, err := s.GetArtifact(ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, got.UpdatedAt.Equal(epoch.Add(3*time.Minute)))
	})

	t.Run("concurrent adds get distinct numbers", func(t *testing.T) {
		s := newStore(t)
		a, _ := seed(t, s, owner)

		const n = 10
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				v := newVersion(a.ID, owner, epoch.Add(time.Second))
				errs <- s.AddVersion(ctx, v, nil)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		active, err := s.ListActiveVersions(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, active, n+1)
		for i, v := range active {
			assert.Equal(t, n+1-i, v.Number)
		}
	})

	t.Run("sole active version cannot be deleted", func(t *testing.T) {
		s := newStore(t)
		a, v1 := seed(t, s, owner)

		assert.ErrorIs(t, s.SoftDeleteVersion(ctx, v1.ID, owner, epoch), ErrLastVersion)

		v2 := addVersion(t, s, a, epoch.Add(time.Minute))
		require.NoError(t, s.SoftDeleteVersion(ctx, v1.ID, owner, epoch.Add(2*time.Minute)))
		assert.ErrorIs(t, s.SoftDeleteVersion(ctx, v2.ID, owner, epoch), ErrLastVersion)

		got, err := s.GetArtifact(ctx, a.ID)
		require.NoError(t, err)
		assert.False(t, got.IsDeleted)

		files, err := s.ListFiles(ctx, v1.ID)
		require.NoError(t, err)
		assert.Empty(t, files)
	})

	t.Run("artifact delete cascades and keeps earlier stamps", func(t *testing.T) {
		s := newStore(t)
		a, v1 := seed(t, s, owner)
		v2 := addVersion(t, s, a, epoch.Add(time.Minute))

		earlier := epoch.Add(2 * time.Minute)
		require.NoError(t, s.SoftDeleteVersion(ctx, v1.ID, owner, earlier))

		other := uuid.New()
		later := epoch.Add(time.Hour)
		require.NoError(t, s.SoftDeleteArtifact(ctx, a.ID, other, later))

		got, err := s.GetArtifact(ctx, a.ID)
		require.NoError(t, err)
		assert.True(t, got.IsDeleted)
		assert.Equal(t, other, *got.DeletedBy)

		gotV1, err := s.GetVersion(ctx, v1.ID)
		require.NoError(t, err)
		assert.True(t, gotV1.DeletedAt.Equal(earlier))
		assert.Equal(t, owner, *gotV1.DeletedBy)

		gotV2, err := s.GetVersion(ctx, v2.ID)
		require.NoError(t, err)
		assert.True(t, gotV2.IsDeleted)
		assert.True(t, gotV2.DeletedAt.Equal(later))

		f, err := s.GetFileByPath(ctx, v2.ID, "index.html")
		require.NoError(t, err)
		assert.Nil(t, f)

		assert.ErrorIs(t, s.SoftDeleteArtifact(ctx, a.ID, other, later), ErrGone)
		assert.ErrorIs(t, s.AddVersion(ctx, newVersion(a.ID, owner, later), nil), ErrGone)

		owned, err := s.ListArtifactsByOwner(ctx, owner)
		require.NoError(t, err)
		assert.Empty(t, owned)
	})

	t.Run("processing transition only from uploading", func(t *testing.T) {
		s := newStore(t)
		a, _ := seed(t, s, owner)
		v := newVersion(a.ID, owner, epoch)
		v.Status = artifact.StatusUploading
		v.EntryPoint = ""
		v.FileType = artifact.FileTypeZip
		require.NoError(t, s.AddVersion(ctx, v, nil))

		ok, err := s.MarkVersionProcessing(ctx, v.ID, "uploads/a.zip", epoch.Add(time.Second))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.MarkVersionProcessing(ctx, v.ID, "uploads/b.zip", epoch.Add(2*time.Second))
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := s.GetVersion(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, artifact.StatusProcessing, got.Status)
		assert.Equal(t, "uploads/a.zip", got.UploadHandle)

		_, err = s.MarkVersionProcessing(ctx, uuid.New(), "x", epoch)
		assert.ErrorIs(t, err, ErrGone)

		stuck, err := s.ListVersionsByStatus(ctx, artifact.StatusProcessing, epoch.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, stuck, 1)
		assert.Equal(t, v.ID, stuck[0].ID)

		ok, err = s.MarkVersionError(ctx, v.ID, artifact.StatusUploading, "late", epoch.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, ok, "version is no longer uploading")

		ok, err = s.MarkVersionError(ctx, v.ID, artifact.StatusProcessing, "boom", epoch.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, ok)
		got, err = s.GetVersion(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, artifact.StatusError, got.Status)
		require.NotNil(t, got.ErrorMessage)
		assert.Equal(t, "boom", *got.ErrorMessage)
		assert.False(t, got.IsDeleted)

		require.NoError(t, s.MarkVersionReady(ctx, v.ID, "index.html", 42, epoch.Add(2*time.Minute)))
		got, err = s.GetVersion(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, artifact.StatusReady, got.Status)
		assert.Nil(t, got.ErrorMessage)
		assert.EqualValues(t, 42, got.Size)

		_, err = s.MarkVersionError(ctx, uuid.New(), artifact.StatusProcessing, "x", epoch)
		assert.ErrorIs(t, err, ErrGone)
	})

	t.Run("error does not overwrite a finished version", func(t *testing.T) {
		s := newStore(t)
		a, _ := seed(t, s, owner)
		v := newVersion(a.ID, owner, epoch)
		v.Status = artifact.StatusProcessing
		require.NoError(t, s.AddVersion(ctx, v, nil))
		require.NoError(t, s.MarkVersionReady(ctx, v.ID, "index.html", 7, epoch.Add(time.Second)))

		ok, err := s.MarkVersionError(ctx, v.ID, artifact.StatusProcessing, "too slow", epoch.Add(time.Minute))
		require.NoError(t, err)
		assert.False(t, ok)

		got, err := s.GetVersion(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, artifact.StatusReady, got.Status)
		assert.Nil(t, got.ErrorMessage)
	})

	t.Run("failed versions are released once", func(t *testing.T) {
		s := newStore(t)
		a, _ := seed(t, s, owner)
		v := newVersion(a.ID, owner, epoch)
		v.Status = artifact.StatusUploading
		v.FileType = artifact.FileTypeZip
		require.NoError(t, s.AddVersion(ctx, v, nil))
		ok, err := s.MarkVersionProcessing(ctx, v.ID, "uploads/a.zip", epoch)
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = s.MarkVersionError(ctx, v.ID, artifact.StatusProcessing, "boom", epoch)
		require.NoError(t, err)
		require.True(t, ok)

		failed, err := s.ListUnreleasedFailures(ctx, epoch)
		require.NoError(t, err)
		assert.Empty(t, failed, "cutoff is exclusive")

		failed, err = s.ListUnreleasedFailures(ctx, epoch.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, v.ID, failed[0].ID)
		assert.Nil(t, failed[0].ReleasedAt)

		require.NoError(t, s.MarkVersionReleased(ctx, v.ID, epoch.Add(time.Hour)))
		failed, err = s.ListUnreleasedFailures(ctx, epoch.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Empty(t, failed)

		got, err := s.GetVersion(ctx, v.ID)
		require.NoError(t, err)
		assert.Equal(t, artifact.StatusError, got.Status)
		assert.Empty(t, got.UploadHandle)
		require.NotNil(t, got.ReleasedAt)
		assert.True(t, got.ReleasedAt.Equal(epoch.Add(time.Hour)))

		assert.ErrorIs(t, s.MarkVersionReleased(ctx, uuid.New(), epoch), ErrGone)
	})

	t.Run("file paths unique among active files", func(t *testing.T) {
		s := newStore(t)
		_, v := seed(t, s, owner)

		dup := newFile("index.html", epoch)
		dup.VersionID = v.ID
		assert.ErrorIs(t, s.CreateFile(ctx, dup), ErrDuplicate)

		css := newFile("css/app.css", epoch)
		css.VersionID = v.ID
		require.NoError(t, s.CreateFile(ctx, css))

		files, err := s.ListFiles(ctx, v.ID)
		require.NoError(t, err)
		require.Len(t, files, 2)
		assert.Equal(t, "css/app.css", files[0].Path)

		refs, err := s.CountFilesByBlob(ctx, css.BlobHandle)
		require.NoError(t, err)
		assert.Equal(t, 1, refs)

		n, err := s.SoftDeleteFiles(ctx, v.ID, artifact.SystemPrincipal, epoch)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		refs, err = s.CountFilesByBlob(ctx, css.BlobHandle)
		require.NoError(t, err)
		assert.Zero(t, refs)
		require.NoError(t, s.CreateFile(ctx, dup))
	})

	t.Run("grants", func(t *testing.T) {
		s := newStore(t)
		a, _ := seed(t, s, owner)
		reviewer := uuid.New()

		pending := &artifact.ReviewerGrant{
			ID: uuid.New(), ArtifactID: a.ID, Email: "rev@example.com",
			InvitedBy: owner, InvitedAt: epoch, Status: artifact.GrantPending,
		}
		require.NoError(t, s.CreateGrant(ctx, pending))

		dup := *pending
		dup.ID = uuid.New()
		assert.ErrorIs(t, s.CreateGrant(ctx, &dup), ErrDuplicate)

		ok, err := s.HasAcceptedGrant(ctx, a.ID, reviewer)
		require.NoError(t, err)
		assert.False(t, ok)

		n, err := s.LinkPendingGrants(ctx, "rev@example.com", reviewer, epoch)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		ok, err = s.HasAcceptedGrant(ctx, a.ID, reviewer)
		require.NoError(t, err)
		assert.True(t, ok)

		found, err := s.FindActiveGrant(ctx, a.ID, "rev@example.com")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, artifact.GrantAccepted, found.Status)

		require.NoError(t, s.SoftDeleteGrant(ctx, pending.ID, owner, epoch.Add(time.Minute)))
		ok, err = s.HasAcceptedGrant(ctx, a.ID, reviewer)
		require.NoError(t, err)
		assert.False(t, ok)

		list, err := s.ListActiveGrants(ctx, a.ID)
		require.NoError(t, err)
		assert.Empty(t, list)

		// email is free again once the old grant is removed
		require.NoError(t, s.CreateGrant(ctx, &dup))
	})

	t.Run("details update", func(t *testing.T) {
		s := newStore(t)
		a, v := seed(t, s, owner)
		desc := "second pass"
		require.NoError(t, s.UpdateArtifactDetails(ctx, a.ID, "Renamed", &desc, epoch.Add(time.Hour)))
		label := "final"
		require.NoError(t, s.UpdateVersionName(ctx, v.ID, &label, epoch.Add(time.Hour)))

		got, err := s.GetArtifact(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed", got.Name)
		assert.Equal(t, "second pass", *got.Description)

		gotV, err := s.GetVersionByNumber(ctx, a.ID, 1)
		require.NoError(t, err)
		require.NotNil(t, gotV)
		assert.Equal(t, "final", *gotV.Name)
	})
}
