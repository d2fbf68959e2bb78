package artifactRepo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"artifact-review/internal/model/artifact"
)

var (
	// ErrDuplicate is returned when a unique key (share token, active
	// reviewer email, active file path) is already taken.
	ErrDuplicate = errors.New("duplicate record")
	// ErrGone is returned by writes that target a missing or deleted parent.
	ErrGone = errors.New("record missing or deleted")
	// ErrLastVersion rejects deleting the only active version of an artifact.
	ErrLastVersion = errors.New("cannot delete the only active version")
)

// Store is the durable catalog. Getters return nil, nil when nothing
// matches. Deleted records are returned by id lookups and callers decide what
// a deleted record means; list and path lookups only see active rows.
type Store interface {
	// CreateArtifact inserts a, its first version and, for single-file
	// versions, the file in one transaction. v.Number is assigned.
	CreateArtifact(ctx context.Context, a *artifact.Artifact, v *artifact.Version, f *artifact.File) error
	GetArtifact(ctx context.Context, id uuid.UUID) (*artifact.Artifact, error)
	GetArtifactByShareToken(ctx context.Context, token string) (*artifact.Artifact, error)
	ListArtifactsByOwner(ctx context.Context, owner uuid.UUID) ([]*artifact.Artifact, error)
	UpdateArtifactDetails(ctx context.Context, id uuid.UUID, name string, description *string, at time.Time) error
	SoftDeleteArtifact(ctx context.Context, id, by uuid.UUID, at time.Time) error

	// AddVersion allocates the next number for v.ArtifactID, inserts v and
	// the optional file, and bumps the artifact's UpdatedAt.
	AddVersion(ctx context.Context, v *artifact.Version, f *artifact.File) error
	GetVersion(ctx context.Context, id uuid.UUID) (*artifact.Version, error)
	GetVersionByNumber(ctx context.Context, artifactID uuid.UUID, number int) (*artifact.Version, error)
	// ListActiveVersions orders by number descending.
	ListActiveVersions(ctx context.Context, artifactID uuid.UUID) ([]*artifact.Version, error)
	// ListVersionsByStatus returns active versions in status last touched
	// before the cutoff.
	ListVersionsByStatus(ctx context.Context, status artifact.Status, before time.Time) ([]*artifact.Version, error)
	// MarkVersionProcessing moves an uploading version to processing. It
	// reports false when the version was not uploading.
	MarkVersionProcessing(ctx context.Context, id uuid.UUID, uploadHandle string, at time.Time) (bool, error)
	MarkVersionReady(ctx context.Context, id uuid.UUID, entryPoint string, size int64, at time.Time) error
	// MarkVersionError fails a version that is still in status from. It
	// reports false, leaving the row alone, when the status moved on.
	MarkVersionError(ctx context.Context, id uuid.UUID, from artifact.Status, message string, at time.Time) (bool, error)
	// ListUnreleasedFailures returns active error versions last touched before
	// the cutoff whose storage has not been released yet.
	ListUnreleasedFailures(ctx context.Context, before time.Time) ([]*artifact.Version, error)
	// MarkVersionReleased records that a failed version's files and archive
	// were cleaned up and forgets its upload handle.
	MarkVersionReleased(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateVersionName(ctx context.Context, id uuid.UUID, name *string, at time.Time) error
	SoftDeleteVersion(ctx context.Context, id, by uuid.UUID, at time.Time) error

	CreateFile(ctx context.Context, f *artifact.File) error
	GetFileByPath(ctx context.Context, versionID uuid.UUID, path string) (*artifact.File, error)
	ListFiles(ctx context.Context, versionID uuid.UUID) ([]*artifact.File, error)
	SoftDeleteFiles(ctx context.Context, versionID, by uuid.UUID, at time.Time) (int, error)
	// CountFilesByBlob counts active files pointing at handle. Blobs are
	// content addressed, so one blob can back files in several versions.
	CountFilesByBlob(ctx context.Context, handle string) (int, error)

	CreateGrant(ctx context.Context, g *artifact.ReviewerGrant) error
	GetGrant(ctx context.Context, id uuid.UUID) (*artifact.ReviewerGrant, error)
	FindActiveGrant(ctx context.Context, artifactID uuid.UUID, email string) (*artifact.ReviewerGrant, error)
	ListActiveGrants(ctx context.Context, artifactID uuid.UUID) ([]*artifact.ReviewerGrant, error)
	HasAcceptedGrant(ctx context.Context, artifactID, userID uuid.UUID) (bool, error)
	SoftDeleteGrant(ctx context.Context, id, by uuid.UUID, at time.Time) error
	// LinkPendingGrants accepts every pending grant for email on behalf of
	// userID and returns how many were linked.
	LinkPendingGrants(ctx context.Context, email string, userID uuid.UUID, at time.Time) (int, error)
}
