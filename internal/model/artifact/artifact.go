package artifact

import (
	"time"

	"github.com/google/uuid"
)

// Principal is a resolved caller identity. A nil *Principal is anonymous.
type Principal struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email,omitempty"`
}

// SystemPrincipal attributes deletions made by background jobs.
var SystemPrincipal = uuid.Nil

type Status string

const (
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// Effective maps the legacy empty status to ready.
func (s Status) Effective() Status {
	if s == "" {
		return StatusReady
	}
	return s
}

// SoftDelete carries the audit trail shared by every record type.
type SoftDelete struct {
	IsDeleted bool       `json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *uuid.UUID `json:"deleted_by,omitempty"`
}

func (d *SoftDelete) MarkDeleted(at time.Time, by uuid.UUID) {
	d.IsDeleted = true
	d.DeletedAt = &at
	d.DeletedBy = &by
}

type Artifact struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Description    *string    `json:"description,omitempty"`
	CreatedBy      uuid.UUID  `json:"created_by"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	ShareToken     string     `json:"share_token"`
	SoftDelete
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Version struct {
	ID           uuid.UUID `json:"id"`
	ArtifactID   uuid.UUID `json:"artifact_id"`
	Number       int       `json:"number"`
	FileType     FileType  `json:"file_type"`
	EntryPoint   string    `json:"entry_point,omitempty"`
	Size         int64     `json:"size"`
	Status       Status    `json:"status"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	Name         *string   `json:"name,omitempty"`
	CreatedBy    uuid.UUID `json:"created_by"`
	// UploadHandle is the raw archive blob while the version is pending.
	UploadHandle string `json:"-"`
	// ReleasedAt is set once the storage of a failed version was reclaimed.
	ReleasedAt *time.Time `json:"-"`
	SoftDelete
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VersionSummary is a Version as listed, with the derived latest flag.
type VersionSummary struct {
	Version
	IsLatest bool `json:"is_latest"`
}

type File struct {
	ID         uuid.UUID `json:"id"`
	VersionID  uuid.UUID `json:"version_id"`
	Path       string    `json:"path"`
	BlobHandle string    `json:"-"`
	MimeType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	SoftDelete
	CreatedAt time.Time `json:"created_at"`
}

type GrantStatus string

const (
	GrantPending  GrantStatus = "pending"
	GrantAccepted GrantStatus = "accepted"
)

type ReviewerGrant struct {
	ID         uuid.UUID   `json:"id"`
	ArtifactID uuid.UUID   `json:"artifact_id"`
	Email      string      `json:"email"`
	UserID     *uuid.UUID  `json:"user_id,omitempty"`
	InvitedBy  uuid.UUID   `json:"invited_by"`
	InvitedAt  time.Time   `json:"invited_at"`
	Status     GrantStatus `json:"status"`
	SoftDelete
}

// Level is the access a principal holds on an artifact.
type Level int

const (
	LevelNone Level = iota
	LevelPublic
	LevelReviewer
	LevelOwner
)

func (l Level) String() string {
	switch l {
	case LevelPublic:
		return "public"
	case LevelReviewer:
		return "reviewer"
	case LevelOwner:
		return "owner"
	default:
		return "none"
	}
}

func (l Level) CanView() bool {
	return l != LevelNone
}
