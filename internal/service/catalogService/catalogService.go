package catalogService

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"artifact-review/internal/blobstore"
	"artifact-review/internal/model/artifact"
	"artifact-review/internal/repository/artifactRepo"
	"artifact-review/internal/service/permission"
	"artifact-review/pkg/logger"
)

const (
	shareTokenAlphabet = "useandom-26T198340PX75pxJACKVERYMINDBUSHWOLF_GQZbfghjklqvwyzrict"
	shareTokenLength   = 8
	shareTokenAttempts = 5
)

type CreateInput struct {
	Name        string
	Description *string
	FileType    artifact.FileType
	FileName    string
	Content     []byte
	VersionName *string
}

type ArchiveInput struct {
	Name         string
	Description  *string
	DeclaredSize int64
	VersionName  *string
}

type VersionInput struct {
	FileType    artifact.FileType
	FileName    string
	Content     []byte
	VersionName *string
}

type ArchiveVersionInput struct {
	DeclaredSize int64
	VersionName  *string
}

type Created struct {
	ArtifactID uuid.UUID `json:"artifact_id"`
	VersionID  uuid.UUID `json:"version_id"`
	Number     int       `json:"number"`
	ShareToken string    `json:"share_token"`
}

// UploadTicket tells the client where to put archive bytes. UploadURL is
// empty when the blob driver cannot presign; the client then uploads through
// the API.
type UploadTicket struct {
	Created
	UploadKey string `json:"upload_key"`
	UploadURL string `json:"upload_url,omitempty"`
}

type VersionStatus struct {
	Status       artifact.Status `json:"status"`
	ErrorMessage *string         `json:"error_message,omitempty"`
}

type Details struct {
	Artifact     *artifact.Artifact       `json:"artifact"`
	Level        string                   `json:"level"`
	VersionCount int                      `json:"version_count"`
	TotalSize    int64                    `json:"total_size"`
	Latest       *artifact.VersionSummary `json:"latest,omitempty"`
}

type Service struct {
	store artifactRepo.Store
	blobs blobstore.Store
	perms *permission.Resolver
	log   *logger.Logger
	now   func() time.Time
}

func New(store artifactRepo.Store, blobs blobstore.Store, perms *permission.Resolver, log *logger.Logger) *Service {
	return &Service{store: store, blobs: blobs, perms: perms, log: log.Named("catalog"), now: time.Now}
}

// SetClock replaces the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func newShareToken() (string, error) {
	buf := make([]byte, shareTokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = shareTokenAlphabet[int(b)&(len(shareTokenAlphabet)-1)]
	}
	return string(buf), nil
}

func validateDetails(name string, description *string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", artifact.Policyf("name is required")
	}
	if len([]rune(name)) > artifact.MaxArtifactNameLength {
		return "", artifact.Policyf("name must be at most %d characters", artifact.MaxArtifactNameLength)
	}
	if description != nil && len([]rune(*description)) > artifact.MaxDescriptionLength {
		return "", artifact.Policyf("description must be at most %d characters", artifact.MaxDescriptionLength)
	}
	return name, nil
}

func validateVersionName(name *string) (*string, error) {
	if name == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*name)
	if trimmed == "" {
		return nil, nil
	}
	if len([]rune(trimmed)) > artifact.MaxVersionNameLength {
		return nil, artifact.Policyf("version name must be at most %d characters", artifact.MaxVersionNameLength)
	}
	return &trimmed, nil
}

// singleFilePath keeps only the base name of what the client sent, falling
// back to the type's default.
func singleFilePath(ft artifact.FileType, name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if base == "." || base == "/" || base == ".." || base == "" {
		return ft.DefaultPath()
	}
	return base
}

// storeSingleFile validates and persists single-file content, returning the
// version and file rows ready to insert.
func (s *Service) storeSingleFile(ctx context.Context, owner uuid.UUID, ft artifact.FileType, fileName string, content []byte, versionName *string) (*artifact.Version, *artifact.File, error) {
	if !ft.IsSingleFile() {
		return nil, nil, artifact.Policyf("file type %s must be uploaded as an archive", ft)
	}
	if err := artifact.CheckSingleFileSize(int64(len(content))); err != nil {
		return nil, nil, err
	}
	name, err := validateVersionName(versionName)
	if err != nil {
		return nil, nil, err
	}
	p := singleFilePath(ft, fileName)
	if artifact.IsForbiddenExtension(p) {
		return nil, nil, artifact.Policyf("file type not allowed: %s", p)
	}

	handle, err := s.blobs.Put(ctx, content)
	if err != nil {
		return nil, nil, fmt.Errorf("store content: %w", err)
	}

	now := s.now()
	v := &artifact.Version{
		ID:         uuid.New(),
		FileType:   ft,
		EntryPoint: p,
		Size:       int64(len(content)),
		Status:     artifact.StatusReady,
		Name:       name,
		CreatedBy:  owner,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	f := &artifact.File{
		ID:         uuid.New(),
		VersionID:  v.ID,
		Path:       p,
		BlobHandle: string(handle),
		MimeType:   ft.MimeType(),
		Size:       int64(len(content)),
		CreatedAt:  now,
	}
	return v, f, nil
}

func (s *Service) pendingArchiveVersion(owner uuid.UUID, declared int64, versionName *string) (*artifact.Version, error) {
	if err := artifact.CheckArchiveSize(declared); err != nil {
		return nil, err
	}
	name, err := validateVersionName(versionName)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return &artifact.Version{
		ID:        uuid.New(),
		FileType:  artifact.FileTypeZip,
		Status:    artifact.StatusUploading,
		Name:      name,
		CreatedBy: owner,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *Service) ticket(ctx context.Context, created Created) (*UploadTicket, error) {
	key := blobstore.UploadKey(created.ArtifactID, created.VersionID)
	url, err := s.blobs.UploadURL(ctx, key)
	if err != nil && !errors.Is(err, blobstore.ErrPresignNotSupported) {
		return nil, fmt.Errorf("presign upload: %w", err)
	}
	return &UploadTicket{Created: created, UploadKey: key, UploadURL: url}, nil
}

// insertArtifact retries on a share token clash.
func (s *Service) insertArtifact(ctx context.Context, a *artifact.Artifact, v *artifact.Version, f *artifact.File) error {
	for attempt := 0; attempt < shareTokenAttempts; attempt++ {
		token, err := newShareToken()
		if err != nil {
			return fmt.Errorf("generate share token: %w", err)
		}
		a.ShareToken = token
		err = s.store.CreateArtifact(ctx, a, v, f)
		if errors.Is(err, artifactRepo.ErrDuplicate) {
			s.log.Warn("share token collision, retrying", zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			return fmt.Errorf("create artifact: %w", err)
		}
		return nil
	}
	return fmt.Errorf("create artifact: no unique share token after %d attempts", shareTokenAttempts)
}

func (s *Service) newArtifact(owner uuid.UUID, name string, description *string) *artifact.Artifact {
	now := s.now()
	return &artifact.Artifact{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		CreatedBy:   owner,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Create stores a single-file artifact with its first, ready version.
func (s *Service) Create(ctx context.Context, p *artifact.Principal, in CreateInput) (*Created, error) {
	if p == nil {
		return nil, artifact.ErrNotAuthenticated
	}
	name, err := validateDetails(in.Name, in.Description)
	if err != nil {
		return nil, err
	}
	v, f, err := s.storeSingleFile(ctx, p.ID, in.FileType, in.FileName, in.Content, in.VersionName)
	if err != nil {
		return nil, err
	}
	a := s.newArtifact(p.ID, name, in.Description)
	if err := s.insertArtifact(ctx, a, v, f); err != nil {
		return nil, err
	}

	s.log.Info("artifact created",
		zap.String("artifact_id", a.ID.String()),
		zap.String("file_type", v.FileType.String()),
		zap.Int64("size", v.Size))
	return &Created{ArtifactID: a.ID, VersionID: v.ID, Number: v.Number, ShareToken: a.ShareToken}, nil
}

// CreateWithArchive reserves an artifact whose first version waits for an
// archive upload.
func (s *Service) CreateWithArchive(ctx context.Context, p *artifact.Principal, in ArchiveInput) (*UploadTicket, error) {
	if p == nil {
		return nil, artifact.ErrNotAuthenticated
	}
	name, err := validateDetails(in.Name, in.Description)
	if err != nil {
		return nil, err
	}
	v, err := s.pendingArchiveVersion(p.ID, in.DeclaredSize, in.VersionName)
	if err != nil {
		return nil, err
	}
	a := s.newArtifact(p.ID, name, in.Description)
	if err := s.insertArtifact(ctx, a, v, nil); err != nil {
		return nil, err
	}

	s.log.Info("archive artifact reserved",
		zap.String("artifact_id", a.ID.String()),
		zap.String("version_id", v.ID.String()))
	return s.ticket(ctx, Created{ArtifactID: a.ID, VersionID: v.ID, Number: v.Number, ShareToken: a.ShareToken})
}

func (s *Service) addVersion(ctx context.Context, a *artifact.Artifact, v *artifact.Version, f *artifact.File) error {
	v.ArtifactID = a.ID
	err := s.store.AddVersion(ctx, v, f)
	if errors.Is(err, artifactRepo.ErrGone) {
		return artifact.NotFoundf("artifact %s not found", a.ID)
	}
	if err != nil {
		return fmt.Errorf("add version: %w", err)
	}
	s.log.Info("version added",
		zap.String("artifact_id", a.ID.String()),
		zap.Int("number", v.Number),
		zap.String("status", string(v.Status)))
	return nil
}

func (s *Service) AddVersion(ctx context.Context, p *artifact.Principal, artifactID uuid.UUID, in VersionInput) (*Created, error) {
	a, err := s.perms.RequireOwner(ctx, p, artifactID)
	if err != nil {
		return nil, err
	}
	v, f, err := s.storeSingleFile(ctx, p.ID, in.FileType, in.FileName, in.Content, in.VersionName)
	if err != nil {
		return nil, err
	}
	if err := s.addVersion(ctx, a, v, f); err != nil {
		return nil, err
	}
	return &Created{ArtifactID: a.ID, VersionID: v.ID, Number: v.Number, ShareToken: a.ShareToken}, nil
}

func (s *Service) AddArchiveVersion(ctx context.Context, p *artifact.Principal, artifactID uuid.UUID, in ArchiveVersionInput) (*UploadTicket, error) {
	a, err := s.perms.RequireOwner(ctx, p, artifactID)
	if err != nil {
		return nil, err
	}
	v, err := s.pendingArchiveVersion(p.ID, in.DeclaredSize, in.VersionName)
	if err != nil {
		return nil, err
	}
	if err := s.addVersion(ctx, a, v, nil); err != nil {
		return nil, err
	}
	return s.ticket(ctx, Created{ArtifactID: a.ID, VersionID: v.ID, Number: v.Number, ShareToken: a.ShareToken})
}

func (s *Service) SoftDelete(ctx context.Context, p *artifact.Principal, artifactID uuid.UUID) error {
	if _, err := s.perms.RequireOwner(ctx, p, artifactID); err != nil {
		return err
	}
	err := s.store.SoftDeleteArtifact(ctx, artifactID, p.ID, s.now())
	if errors.Is(err, artifactRepo.ErrGone) {
		return artifact.NotFoundf("artifact %s not found", artifactID)
	}
	if err != nil {
		return fmt.Errorf("delete artifact: %w", err)
	}
	s.log.Info("artifact deleted", zap.String("artifact_id", artifactID.String()))
	return nil
}

// ownedVersion loads an active version and requires p to own its artifact.
func (s *Service) ownedVersion(ctx context.Context, p *artifact.Principal, versionID uuid.UUID) (*artifact.Version, error) {
	if p == nil {
		return nil, artifact.ErrNotAuthenticated
	}
	v, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("load version: %w", err)
	}
	if v == nil || v.IsDeleted {
		return nil, artifact.NotFoundf("version %s not found", versionID)
	}
	if _, err := s.perms.RequireOwner(ctx, p, v.ArtifactID); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *Service) SoftDeleteVersion(ctx context.Context, p *artifact.Principal, versionID uuid.UUID) error {
	v, err := s.ownedVersion(ctx, p, versionID)
	if err != nil {
		return err
	}
	err = s.store.SoftDeleteVersion(ctx, versionID, p.ID, s.now())
	switch {
	case errors.Is(err, artifactRepo.ErrLastVersion):
		return artifact.Invariantf("cannot delete the only version of an artifact; delete the artifact instead")
	case errors.Is(err, artifactRepo.ErrGone):
		return artifact.NotFoundf("version %s not found", versionID)
	case err != nil:
		return fmt.Errorf("delete version: %w", err)
	}
	s.log.Info("version deleted",
		zap.String("artifact_id", v.ArtifactID.String()),
		zap.Int("number", v.Number))
	return nil
}

func summarize(versions []*artifact.Version) []*artifact.VersionSummary {
	out := make([]*artifact.VersionSummary, len(versions))
	for i, v := range versions {
		out[i] = &artifact.VersionSummary{Version: *v, IsLatest: i == 0}
	}
	return out
}

// ListVersions returns nil when p cannot see the artifact.
func (s *Service) ListVersions(ctx context.Context, p *artifact.Principal, artifactID uuid.UUID) ([]*artifact.VersionSummary, error) {
	ok, err := s.perms.CanView(ctx, p, artifactID)
	if err != nil || !ok {
		return nil, err
	}
	versions, err := s.store.ListActiveVersions(ctx, artifactID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return summarize(versions), nil
}

func (s *Service) Get(ctx context.Context, p *artifact.Principal, artifactID uuid.UUID) (*artifact.Artifact, error) {
	a, err := s.store.GetArtifact(ctx, artifactID)
	if err != nil {
		return nil, fmt.Errorf("load artifact: %w", err)
	}
	level, err := s.perms.ResolveLoaded(ctx, p, a)
	if err != nil || !level.CanView() {
		return nil, err
	}
	return a, nil
}

func (s *Service) GetByShareToken(ctx context.Context, token string) (*artifact.Artifact, error) {
	a, err := s.store.GetArtifactByShareToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("load artifact: %w", err)
	}
	if a == nil || a.IsDeleted {
		return nil, nil
	}
	return a, nil
}

// summaryOf marks v latest when it is the highest active number.
func (s *Service) summaryOf(ctx context.Context, v *artifact.Version) (*artifact.VersionSummary, error) {
	versions, err := s.store.ListActiveVersions(ctx, v.ArtifactID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	latest := len(versions) > 0 && versions[0].ID == v.ID
	return &artifact.VersionSummary{Version: *v, IsLatest: latest}, nil
}

func (s *Service) visibleVersion(ctx context.Context, p *artifact.Principal, v *artifact.Version) (*artifact.VersionSummary, error) {
	if v == nil || v.IsDeleted {
		return nil, nil
	}
	ok, err := s.perms.CanView(ctx, p, v.ArtifactID)
	if err != nil || !ok {
		return nil, err
	}
	return s.summaryOf(ctx, v)
}

func (s *Service) GetVersion(ctx context.Context, p *artifact.Principal, versionID uuid.UUID) (*artifact.VersionSummary, error) {
	v, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("load version: %w", err)
	}
	return s.visibleVersion(ctx, p, v)
}

func (s *Service) GetVersionByNumber(ctx context.Context, p *artifact.Principal, artifactID uuid.UUID, number int) (*artifact.VersionSummary, error) {
	v, err := s.store.GetVersionByNumber(ctx, artifactID, number)
	if err != nil {
		return nil, fmt.Errorf("load version: %w", err)
	}
	return s.visibleVersion(ctx, p, v)
}

func (s *Service) GetLatestVersion(ctx context.Context, p *artifact.Principal, artifactID uuid.UUID) (*artifact.VersionSummary, error) {
	versions, err := s.ListVersions(ctx, p, artifactID)
	if err != nil || len(versions) == 0 {
		return nil, err
	}
	return versions[0], nil
}

func (s *Service) ListOwned(ctx context.Context, p *artifact.Principal) ([]*artifact.Artifact, error) {
	if p == nil {
		return nil, artifact.ErrNotAuthenticated
	}
	list, err := s.store.ListArtifactsByOwner(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return list, nil
}

func (s *Service) UpdateVersionName(ctx context.Context, p *artifact.Principal, versionID uuid.UUID, name *string) error {
	if _, err := s.ownedVersion(ctx, p, versionID); err != nil {
		return err
	}
	name, err := validateVersionName(name)
	if err != nil {
		return err
	}
	err = s.store.UpdateVersionName(ctx, versionID, name, s.now())
	if errors.Is(err, artifactRepo.ErrGone) {
		return artifact.NotFoundf("version %s not found", versionID)
	}
	if err != nil {
		return fmt.Errorf("rename version: %w", err)
	}
	return nil
}

func (s *Service) UpdateDetails(ctx context.Context, p *artifact.Principal, artifactID uuid.UUID, name string, description *string) error {
	if _, err := s.perms.RequireOwner(ctx, p, artifactID); err != nil {
		return err
	}
	name, err := validateDetails(name, description)
	if err != nil {
		return err
	}
	err = s.store.UpdateArtifactDetails(ctx, artifactID, name, description, s.now())
	if errors.Is(err, artifactRepo.ErrGone) {
		return artifact.NotFoundf("artifact %s not found", artifactID)
	}
	if err != nil {
		return fmt.Errorf("update artifact: %w", err)
	}
	return nil
}

// GetVersionStatus is what clients poll while an archive is processed.
func (s *Service) GetVersionStatus(ctx context.Context, p *artifact.Principal, versionID uuid.UUID) (*VersionStatus, error) {
	v, err := s.GetVersion(ctx, p, versionID)
	if err != nil || v == nil {
		return nil, err
	}
	return &VersionStatus{Status: v.Status.Effective(), ErrorMessage: v.ErrorMessage}, nil
}

func (s *Service) Details(ctx context.Context, p *artifact.Principal, artifactID uuid.UUID) (*Details, error) {
	a, err := s.store.GetArtifact(ctx, artifactID)
	if err != nil {
		return nil, fmt.Errorf("load artifact: %w", err)
	}
	level, err := s.perms.ResolveLoaded(ctx, p, a)
	if err != nil || !level.CanView() {
		return nil, err
	}
	versions, err := s.store.ListActiveVersions(ctx, artifactID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	d := &Details{Artifact: a, Level: level.String(), VersionCount: len(versions)}
	for _, v := range versions {
		d.TotalSize += v.Size
	}
	if summaries := summarize(versions); len(summaries) > 0 {
		d.Latest = summaries[0]
	}
	return d, nil
}
