package retrievalService

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"artifact-review/internal/archive"
	"artifact-review/internal/blobstore"
	"artifact-review/internal/model/artifact"
	"artifact-review/internal/repository/artifactRepo"
	"artifact-review/internal/service/permission"
	"artifact-review/pkg/logger"
)

// Content describes a fetchable file. URL is nil when the blob behind the
// row is gone; callers must handle that.
type Content struct {
	URL      *string           `json:"url"`
	MimeType string            `json:"mime_type"`
	Size     int64             `json:"size"`
	Path     string            `json:"path"`
	FileType artifact.FileType `json:"file_type"`
}

// SharedFile is a file body served through a share link.
type SharedFile struct {
	Path     string
	MimeType string
	Data     []byte
}

type Service struct {
	store artifactRepo.Store
	blobs blobstore.Store
	perms *permission.Resolver
	log   *logger.Logger
}

func New(store artifactRepo.Store, blobs blobstore.Store, perms *permission.Resolver, log *logger.Logger) *Service {
	return &Service{store: store, blobs: blobs, perms: perms, log: log.Named("retrieval")}
}

// visibleVersion returns nil when the version is missing, deleted or hidden
// from p.
func (s *Service) visibleVersion(ctx context.Context, versionID uuid.UUID, p *artifact.Principal) (*artifact.Version, error) {
	v, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("load version: %w", err)
	}
	if v == nil || v.IsDeleted {
		return nil, nil
	}
	ok, err := s.perms.CanView(ctx, p, v.ArtifactID)
	if err != nil || !ok {
		return nil, err
	}
	return v, nil
}

func (s *Service) GetEntryPointContent(ctx context.Context, versionID uuid.UUID, p *artifact.Principal) (*Content, error) {
	v, err := s.visibleVersion(ctx, versionID, p)
	if err != nil || v == nil || v.EntryPoint == "" {
		return nil, err
	}
	f, err := s.GetFileByPath(ctx, versionID, v.EntryPoint)
	if err != nil || f == nil {
		return nil, err
	}
	url, err := s.blobs.URL(ctx, blobstore.Handle(f.BlobHandle))
	if err != nil {
		return nil, fmt.Errorf("resolve url: %w", err)
	}
	if url == nil {
		s.log.Warn("entry point blob missing",
			zap.String("version_id", versionID.String()),
			zap.String("path", f.Path))
	}
	return &Content{URL: url, MimeType: f.MimeType, Size: f.Size, Path: f.Path, FileType: v.FileType}, nil
}

// GetFileByPath is an exact match against the version's active files.
func (s *Service) GetFileByPath(ctx context.Context, versionID uuid.UUID, filePath string) (*artifact.File, error) {
	f, err := s.store.GetFileByPath(ctx, versionID, filePath)
	if err != nil {
		return nil, fmt.Errorf("load file: %w", err)
	}
	return f, nil
}

func (s *Service) ListFiles(ctx context.Context, versionID uuid.UUID, p *artifact.Principal) ([]*artifact.File, error) {
	v, err := s.visibleVersion(ctx, versionID, p)
	if err != nil || v == nil {
		return nil, err
	}
	files, err := s.store.ListFiles(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}

// ListHTMLFiles lists the pages of a multi-file version, for navigation.
func (s *Service) ListHTMLFiles(ctx context.Context, versionID uuid.UUID, p *artifact.Principal) ([]*artifact.File, error) {
	files, err := s.ListFiles(ctx, versionID, p)
	if err != nil {
		return nil, err
	}
	var out []*artifact.File
	for _, f := range files {
		switch strings.ToLower(path.Ext(f.Path)) {
		case ".html", ".htm":
			out = append(out, f)
		}
	}
	return out, nil
}

// OpenSharedFile serves /artifact/{shareToken}/v{number}/{path}. Number 0
// means the newest ready version; an empty path or "index.html" falls back to the
// entry point. Returns nil when nothing is there.
func (s *Service) OpenSharedFile(ctx context.Context, shareToken string, number int, filePath string) (*SharedFile, error) {
	a, err := s.store.GetArtifactByShareToken(ctx, shareToken)
	if err != nil {
		return nil, fmt.Errorf("load artifact: %w", err)
	}
	if a == nil || a.IsDeleted {
		return nil, nil
	}

	var v *artifact.Version
	if number > 0 {
		v, err = s.store.GetVersionByNumber(ctx, a.ID, number)
	} else {
		var versions []*artifact.Version
		versions, err = s.store.ListActiveVersions(ctx, a.ID)
		for _, candidate := range versions {
			if candidate.Status.Effective() == artifact.StatusReady {
				v = candidate
				break
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load version: %w", err)
	}
	if v == nil || v.IsDeleted || v.Status.Effective() != artifact.StatusReady {
		return nil, nil
	}

	f, err := s.resolveSharedPath(ctx, v, filePath)
	if err != nil || f == nil {
		return nil, err
	}
	data, err := s.blobs.Get(ctx, blobstore.Handle(f.BlobHandle))
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		s.log.Warn("shared file blob missing",
			zap.String("version_id", v.ID.String()),
			zap.String("path", f.Path))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return &SharedFile{Path: f.Path, MimeType: f.MimeType, Data: data}, nil
}

func (s *Service) resolveSharedPath(ctx context.Context, v *artifact.Version, filePath string) (*artifact.File, error) {
	filePath = archive.NormalizePath(filePath)
	if filePath == "" {
		return s.GetFileByPath(ctx, v.ID, v.EntryPoint)
	}
	if archive.IsUnsafePath(filePath) {
		return nil, nil
	}
	f, err := s.GetFileByPath(ctx, v.ID, filePath)
	if err != nil || f != nil {
		return f, err
	}
	if filePath == "index.html" && v.EntryPoint != "" {
		return s.GetFileByPath(ctx, v.ID, v.EntryPoint)
	}
	return nil, nil
}
