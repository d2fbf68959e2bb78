package ingestService

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"artifact-review/internal/archive"
	"artifact-review/internal/blobstore"
	"artifact-review/internal/metrics"
	"artifact-review/internal/model/artifact"
	"artifact-review/internal/repository/artifactRepo"
	"artifact-review/internal/service/permission"
	"artifact-review/pkg/logger"
)

// ErrJobInProgress is returned by Process when another worker holds the
// version's lock.
var ErrJobInProgress = errors.New("ingestion already running for this version")

type Locker interface {
	Acquire(ctx context.Context, versionID uuid.UUID) (release func(context.Context) error, ok bool, err error)
}

// Result summarizes a finished job.
type Result struct {
	VersionID  uuid.UUID `json:"version_id"`
	EntryPoint string    `json:"entry_point"`
	Files      int       `json:"files"`
	Size       int64     `json:"size"`
}

type Service struct {
	store artifactRepo.Store
	blobs blobstore.Store
	perms *permission.Resolver
	lock  Locker
	log   *logger.Logger
	now   func() time.Time
}

func New(store artifactRepo.Store, blobs blobstore.Store, perms *permission.Resolver, lock Locker, log *logger.Logger) *Service {
	return &Service{store: store, blobs: blobs, perms: perms, lock: lock, log: log.Named("ingest"), now: time.Now}
}

// SetClock replaces the time source. Tests only.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) pendingVersion(ctx context.Context, p *artifact.Principal, versionID uuid.UUID) (*artifact.Version, error) {
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
	if v.Status != artifact.StatusUploading {
		return nil, artifact.Invariantf("version %d is %s, not waiting for an upload", v.Number, v.Status.Effective())
	}
	return v, nil
}

// MarkUploaded records where the client put the archive and queues the
// version for processing.
func (s *Service) MarkUploaded(ctx context.Context, p *artifact.Principal, versionID uuid.UUID, handle blobstore.Handle) error {
	v, err := s.pendingVersion(ctx, p, versionID)
	if err != nil {
		return err
	}
	if string(handle) != blobstore.UploadKey(v.ArtifactID, v.ID) {
		return artifact.Policyf("invalid upload key %q", handle)
	}
	ok, err := s.store.MarkVersionProcessing(ctx, versionID, string(handle), s.now())
	if errors.Is(err, artifactRepo.ErrGone) {
		return artifact.NotFoundf("version %s not found", versionID)
	}
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if !ok {
		return artifact.Invariantf("version %s is no longer waiting for an upload", versionID)
	}
	s.log.Info("archive uploaded",
		zap.String("version_id", versionID.String()),
		zap.String("handle", handle.String()))
	return nil
}

// Upload stores archive bytes sent through the API, for drivers that cannot
// presign, and then behaves like MarkUploaded.
func (s *Service) Upload(ctx context.Context, p *artifact.Principal, versionID uuid.UUID, data []byte) error {
	v, err := s.pendingVersion(ctx, p, versionID)
	if err != nil {
		return err
	}
	if err := artifact.CheckArchiveSize(int64(len(data))); err != nil {
		return err
	}
	handle, err := s.blobs.PutKey(ctx, blobstore.UploadKey(v.ArtifactID, v.ID), data)
	if err != nil {
		return fmt.Errorf("store archive: %w", err)
	}
	return s.MarkUploaded(ctx, p, versionID, handle)
}

// Process runs the ingestion job for a version in processing. Failures are
// recorded on the version and returned classified as ingestion failures,
// policy violations keep their kind.
func (s *Service) Process(ctx context.Context, versionID uuid.UUID) (*Result, error) {
	started := time.Now()
	log := s.log.With(zap.String("version_id", versionID.String()))

	release, ok, err := s.lock.Acquire(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.RecordIngest(metrics.StatusSkipped, started)
		log.Info("ingestion already running, skipping")
		return nil, ErrJobInProgress
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("failed to release ingest lock", zap.Error(err))
		}
	}()

	v, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("load version: %w", err)
	}
	if v == nil || v.IsDeleted {
		return nil, artifact.NotFoundf("version %s not found", versionID)
	}
	if v.Status != artifact.StatusProcessing {
		return nil, artifact.Invariantf("version %d is %s, not processing", v.Number, v.Status.Effective())
	}

	res, err := s.run(ctx, log, v)
	if err != nil {
		metrics.RecordIngest(metrics.StatusFailed, started)
		log.Error("ingestion failed", zap.Error(err))
		marked, markErr := s.store.MarkVersionError(context.WithoutCancel(ctx), versionID, artifact.StatusProcessing, err.Error(), s.now())
		switch {
		case markErr != nil:
			log.Error("failed to record ingestion error", zap.Error(markErr))
		case !marked:
			log.Warn("version left processing before the error was recorded")
		}
		return nil, artifact.IngestionFailure(err)
	}

	if err := s.blobs.Delete(ctx, blobstore.Handle(v.UploadHandle)); err != nil {
		log.Warn("failed to delete archive after ingestion", zap.Error(err))
	}
	metrics.RecordIngest(metrics.StatusSuccess, started)
	log.Info("ingestion finished",
		zap.String("entry_point", res.EntryPoint),
		zap.Int("files", res.Files),
		zap.Int64("size", res.Size),
		zap.Duration("took", time.Since(started)))
	return res, nil
}

func (s *Service) run(ctx context.Context, log *logger.Logger, v *artifact.Version) (*Result, error) {
	data, err := s.blobs.Get(ctx, blobstore.Handle(v.UploadHandle))
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, errors.New("uploaded archive not found")
	}
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	if err := artifact.CheckArchiveSize(int64(len(data))); err != nil {
		return nil, err
	}

	arc, err := archive.Open(data)
	if err != nil {
		return nil, err
	}
	log.Debug("archive opened",
		zap.Int("members", len(arc.Members)),
		zap.String("common_root", arc.CommonRoot),
		zap.String("entry_point", arc.EntryPoint),
		zap.String("entry_rule", arc.EntryRule))

	// Rows left by an interrupted earlier run would collide on path.
	if n, err := s.store.SoftDeleteFiles(ctx, v.ID, artifact.SystemPrincipal, s.now()); err != nil {
		return nil, fmt.Errorf("clear previous files: %w", err)
	} else if n > 0 {
		log.Warn("cleared files from an interrupted run", zap.Int("files", n))
	}

	res := &Result{VersionID: v.ID, EntryPoint: arc.EntryPoint}
	for _, m := range arc.Members {
		body, err := arc.Extract(m)
		if err != nil {
			return nil, err
		}
		handle, err := s.blobs.Put(ctx, body)
		if err != nil {
			return nil, fmt.Errorf("store %q: %w", m.Path, err)
		}
		f := &artifact.File{
			ID:         uuid.New(),
			VersionID:  v.ID,
			Path:       m.Path,
			BlobHandle: string(handle),
			MimeType:   detectMime(m.Path, body),
			Size:       int64(len(body)),
			CreatedAt:  s.now(),
		}
		if err := s.store.CreateFile(ctx, f); err != nil {
			return nil, fmt.Errorf("record %q: %w", m.Path, err)
		}
		metrics.RecordExtracted(f.Size)
		res.Files++
		res.Size += f.Size
	}

	if err := s.store.MarkVersionReady(ctx, v.ID, arc.EntryPoint, res.Size, s.now()); err != nil {
		return nil, fmt.Errorf("mark ready: %w", err)
	}
	return res, nil
}

// detectMime prefers the extension table and sniffs content for anything it
// does not know.
func detectMime(p string, body []byte) string {
	if m := artifact.MimeTypeForPath(p); m != artifact.OctetStream {
		return m
	}
	return mimetype.Detect(body).String()
}

// Fail marks a version as failed out of band, e.g. to abandon a stuck job.
func (s *Service) Fail(ctx context.Context, versionID uuid.UUID, message string) error {
	if message == "" {
		message = "ingestion cancelled by operator"
	}
	v, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return fmt.Errorf("load version: %w", err)
	}
	if v == nil || v.IsDeleted {
		return artifact.NotFoundf("version %s not found", versionID)
	}
	if v.Status.Effective() == artifact.StatusReady {
		return artifact.Invariantf("version %d is already ready", v.Number)
	}
	marked, err := s.store.MarkVersionError(ctx, versionID, v.Status.Effective(), message, s.now())
	if err != nil {
		return fmt.Errorf("mark error: %w", err)
	}
	if !marked {
		return artifact.Invariantf("version %d changed status, retry", v.Number)
	}
	s.log.Warn("version failed by operator",
		zap.String("version_id", versionID.String()),
		zap.String("message", message))
	return nil
}

// Status reports a version's lifecycle state without permission checks. It
// backs the operator RPC.
func (s *Service) Status(ctx context.Context, versionID uuid.UUID) (*artifact.Version, error) {
	v, err := s.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("load version: %w", err)
	}
	return v, nil
}
