// Package sweeper reconciles versions that ingestion left behind: jobs that
// died while processing, uploads that never arrived and the blobs of failed
// versions.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"artifact-review/internal/blobstore"
	"artifact-review/internal/metrics"
	"artifact-review/internal/model/artifact"
	"artifact-review/internal/repository/artifactRepo"
	"artifact-review/pkg/logger"
)

const (
	KindStuck     = "stuck"
	KindAbandoned = "abandoned"
	KindOrphan    = "orphan"
)

type Config struct {
	Schedule   string        `env:"SWEEP_SCHEDULE" env-default:"@every 5m"`
	StuckAfter time.Duration `env:"SWEEP_STUCK_AFTER" env-default:"30m"`
	OrphanTTL  time.Duration `env:"SWEEP_ORPHAN_TTL" env-default:"24h"`
}

// LockChecker reports whether an ingestion job is alive for a version.
type LockChecker interface {
	Held(ctx context.Context, versionID uuid.UUID) (bool, error)
}

type Sweeper struct {
	store artifactRepo.Store
	blobs blobstore.Store
	locks LockChecker
	cfg   Config
	log   *logger.Logger
	now   func() time.Time
	cron  *cron.Cron
}

// cronLogger feeds robfig/cron's own messages into zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.s.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

func New(store artifactRepo.Store, blobs blobstore.Store, locks LockChecker, cfg Config, log *logger.Logger) *Sweeper {
	log = log.Named("sweeper")
	cl := cronLogger{s: log.Zap().Sugar()}
	return &Sweeper{
		store: store,
		blobs: blobs,
		locks: locks,
		cfg:   cfg,
		log:   log,
		now:   time.Now,
		cron:  cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
	}
}

// SetClock replaces the time source. Tests only.
func (s *Sweeper) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", s.cfg.Schedule, err)
	}
	s.cron.Start()
	s.log.Info("sweeper started", zap.String("schedule", s.cfg.Schedule))
	return nil
}

// Stop waits for a running sweep through the returned context.
func (s *Sweeper) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Sweeper) RunOnce(ctx context.Context) {
	steps := []struct {
		name string
		run  func(context.Context) (int, error)
	}{
		{KindStuck, s.SweepStuck},
		{KindAbandoned, s.SweepAbandoned},
		{KindOrphan, s.SweepOrphans},
	}
	for _, step := range steps {
		n, err := step.run(ctx)
		if err != nil {
			s.log.Error("sweep failed", zap.String("kind", step.name), zap.Error(err))
			continue
		}
		if n > 0 {
			s.log.Info("sweep finished", zap.String("kind", step.name), zap.Int("count", n))
		}
	}
}

// SweepStuck fails versions that sat in processing longer than StuckAfter
// with no live job.
func (s *Sweeper) SweepStuck(ctx context.Context) (int, error) {
	versions, err := s.store.ListVersionsByStatus(ctx, artifact.StatusProcessing, s.now().Add(-s.cfg.StuckAfter))
	if err != nil {
		return 0, fmt.Errorf("list processing versions: %w", err)
	}
	n := 0
	for _, v := range versions {
		if s.locks != nil {
			held, err := s.locks.Held(ctx, v.ID)
			if err != nil {
				return n, fmt.Errorf("check ingest lock: %w", err)
			}
			if held {
				continue
			}
		}
		msg := fmt.Sprintf("ingestion did not finish within %s", s.cfg.StuckAfter)
		marked, err := s.store.MarkVersionError(ctx, v.ID, artifact.StatusProcessing, msg, s.now())
		if err != nil {
			return n, fmt.Errorf("mark version %s: %w", v.ID, err)
		}
		if marked {
			n++
		}
	}
	metrics.RecordSweep(KindStuck, n)
	return n, nil
}

// SweepAbandoned fails versions whose archive never arrived within OrphanTTL.
func (s *Sweeper) SweepAbandoned(ctx context.Context) (int, error) {
	versions, err := s.store.ListVersionsByStatus(ctx, artifact.StatusUploading, s.now().Add(-s.cfg.OrphanTTL))
	if err != nil {
		return 0, fmt.Errorf("list uploading versions: %w", err)
	}
	n := 0
	for _, v := range versions {
		marked, err := s.store.MarkVersionError(ctx, v.ID, artifact.StatusUploading, "upload was never completed", s.now())
		if err != nil {
			return n, fmt.Errorf("mark version %s: %w", v.ID, err)
		}
		if marked {
			n++
		}
	}
	metrics.RecordSweep(KindAbandoned, n)
	return n, nil
}

// SweepOrphans releases storage held by failed versions older than
// OrphanTTL: their file rows are soft-deleted, blobs nothing else references
// are removed and so is the uploaded archive. Each version is released once.
// It returns the number of file rows released.
func (s *Sweeper) SweepOrphans(ctx context.Context) (int, error) {
	versions, err := s.store.ListUnreleasedFailures(ctx, s.now().Add(-s.cfg.OrphanTTL))
	if err != nil {
		return 0, fmt.Errorf("list failed versions: %w", err)
	}
	n := 0
	for _, v := range versions {
		released, err := s.releaseVersion(ctx, v)
		n += released
		if err != nil {
			return n, err
		}
		if err := s.store.MarkVersionReleased(ctx, v.ID, s.now()); err != nil {
			return n, fmt.Errorf("mark version %s released: %w", v.ID, err)
		}
	}
	metrics.RecordSweep(KindOrphan, n)
	return n, nil
}

func (s *Sweeper) releaseVersion(ctx context.Context, v *artifact.Version) (int, error) {
	files, err := s.store.ListFiles(ctx, v.ID)
	if err != nil {
		return 0, fmt.Errorf("list files of %s: %w", v.ID, err)
	}
	if len(files) > 0 {
		if _, err := s.store.SoftDeleteFiles(ctx, v.ID, artifact.SystemPrincipal, s.now()); err != nil {
			return 0, fmt.Errorf("delete files of %s: %w", v.ID, err)
		}
	}

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if seen[f.BlobHandle] {
			continue
		}
		seen[f.BlobHandle] = true
		refs, err := s.store.CountFilesByBlob(ctx, f.BlobHandle)
		if err != nil {
			return len(files), fmt.Errorf("count blob references: %w", err)
		}
		if refs > 0 {
			continue
		}
		if err := s.blobs.Delete(ctx, blobstore.Handle(f.BlobHandle)); err != nil {
			s.log.Warn("failed to delete orphan blob", zap.String("handle", f.BlobHandle), zap.Error(err))
		}
	}

	if v.UploadHandle != "" && !blobstore.Handle(v.UploadHandle).ContentAddressed() {
		if err := s.blobs.Delete(ctx, blobstore.Handle(v.UploadHandle)); err != nil {
			s.log.Warn("failed to delete abandoned archive", zap.String("handle", v.UploadHandle), zap.Error(err))
		}
	}
	return len(files), nil
}
