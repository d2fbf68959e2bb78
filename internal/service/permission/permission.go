package permission

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"artifact-review/internal/model/artifact"
)

// Store is the slice of the catalog the resolver reads.
type Store interface {
	GetArtifact(ctx context.Context, id uuid.UUID) (*artifact.Artifact, error)
	GetVersion(ctx context.Context, id uuid.UUID) (*artifact.Version, error)
	HasAcceptedGrant(ctx context.Context, artifactID, userID uuid.UUID) (bool, error)
}

type Resolver struct {
	store Store
}

func New(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the access p holds on the artifact. Missing and deleted
// artifacts resolve to none; anyone else gets at least public access.
func (r *Resolver) Resolve(ctx context.Context, p *artifact.Principal, artifactID uuid.UUID) (artifact.Level, error) {
	a, err := r.store.GetArtifact(ctx, artifactID)
	if err != nil {
		return artifact.LevelNone, fmt.Errorf("load artifact: %w", err)
	}
	return r.ResolveLoaded(ctx, p, a)
}

// ResolveLoaded is Resolve for an artifact the caller already fetched.
func (r *Resolver) ResolveLoaded(ctx context.Context, p *artifact.Principal, a *artifact.Artifact) (artifact.Level, error) {
	if a == nil || a.IsDeleted {
		return artifact.LevelNone, nil
	}
	if p == nil {
		return artifact.LevelPublic, nil
	}
	if a.CreatedBy == p.ID {
		return artifact.LevelOwner, nil
	}
	ok, err := r.store.HasAcceptedGrant(ctx, a.ID, p.ID)
	if err != nil {
		return artifact.LevelNone, fmt.Errorf("check reviewer grant: %w", err)
	}
	if ok {
		return artifact.LevelReviewer, nil
	}
	return artifact.LevelPublic, nil
}

func (r *Resolver) CanView(ctx context.Context, p *artifact.Principal, artifactID uuid.UUID) (bool, error) {
	level, err := r.Resolve(ctx, p, artifactID)
	if err != nil {
		return false, err
	}
	return level.CanView(), nil
}

// CanViewVersion is false for missing or deleted versions regardless of the
// parent's level.
func (r *Resolver) CanViewVersion(ctx context.Context, p *artifact.Principal, versionID uuid.UUID) (bool, error) {
	v, err := r.store.GetVersion(ctx, versionID)
	if err != nil {
		return false, fmt.Errorf("load version: %w", err)
	}
	if v == nil || v.IsDeleted {
		return false, nil
	}
	return r.CanView(ctx, p, v.ArtifactID)
}

// RequireOwner loads the artifact for an owner-only mutation.
func (r *Resolver) RequireOwner(ctx context.Context, p *artifact.Principal, artifactID uuid.UUID) (*artifact.Artifact, error) {
	if p == nil {
		return nil, artifact.ErrNotAuthenticated
	}
	a, err := r.store.GetArtifact(ctx, artifactID)
	if err != nil {
		return nil, fmt.Errorf("load artifact: %w", err)
	}
	if a == nil || a.IsDeleted {
		return nil, artifact.NotFoundf("artifact %s not found", artifactID)
	}
	if a.CreatedBy != p.ID {
		return nil, artifact.Invariantf("only the owner can modify artifact %s", artifactID)
	}
	return a, nil
}
