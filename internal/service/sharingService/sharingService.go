package sharingService

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"artifact-review/internal/model/artifact"
	"artifact-review/internal/repository/artifactRepo"
	"artifact-review/internal/service/permission"
	"artifact-review/pkg/logger"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// UserLookup resolves an email to a known user id, nil when nobody has
// signed in with it yet.
type UserLookup func(ctx context.Context, email string) (*uuid.UUID, error)

type Service struct {
	store  artifactRepo.Store
	perms  *permission.Resolver
	lookup UserLookup
	log    *logger.Logger
	now    func() time.Time
}

// New builds the service. A nil lookup leaves every invitation pending until
// the invitee links it.
func New(store artifactRepo.Store, perms *permission.Resolver, lookup UserLookup, log *logger.Logger) *Service {
	return &Service{store: store, perms: perms, lookup: lookup, log: log.Named("sharing"), now: time.Now}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !emailRegex.MatchString(email) {
		return "", artifact.Policyf("invalid email format")
	}
	return email, nil
}

func (s *Service) InviteReviewer(ctx context.Context, p *artifact.Principal, artifactID uuid.UUID, email string) (*artifact.ReviewerGrant, error) {
	if _, err := s.perms.RequireOwner(ctx, p, artifactID); err != nil {
		return nil, err
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if email == strings.ToLower(p.Email) {
		return nil, artifact.Invariantf("owners cannot invite themselves")
	}

	existing, err := s.store.FindActiveGrant(ctx, artifactID, email)
	if err != nil {
		return nil, fmt.Errorf("check existing grant: %w", err)
	}
	if existing != nil {
		return nil, artifact.Invariantf("%s is already a reviewer", email)
	}

	g := &artifact.ReviewerGrant{
		ID:         uuid.New(),
		ArtifactID: artifactID,
		Email:      email,
		InvitedBy:  p.ID,
		InvitedAt:  s.now(),
		Status:     artifact.GrantPending,
	}
	if s.lookup != nil {
		uid, err := s.lookup(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("resolve user: %w", err)
		}
		if uid != nil {
			g.UserID = uid
			g.Status = artifact.GrantAccepted
		}
	}

	err = s.store.CreateGrant(ctx, g)
	switch {
	case errors.Is(err, artifactRepo.ErrDuplicate):
		return nil, artifact.Invariantf("%s is already a reviewer", email)
	case errors.Is(err, artifactRepo.ErrGone):
		return nil, artifact.NotFoundf("artifact %s not found", artifactID)
	case err != nil:
		return nil, fmt.Errorf("create grant: %w", err)
	}

	s.log.Info("reviewer invited",
		zap.String("artifact_id", artifactID.String()),
		zap.String("status", string(g.Status)))
	return g, nil
}

func (s *Service) ListReviewers(ctx context.Context, p *artifact.Principal, artifactID uuid.UUID) ([]*artifact.ReviewerGrant, error) {
	if _, err := s.perms.RequireOwner(ctx, p, artifactID); err != nil {
		return nil, err
	}
	grants, err := s.store.ListActiveGrants(ctx, artifactID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	return grants, nil
}

func (s *Service) RemoveReviewer(ctx context.Context, p *artifact.Principal, grantID uuid.UUID) error {
	if p == nil {
		return artifact.ErrNotAuthenticated
	}
	g, err := s.store.GetGrant(ctx, grantID)
	if err != nil {
		return fmt.Errorf("load grant: %w", err)
	}
	if g == nil || g.IsDeleted {
		return artifact.NotFoundf("reviewer %s not found", grantID)
	}
	if _, err := s.perms.RequireOwner(ctx, p, g.ArtifactID); err != nil {
		return err
	}
	err = s.store.SoftDeleteGrant(ctx, grantID, p.ID, s.now())
	if errors.Is(err, artifactRepo.ErrGone) {
		return artifact.NotFoundf("reviewer %s not found", grantID)
	}
	if err != nil {
		return fmt.Errorf("remove grant: %w", err)
	}
	return nil
}

// LinkPendingInvitations attaches every pending invitation for email to the
// user who just proved they own it.
func (s *Service) LinkPendingInvitations(ctx context.Context, userID uuid.UUID, email string) (int, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return 0, err
	}
	n, err := s.store.LinkPendingGrants(ctx, email, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("link grants: %w", err)
	}
	if n > 0 {
		s.log.Info("pending invitations linked", zap.String("user_id", userID.String()), zap.Int("count", n))
	}
	return n, nil
}
