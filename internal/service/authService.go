package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"artifact-review/internal/model/artifact"
	"artifact-review/internal/repository/BlackListRepo"
)

const accessTokenExpireTime = 3 * time.Hour

// Claims is the access token payload: sub is the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type revocationList interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// AuthService verifies access tokens issued by the identity provider. It
// never authenticates anyone itself.
type AuthService struct {
	jwtSecretKey  string
	blacklistRepo revocationList
	now           func() time.Time
}

func New(jwtSecret string, blacklistRepo *BlackListRepo.BlackListRepo) *AuthService {
	return &AuthService{jwtSecretKey: jwtSecret, blacklistRepo: blacklistRepo, now: time.Now}
}

// IssueToken signs an access token for p. Used by tooling and tests; in
// production tokens come from the identity provider sharing the secret.
func (s *AuthService) IssueToken(p artifact.Principal, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = accessTokenExpireTime
	}
	now := s.now()
	claims := Claims{
		Email: p.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString([]byte(s.jwtSecretKey))
	if err != nil {
		return "", err
	}
	return tokenStr, nil
}

func (s *AuthService) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Verify resolves a bearer token to a principal. Any failure, including a
// revoked token, is reported as ErrNotAuthenticated.
func (s *AuthService) Verify(ctx context.Context, token string) (*artifact.Principal, error) {
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	if token == "" {
		return nil, artifact.ErrNotAuthenticated
	}

	claims, err := s.parse(token)
	if err != nil {
		return nil, artifact.ErrNotAuthenticated
	}

	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, artifact.ErrNotAuthenticated
	}

	if claims.ID != "" {
		revoked, err := s.blacklistRepo.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return nil, artifact.ErrNotAuthenticated
		}
	}

	return &artifact.Principal{ID: uid, Email: strings.ToLower(claims.Email)}, nil
}

// Revoke blacklists token until its natural expiry.
func (s *AuthService) Revoke(ctx context.Context, token string) error {
	claims, err := s.parse(strings.TrimPrefix(token, "Bearer "))
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		return fmt.Errorf("token cannot be revoked: missing jti or exp")
	}
	if err := s.blacklistRepo.Revoke(ctx, claims.ID, claims.ExpiresAt.Time.Sub(s.now())); err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}
