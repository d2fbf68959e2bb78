package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"artifact-review/internal/model/artifact"
	"artifact-review/pkg/logger"
)

type principalKey struct{}

// Verifier resolves a bearer token to a principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (*artifact.Principal, error)
}

func WithPrincipal(ctx context.Context, p *artifact.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns nil for anonymous requests.
func PrincipalFromContext(ctx context.Context) *artifact.Principal {
	p, _ := ctx.Value(principalKey{}).(*artifact.Principal)
	return p
}

func Principal(c *gin.Context) *artifact.Principal {
	return PrincipalFromContext(c.Request.Context())
}

// Authenticate resolves the Authorization header when present. Requests
// without one continue anonymously; a header that does not verify is
// rejected.
func Authenticate(v Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		ctx := c.Request.Context()
		p, err := v.Verify(ctx, parts[1])
		if errors.Is(err, artifact.ErrNotAuthenticated) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if err != nil {
			logger.GetLogger(ctx).Error("token verification failed", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		ctx = WithPrincipal(ctx, p)
		ctx = logger.WithLogger(ctx, logger.GetLogger(ctx).With(zap.String("user_id", p.ID.String())))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireAuth rejects anonymous requests. It runs after Authenticate.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if Principal(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization header"})
			return
		}
		c.Next()
	}
}
