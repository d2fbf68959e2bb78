package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"artifact-review/internal/model/artifact"
	"artifact-review/pkg/middleware"
)

type fakeVerifier map[string]*artifact.Principal

func (f fakeVerifier) Verify(_ context.Context, token string) (*artifact.Principal, error) {
	if token == "broken" {
		return nil, errors.New("redis down")
	}
	if p, ok := f[token]; ok {
		return p, nil
	}
	return nil, artifact.ErrNotAuthenticated
}

func newRouter(v middleware.Verifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Authenticate(v))
	r.GET("/open", func(c *gin.Context) {
		if p := middleware.Principal(c); p != nil {
			c.String(http.StatusOK, p.ID.String())
			return
		}
		c.String(http.StatusOK, "anonymous")
	})
	r.GET("/closed", middleware.RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, middleware.Principal(c).Email)
	})
	return r
}

func TestAuthenticate(t *testing.T) {
	p := &artifact.Principal{ID: uuid.New(), Email: "a@example.com"}
	r := newRouter(fakeVerifier{"good": p})

	tests := []struct {
		name   string
		path   string
		header string
		code   int
		body   string
	}{
		{"anonymous open", "/open", "", http.StatusOK, "anonymous"},
		{"authenticated open", "/open", "Bearer good", http.StatusOK, p.ID.String()},
		{"bad scheme", "/open", "Token good", http.StatusUnauthorized, ""},
		{"bad token", "/open", "Bearer nope", http.StatusUnauthorized, ""},
		{"verifier failure", "/open", "Bearer broken", http.StatusInternalServerError, ""},
		{"anonymous closed", "/closed", "", http.StatusUnauthorized, ""},
		{"authenticated closed", "/closed", "Bearer good", http.StatusOK, "a@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.code, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}
