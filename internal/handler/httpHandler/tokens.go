package httpHandler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"artifact-review/pkg/logger"
)

// revokeToken blacklists the bearer token the request was made with until it
// expires.
func (h *Handler) revokeToken(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.auth.Revoke(ctx, c.GetHeader("Authorization")); err != nil {
		writeError(c, err)
		return
	}
	logger.GetLogger(ctx).Info("token revoked")
	c.Status(http.StatusNoContent)
}
