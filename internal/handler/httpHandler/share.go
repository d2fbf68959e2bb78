package httpHandler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// splitSharePath reads "v{n}/rest" from a share link path. A path without a
// version segment targets the newest ready version.
func splitSharePath(p string) (int, string, bool) {
	p = strings.TrimPrefix(p, "/")
	head, rest, _ := strings.Cut(p, "/")
	if len(head) < 2 || head[0] != 'v' {
		return 0, p, true
	}
	n, err := strconv.Atoi(head[1:])
	if err != nil {
		return 0, p, true
	}
	if n < 1 {
		return 0, "", false
	}
	return n, rest, true
}

func (h *Handler) serveShared(c *gin.Context) {
	number, filePath, ok := splitSharePath(c.Param("path"))
	if !ok {
		c.String(http.StatusNotFound, "not found")
		return
	}
	f, err := h.svc.Retrieval.OpenSharedFile(c.Request.Context(), c.Param("shareToken"), number, filePath)
	if err != nil {
		writeError(c, err)
		return
	}
	if f == nil {
		c.String(http.StatusNotFound, "not found")
		return
	}
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("Cache-Control", "private, max-age=300")
	c.Data(http.StatusOK, f.MimeType, f.Data)
}
