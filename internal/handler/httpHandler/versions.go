package httpHandler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"artifact-review/internal/blobstore"
	"artifact-review/internal/model/artifact"
	"artifact-review/pkg/middleware"
)

func (h *Handler) listVersions(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	versions, err := h.svc.Catalog.ListVersions(c.Request.Context(), middleware.Principal(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if versions == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, gin.H{"versions": versions})
}

func (h *Handler) getLatestVersion(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	v, err := h.svc.Catalog.GetLatestVersion(c.Request.Context(), middleware.Principal(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if v == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) getVersionByNumber(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 1 {
		notFound(c)
		return
	}
	v, err := h.svc.Catalog.GetVersionByNumber(c.Request.Context(), middleware.Principal(c), id, number)
	if err != nil {
		writeError(c, err)
		return
	}
	if v == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) getVersion(c *gin.Context) {
	id, ok := uuidParam(c, "versionId")
	if !ok {
		return
	}
	v, err := h.svc.Catalog.GetVersion(c.Request.Context(), middleware.Principal(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if v == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) getVersionStatus(c *gin.Context) {
	id, ok := uuidParam(c, "versionId")
	if !ok {
		return
	}
	st, err := h.svc.Catalog.GetVersionStatus(c.Request.Context(), middleware.Principal(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if st == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, st)
}

type renameVersionRequest struct {
	Name *string `json:"name"`
}

func (h *Handler) renameVersion(c *gin.Context) {
	id, ok := uuidParam(c, "versionId")
	if !ok {
		return
	}
	var req renameVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := h.svc.Catalog.UpdateVersionName(c.Request.Context(), middleware.Principal(c), id, req.Name); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteVersion(c *gin.Context) {
	id, ok := uuidParam(c, "versionId")
	if !ok {
		return
	}
	if err := h.svc.Catalog.SoftDeleteVersion(c.Request.Context(), middleware.Principal(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getEntryPoint(c *gin.Context) {
	id, ok := uuidParam(c, "versionId")
	if !ok {
		return
	}
	content, err := h.svc.Retrieval.GetEntryPointContent(c.Request.Context(), id, middleware.Principal(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if content == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, content)
}

func (h *Handler) listFiles(c *gin.Context) {
	id, ok := uuidParam(c, "versionId")
	if !ok {
		return
	}
	list := h.svc.Retrieval.ListFiles
	if c.Query("html") == "true" {
		list = h.svc.Retrieval.ListHTMLFiles
	}
	files, err := list(c.Request.Context(), id, middleware.Principal(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if files == nil {
		files = []*artifact.File{}
	}
	c.JSON(http.StatusOK, gin.H{"files": files})
}

func (h *Handler) getFile(c *gin.Context) {
	id, ok := uuidParam(c, "versionId")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	visible, err := h.svc.Perms.CanViewVersion(ctx, middleware.Principal(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if !visible {
		notFound(c)
		return
	}
	f, err := h.svc.Retrieval.GetFileByPath(ctx, id, strings.TrimPrefix(c.Param("path"), "/"))
	if err != nil {
		writeError(c, err)
		return
	}
	if f == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, f)
}

// uploadArchive accepts the raw zip body for drivers without presigned
// uploads and starts ingestion.
func (h *Handler) uploadArchive(c *gin.Context) {
	id, ok := uuidParam(c, "versionId")
	if !ok {
		return
	}
	if c.Request.ContentLength > artifact.MaxArchiveSize {
		writeError(c, artifact.CheckArchiveSize(c.Request.ContentLength))
		return
	}
	body := http.MaxBytesReader(c.Writer, c.Request.Body, artifact.MaxArchiveSize+1)
	data, err := io.ReadAll(body)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeError(c, artifact.Policyf("archive too large: maximum is 50MB"))
		return
	}
	if err != nil {
		writeError(c, fmt.Errorf("read archive body: %w", err))
		return
	}
	if err := h.svc.Ingest.Upload(c.Request.Context(), middleware.Principal(c), id, data); err != nil {
		writeError(c, err)
		return
	}
	h.dispatch(id)
	c.JSON(http.StatusAccepted, gin.H{"status": artifact.StatusProcessing})
}

type uploadedRequest struct {
	UploadKey string `json:"upload_key"`
}

// markUploaded is called after the client put the archive at its presigned
// URL.
func (h *Handler) markUploaded(c *gin.Context) {
	id, ok := uuidParam(c, "versionId")
	if !ok {
		return
	}
	var req uploadedRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UploadKey == "" {
		badRequest(c, "upload_key is required")
		return
	}
	if err := h.svc.Ingest.MarkUploaded(c.Request.Context(), middleware.Principal(c), id, blobstore.Handle(req.UploadKey)); err != nil {
		writeError(c, err)
		return
	}
	h.dispatch(id)
	c.JSON(http.StatusAccepted, gin.H{"status": artifact.StatusProcessing})
}
