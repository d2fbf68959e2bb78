package httpHandler

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"artifact-review/internal/model/artifact"
	"artifact-review/internal/model/user"
	"artifact-review/internal/service/catalogService"
	"artifact-review/pkg/middleware"
)

type archiveRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Size        int64   `json:"size"`
	VersionName *string `json:"version_name"`
}

type updateArtifactRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

type singleFileForm struct {
	fileType    artifact.FileType
	fileName    string
	content     []byte
	versionName *string
}

func optionalForm(c *gin.Context, key string) *string {
	if v, ok := c.GetPostForm(key); ok {
		return &v
	}
	return nil
}

// readSingleFile parses the multipart body shared by artifact and version
// creation: a "file" part plus "file_type" and "version_name" fields.
func (h *Handler) readSingleFile(c *gin.Context) (*singleFileForm, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.opts.MaxRequestBody)

	ft, err := artifact.ParseFileType(c.PostForm("file_type"))
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if !ft.IsSingleFile() {
		badRequest(c, "zip artifacts are created through the archive endpoint")
		return nil, false
	}
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "file is required")
		return nil, false
	}
	if err := artifact.CheckSingleFileSize(fh.Size); err != nil {
		writeError(c, err)
		return nil, false
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, "cannot read file")
		return nil, false
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		badRequest(c, "cannot read file")
		return nil, false
	}
	return &singleFileForm{
		fileType:    ft,
		fileName:    fh.Filename,
		content:     content,
		versionName: optionalForm(c, "version_name"),
	}, true
}

func (h *Handler) createArtifact(c *gin.Context) {
	form, ok := h.readSingleFile(c)
	if !ok {
		return
	}
	created, err := h.svc.Catalog.Create(c.Request.Context(), middleware.Principal(c), catalogService.CreateInput{
		Name:        c.PostForm("name"),
		Description: optionalForm(c, "description"),
		FileType:    form.fileType,
		FileName:    form.fileName,
		Content:     form.content,
		VersionName: form.versionName,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) createArchiveArtifact(c *gin.Context) {
	var req archiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	ticket, err := h.svc.Catalog.CreateWithArchive(c.Request.Context(), middleware.Principal(c), catalogService.ArchiveInput{
		Name:         req.Name,
		Description:  req.Description,
		DeclaredSize: req.Size,
		VersionName:  req.VersionName,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ticket)
}

func (h *Handler) listOwned(c *gin.Context) {
	list, err := h.svc.Catalog.ListOwned(c.Request.Context(), middleware.Principal(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []*artifact.Artifact{}
	}
	c.JSON(http.StatusOK, gin.H{"artifacts": list})
}

func (h *Handler) getArtifact(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	details, err := h.svc.Catalog.Details(c.Request.Context(), middleware.Principal(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if details == nil {
		notFound(c)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *Handler) updateArtifact(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req updateArtifactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if err := h.svc.Catalog.UpdateDetails(c.Request.Context(), middleware.Principal(c), id, req.Name, req.Description); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteArtifact(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Catalog.SoftDelete(c.Request.Context(), middleware.Principal(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) addVersion(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	form, ok := h.readSingleFile(c)
	if !ok {
		return
	}
	created, err := h.svc.Catalog.AddVersion(c.Request.Context(), middleware.Principal(c), id, catalogService.VersionInput{
		FileType:    form.fileType,
		FileName:    form.fileName,
		Content:     form.content,
		VersionName: form.versionName,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) addArchiveVersion(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req archiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	ticket, err := h.svc.Catalog.AddArchiveVersion(c.Request.Context(), middleware.Principal(c), id, catalogService.ArchiveVersionInput{
		DeclaredSize: req.Size,
		VersionName:  req.VersionName,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ticket)
}

type inviteRequest struct {
	Email string `json:"email"`
}

func (h *Handler) inviteReviewer(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		badRequest(c, "email is required")
		return
	}
	grant, err := h.svc.Sharing.InviteReviewer(c.Request.Context(), middleware.Principal(c), id, req.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, grant)
}

func (h *Handler) listReviewers(c *gin.Context) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	grants, err := h.svc.Sharing.ListReviewers(c.Request.Context(), middleware.Principal(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if grants == nil {
		grants = []*artifact.ReviewerGrant{}
	}
	c.JSON(http.StatusOK, gin.H{"reviewers": grants})
}

func (h *Handler) removeReviewer(c *gin.Context) {
	id, ok := uuidParam(c, "grantId")
	if !ok {
		return
	}
	if err := h.svc.Sharing.RemoveReviewer(c.Request.Context(), middleware.Principal(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) acceptInvitations(c *gin.Context) {
	p := middleware.Principal(c)
	if p.Email == "" {
		badRequest(c, "token carries no email")
		return
	}
	ctx := c.Request.Context()
	if err := h.svc.Users.Touch(ctx, user.New(p.ID, p.Email, time.Now())); err != nil {
		writeError(c, err)
		return
	}
	n, err := h.svc.Sharing.LinkPendingInvitations(ctx, p.ID, p.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"linked": n})
}
