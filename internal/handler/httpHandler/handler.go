package httpHandler

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"artifact-review/internal/metrics"
	"artifact-review/internal/model/artifact"
	"artifact-review/internal/repository/userRepo"
	"artifact-review/internal/service/catalogService"
	"artifact-review/internal/service/ingestService"
	"artifact-review/internal/service/permission"
	"artifact-review/internal/service/retrievalService"
	"artifact-review/internal/service/sharingService"
	"artifact-review/pkg/logger"
	"artifact-review/pkg/middleware"
)

type Services struct {
	Catalog   *catalogService.Service
	Ingest    *ingestService.Service
	Retrieval *retrievalService.Service
	Sharing   *sharingService.Service
	Perms     *permission.Resolver
	Users     userRepo.Directory
}

type Options struct {
	CORSOrigins    []string
	MaxRequestBody int64
}

// TokenService verifies bearer tokens and revokes them on sign-out.
type TokenService interface {
	middleware.Verifier
	Revoke(ctx context.Context, token string) error
}

type Handler struct {
	svc  Services
	auth TokenService
	opts Options
	log  *logger.Logger

	jobs sync.WaitGroup
}

func New(svc Services, auth TokenService, opts Options, log *logger.Logger) *Handler {
	if opts.MaxRequestBody <= 0 {
		opts.MaxRequestBody = artifact.MaxArchiveSize + artifact.MiB
	}
	return &Handler{svc: svc, auth: auth, opts: opts, log: log.Named("http")}
}

func corsConfig(origins []string) cors.Config {
	config := cors.DefaultConfig()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	return config
}

func (h *Handler) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(h.log), cors.New(corsConfig(h.opts.CORSOrigins)))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.GET("/artifact/:shareToken/*path", h.serveShared)

	api := r.Group("/api/v1")
	api.Use(middleware.Authenticate(h.auth))
	{
		api.GET("/artifacts/:id", h.getArtifact)
		api.GET("/artifacts/:id/versions", h.listVersions)
		api.GET("/artifacts/:id/latest", h.getLatestVersion)
		api.GET("/artifacts/:id/versions/:number", h.getVersionByNumber)

		api.GET("/versions/:versionId", h.getVersion)
		api.GET("/versions/:versionId/status", h.getVersionStatus)
		api.GET("/versions/:versionId/content", h.getEntryPoint)
		api.GET("/versions/:versionId/files", h.listFiles)
		api.GET("/versions/:versionId/files/*path", h.getFile)

		authorized := api.Group("/")
		authorized.Use(middleware.RequireAuth())
		{
			authorized.GET("/artifacts", h.listOwned)
			authorized.POST("/artifacts", h.createArtifact)
			authorized.POST("/artifacts/archive", h.createArchiveArtifact)
			authorized.PATCH("/artifacts/:id", h.updateArtifact)
			authorized.DELETE("/artifacts/:id", h.deleteArtifact)
			authorized.POST("/artifacts/:id/versions", h.addVersion)
			authorized.POST("/artifacts/:id/versions/archive", h.addArchiveVersion)

			authorized.PATCH("/versions/:versionId", h.renameVersion)
			authorized.DELETE("/versions/:versionId", h.deleteVersion)
			authorized.PUT("/versions/:versionId/archive", h.uploadArchive)
			authorized.POST("/versions/:versionId/uploaded", h.markUploaded)

			authorized.GET("/artifacts/:id/reviewers", h.listReviewers)
			authorized.POST("/artifacts/:id/reviewers", h.inviteReviewer)
			authorized.DELETE("/reviewers/:grantId", h.removeReviewer)
			authorized.POST("/invitations/accept", h.acceptInvitations)

			authorized.POST("/tokens/revoke", h.revokeToken)
		}
	}
	return r
}

// Wait blocks until ingestion jobs started by the API have finished.
func (h *Handler) Wait() {
	h.jobs.Wait()
}

// dispatch runs the ingestion job in the background; the client polls the
// version status.
func (h *Handler) dispatch(versionID uuid.UUID) {
	h.jobs.Add(1)
	go func() {
		defer h.jobs.Done()
		log := h.log.With(zap.String("version_id", versionID.String()))
		ctx := logger.WithLogger(context.Background(), log)
		if _, err := h.svc.Ingest.Process(ctx, versionID); err != nil && !errors.Is(err, ingestService.ErrJobInProgress) {
			log.Warn("background ingestion failed", zap.Error(err))
		}
	}()
}

var kindStatus = map[artifact.Kind]int{
	artifact.KindPolicyViolation:    http.StatusBadRequest,
	artifact.KindNotFound:           http.StatusNotFound,
	artifact.KindIngestionFailure:   http.StatusUnprocessableEntity,
	artifact.KindInvariantViolation: http.StatusConflict,
	artifact.KindUnauthenticated:    http.StatusUnauthorized,
}

func writeError(c *gin.Context, err error) {
	if code, ok := kindStatus[artifact.KindOf(err)]; ok {
		c.JSON(code, gin.H{"error": err.Error(), "kind": artifact.KindOf(err).String()})
		return
	}
	logger.GetLogger(c.Request.Context()).Error("request failed", zap.Error(err))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "not found", "kind": artifact.KindNotFound.String()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "kind": artifact.KindPolicyViolation.String()})
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		notFound(c)
		return uuid.Nil, false
	}
	return id, true
}
