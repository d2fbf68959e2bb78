package ingestHandler

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"artifact-review/internal/model/artifact"
	"artifact-review/internal/service/ingestService"
	"artifact-review/pkg/logger"
)

type ProcessRequest struct {
	VersionID string `json:"version_id"`
}

type ProcessResponse struct {
	VersionID  string `json:"version_id"`
	EntryPoint string `json:"entry_point,omitempty"`
	Files      int    `json:"files"`
	Size       int64  `json:"size"`
	// Skipped is set when another worker is already running the job.
	Skipped bool `json:"skipped,omitempty"`
}

type FailRequest struct {
	VersionID string `json:"version_id"`
	Message   string `json:"message"`
}

type FailResponse struct {
	Status string `json:"status"`
}

type StatusRequest struct {
	VersionID string `json:"version_id"`
}

type StatusResponse struct {
	VersionID    string `json:"version_id"`
	ArtifactID   string `json:"artifact_id"`
	Number       int    `json:"number"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	EntryPoint   string `json:"entry_point,omitempty"`
	Size         int64  `json:"size"`
	Deleted      bool   `json:"deleted,omitempty"`
}

type IngestionServer interface {
	Process(context.Context, *ProcessRequest) (*ProcessResponse, error)
	Fail(context.Context, *FailRequest) (*FailResponse, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
}

type Handler struct {
	ingest *ingestService.Service
}

func New(ingest *ingestService.Service) *Handler {
	return &Handler{ingest: ingest}
}

func parseVersionID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid version id %q", s)
	}
	return id, nil
}

// toStatus maps a classified error onto a gRPC status.
func toStatus(ctx context.Context, err error) error {
	switch artifact.KindOf(err) {
	case artifact.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case artifact.KindPolicyViolation:
		return status.Error(codes.InvalidArgument, err.Error())
	case artifact.KindInvariantViolation:
		return status.Error(codes.FailedPrecondition, err.Error())
	case artifact.KindIngestionFailure:
		return status.Error(codes.Aborted, err.Error())
	case artifact.KindUnauthenticated:
		return status.Error(codes.Unauthenticated, err.Error())
	default:
		logger.GetLogger(ctx).Error("operator call failed", zap.Error(err))
		return status.Error(codes.Internal, "internal error")
	}
}

func (h *Handler) Process(ctx context.Context, req *ProcessRequest) (*ProcessResponse, error) {
	id, err := parseVersionID(req.VersionID)
	if err != nil {
		return nil, err
	}
	res, err := h.ingest.Process(ctx, id)
	if errors.Is(err, ingestService.ErrJobInProgress) {
		return &ProcessResponse{VersionID: req.VersionID, Skipped: true}, nil
	}
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	return &ProcessResponse{
		VersionID:  req.VersionID,
		EntryPoint: res.EntryPoint,
		Files:      res.Files,
		Size:       res.Size,
	}, nil
}

func (h *Handler) Fail(ctx context.Context, req *FailRequest) (*FailResponse, error) {
	id, err := parseVersionID(req.VersionID)
	if err != nil {
		return nil, err
	}
	if err := h.ingest.Fail(ctx, id, req.Message); err != nil {
		return nil, toStatus(ctx, err)
	}
	return &FailResponse{Status: string(artifact.StatusError)}, nil
}

func (h *Handler) Status(ctx context.Context, req *StatusRequest) (*StatusResponse, error) {
	id, err := parseVersionID(req.VersionID)
	if err != nil {
		return nil, err
	}
	v, err := h.ingest.Status(ctx, id)
	if err != nil {
		return nil, toStatus(ctx, err)
	}
	if v == nil {
		return nil, status.Errorf(codes.NotFound, "version %s not found", id)
	}
	resp := &StatusResponse{
		VersionID:  v.ID.String(),
		ArtifactID: v.ArtifactID.String(),
		Number:     v.Number,
		Status:     string(v.Status.Effective()),
		EntryPoint: v.EntryPoint,
		Size:       v.Size,
		Deleted:    v.IsDeleted,
	}
	if v.ErrorMessage != nil {
		resp.ErrorMessage = *v.ErrorMessage
	}
	return resp, nil
}
