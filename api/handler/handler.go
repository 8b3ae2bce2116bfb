package handler

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"legal-analyzer/service"
	"legal-analyzer/storage/postgres"
	"legal-analyzer/types"
)

type Analyzer interface {
	Analyze(ctx context.Context, req types.AnalyzeRequest) (*types.Analysis, error)
}

type Uploader interface {
	Upload(ctx context.Context, in service.UploadInput) (*service.UploadResult, error)
}

// Viewer is the read side served under /api/v1.
type Viewer interface {
	GetDocument(ctx context.Context, owner, id string) (*types.Document, error)
	ListDocuments(ctx context.Context, owner string, limit, offset int) ([]*types.Document, error)
	GetAnalysis(ctx context.Context, owner, id string) (*types.Analysis, error)
	GetDocumentAnalysis(ctx context.Context, owner, documentID string) (*service.DocumentAnalysis, error)
	SearchClauses(ctx context.Context, owner string, q types.ClauseQuery) ([]types.ClauseHit, error)
}

// Presigner issues download links for stored originals.
type Presigner interface {
	PresignedURL(ctx context.Context, key, filename string) (string, error)
}

// statusOf maps a service error to an HTTP status.
func statusOf(err error) int {
	switch {
	case service.IsBadRequest(err):
		return http.StatusBadRequest
	case errors.Is(err, postgres.ErrDocumentNotFound), errors.Is(err, postgres.ErrAnalysisNotFound):
		return http.StatusNotFound
	case errors.Is(err, postgres.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, service.ErrSearchDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func nopIfNil(log *zap.Logger) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log
}
