package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"legal-analyzer/logic/analysis"
	"legal-analyzer/pkg/logger"
	"legal-analyzer/storage/postgres"
	"legal-analyzer/types"
)

var (
	ErrDocumentIDRequired = errors.New("documentId is required")
	ErrContentRequired    = errors.New("content is required")
	ErrUnknownAction      = errors.New("unknown action")
	ErrEmptyCompletion    = errors.New("empty completion from model")
)

// IsBadRequest reports whether err comes from validating the request itself.
func IsBadRequest(err error) bool {
	for _, target := range []error{
		ErrDocumentIDRequired, ErrContentRequired, ErrUnknownAction,
		ErrUnsupportedFileType, ErrFileTooLarge, ErrEmptyFile,
		ErrContentTypeMismatch, ErrExtractionFailed,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Gateway is the persistence the analysis pipeline writes through.
type Gateway interface {
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status types.DocumentStatus) error
	InsertAnalysis(ctx context.Context, a *types.Analysis) error
	UpdateAnalysisByDocument(ctx context.Context, documentID string, upd types.AnalysisUpdate) (*types.Analysis, error)
	GetAnalysisByDocument(ctx context.Context, documentID string) (*types.Analysis, error)
}

// ClauseIndexer receives every stored analysis for clause search.
type ClauseIndexer interface {
	IndexAnalysis(ctx context.Context, a *types.Analysis) error
}

type AnalysisService struct {
	gateway   Gateway
	chatModel model.BaseChatModel
	indexer   ClauseIndexer
	logger    *zap.Logger

	// compensateTimeout bounds the failed-status write made after an error.
	compensateTimeout time.Duration
}

type AnalysisOption func(*AnalysisService)

// WithClauseIndexer indexes key clauses after each successful analysis.
func WithClauseIndexer(idx ClauseIndexer) AnalysisOption {
	return func(s *AnalysisService) { s.indexer = idx }
}

func NewAnalysisService(gateway Gateway, chatModel model.BaseChatModel, log *zap.Logger, opts ...AnalysisOption) *AnalysisService {
	if log == nil {
		log = zap.NewNop()
	}
	s := &AnalysisService{
		gateway:           gateway,
		chatModel:         chatModel,
		logger:            log.Named("analysis"),
		compensateTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze runs a full analysis, or with ActionGenerateSummary rewrites the
// summary of an existing one. On any failure after validation the document is
// marked failed on a best-effort basis and the original error is returned.
func (s *AnalysisService) Analyze(ctx context.Context, req types.AnalyzeRequest) (*types.Analysis, error) {
	req.DocumentID = strings.TrimSpace(req.DocumentID)
	if req.DocumentID == "" {
		return nil, ErrDocumentIDRequired
	}

	log := logger.WithContext(ctx, s.logger).With(
		zap.String("document_id", req.DocumentID),
		zap.String("action", actionName(req.Action)),
	)
	start := time.Now()

	switch req.Action {
	case types.ActionAnalyze:
		if strings.TrimSpace(req.Content) == "" {
			return nil, ErrContentRequired
		}
	case types.ActionGenerateSummary:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}

	// Nothing is written to a document the caller does not own, not even the
	// failed status.
	if err := s.checkOwner(ctx, req); err != nil {
		log.Warn("analysis refused", zap.Error(err))
		return nil, err
	}

	var (
		out *types.Analysis
		err error
	)
	if req.Action == types.ActionGenerateSummary {
		log.Info("generating enhanced summary")
		out, err = s.generateSummary(ctx, log, req)
	} else {
		log.Info("analyzing document", zap.Int("content_len", len(req.Content)))
		out, err = s.analyze(ctx, log, req)
	}

	if err != nil {
		log.Error("analysis failed", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
		s.markFailed(ctx, log, req.DocumentID)
		return nil, err
	}
	log.Info("analysis completed", zap.String("analysis_id", out.ID), zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

// checkOwner rejects documents that do not belong to req.Owner. Anonymous
// callers only reach documents uploaded anonymously.
func (s *AnalysisService) checkOwner(ctx context.Context, req types.AnalyzeRequest) error {
	doc, err := s.gateway.GetDocument(ctx, req.DocumentID)
	if err != nil {
		return err
	}
	if doc.Owner != req.Owner {
		return postgres.ErrDocumentNotFound
	}
	return nil
}

func (s *AnalysisService) analyze(ctx context.Context, log *zap.Logger, req types.AnalyzeRequest) (*types.Analysis, error) {
	if err := s.gateway.UpdateDocumentStatus(ctx, req.DocumentID, types.StatusProcessing); err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}

	content, err := s.complete(ctx, analysis.AnalysisMessages(req.Content))
	if err != nil {
		return nil, err
	}

	var res *analysis.AnalysisResult
	switch r := analysis.Parse(types.ActionAnalyze, content).(type) {
	case *analysis.AnalysisResult:
		res = r
	case *analysis.ParseError:
		log.Warn("unparseable model answer", zap.String("raw", truncate(r.Raw, 500)))
		return nil, r
	default:
		return nil, fmt.Errorf("unexpected parse result %T", r)
	}

	rec := &types.Analysis{
		DocumentID:        req.DocumentID,
		OriginalContent:   req.Content,
		SimplifiedSummary: res.SimplifiedSummary,
		RiskAssessment:    res.RiskAssessment,
		KeyClauses:        res.KeyClauses,
	}
	if err := s.gateway.InsertAnalysis(ctx, rec); err != nil {
		return nil, fmt.Errorf("store analysis: %w", err)
	}
	if err := s.gateway.UpdateDocumentStatus(ctx, req.DocumentID, types.StatusCompleted); err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}

	s.index(ctx, log, rec)
	return rec, nil
}

func (s *AnalysisService) generateSummary(ctx context.Context, log *zap.Logger, req types.AnalyzeRequest) (*types.Analysis, error) {
	existing, err := s.gateway.GetAnalysisByDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, fmt.Errorf("load analysis: %w", err)
	}
	content := req.Content
	if strings.TrimSpace(content) == "" {
		content = existing.OriginalContent
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrContentRequired
	}

	answer, err := s.complete(ctx, analysis.SummaryMessages(content))
	if err != nil {
		return nil, err
	}

	var res *analysis.SummaryResult
	switch r := analysis.Parse(types.ActionGenerateSummary, answer).(type) {
	case *analysis.SummaryResult:
		res = r
	case *analysis.ParseError:
		log.Warn("unparseable model answer", zap.String("raw", truncate(r.Raw, 500)))
		return nil, r
	default:
		return nil, fmt.Errorf("unexpected parse result %T", r)
	}

	details := res.SummaryDetails
	updated, err := s.gateway.UpdateAnalysisByDocument(ctx, req.DocumentID, types.AnalysisUpdate{
		SimplifiedSummary: &details.EnhancedSummary,
		SummaryDetails:    &details,
	})
	if err != nil {
		return nil, fmt.Errorf("update analysis: %w", err)
	}

	s.index(ctx, log, updated)
	return updated, nil
}

func (s *AnalysisService) complete(ctx context.Context, msgs []*schema.Message) (string, error) {
	msg, err := s.chatModel.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("llm call: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", ErrEmptyCompletion
	}
	return msg.Content, nil
}

// markFailed is the compensating write. Its own failure is logged and dropped.
func (s *AnalysisService) markFailed(ctx context.Context, log *zap.Logger, documentID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compensateTimeout)
	defer cancel()
	if err := s.gateway.UpdateDocumentStatus(ctx, documentID, types.StatusFailed); err != nil {
		log.Warn("could not mark document failed", zap.Error(err))
	}
}

func (s *AnalysisService) index(ctx context.Context, log *zap.Logger, a *types.Analysis) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.IndexAnalysis(ctx, a); err != nil {
		log.Warn("clause indexing failed", zap.String("analysis_id", a.ID), zap.Error(err))
	}
}

func actionName(a types.Action) string {
	if a == types.ActionAnalyze {
		return "analyze"
	}
	return string(a)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
