package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"legal-analyzer/pkg/logger"
	"legal-analyzer/storage/postgres"
	"legal-analyzer/types"
)

// ErrSearchDisabled is returned by SearchClauses when no clause index is configured.
var ErrSearchDisabled = errors.New("clause search is not configured")

// Reader is the read side of the persistence gateway.
type Reader interface {
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	ListDocumentsByOwner(ctx context.Context, owner string, limit, offset int) ([]*types.Document, error)
	GetAnalysis(ctx context.Context, id string) (*types.Analysis, error)
	GetAnalysisByDocument(ctx context.Context, documentID string) (*types.Analysis, error)
}

type ClauseSearcher interface {
	Search(ctx context.Context, q types.ClauseQuery) ([]types.ClauseHit, error)
}

// DocumentAnalysis is what the viewer renders for one document.
type DocumentAnalysis struct {
	Document   *types.Document         `json:"document"`
	Analysis   *types.Analysis         `json:"analysis"`
	RiskCounts map[types.RiskLevel]int `json:"risk_counts"`
}

// RetrievalService serves stored documents and analyses back to their owners.
// The anonymous owner "" only sees documents uploaded anonymously.
type RetrievalService struct {
	reader   Reader
	searcher ClauseSearcher
	logger   *zap.Logger
}

// NewRetrievalService wires the viewer. searcher may be nil.
func NewRetrievalService(reader Reader, searcher ClauseSearcher, log *zap.Logger) *RetrievalService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RetrievalService{reader: reader, searcher: searcher, logger: log.Named("retrieval")}
}

func (s *RetrievalService) GetDocument(ctx context.Context, owner, id string) (*types.Document, error) {
	doc, err := s.reader.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.Owner != owner {
		return nil, postgres.ErrDocumentNotFound
	}
	return doc, nil
}

func (s *RetrievalService) ListDocuments(ctx context.Context, owner string, limit, offset int) ([]*types.Document, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.reader.ListDocumentsByOwner(ctx, owner, limit, offset)
}

// GetAnalysis loads an analysis by its own id.
func (s *RetrievalService) GetAnalysis(ctx context.Context, owner, id string) (*types.Analysis, error) {
	a, err := s.reader.GetAnalysis(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetDocument(ctx, owner, a.DocumentID); err != nil {
		if errors.Is(err, postgres.ErrDocumentNotFound) {
			return nil, postgres.ErrAnalysisNotFound
		}
		return nil, err
	}
	return a, nil
}

// GetDocumentAnalysis returns a document with its latest analysis and a count
// of key clauses per risk level.
func (s *RetrievalService) GetDocumentAnalysis(ctx context.Context, owner, documentID string) (*DocumentAnalysis, error) {
	doc, err := s.GetDocument(ctx, owner, documentID)
	if err != nil {
		return nil, err
	}
	a, err := s.reader.GetAnalysisByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	counts := map[types.RiskLevel]int{types.RiskLow: 0, types.RiskMedium: 0, types.RiskHigh: 0}
	for _, c := range a.KeyClauses {
		counts[c.Risk]++
	}
	return &DocumentAnalysis{Document: doc, Analysis: a, RiskCounts: counts}, nil
}

// SearchClauses runs a clause search and drops hits on documents the owner
// cannot see.
func (s *RetrievalService) SearchClauses(ctx context.Context, owner string, q types.ClauseQuery) ([]types.ClauseHit, error) {
	if s.searcher == nil {
		return nil, ErrSearchDisabled
	}
	start := time.Now()
	hits, err := s.searcher.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	visible := make(map[string]bool)
	kept := make([]types.ClauseHit, 0, len(hits))
	for _, h := range hits {
		ok, seen := visible[h.DocumentID]
		if !seen {
			_, err := s.GetDocument(ctx, owner, h.DocumentID)
			ok = err == nil
			visible[h.DocumentID] = ok
		}
		if ok {
			kept = append(kept, h)
		}
	}
	hits = kept
	logger.WithContext(ctx, s.logger).Debug("clause search",
		zap.String("query", q.Query),
		zap.Int("hits", len(hits)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return hits, nil
}
