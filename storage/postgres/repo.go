package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"legal-analyzer/types"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrAnalysisNotFound  = errors.New("analysis not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidStatus     = errors.New("invalid document status")
)

// Repo wraps every operation on the documents and document_analyses tables.
type Repo struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepo returns a repository over db.
func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db, now: time.Now}
}

// CreateDocument inserts a new document. A missing id is generated and a
// missing status defaults to pending.
func (r *Repo) CreateDocument(ctx context.Context, doc *types.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.ProcessingStatus == "" {
		doc.ProcessingStatus = types.StatusPending
	}
	if !doc.ProcessingStatus.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, doc.ProcessingStatus)
	}
	row := documentFromType(doc)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	doc.CreatedAt, doc.UpdatedAt = row.CreatedAt, row.UpdatedAt
	return nil
}

// GetDocument loads one document by id.
func (r *Repo) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	var row Document
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return row.toType(), nil
}

// ListDocumentsByOwner returns owner's documents, newest first. The empty owner
// lists only anonymous uploads.
func (r *Repo) ListDocumentsByOwner(ctx context.Context, owner string, limit, offset int) ([]*types.Document, error) {
	tx := r.db.WithContext(ctx).Model(&Document{}).Where("user_id = ?", owner).Order("created_at DESC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if offset > 0 {
		tx = tx.Offset(offset)
	}

	var rows []Document
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out := make([]*types.Document, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toType())
	}
	return out, nil
}

// UpdateDocumentStatus moves a document to status. Only forward transitions
// pending -> processing -> {completed, failed} are applied; writing the
// current status again succeeds without effect.
func (r *Repo) UpdateDocumentStatus(ctx context.Context, id string, status types.DocumentStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	preds := status.Predecessors()
	from := make([]string, 0, len(preds))
	for _, p := range preds {
		from = append(from, string(p))
	}

	res := r.db.WithContext(ctx).Model(&Document{}).
		Where("id = ? AND processing_status IN ?", id, from).
		Updates(map[string]any{
			"processing_status": string(status),
			"updated_at":        r.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("update document status: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	cur, err := r.GetDocument(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.ProcessingStatus, status)
}

// InsertAnalysis stores a new analysis row. The document must already have
// left pending.
func (r *Repo) InsertAnalysis(ctx context.Context, a *types.Analysis) error {
	doc, err := r.GetDocument(ctx, a.DocumentID)
	if err != nil {
		return err
	}
	if doc.ProcessingStatus == types.StatusPending {
		return fmt.Errorf("%w: analysis for document still %s", ErrInvalidTransition, doc.ProcessingStatus)
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	row := analysisFromType(a)
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	a.CreatedAt, a.UpdatedAt = row.CreatedAt, row.UpdatedAt
	return nil
}

// UpdateAnalysisByDocument rewrites the non-nil fields of upd on every analysis
// of documentID and returns the latest one.
func (r *Repo) UpdateAnalysisByDocument(ctx context.Context, documentID string, upd types.AnalysisUpdate) (*types.Analysis, error) {
	row := Analysis{UpdatedAt: r.now()}
	cols := []string{"updated_at"}
	if upd.SimplifiedSummary != nil {
		row.SimplifiedSummary = *upd.SimplifiedSummary
		cols = append(cols, "simplified_summary")
	}
	if upd.RiskAssessment != nil {
		row.RiskAssessment = *upd.RiskAssessment
		cols = append(cols, "risk_assessment")
	}
	if upd.KeyClauses != nil {
		row.KeyClauses = upd.KeyClauses
		cols = append(cols, "key_clauses")
	}
	if upd.SummaryDetails != nil {
		row.SummaryDetails = upd.SummaryDetails
		cols = append(cols, "summary_details")
	}

	res := r.db.WithContext(ctx).Model(&Analysis{}).
		Where("document_id = ?", documentID).
		Select(cols).
		Updates(&row)
	if res.Error != nil {
		return nil, fmt.Errorf("update analysis: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrAnalysisNotFound
	}
	return r.GetAnalysisByDocument(ctx, documentID)
}

// GetAnalysis loads one analysis by id.
func (r *Repo) GetAnalysis(ctx context.Context, id string) (*types.Analysis, error) {
	var row Analysis
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAnalysisNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis: %w", err)
	}
	return row.toType(), nil
}

// GetAnalysisByDocument returns the most recent analysis of a document.
func (r *Repo) GetAnalysisByDocument(ctx context.Context, documentID string) (*types.Analysis, error) {
	var row Analysis
	err := r.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAnalysisNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis by document: %w", err)
	}
	return row.toType(), nil
}

// FailStaleDocuments marks documents stuck in processing since before cutoff
// as failed. Used by the reaper job.
func (r *Repo) FailStaleDocuments(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&Document{}).
		Where("processing_status = ? AND updated_at < ?", string(types.StatusProcessing), cutoff).
		Updates(map[string]any{
			"processing_status": string(types.StatusFailed),
			"updated_at":        r.now(),
		})
	return res.RowsAffected, res.Error
}
