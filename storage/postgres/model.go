package postgres

import (
	"time"

	"legal-analyzer/types"
)

// Document maps the documents table.
type Document struct {
	// ID is a UUID assigned by the uploader, not an auto-increment key.
	ID               string `gorm:"column:id;primaryKey;type:uuid"`
	UserID           string `gorm:"column:user_id;type:varchar(255);index"`
	Filename         string `gorm:"column:filename;type:varchar(255);not null"`
	FilePath         string `gorm:"column:file_path;type:text"`
	FileSize         int64  `gorm:"column:file_size"`
	MimeType         string `gorm:"column:mime_type;type:varchar(255)"`
	ProcessingStatus string `gorm:"column:processing_status;type:varchar(20);not null;default:pending;index"`

	CreatedAt time.Time
	UpdatedAt time.Time `gorm:"index"`
}

// TableName pins the table name shared with the hosted schema.
func (Document) TableName() string {
	return "documents"
}

func (d *Document) toType() *types.Document {
	return &types.Document{
		ID:               d.ID,
		Owner:            d.UserID,
		Filename:         d.Filename,
		StoragePath:      d.FilePath,
		Size:             d.FileSize,
		MimeType:         d.MimeType,
		ProcessingStatus: types.DocumentStatus(d.ProcessingStatus),
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

func documentFromType(d *types.Document) *Document {
	return &Document{
		ID:               d.ID,
		UserID:           d.Owner,
		Filename:         d.Filename,
		FilePath:         d.StoragePath,
		FileSize:         d.Size,
		MimeType:         d.MimeType,
		ProcessingStatus: string(d.ProcessingStatus),
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

// Analysis maps the document_analyses table. JSON columns are stored as jsonb.
// document_id is deliberately not unique: repeated analyses insert new rows.
type Analysis struct {
	ID                string                `gorm:"column:id;primaryKey;type:uuid"`
	DocumentID        string                `gorm:"column:document_id;type:uuid;not null;index"`
	OriginalContent   string                `gorm:"column:original_content;type:text"`
	SimplifiedSummary string                `gorm:"column:simplified_summary;type:text"`
	RiskAssessment    types.RiskAssessment  `gorm:"column:risk_assessment;type:jsonb;serializer:json"`
	KeyClauses        []types.KeyClause     `gorm:"column:key_clauses;type:jsonb;serializer:json"`
	SummaryDetails    *types.SummaryDetails `gorm:"column:summary_details;type:jsonb;serializer:json"`

	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

func (Analysis) TableName() string {
	return "document_analyses"
}

func (a *Analysis) toType() *types.Analysis {
	return &types.Analysis{
		ID:                a.ID,
		DocumentID:        a.DocumentID,
		OriginalContent:   a.OriginalContent,
		SimplifiedSummary: a.SimplifiedSummary,
		RiskAssessment:    a.RiskAssessment,
		KeyClauses:        a.KeyClauses,
		SummaryDetails:    a.SummaryDetails,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}

func analysisFromType(a *types.Analysis) *Analysis {
	return &Analysis{
		ID:                a.ID,
		DocumentID:        a.DocumentID,
		OriginalContent:   a.OriginalContent,
		SimplifiedSummary: a.SimplifiedSummary,
		RiskAssessment:    a.RiskAssessment,
		KeyClauses:        a.KeyClauses,
		SummaryDetails:    a.SummaryDetails,
		CreatedAt:         a.CreatedAt,
		UpdatedAt:         a.UpdatedAt,
	}
}
