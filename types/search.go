package types

const (
	HitKindClause     = "clause"
	HitKindRiskFactor = "risk_factor"
)

// ClauseQuery filters a full-text clause search.
type ClauseQuery struct {
	Query      string    `form:"q" json:"query" binding:"required"`
	DocumentID string    `form:"document_id" json:"document_id,omitempty"`
	Risk       RiskLevel `form:"risk" json:"risk,omitempty"`
	Kind       string    `form:"kind" json:"kind,omitempty"`
	Size       int       `form:"size" json:"size,omitempty"`
}

// ClauseHit is one matching key clause or risk factor.
type ClauseHit struct {
	AnalysisID  string    `json:"analysis_id"`
	DocumentID  string    `json:"document_id"`
	Kind        string    `json:"kind"`
	ClauseID    string    `json:"clause_id,omitempty"`
	Content     string    `json:"content"`
	Explanation string    `json:"explanation"`
	Risk        RiskLevel `json:"risk"`
	KeyTerms    []string  `json:"key_terms"`
	Score       float64   `json:"score"`
}
