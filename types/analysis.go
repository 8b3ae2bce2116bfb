package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RiskLevel grades a clause or a whole document.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Valid reports whether r is low, medium or high.
func (r RiskLevel) Valid() bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// Normalize lower-cases and trims r; models are not consistent about casing.
func (r RiskLevel) Normalize() RiskLevel {
	return RiskLevel(strings.ToLower(strings.TrimSpace(string(r))))
}

// ClauseID identifies a key clause. Models emit it either as a number or a string.
type ClauseID string

func (id *ClauseID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ClauseID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("clause id must be a string or number: %w", err)
	}
	*id = ClauseID(n.String())
	return nil
}

// MarshalJSON writes canonical integer ids back as numbers. Forms such as
// "01" or "+1" stay strings since they are not valid JSON numbers.
func (id ClauseID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// RiskFactor is a flagged clause with its severity and explanation.
type RiskFactor struct {
	Level       RiskLevel `json:"level"`
	Clause      string    `json:"clause"`
	Explanation string    `json:"explanation"`
	KeyTerms    []string  `json:"key_terms"`
}

// RiskAssessment is the document-level risk grading.
type RiskAssessment struct {
	OverallRisk RiskLevel    `json:"overall_risk"`
	RiskFactors []RiskFactor `json:"risk_factors"`
}

// KeyClause is one excerpt of the document with attached risk metadata.
type KeyClause struct {
	ID          ClauseID  `json:"id"`
	Content     string    `json:"content"`
	Risk        RiskLevel `json:"risk"`
	Explanation string    `json:"explanation"`
	KeyTerms    []string  `json:"key_terms"`
}

// SummaryDetails is the payload of an enhanced summary.
type SummaryDetails struct {
	EnhancedSummary string   `json:"enhanced_summary"`
	DocumentType    string   `json:"document_type"`
	KeyParties      []string `json:"key_parties"`
	MainTerms       []string `json:"main_terms"`
	Deadlines       []string `json:"deadlines"`
	Risks           []string `json:"risks"`
	Recommendations []string `json:"recommendations"`
}

// Analysis is a persisted analysis of one document.
type Analysis struct {
	ID                string          `json:"id"`
	DocumentID        string          `json:"document_id"`
	OriginalContent   string          `json:"original_content"`
	SimplifiedSummary string          `json:"simplified_summary"`
	RiskAssessment    RiskAssessment  `json:"risk_assessment"`
	KeyClauses        []KeyClause     `json:"key_clauses"`
	SummaryDetails    *SummaryDetails `json:"summary_details,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// AnalysisUpdate lists the fields rewritten in place on an existing analysis.
// Nil fields are left untouched.
type AnalysisUpdate struct {
	SimplifiedSummary *string
	RiskAssessment    *RiskAssessment
	KeyClauses        []KeyClause
	SummaryDetails    *SummaryDetails
}

// Action selects what the analysis endpoint does with a request.
type Action string

const (
	ActionAnalyze         Action = ""
	ActionGenerateSummary Action = "generate_summary"
)

// AnalyzeRequest is the body accepted by the analyze-document endpoint.
type AnalyzeRequest struct {
	DocumentID string `json:"documentId" binding:"required"`
	Content    string `json:"content"`
	Action     Action `json:"action,omitempty"`
	// Owner is the authenticated caller, set by the server. The document must
	// belong to it.
	Owner string `json:"-"`
}
