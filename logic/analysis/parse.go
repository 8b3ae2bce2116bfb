package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"legal-analyzer/types"
)

var fenceRe = regexp.MustCompile("```json\\n?|\\n?```")

// StripFences removes markdown ```json fences the model sometimes wraps its
// answer in. It is idempotent.
func StripFences(s string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(strings.TrimSpace(s), ""))
}

// Result is one of *AnalysisResult, *SummaryResult or *ParseError.
type Result interface {
	result()
}

// AnalysisResult is a validated full analysis.
type AnalysisResult struct {
	SimplifiedSummary string               `json:"simplified_summary"`
	RiskAssessment    types.RiskAssessment `json:"risk_assessment"`
	KeyClauses        []types.KeyClause    `json:"key_clauses"`
}

// SummaryResult is a validated enhanced summary.
type SummaryResult struct {
	types.SummaryDetails
}

// ParseError means the model answered with something that is not the JSON we
// asked for. It is never worth retrying.
type ParseError struct {
	Field string // offending field, empty for decode failures
	Raw   string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid AI response format: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid AI response format: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (*AnalysisResult) result() {}
func (*SummaryResult) result()  {}
func (*ParseError) result()     {}

var (
	analysisKeys = []string{"simplified_summary", "risk_assessment", "key_clauses"}
	summaryKeys  = []string{
		"enhanced_summary", "document_type", "key_parties", "main_terms",
		"deadlines", "risks", "recommendations",
	}
)

// Parse interprets content according to action.
func Parse(action types.Action, content string) Result {
	var (
		res Result
		err error
	)
	switch action {
	case types.ActionGenerateSummary:
		res, err = ParseSummary(content)
	default:
		res, err = ParseAnalysis(content)
	}
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			return pe
		}
		return &ParseError{Raw: content, Err: err}
	}
	return res
}

// ParseAnalysis decodes and validates a full-analysis answer. Errors are *ParseError.
func ParseAnalysis(content string) (*AnalysisResult, error) {
	raw := StripFences(content)
	if err := requireKeys(raw, analysisKeys); err != nil {
		return nil, err
	}
	var out AnalysisResult
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	if err := out.validate(); err != nil {
		err.Raw = raw
		return nil, err
	}
	return &out, nil
}

// ParseSummary decodes and validates an enhanced-summary answer. Errors are *ParseError.
func ParseSummary(content string) (*SummaryResult, error) {
	raw := StripFences(content)
	if err := requireKeys(raw, summaryKeys); err != nil {
		return nil, err
	}
	var out SummaryResult
	if err := json.Unmarshal([]byte(raw), &out.SummaryDetails); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	if err := out.validate(); err != nil {
		err.Raw = raw
		return nil, err
	}
	return &out, nil
}

func requireKeys(raw string, keys []string) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	var obj map[string]json.RawMessage
	if err := dec.Decode(&obj); err != nil {
		return &ParseError{Raw: raw, Err: err}
	}
	if dec.More() {
		return &ParseError{Raw: raw, Err: fmt.Errorf("unexpected data after JSON object")}
	}
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			return &ParseError{Field: k, Raw: raw, Err: fmt.Errorf("missing required field")}
		}
	}
	return nil
}

func (r *AnalysisResult) validate() *ParseError {
	if strings.TrimSpace(r.SimplifiedSummary) == "" {
		return &ParseError{Field: "simplified_summary", Err: fmt.Errorf("empty")}
	}

	ra := &r.RiskAssessment
	ra.OverallRisk = ra.OverallRisk.Normalize()
	if !ra.OverallRisk.Valid() {
		return &ParseError{Field: "risk_assessment.overall_risk", Err: fmt.Errorf("unknown level %q", ra.OverallRisk)}
	}
	if ra.RiskFactors == nil {
		ra.RiskFactors = []types.RiskFactor{}
	}
	for i := range ra.RiskFactors {
		f := &ra.RiskFactors[i]
		f.Level = f.Level.Normalize()
		if !f.Level.Valid() {
			return &ParseError{Field: fmt.Sprintf("risk_assessment.risk_factors[%d].level", i), Err: fmt.Errorf("unknown level %q", f.Level)}
		}
		if f.KeyTerms == nil {
			f.KeyTerms = []string{}
		}
	}

	for i := range r.KeyClauses {
		c := &r.KeyClauses[i]
		field := func(name string) string { return fmt.Sprintf("key_clauses[%d].%s", i, name) }
		if strings.TrimSpace(string(c.ID)) == "" {
			return &ParseError{Field: field("id"), Err: fmt.Errorf("missing")}
		}
		if strings.TrimSpace(c.Content) == "" {
			return &ParseError{Field: field("content"), Err: fmt.Errorf("empty")}
		}
		c.Risk = c.Risk.Normalize()
		if !c.Risk.Valid() {
			return &ParseError{Field: field("risk"), Err: fmt.Errorf("unknown level %q", c.Risk)}
		}
		if c.KeyTerms == nil {
			c.KeyTerms = []string{}
		}
	}
	return nil
}

func (r *SummaryResult) validate() *ParseError {
	if strings.TrimSpace(r.EnhancedSummary) == "" {
		return &ParseError{Field: "enhanced_summary", Err: fmt.Errorf("empty")}
	}
	for _, l := range []*[]string{&r.KeyParties, &r.MainTerms, &r.Deadlines, &r.Risks, &r.Recommendations} {
		if *l == nil {
			*l = []string{}
		}
	}
	return nil
}
