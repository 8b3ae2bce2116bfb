package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"legal-analyzer/types"
)

const (
	defaultSize = 10
	maxSize     = 100
)

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string    `json:"_id"`
			Score  float64   `json:"_score"`
			Source clauseDoc `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// buildQuery matches q against clause text, explanations and key terms, with
// exact filters on document, risk and kind.
func buildQuery(q types.ClauseQuery) map[string]any {
	var filters []map[string]any
	if q.DocumentID != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"document_id": q.DocumentID}})
	}
	if q.Risk != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"risk": string(q.Risk.Normalize())}})
	}
	if q.Kind != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"kind": q.Kind}})
	}

	boolQuery := map[string]any{
		"must": []map[string]any{{
			"multi_match": map[string]any{
				"query":  q.Query,
				"fields": []string{"content^2", "key_terms^3", "explanation"},
			},
		}},
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	size := q.Size
	if size <= 0 {
		size = defaultSize
	}
	if size > maxSize {
		size = maxSize
	}
	return map[string]any{
		"query": map[string]any{"bool": boolQuery},
		"size":  size,
	}
}

// Search runs a BM25 clause search.
func (e *ClauseIndex) Search(ctx context.Context, q types.ClauseQuery) ([]types.ClauseHit, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(buildQuery(q)); err != nil {
		return nil, fmt.Errorf("error encoding query: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{e.index},
		Body:  &buf,
	}
	res, err := req.Do(ctx, e.client)
	if err != nil {
		return nil, fmt.Errorf("error getting response: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("error response: %s", res.String())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("error parsing response body: %w", err)
	}

	hits := make([]types.ClauseHit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		src := h.Source
		keyTerms := src.KeyTerms
		if keyTerms == nil {
			keyTerms = []string{}
		}
		hits = append(hits, types.ClauseHit{
			AnalysisID:  src.AnalysisID,
			DocumentID:  src.DocumentID,
			Kind:        src.Kind,
			ClauseID:    src.ClauseID,
			Content:     src.Content,
			Explanation: src.Explanation,
			Risk:        types.RiskLevel(src.Risk),
			KeyTerms:    keyTerms,
			Score:       h.Score,
		})
	}
	e.logger.Debug("clause search", zap.String("query", q.Query), zap.Int("hits", len(hits)))
	return hits, nil
}
