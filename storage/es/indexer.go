package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"go.uber.org/zap"

	"legal-analyzer/types"
)

const DefaultIndex = "legal_clauses_v1"

// Config points the clause index at an Elasticsearch cluster.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	APIKey    string
	Index     string
}

// ClauseIndex stores key clauses and risk factors for full-text search.
type ClauseIndex struct {
	client *elasticsearch.Client
	index  string
	logger *zap.Logger
}

// Ping checks that the cluster answers.
func (e *ClauseIndex) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: %s", res.Status())
	}
	return nil
}

// NewClauseIndex creates the client. Call EnsureIndex before first use.
func NewClauseIndex(cfg Config, log *zap.Logger) (*ClauseIndex, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Index == "" {
		cfg.Index = DefaultIndex
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating the client: %w", err)
	}
	return &ClauseIndex{client: client, index: cfg.Index, logger: log.Named("es")}, nil
}

const clauseMapping = `
{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0
  },
  "mappings": {
    "properties": {
      "analysis_id": { "type": "keyword" },
      "document_id": { "type": "keyword" },
      "kind":        { "type": "keyword" },
      "clause_id":   { "type": "keyword" },
      "content":     { "type": "text", "analyzer": "english" },
      "explanation": { "type": "text", "analyzer": "english" },
      "risk":        { "type": "keyword" },
      "key_terms": {
        "type": "text",
        "analyzer": "english",
        "fields": { "keyword": { "type": "keyword" } }
      }
    }
  }
}`

// EnsureIndex creates the index with its mapping when it does not exist yet.
func (e *ClauseIndex) EnsureIndex(ctx context.Context) error {
	res, err := e.client.Indices.Exists([]string{e.index}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	e.logger.Info("creating clause index", zap.String("index", e.index))
	res, err = e.client.Indices.Create(
		e.index,
		e.client.Indices.Create.WithBody(strings.NewReader(clauseMapping)),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("create index error: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index response error: %s", res.String())
	}
	return nil
}

type clauseDoc struct {
	AnalysisID  string   `json:"analysis_id"`
	DocumentID  string   `json:"document_id"`
	Kind        string   `json:"kind"`
	ClauseID    string   `json:"clause_id,omitempty"`
	Content     string   `json:"content"`
	Explanation string   `json:"explanation"`
	Risk        string   `json:"risk"`
	KeyTerms    []string `json:"key_terms"`
}

// docs flattens an analysis into one search document per key clause and per
// risk factor. IDs are stable so re-indexing overwrites.
func docs(a *types.Analysis) map[string]clauseDoc {
	out := make(map[string]clauseDoc, len(a.KeyClauses)+len(a.RiskAssessment.RiskFactors))
	for i, c := range a.KeyClauses {
		id := string(c.ID)
		if id == "" {
			id = fmt.Sprint(i)
		}
		out[fmt.Sprintf("%s-clause-%s", a.ID, id)] = clauseDoc{
			AnalysisID:  a.ID,
			DocumentID:  a.DocumentID,
			Kind:        types.HitKindClause,
			ClauseID:    string(c.ID),
			Content:     c.Content,
			Explanation: c.Explanation,
			Risk:        string(c.Risk),
			KeyTerms:    c.KeyTerms,
		}
	}
	for i, f := range a.RiskAssessment.RiskFactors {
		out[fmt.Sprintf("%s-risk-%d", a.ID, i)] = clauseDoc{
			AnalysisID:  a.ID,
			DocumentID:  a.DocumentID,
			Kind:        types.HitKindRiskFactor,
			Content:     f.Clause,
			Explanation: f.Explanation,
			Risk:        string(f.Level),
			KeyTerms:    f.KeyTerms,
		}
	}
	return out
}

// IndexAnalysis replaces the indexed clauses of a's document with the clauses
// and risk factors of a.
func (e *ClauseIndex) IndexAnalysis(ctx context.Context, a *types.Analysis) error {
	if err := e.DeleteByDocument(ctx, a.DocumentID); err != nil {
		return err
	}
	items := docs(a)
	if len(items) == 0 {
		return nil
	}

	var failed atomic.Int64
	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:      e.index,
		Client:     e.client,
		NumWorkers: 1,
		Refresh:    "wait_for",
		OnError: func(ctx context.Context, err error) {
			e.logger.Warn("bulk indexer error", zap.Error(err))
		},
	})
	if err != nil {
		return err
	}

	for id, doc := range items {
		data, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: id,
			Body:       bytes.NewReader(data),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				failed.Add(1)
				e.logger.Warn("clause not indexed",
					zap.String("id", item.DocumentID),
					zap.String("reason", res.Error.Reason),
					zap.Error(err),
				)
			},
		})
		if err != nil {
			return err
		}
	}

	if err := bi.Close(ctx); err != nil {
		return err
	}
	stats := bi.Stats()
	if n := failed.Load(); n > 0 || stats.NumFailed > 0 {
		return fmt.Errorf("indexed %d of %d clause documents", stats.NumIndexed, len(items))
	}
	e.logger.Debug("analysis indexed",
		zap.String("analysis_id", a.ID),
		zap.Uint64("documents", stats.NumIndexed),
	)
	return nil
}

// DeleteByDocument removes every indexed clause of a document.
func (e *ClauseIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	query := map[string]any{
		"query": map[string]any{
			"term": map[string]any{
				"document_id": documentID,
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(query); err != nil {
		return fmt.Errorf("error encoding query: %w", err)
	}

	res, err := e.client.DeleteByQuery(
		[]string{e.index},
		&buf,
		e.client.DeleteByQuery.WithContext(ctx),
		e.client.DeleteByQuery.WithRefresh(true),
	)
	if err != nil {
		return fmt.Errorf("ES delete request failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("ES delete response error: %s", res.String())
	}
	return nil
}
