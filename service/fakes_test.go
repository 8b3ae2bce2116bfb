package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"legal-analyzer/storage/postgres"
	"legal-analyzer/types"
)

// memGateway is an in-memory Gateway and Reader that enforces the same status
// transitions as the database repository.
type memGateway struct {
	mu        sync.Mutex
	docs      map[string]*types.Document
	history   map[string][]types.DocumentStatus
	analyses  []*types.Analysis
	inserts   int
	updates   int
	insertErr error
}

func newMemGateway() *memGateway {
	return &memGateway{
		docs:    map[string]*types.Document{},
		history: map[string][]types.DocumentStatus{},
	}
}

func (g *memGateway) CreateDocument(_ context.Context, d *types.Document) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.ProcessingStatus == "" {
		d.ProcessingStatus = types.StatusPending
	}
	d.CreatedAt = time.Now()
	cp := *d
	g.docs[d.ID] = &cp
	g.history[d.ID] = []types.DocumentStatus{d.ProcessingStatus}
	return nil
}

func (g *memGateway) addDocument(id, owner string) {
	_ = g.CreateDocument(context.Background(), &types.Document{ID: id, Owner: owner, Filename: id + ".txt"})
}

func (g *memGateway) status(id string) types.DocumentStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.docs[id].ProcessingStatus
}

func (g *memGateway) statusHistory(id string) []types.DocumentStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]types.DocumentStatus(nil), g.history[id]...)
}

func (g *memGateway) GetDocument(_ context.Context, id string) (*types.Document, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.docs[id]
	if !ok {
		return nil, postgres.ErrDocumentNotFound
	}
	cp := *d
	return &cp, nil
}

func (g *memGateway) ListDocumentsByOwner(_ context.Context, owner string, limit, offset int) ([]*types.Document, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*types.Document
	for _, d := range g.docs {
		if d.Owner == owner {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (g *memGateway) UpdateDocumentStatus(_ context.Context, id string, status types.DocumentStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.docs[id]
	if !ok {
		return postgres.ErrDocumentNotFound
	}
	if !types.CanTransition(d.ProcessingStatus, status) {
		return fmt.Errorf("%w: %s -> %s", postgres.ErrInvalidTransition, d.ProcessingStatus, status)
	}
	if d.ProcessingStatus != status {
		g.history[id] = append(g.history[id], status)
	}
	d.ProcessingStatus = status
	return nil
}

func (g *memGateway) InsertAnalysis(_ context.Context, a *types.Analysis) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.insertErr != nil {
		return g.insertErr
	}
	a.ID = uuid.NewString()
	a.CreatedAt = time.Now()
	cp := *a
	g.analyses = append(g.analyses, &cp)
	g.inserts++
	return nil
}

func (g *memGateway) UpdateAnalysisByDocument(_ context.Context, documentID string, upd types.AnalysisUpdate) (*types.Analysis, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var last *types.Analysis
	for _, a := range g.analyses {
		if a.DocumentID != documentID {
			continue
		}
		if upd.SimplifiedSummary != nil {
			a.SimplifiedSummary = *upd.SimplifiedSummary
		}
		if upd.SummaryDetails != nil {
			a.SummaryDetails = upd.SummaryDetails
		}
		last = a
	}
	if last == nil {
		return nil, postgres.ErrAnalysisNotFound
	}
	g.updates++
	cp := *last
	return &cp, nil
}

func (g *memGateway) GetAnalysis(_ context.Context, id string) (*types.Analysis, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, a := range g.analyses {
		if a.ID == id {
			cp := *a
			return &cp, nil
		}
	}
	return nil, postgres.ErrAnalysisNotFound
}

func (g *memGateway) GetAnalysisByDocument(_ context.Context, documentID string) (*types.Analysis, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := len(g.analyses) - 1; i >= 0; i-- {
		if g.analyses[i].DocumentID == documentID {
			cp := *g.analyses[i]
			return &cp, nil
		}
	}
	return nil, postgres.ErrAnalysisNotFound
}

func (g *memGateway) analysesFor(documentID string) []*types.Analysis {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*types.Analysis
	for _, a := range g.analyses {
		if a.DocumentID == documentID {
			out = append(out, a)
		}
	}
	return out
}

// stubModel answers Generate with canned replies, in order.
type stubModel struct {
	mu      sync.Mutex
	replies []string
	err     error
	calls   int
	inputs  [][]*schema.Message
}

var _ model.BaseChatModel = (*stubModel)(nil)

func (m *stubModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.inputs = append(m.inputs, input)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.replies) == 0 {
		return nil, fmt.Errorf("stub model: no reply left")
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return schema.AssistantMessage(reply, nil), nil
}

func (m *stubModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

type recordingIndexer struct {
	mu      sync.Mutex
	indexed []*types.Analysis
	err     error
}

func (r *recordingIndexer) IndexAnalysis(_ context.Context, a *types.Analysis) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, a)
	return r.err
}
