package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"legal-analyzer/api/response"
	"legal-analyzer/pkg/logger"
	"legal-analyzer/service"
	"legal-analyzer/storage/postgres"
	"legal-analyzer/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAnalyzer struct {
	got types.AnalyzeRequest
	out *types.Analysis
	err error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req types.AnalyzeRequest) (*types.Analysis, error) {
	f.got = req
	return f.out, f.err
}

type fakeUploader struct {
	got  service.UploadInput
	body string
	res  *service.UploadResult
	err  error
}

func (f *fakeUploader) Upload(_ context.Context, in service.UploadInput) (*service.UploadResult, error) {
	data, _ := io.ReadAll(in.Body)
	f.got, f.body = in, string(data)
	return f.res, f.err
}

type fakeViewer struct {
	docs     map[string]*types.Document
	analysis *types.Analysis
	hits     []types.ClauseHit
	err      error
	owner    string
	limit    int
	query    types.ClauseQuery
}

func (f *fakeViewer) GetDocument(_ context.Context, owner, id string) (*types.Document, error) {
	f.owner = owner
	if d, ok := f.docs[id]; ok {
		return d, nil
	}
	return nil, postgres.ErrDocumentNotFound
}

func (f *fakeViewer) ListDocuments(_ context.Context, owner string, limit, _ int) ([]*types.Document, error) {
	f.owner, f.limit = owner, limit
	out := make([]*types.Document, 0, len(f.docs))
	for _, d := range f.docs {
		out = append(out, d)
	}
	return out, f.err
}

func (f *fakeViewer) GetAnalysis(_ context.Context, _, id string) (*types.Analysis, error) {
	if f.analysis != nil && f.analysis.ID == id {
		return f.analysis, nil
	}
	return nil, postgres.ErrAnalysisNotFound
}

func (f *fakeViewer) GetDocumentAnalysis(ctx context.Context, owner, id string) (*service.DocumentAnalysis, error) {
	d, err := f.GetDocument(ctx, owner, id)
	if err != nil {
		return nil, err
	}
	if f.analysis == nil {
		return nil, postgres.ErrAnalysisNotFound
	}
	return &service.DocumentAnalysis{Document: d, Analysis: f.analysis}, nil
}

func (f *fakeViewer) SearchClauses(_ context.Context, _ string, q types.ClauseQuery) ([]types.ClauseHit, error) {
	f.query = q
	return f.hits, f.err
}

type fakePresigner struct{}

func (fakePresigner) PresignedURL(_ context.Context, key, filename string) (string, error) {
	return "https://objects.example/" + key + "?name=" + filename, nil
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, data any) response.Response {
	t.Helper()
	var env struct {
		response.Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if data != nil && len(env.Data) > 0 {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env.Response
}

func analyzeEngine(a Analyzer) *gin.Engine {
	r := gin.New()
	h := NewAnalyzeHandler(a, nil)
	r.OPTIONS("/functions/v1/analyze-document", Preflight)
	r.POST("/functions/v1/analyze-document", h.Analyze)
	return r
}

func TestAnalyzeEndpoint(t *testing.T) {
	a := &fakeAnalyzer{out: &types.Analysis{ID: "a-1", DocumentID: "doc-1", SimplifiedSummary: "ok"}}
	r := analyzeEngine(a)

	body := `{"documentId":"doc-1","content":"Employee shall not compete for 1 year","action":"generate_summary"}`
	w := do(r, httptest.NewRequest(http.MethodPost, "/functions/v1/analyze-document", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)

	var got struct {
		Success  bool           `json:"success"`
		Analysis types.Analysis `json:"analysis"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.True(t, got.Success)
	assert.Equal(t, "a-1", got.Analysis.ID)
	assert.Equal(t, types.ActionGenerateSummary, a.got.Action)
	assert.Equal(t, "doc-1", a.got.DocumentID)
}

func TestAnalyzeEndpointPassesCallerAsOwner(t *testing.T) {
	a := &fakeAnalyzer{out: &types.Analysis{ID: "a-1"}}
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(string(logger.OwnerKey), "alice") })
	r.POST("/functions/v1/analyze-document", NewAnalyzeHandler(a, nil).Analyze)

	body := `{"documentId":"doc-1","content":"x","Owner":"bob","owner":"bob"}`
	w := do(r, httptest.NewRequest(http.MethodPost, "/functions/v1/analyze-document", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", a.got.Owner, "owner comes from auth, never from the body")
}

func TestAnalyzeEndpointErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
	}{
		{"empty body", "", nil, http.StatusBadRequest},
		{"malformed json", "{not json", nil, http.StatusBadRequest},
		{"missing document id", `{"content":"x"}`, nil, http.StatusBadRequest},
		{"validation", `{"documentId":"doc-1"}`, service.ErrContentRequired, http.StatusBadRequest},
		{"pipeline failure", `{"documentId":"doc-1","content":"x"}`, errors.New("invalid AI response format"), http.StatusInternalServerError},
		{"missing document", `{"documentId":"doc-1","content":"x"}`, postgres.ErrDocumentNotFound, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := analyzeEngine(&fakeAnalyzer{err: tt.err})
			w := do(r, httptest.NewRequest(http.MethodPost, "/functions/v1/analyze-document", strings.NewReader(tt.body)))
			assert.Equal(t, tt.wantCode, w.Code)

			var got map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			assert.NotEmpty(t, got["error"])
			assert.NotContains(t, got, "success")
		})
	}
}

func TestPreflight(t *testing.T) {
	w := do(analyzeEngine(&fakeAnalyzer{}), httptest.NewRequest(http.MethodOptions, "/functions/v1/analyze-document", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func documentEngine(u Uploader, v Viewer, p Presigner) *gin.Engine {
	r := gin.New()
	h := NewDocumentHandler(u, v, p, nil)
	r.POST("/documents", h.Upload)
	r.GET("/documents", h.List)
	r.GET("/documents/:id", h.Get)
	r.GET("/documents/:id/analysis", h.Analysis)
	r.GET("/analyses/:id", h.GetAnalysis)
	r.GET("/clauses/search", h.Search)
	return r
}

func multipartRequest(t *testing.T, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadEndpoint(t *testing.T) {
	u := &fakeUploader{res: &service.UploadResult{
		Document: &types.Document{ID: "doc-1", ProcessingStatus: types.StatusCompleted},
		Analysis: &types.Analysis{ID: "a-1", DocumentID: "doc-1"},
	}}
	r := documentEngine(u, &fakeViewer{}, nil)

	w := do(r, multipartRequest(t, "lease.txt", "The tenant shall pay rent.", map[string]string{"content": "override"}))
	require.Equal(t, http.StatusOK, w.Code)

	var res service.UploadResult
	env := decodeEnvelope(t, w, &res)
	assert.Equal(t, response.CodeOK, env.Code)
	assert.Equal(t, "doc-1", res.Document.ID)
	assert.Equal(t, "a-1", res.Analysis.ID)

	assert.Equal(t, "lease.txt", u.got.Filename)
	assert.Equal(t, "override", u.got.Content)
	assert.Equal(t, "The tenant shall pay rent.", u.body)
}

func TestUploadEndpointErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		r := documentEngine(&fakeUploader{}, &fakeViewer{}, nil)
		w := do(r, multipartRequest(t, "", "", map[string]string{"content": "x"}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, response.CodeFail, decodeEnvelope(t, w, nil).Code)
	})

	t.Run("rejected file", func(t *testing.T) {
		u := &fakeUploader{err: fmt.Errorf("%w: %q", service.ErrUnsupportedFileType, ".png")}
		w := do(documentEngine(u, &fakeViewer{}, nil), multipartRequest(t, "photo.png", "x", nil))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("analysis failure keeps document", func(t *testing.T) {
		u := &fakeUploader{
			res: &service.UploadResult{Document: &types.Document{ID: "doc-1", ProcessingStatus: types.StatusFailed}},
			err: errors.New("analyze document doc-1: invalid AI response format"),
		}
		w := do(documentEngine(u, &fakeViewer{}, nil), multipartRequest(t, "lease.txt", "x", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)

		var res service.UploadResult
		env := decodeEnvelope(t, w, &res)
		assert.Contains(t, env.Msg, "doc-1")
		require.NotNil(t, res.Document)
		assert.Equal(t, types.StatusFailed, res.Document.ProcessingStatus)
	})
}

func TestDocumentRoutes(t *testing.T) {
	v := &fakeViewer{
		docs: map[string]*types.Document{
			"doc-1": {ID: "doc-1", Filename: "lease.pdf", StoragePath: "user-1/doc-1/lease.pdf"},
		},
		analysis: &types.Analysis{ID: "a-1", DocumentID: "doc-1"},
	}
	r := documentEngine(&fakeUploader{}, v, fakePresigner{})

	w := do(r, httptest.NewRequest(http.MethodGet, "/documents?limit=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, v.limit)

	w = do(r, httptest.NewRequest(http.MethodGet, "/documents/doc-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var doc struct {
		ID          string `json:"id"`
		DownloadURL string `json:"download_url"`
	}
	decodeEnvelope(t, w, &doc)
	assert.Equal(t, "doc-1", doc.ID)
	assert.Equal(t, "https://objects.example/user-1/doc-1/lease.pdf?name=lease.pdf", doc.DownloadURL)

	w = do(r, httptest.NewRequest(http.MethodGet, "/documents/doc-1/analysis", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, httptest.NewRequest(http.MethodGet, "/analyses/a-1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	for _, path := range []string{"/documents/nope", "/documents/nope/analysis", "/analyses/nope"} {
		w = do(r, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, w.Code, path)
		assert.Equal(t, response.CodeFail, decodeEnvelope(t, w, nil).Code)
	}

	w = do(r, httptest.NewRequest(http.MethodGet, "/documents?offset=-1", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchRoute(t *testing.T) {
	v := &fakeViewer{hits: []types.ClauseHit{{DocumentID: "doc-1", Content: "non-compete", Risk: types.RiskHigh}}}
	r := documentEngine(&fakeUploader{}, v, nil)

	w := do(r, httptest.NewRequest(http.MethodGet, "/clauses/search?q=compete&risk=high&size=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "compete", v.query.Query)
	assert.Equal(t, types.RiskHigh, v.query.Risk)
	assert.Equal(t, 5, v.query.Size)

	w = do(r, httptest.NewRequest(http.MethodGet, "/clauses/search", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	v.err = service.ErrSearchDisabled
	w = do(r, httptest.NewRequest(http.MethodGet, "/clauses/search?q=compete", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealth(t *testing.T) {
	r := gin.New()
	r.GET("/ok", Health(map[string]Check{"db": func(context.Context) error { return nil }}))
	r.GET("/bad", Health(map[string]Check{"db": func(context.Context) error { return errors.New("down") }}))

	assert.Equal(t, http.StatusOK, do(r, httptest.NewRequest(http.MethodGet, "/ok", nil)).Code)
	w := do(r, httptest.NewRequest(http.MethodGet, "/bad", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "down")
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrFileTooLarge, http.StatusBadRequest},
		{fmt.Errorf("get: %w", postgres.ErrDocumentNotFound), http.StatusNotFound},
		{postgres.ErrAnalysisNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: completed -> processing", postgres.ErrInvalidTransition), http.StatusConflict},
		{service.ErrSearchDisabled, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}
