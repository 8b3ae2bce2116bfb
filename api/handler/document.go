package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"legal-analyzer/api/middleware"
	"legal-analyzer/api/response"
	"legal-analyzer/pkg/logger"
	"legal-analyzer/service"
	"legal-analyzer/types"
)

type DocumentHandler struct {
	uploader Uploader
	viewer   Viewer
	links    Presigner
	logger   *zap.Logger
}

// NewDocumentHandler wires the /api/v1 routes. links may be nil when no
// object storage is configured.
func NewDocumentHandler(uploader Uploader, viewer Viewer, links Presigner, log *zap.Logger) *DocumentHandler {
	return &DocumentHandler{uploader: uploader, viewer: viewer, links: links, logger: nopIfNil(log).Named("handler")}
}

func (h *DocumentHandler) fail(c *gin.Context, err error, data ...any) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		logger.WithContext(c.Request.Context(), h.logger).Error("request failed",
			zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	response.Fail(c, status, err.Error(), data...)
}

// Upload accepts a multipart "file" and an optional "content" override, and
// returns the document with its analysis.
func (h *DocumentHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "no file received, the form field must be named 'file'")
		return
	}
	f, err := header.Open()
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "failed to read uploaded file")
		return
	}
	defer f.Close()

	res, err := h.uploader.Upload(c.Request.Context(), service.UploadInput{
		Owner:       middleware.GetOwner(c),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        f,
		Content:     c.PostForm("content"),
	})
	if err != nil {
		if res != nil {
			h.fail(c, err, res)
			return
		}
		h.fail(c, err)
		return
	}
	response.Success(c, res)
}

type listQuery struct {
	Limit  int `form:"limit"`
	Offset int `form:"offset" binding:"min=0"`
}

func (h *DocumentHandler) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Fail(c, http.StatusBadRequest, "invalid paging parameters: "+err.Error())
		return
	}
	docs, err := h.viewer.ListDocuments(c.Request.Context(), middleware.GetOwner(c), q.Limit, q.Offset)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"documents": docs, "count": len(docs)})
}

type documentView struct {
	*types.Document
	DownloadURL string `json:"download_url,omitempty"`
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.viewer.GetDocument(c.Request.Context(), middleware.GetOwner(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	view := documentView{Document: doc}
	if h.links != nil && doc.StoragePath != "" {
		link, err := h.links.PresignedURL(c.Request.Context(), doc.StoragePath, doc.Filename)
		if err != nil {
			logger.WithContext(c.Request.Context(), h.logger).Warn("failed to presign download", zap.Error(err))
		}
		view.DownloadURL = link
	}
	response.Success(c, view)
}

// Analysis returns the latest analysis of a document.
func (h *DocumentHandler) Analysis(c *gin.Context) {
	da, err := h.viewer.GetDocumentAnalysis(c.Request.Context(), middleware.GetOwner(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, da)
}

func (h *DocumentHandler) GetAnalysis(c *gin.Context) {
	a, err := h.viewer.GetAnalysis(c.Request.Context(), middleware.GetOwner(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, a)
}

func (h *DocumentHandler) Search(c *gin.Context) {
	var q types.ClauseQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Fail(c, http.StatusBadRequest, "query parameter q is required")
		return
	}
	hits, err := h.viewer.SearchClauses(c.Request.Context(), middleware.GetOwner(c), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"hits": hits, "count": len(hits)})
}
