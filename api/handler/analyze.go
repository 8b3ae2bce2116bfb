package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"legal-analyzer/api/middleware"
	"legal-analyzer/pkg/logger"
	"legal-analyzer/service"
	"legal-analyzer/types"
)

// AnalyzeHandler serves the analyze-document function endpoint. Its replies
// use the function's own shape rather than the /api/v1 envelope.
type AnalyzeHandler struct {
	analyzer Analyzer
	logger   *zap.Logger
}

func NewAnalyzeHandler(analyzer Analyzer, log *zap.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{analyzer: analyzer, logger: nopIfNil(log).Named("handler")}
}

type analyzeResponse struct {
	Success  bool            `json:"success"`
	Analysis *types.Analysis `json:"analysis"`
}

// Analyze handles POST {documentId, content, action?}.
func (h *AnalyzeHandler) Analyze(c *gin.Context) {
	var req types.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		msg := err.Error()
		if errors.Is(err, io.EOF) {
			msg = "request body is required"
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}

	req.Owner = middleware.GetOwner(c)

	analysis, err := h.analyzer.Analyze(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		if service.IsBadRequest(err) {
			status = http.StatusBadRequest
		}
		logger.WithContext(c.Request.Context(), h.logger).Error("analyze-document failed",
			zap.String("document_id", req.DocumentID), zap.Error(err))
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, analyzeResponse{Success: true, Analysis: analysis})
}

// Preflight answers OPTIONS; the CORS middleware has already set the headers.
func Preflight(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
