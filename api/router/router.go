package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"legal-analyzer/api/handler"
	"legal-analyzer/api/middleware"
)

// Options configures the cross-cutting middleware.
type Options struct {
	Auth middleware.AuthConfig
	// RateLimit is requests per second per client IP; zero disables it.
	RateLimit float64
	Burst     int
	Checks    map[string]handler.Check
}

// New builds the engine with middleware and every route registered.
func New(log *zap.Logger, opts Options, analyzeH *handler.AnalyzeHandler, documentH *handler.DocumentHandler) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery(log), middleware.RequestLogger(log))
	r.GET("/health", handler.Health(opts.Checks))

	limited := []gin.HandlerFunc{middleware.CORS()}
	if opts.RateLimit > 0 {
		limited = append(limited, middleware.RateLimit(middleware.NewRateLimiter(opts.RateLimit, opts.Burst), log))
	}
	limited = append(limited, middleware.Auth(opts.Auth))

	RegisterRoutes(r.Group("", limited...), analyzeH, documentH)
	return r
}

func RegisterRoutes(r *gin.RouterGroup, analyzeH *handler.AnalyzeHandler, documentH *handler.DocumentHandler) {
	fn := r.Group("/functions/v1")
	{
		fn.OPTIONS("/analyze-document", handler.Preflight)
		fn.POST("/analyze-document", analyzeH.Analyze)
	}

	api := r.Group("/api/v1")
	{
		api.OPTIONS("/*path", handler.Preflight)
		documents := api.Group("/documents")
		{
			documents.POST("", documentH.Upload)
			documents.GET("", documentH.List)
			documents.GET("/:id", documentH.Get)
			documents.GET("/:id/analysis", documentH.Analysis)
		}
		api.GET("/analyses/:id", documentH.GetAnalysis)
		api.GET("/clauses/search", documentH.Search)
	}
}
