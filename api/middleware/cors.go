package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AllowedHeaders are the request headers browser clients of the analysis
// endpoint send.
const AllowedHeaders = "authorization, x-client-info, apikey, content-type"

// CORS allows any origin and answers preflight requests with 204.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", AllowedHeaders)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Expose-Headers", RequestIDHeader)
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
