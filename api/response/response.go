package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	CodeOK   = 0
	CodeFail = -1
)

// Response is the envelope of every /api/v1 reply.
type Response struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data,omitempty"`
}

func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code: CodeOK,
		Msg:  "success",
		Data: data,
	})
}

// Fail reports a failure with the given HTTP status. data is optional and
// carries partial results, such as a document whose analysis failed.
func Fail(c *gin.Context, status int, msg string, data ...any) {
	resp := Response{Code: CodeFail, Msg: msg}
	if len(data) > 0 {
		resp.Data = data[0]
	}
	c.AbortWithStatusJSON(status, resp)
}
