package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	resp "loan-ledger/internal/transport/http/response"
)

// MaxBodyBytes 声明长度超限直接拒绝；未声明长度的按读取量截断，超出时绑定报错
func MaxBodyBytes(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > n {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeTooLarge, "request body too large"))
			return
		}
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		}
		c.Next()
	}
}
