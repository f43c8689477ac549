package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"loan-ledger/internal/core/auth"
	"loan-ledger/internal/transport/http/ez"
	resp "loan-ledger/internal/transport/http/response"
)

const (
	CtxClaims  = "claims"
	CtxSubject = "subject"
)

// AuthJWT 校验 Bearer token；roles 非空时要求角色在其中
func AuthJWT(j *auth.JWTer, roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ah := c.GetHeader("Authorization")
		if !strings.HasPrefix(ah, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "missing token"))
			return
		}
		claims, err := j.Parse(strings.TrimPrefix(ah, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "invalid token"))
			return
		}
		if len(roles) > 0 && !contains(roles, claims.Role) {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeForbidden, "forbidden"))
			return
		}
		c.Set(CtxClaims, claims)
		c.Set(CtxSubject, claims.Subject)
		c.Set(ez.CtxRole, claims.Role)
		c.Next()
	}
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
