package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"loan-ledger/internal/core/auth"
	"loan-ledger/internal/domain"
	"loan-ledger/internal/transport/http/ez"
	resp "loan-ledger/internal/transport/http/response"
)

const CtxBorrower = "borrower"

type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// Borrower 借用人 token 的 subject 必须仍是现存用户；管理员 token 直接放行
func Borrower(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ez.CtxRole) == auth.RoleAdmin {
			c.Next()
			return
		}
		id, err := uuid.Parse(c.GetString(CtxSubject))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "invalid subject"))
			return
		}
		u, err := users.GetUser(c.Request.Context(), id)
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeServerError, "lookup user failed"))
			return
		}
		if u == nil {
			c.AbortWithStatusJSON(http.StatusOK, resp.Error(resp.CodeUnauthorized, "user no longer exists"))
			return
		}
		c.Set(CtxBorrower, *u)
		c.Next()
	}
}

// BorrowerFrom 取 Borrower 中间件放进去的用户
func BorrowerFrom(c *gin.Context) (domain.User, bool) {
	v, ok := c.Get(CtxBorrower)
	if !ok {
		return domain.User{}, false
	}
	u, ok := v.(domain.User)
	return u, ok
}
