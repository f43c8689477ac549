package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"loan-ledger/internal/core/auth"
	"loan-ledger/internal/core/config"
	"loan-ledger/internal/transport/http/ez"
	"loan-ledger/pkg/utils"
)

// AuthHandler 管理端登录，账号来自配置
type AuthHandler struct {
	admin config.Admin
	jwter *auth.JWTer
}

func NewAuthHandler(admin config.Admin, jwter *auth.JWTer) *AuthHandler {
	return &AuthHandler{admin: admin, jwter: jwter}
}

type adminLoginIn struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// MountPublic 挂在无需鉴权的分组上
func (h *AuthHandler) MountPublic(g *gin.RouterGroup) {
	ez.RegisterAction(ez.New(g), ez.Action[adminLoginIn, tokenOut]{
		Method: http.MethodPost,
		Path:   "/auth/token",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *adminLoginIn) (tokenOut, error) {
			userOK := subtle.ConstantTimeCompare([]byte(in.Username), []byte(h.admin.Username)) == 1
			// 用户名和密码都校验完再判断，不提前返回
			passOK := utils.CheckPassword(in.Password, h.admin.PasswordHash)
			if !userOK || !passOK {
				return tokenOut{}, ez.Unauthorized("invalid credentials")
			}
			tok, exp, err := h.jwter.Issue(h.admin.Username, auth.RoleAdmin)
			if err != nil {
				return tokenOut{}, ez.Internal("issue token failed", err)
			}
			return tokenOut{Token: tok, ExpiresAt: exp}, nil
		},
	})
}
