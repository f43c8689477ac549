package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"loan-ledger/internal/core/auth"
	"loan-ledger/internal/domain"
	"loan-ledger/internal/service"
	"loan-ledger/internal/transport/http/ez"
	mdw "loan-ledger/internal/transport/http/middleware"
)

type UserHandler struct {
	svc   *service.UserService
	jwter *auth.JWTer
}

func NewUserHandler(svc *service.UserService, jwter *auth.JWTer) *UserHandler {
	return &UserHandler{svc: svc, jwter: jwter}
}

func (h *UserHandler) Priority() int { return 20 }

type addUserIn struct {
	Name string `json:"name" binding:"required,max=191"`
}

type tokenOut struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *UserHandler) MountAPI(g *gin.RouterGroup) {
	ez.RegisterAction(ez.New(g), ez.Action[struct{}, domain.User]{
		Method: http.MethodGet,
		Path:   "/me",
		Binder: ez.BindNone,
		Roles:  []string{auth.RoleBorrower},
		Handler: func(c *gin.Context, _ *struct{}) (domain.User, error) {
			u, ok := mdw.BorrowerFrom(c)
			if !ok {
				return domain.User{}, ez.Unauthorized("unauthorized")
			}
			return u, nil
		},
	})
}

func (h *UserHandler) MountAdmin(g *gin.RouterGroup) {
	e := ez.New(g)

	ez.RegisterAction(e, ez.Action[addUserIn, *domain.User]{
		Method: http.MethodPost,
		Path:   "/users",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *addUserIn) (*domain.User, error) {
			return h.svc.AddUser(c.Request.Context(), in.Name)
		},
	})

	type listQ struct {
		Name string `form:"name"` // 精确匹配，返回最早创建的那个
	}
	ez.RegisterAction(e, ez.Action[listQ, []domain.User]{
		Method: http.MethodGet,
		Path:   "/users",
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *listQ) ([]domain.User, error) {
			if in.Name != "" {
				u, err := h.svc.GetUserByName(c.Request.Context(), in.Name)
				if err != nil || u == nil {
					return []domain.User{}, err
				}
				return []domain.User{*u}, nil
			}
			return h.svc.ListUsers(c.Request.Context())
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, *domain.User]{
		Method: http.MethodGet,
		Path:   "/users/:id",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.User, error) {
			id, err := pathID(c, "id")
			if err != nil {
				return nil, err
			}
			u, err := h.svc.GetUser(c.Request.Context(), id)
			if err != nil {
				return nil, err
			}
			if u == nil {
				return nil, ez.NotFound("user not found")
			}
			return u, nil
		},
	})

	ez.RegisterAction(e, ez.Action[struct{}, removedOut]{
		Method: http.MethodDelete,
		Path:   "/users/:id",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (removedOut, error) {
			id, err := pathID(c, "id")
			if err != nil {
				return removedOut{}, err
			}
			return removedOut{ID: id}, h.svc.RemoveUser(c.Request.Context(), id)
		},
	})

	// 管理员替借用人签发 token
	ez.RegisterAction(e, ez.Action[struct{}, tokenOut]{
		Method: http.MethodPost,
		Path:   "/users/:id/token",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (tokenOut, error) {
			id, err := pathID(c, "id")
			if err != nil {
				return tokenOut{}, err
			}
			u, err := h.svc.GetUser(c.Request.Context(), id)
			if err != nil {
				return tokenOut{}, err
			}
			if u == nil {
				return tokenOut{}, ez.NotFound("user not found")
			}
			tok, exp, err := h.jwter.Issue(u.ID.String(), auth.RoleBorrower)
			if err != nil {
				return tokenOut{}, ez.Internal("issue token failed", err)
			}
			return tokenOut{Token: tok, ExpiresAt: exp}, nil
		},
	})
}
