// Package ez 把 gin handler 收敛成 (入参) -> (出参, error) 的动作，统一绑定和错误映射。
package ez

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"loan-ledger/internal/domain"
	resp "loan-ledger/internal/transport/http/response"
)

type EZ struct{ g *gin.RouterGroup }

func New(g *gin.RouterGroup) EZ { return EZ{g: g} }

// 绑定方式
type Binder string

const (
	BindJSON  Binder = "json"  // 从 JSON 绑定
	BindQuery Binder = "query" // 从 URL ?a=b 绑定
	BindNone  Binder = "none"  // 不绑定，自己从 c.Param 取
)

// AErr 统一错误对象（配合 resp.Error(int, msg)）
type AErr struct {
	Code int
	Msg  string
	Data any
	Err  error
}

func (e *AErr) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "action error"
}

func (e *AErr) Unwrap() error { return e.Err }

func BadRequest(msg string) error   { return &AErr{Code: resp.CodeBadRequest, Msg: msg} }
func Unauthorized(msg string) error { return &AErr{Code: resp.CodeUnauthorized, Msg: msg} }
func Forbidden(msg string) error    { return &AErr{Code: resp.CodeForbidden, Msg: msg} }
func NotFound(msg string) error     { return &AErr{Code: resp.CodeNotFound, Msg: msg} }
func Internal(msg string, err error) error {
	return &AErr{Code: resp.CodeServerError, Msg: msg, Err: err}
}

// 动作定义：I 入参，O 出参
type Action[I any, O any] struct {
	Method  string   // "GET" | "POST" | "PUT" | "DELETE"
	Path    string   // 例："/loans"、"/categories/:id/move"
	Binder  Binder   // 绑定方式
	Roles   []string // 限定角色（可选），依赖 AuthJWT 写入的 role
	Handler func(c *gin.Context, in *I) (O, error)
}

// CtxRole AuthJWT 写入 gin.Context 的角色 key
const CtxRole = "role"

func RegisterAction[I any, O any](e EZ, a Action[I, O]) {
	h := func(c *gin.Context) {
		// 1) 角色
		if len(a.Roles) > 0 {
			role := c.GetString(CtxRole)
			ok := false
			for _, r := range a.Roles {
				if role == r {
					ok = true
					break
				}
			}
			if !ok {
				c.JSON(http.StatusOK, resp.Error(resp.CodeForbidden, "forbidden"))
				return
			}
		}

		// 2) 绑定入参
		var in I
		var bindErr error
		switch a.Binder {
		case BindJSON:
			bindErr = c.ShouldBindJSON(&in)
		case BindQuery:
			bindErr = c.ShouldBindQuery(&in)
		default: // BindNone: 不绑定
		}
		if bindErr != nil {
			c.JSON(http.StatusOK, resp.Error(resp.CodeBadRequest, bindErr.Error()))
			return
		}

		// 3) 执行 + 统一错误映射
		out, err := a.Handler(c, &in)
		if err != nil {
			code, msg, data := Classify(err)
			if code >= resp.CodeServerError {
				_ = c.Error(err)
			}
			c.JSON(http.StatusOK, resp.ErrorWith(code, msg, data))
			return
		}
		c.JSON(http.StatusOK, resp.OK(out))
	}

	switch strings.ToUpper(a.Method) {
	case http.MethodGet:
		e.g.GET(a.Path, h)
	case http.MethodPut:
		e.g.PUT(a.Path, h)
	case http.MethodDelete:
		e.g.DELETE(a.Path, h)
	default: // 默认 POST
		e.g.POST(a.Path, h)
	}
}

// Classify 把 AErr 和 domain 错误映射成响应码；未知错误不回显细节
func Classify(err error) (code int, msg string, data any) {
	var ae *AErr
	if errors.As(err, &ae) {
		return ae.Code, ae.Error(), ae.Data
	}
	var lc *domain.LoanConflictError
	if errors.As(err, &lc) {
		return resp.CodeConflict, lc.Error(), gin.H{
			"instanceId": lc.InstanceID,
			"loanId":     lc.LoanID,
			"userId":     lc.UserID,
			"userName":   lc.UserName,
			"dateStart":  lc.Start,
			"dateEnd":    lc.End,
		}
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return resp.CodeNotFound, err.Error(), nil
	case errors.Is(err, domain.ErrConflict):
		return resp.CodeConflict, err.Error(), nil
	case errors.Is(err, domain.ErrValidation):
		return resp.CodeUnprocessable, err.Error(), nil
	}
	return resp.CodeServerError, "internal error", nil
}
