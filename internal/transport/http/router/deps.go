package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"loan-ledger/internal/core/auth"
	"loan-ledger/internal/core/config"
	"loan-ledger/internal/service"
	mdw "loan-ledger/internal/transport/http/middleware"
)

// Deps 两个 engine 共用的依赖
type Deps struct {
	Log       *zap.Logger
	Config    *config.Config
	JWT       *auth.JWTer
	Catalogue *service.CatalogueService
	Users     *service.UserService
	Loans     *service.LoanService
}

// baseMiddlewares 公共中间件链。
// 借用人端按客户端 IP 限流，管理端只有少量调用方，用全局限流。
func baseMiddlewares(d Deps, server string, perIP bool) []gin.HandlerFunc {
	h := d.Config.App.HTTP
	timeout := h.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limiter := mdw.RateLimit(rate.Limit(h.RateLimitRPS), h.RateLimitBurst)
	if perIP {
		limiter = mdw.RateLimitPerIP(rate.Limit(h.RateLimitRPS), h.RateLimitBurst, 10*time.Minute)
	}
	return []gin.HandlerFunc{
		mdw.RequestID(),
		mdw.Recovery(d.Log),
		mdw.AccessLog(d.Log.Named("access")),
		mdw.Metrics(server),
		limiter,
		mdw.ConcurrencyLimit(max(1, h.MaxInFlight)),
		mdw.MaxBodyBytes(1 << 20),
		mdw.Timeout(timeout),
	}
}
