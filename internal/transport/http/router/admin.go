package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"loan-ledger/internal/core/auth"
	"loan-ledger/internal/core/server"
	"loan-ledger/internal/transport/http/handler"
	mdw "loan-ledger/internal/transport/http/middleware"
)

// NewAdminEngine 管理端：目录维护、用户管理、代借、指标
func NewAdminEngine(d Deps) *gin.Engine {
	r := server.NewRouter(d.Log, server.Options{
		Name:        "admin",
		Mode:        ginMode(d.Config.App.Env),
		CORSOrigins: d.Config.App.HTTP.CORSOrigins,
	})
	r.Use(baseMiddlewares(d, "admin", false)...)

	// 健康检查 / 指标
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	public := r.Group("/admin/v1")
	handler.NewAuthHandler(d.Config.Admin, d.JWT).MountPublic(public)

	// 管理端 v1（统一要求 admin 角色）
	admin := r.Group("/admin/v1")
	admin.Use(mdw.AuthJWT(d.JWT, auth.RoleAdmin))

	MountAllAdmin(admin,
		handler.NewCatalogueHandler(d.Catalogue),
		handler.NewUserHandler(d.Users, d.JWT),
		handler.NewLoanHandler(d.Loans, d.Config.Ledger.Location()),
	)
	return r
}
