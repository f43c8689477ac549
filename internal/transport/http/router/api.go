package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"loan-ledger/internal/core/auth"
	"loan-ledger/internal/core/server"
	"loan-ledger/internal/transport/http/handler"
	mdw "loan-ledger/internal/transport/http/middleware"
)

// NewAPIEngine 借用人接口：只读目录 + 借用查询/申请
func NewAPIEngine(d Deps) *gin.Engine {
	r := server.NewRouter(d.Log, server.Options{
		Name:        "api",
		Mode:        ginMode(d.Config.App.Env),
		CORSOrigins: d.Config.App.HTTP.CORSOrigins,
	})
	r.Use(baseMiddlewares(d, "api", true)...)

	// 健康检查
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1}) })

	api := r.Group("/api/v1")
	api.Use(mdw.AuthJWT(d.JWT, auth.RoleBorrower, auth.RoleAdmin), mdw.Borrower(d.Users))

	MountAllAPI(api,
		handler.NewCatalogueHandler(d.Catalogue),
		handler.NewUserHandler(d.Users, d.JWT),
		handler.NewLoanHandler(d.Loans, d.Config.Ledger.Location()),
	)
	return r
}

func ginMode(env string) string {
	switch env {
	case "prod", "production":
		return gin.ReleaseMode
	case "test":
		return gin.TestMode
	}
	return gin.DebugMode
}
