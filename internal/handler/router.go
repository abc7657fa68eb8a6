package handler

import (
	"log/slog"
	"net/http"

	"campuspay/internal/config"
	"campuspay/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter 配置路由
func SetupRouter(svc *service.Services, cfg *config.Config, logger *slog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware(logger))
	r.Use(LoggerMiddleware(logger))
	r.Use(CORSMiddleware())

	h := NewHandler(svc, logger)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.Use(AuthMiddleware([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer))
	{
		// 商户端，管理员也可以代操作
		store := api.Group("/store", RequireRole(RoleStore, RoleAdmin))
		{
			store.POST("/transaction", h.Charge)
			store.GET("/transactions/:no", h.GetTransaction)
			store.GET("/student/:id", h.ScanStudent)
			store.GET("/stores/:storeId/settlement", h.GetAvailableSettlement)
			store.POST("/stores/:storeId/settlements", h.RequestSettlement)
		}

		admin := api.Group("/admin", RequireRole(RoleAdmin))
		{
			admin.POST("/students", h.RegisterStudent)
			admin.POST("/students/:id/daily-limit", h.SetDailyLimit)
			admin.GET("/students/:id/reconciliation", h.ReconcileStudent)
			admin.POST("/recharge", h.Recharge)

			admin.POST("/stores", h.RegisterStore)
			admin.POST("/stores/:storeId/summary/refresh", h.RefreshStoreSummary)

			admin.GET("/settlements/:id", h.GetSettlement)
			admin.POST("/settlements/:id/pay", h.PaySettlement)

			admin.POST("/reset-daily-spent", h.ResetDailySpent)
			admin.POST("/reconcile", h.Reconcile)

			admin.GET("/outbox/failed", h.ListFailedEvents)
			admin.POST("/outbox/:id/requeue", h.RequeueEvent)
		}
	}

	return r
}
