package router

import (
	"fmt"
	"strings"

	"github.com/subpay-core/internal/cache"
	"github.com/subpay-core/internal/config"
	adminhandlers "github.com/subpay-core/internal/http/handlers/admin"
	publichandlers "github.com/subpay-core/internal/http/handlers/public"
	"github.com/subpay-core/internal/logger"
	"github.com/subpay-core/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)

	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "sp"
	}
	redisClient := cache.Client()
	adminLoginRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:admin_login", redisPrefix),
		WindowSeconds: cfg.Security.LoginRateLimit.WindowSeconds,
		MaxRequests:   cfg.Security.LoginRateLimit.MaxAttempts,
		Message:       "登录尝试过于频繁",
	}

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	apiV1 := r.Group("/api/v1")
	{
		// 网关回调（由签名鉴权，不走用户登录态）
		webhooks := apiV1.Group("/webhooks")
		{
			webhooks.POST("/card", publicHandler.CardWebhook)
			webhooks.POST("/crypto", publicHandler.CryptoWebhook)
		}

		// 用户接口（需鉴权）
		user := apiV1.Group("")
		user.Use(UserJWTAuthMiddleware(c.AuthService, c.UserRepo))
		{
			user.POST("/payments", publicHandler.CreateCheckoutPayment)
			user.GET("/payments/:id", publicHandler.GetPayment)
			user.POST("/wallet/topups", publicHandler.CreateTopUpPayment)
			user.GET("/wallet", publicHandler.GetMyCreditAccount)
			user.GET("/wallet/transactions", publicHandler.GetMyCreditTransactions)
			user.GET("/subscriptions", publicHandler.ListMySubscriptions)
			user.GET("/subscriptions/:id", publicHandler.GetMySubscription)
			user.PUT("/subscriptions/:id/auto-renew", publicHandler.SetSubscriptionAutoRenew)
			user.POST("/subscriptions/:id/cancel", publicHandler.CancelSubscription)
			user.POST("/refunds", publicHandler.RequestRefund)
			user.GET("/refunds/:refund_no", publicHandler.GetMyRefund)
		}

		// 管理员接口
		admin := apiV1.Group("/admin")
		{
			admin.POST("/login", RateLimitMiddleware(redisClient, adminLoginRule, KeyByIPAndJSONField("username")), adminHandler.AdminLogin)

			authorized := admin.Use(AdminJWTAuthMiddleware(c.AuthService, c.AdminRepo))
			{
				authorized.PUT("/password", adminHandler.UpdateAdminPassword)

				authorized.GET("/payments", adminHandler.GetAdminPayments)
				authorized.GET("/payments/:id", adminHandler.GetAdminPayment)
				authorized.POST("/payments/:id/sync", adminHandler.SyncAdminPayment)

				authorized.GET("/refunds", adminHandler.GetAdminRefunds)
				authorized.POST("/refunds/:id/approve", adminHandler.ApproveRefund)
				authorized.POST("/refunds/:id/reject", adminHandler.RejectRefund)

				authorized.GET("/tasks", adminHandler.GetAdminTasks)
				authorized.GET("/tasks/:id", adminHandler.GetAdminTask)
				authorized.POST("/tasks/:id/done", adminHandler.MarkAdminTaskDone)
			}
		}
	}

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
