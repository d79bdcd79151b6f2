package main

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/looma/see-practice-api/internal/config"
	"github.com/looma/see-practice-api/internal/handler"
	"github.com/looma/see-practice-api/internal/metrics"
	"github.com/looma/see-practice-api/internal/middleware"
	"github.com/looma/see-practice-api/pkg/auth"
	"github.com/looma/see-practice-api/pkg/logger"
)

type routerDeps struct {
	cfg         *config.Config
	otp         *handler.OTPHandler
	admin       *handler.AdminHandler
	adminTokens *auth.AdminTokenService
	health      *handler.HealthHandler
	limiter     *middleware.RateLimiter
	metrics     *metrics.Metrics
}

func newRouter(deps routerDeps) *gin.Engine {
	cfg := deps.cfg
	gin.SetMode(cfg.Server.Mode)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(), deps.metrics.Middleware())

	if cfg.IsRelease() {
		if err := router.SetTrustedProxies(nil); err != nil {
			logger.Warn("failed to set trusted proxies", zap.Error(err))
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			logger.Warn("failed to set trusted proxies", zap.Error(err))
		}
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:  cfg.CORS.AllowOrigins,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition", "Retry-After", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}))

	router.GET("/metrics", gin.WrapH(deps.metrics.Handler()))

	api := router.Group("/api")
	{
		api.GET("/health", deps.health.Health)

		authGroup := api.Group("/auth")
		authGroup.Use(deps.limiter.LimitByIP(middleware.AuthRateLimitConfig(cfg.OTP.IPRequestsPerMinute)))
		{
			authGroup.POST("/send-code", deps.otp.SendCode)
			authGroup.POST("/verify-code", deps.otp.VerifyCode)
			authGroup.GET("/known", deps.otp.Known)
		}

		adminGroup := api.Group("/admin")
		{
			adminGroup.POST("/auth", deps.limiter.Limit(middleware.AdminRateLimitConfig()), deps.admin.Authenticate)

			if deps.adminTokens != nil {
				protected := adminGroup.Group("")
				protected.Use(middleware.NewAdminMiddleware(deps.adminTokens).RequireAdmin())
				{
					protected.GET("/identities", deps.admin.ListIdentities)
					protected.GET("/identities/export", deps.admin.ExportIdentities)
				}
			}
		}
	}

	return router
}
