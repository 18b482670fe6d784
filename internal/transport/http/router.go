package httptransport

import (
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"mediadl/backend/internal/auth"
	"mediadl/backend/internal/config"
	"mediadl/backend/internal/domain"
	"mediadl/backend/internal/health"
	"mediadl/backend/internal/middleware"
	"mediadl/backend/internal/monitoring"
	"mediadl/backend/internal/service"
	_ "mediadl/backend/internal/transport/http/docs" // 注册 Swagger 文档
	"mediadl/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config         *config.Config
	AuthService    *auth.Service
	APIKeyService  *service.APIKeyService
	HistoryService *service.HistoryService
	MediaService   MediaService
	Platforms      PlatformCatalog
	WebSocketHub   *websocket.Hub             // 可为 nil
	Health         *health.HealthChecker      // 存活/就绪探针
	StatusReporter *monitoring.StatusReporter // 可为 nil
	AlertManager   *monitoring.AlertManager   // 可为 nil
	Metrics        *monitoring.Metrics        // 可为 nil
	APIKeyAuth     *middleware.APIKeyAuth     // 由调用方创建以便关闭
	Logger         *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()
	router.SetHTMLTemplate(loadTemplates())

	monitor := middleware.NewMonitoringMiddleware(deps.Metrics, log)
	router.Use(monitor.PanicRecovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())

	maxBody := deps.Config.Server.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = middleware.DefaultBodyLimit
	}
	router.Use(middleware.BodySizeLimit(maxBody))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins: deps.Config.CORS.AllowedOrigins,
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Disposition",
			"Retry-After",
		},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	if deps.Metrics != nil {
		router.Use(monitor.HTTPMetrics())
		router.Use(monitor.BusinessMetrics())
	}

	// 创建处理器
	publicHandler := NewPublicHandler(deps.Platforms)
	mediaHandler := NewMediaHandler(deps.MediaService, log)
	authHandler := NewAuthHandler(deps.AuthService, deps.Config.JWT.SecureCookie, log)
	apiKeyHandler := NewAPIKeyHandler(deps.APIKeyService, log)
	dashboardHandler := NewDashboardHandler(apiKeyHandler, deps.HistoryService, log)
	opsHandler := NewOpsHandler(deps.Health, deps.StatusReporter, deps.AlertManager)

	// 创建中间件
	jwtAuth := middleware.NewJWTAuth(deps.AuthService, log)
	apiKeyAuth := deps.APIKeyAuth
	if apiKeyAuth == nil {
		apiKeyAuth = middleware.NewAPIKeyAuth(deps.APIKeyService, deps.Config.APIKey, deps.Metrics, log)
	}
	formOrJSON := middleware.ValidateContentType("application/json", "application/x-www-form-urlencoded", "multipart/form-data")

	// ========== Pages ==========
	router.GET("/", publicHandler.Index)
	router.GET("/docs", publicHandler.Docs)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// ========== Ops Routes ==========
	router.GET("/health", opsHandler.Health)
	router.GET("/health/live", opsHandler.Live)
	router.GET("/health/ready", opsHandler.Ready)
	router.GET("/alerts", opsHandler.Alerts)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}
	if deps.WebSocketHub != nil {
		router.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
	}

	// ========== Public Media Routes ==========
	router.GET("/api/platforms", publicHandler.Platforms)
	router.GET("/api/search", mediaHandler.Search)
	router.GET("/api/download", jwtAuth.OptionalAuth(), mediaHandler.Download)
	router.GET("/download/:id", mediaHandler.File)

	// ========== API Key Routes ==========
	keyRoutes := router.Group("/api/download")
	keyRoutes.Use(apiKeyAuth.RequireAPIKey())
	{
		for _, p := range domain.Platforms {
			keyRoutes.GET("/"+string(p), mediaHandler.PlatformDownload(p))
		}
	}

	// ========== Account Routes ==========
	router.POST("/register", formOrJSON, authHandler.Register)
	router.POST("/login", formOrJSON, authHandler.Login)
	router.POST("/refresh", formOrJSON, authHandler.Refresh)
	router.GET("/logout", authHandler.Logout)
	router.POST("/logout", authHandler.Logout)

	account := router.Group("")
	account.Use(jwtAuth.RequireAuth())
	{
		account.GET("/dashboard", dashboardHandler.Dashboard)
		account.GET("/api-keys", apiKeyHandler.ListAPIKeys)
		account.POST("/generate-api-key", formOrJSON, apiKeyHandler.GenerateAPIKey)
		account.POST("/revoke-api-key/:id", apiKeyHandler.RevokeAPIKey)
	}

	return router
}
