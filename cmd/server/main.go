package main

// @title Media Downloader API
// @version 1.0
// @description YouTube、Instagram、TikTok 媒体下载服务
// @BasePath /
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description 使用格式：Bearer {token}，浏览器会话也可以使用 access_token Cookie
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description 在仪表盘生成的 API Key，也可以通过 api_key 查询参数传递

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mediadl/backend/internal/auth"
	"mediadl/backend/internal/config"
	"mediadl/backend/internal/downloader"
	"mediadl/backend/internal/health"
	"mediadl/backend/internal/logger"
	"mediadl/backend/internal/middleware"
	"mediadl/backend/internal/monitoring"
	"mediadl/backend/internal/pool"
	"mediadl/backend/internal/security"
	"mediadl/backend/internal/service"
	"mediadl/backend/internal/storage"
	"mediadl/backend/internal/storage/filesystem"
	"mediadl/backend/internal/storage/gormdb"
	"mediadl/backend/internal/storage/hybrid"
	"mediadl/backend/internal/storage/memory"
	"mediadl/backend/internal/storage/postgres"
	"mediadl/backend/internal/storage/redis"
	httptransport "mediadl/backend/internal/transport/http"
	"mediadl/backend/internal/websocket"
)

const version = "1.0.0"

// main 启动 HTTP 服务、WebSocket Hub、下载目录清理与监控任务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	gin.SetMode(cfg.Server.Mode)

	// 初始化日志系统
	log, err := logger.NewLogger(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		LogFile:     cfg.Log.File,
		MaxSize:     100,
		MaxBackups:  3,
		MaxAge:      28,
		Compress:    true,
	})
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting mediadl server",
		zap.String("version", version),
		zap.String("log_level", cfg.Log.Level),
		zap.String("gin_mode", cfg.Server.Mode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	probes := health.NewHealthChecker(log)
	reporter := monitoring.NewStatusReporter(metrics, log, version, cfg.Monitor.MemoryAlertMB)
	alerts := monitoring.NewAlertManager(metrics, log)
	alerts.AddReceiver(monitoring.NewLogAlertReceiver(log))
	if cfg.Monitor.AlertWebhookURL != "" {
		alerts.AddReceiver(monitoring.NewWebhookAlertReceiver(cfg.Monitor.AlertWebhookURL, log))
	}
	alerts.AddRule(monitoring.HighMemoryUsageRule(cfg.Monitor.MemoryAlertMB))

	// 初始化存储层
	deps, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer deps.close()

	store := deps.store
	probes.AddReadinessCheck("database", store.Health)
	reporter.AddCheck("database", true, monitoring.PingCheck("ok", store.Health))
	alerts.AddRule(monitoring.DependencyRule("database", store.Health))
	if deps.pg != nil {
		pgCheck := deps.pg.Check(2 * time.Second)
		probes.AddReadinessCheck("postgres", pgCheck)
		reporter.AddCheck("postgres", true, func(context.Context) (string, error) {
			if err := pgCheck(); err != nil {
				return "", err
			}
			return deps.pg.Summary(), nil
		})
	}
	if deps.redis != nil {
		redisCheck := deps.redis.Check(time.Second)
		probes.AddReadinessCheck("redis", redisCheck)
		reporter.AddCheck("redis", false, monitoring.PingCheck("PONG", redisCheck))
		alerts.AddRule(monitoring.DependencyRule("redis", redisCheck))
	}

	// 下载工作目录
	workspace, err := filesystem.NewStore(cfg.Download.Dir)
	if err != nil {
		log.Fatal("failed to initialize download directory", zap.String("dir", cfg.Download.Dir), zap.Error(err))
	}
	log.Info("download directory ready", zap.String("dir", workspace.Root()))
	probes.AddReadinessCheck("workspace", workspace.Check)
	reporter.AddCheck("workspace", true, monitoring.WorkspaceCheck(workspace))
	alerts.AddRule(monitoring.WorkspaceSizeRule(workspace, uint64(cfg.Monitor.WorkspaceAlertGB*1e9)))

	downloads, err := downloader.New(cfg.Download, log)
	if err != nil {
		log.Fatal("failed to initialize downloaders", zap.Error(err))
	}

	// 下载池在 HTTP 关闭后才停止，保证进行中的请求能拿到结果
	downloadPool := pool.NewWorkerPool(cfg.Download.MaxConcurrent, cfg.Download.QueueSize, log)
	downloadPool.Start(context.Background())
	defer downloadPool.Stop()
	if cfg.Download.QueueSize > 0 {
		alerts.AddRule(monitoring.QueueBacklogRule(downloadPool.Queued, cfg.Download.QueueSize))
	}

	// 初始化服务层
	authService := auth.NewService(store, auth.NewJWTManager(cfg.JWT), log)
	apiKeyService := service.NewAPIKeyService(store, cfg.APIKey, metrics, log)
	defer apiKeyService.Wait()
	historyService := service.NewHistoryService(store, log)

	wsHub := websocket.NewHub(cfg.CORS.AllowedOrigins, authService, metrics, log)

	mediaService := service.NewMediaService(service.MediaDeps{
		Downloads:   downloads,
		Workspace:   workspace,
		Pool:        downloadPool,
		History:     historyService,
		Progress:    wsHub,
		SearchCache: deps.searchCache,
		Inspector:   security.NewMediaInspector(),
		Metrics:     metrics,
	}, cfg.Download, cfg.Search, log)

	sweeper := service.NewSweeper(workspace, cfg.Download.MaxAge, cfg.Download.CleanupInterval, metrics, log)

	apiKeyAuth := middleware.NewAPIKeyAuth(apiKeyService, cfg.APIKey, metrics, log)
	defer apiKeyAuth.Close()

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:         cfg,
		AuthService:    authService,
		APIKeyService:  apiKeyService,
		HistoryService: historyService,
		MediaService:   mediaService,
		Platforms:      downloads,
		WebSocketHub:   wsHub,
		Health:         probes,
		StatusReporter: reporter,
		AlertManager:   alerts,
		Metrics:        metrics,
		APIKeyAuth:     apiKeyAuth,
		Logger:         log,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	// HTTP 服务器 goroutine
	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	// WebSocket Hub goroutine
	group.Go(func() error {
		return wsHub.Run(groupCtx)
	})

	// 下载目录清理 goroutine
	group.Go(func() error {
		return sweeper.Run(groupCtx)
	})

	// 监控 goroutine
	group.Go(func() error {
		return reporter.StartPeriodicHealthCheck(groupCtx, cfg.Monitor.HealthInterval)
	})
	group.Go(func() error {
		return alerts.StartMonitoring(groupCtx, cfg.Monitor.AlertInterval)
	})

	// 优雅关闭 goroutine
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}

		log.Info("HTTP server stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", zap.Error(err))
	}

	log.Info("server exited cleanly")
}

// storageDeps 存储层及其附属连接
type storageDeps struct {
	store       storage.Store
	pg          *postgres.Client
	redis       *redis.Client
	searchCache service.SearchCache
	local       *service.LocalSearchCache
}

func (d *storageDeps) close() {
	if d.local != nil {
		d.local.Close()
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.pg != nil {
		d.pg.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
}

// openStorage 按配置初始化存储
//
// 未配置数据库时使用内存存储；启用 Redis 时 API Key 与搜索结果走 Redis 缓存，
// 否则搜索结果缓存在进程内
func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storageDeps, error) {
	deps := &storageDeps{}

	if cfg.Database.Type != "" && cfg.Database.DSN != "" {
		db, err := gormdb.Open(cfg.Database, logger.NewGormLogger(log, cfg.Log.Development))
		if err != nil {
			return nil, fmt.Errorf("failed to open %s database: %w", cfg.Database.Type, err)
		}
		deps.store = db
		log.Info("using database storage", zap.String("type", cfg.Database.Type))

		if isPostgres(cfg.Database.Type) {
			pg, err := postgres.New(ctx, cfg.Database, log)
			if err != nil {
				log.Warn("postgres probe pool unavailable", zap.Error(err))
			} else {
				deps.pg = pg
			}
		}
	} else {
		deps.store = memory.NewStore()
		log.Info("using memory storage (development mode)")
	}

	if cfg.Redis.Enabled {
		client, err := redis.New(ctx, cfg.Redis, log)
		if err != nil {
			deps.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		deps.redis = client
		cache := redis.NewCache(client)
		deps.store = hybrid.NewStore(deps.store, cache, cfg.APIKey.CacheTTL, log)
		deps.searchCache = cache
		log.Info("redis cache enabled", zap.String("address", cfg.Redis.Address))
	} else {
		deps.local = service.NewLocalSearchCache(1000, cfg.Search.CacheTTL)
		deps.searchCache = deps.local
	}

	return deps, nil
}

func isPostgres(dbType string) bool {
	switch strings.ToLower(dbType) {
	case "postgres", "postgresql":
		return true
	}
	return false
}
