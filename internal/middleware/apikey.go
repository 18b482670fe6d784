package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"mediadl/backend/internal/cache"
	"mediadl/backend/internal/config"
	"mediadl/backend/internal/domain"
	"mediadl/backend/internal/monitoring"
)

// 上下文键
const (
	ContextUserID = "userID"
	ContextUser   = "user"
	ContextAPIKey = "apiKey"
)

// 空闲限流器的保留时间与数量上限
const (
	limiterIdleTTL  = 10 * time.Minute
	maxKeyLimiters  = 10000
	apiKeyHeader    = "X-API-Key"
	apiKeyQueryName = "api_key"
)

// APIKeyValidator 校验密钥，由 service.APIKeyService 实现
type APIKeyValidator interface {
	Validate(key string) (*domain.APIKey, *domain.User, error)
}

// APIKeyAuth API Key认证中间件
type APIKeyAuth struct {
	keys     APIKeyValidator
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
	limiters *cache.LocalCache[*rate.Limiter]
	metrics  *monitoring.Metrics
	log      *zap.Logger
}

// NewAPIKeyAuth 创建API Key认证中间件
//
// cfg.RateLimit <= 0 时不限流；metrics 可为 nil
func NewAPIKeyAuth(keys APIKeyValidator, cfg config.APIKeyConfig, metrics *monitoring.Metrics, log *zap.Logger) *APIKeyAuth {
	if log == nil {
		log = zap.NewNop()
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return &APIKeyAuth{
		keys:     keys,
		limit:    rate.Limit(cfg.RateLimit),
		burst:    burst,
		limiters: cache.NewLocalCache[*rate.Limiter](maxKeyLimiters, limiterIdleTTL),
		metrics:  metrics,
		log:      log.Named("apikey-auth"),
	}
}

// RequireAPIKey 要求API Key认证，密钥来自 X-API-Key 头或 api_key 查询参数
func (m *APIKeyAuth) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(apiKeyHeader)
		if key == "" {
			key = c.Query(apiKeyQueryName)
		}

		apiKey, user, err := m.keys.Validate(key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		if !m.allow(apiKey.ID) {
			if m.metrics != nil {
				m.metrics.RecordRateLimitBlock("apikey")
			}
			m.log.Debug("API key rate limited", zap.String("apiKeyID", apiKey.ID))
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}

		c.Set(ContextUserID, user.ID)
		c.Set(ContextUser, user)
		c.Set(ContextAPIKey, apiKey)
		c.Next()
	}
}

// allow 每个密钥一个令牌桶，空闲一段时间后回收
func (m *APIKeyAuth) allow(keyID string) bool {
	if m.limit <= 0 {
		return true
	}

	m.mu.Lock()
	limiter, ok := m.limiters.Get(keyID)
	if !ok {
		limiter = rate.NewLimiter(m.limit, m.burst)
	}
	m.limiters.Set(keyID, limiter, limiterIdleTTL)
	m.mu.Unlock()

	return limiter.Allow()
}

// Close 停止限流器缓存的后台清理
func (m *APIKeyAuth) Close() {
	m.limiters.Close()
}
