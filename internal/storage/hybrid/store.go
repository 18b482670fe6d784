package hybrid

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"mediadl/backend/internal/domain"
	"mediadl/backend/internal/storage"
)

// APIKeyCache API Key 缓存接口，由 redis.Cache 实现
type APIKeyCache interface {
	// CacheAPIKey 写入并覆盖已有条目
	CacheAPIKey(ctx context.Context, apiKey *domain.APIKey, ttl time.Duration) error
	// AddAPIKey 仅在条目不存在时写入
	AddAPIKey(ctx context.Context, apiKey *domain.APIKey, ttl time.Duration) (bool, error)
	GetCachedAPIKey(ctx context.Context, key string) (*domain.APIKey, error)
	// TouchCachedAPIKey 只更新已缓存条目的最后使用时间，条目不存在时不写入
	TouchCachedAPIKey(ctx context.Context, key string, usedAt time.Time) error
	DeleteCachedAPIKey(ctx context.Context, key string) error
}

// Store 混合存储：关系型数据库为主，API Key 查询走缓存
//
// API 密钥校验位于每个受保护请求的热路径上，其余操作直接透传给主存储。
// 回源读取只在缓存为空时回填，更新总是以主存储的最新记录覆盖缓存，
// 因此吊销之后缓存里不会再出现旧的激活记录
type Store struct {
	storage.Store
	cache   APIKeyCache
	ttl     time.Duration
	timeout time.Duration
	log     *zap.Logger
}

// NewStore 创建混合存储实例
//
// 参数:
//   - primary: 主存储（通常为 gormdb.Store）
//   - cache: API Key 缓存
//   - ttl: 缓存有效期
//   - log: 日志记录器
func NewStore(primary storage.Store, cache APIKeyCache, ttl time.Duration, log *zap.Logger) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		Store:   primary,
		cache:   cache,
		ttl:     ttl,
		timeout: 500 * time.Millisecond,
		log:     log,
	}
}

// ========== APIKey Repository ==========

// CreateAPIKey 写入主存储后预热缓存
func (s *Store) CreateAPIKey(apiKey *domain.APIKey) error {
	if err := s.Store.CreateAPIKey(apiKey); err != nil {
		return err
	}
	s.put(apiKey)
	return nil
}

// GetAPIKeyByKey 优先读缓存，未命中时回源并回填
func (s *Store) GetAPIKeyByKey(key string) (*domain.APIKey, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	cached, err := s.cache.GetCachedAPIKey(ctx, key)
	cancel()
	if err == nil {
		return cached, nil
	}

	apiKey, err := s.Store.GetAPIKeyByKey(key)
	if err != nil {
		return nil, err
	}

	ctx, cancel = context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.cache.AddAPIKey(ctx, apiKey, s.ttl); err != nil {
		s.log.Debug("failed to cache api key", zap.String("apiKeyID", apiKey.ID), zap.Error(err))
	}
	return apiKey, nil
}

// UpdateAPIKey 更新主存储后用最新记录覆盖缓存
//
// 覆盖失败时删除缓存条目，两者都失败才返回错误
func (s *Store) UpdateAPIKey(apiKey *domain.APIKey) error {
	if err := s.Store.UpdateAPIKey(apiKey); err != nil {
		return err
	}

	stored, err := s.Store.GetAPIKeyByID(apiKey.ID)
	if err != nil {
		if errors.Is(err, storage.ErrAPIKeyNotFound) {
			return nil
		}
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.cache.CacheAPIKey(ctx, stored, s.ttl); err != nil {
		s.log.Warn("failed to refresh cached api key", zap.String("apiKeyID", stored.ID), zap.Error(err))
		if delErr := s.cache.DeleteCachedAPIKey(ctx, stored.Key); delErr != nil {
			return err
		}
	}
	return nil
}

// TouchAPIKey 更新最后使用时间，并同步到已缓存的记录，未缓存时不回填
func (s *Store) TouchAPIKey(id string, usedAt time.Time) error {
	if err := s.Store.TouchAPIKey(id, usedAt); err != nil {
		return err
	}

	stored, err := s.Store.GetAPIKeyByID(id)
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.cache.TouchCachedAPIKey(ctx, stored.Key, usedAt); err != nil {
		s.log.Debug("failed to touch cached api key", zap.String("apiKeyID", id), zap.Error(err))
	}
	return nil
}

func (s *Store) put(apiKey *domain.APIKey) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.cache.CacheAPIKey(ctx, apiKey, s.ttl); err != nil {
		s.log.Debug("failed to cache api key", zap.String("apiKeyID", apiKey.ID), zap.Error(err))
	}
}

var _ storage.Store = (*Store)(nil)
