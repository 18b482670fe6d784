package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"mediadl/backend/internal/domain"
)

// ErrCacheMiss 缓存未命中
var ErrCacheMiss = errors.New("cache miss")

const keyPrefix = "mediadl:"

// Cache 基于 Redis 的 JSON 缓存
type Cache struct {
	rdb *goredis.Client
}

// NewCache 基于已连接的客户端创建缓存
func NewCache(client *Client) *Cache {
	return &Cache{rdb: client.rdb}
}

func (c *Cache) setJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, data, ttl).Err()
}

func (c *Cache) getJSON(ctx context.Context, key string, v interface{}) error {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return ErrCacheMiss
		}
		return err
	}
	return json.Unmarshal(data, v)
}

// ========== API Key 缓存 ==========

func apiKeyCacheKey(key string) string {
	return fmt.Sprintf("%sapikey:%s", keyPrefix, key)
}

// CacheAPIKey 按密钥值缓存 API Key 记录
func (c *Cache) CacheAPIKey(ctx context.Context, apiKey *domain.APIKey, ttl time.Duration) error {
	return c.setJSON(ctx, apiKeyCacheKey(apiKey.Key), apiKey, ttl)
}

// AddAPIKey 仅在密钥未缓存时写入 (SETNX)，返回是否写入
func (c *Cache) AddAPIKey(ctx context.Context, apiKey *domain.APIKey, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(apiKey)
	if err != nil {
		return false, err
	}
	return c.rdb.SetNX(ctx, apiKeyCacheKey(apiKey.Key), data, ttl).Result()
}

// TouchCachedAPIKey 在 WATCH 事务中更新已缓存记录的 LastUsedAt 并保留 TTL
//
// 事务期间条目被覆盖（例如吊销）时放弃本次更新
func (c *Cache) TouchCachedAPIKey(ctx context.Context, key string, usedAt time.Time) error {
	cacheKey := apiKeyCacheKey(key)

	err := c.rdb.Watch(ctx, func(tx *goredis.Tx) error {
		data, err := tx.Get(ctx, cacheKey).Bytes()
		if errors.Is(err, goredis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var apiKey domain.APIKey
		if err := json.Unmarshal(data, &apiKey); err != nil {
			return err
		}
		t := usedAt
		apiKey.LastUsedAt = &t
		updated, err := json.Marshal(&apiKey)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.SetArgs(ctx, cacheKey, updated, goredis.SetArgs{KeepTTL: true})
			return nil
		})
		return err
	}, cacheKey)

	if errors.Is(err, goredis.TxFailedErr) {
		return nil
	}
	return err
}

// GetCachedAPIKey 获取缓存的 API Key，未命中返回 ErrCacheMiss
func (c *Cache) GetCachedAPIKey(ctx context.Context, key string) (*domain.APIKey, error) {
	var apiKey domain.APIKey
	if err := c.getJSON(ctx, apiKeyCacheKey(key), &apiKey); err != nil {
		return nil, err
	}
	return &apiKey, nil
}

// DeleteCachedAPIKey 删除缓存的 API Key
func (c *Cache) DeleteCachedAPIKey(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, apiKeyCacheKey(key)).Err()
}

// ========== 搜索结果缓存 ==========

func searchCacheKey(key string) string {
	return fmt.Sprintf("%ssearch:%s", keyPrefix, key)
}

// SetSearch 缓存搜索结果
func (c *Cache) SetSearch(ctx context.Context, key string, results []domain.SearchResult, ttl time.Duration) error {
	return c.setJSON(ctx, searchCacheKey(key), results, ttl)
}

// GetSearch 获取缓存的搜索结果
func (c *Cache) GetSearch(ctx context.Context, key string) ([]domain.SearchResult, error) {
	var results []domain.SearchResult
	if err := c.getJSON(ctx, searchCacheKey(key), &results); err != nil {
		return nil, err
	}
	return results, nil
}
