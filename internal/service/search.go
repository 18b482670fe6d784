package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"mediadl/backend/internal/cache"
	"mediadl/backend/internal/domain"
)

// errSearchMiss 本地搜索缓存未命中
var errSearchMiss = errors.New("search cache miss")

// SearchCache 搜索结果缓存，redis.Cache 与 LocalSearchCache 均实现该接口
type SearchCache interface {
	GetSearch(ctx context.Context, key string) ([]domain.SearchResult, error)
	SetSearch(ctx context.Context, key string, results []domain.SearchResult, ttl time.Duration) error
}

// LocalSearchCache 未配置 Redis 时使用的进程内搜索缓存
type LocalSearchCache struct {
	c *cache.LocalCache[[]domain.SearchResult]
}

// NewLocalSearchCache 创建进程内搜索缓存
func NewLocalSearchCache(maxSize int, ttl time.Duration) *LocalSearchCache {
	return &LocalSearchCache{c: cache.NewLocalCache[[]domain.SearchResult](maxSize, ttl)}
}

// GetSearch 实现 SearchCache
func (l *LocalSearchCache) GetSearch(_ context.Context, key string) ([]domain.SearchResult, error) {
	results, ok := l.c.Get(key)
	if !ok {
		return nil, errSearchMiss
	}
	return results, nil
}

// SetSearch 实现 SearchCache
func (l *LocalSearchCache) SetSearch(_ context.Context, key string, results []domain.SearchResult, ttl time.Duration) error {
	l.c.Set(key, results, ttl)
	return nil
}

// Close 停止后台清理
func (l *LocalSearchCache) Close() {
	l.c.Close()
}

var queryFolder = cases.Fold()

// searchCacheKey 规范化查询: NFC、大小写折叠、合并空白
func searchCacheKey(platform domain.Platform, limit int, query string) string {
	q := strings.Join(strings.Fields(norm.NFC.String(query)), " ")
	return fmt.Sprintf("%s:%d:%s", platform, limit, queryFolder.String(q))
}

// Search 搜索媒体
//
// 平台为空时默认 youtube；当前只有 youtube 支持搜索，
// 其他平台返回包装了 ErrSearchUnsupported 的错误
func (s *MediaService) Search(ctx context.Context, query string, platform domain.Platform) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}
	if platform == "" {
		platform = domain.PlatformYouTube
	}

	searcher, err := s.downloads.Searcher(platform)
	if err != nil {
		s.recordSearch(platform, "live", "unsupported")
		return nil, err
	}

	key := searchCacheKey(platform, s.maxResults, query)
	if s.searchCache != nil {
		if results, err := s.searchCache.GetSearch(ctx, key); err == nil {
			s.recordSearch(platform, "cache", "success")
			return results, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.searchTimeout)
	defer cancel()

	results, err := searcher.Search(ctx, query, s.maxResults)
	if err != nil {
		s.recordSearch(platform, "live", "failed")
		s.log.Warn("search failed",
			zap.String("platform", string(platform)),
			zap.String("query", query),
			zap.Error(err),
		)
		return nil, err
	}
	s.recordSearch(platform, "live", "success")

	if s.searchCache != nil && len(results) > 0 {
		if err := s.searchCache.SetSearch(ctx, key, results, s.searchTTL); err != nil {
			s.log.Debug("failed to cache search results", zap.Error(err))
		}
	}
	return results, nil
}

func (s *MediaService) recordSearch(platform domain.Platform, source, status string) {
	if s.metrics != nil {
		s.metrics.RecordSearch(string(platform), source, status)
	}
}
