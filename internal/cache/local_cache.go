package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// LocalCache 本地内存缓存（L1 缓存）
//
// 特点：
// - 使用 sync.Map 实现无锁读取
// - 支持 TTL 过期，后台协程定期清理
// - 超过容量时淘汰最早过期的条目
type LocalCache[V any] struct {
	data    sync.Map
	size    atomic.Int64
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewLocalCache 创建本地缓存
//
// 参数:
//   - maxSize: 最大缓存条目数，<=0 表示不限制
//   - ttl: 默认过期时间
func NewLocalCache[V any](maxSize int, ttl time.Duration) *LocalCache[V] {
	c := &LocalCache[V]{
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	// 启动定期清理
	go c.cleanupLoop(time.Minute)

	return c
}

// Get 获取缓存值
func (c *LocalCache[V]) Get(key string) (V, bool) {
	var zero V

	val, ok := c.data.Load(key)
	if !ok {
		return zero, false
	}

	entry := val.(*cacheEntry[V])

	// 检查是否过期
	if !c.now().Before(entry.expiresAt) {
		c.delete(key)
		return zero, false
	}

	return entry.value, true
}

// Set 设置缓存值，ttl 为 0 时使用默认过期时间
func (c *LocalCache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.ttl
	}

	entry := &cacheEntry[V]{
		value:     value,
		expiresAt: c.now().Add(ttl),
	}

	if _, loaded := c.data.Swap(key, entry); !loaded {
		c.size.Add(1)
	}

	if c.maxSize > 0 && int(c.size.Load()) > c.maxSize {
		c.evict()
	}
}

// Delete 删除缓存值
func (c *LocalCache[V]) Delete(key string) {
	c.delete(key)
}

func (c *LocalCache[V]) delete(key string) {
	if _, loaded := c.data.LoadAndDelete(key); loaded {
		c.size.Add(-1)
	}
}

// Len 当前条目数（包含尚未清理的过期条目）
func (c *LocalCache[V]) Len() int {
	return int(c.size.Load())
}

// Clear 清空所有缓存
func (c *LocalCache[V]) Clear() {
	c.data.Range(func(key, _ any) bool {
		c.delete(key.(string))
		return true
	})
}

// Close 停止后台清理
func (c *LocalCache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// evict 先清理过期条目，仍超出容量时删除最早过期的条目
func (c *LocalCache[V]) evict() {
	c.removeExpired()

	for c.maxSize > 0 && int(c.size.Load()) > c.maxSize {
		var oldestKey string
		var oldest time.Time
		c.data.Range(func(key, value any) bool {
			entry := value.(*cacheEntry[V])
			if oldestKey == "" || entry.expiresAt.Before(oldest) {
				oldestKey = key.(string)
				oldest = entry.expiresAt
			}
			return true
		})
		if oldestKey == "" {
			return
		}
		c.delete(oldestKey)
	}
}

func (c *LocalCache[V]) removeExpired() {
	now := c.now()
	c.data.Range(func(key, value any) bool {
		entry := value.(*cacheEntry[V])
		if !now.Before(entry.expiresAt) {
			c.delete(key.(string))
		}
		return true
	})
}

// cleanupLoop 定期清理过期条目
func (c *LocalCache[V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}
