package hybrid

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mediadl/backend/internal/domain"
	"mediadl/backend/internal/storage"
	"mediadl/backend/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var errMiss = errors.New("miss")

type fakeCache struct {
	mu      sync.Mutex
	entries map[string]domain.APIKey
	hits    int
	deletes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]domain.APIKey)}
}

func (c *fakeCache) CacheAPIKey(_ context.Context, apiKey *domain.APIKey, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[apiKey.Key] = *apiKey
	return nil
}

func (c *fakeCache) AddAPIKey(_ context.Context, apiKey *domain.APIKey, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[apiKey.Key]; ok {
		return false, nil
	}
	c.entries[apiKey.Key] = *apiKey
	return true, nil
}

func (c *fakeCache) TouchCachedAPIKey(_ context.Context, key string, usedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil
	}
	entry.LastUsedAt = &usedAt
	c.entries[key] = entry
	return nil
}

func (c *fakeCache) entry(key string) (domain.APIKey, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	return entry, ok
}

func (c *fakeCache) GetCachedAPIKey(_ context.Context, key string) (*domain.APIKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, errMiss
	}
	c.hits++
	return &entry, nil
}

func (c *fakeCache) DeleteCachedAPIKey(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.deletes++
	return nil
}

func TestHybridStore_APIKeyCaching(t *testing.T) {
	primary := memory.NewStore()
	cache := newFakeCache()
	store := NewStore(primary, cache, time.Minute, zap.NewNop())

	key := &domain.APIKey{ID: "k1", UserID: "u1", Key: "abc", IsActive: true, ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.CreateAPIKey(key))

	got, err := store.GetAPIKeyByKey("abc")
	require.NoError(t, err)
	assert.Equal(t, "k1", got.ID)
	assert.Equal(t, 1, cache.hits, "create should warm the cache")

	// 吊销后缓存被最新记录覆盖
	revoked := *got
	revoked.IsActive = false
	require.NoError(t, store.UpdateAPIKey(&revoked))
	assert.Zero(t, cache.deletes)

	got, err = store.GetAPIKeyByKey("abc")
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, 2, cache.hits)
}

func TestHybridStore_MissFallsBackToPrimary(t *testing.T) {
	primary := memory.NewStore()
	require.NoError(t, primary.CreateAPIKey(&domain.APIKey{ID: "k1", UserID: "u1", Key: "abc", IsActive: true}))

	cache := newFakeCache()
	store := NewStore(primary, cache, 0, zap.NewNop())

	got, err := store.GetAPIKeyByKey("abc")
	require.NoError(t, err)
	assert.Equal(t, "k1", got.ID)
	assert.Contains(t, cache.entries, "abc", "miss should backfill")

	_, err = store.GetAPIKeyByKey("nope")
	assert.Error(t, err)
}

func TestHybridStore_UpdateWithoutKeyValue(t *testing.T) {
	primary := memory.NewStore()
	require.NoError(t, primary.CreateAPIKey(&domain.APIKey{ID: "k1", UserID: "u1", Key: "abc", IsActive: true}))

	cache := newFakeCache()
	store := NewStore(primary, cache, time.Minute, zap.NewNop())
	_, _ = store.GetAPIKeyByKey("abc")

	require.NoError(t, store.UpdateAPIKey(&domain.APIKey{ID: "k1", UserID: "u1", IsActive: false}))
	entry, ok := cache.entry("abc")
	require.True(t, ok)
	assert.False(t, entry.IsActive)
	assert.Equal(t, "abc", entry.Key)
}

// pausingStore 在第一次按密钥读取后暂停，模拟回源与吊销交错
type pausingStore struct {
	*memory.Store
	once   sync.Once
	read   chan struct{}
	resume chan struct{}
}

func (p *pausingStore) GetAPIKeyByKey(key string) (*domain.APIKey, error) {
	apiKey, err := p.Store.GetAPIKeyByKey(key)
	p.once.Do(func() {
		close(p.read)
		<-p.resume
	})
	return apiKey, err
}

func TestHybridStore_RevokeDuringBackfill(t *testing.T) {
	primary := &pausingStore{
		Store:  memory.NewStore(),
		read:   make(chan struct{}),
		resume: make(chan struct{}),
	}
	require.NoError(t, primary.Store.CreateAPIKey(&domain.APIKey{ID: "k1", UserID: "u1", Key: "abc", IsActive: true}))

	cache := newFakeCache()
	store := NewStore(primary, cache, time.Minute, zap.NewNop())

	done := make(chan *domain.APIKey)
	go func() {
		got, err := store.GetAPIKeyByKey("abc")
		assert.NoError(t, err)
		done <- got
	}()

	// 回源已读到激活记录，此时吊销
	<-primary.read
	require.NoError(t, store.UpdateAPIKey(&domain.APIKey{ID: "k1", UserID: "u1", Key: "abc", IsActive: false}))
	close(primary.resume)

	stale := <-done
	assert.True(t, stale.IsActive, "吊销前开始的读取返回旧记录")

	got, err := store.GetAPIKeyByKey("abc")
	require.NoError(t, err)
	assert.False(t, got.IsActive, "吊销后的读取不能命中旧的激活记录")
}

func TestHybridStore_TouchUpdatesCachedRecord(t *testing.T) {
	primary := memory.NewStore()
	cache := newFakeCache()
	store := NewStore(primary, cache, time.Minute, zap.NewNop())

	require.NoError(t, store.CreateAPIKey(&domain.APIKey{ID: "k1", UserID: "u1", Key: "abc", IsActive: true}))
	require.NoError(t, primary.CreateAPIKey(&domain.APIKey{ID: "k2", UserID: "u1", Key: "def", IsActive: true}))

	usedAt := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.TouchAPIKey("k1", usedAt))

	entry, ok := cache.entry("abc")
	require.True(t, ok)
	require.NotNil(t, entry.LastUsedAt)
	assert.Equal(t, usedAt, *entry.LastUsedAt)

	stored, err := primary.GetAPIKeyByID("k1")
	require.NoError(t, err)
	require.NotNil(t, stored.LastUsedAt)
	assert.Equal(t, usedAt, *stored.LastUsedAt)

	// 未缓存的密钥不回填
	require.NoError(t, store.TouchAPIKey("k2", usedAt))
	_, ok = cache.entry("def")
	assert.False(t, ok)

	assert.ErrorIs(t, store.TouchAPIKey("missing", usedAt), storage.ErrAPIKeyNotFound)
}
