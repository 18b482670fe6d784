package memory

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"mediadl/backend/internal/domain"
	"mediadl/backend/internal/storage"
)

// Store 使用内存保存用户、API 密钥与下载历史，主要用于开发验证和测试。
//
// 返回给调用方的都是副本，调用方修改后必须通过 Update* 写回。
type Store struct {
	mu         sync.RWMutex
	users      map[string]*domain.User              // userID -> user
	byEmail    map[string]string                    // lower(email) -> userID
	byUsername map[string]string                    // lower(username) -> userID
	apiKeys    map[string]*domain.APIKey            // apiKeyID -> apiKey
	byAPIKey   map[string]string                    // key -> apiKeyID
	history    map[string][]*domain.DownloadHistory // userID -> 按追加顺序
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		users:      make(map[string]*domain.User),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
		apiKeys:    make(map[string]*domain.APIKey),
		byAPIKey:   make(map[string]string),
		history:    make(map[string][]*domain.DownloadHistory),
	}
}

// ========== User Repository ==========

// CreateUser 创建用户，用户名与邮箱均不区分大小写唯一
func (s *Store) CreateUser(user *domain.User) error {
	if user.ID == "" {
		return errors.New("user ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUsername[strings.ToLower(user.Username)]; exists {
		return storage.ErrUsernameExists
	}
	if _, exists := s.byEmail[strings.ToLower(user.Email)]; exists {
		return storage.ErrEmailExists
	}

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	clone := *user
	s.users[user.ID] = &clone
	s.byEmail[strings.ToLower(user.Email)] = user.ID
	s.byUsername[strings.ToLower(user.Username)] = user.ID

	return nil
}

// GetUserByID 根据ID获取用户
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrUserNotFound
	}

	clone := *user
	return &clone, nil
}

// GetUserByEmail 根据邮箱获取用户
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.userByIndex(s.byEmail, email)
}

// GetUserByUsername 根据用户名获取用户
func (s *Store) GetUserByUsername(username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.userByIndex(s.byUsername, username)
}

func (s *Store) userByIndex(index map[string]string, value string) (*domain.User, error) {
	userID, ok := index[strings.ToLower(value)]
	if !ok {
		return nil, storage.ErrUserNotFound
	}

	user, ok := s.users[userID]
	if !ok {
		return nil, storage.ErrUserNotFound
	}

	clone := *user
	return &clone, nil
}

// UpdateUser 更新用户信息，用户名与邮箱变更时重建索引
func (s *Store) UpdateUser(user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[user.ID]
	if !ok {
		return storage.ErrUserNotFound
	}

	newUsername := strings.ToLower(user.Username)
	newEmail := strings.ToLower(user.Email)
	if id, taken := s.byUsername[newUsername]; taken && id != user.ID {
		return storage.ErrUsernameExists
	}
	if id, taken := s.byEmail[newEmail]; taken && id != user.ID {
		return storage.ErrEmailExists
	}

	delete(s.byUsername, strings.ToLower(existing.Username))
	delete(s.byEmail, strings.ToLower(existing.Email))
	s.byUsername[newUsername] = user.ID
	s.byEmail[newEmail] = user.ID

	clone := *user
	s.users[user.ID] = &clone
	return nil
}

// CountUsers 统计用户数量
func (s *Store) CountUsers() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.users)), nil
}

// ========== APIKey Repository ==========

// CreateAPIKey 保存新的 API Key
func (s *Store) CreateAPIKey(apiKey *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byAPIKey[apiKey.Key]; exists {
		return storage.ErrAPIKeyExists
	}
	if apiKey.CreatedAt.IsZero() {
		apiKey.CreatedAt = time.Now().UTC()
	}

	clone := *apiKey
	s.apiKeys[apiKey.ID] = &clone
	s.byAPIKey[apiKey.Key] = apiKey.ID

	return nil
}

// GetAPIKeyByID 根据ID获取API Key
func (s *Store) GetAPIKeyByID(id string) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	apiKey, ok := s.apiKeys[id]
	if !ok {
		return nil, storage.ErrAPIKeyNotFound
	}

	clone := *apiKey
	return &clone, nil
}

// GetAPIKeyByKey 根据Key字符串获取API Key
func (s *Store) GetAPIKeyByKey(key string) (*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAPIKey[key]
	if !ok {
		return nil, storage.ErrAPIKeyNotFound
	}

	clone := *s.apiKeys[id]
	return &clone, nil
}

// ListAPIKeysByUser 列出用户的所有API Key，新创建的在前
func (s *Store) ListAPIKeysByUser(userID string) ([]*domain.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]*domain.APIKey, 0)
	for _, apiKey := range s.apiKeys {
		if apiKey.UserID == userID {
			clone := *apiKey
			keys = append(keys, &clone)
		}
	}

	sort.Slice(keys, func(i, j int) bool {
		return keys[i].CreatedAt.After(keys[j].CreatedAt)
	})

	return keys, nil
}

// UpdateAPIKey 更新 API Key（吊销、最后使用时间），密钥值不可变
func (s *Store) UpdateAPIKey(apiKey *domain.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.apiKeys[apiKey.ID]
	if !ok {
		return storage.ErrAPIKeyNotFound
	}

	clone := *apiKey
	clone.Key = existing.Key
	s.apiKeys[apiKey.ID] = &clone
	return nil
}

// TouchAPIKey 更新最后使用时间
func (s *Store) TouchAPIKey(id string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.apiKeys[id]
	if !ok {
		return storage.ErrAPIKeyNotFound
	}
	t := usedAt
	existing.LastUsedAt = &t
	return nil
}

// ========== History Repository ==========

// CreateHistory 追加一条下载历史
func (s *Store) CreateHistory(entry *domain.DownloadHistory) error {
	if entry.ID == "" {
		return errors.New("history ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.DownloadedAt.IsZero() {
		entry.DownloadedAt = time.Now().UTC()
	}

	clone := *entry
	s.history[entry.UserID] = append(s.history[entry.UserID], &clone)
	return nil
}

// ListHistoryByUser 获取用户最近的下载历史，limit <= 0 表示全部
func (s *Store) ListHistoryByUser(userID string, limit int) ([]*domain.DownloadHistory, error) {
	s.mu.RLock()
	entries := s.history[userID]
	out := make([]*domain.DownloadHistory, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		clone := *entries[i]
		out = append(out, &clone)
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DownloadedAt.After(out[j].DownloadedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountHistoryByStatus 按状态统计用户的下载次数
func (s *Store) CountHistoryByStatus(userID string) (*domain.HistoryStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.HistoryStats{}
	for _, entry := range s.history[userID] {
		stats.Total++
		switch entry.Status {
		case domain.StatusSuccess:
			stats.Success++
		case domain.StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

// ========== 工具方法 ==========

// Close 关闭存储
func (s *Store) Close() error {
	// 内存存储不需要关闭连接
	return nil
}

// Health 健康检查
func (s *Store) Health() error {
	// 内存存储总是健康的
	return nil
}

var _ storage.Store = (*Store)(nil)
