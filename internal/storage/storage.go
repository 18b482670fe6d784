package storage

import (
	"errors"
	"time"

	"mediadl/backend/internal/domain"
)

var (
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = errors.New("user not found")
	// ErrUsernameExists 用户名已被占用
	ErrUsernameExists = errors.New("username already exists")
	// ErrEmailExists 邮箱已被注册
	ErrEmailExists = errors.New("email already exists")
	// ErrAPIKeyNotFound API密钥不存在
	ErrAPIKeyNotFound = errors.New("api key not found")
	// ErrAPIKeyExists API密钥冲突（随机值重复）
	ErrAPIKeyExists = errors.New("api key already exists")
)

// UserRepository 定义用户数据存取操作。
type UserRepository interface {
	CreateUser(user *domain.User) error
	GetUserByID(id string) (*domain.User, error)
	GetUserByEmail(email string) (*domain.User, error)
	GetUserByUsername(username string) (*domain.User, error)
	UpdateUser(user *domain.User) error
	CountUsers() (int64, error)
}

// APIKeyRepository 定义API Key数据存取操作。
type APIKeyRepository interface {
	CreateAPIKey(apiKey *domain.APIKey) error
	GetAPIKeyByID(id string) (*domain.APIKey, error)
	GetAPIKeyByKey(key string) (*domain.APIKey, error)
	ListAPIKeysByUser(userID string) ([]*domain.APIKey, error) // 按创建时间倒序
	UpdateAPIKey(apiKey *domain.APIKey) error
	TouchAPIKey(id string, usedAt time.Time) error // 只更新最后使用时间
}

// HistoryRepository 定义下载历史存取操作，只追加。
type HistoryRepository interface {
	CreateHistory(entry *domain.DownloadHistory) error
	ListHistoryByUser(userID string, limit int) ([]*domain.DownloadHistory, error) // 按下载时间倒序
	CountHistoryByStatus(userID string) (*domain.HistoryStats, error)
}

// Store 定义完整的存储接口。
type Store interface {
	UserRepository
	APIKeyRepository
	HistoryRepository

	// 工具方法
	Close() error
	Health() error
}
