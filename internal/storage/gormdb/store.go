package gormdb

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"mediadl/backend/internal/config"
	"mediadl/backend/internal/domain"
	"mediadl/backend/internal/storage"
)

// Store 基于 GORM 的关系型存储实现，支持 PostgreSQL、MySQL 与 SQLite
type Store struct {
	db *gorm.DB
}

// Options 存储选项
type Options struct {
	Logger          gormlogger.Interface // 为空时静默
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open 按配置的数据库类型创建存储实例
func Open(cfg config.DatabaseConfig, log gormlogger.Interface) (*Store, error) {
	opts := Options{
		Logger:          log,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}

	switch strings.ToLower(cfg.Type) {
	case "postgres", "postgresql":
		return NewStoreWithDialector(postgres.Open(cfg.DSN), opts)
	case "mysql":
		dsn, err := normalizeMySQLDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return NewStoreWithDialector(mysql.Open(dsn), opts)
	case "sqlite", "sqlite3":
		// SQLite 只允许单写连接
		opts.MaxOpenConns = 1
		opts.MaxIdleConns = 1
		return NewStoreWithDialector(sqlite.Open(cfg.DSN), opts)
	default:
		return nil, fmt.Errorf("unsupported database type: %q", cfg.Type)
	}
}

// normalizeMySQLDSN 强制开启 parseTime，使 DATETIME 列能扫描到 time.Time
func normalizeMySQLDSN(dsn string) (string, error) {
	parsed, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	parsed.ParseTime = true
	parsed.Loc = time.UTC
	if parsed.Params == nil {
		parsed.Params = map[string]string{}
	}
	if _, ok := parsed.Params["charset"]; !ok {
		parsed.Params["charset"] = "utf8mb4"
	}
	return parsed.FormatDSN(), nil
}

// NewStoreWithDialector 使用指定的GORM dialector创建存储实例
func NewStoreWithDialector(dialector gorm.Dialector, opts Options) (*Store, error) {
	log := opts.Logger
	if log == nil {
		log = gormlogger.Default.LogMode(gormlogger.Silent)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         log,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 25
	}
	if opts.MaxIdleConns <= 0 {
		opts.MaxIdleConns = 5
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 5 * time.Minute
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)

	store := &Store{db: db}
	if err := store.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Migrate 自动迁移数据库表结构
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&domain.User{},
		&domain.APIKey{},
		&domain.DownloadHistory{},
	)
}

// TableCounts 返回各表的行数，供迁移工具展示
func (s *Store) TableCounts() (map[string]int64, error) {
	counts := make(map[string]int64, 3)
	for name, model := range map[string]interface{}{
		domain.User{}.TableName():            &domain.User{},
		domain.APIKey{}.TableName():          &domain.APIKey{},
		domain.DownloadHistory{}.TableName(): &domain.DownloadHistory{},
	} {
		var n int64
		if err := s.db.Model(model).Count(&n).Error; err != nil {
			return nil, fmt.Errorf("count %s: %w", name, err)
		}
		counts[name] = n
	}
	return counts, nil
}

// ========== User Repository ==========

// CreateUser 创建用户
func (s *Store) CreateUser(user *domain.User) error {
	if _, err := s.GetUserByUsername(user.Username); err == nil {
		return storage.ErrUsernameExists
	} else if !errors.Is(err, storage.ErrUserNotFound) {
		return err
	}

	if _, err := s.GetUserByEmail(user.Email); err == nil {
		return storage.ErrEmailExists
	} else if !errors.Is(err, storage.ErrUserNotFound) {
		return err
	}

	if err := s.db.Create(user).Error; err != nil {
		// 并发注册时由唯一索引兜底
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			if strings.Contains(strings.ToLower(err.Error()), "email") {
				return storage.ErrEmailExists
			}
			return storage.ErrUsernameExists
		}
		return err
	}
	return nil
}

// GetUserByID 根据 ID 获取用户
func (s *Store) GetUserByID(id string) (*domain.User, error) {
	return s.firstUser("id = ?", id)
}

// GetUserByEmail 根据邮箱获取用户
func (s *Store) GetUserByEmail(email string) (*domain.User, error) {
	return s.firstUser("lower(email) = ?", strings.ToLower(email))
}

// GetUserByUsername 根据用户名获取用户
func (s *Store) GetUserByUsername(username string) (*domain.User, error) {
	return s.firstUser("lower(username) = ?", strings.ToLower(username))
}

func (s *Store) firstUser(query string, arg interface{}) (*domain.User, error) {
	var user domain.User
	err := s.db.Where(query, arg).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpdateUser 更新用户信息
func (s *Store) UpdateUser(user *domain.User) error {
	result := s.db.Model(&domain.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
		"username":      user.Username,
		"email":         user.Email,
		"password_hash": user.PasswordHash,
		"is_active":     user.IsActive,
		"last_login_at": user.LastLoginAt,
	})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return storage.ErrEmailExists
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrUserNotFound
	}
	return nil
}

// CountUsers 统计用户数量
func (s *Store) CountUsers() (int64, error) {
	var n int64
	err := s.db.Model(&domain.User{}).Count(&n).Error
	return n, err
}

// ========== APIKey Repository ==========

// CreateAPIKey 保存新的 API Key
func (s *Store) CreateAPIKey(apiKey *domain.APIKey) error {
	if err := s.db.Create(apiKey).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return storage.ErrAPIKeyExists
		}
		return err
	}
	return nil
}

// GetAPIKeyByID 根据ID获取API Key
func (s *Store) GetAPIKeyByID(id string) (*domain.APIKey, error) {
	if id == "" {
		return nil, storage.ErrAPIKeyNotFound
	}
	return s.firstAPIKey(&domain.APIKey{ID: id})
}

// GetAPIKeyByKey 根据Key字符串获取API Key
//
// key 是多数数据库的保留字，使用结构体条件由 GORM 负责转义
func (s *Store) GetAPIKeyByKey(key string) (*domain.APIKey, error) {
	if key == "" {
		return nil, storage.ErrAPIKeyNotFound
	}
	return s.firstAPIKey(&domain.APIKey{Key: key})
}

func (s *Store) firstAPIKey(cond *domain.APIKey) (*domain.APIKey, error) {
	var apiKey domain.APIKey
	err := s.db.Where(cond).First(&apiKey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrAPIKeyNotFound
		}
		return nil, err
	}
	return &apiKey, nil
}

// ListAPIKeysByUser 列出用户的所有API Key
func (s *Store) ListAPIKeysByUser(userID string) ([]*domain.APIKey, error) {
	var apiKeys []*domain.APIKey
	err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Find(&apiKeys).Error
	return apiKeys, err
}

// UpdateAPIKey 更新可变字段（名称、激活状态、最后使用时间）
func (s *Store) UpdateAPIKey(apiKey *domain.APIKey) error {
	result := s.db.Model(&domain.APIKey{}).Where("id = ?", apiKey.ID).Updates(map[string]interface{}{
		"name":         apiKey.Name,
		"is_active":    apiKey.IsActive,
		"last_used_at": apiKey.LastUsedAt,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrAPIKeyNotFound
	}
	return nil
}

// TouchAPIKey 只更新 last_used_at，不会覆盖并发的吊销
func (s *Store) TouchAPIKey(id string, usedAt time.Time) error {
	result := s.db.Model(&domain.APIKey{}).Where("id = ?", id).Update("last_used_at", usedAt)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrAPIKeyNotFound
	}
	return nil
}

// ========== History Repository ==========

// CreateHistory 追加下载历史
func (s *Store) CreateHistory(entry *domain.DownloadHistory) error {
	if entry.DownloadedAt.IsZero() {
		entry.DownloadedAt = time.Now().UTC()
	}
	return s.db.Create(entry).Error
}

// ListHistoryByUser 获取用户最近的下载历史，limit <= 0 表示全部
func (s *Store) ListHistoryByUser(userID string, limit int) ([]*domain.DownloadHistory, error) {
	var entries []*domain.DownloadHistory
	q := s.db.Where("user_id = ?", userID).Order("downloaded_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&entries).Error
	return entries, err
}

// CountHistoryByStatus 按状态统计用户的下载次数
func (s *Store) CountHistoryByStatus(userID string) (*domain.HistoryStats, error) {
	var rows []struct {
		Status domain.DownloadStatus
		Count  int64
	}
	err := s.db.Model(&domain.DownloadHistory{}).
		Select("status, count(*) as count").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	stats := &domain.HistoryStats{}
	for _, row := range rows {
		stats.Total += row.Count
		switch row.Status {
		case domain.StatusSuccess:
			stats.Success = row.Count
		case domain.StatusFailed:
			stats.Failed = row.Count
		}
	}
	return stats, nil
}

// ========== 工具方法 ==========

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 健康检查
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

var _ storage.Store = (*Store)(nil)
