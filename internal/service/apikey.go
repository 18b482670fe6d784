package service

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mediadl/backend/internal/config"
	"mediadl/backend/internal/domain"
	"mediadl/backend/internal/monitoring"
	"mediadl/backend/internal/storage"
)

var (
	// ErrAPIKeyRequired 请求未携带密钥
	ErrAPIKeyRequired = errors.New("API key required")
	// ErrInvalidAPIKey 密钥不存在、已吊销或所属用户被禁用
	ErrInvalidAPIKey = errors.New("Invalid API key")
	// ErrAPIKeyExpired 密钥已过期
	ErrAPIKeyExpired = errors.New("API key has expired")
	// ErrAPIKeyNotFound 密钥不存在或不属于当前用户
	ErrAPIKeyNotFound = storage.ErrAPIKeyNotFound
	// ErrInvalidExpiry 有效天数超出允许范围
	ErrInvalidExpiry = errors.New("invalid expiry days")
)

const (
	apiKeyBytes        = 32
	defaultAPIKeyName  = "API Key"
	maxAPIKeyNameLen   = 100
	touchInterval      = time.Minute
	maxGenerateRetries = 3
)

// APIKeyService API Key业务逻辑服务
type APIKeyService struct {
	keys          storage.APIKeyRepository
	users         storage.UserRepository
	defaultExpiry int
	maxExpiry     int
	metrics       *monitoring.Metrics
	log           *zap.Logger
	now           func() time.Time
	wg            sync.WaitGroup
}

// NewAPIKeyService 创建API Key服务
//
// 参数:
//   - store: 存储（需要密钥与用户两类仓储）
//   - cfg: 有效期配置
//   - metrics: 可为 nil
//   - log: 日志记录器
func NewAPIKeyService(store storage.Store, cfg config.APIKeyConfig, metrics *monitoring.Metrics, log *zap.Logger) *APIKeyService {
	if log == nil {
		log = zap.NewNop()
	}
	defaultExpiry := cfg.DefaultExpiryDays
	if defaultExpiry <= 0 {
		defaultExpiry = domain.DefaultAPIKeyExpiryDays
	}
	maxExpiry := cfg.MaxExpiryDays
	if maxExpiry < defaultExpiry {
		maxExpiry = defaultExpiry
	}

	return &APIKeyService{
		keys:          store,
		users:         store,
		defaultExpiry: defaultExpiry,
		maxExpiry:     maxExpiry,
		metrics:       metrics,
		log:           log.Named("apikey"),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// GenerateInput 生成密钥的输入参数
type GenerateInput struct {
	UserID     string
	Name       string
	ExpiryDays int // 0 表示默认值
}

// Generate 为用户生成新的API Key
//
// 返回值中的 Key 是唯一一次完整展示密钥的机会
func (s *APIKeyService) Generate(input GenerateInput) (*domain.APIKey, error) {
	days := input.ExpiryDays
	if days == 0 {
		days = s.defaultExpiry
	}
	if days < 1 || days > s.maxExpiry {
		return nil, fmt.Errorf("%w: must be between 1 and %d", ErrInvalidExpiry, s.maxExpiry)
	}

	if _, err := s.users.GetUserByID(input.UserID); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		name = defaultAPIKeyName
	}
	if len(name) > maxAPIKeyNameLen {
		name = name[:maxAPIKeyNameLen]
	}

	now := s.now()
	for attempt := 0; attempt < maxGenerateRetries; attempt++ {
		key, err := generateAPIKey()
		if err != nil {
			return nil, err
		}

		apiKey := &domain.APIKey{
			ID:        uuid.NewString(),
			UserID:    input.UserID,
			Key:       key,
			Name:      name,
			IsActive:  true,
			CreatedAt: now,
			ExpiresAt: now.AddDate(0, 0, days),
		}

		err = s.keys.CreateAPIKey(apiKey)
		if errors.Is(err, storage.ErrAPIKeyExists) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if s.metrics != nil {
			s.metrics.RecordAPIKeyGenerated()
		}
		s.log.Info("API key generated",
			zap.String("userID", input.UserID),
			zap.String("apiKeyID", apiKey.ID),
			zap.Int("expiryDays", days),
		)
		return apiKey, nil
	}

	return nil, storage.ErrAPIKeyExists
}

// List 列出用户的所有API Key，新创建的在前
func (s *APIKeyService) List(userID string) ([]*domain.APIKey, error) {
	return s.keys.ListAPIKeysByUser(userID)
}

// Revoke 吊销API Key（置为未激活，不删除）
//
// 非本人的密钥与不存在的密钥同样返回 ErrAPIKeyNotFound
func (s *APIKeyService) Revoke(userID, keyID string) error {
	apiKey, err := s.keys.GetAPIKeyByID(keyID)
	if err != nil {
		return ErrAPIKeyNotFound
	}
	if apiKey.UserID != userID {
		s.log.Warn("revoke denied: not owner",
			zap.String("userID", userID),
			zap.String("apiKeyID", keyID),
		)
		return ErrAPIKeyNotFound
	}
	if !apiKey.IsActive {
		return nil
	}

	apiKey.IsActive = false
	if err := s.keys.UpdateAPIKey(apiKey); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.RecordAPIKeyRevoked()
	}
	s.log.Info("API key revoked", zap.String("userID", userID), zap.String("apiKeyID", keyID))
	return nil
}

// Validate 校验API Key并返回密钥与所属用户
//
// 校验顺序: 缺失 → 不存在或已吊销 → 已过期 → 用户被禁用。
// 成功时异步更新最后使用时间
func (s *APIKeyService) Validate(key string) (*domain.APIKey, *domain.User, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil, s.fail(ErrAPIKeyRequired, "missing")
	}

	apiKey, err := s.keys.GetAPIKeyByKey(key)
	if err != nil {
		if !errors.Is(err, storage.ErrAPIKeyNotFound) {
			s.log.Error("API key lookup failed", zap.Error(err))
		}
		return nil, nil, s.fail(ErrInvalidAPIKey, "invalid")
	}
	if !apiKey.IsActive {
		return nil, nil, s.fail(ErrInvalidAPIKey, "revoked")
	}

	now := s.now()
	if apiKey.IsExpired(now) {
		return nil, nil, s.fail(ErrAPIKeyExpired, "expired")
	}

	user, err := s.users.GetUserByID(apiKey.UserID)
	if err != nil || !user.IsActive {
		return nil, nil, s.fail(ErrInvalidAPIKey, "inactive_user")
	}

	s.touch(apiKey, now)
	return apiKey, user, nil
}

func (s *APIKeyService) fail(err error, reason string) error {
	if s.metrics != nil {
		s.metrics.RecordAPIKeyAuthFailure(reason)
	}
	return err
}

// touch 异步更新最后使用时间，同一密钥一分钟内最多写一次
func (s *APIKeyService) touch(apiKey *domain.APIKey, now time.Time) {
	if apiKey.LastUsedAt != nil && now.Sub(*apiKey.LastUsedAt) < touchInterval {
		return
	}

	s.wg.Add(1)
	go func(id string) {
		defer s.wg.Done()
		if err := s.keys.TouchAPIKey(id, now); err != nil {
			s.log.Warn("failed to update API key last used", zap.String("apiKeyID", id), zap.Error(err))
		}
	}(apiKey.ID)
}

// Wait 等待进行中的异步更新完成，用于优雅停机
func (s *APIKeyService) Wait() {
	s.wg.Wait()
}

// generateAPIKey 生成 32 字节随机数的 base64url 编码（无填充，43 字符）
func generateAPIKey() (string, error) {
	buf := make([]byte, apiKeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
