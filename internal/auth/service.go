package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"mediadl/backend/internal/domain"
	"mediadl/backend/internal/storage"
)

var (
	// ErrInvalidEmail 无效的邮箱格式
	ErrInvalidEmail = domain.ErrInvalidEmail
	// ErrEmailExists 邮箱已存在
	ErrEmailExists = storage.ErrEmailExists
	// ErrUsernameExists 用户名已存在
	ErrUsernameExists = storage.ErrUsernameExists
	// ErrUserNotFound 用户不存在
	ErrUserNotFound = storage.ErrUserNotFound
	// ErrInvalidCredentials 凭证无效
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUserInactive 用户已被禁用
	ErrUserInactive = errors.New("user is inactive")
)

// Service 认证服务
type Service struct {
	users  storage.UserRepository
	tokens *JWTManager
	log    *zap.Logger
	now    func() time.Time
}

// NewService 创建认证服务
func NewService(users storage.UserRepository, tokens *JWTManager, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		users:  users,
		tokens: tokens,
		log:    log.Named("auth"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RegisterInput 注册输入
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// LoginInput 登录输入，Identifier 可以是用户名或邮箱
type LoginInput struct {
	Identifier string
	Password   string
}

// Session 登录成功后的会话
type Session struct {
	User   *domain.User   `json:"user"`
	Tokens *TokenResponse `json:"tokens"`
}

// Register 用户注册
//
// 用户名与邮箱都不区分大小写唯一，先检查用户名再检查邮箱
func (s *Service) Register(input RegisterInput) (*domain.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))

	if err := domain.ValidateUsername(username); err != nil {
		return nil, err
	}
	if !domain.ValidateEmail(email) {
		return nil, ErrInvalidEmail
	}
	if err := domain.ValidatePassword(input.Password); err != nil {
		return nil, err
	}

	// 检查用户名是否已存在
	if _, err := s.users.GetUserByUsername(username); err == nil {
		return nil, ErrUsernameExists
	}

	// 检查邮箱是否已存在
	if _, err := s.users.GetUserByEmail(email); err == nil {
		return nil, ErrEmailExists
	}

	passwordHash, err := HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		IsActive:     true,
		CreatedAt:    s.now(),
	}

	// 并发注册时由存储层的唯一约束兜底
	if err := s.users.CreateUser(user); err != nil {
		if errors.Is(err, storage.ErrUsernameExists) || errors.Is(err, storage.ErrEmailExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.log.Info("用户注册成功", zap.String("userID", user.ID), zap.String("username", user.Username))
	return user, nil
}

// Login 用户登录并签发令牌
func (s *Service) Login(input LoginInput) (*Session, error) {
	identifier := strings.TrimSpace(input.Identifier)
	if identifier == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	// 优先按用户名查找
	user, err := s.users.GetUserByUsername(identifier)
	if err != nil {
		// 如果按用户名查找失败，尝试按邮箱查找
		user, err = s.users.GetUserByEmail(identifier)
		if err != nil {
			return nil, ErrInvalidCredentials
		}
	}

	// 验证密码
	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	// 检查用户是否激活
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	tokens, err := s.tokens.GenerateTokens(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to issue tokens: %w", err)
	}

	// 更新最后登录时间
	now := s.now()
	user.LastLoginAt = &now
	if err := s.users.UpdateUser(user); err != nil {
		s.log.Warn("更新最后登录时间失败", zap.String("userID", user.ID), zap.Error(err))
	}

	return &Session{User: user, Tokens: tokens}, nil
}

// Refresh 使用刷新令牌换取新的访问令牌，用户被禁用后不再签发
func (s *Service) Refresh(refreshToken string) (*TokenResponse, error) {
	tokens, err := s.tokens.Refresh(refreshToken)
	if err != nil {
		return nil, err
	}

	claims, err := s.tokens.ValidateToken(tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	if _, err := s.ActiveUser(claims.UserID); err != nil {
		return nil, err
	}
	return tokens, nil
}

// GetUserByID 根据 ID 获取用户
func (s *Service) GetUserByID(userID string) (*domain.User, error) {
	user, err := s.users.GetUserByID(userID)
	if err != nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ActiveUser 获取处于激活状态的用户
func (s *Service) ActiveUser(userID string) (*domain.User, error) {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	return user, nil
}

// ValidateSession 校验访问令牌并返回对应的激活用户
func (s *Service) ValidateSession(accessToken string) (*domain.User, error) {
	claims, err := s.tokens.ValidateToken(accessToken)
	if err != nil {
		return nil, err
	}
	return s.ActiveUser(claims.UserID)
}

// HashPassword 哈希密码
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword 检查密码是否匹配
func CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
