package auth

import (
	"time"

	"mediadl/backend/internal/auth/jwt"
	"mediadl/backend/internal/config"
)

// JWTManager JWT管理器包装
type JWTManager struct {
	manager *jwt.Manager
}

// NewJWTManager 创建JWT管理器
func NewJWTManager(cfg config.JWTConfig) *JWTManager {
	manager := jwt.NewManager(cfg.Secret, cfg.Issuer, cfg.AccessExpiry, cfg.RefreshExpiry)
	return &JWTManager{manager: manager}
}

// TokenResponse 令牌响应
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Claims 会话声明
type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// GenerateTokens 生成令牌对
func (j *JWTManager) GenerateTokens(userID, username string) (*TokenResponse, error) {
	tokenPair, err := j.manager.GenerateTokenPair(userID, username)
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    tokenPair.ExpiresIn,
	}, nil
}

// ValidateToken 验证访问令牌，刷新令牌不能用于访问接口
func (j *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := j.manager.ValidateTyped(tokenString, jwt.TypeAccess)
	if err != nil {
		return nil, err
	}

	return &Claims{
		UserID:   claims.UserID,
		Username: claims.Username,
	}, nil
}

// Refresh 用刷新令牌换取新的访问令牌
func (j *JWTManager) Refresh(refreshToken string) (*TokenResponse, error) {
	access, err := j.manager.RefreshAccessToken(refreshToken)
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(j.manager.AccessExpiry().Seconds()),
	}, nil
}

// AccessExpiry 访问令牌有效期，用于设置会话 Cookie
func (j *JWTManager) AccessExpiry() time.Duration {
	return j.manager.AccessExpiry()
}
