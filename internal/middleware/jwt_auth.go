package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mediadl/backend/internal/domain"
)

// SessionCookie 保存访问令牌的 Cookie 名称
const SessionCookie = "access_token"

// SessionValidator 由 auth.Service 实现
type SessionValidator interface {
	ValidateSession(accessToken string) (*domain.User, error)
}

// JWTAuth JWT认证中间件
type JWTAuth struct {
	sessions SessionValidator
	log      *zap.Logger
}

// NewJWTAuth 创建JWT认证中间件
func NewJWTAuth(sessions SessionValidator, log *zap.Logger) *JWTAuth {
	if log == nil {
		log = zap.NewNop()
	}
	return &JWTAuth{
		sessions: sessions,
		log:      log.Named("jwt-auth"),
	}
}

// RequireAuth 要求登录
func (ja *JWTAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized,
				"msg":  "需要登录认证",
			})
			return
		}

		user, err := ja.sessions.ValidateSession(token)
		if err != nil {
			ja.log.Debug("invalid session",
				zap.Error(err),
				zap.String("ip", c.ClientIP()),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": http.StatusUnauthorized,
				"msg":  "登录已过期，请重新登录",
			})
			return
		}

		c.Set(ContextUserID, user.ID)
		c.Set(ContextUser, user)
		c.Next()
	}
}

// OptionalAuth 可选登录，令牌无效时按匿名处理
func (ja *JWTAuth) OptionalAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := ExtractToken(c); token != "" {
			if user, err := ja.sessions.ValidateSession(token); err == nil {
				c.Set(ContextUserID, user.ID)
				c.Set(ContextUser, user)
			}
		}
		c.Next()
	}
}

// ExtractToken 依次从 Authorization 头与 Cookie 中提取访问令牌
func ExtractToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	if token, err := c.Cookie(SessionCookie); err == nil && token != "" {
		return token
	}
	return ""
}

// CurrentUser 当前请求的用户，未登录时返回 nil
func CurrentUser(c *gin.Context) *domain.User {
	v, ok := c.Get(ContextUser)
	if !ok {
		return nil
	}
	user, _ := v.(*domain.User)
	return user
}

// CurrentUserID 当前请求的用户ID，未登录时为空
func CurrentUserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
