package domain

import "time"

// User 表示注册用户的业务实体
type User struct {
	ID           string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Username     string     `json:"username" gorm:"uniqueIndex;type:varchar(64);not null"`
	Email        string     `json:"email" gorm:"uniqueIndex;type:varchar(255);not null"`
	PasswordHash string     `json:"-" gorm:"type:varchar(255);not null"` // 不返回给前端
	IsActive     bool       `json:"isActive" gorm:"default:true"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

// TableName 用户表名
func (User) TableName() string {
	return "users"
}

// RegisterRequest 注册请求（表单或 JSON）
type RegisterRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Email    string `json:"email" form:"email" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

// LoginRequest 登录请求，Username 也可以填写邮箱
type LoginRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

// RefreshTokenRequest 刷新令牌请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" form:"refresh_token" binding:"required"`
}
