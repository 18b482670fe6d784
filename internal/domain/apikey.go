package domain

import "time"

// DefaultAPIKeyExpiryDays API密钥默认有效天数
const DefaultAPIKeyExpiryDays = 30

// APIKey API密钥实体
type APIKey struct {
	ID         string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID     string     `json:"userId" gorm:"type:varchar(36);index;not null"`
	Key        string     `json:"key" gorm:"column:key;type:varchar(64);uniqueIndex;not null"` // API密钥
	Name       string     `json:"name" gorm:"type:varchar(100)"`                                // 密钥名称/描述
	IsActive   bool       `json:"isActive" gorm:"default:true"`                                 // 是否激活
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt" gorm:"index;not null"` // 过期时间
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`            // 最后使用时间
}

// TableName API密钥表名
func (APIKey) TableName() string {
	return "api_keys"
}

// IsExpired 判断密钥在 now 时刻是否已过期
func (k *APIKey) IsExpired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

// IsUsable 密钥仅在激活且未过期时可用
func (k *APIKey) IsUsable(now time.Time) bool {
	return k.IsActive && !k.IsExpired(now)
}

// MaskedKey 列表展示用，只保留前 8 个字符
func (k *APIKey) MaskedKey() string {
	if len(k.Key) <= 8 {
		return k.Key
	}
	return k.Key[:8] + "..."
}

// GenerateAPIKeyRequest 生成密钥请求
type GenerateAPIKeyRequest struct {
	Name       string `json:"name" form:"name"`
	ExpiryDays int    `json:"expiryDays" form:"expiry_days"`
}
