package domain

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
)

// 验证相关的错误定义
var (
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrEmailTooLong     = errors.New("email address too long")
	ErrPasswordTooShort = errors.New("password too short (min 8 chars)")
	ErrPasswordTooLong  = errors.New("password too long (max 72 bytes)")
	ErrUsernameTooShort = errors.New("username too short (min 3 chars)")
	ErrUsernameTooLong  = errors.New("username too long (max 32 chars)")
	ErrInvalidUsername  = errors.New("invalid username format")
	ErrInvalidURL       = errors.New("invalid media url")
)

// 验证常量
const (
	MaxEmailLength = 254

	// bcrypt 只处理前 72 字节
	MinPasswordLength = 8
	MaxPasswordLength = 72

	MinUsernameLength = 3
	MaxUsernameLength = 32
)

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.\-]+$`)
)

// platformHosts 各平台允许的域名（含子域名）
var platformHosts = map[Platform][]string{
	PlatformYouTube:   {"youtube.com", "youtu.be", "youtube-nocookie.com"},
	PlatformInstagram: {"instagram.com", "instagr.am"},
	PlatformTikTok:    {"tiktok.com"},
}

// ValidateEmail 校验邮箱格式
func ValidateEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" || len(email) > MaxEmailLength {
		return false
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return false
	}
	return emailRegex.MatchString(email)
}

// ValidateUsername 校验用户名
func ValidateUsername(username string) error {
	if len(username) < MinUsernameLength {
		return ErrUsernameTooShort
	}
	if len(username) > MaxUsernameLength {
		return ErrUsernameTooLong
	}
	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// ValidatePassword 校验密码长度
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

// ValidatePlatformURL 校验媒体链接是否属于指定平台
//
// 参数:
//   - platform: 目标平台
//   - raw: 用户提交的链接
//
// 返回值:
//   - error: 链接为空、协议非 http(s) 或域名不匹配时返回 ErrInvalidURL
func ValidatePlatformURL(platform Platform, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ErrURLRequired
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}

	hosts, ok := platformHosts[platform]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedPlatform, platform)
	}

	host := strings.ToLower(u.Hostname())
	for _, h := range hosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q is not a %s link", ErrInvalidURL, host, platform.Title())
}

// DetectPlatform 根据链接域名识别平台，用于未指定 platform 的下载请求
func DetectPlatform(raw string) (Platform, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	host := strings.ToLower(u.Hostname())
	for _, p := range Platforms {
		for _, h := range platformHosts[p] {
			if host == h || strings.HasSuffix(host, "."+h) {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, host)
}
