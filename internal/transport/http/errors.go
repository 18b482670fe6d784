package httptransport

import (
	"context"
	"errors"
	"net/http"

	"mediadl/backend/internal/auth"
	"mediadl/backend/internal/domain"
	"mediadl/backend/internal/pool"
	"mediadl/backend/internal/service"
	"mediadl/backend/internal/storage"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// 认证错误
	auth.ErrInvalidCredentials: MsgInvalidCredentials,
	auth.ErrUserInactive:       "账户已被禁用",
	storage.ErrUserNotFound:    MsgUserNotFound,
	storage.ErrUsernameExists:  "用户名已被占用",
	storage.ErrEmailExists:     "该邮箱已被注册",

	// 校验错误
	domain.ErrInvalidEmail:     "邮箱格式无效",
	domain.ErrEmailTooLong:     "邮箱地址过长",
	domain.ErrPasswordTooShort: "密码至少 8 个字符",
	domain.ErrPasswordTooLong:  "密码不能超过 72 字节",
	domain.ErrUsernameTooShort: "用户名至少 3 个字符",
	domain.ErrUsernameTooLong:  "用户名不能超过 32 个字符",
	domain.ErrInvalidUsername:  "用户名只能包含字母、数字、下划线、点和连字符",

	// API Key 错误
	service.ErrAPIKeyNotFound: MsgAPIKeyNotFound,
	service.ErrInvalidExpiry:  "有效天数超出允许范围",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	for target, msg := range errorMessages {
		if errors.Is(err, target) {
			return msg
		}
	}
	return err.Error()
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest = "请求参数格式错误"

	// 认证相关
	MsgAuthRequired       = "需要登录认证"
	MsgInvalidCredentials = "用户名或密码错误"
	MsgTokenInvalid       = "无效的刷新令牌"
	MsgUserNotFound       = "用户不存在"

	// API Key相关
	MsgAPIKeyCreateFailed = "创建API Key失败"
	MsgAPIKeyListFailed   = "获取API Key列表失败"
	MsgAPIKeyNotFound     = "API Key不存在"
	MsgAPIKeyRevokeFailed = "吊销API Key失败"

	// 仪表盘
	MsgHistoryFailed = "获取下载历史失败"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)

// 下载接口的错误码
const (
	ErrCodeInvalidInput        = "invalid_input"
	ErrCodeUnsupportedPlatform = "unsupported_platform"
	ErrCodeMediaNotFound       = "media_not_found"
	ErrCodeNetwork             = "network_error"
	ErrCodeParse               = "parse_error"
	ErrCodeFileTooLarge        = "file_too_large"
	ErrCodeUnsafeMedia         = "unsafe_media"
	ErrCodeTimeout             = "timeout"
	ErrCodeUnavailable         = "unavailable"
	ErrCodeInternal            = "internal_error"
)

// classifyError 将下载与搜索错误映射为 HTTP 状态码与错误码
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnsupportedPlatform),
		errors.Is(err, domain.ErrSearchUnsupported):
		return http.StatusBadRequest, ErrCodeUnsupportedPlatform
	case errors.Is(err, domain.ErrURLRequired),
		errors.Is(err, domain.ErrEmptyQuery),
		errors.Is(err, domain.ErrInvalidURL),
		errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, ErrCodeInvalidInput
	case errors.Is(err, domain.ErrMediaNotFound),
		errors.Is(err, domain.ErrDownloadNotFound):
		return http.StatusNotFound, ErrCodeMediaNotFound
	case errors.Is(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, ErrCodeFileTooLarge
	case errors.Is(err, domain.ErrMediaURLNotFound),
		errors.Is(err, domain.ErrParse):
		return http.StatusBadGateway, ErrCodeParse
	case errors.Is(err, domain.ErrUnsafeMedia):
		return http.StatusBadGateway, ErrCodeUnsafeMedia
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrCodeTimeout
	case errors.Is(err, domain.ErrNetwork):
		return http.StatusBadGateway, ErrCodeNetwork
	case errors.Is(err, pool.ErrPoolStopped):
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// accountStatus 账户接口的错误状态码
func accountStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrUsernameExists), errors.Is(err, storage.ErrEmailExists):
		return http.StatusConflict
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUserInactive):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrAPIKeyNotFound), errors.Is(err, storage.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidExpiry),
		errors.Is(err, domain.ErrInvalidEmail),
		errors.Is(err, domain.ErrEmailTooLong),
		errors.Is(err, domain.ErrPasswordTooShort),
		errors.Is(err, domain.ErrPasswordTooLong),
		errors.Is(err, domain.ErrUsernameTooShort),
		errors.Is(err, domain.ErrUsernameTooLong),
		errors.Is(err, domain.ErrInvalidUsername):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
