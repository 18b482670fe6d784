package httptransport

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mediadl/backend/internal/domain"
	"mediadl/backend/internal/middleware"
	"mediadl/backend/internal/service"
)

// APIKeyHandler API Key管理处理器
type APIKeyHandler struct {
	apiKeyService *service.APIKeyService
	log           *zap.Logger
	now           func() time.Time
}

// NewAPIKeyHandler 创建API Key处理器
func NewAPIKeyHandler(apiKeyService *service.APIKeyService, log *zap.Logger) *APIKeyHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &APIKeyHandler{
		apiKeyService: apiKeyService,
		log:           log.Named("apikey-handler"),
		now:           time.Now,
	}
}

// generateAPIKeyRequest 生成API Key请求，表单与 JSON 均可
type generateAPIKeyRequest struct {
	Name       string `json:"name" form:"name"`
	ExpiryDays int    `json:"expiry_days" form:"expiry_days"` // 0 表示默认 30 天
}

// apiKeyResponse API Key响应
type apiKeyResponse struct {
	ID         string     `json:"id"`
	Key        string     `json:"key"`
	Name       string     `json:"name"`
	IsActive   bool       `json:"isActive"`
	Expired    bool       `json:"expired"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	Expires    string     `json:"expires"` // 如 "3 weeks from now"
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

// toAPIKeyResponse 转换响应，reveal 为 false 时只展示密钥前缀
func (h *APIKeyHandler) toAPIKeyResponse(k *domain.APIKey, reveal bool) apiKeyResponse {
	key := k.MaskedKey()
	if reveal {
		key = k.Key
	}
	now := h.now()
	return apiKeyResponse{
		ID:         k.ID,
		Key:        key,
		Name:       k.Name,
		IsActive:   k.IsActive,
		Expired:    k.IsExpired(now),
		CreatedAt:  k.CreatedAt,
		ExpiresAt:  k.ExpiresAt,
		Expires:    humanize.RelTime(k.ExpiresAt, now, "ago", "from now"),
		LastUsedAt: k.LastUsedAt,
	}
}

func (h *APIKeyHandler) toAPIKeyResponses(keys []*domain.APIKey) []apiKeyResponse {
	out := make([]apiKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, h.toAPIKeyResponse(k, false))
	}
	return out
}

// ListAPIKeys godoc
// @Summary 列出API Key
// @Description 列出当前用户的全部密钥，密钥只展示前缀
// @Tags APIKeys
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=[]apiKeyResponse}
// @Failure 401 {object} Response
// @Router /api-keys [get]
func (h *APIKeyHandler) ListAPIKeys(c *gin.Context) {
	keys, err := h.apiKeyService.List(middleware.CurrentUserID(c))
	if err != nil {
		h.log.Error("failed to list api keys", zap.Error(err))
		InternalError(c, MsgAPIKeyListFailed)
		return
	}
	Success(c, h.toAPIKeyResponses(keys))
}

// GenerateAPIKey godoc
// @Summary 生成API Key
// @Description 完整密钥只在本次响应中返回
// @Tags APIKeys
// @Accept json,x-www-form-urlencoded
// @Produce json
// @Security BearerAuth
// @Param request body generateAPIKeyRequest false "名称与有效天数"
// @Success 201 {object} Response{data=apiKeyResponse}
// @Failure 400 {object} Response
// @Failure 401 {object} Response
// @Router /generate-api-key [post]
func (h *APIKeyHandler) GenerateAPIKey(c *gin.Context) {
	var req generateAPIKeyRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	apiKey, err := h.apiKeyService.Generate(service.GenerateInput{
		UserID:     middleware.CurrentUserID(c),
		Name:       req.Name,
		ExpiryDays: req.ExpiryDays,
	})
	if err != nil {
		status := accountStatus(err)
		if status == http.StatusInternalServerError {
			h.log.Error("failed to generate api key", zap.Error(err))
			InternalError(c, MsgAPIKeyCreateFailed)
			return
		}
		Error(c, status, GetErrorMessage(err))
		return
	}

	CreatedWithMsg(c, "API Key 已生成，请立即保存，之后将无法再次查看", h.toAPIKeyResponse(apiKey, true))
}

// RevokeAPIKey godoc
// @Summary 吊销API Key
// @Description 置为未激活，不删除；只能吊销自己的密钥
// @Tags APIKeys
// @Produce json
// @Security BearerAuth
// @Param id path string true "API Key ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /revoke-api-key/{id} [post]
func (h *APIKeyHandler) RevokeAPIKey(c *gin.Context) {
	err := h.apiKeyService.Revoke(middleware.CurrentUserID(c), c.Param("id"))
	if err != nil {
		status := accountStatus(err)
		if status == http.StatusInternalServerError {
			h.log.Error("failed to revoke api key", zap.Error(err))
			InternalError(c, MsgAPIKeyRevokeFailed)
			return
		}
		Error(c, status, GetErrorMessage(err))
		return
	}
	SuccessWithMsg(c, "API Key 已吊销", nil)
}
