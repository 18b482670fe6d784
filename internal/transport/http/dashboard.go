package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mediadl/backend/internal/domain"
	"mediadl/backend/internal/middleware"
	"mediadl/backend/internal/service"
)

// DashboardHandler 用户仪表盘
type DashboardHandler struct {
	keys    *APIKeyHandler
	history *service.HistoryService
	log     *zap.Logger
}

// NewDashboardHandler 创建仪表盘处理器
func NewDashboardHandler(keys *APIKeyHandler, history *service.HistoryService, log *zap.Logger) *DashboardHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &DashboardHandler{
		keys:    keys,
		history: history,
		log:     log.Named("dashboard"),
	}
}

type dashboardResponse struct {
	User       *domain.User              `json:"user"`
	APIKeys    []apiKeyResponse          `json:"api_keys"`
	ActiveKeys int                       `json:"active_keys"` // 激活且未过期
	History    []*domain.DownloadHistory `json:"download_history"`
	Stats      *domain.HistoryStats      `json:"stats"`
}

// Dashboard godoc
// @Summary 仪表盘
// @Description 当前用户、密钥列表、最近 10 条下载记录与统计
// @Tags 账户
// @Produce json
// @Security BearerAuth
// @Success 200 {object} Response{data=dashboardResponse}
// @Failure 401 {object} Response
// @Router /dashboard [get]
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	user := middleware.CurrentUser(c)
	if user == nil {
		Unauthorized(c, MsgAuthRequired)
		return
	}

	keys, err := h.keys.apiKeyService.List(user.ID)
	if err != nil {
		h.log.Error("failed to list api keys", zap.Error(err))
		InternalError(c, MsgAPIKeyListFailed)
		return
	}

	history, err := h.history.Recent(user.ID, service.RecentHistoryLimit)
	if err != nil {
		h.log.Error("failed to load history", zap.Error(err))
		InternalError(c, MsgHistoryFailed)
		return
	}

	stats, err := h.history.Stats(user.ID)
	if err != nil {
		h.log.Error("failed to load history stats", zap.Error(err))
		InternalError(c, MsgHistoryFailed)
		return
	}

	now := h.keys.now()
	active := 0
	for _, k := range keys {
		if k.IsUsable(now) {
			active++
		}
	}

	Success(c, dashboardResponse{
		User:       user,
		APIKeys:    h.keys.toAPIKeyResponses(keys),
		ActiveKeys: active,
		History:    history,
		Stats:      stats,
	})
}
