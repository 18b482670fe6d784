package httptransport

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"mediadl/backend/internal/domain"
	"mediadl/backend/internal/downloader"
)

//go:embed templates/*.html
var templateFS embed.FS

// loadTemplates 解析内嵌的页面模板
func loadTemplates() *template.Template {
	return template.Must(template.ParseFS(templateFS, "templates/*.html"))
}

// PlatformCatalog 已注册的平台，由 downloader.Manager 实现
type PlatformCatalog interface {
	Platforms() []domain.Platform
	Searcher(platform domain.Platform) (downloader.Searcher, error)
}

// PublicHandler 公开页面与接口（无需认证）
type PublicHandler struct {
	catalog PlatformCatalog
}

// NewPublicHandler 创建公开处理器
func NewPublicHandler(catalog PlatformCatalog) *PublicHandler {
	return &PublicHandler{catalog: catalog}
}

// platformInfo 平台能力
type platformInfo struct {
	ID        domain.Platform `json:"id"`
	Name      string          `json:"name"`
	Search    bool            `json:"search"`
	Endpoint  string          `json:"endpoint"`
	Formats   []domain.Format `json:"formats"`
	Qualities []string        `json:"qualities"`
}

func (h *PublicHandler) platforms() []platformInfo {
	registered := h.catalog.Platforms()
	infos := make([]platformInfo, 0, len(registered))
	for _, p := range registered {
		_, err := h.catalog.Searcher(p)
		infos = append(infos, platformInfo{
			ID:        p,
			Name:      p.Title(),
			Search:    err == nil,
			Endpoint:  "/api/download/" + string(p),
			Formats:   []domain.Format{domain.FormatVideo, domain.FormatAudio},
			Qualities: []string{"best", "720p", "480p", "360p"},
		})
	}
	return infos
}

// Index 首页
func (h *PublicHandler) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Platforms": h.platforms(),
	})
}

// Docs API 文档页
func (h *PublicHandler) Docs(c *gin.Context) {
	c.HTML(http.StatusOK, "docs.html", gin.H{
		"Platforms": h.platforms(),
		"Host":      c.Request.Host,
	})
}

// Platforms godoc
// @Summary 获取支持的平台
// @Description 返回已注册的平台、是否支持搜索以及 API Key 下载入口
// @Tags Public
// @Produce json
// @Success 200 {object} Response{data=object{platforms=[]platformInfo,count=int}}
// @Router /api/platforms [get]
func (h *PublicHandler) Platforms(c *gin.Context) {
	infos := h.platforms()
	Success(c, gin.H{
		"platforms": infos,
		"count":     len(infos),
	})
}
