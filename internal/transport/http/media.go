package httptransport

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mediadl/backend/internal/domain"
	"mediadl/backend/internal/middleware"
	"mediadl/backend/internal/storage/filesystem"
)

// MediaService 搜索与下载，由 service.MediaService 实现
type MediaService interface {
	Search(ctx context.Context, query string, platform domain.Platform) ([]domain.SearchResult, error)
	Download(ctx context.Context, userID string, req domain.DownloadRequest) (*domain.DownloadResult, error)
	Open(id string) (*domain.DownloadResult, error)
}

// MediaHandler 搜索、下载与文件下发
type MediaHandler struct {
	media MediaService
	log   *zap.Logger
}

// NewMediaHandler 创建媒体处理器
func NewMediaHandler(media MediaService, log *zap.Logger) *MediaHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &MediaHandler{
		media: media,
		log:   log.Named("media-handler"),
	}
}

// legacyMessage 下载接口沿用的英文错误消息
func legacyMessage(err error, platform domain.Platform) string {
	switch {
	case errors.Is(err, domain.ErrEmptyQuery):
		return "No search query provided"
	case errors.Is(err, domain.ErrURLRequired):
		return "No URL provided"
	case errors.Is(err, domain.ErrSearchUnsupported):
		return "Search not supported for " + platform.Title()
	case errors.Is(err, domain.ErrUnsupportedPlatform):
		return "Unsupported platform"
	default:
		return err.Error()
	}
}

// downloadResponse 下载成功的响应字段
type downloadResponse struct {
	Success     bool   `json:"success"`
	ID          string `json:"id"`
	Title       string `json:"title"`
	FileName    string `json:"file_name"`
	Size        int64  `json:"size"`
	SizeHuman   string `json:"size_human"`
	DownloadURL string `json:"download_url"`
}

func newDownloadResponse(r *domain.DownloadResult) downloadResponse {
	return downloadResponse{
		Success:     true,
		ID:          r.ID,
		Title:       r.Title,
		FileName:    r.FileName,
		Size:        r.Size,
		SizeHuman:   humanize.Bytes(uint64(r.Size)),
		DownloadURL: "/download/" + r.ID,
	}
}

// parseOptions 解析 format 与 quality 查询参数
func parseOptions(c *gin.Context) (domain.Format, domain.Quality, error) {
	format, err := domain.ParseFormat(c.Query("format"))
	if err != nil {
		return "", "", err
	}
	quality, err := domain.ParseQuality(c.Query("quality"))
	if err != nil {
		return "", "", err
	}
	return format, quality, nil
}

// Search godoc
// @Summary 搜索媒体
// @Description 目前只有 YouTube 支持搜索，默认返回 5 条
// @Tags 下载
// @Produce json
// @Param q query string true "关键词"
// @Param platform query string false "平台" default(youtube)
// @Success 200 {object} object{success=bool,results=[]domain.SearchResult}
// @Failure 400 {object} object{success=bool,error=string,code=string}
// @Router /api/search [get]
func (h *MediaHandler) Search(c *gin.Context) {
	var platform domain.Platform
	if raw := c.Query("platform"); raw != "" {
		p, err := domain.ParsePlatform(raw)
		if err != nil {
			legacyError(c, http.StatusBadRequest, ErrCodeUnsupportedPlatform, legacyMessage(err, ""))
			return
		}
		platform = p
	}

	results, err := h.media.Search(c.Request.Context(), c.Query("q"), platform)
	if err != nil {
		status, code := classifyError(err)
		legacyError(c, status, code, legacyMessage(err, platform))
		return
	}

	if results == nil {
		results = []domain.SearchResult{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"results": results,
	})
}

// Download godoc
// @Summary 下载媒体
// @Description 同步下载，完成后返回文件地址；携带登录会话时记录下载历史
// @Tags 下载
// @Produce json
// @Param url query string true "媒体链接"
// @Param platform query string false "平台，留空时按域名识别"
// @Param format query string false "video 或 audio" default(video)
// @Param quality query string false "best、720p、480p、360p" default(best)
// @Success 200 {object} downloadResponse
// @Failure 400 {object} object{success=bool,error=string,code=string}
// @Failure 502 {object} object{success=bool,error=string,code=string}
// @Router /api/download [get]
func (h *MediaHandler) Download(c *gin.Context) {
	rawURL := c.Query("url")
	if rawURL == "" {
		legacyError(c, http.StatusBadRequest, ErrCodeInvalidInput, legacyMessage(domain.ErrURLRequired, ""))
		return
	}

	var (
		platform domain.Platform
		err      error
	)
	if raw := c.Query("platform"); raw != "" {
		platform, err = domain.ParsePlatform(raw)
	} else {
		platform, err = domain.DetectPlatform(rawURL)
	}
	if err != nil {
		status, code := classifyError(err)
		legacyError(c, status, code, legacyMessage(err, ""))
		return
	}

	format, quality, err := parseOptions(c)
	if err != nil {
		legacyError(c, http.StatusBadRequest, ErrCodeInvalidInput, err.Error())
		return
	}

	result, err := h.media.Download(c.Request.Context(), middleware.CurrentUserID(c), domain.DownloadRequest{
		URL:      rawURL,
		Platform: platform,
		Format:   format,
		Quality:  quality,
	})
	if err != nil {
		status, code := classifyError(err)
		legacyError(c, status, code, legacyMessage(err, platform))
		return
	}

	c.JSON(http.StatusOK, newDownloadResponse(result))
}

// PlatformDownload godoc
// @Summary 使用 API Key 下载
// @Description 每次调用都会记录下载历史；每个密钥单独限流
// @Tags 下载
// @Produce json
// @Security ApiKeyAuth
// @Param platform path string true "youtube、instagram 或 tiktok"
// @Param url query string true "媒体链接"
// @Param format query string false "video 或 audio" default(video)
// @Param quality query string false "best、720p、480p、360p" default(best)
// @Success 200 {object} object{success=bool,url=string,format=string,quality=string,title=string,download_url=string}
// @Failure 400 {object} object{error=string}
// @Failure 401 {object} object{error=string}
// @Failure 429 {object} object{error=string}
// @Router /api/download/{platform} [get]
func (h *MediaHandler) PlatformDownload(platform domain.Platform) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawURL := c.Query("url")
		if rawURL == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "URL parameter is required"})
			return
		}

		format, quality, err := parseOptions(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": ErrCodeInvalidInput})
			return
		}

		result, err := h.media.Download(c.Request.Context(), middleware.CurrentUserID(c), domain.DownloadRequest{
			URL:      rawURL,
			Platform: platform,
			Format:   format,
			Quality:  quality,
		})
		if err != nil {
			status, code := classifyError(err)
			c.JSON(status, gin.H{"error": legacyMessage(err, platform), "code": code})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":      true,
			"url":          rawURL,
			"format":       format,
			"quality":      quality,
			"title":        result.Title,
			"file_name":    result.FileName,
			"size":         result.Size,
			"download_url": "/download/" + result.ID,
		})
	}
}

// File godoc
// @Summary 获取下载文件
// @Description 以附件形式返回下载目录中的文件
// @Tags 下载
// @Produce octet-stream
// @Param id path string true "下载ID"
// @Success 200 {file} file
// @Failure 404 {object} object{error=string}
// @Router /download/{id} [get]
func (h *MediaHandler) File(c *gin.Context) {
	result, err := h.media.Open(c.Param("id"))
	if err != nil {
		if !errors.Is(err, domain.ErrDownloadNotFound) {
			h.log.Error("failed to open download", zap.String("id", c.Param("id")), zap.Error(err))
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}

	name := filesystem.SecureFilename(result.FileName)
	if name == "" || strings.HasPrefix(name, ".") {
		name = "download" + filesystem.SecureFilename(filepath.Ext(result.FileName))
	}
	c.FileAttachment(result.FilePath, name)
}
