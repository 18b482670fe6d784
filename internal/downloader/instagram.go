package downloader

import (
	"context"
	"html"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"mediadl/backend/internal/domain"
)

// instagramPatterns 依次尝试的视频直链匹配规则
var instagramPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"video_url":"([^"]+)"`),
	regexp.MustCompile(`<meta property="og:video" content="([^"]+)"`),
	regexp.MustCompile(`src="([^"]+\.mp4)"`),
}

// InstagramDownloader 从 Instagram 页面中提取视频直链并下载
type InstagramDownloader struct {
	scraper *scraper
	log     *zap.Logger
}

// NewInstagramDownloader 创建 Instagram 下载器
func NewInstagramDownloader(s *scraper, log *zap.Logger) *InstagramDownloader {
	if log == nil {
		log = zap.NewNop()
	}
	return &InstagramDownloader{scraper: s, log: log.Named("instagram")}
}

// Platform 实现 Downloader
func (d *InstagramDownloader) Platform() domain.Platform {
	return domain.PlatformInstagram
}

// Download 实现 Downloader
func (d *InstagramDownloader) Download(ctx context.Context, req Request, dir string) (*Result, error) {
	result, err := d.scraper.mediaDownload(ctx, domain.PlatformInstagram, instagramPatterns, unescapeInstagramURL, req, dir)
	if err != nil {
		d.log.Warn("下载失败", zap.String("url", req.URL), zap.Error(err))
		return nil, err
	}
	return result, nil
}

// unescapeInstagramURL 还原 JSON 与 HTML 中转义过的直链
func unescapeInstagramURL(s string) string {
	s = strings.ReplaceAll(s, `\u0026`, "&")
	s = strings.ReplaceAll(s, `\/`, "/")
	return html.UnescapeString(s)
}
