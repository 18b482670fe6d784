package downloader

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"mediadl/backend/internal/domain"
)

var tiktokPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"downloadAddr":"([^"]+)"`),
	regexp.MustCompile(`"playAddr":"([^"]+)"`),
	regexp.MustCompile(`<video src="([^"]+)"`),
	regexp.MustCompile(`src="([^"]+\.mp4)"`),
}

// TikTokDownloader 从 TikTok 页面中提取视频直链并下载
type TikTokDownloader struct {
	scraper *scraper
	log     *zap.Logger
}

// NewTikTokDownloader 创建 TikTok 下载器
func NewTikTokDownloader(s *scraper, log *zap.Logger) *TikTokDownloader {
	if log == nil {
		log = zap.NewNop()
	}
	return &TikTokDownloader{scraper: s, log: log.Named("tiktok")}
}

// Platform 实现 Downloader
func (d *TikTokDownloader) Platform() domain.Platform {
	return domain.PlatformTikTok
}

// Download 实现 Downloader
func (d *TikTokDownloader) Download(ctx context.Context, req Request, dir string) (*Result, error) {
	result, err := d.scraper.mediaDownload(ctx, domain.PlatformTikTok, tiktokPatterns, unescapeTikTokURL, req, dir)
	if err != nil {
		d.log.Warn("下载失败", zap.String("url", req.URL), zap.Error(err))
		return nil, err
	}
	return result, nil
}

func unescapeTikTokURL(s string) string {
	return strings.ReplaceAll(s, `\u002F`, "/")
}
