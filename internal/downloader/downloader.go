// Package downloader 封装各平台的媒体下载与搜索实现
package downloader

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"mediadl/backend/internal/config"
	"mediadl/backend/internal/domain"
)

// Progress 下载进度快照
type Progress struct {
	DownloadedBytes int64   `json:"downloadedBytes"`
	TotalBytes      int64   `json:"totalBytes"` // 未知时为 0
	Percent         float64 `json:"percent"`
	BytesPerSecond  float64 `json:"bytesPerSecond"`
}

// ProgressFunc 进度回调，可能在下载协程中被并发调用
type ProgressFunc func(Progress)

// Request 单次下载参数
type Request struct {
	ID       string         // 下载ID，抓取类下载器用它命名文件
	URL      string
	Format   domain.Format
	Quality  domain.Quality
	Progress ProgressFunc // 可选
}

// Result 下载器返回的结果
type Result struct {
	Title    string
	FilePath string // 下载器认定的输出文件，后处理可能改变扩展名
}

// Downloader 平台下载器
type Downloader interface {
	Platform() domain.Platform
	Download(ctx context.Context, req Request, dir string) (*Result, error)
}

// Searcher 平台搜索
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error)
}

// Manager 按平台分发下载与搜索
type Manager struct {
	mu          sync.RWMutex
	downloaders map[domain.Platform]Downloader
	searchers   map[domain.Platform]Searcher
}

// NewManager 创建管理器并注册给定的下载器，同时实现 Searcher 的下载器会注册为搜索实现
func NewManager(downloaders ...Downloader) *Manager {
	m := &Manager{
		downloaders: make(map[domain.Platform]Downloader),
		searchers:   make(map[domain.Platform]Searcher),
	}
	for _, d := range downloaders {
		m.Register(d)
	}
	return m
}

// New 根据配置组装全部平台的下载器
//
// YouTube 后端由 download.youtube_backend 决定；native 后端不支持搜索，
// 此时仍使用 yt-dlp 提供搜索
func New(cfg config.DownloadConfig, log *zap.Logger) (*Manager, error) {
	ytdlp := NewYtdlpDownloader(cfg, log)
	scraper := newScraper(cfg)

	m := NewManager(
		NewInstagramDownloader(scraper, log),
		NewTikTokDownloader(scraper, log),
	)

	switch cfg.YouTubeBackend {
	case "", "ytdlp":
		m.Register(ytdlp)
	case "native":
		m.Register(NewNativeYouTubeDownloader(cfg, log))
		m.RegisterSearcher(domain.PlatformYouTube, ytdlp)
	default:
		return nil, fmt.Errorf("unknown youtube backend: %s", cfg.YouTubeBackend)
	}

	return m, nil
}

// Register 注册下载器，同平台的旧实现会被替换
func (m *Manager) Register(d Downloader) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.downloaders[d.Platform()] = d
	if s, ok := d.(Searcher); ok {
		m.searchers[d.Platform()] = s
	}
}

// RegisterSearcher 为平台单独注册搜索实现
func (m *Manager) RegisterSearcher(platform domain.Platform, s Searcher) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.searchers[platform] = s
}

// Downloader 获取平台下载器
func (m *Manager) Downloader(platform domain.Platform) (Downloader, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	d, ok := m.downloaders[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedPlatform, platform)
	}
	return d, nil
}

// Searcher 获取平台搜索实现
func (m *Manager) Searcher(platform domain.Platform) (Searcher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.searchers[platform]
	if !ok {
		return nil, fmt.Errorf("%w for %s", domain.ErrSearchUnsupported, platform)
	}
	return s, nil
}

// Download 按平台分发下载
func (m *Manager) Download(ctx context.Context, platform domain.Platform, req Request, dir string) (*Result, error) {
	d, err := m.Downloader(platform)
	if err != nil {
		return nil, err
	}
	return d.Download(ctx, req, dir)
}

// Platforms 已注册下载器的平台列表
func (m *Manager) Platforms() []domain.Platform {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Platform, 0, len(m.downloaders))
	for p := range m.downloaders {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// report 计算百分比后回调，fn 为空时忽略
func report(fn ProgressFunc, downloaded, total int64, bytesPerSecond float64) {
	if fn == nil {
		return
	}
	p := Progress{
		DownloadedBytes: downloaded,
		TotalBytes:      total,
		BytesPerSecond:  bytesPerSecond,
	}
	if total > 0 {
		p.Percent = float64(downloaded) / float64(total) * 100
	}
	fn(p)
}
