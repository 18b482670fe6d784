package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"mediadl/backend/internal/config"
	"mediadl/backend/internal/domain"
	"mediadl/backend/internal/downloader"
	"mediadl/backend/internal/monitoring"
	"mediadl/backend/internal/pool"
	"mediadl/backend/internal/storage/filesystem"
	"mediadl/backend/internal/websocket"
)

// Downloads 按平台分发下载与搜索，由 downloader.Manager 实现
type Downloads interface {
	Download(ctx context.Context, platform domain.Platform, req downloader.Request, dir string) (*downloader.Result, error)
	Searcher(platform domain.Platform) (downloader.Searcher, error)
}

// ProgressPublisher 推送下载事件，由 websocket.Hub 实现
type ProgressPublisher interface {
	Publish(userID string, msgType websocket.MessageType, event websocket.DownloadEvent)
}

// Inspector 检查下载结果，由 security.MediaInspector 实现
type Inspector interface {
	Inspect(path string) (string, error)
}

// MediaDeps 媒体服务依赖
type MediaDeps struct {
	Downloads   Downloads
	Workspace   *filesystem.Store
	Pool        *pool.WorkerPool
	History     *HistoryService
	Progress    ProgressPublisher   // 可为 nil
	SearchCache SearchCache         // 可为 nil
	Inspector   Inspector           // 可为 nil，不检查文件类型
	Metrics     *monitoring.Metrics // 可为 nil
}

// MediaService 媒体下载与搜索服务
type MediaService struct {
	downloads      Downloads
	workspace      *filesystem.Store
	pool           *pool.WorkerPool
	history        *HistoryService
	progress       ProgressPublisher
	searchCache    SearchCache
	inspector      Inspector
	metrics        *monitoring.Metrics
	log            *zap.Logger
	requestTimeout time.Duration
	maxResults     int
	searchTTL      time.Duration
	searchTimeout  time.Duration
}

// NewMediaService 创建媒体服务
func NewMediaService(deps MediaDeps, dl config.DownloadConfig, search config.SearchConfig, log *zap.Logger) *MediaService {
	if log == nil {
		log = zap.NewNop()
	}
	requestTimeout := dl.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 10 * time.Minute
	}
	maxResults := search.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	return &MediaService{
		downloads:      deps.Downloads,
		workspace:      deps.Workspace,
		pool:           deps.Pool,
		history:        deps.History,
		progress:       deps.Progress,
		searchCache:    deps.SearchCache,
		inspector:      deps.Inspector,
		metrics:        deps.Metrics,
		log:            log.Named("media"),
		requestTimeout: requestTimeout,
		maxResults:     maxResults,
		searchTTL:      search.CacheTTL,
		searchTimeout:  time.Minute,
	}
}

// Download 下载媒体到新的工作目录并等待完成
//
// 参数:
//   - ctx: 请求上下文，客户端断开时下载被取消
//   - userID: 登录用户或 API Key 所属用户，为空表示匿名（不记录历史）
//   - req: 下载参数，Format/Quality 为空时取默认值
//
// 返回值:
//   - *domain.DownloadResult: 成功时的文件信息
//   - error: 参数错误或下载失败；失败的下载目录会被删除
func (s *MediaService) Download(ctx context.Context, userID string, req domain.DownloadRequest) (*domain.DownloadResult, error) {
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		return nil, domain.ErrURLRequired
	}
	if req.Format == "" {
		req.Format = domain.FormatVideo
	}
	if req.Quality == "" {
		req.Quality = domain.QualityBest
	}
	if err := domain.ValidatePlatformURL(req.Platform, req.URL); err != nil {
		return nil, err
	}

	id, dir, err := s.workspace.Reserve()
	if err != nil {
		return nil, err
	}

	event := websocket.DownloadEvent{
		DownloadID: id,
		Platform:   string(req.Platform),
		URL:        req.URL,
		Format:     string(req.Format),
	}
	s.publish(userID, websocket.MessageTypeDownloadStarted, event)

	start := time.Now()
	s.updatePoolMetrics()

	var result *downloader.Result
	err = s.pool.Do(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()

		s.updatePoolMetrics()
		r, err := s.downloads.Download(ctx, req.Platform, downloader.Request{
			ID:       id,
			URL:      req.URL,
			Format:   req.Format,
			Quality:  req.Quality,
			Progress: s.progressFunc(userID, event),
		}, dir)
		result = r
		return err
	})
	s.updatePoolMetrics()

	var out *domain.DownloadResult
	if err == nil {
		out, err = s.finalize(id, req, result)
	}
	if err != nil {
		s.fail(id, userID, req, event, time.Since(start), err)
		return nil, err
	}
	s.workspace.Release(id)

	s.history.Record(userID, req.Platform, req.URL, req.Format, domain.StatusSuccess)
	if s.metrics != nil {
		s.metrics.RecordDownload(string(req.Platform), string(req.Format), string(domain.StatusSuccess), time.Since(start), out.Size)
	}

	event.Title = out.Title
	event.TotalBytes = out.Size
	event.DownloadedBytes = out.Size
	event.Percent = 100
	event.DownloadURL = DownloadURL(out.ID)
	s.publish(userID, websocket.MessageTypeDownloadCompleted, event)

	s.log.Info("download completed",
		zap.String("id", id),
		zap.String("platform", string(req.Platform)),
		zap.String("format", string(req.Format)),
		zap.String("size", humanize.Bytes(uint64(out.Size))),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// finalize 在目录仍处于下载中状态时定位输出文件
func (s *MediaService) finalize(id string, req domain.DownloadRequest, result *downloader.Result) (*domain.DownloadResult, error) {
	path, info, err := s.workspace.FirstFile(id)
	if err != nil {
		if errors.Is(err, domain.ErrDownloadNotFound) {
			return nil, fmt.Errorf("%w: download produced no file", domain.ErrMediaNotFound)
		}
		return nil, err
	}
	if s.inspector != nil {
		if _, err := s.inspector.Inspect(path); err != nil {
			return nil, err
		}
	}

	title := "Unknown"
	if result != nil && result.Title != "" {
		title = result.Title
	}

	return &domain.DownloadResult{
		ID:       id,
		Title:    title,
		FileName: filepath.Base(path),
		FilePath: path,
		Size:     info.Size(),
		Platform: req.Platform,
		Format:   req.Format,
	}, nil
}

// fail 清理失败的下载并记录
func (s *MediaService) fail(id, userID string, req domain.DownloadRequest, event websocket.DownloadEvent, elapsed time.Duration, err error) {
	if rmErr := s.workspace.Remove(id); rmErr != nil {
		s.log.Warn("failed to remove download directory", zap.String("id", id), zap.Error(rmErr))
	}

	s.history.Record(userID, req.Platform, req.URL, req.Format, domain.StatusFailed)
	if s.metrics != nil {
		s.metrics.RecordDownload(string(req.Platform), string(req.Format), string(domain.StatusFailed), elapsed, 0)
	}

	event.Error = err.Error()
	s.publish(userID, websocket.MessageTypeDownloadFailed, event)

	s.log.Warn("download failed",
		zap.String("id", id),
		zap.String("platform", string(req.Platform)),
		zap.String("url", req.URL),
		zap.Error(err),
	)
}

// Open 定位已完成下载的文件，用于 /download/<id>
func (s *MediaService) Open(id string) (*domain.DownloadResult, error) {
	path, info, err := s.workspace.FirstFile(id)
	if err != nil {
		return nil, err
	}
	return &domain.DownloadResult{
		ID:       id,
		FileName: filepath.Base(path),
		FilePath: path,
		Size:     info.Size(),
	}, nil
}

// DownloadURL 下载文件的相对地址
func DownloadURL(id string) string {
	return "/download/" + id
}

func (s *MediaService) publish(userID string, msgType websocket.MessageType, event websocket.DownloadEvent) {
	if s.progress == nil || userID == "" {
		return
	}
	s.progress.Publish(userID, msgType, event)
}

// progressFunc 将下载器进度转换为 WebSocket 事件，匿名下载不推送
func (s *MediaService) progressFunc(userID string, base websocket.DownloadEvent) downloader.ProgressFunc {
	if s.progress == nil || userID == "" {
		return nil
	}
	return func(p downloader.Progress) {
		event := base
		event.DownloadedBytes = p.DownloadedBytes
		event.TotalBytes = p.TotalBytes
		event.Percent = p.Percent
		if p.BytesPerSecond > 0 {
			event.Speed = humanize.Bytes(uint64(p.BytesPerSecond)) + "/s"
		}
		s.progress.Publish(userID, websocket.MessageTypeDownloadProgress, event)
	}
}

func (s *MediaService) updatePoolMetrics() {
	if s.metrics != nil {
		s.metrics.UpdateDownloadPool(s.pool.Active(), s.pool.Queued())
	}
}
