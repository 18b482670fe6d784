package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"golang.org/x/time/rate"

	"mediadl/backend/internal/config"
	"mediadl/backend/internal/domain"
	"mediadl/backend/internal/storage/filesystem"
)

const (
	defaultUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	defaultPageTimeout  = 30 * time.Second
	maxPageBytes        = 10 << 20
	progressReportEvery = 500 * time.Millisecond
)

// scraper 抓取页面并提取媒体直链，Instagram 与 TikTok 共用
//
// 所有出站请求共享同一个限速器
type scraper struct {
	client      *http.Client
	limiter     *rate.Limiter
	userAgent   string
	pageTimeout time.Duration
	maxFileSize int64
}

func newScraper(cfg config.DownloadConfig) *scraper {
	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	limit := rate.Limit(cfg.ScrapeRate)
	if cfg.ScrapeRate <= 0 {
		limit = rate.Inf
	}
	burst := cfg.ScrapeBurst
	if burst <= 0 {
		burst = 1
	}

	return &scraper{
		client:      &http.Client{},
		limiter:     rate.NewLimiter(limit, burst),
		userAgent:   ua,
		pageTimeout: defaultPageTimeout,
		maxFileSize: cfg.MaxFileSize,
	}
}

// get 发起限速的 GET 请求，非 2xx 状态码转换为领域错误
func (s *scraper) get(ctx context.Context, rawURL string) (*http.Response, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		// Wait 在预计等待超过截止时间时提前返回，同样视为超时
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: rate limiter: %w", domain.ErrNetwork, ctxErr)
		}
		if _, ok := ctx.Deadline(); ok {
			return nil, fmt.Errorf("%w: %w: rate limiter: %v", domain.ErrNetwork, context.DeadlineExceeded, err)
		}
		return nil, fmt.Errorf("%w: rate limiter: %v", domain.ErrNetwork, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned %d", domain.ErrMediaNotFound, rawURL, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned %d", domain.ErrNetwork, rawURL, resp.StatusCode)
	}

	return resp, nil
}

// fetchPage 下载页面内容，超过 maxPageBytes 的部分被截断
func (s *scraper) fetchPage(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.pageTimeout)
	defer cancel()

	resp, err := s.get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read page: %w", domain.ErrNetwork, err)
	}
	return string(body), nil
}

// findMediaURL 按顺序尝试正则，返回第一个匹配的捕获组
func findMediaURL(page string, patterns []*regexp.Regexp, unescape func(string) string) (string, error) {
	for _, pattern := range patterns {
		match := pattern.FindStringSubmatch(page)
		if len(match) < 2 || match[1] == "" {
			continue
		}
		if unescape != nil {
			return unescape(match[1]), nil
		}
		return match[1], nil
	}
	return "", domain.ErrMediaURLNotFound
}

// saveMedia 将媒体直链流式写入 path
func (s *scraper) saveMedia(ctx context.Context, mediaURL, path string, progress ProgressFunc) (int64, error) {
	resp, err := s.get(ctx, mediaURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if s.maxFileSize > 0 && resp.ContentLength > s.maxFileSize {
		return 0, fmt.Errorf("%w: %d bytes", domain.ErrFileTooLarge, resp.ContentLength)
	}

	return writeStream(resp.Body, path, resp.ContentLength, s.maxFileSize, progress)
}

// writeStream 写入文件并周期性回调进度；超过 maxSize 时删除文件并返回 ErrFileTooLarge
func writeStream(r io.Reader, path string, total, maxSize int64, progress ProgressFunc) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}

	if maxSize > 0 {
		r = io.LimitReader(r, maxSize+1)
	}

	w := &progressWriter{
		w:        f,
		total:    total,
		progress: progress,
		started:  time.Now(),
	}
	written, copyErr := io.Copy(w, r)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		os.Remove(path)
		return written, fmt.Errorf("%w: %w", domain.ErrNetwork, copyErr)
	case maxSize > 0 && written > maxSize:
		os.Remove(path)
		return written, fmt.Errorf("%w: more than %d bytes", domain.ErrFileTooLarge, maxSize)
	case closeErr != nil:
		os.Remove(path)
		return written, closeErr
	}

	w.flush()
	return written, nil
}

// progressWriter 统计写入字节数并按间隔回调
type progressWriter struct {
	w          io.Writer
	written    int64
	total      int64
	progress   ProgressFunc
	started    time.Time
	lastReport time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)

	if p.progress != nil && time.Since(p.lastReport) >= progressReportEvery {
		p.flush()
	}
	return n, err
}

func (p *progressWriter) flush() {
	if p.progress == nil {
		return
	}
	p.lastReport = time.Now()

	var speed float64
	if elapsed := time.Since(p.started).Seconds(); elapsed > 0 {
		speed = float64(p.written) / elapsed
	}
	report(p.progress, p.written, p.total, speed)
}

// mediaDownload 抓取类下载的通用流程：取页面、找直链、保存为 <platform>_<id>.mp4
func (s *scraper) mediaDownload(ctx context.Context, platform domain.Platform, patterns []*regexp.Regexp, unescape func(string) string, req Request, dir string) (*Result, error) {
	page, err := s.fetchPage(ctx, req.URL)
	if err != nil {
		return nil, err
	}

	mediaURL, err := findMediaURL(page, patterns, unescape)
	if err != nil {
		return nil, err
	}

	name := filesystem.SecureFilename(fmt.Sprintf("%s_%s.mp4", platform, req.ID))
	path := filepath.Join(dir, name)

	if _, err := s.saveMedia(ctx, mediaURL, path, req.Progress); err != nil {
		return nil, err
	}

	return &Result{
		Title:    fmt.Sprintf("%s Video %s", platform.Title(), req.ID),
		FilePath: path,
	}, nil
}
