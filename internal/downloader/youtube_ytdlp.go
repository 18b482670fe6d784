package downloader

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"go.uber.org/zap"

	"mediadl/backend/internal/config"
	"mediadl/backend/internal/domain"
)

const (
	ytdlpProgressInterval = 500 * time.Millisecond
	ytdlpMaxRetries       = 1
	ytdlpRetryDelay       = 2 * time.Second

	youtubeWatchURL = "https://www.youtube.com/watch?v="
	unknownValue    = "Unknown"
)

// YtdlpDownloader 通过 yt-dlp 下载和搜索 YouTube
type YtdlpDownloader struct {
	executable  string
	maxFileSize int64
	retryDelay  time.Duration
	log         *zap.Logger
}

// NewYtdlpDownloader 创建 yt-dlp 下载器
func NewYtdlpDownloader(cfg config.DownloadConfig, log *zap.Logger) *YtdlpDownloader {
	if log == nil {
		log = zap.NewNop()
	}
	return &YtdlpDownloader{
		executable:  cfg.YtdlpPath,
		maxFileSize: cfg.MaxFileSize,
		retryDelay:  ytdlpRetryDelay,
		log:         log.Named("ytdlp"),
	}
}

// Platform 实现 Downloader
func (d *YtdlpDownloader) Platform() domain.Platform {
	return domain.PlatformYouTube
}

func (d *YtdlpDownloader) newCommand() *ytdlp.Command {
	cmd := ytdlp.New()
	if d.executable != "" {
		cmd.SetExecutable(d.executable)
	}
	return cmd
}

// formatSelector 返回 yt-dlp 的 -f 参数
func formatSelector(format domain.Format, quality domain.Quality) string {
	if format == domain.FormatAudio {
		return "bestaudio/best"
	}
	return fmt.Sprintf("best[height<=%d]", quality.MaxHeight())
}

func (d *YtdlpDownloader) buildCommand(req Request, dir string) *ytdlp.Command {
	cmd := d.newCommand().
		ForceOverwrites().
		RestrictFilenames().
		NoPlaylist().
		PrintJSON().
		Format(formatSelector(req.Format, req.Quality)).
		Output(filepath.Join(dir, "%(title)s.%(ext)s"))

	if req.Format == domain.FormatAudio {
		cmd.ExtractAudio().AudioFormat("mp3").AudioQuality("192K")
	}
	if d.maxFileSize > 0 {
		cmd.MaxFileSize(strconv.FormatInt(d.maxFileSize, 10))
	}

	if req.Progress != nil {
		cmd.ProgressFunc(ytdlpProgressInterval, func(update ytdlp.ProgressUpdate) {
			var speed float64
			if !update.Started.IsZero() {
				if elapsed := time.Since(update.Started).Seconds(); elapsed > 0 {
					speed = float64(update.DownloadedBytes) / elapsed
				}
			}
			report(req.Progress, int64(update.DownloadedBytes), int64(update.TotalBytes), speed)
		})
	}

	return cmd
}

// Download 实现 Downloader
func (d *YtdlpDownloader) Download(ctx context.Context, req Request, dir string) (*Result, error) {
	cmd := d.buildCommand(req, dir)

	res, err := d.runWithRetry(ctx, cmd, req.URL)
	if err != nil {
		return nil, classifyYtdlpError(ctx, err)
	}

	out := &Result{Title: unknownValue}
	if res == nil {
		return out, nil
	}

	if info, err := res.GetExtractedInfo(); err == nil && len(info) > 0 && info[0].Filename != nil {
		out.FilePath = *info[0].Filename
	}
	if title, filename := parseInfoJSON(res.Stdout); title != "" {
		out.Title = title
		if out.FilePath == "" {
			out.FilePath = filename
		}
	}

	// 音频在后处理阶段转换为 mp3
	if req.Format == domain.FormatAudio && out.FilePath != "" {
		out.FilePath = strings.TrimSuffix(out.FilePath, filepath.Ext(out.FilePath)) + ".mp3"
	}

	return out, nil
}

// runWithRetry 失败后等待 retryDelay 重试一次，期间响应 ctx 取消
func (d *YtdlpDownloader) runWithRetry(ctx context.Context, cmd *ytdlp.Command, url string) (*ytdlp.Result, error) {
	var lastErr error

	for attempt := 0; attempt <= ytdlpMaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(d.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			d.log.Info("重试下载", zap.String("url", url), zap.Int("attempt", attempt+1))
		}

		res, err := cmd.Run(ctx, url)
		if err == nil {
			return res, nil
		}

		lastErr = err
		d.log.Warn("下载失败",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			break
		}
	}

	return nil, lastErr
}

// retryable 明确的内容错误不重试
func retryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"unsupported url", "video unavailable", "private video", "max-filesize", "is not a valid url"} {
		if strings.Contains(msg, s) {
			return false
		}
	}
	return true
}

// classifyYtdlpError 将 yt-dlp 的错误输出映射为领域错误
func classifyYtdlpError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", domain.ErrNetwork, err)
	}
	// yt-dlp 进程被杀死时 err 只是退出状态，原因在 ctx 上
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w: %v", domain.ErrNetwork, ctxErr, err)
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "max-filesize"), strings.Contains(msg, "larger than"):
		return fmt.Errorf("%w: %v", domain.ErrFileTooLarge, err)
	case strings.Contains(msg, "unsupported url"), strings.Contains(msg, "is not a valid url"):
		return fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	case strings.Contains(msg, "video unavailable"), strings.Contains(msg, "private video"), strings.Contains(msg, "http error 404"):
		return fmt.Errorf("%w: %v", domain.ErrMediaNotFound, err)
	case strings.Contains(msg, "unable to download"), strings.Contains(msg, "timed out"), strings.Contains(msg, "connection"):
		return fmt.Errorf("%w: %w", domain.ErrNetwork, err)
	}
	return fmt.Errorf("yt-dlp: %w", err)
}

// Search 通过 ytsearch 搜索 YouTube
func (d *YtdlpDownloader) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}
	if limit <= 0 {
		limit = 5
	}

	res, err := d.newCommand().
		FlatPlaylist().
		DumpJSON().
		Run(ctx, fmt.Sprintf("ytsearch%d:%s", limit, query))
	if err != nil {
		return nil, classifyYtdlpError(ctx, err)
	}

	results, err := parseSearchOutput(res.Stdout, limit)
	if err != nil {
		return nil, err
	}
	d.log.Debug("搜索完成", zap.String("query", query), zap.Int("results", len(results)))
	return results, nil
}

// ========== yt-dlp JSON 输出解析 ==========

type ytdlpEntry struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	URL        string  `json:"url"`
	WebpageURL string  `json:"webpage_url"`
	Thumbnail  string  `json:"thumbnail"`
	Duration   float64 `json:"duration"`
	Uploader   string  `json:"uploader"`
	Channel    string  `json:"channel"`
	Filename   string  `json:"filename"`
	Filename2  string  `json:"_filename"`
	Thumbnails []struct {
		URL string `json:"url"`
	} `json:"thumbnails"`
}

// eachJSONLine 逐行解码 JSON，跳过无法解析的行并返回解码成功与失败的行数
func eachJSONLine(output string, fn func(entry ytdlpEntry)) (decoded, malformed int) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] != '{' {
			continue
		}
		var entry ytdlpEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			malformed++
			continue
		}
		decoded++
		fn(entry)
	}
	return decoded, malformed
}

// parseInfoJSON 从 --print-json 输出中取出标题和文件名
func parseInfoJSON(output string) (title, filename string) {
	eachJSONLine(output, func(entry ytdlpEntry) {
		if title != "" {
			return
		}
		title = entry.Title
		filename = entry.Filename
		if filename == "" {
			filename = entry.Filename2
		}
	})
	return title, filename
}

// parseSearchOutput 解析 --flat-playlist --dump-json 的逐行输出
//
// 输出里有 JSON 行但一行都无法解码时返回 domain.ErrParse，没有任何 JSON 行表示无结果
func parseSearchOutput(output string, limit int) ([]domain.SearchResult, error) {
	results := make([]domain.SearchResult, 0, limit)

	decoded, malformed := eachJSONLine(output, func(entry ytdlpEntry) {
		if len(results) >= limit || (entry.ID == "" && entry.URL == "") {
			return
		}

		result := domain.SearchResult{
			Title:     entry.Title,
			URL:       entry.URL,
			Thumbnail: entry.Thumbnail,
			Duration:  entry.Duration,
			Uploader:  entry.Uploader,
		}
		if result.Title == "" {
			result.Title = unknownValue
		}
		if result.URL == "" {
			result.URL = entry.WebpageURL
		}
		if result.URL == "" {
			result.URL = youtubeWatchURL + entry.ID
		}
		if result.Thumbnail == "" && len(entry.Thumbnails) > 0 {
			result.Thumbnail = entry.Thumbnails[len(entry.Thumbnails)-1].URL
		}
		if result.Uploader == "" {
			result.Uploader = entry.Channel
		}
		if result.Uploader == "" {
			result.Uploader = unknownValue
		}

		results = append(results, result)
	})

	if decoded == 0 && malformed > 0 {
		return nil, fmt.Errorf("%w: %d undecodable search entries", domain.ErrParse, malformed)
	}
	return results, nil
}
