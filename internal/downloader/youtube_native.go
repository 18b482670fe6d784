package downloader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kkdai/youtube/v2"
	"go.uber.org/zap"

	"mediadl/backend/internal/config"
	"mediadl/backend/internal/domain"
	"mediadl/backend/internal/storage/filesystem"
)

// NativeYouTubeDownloader 纯 Go 实现的 YouTube 下载器，不依赖 yt-dlp 与 ffmpeg
//
// 只能下载单文件的音视频合并格式，音频不做转码
type NativeYouTubeDownloader struct {
	client      youtube.Client
	maxFileSize int64
	log         *zap.Logger
}

// NewNativeYouTubeDownloader 创建原生 YouTube 下载器
func NewNativeYouTubeDownloader(cfg config.DownloadConfig, log *zap.Logger) *NativeYouTubeDownloader {
	if log == nil {
		log = zap.NewNop()
	}
	return &NativeYouTubeDownloader{
		client:      youtube.Client{},
		maxFileSize: cfg.MaxFileSize,
		log:         log.Named("youtube-native"),
	}
}

// Platform 实现 Downloader
func (d *NativeYouTubeDownloader) Platform() domain.Platform {
	return domain.PlatformYouTube
}

// Download 实现 Downloader
func (d *NativeYouTubeDownloader) Download(ctx context.Context, req Request, dir string) (*Result, error) {
	video, err := d.client.GetVideoContext(ctx, req.URL)
	if err != nil {
		return nil, classifyNativeError(err)
	}

	format := selectFormat(video.Formats, req.Format, req.Quality)
	if format == nil {
		return nil, fmt.Errorf("%w: no downloadable format", domain.ErrMediaNotFound)
	}

	stream, size, err := d.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, classifyNativeError(err)
	}
	defer stream.Close()

	if d.maxFileSize > 0 && size > d.maxFileSize {
		return nil, fmt.Errorf("%w: %d bytes", domain.ErrFileTooLarge, size)
	}

	name := filesystem.SecureFilename(video.Title)
	if name == "" {
		name = video.ID
	}
	path := filepath.Join(dir, name+"."+extensionForMime(format.MimeType))

	d.log.Debug("开始下载",
		zap.String("video", video.ID),
		zap.String("mime", format.MimeType),
		zap.Int("height", format.Height),
	)

	if _, err := writeStream(stream, path, size, d.maxFileSize, req.Progress); err != nil {
		return nil, err
	}

	title := video.Title
	if title == "" {
		title = unknownValue
	}
	return &Result{Title: title, FilePath: path}, nil
}

// selectFormat 选择下载格式
//
// 视频: 带音轨且高度不超过上限的格式中取最高分辨率，全部超限时取最低分辨率
// 音频: 纯音频格式中取码率最高者
func selectFormat(formats youtube.FormatList, format domain.Format, quality domain.Quality) *youtube.Format {
	if format == domain.FormatAudio {
		var best *youtube.Format
		audio := formats.Type("audio")
		for i := range audio {
			if best == nil || audio[i].Bitrate > best.Bitrate {
				best = &audio[i]
			}
		}
		return best
	}

	maxHeight := quality.MaxHeight()
	var best, lowest *youtube.Format
	withAudio := formats.WithAudioChannels()
	for i := range withAudio {
		f := &withAudio[i]
		if !strings.HasPrefix(f.MimeType, "video/") {
			continue
		}
		if lowest == nil || f.Height < lowest.Height {
			lowest = f
		}
		if f.Height > maxHeight {
			continue
		}
		if best == nil || f.Height > best.Height || (f.Height == best.Height && f.Bitrate > best.Bitrate) {
			best = f
		}
	}

	if best == nil {
		return lowest
	}
	return best
}

// extensionForMime 根据 mime 类型推断扩展名
func extensionForMime(mime string) string {
	base := strings.TrimSpace(strings.SplitN(mime, ";", 2)[0])
	switch base {
	case "video/mp4":
		return "mp4"
	case "audio/mp4":
		return "m4a"
	case "video/webm", "audio/webm":
		return "webm"
	case "video/3gpp":
		return "3gp"
	default:
		return "bin"
	}
}

func classifyNativeError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", domain.ErrNetwork, err)
	case errors.Is(err, youtube.ErrInvalidCharactersInVideoID), errors.Is(err, youtube.ErrVideoIDMinLength):
		return fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	case errors.Is(err, youtube.ErrVideoPrivate), errors.Is(err, youtube.ErrLoginRequired):
		return fmt.Errorf("%w: %v", domain.ErrMediaNotFound, err)
	}

	var playability *youtube.ErrPlayabiltyStatus
	if errors.As(err, &playability) {
		return fmt.Errorf("%w: %v", domain.ErrMediaNotFound, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrNetwork, err)
}
