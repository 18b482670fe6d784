package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Platform 媒体平台
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
)

// Platforms 支持的全部平台
var Platforms = []Platform{PlatformYouTube, PlatformInstagram, PlatformTikTok}

// ParsePlatform 解析平台名称（不区分大小写）
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Platforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedPlatform, s)
}

// Title 平台展示名称
func (p Platform) Title() string {
	switch p {
	case PlatformYouTube:
		return "YouTube"
	case PlatformInstagram:
		return "Instagram"
	case PlatformTikTok:
		return "TikTok"
	default:
		return string(p)
	}
}

// Format 下载格式
type Format string

const (
	FormatVideo Format = "video"
	FormatAudio Format = "audio"
)

// ParseFormat 解析格式，空值默认为 video
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatVideo:
		return FormatVideo, nil
	case FormatAudio:
		return FormatAudio, nil
	default:
		return "", fmt.Errorf("%w: format %q", ErrInvalidInput, s)
	}
}

// Quality 视频清晰度
type Quality string

const (
	QualityBest Quality = "best"
	Quality720  Quality = "720p"
	Quality480  Quality = "480p"
	Quality360  Quality = "360p"
)

// ParseQuality 解析清晰度，空值默认为 best
func ParseQuality(s string) (Quality, error) {
	switch Quality(strings.ToLower(strings.TrimSpace(s))) {
	case "", QualityBest:
		return QualityBest, nil
	case Quality720:
		return Quality720, nil
	case Quality480:
		return Quality480, nil
	case Quality360:
		return Quality360, nil
	default:
		return "", fmt.Errorf("%w: quality %q", ErrInvalidInput, s)
	}
}

// MaxHeight 清晰度对应的最大视频高度，best 限制为 1080
func (q Quality) MaxHeight() int {
	switch q {
	case Quality720:
		return 720
	case Quality480:
		return 480
	case Quality360:
		return 360
	default:
		return 1080
	}
}

// DownloadRequest 下载请求参数
type DownloadRequest struct {
	URL      string   `json:"url"`
	Platform Platform `json:"platform"`
	Format   Format   `json:"format"`
	Quality  Quality  `json:"quality"`
}

// DownloadResult 一次成功下载的结果
type DownloadResult struct {
	ID       string   `json:"id"` // 下载目录ID
	Title    string   `json:"title"`
	FileName string   `json:"fileName"`
	FilePath string   `json:"-"`
	Size     int64    `json:"size"`
	Platform Platform `json:"platform"`
	Format   Format   `json:"format"`
}

// SearchResult 搜索结果条目
type SearchResult struct {
	Title     string  `json:"title"`
	URL       string  `json:"url"`
	Thumbnail string  `json:"thumbnail"`
	Duration  float64 `json:"duration"`
	Uploader  string  `json:"uploader"`
}

// 下载错误分类
var (
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrInvalidInput        = errors.New("invalid input")
	ErrURLRequired         = errors.New("url is required")
	ErrEmptyQuery          = errors.New("no search query provided")
	ErrSearchUnsupported   = errors.New("search not supported")
	ErrMediaNotFound       = errors.New("media not found")
	ErrMediaURLNotFound    = errors.New("could not find media URL")
	ErrNetwork             = errors.New("network failure")
	ErrParse               = errors.New("parse failure")
	ErrFileTooLarge        = errors.New("file exceeds size limit")
	ErrDownloadNotFound    = errors.New("download not found")
	ErrUnsafeMedia         = errors.New("downloaded file is not a media file")
)
