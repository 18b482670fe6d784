package downloader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediadl/backend/internal/config"
	"mediadl/backend/internal/domain"
)

type stubDownloader struct {
	platform domain.Platform
	calls    int
}

func (s *stubDownloader) Platform() domain.Platform { return s.platform }

func (s *stubDownloader) Download(_ context.Context, req Request, _ string) (*Result, error) {
	s.calls++
	return &Result{Title: req.URL}, nil
}

func TestManager(t *testing.T) {
	stub := &stubDownloader{platform: domain.PlatformInstagram}
	m := NewManager(stub)

	t.Run("分发到已注册平台", func(t *testing.T) {
		result, err := m.Download(context.Background(), domain.PlatformInstagram, Request{URL: "u"}, t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, "u", result.Title)
		assert.Equal(t, 1, stub.calls)
	})

	t.Run("未注册平台", func(t *testing.T) {
		_, err := m.Download(context.Background(), domain.PlatformTikTok, Request{}, t.TempDir())
		assert.ErrorIs(t, err, domain.ErrUnsupportedPlatform)
	})

	t.Run("不支持搜索", func(t *testing.T) {
		_, err := m.Searcher(domain.PlatformInstagram)
		assert.ErrorIs(t, err, domain.ErrSearchUnsupported)
		assert.Contains(t, err.Error(), "instagram")
	})
}

func TestNew(t *testing.T) {
	t.Run("ytdlp 后端同时提供搜索", func(t *testing.T) {
		m, err := New(config.DownloadConfig{YouTubeBackend: "ytdlp"}, nil)
		require.NoError(t, err)

		assert.Equal(t, []domain.Platform{domain.PlatformInstagram, domain.PlatformTikTok, domain.PlatformYouTube}, m.Platforms())

		d, err := m.Downloader(domain.PlatformYouTube)
		require.NoError(t, err)
		assert.IsType(t, &YtdlpDownloader{}, d)

		_, err = m.Searcher(domain.PlatformYouTube)
		assert.NoError(t, err)
	})

	t.Run("native 后端仍用 yt-dlp 搜索", func(t *testing.T) {
		m, err := New(config.DownloadConfig{YouTubeBackend: "native"}, nil)
		require.NoError(t, err)

		d, err := m.Downloader(domain.PlatformYouTube)
		require.NoError(t, err)
		assert.IsType(t, &NativeYouTubeDownloader{}, d)

		s, err := m.Searcher(domain.PlatformYouTube)
		require.NoError(t, err)
		assert.IsType(t, &YtdlpDownloader{}, s)
	})

	t.Run("未知后端", func(t *testing.T) {
		_, err := New(config.DownloadConfig{YouTubeBackend: "ffmpeg"}, nil)
		assert.Error(t, err)
	})
}
