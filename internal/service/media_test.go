package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"mediadl/backend/internal/config"
	"mediadl/backend/internal/domain"
	"mediadl/backend/internal/downloader"
	"mediadl/backend/internal/pool"
	"mediadl/backend/internal/storage/filesystem"
	"mediadl/backend/internal/storage/memory"
	"mediadl/backend/internal/websocket"
)

// MockDownloads 模拟下载器管理
type MockDownloads struct {
	mock.Mock
}

func (m *MockDownloads) Download(ctx context.Context, platform domain.Platform, req downloader.Request, dir string) (*downloader.Result, error) {
	args := m.Called(ctx, platform, req, dir)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*downloader.Result), args.Error(1)
}

func (m *MockDownloads) Searcher(platform domain.Platform) (downloader.Searcher, error) {
	args := m.Called(platform)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(downloader.Searcher), args.Error(1)
}

// MockSearcher 模拟搜索实现
type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SearchResult), args.Error(1)
}

type publishedEvent struct {
	userID  string
	msgType websocket.MessageType
	event   websocket.DownloadEvent
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (r *recordingPublisher) Publish(userID string, msgType websocket.MessageType, event websocket.DownloadEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, publishedEvent{userID, msgType, event})
}

func (r *recordingPublisher) types() []websocket.MessageType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]websocket.MessageType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.msgType)
	}
	return out
}

type mediaFixture struct {
	svc       *MediaService
	downloads *MockDownloads
	store     *memory.Store
	workspace *filesystem.Store
	publisher *recordingPublisher
}

func newMediaFixture(t *testing.T) *mediaFixture {
	t.Helper()

	workspace, err := filesystem.NewStore(t.TempDir())
	require.NoError(t, err)

	p := pool.NewWorkerPool(2, 4, nil)
	p.Start(context.Background())
	t.Cleanup(p.Stop)

	store := memory.NewStore()
	downloads := &MockDownloads{}
	publisher := &recordingPublisher{}

	svc := NewMediaService(MediaDeps{
		Downloads:   downloads,
		Workspace:   workspace,
		Pool:        p,
		History:     NewHistoryService(store, nil),
		Progress:    publisher,
		SearchCache: NewLocalSearchCache(100, time.Minute),
	}, config.DownloadConfig{RequestTimeout: time.Minute}, config.SearchConfig{MaxResults: 5, CacheTTL: time.Minute}, nil)

	return &mediaFixture{
		svc:       svc,
		downloads: downloads,
		store:     store,
		workspace: workspace,
		publisher: publisher,
	}
}

type rejectingInspector struct{}

func (rejectingInspector) Inspect(path string) (string, error) {
	return "", fmt.Errorf("%w: text/html", domain.ErrUnsafeMedia)
}

// writeFile 模拟下载器在目录中生成文件
func writeFile(name string, data []byte) func(mock.Arguments) {
	return func(args mock.Arguments) {
		dir := args.Get(3).(string)
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			panic(err)
		}
	}
}

func TestMediaService_Download(t *testing.T) {
	t.Run("success records history and keeps the file", func(t *testing.T) {
		f := newMediaFixture(t)
		f.downloads.On("Download", mock.Anything, domain.PlatformYouTube, mock.Anything, mock.Anything).
			Run(writeFile("Some Video.mp4", []byte("video-bytes"))).
			Return(&downloader.Result{Title: "Some Video"}, nil)

		result, err := f.svc.Download(context.Background(), "user-1", domain.DownloadRequest{
			URL:      "https://www.youtube.com/watch?v=abc",
			Platform: domain.PlatformYouTube,
		})
		require.NoError(t, err)
		assert.Equal(t, "Some Video", result.Title)
		assert.Equal(t, "Some Video.mp4", result.FileName)
		assert.Equal(t, int64(len("video-bytes")), result.Size)
		assert.Equal(t, domain.FormatVideo, result.Format)

		opened, err := f.svc.Open(result.ID)
		require.NoError(t, err)
		assert.Equal(t, result.FilePath, opened.FilePath)

		history, err := f.store.ListHistoryByUser("user-1", 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, domain.StatusSuccess, history[0].Status)
		assert.Equal(t, domain.PlatformYouTube, history[0].Platform)

		assert.Equal(t, []websocket.MessageType{
			websocket.MessageTypeDownloadStarted,
			websocket.MessageTypeDownloadCompleted,
		}, f.publisher.types())
		f.downloads.AssertExpectations(t)
	})

	t.Run("failure removes the directory and records history", func(t *testing.T) {
		f := newMediaFixture(t)
		var dir string
		f.downloads.On("Download", mock.Anything, domain.PlatformTikTok, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				dir = args.Get(3).(string)
				_ = os.WriteFile(filepath.Join(dir, "partial.mp4.part"), []byte("x"), 0644)
			}).
			Return(nil, domain.ErrMediaURLNotFound)

		_, err := f.svc.Download(context.Background(), "user-1", domain.DownloadRequest{
			URL:      "https://www.tiktok.com/@u/video/1",
			Platform: domain.PlatformTikTok,
		})
		assert.ErrorIs(t, err, domain.ErrMediaURLNotFound)

		_, statErr := os.Stat(dir)
		assert.True(t, os.IsNotExist(statErr), "失败的下载目录应被删除")

		stats, err := f.store.CountHistoryByStatus("user-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Failed)

		types := f.publisher.types()
		require.NotEmpty(t, types)
		assert.Equal(t, websocket.MessageTypeDownloadFailed, types[len(types)-1])
	})

	t.Run("no file produced is a failure", func(t *testing.T) {
		f := newMediaFixture(t)
		f.downloads.On("Download", mock.Anything, domain.PlatformInstagram, mock.Anything, mock.Anything).
			Return(&downloader.Result{Title: "post"}, nil)

		_, err := f.svc.Download(context.Background(), "", domain.DownloadRequest{
			URL:      "https://www.instagram.com/p/xyz/",
			Platform: domain.PlatformInstagram,
		})
		assert.ErrorIs(t, err, domain.ErrMediaNotFound)

		stats, err := f.workspace.Stats()
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Downloads)
	})

	t.Run("files rejected by the inspector are removed", func(t *testing.T) {
		f := newMediaFixture(t)
		f.svc.inspector = rejectingInspector{}
		var dir string
		f.downloads.On("Download", mock.Anything, domain.PlatformTikTok, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				dir = args.Get(3).(string)
				_ = os.WriteFile(filepath.Join(dir, "video.mp4"), []byte("<html></html>"), 0644)
			}).
			Return(&downloader.Result{Title: "login page"}, nil)

		_, err := f.svc.Download(context.Background(), "user-1", domain.DownloadRequest{
			URL:      "https://www.tiktok.com/@u/video/2",
			Platform: domain.PlatformTikTok,
		})
		assert.ErrorIs(t, err, domain.ErrUnsafeMedia)

		_, statErr := os.Stat(dir)
		assert.True(t, os.IsNotExist(statErr))

		stats, err := f.store.CountHistoryByStatus("user-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Failed)
	})

	t.Run("anonymous downloads skip history and events", func(t *testing.T) {
		f := newMediaFixture(t)
		f.downloads.On("Download", mock.Anything, domain.PlatformYouTube, mock.Anything, mock.Anything).
			Run(writeFile("a.m4a", []byte("audio"))).
			Return(&downloader.Result{}, nil)

		result, err := f.svc.Download(context.Background(), "", domain.DownloadRequest{
			URL:      "https://youtu.be/abc",
			Platform: domain.PlatformYouTube,
			Format:   domain.FormatAudio,
		})
		require.NoError(t, err)
		assert.Equal(t, "Unknown", result.Title)
		assert.Empty(t, f.publisher.types())
	})

	t.Run("validation errors do not reserve a directory", func(t *testing.T) {
		f := newMediaFixture(t)

		_, err := f.svc.Download(context.Background(), "user-1", domain.DownloadRequest{Platform: domain.PlatformYouTube})
		assert.ErrorIs(t, err, domain.ErrURLRequired)

		_, err = f.svc.Download(context.Background(), "user-1", domain.DownloadRequest{
			URL:      "https://example.com/video",
			Platform: domain.PlatformYouTube,
		})
		assert.ErrorIs(t, err, domain.ErrInvalidURL)

		stats, err := f.workspace.Stats()
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Downloads)
		f.downloads.AssertNotCalled(t, "Download", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("progress is forwarded with a readable speed", func(t *testing.T) {
		f := newMediaFixture(t)
		f.downloads.On("Download", mock.Anything, domain.PlatformYouTube, mock.Anything, mock.Anything).
			Run(func(args mock.Arguments) {
				req := args.Get(2).(downloader.Request)
				req.Progress(downloader.Progress{DownloadedBytes: 500, TotalBytes: 1000, Percent: 50, BytesPerSecond: 2000})
				writeFile("v.mp4", []byte("v"))(args)
			}).
			Return(&downloader.Result{Title: "v"}, nil)

		_, err := f.svc.Download(context.Background(), "user-1", domain.DownloadRequest{
			URL:      "https://www.youtube.com/watch?v=abc",
			Platform: domain.PlatformYouTube,
		})
		require.NoError(t, err)

		f.publisher.mu.Lock()
		defer f.publisher.mu.Unlock()
		var progress *websocket.DownloadEvent
		for i := range f.publisher.events {
			if f.publisher.events[i].msgType == websocket.MessageTypeDownloadProgress {
				progress = &f.publisher.events[i].event
			}
		}
		require.NotNil(t, progress)
		assert.Equal(t, float64(50), progress.Percent)
		assert.Equal(t, "2.0 kB/s", progress.Speed)
	})
}

func TestMediaService_Open(t *testing.T) {
	f := newMediaFixture(t)

	_, err := f.svc.Open("../../etc")
	assert.ErrorIs(t, err, domain.ErrDownloadNotFound)

	id, dir, err := f.workspace.Reserve()
	require.NoError(t, err)
	f.workspace.Release(id)

	_, err = f.svc.Open(id)
	assert.ErrorIs(t, err, domain.ErrDownloadNotFound, "空目录")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.mp4"), []byte("b"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.mp4"), []byte("aa"), 0644))

	result, err := f.svc.Open(id)
	require.NoError(t, err)
	assert.Equal(t, "a.mp4", result.FileName)
	assert.Equal(t, int64(2), result.Size)
}

func TestMediaService_Search(t *testing.T) {
	results := []domain.SearchResult{{Title: "Lofi", URL: "https://www.youtube.com/watch?v=1"}}

	t.Run("caches normalized queries", func(t *testing.T) {
		f := newMediaFixture(t)
		searcher := &MockSearcher{}
		searcher.On("Search", mock.Anything, "lofi  beats", 5).Return(results, nil).Once()
		f.downloads.On("Searcher", domain.PlatformYouTube).Return(searcher, nil)

		got, err := f.svc.Search(context.Background(), " lofi  beats ", "")
		require.NoError(t, err)
		assert.Equal(t, results, got)

		got, err = f.svc.Search(context.Background(), "LOFI beats", domain.PlatformYouTube)
		require.NoError(t, err)
		assert.Equal(t, results, got)

		searcher.AssertNumberOfCalls(t, "Search", 1)
	})

	t.Run("empty query", func(t *testing.T) {
		f := newMediaFixture(t)
		_, err := f.svc.Search(context.Background(), "   ", "")
		assert.ErrorIs(t, err, domain.ErrEmptyQuery)
	})

	t.Run("unsupported platform", func(t *testing.T) {
		f := newMediaFixture(t)
		f.downloads.On("Searcher", domain.PlatformTikTok).Return(nil, domain.ErrSearchUnsupported)

		_, err := f.svc.Search(context.Background(), "dance", domain.PlatformTikTok)
		assert.ErrorIs(t, err, domain.ErrSearchUnsupported)
	})

	t.Run("failures are not cached", func(t *testing.T) {
		f := newMediaFixture(t)
		searcher := &MockSearcher{}
		searcher.On("Search", mock.Anything, "q", 5).Return(nil, errors.New("yt-dlp exited")).Once()
		searcher.On("Search", mock.Anything, "q", 5).Return(results, nil).Once()
		f.downloads.On("Searcher", domain.PlatformYouTube).Return(searcher, nil)

		_, err := f.svc.Search(context.Background(), "q", "")
		assert.Error(t, err)

		got, err := f.svc.Search(context.Background(), "q", "")
		require.NoError(t, err)
		assert.Equal(t, results, got)
	})
}
