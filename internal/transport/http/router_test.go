package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediadl/backend/internal/auth"
	"mediadl/backend/internal/config"
	"mediadl/backend/internal/domain"
	"mediadl/backend/internal/downloader"
	"mediadl/backend/internal/health"
	"mediadl/backend/internal/monitoring"
	"mediadl/backend/internal/service"
	"mediadl/backend/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeMedia 记录下载调用并返回预设结果
type fakeMedia struct {
	mu      sync.Mutex
	calls   []string // userID
	err     error
	files   map[string]string
	results []domain.SearchResult
}

func (f *fakeMedia) Search(_ context.Context, query string, _ domain.Platform) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	return f.results, nil
}

func (f *fakeMedia) Download(_ context.Context, userID string, req domain.DownloadRequest) (*domain.DownloadResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, userID)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &domain.DownloadResult{
		ID:       "0b7c3f1e-8f39-4a8c-9d35-6f8f0a4b2c11",
		Title:    "Test Video",
		FileName: "Test Video.mp4",
		Size:     2048,
		Platform: req.Platform,
		Format:   req.Format,
	}, nil
}

func (f *fakeMedia) Open(id string) (*domain.DownloadResult, error) {
	path, ok := f.files[id]
	if !ok {
		return nil, domain.ErrDownloadNotFound
	}
	return &domain.DownloadResult{ID: id, FileName: filepath.Base(path), FilePath: path}, nil
}

func (f *fakeMedia) userCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeCatalog struct{}

func (fakeCatalog) Platforms() []domain.Platform {
	return domain.Platforms
}

func (fakeCatalog) Searcher(p domain.Platform) (downloader.Searcher, error) {
	if p == domain.PlatformYouTube {
		return nil, nil
	}
	return nil, domain.ErrSearchUnsupported
}

type routerFixture struct {
	router  *gin.Engine
	media   *fakeMedia
	keys    *service.APIKeyService
	store   *memory.Store
	metrics *monitoring.Metrics
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	cfg := &config.Config{
		CORS:   config.CORSConfig{AllowedOrigins: []string{"*"}},
		APIKey: config.APIKeyConfig{DefaultExpiryDays: 30, MaxExpiryDays: 365},
		JWT: config.JWTConfig{
			Secret:        "0123456789abcdef0123456789abcdef",
			Issuer:        "mediadl-test",
			AccessExpiry:  time.Hour,
			RefreshExpiry: 24 * time.Hour,
		},
	}

	store := memory.NewStore()
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	keys := service.NewAPIKeyService(store, cfg.APIKey, metrics, nil)
	t.Cleanup(keys.Wait)

	media := &fakeMedia{files: map[string]string{}}
	router := NewRouter(RouterDependencies{
		Config:         cfg,
		AuthService:    auth.NewService(store, auth.NewJWTManager(cfg.JWT), nil),
		APIKeyService:  keys,
		HistoryService: service.NewHistoryService(store, nil),
		MediaService:   media,
		Platforms:      fakeCatalog{},
		Health:         health.NewHealthChecker(nil),
		AlertManager:   monitoring.NewAlertManager(metrics, nil),
		Metrics:        metrics,
	})

	return &routerFixture{router: router, media: media, keys: keys, store: store, metrics: metrics}
}

func (f *routerFixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == "access_token" {
			return c
		}
	}
	return nil
}

func TestRouter_AccountAndAPIKeyFlow(t *testing.T) {
	f := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/register",
		strings.NewReader(`{"username":"alice","email":"alice@example.com","password":"password123"}`))
	req.Header.Set("Content-Type", "application/json")
	w := f.do(req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	userID := decode(t, w)["data"].(map[string]interface{})["id"].(string)

	// 重复注册
	req = httptest.NewRequest(http.MethodPost, "/register",
		strings.NewReader(`{"username":"ALICE","email":"other@example.com","password":"password123"}`))
	req.Header.Set("Content-Type", "application/json")
	assert.Equal(t, http.StatusConflict, f.do(req).Code)

	// 表单登录，使用邮箱
	form := url.Values{"username": {"alice@example.com"}, "password": {"password123"}}
	req = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = f.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cookie := sessionCookie(w)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	req = httptest.NewRequest(http.MethodPost, "/generate-api-key", strings.NewReader(`{"name":"ci"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(cookie)
	w = f.do(req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	keyData := decode(t, w)["data"].(map[string]interface{})
	apiKey := keyData["key"].(string)
	keyID := keyData["id"].(string)
	assert.Len(t, apiKey, 43)

	req = httptest.NewRequest(http.MethodGet, "/api/download/youtube?url="+url.QueryEscape("https://www.youtube.com/watch?v=abc"), nil)
	req.Header.Set("X-API-Key", apiKey)
	w = f.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "video", body["format"])
	assert.Equal(t, "best", body["quality"])
	assert.Equal(t, "/download/0b7c3f1e-8f39-4a8c-9d35-6f8f0a4b2c11", body["download_url"])
	assert.Equal(t, []string{userID}, f.media.userCalls())

	// 列表中只展示前缀
	req = httptest.NewRequest(http.MethodGet, "/api-keys", nil)
	req.AddCookie(cookie)
	w = f.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	listed := decode(t, w)["data"].([]interface{})
	require.Len(t, listed, 1)
	assert.NotEqual(t, apiKey, listed[0].(map[string]interface{})["key"])

	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(cookie)
	w = f.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	dash := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "alice", dash["user"].(map[string]interface{})["username"])
	assert.Len(t, dash["api_keys"], 1)
	assert.Equal(t, float64(1), dash["active_keys"])

	// 吊销只接受 POST，跨站链接带上 Cookie 也无法触发
	req = httptest.NewRequest(http.MethodGet, "/revoke-api-key/"+keyID, nil)
	req.AddCookie(cookie)
	assert.Equal(t, http.StatusNotFound, f.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/download/youtube?url=https://youtu.be/abc&api_key="+apiKey, nil)
	require.Equal(t, http.StatusOK, f.do(req).Code, "GET 请求不应吊销密钥")

	req = httptest.NewRequest(http.MethodPost, "/revoke-api-key/"+keyID, nil)
	req.AddCookie(cookie)
	require.Equal(t, http.StatusOK, f.do(req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/download/youtube?url=https://youtu.be/abc&api_key="+apiKey, nil)
	w = f.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, decode(t, w), "error")

	// 退出后 Cookie 被清除
	req = httptest.NewRequest(http.MethodGet, "/logout", nil)
	w = f.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	cleared := sessionCookie(w)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
}

func TestRouter_AccountRoutesRequireAuth(t *testing.T) {
	f := newRouterFixture(t)

	for _, path := range []string{"/dashboard", "/api-keys"} {
		w := f.do(httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
	assert.Equal(t, http.StatusUnauthorized, f.do(httptest.NewRequest(http.MethodPost, "/revoke-api-key/x", nil)).Code)

	req := httptest.NewRequest(http.MethodPost, "/generate-api-key", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)
}

func TestRouter_APIKeyRequired(t *testing.T) {
	f := newRouterFixture(t)

	for _, p := range domain.Platforms {
		w := f.do(httptest.NewRequest(http.MethodGet, "/api/download/"+string(p)+"?url=x", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, p)
	}
	assert.Empty(t, f.media.userCalls())
}

func TestRouter_PublicDownload(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/download", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "No URL provided", body["error"])

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/download?url="+url.QueryEscape("https://example.com/video"), nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, ErrCodeUnsupportedPlatform, decode(t, w)["code"])

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/download?format=gif&url="+url.QueryEscape("https://youtu.be/abc"), nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 匿名下载不带用户
	w = f.do(httptest.NewRequest(http.MethodGet, "/api/download?url="+url.QueryEscape("https://www.tiktok.com/@u/video/1"), nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode(t, w)
	assert.Equal(t, "Test Video", body["title"])
	assert.Equal(t, "2.0 kB", body["size_human"])
	assert.Equal(t, []string{""}, f.media.userCalls())

	f.media.err = errors.Join(domain.ErrMediaNotFound, errors.New("no video in post"))
	w = f.do(httptest.NewRequest(http.MethodGet, "/api/download?url="+url.QueryEscape("https://www.instagram.com/p/abc/"), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, ErrCodeMediaNotFound, decode(t, w)["code"])

	f.media.err = fmt.Errorf("%w: %w", domain.ErrNetwork, context.DeadlineExceeded)
	w = f.do(httptest.NewRequest(http.MethodGet, "/api/download?url="+url.QueryEscape("https://www.instagram.com/p/abc/"), nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	assert.Equal(t, ErrCodeTimeout, decode(t, w)["code"])
}

func TestRouter_Search(t *testing.T) {
	f := newRouterFixture(t)
	f.media.results = []domain.SearchResult{{Title: "Song", URL: "https://www.youtube.com/watch?v=1"}}

	w := f.do(httptest.NewRequest(http.MethodGet, "/api/search?q=song", nil))
	require.Equal(t, http.StatusOK, w.Code)
	results := decode(t, w)["results"].([]interface{})
	assert.Len(t, results, 1)

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/search", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "No search query provided", decode(t, w)["error"])

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/search?q=x&platform=myspace", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_File(t *testing.T) {
	f := newRouterFixture(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "My Video.mp4")
	require.NoError(t, os.WriteFile(path, []byte("video-bytes"), 0o644))
	f.media.files["abc"] = path

	w := f.do(httptest.NewRequest(http.MethodGet, "/download/abc", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "video-bytes", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	w = f.do(httptest.NewRequest(http.MethodGet, "/download/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "File not found", decode(t, w)["error"])
}

func TestRouter_PagesAndOps(t *testing.T) {
	f := newRouterFixture(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Media Downloader")
	assert.Contains(t, w.Body.String(), "TikTok")

	w = f.do(httptest.NewRequest(http.MethodGet, "/docs", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/download/instagram")

	w = f.do(httptest.NewRequest(http.MethodGet, "/api/platforms", nil))
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(3), data["count"])
	first := data["platforms"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "youtube", first["id"])
	assert.Equal(t, true, first["search"])

	assert.Equal(t, http.StatusOK, f.do(httptest.NewRequest(http.MethodGet, "/health/live", nil)).Code)
	assert.Equal(t, http.StatusOK, f.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil)).Code)
	assert.Equal(t, http.StatusOK, f.do(httptest.NewRequest(http.MethodGet, "/health", nil)).Code)

	w = f.do(httptest.NewRequest(http.MethodGet, "/alerts?active=true", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode(t, w)["data"].(map[string]interface{})["count"])

	w = f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "mediadl_http_requests_total")

	w = f.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}
