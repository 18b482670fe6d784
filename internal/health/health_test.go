package health

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHealthChecker(t *testing.T) {
	hc := NewHealthChecker(nil)

	ready := true
	hc.AddReadinessCheck("database", func() error {
		if !ready {
			return errors.New("connection refused")
		}
		return nil
	})

	t.Run("存活检查", func(t *testing.T) {
		rec := httptest.NewRecorder()
		hc.LiveEndpoint(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("依赖正常时就绪", func(t *testing.T) {
		rec := httptest.NewRecorder()
		hc.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/ready?full=1", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "database")
	})

	t.Run("依赖失败时未就绪", func(t *testing.T) {
		ready = false
		defer func() { ready = true }()

		rec := httptest.NewRecorder()
		hc.ReadyEndpoint(rec, httptest.NewRequest(http.MethodGet, "/ready?full=1", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "connection refused")
	})
}
