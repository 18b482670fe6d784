package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordDownload("youtube", "video", "success", 2*time.Second, 1024)
	m.RecordDownload("youtube", "video", "failed", time.Second, 0)
	m.RecordDownload("youtube", "video", "success", time.Second, 2048)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DownloadsTotal.WithLabelValues("youtube", "video", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DownloadsTotal.WithLabelValues("youtube", "video", "failed")))

	m.RecordSweep(3, 4096)
	m.RecordSweep(0, 0)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.SweepRuns))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SweepRemoved))
	assert.Equal(t, 4096.0, testutil.ToFloat64(m.SweepFreedBytes))

	m.UpdateDownloadPool(2, 5)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DownloadsInFlight))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.DownloadQueue))

	m.RecordAPIKeyAuthFailure("expired")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.APIKeyAuthFailures.WithLabelValues("expired")))

	m.WebsocketConnected()
	m.WebsocketConnected()
	m.WebsocketDisconnected()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebsocketConnections))
}

func TestMetrics_HTTPHandler(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordSearch("youtube", "live", "success")

	rec := httptest.NewRecorder()
	m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "mediadl_searches_total")
	assert.Contains(t, body, "go_goroutines")
}
