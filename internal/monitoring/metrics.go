package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mediadl"

// Metrics 监控指标
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// 下载指标
	DownloadsTotal    *prometheus.CounterVec
	DownloadDuration  *prometheus.HistogramVec
	DownloadBytes     *prometheus.HistogramVec
	DownloadsInFlight prometheus.Gauge
	DownloadQueue     prometheus.Gauge

	// 搜索指标
	SearchesTotal *prometheus.CounterVec

	// 清理指标
	SweepRuns       prometheus.Counter
	SweepRemoved    prometheus.Counter
	SweepFreedBytes prometheus.Counter

	// 账户指标
	UsersRegistered    prometheus.Counter
	APIKeysGenerated   prometheus.Counter
	APIKeysRevoked     prometheus.Counter
	APIKeyAuthFailures *prometheus.CounterVec

	// 系统指标
	SystemUptime         prometheus.Gauge
	WebsocketConnections prometheus.Gauge

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec
}

// NewMetrics 创建监控指标并注册到 reg
//
// reg 为 nil 时使用独立的注册表，便于测试中多次创建
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(reg)
	sizeBuckets := prometheus.ExponentialBuckets(1024, 4, 12) // 1KB ~ 4GB

	return &Metrics{
		gatherer: reg,

		// HTTP 请求指标
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_size_bytes",
				Help:      "HTTP response size in bytes",
				Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		// 下载指标
		DownloadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloads_total",
				Help:      "Total number of downloads by outcome",
			},
			[]string{"platform", "format", "status"},
		),

		DownloadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "download_duration_seconds",
				Help:      "Download duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
			},
			[]string{"platform"},
		),

		DownloadBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "download_size_bytes",
				Help:      "Size of downloaded files in bytes",
				Buckets:   sizeBuckets,
			},
			[]string{"platform"},
		),

		DownloadsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "downloads_in_flight",
				Help:      "Number of downloads currently running",
			},
		),

		DownloadQueue: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "download_queue_depth",
				Help:      "Number of downloads waiting for a worker",
			},
		),

		SearchesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "searches_total",
				Help:      "Total number of searches",
			},
			[]string{"platform", "source", "status"},
		),

		// 清理指标
		SweepRuns: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_runs_total",
				Help:      "Total number of cleanup sweeps",
			},
		),

		SweepRemoved: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_removed_total",
				Help:      "Total number of download directories removed by cleanup",
			},
		),

		SweepFreedBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sweep_freed_bytes_total",
				Help:      "Total bytes freed by cleanup",
			},
		),

		// 账户指标
		UsersRegistered: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "users_registered_total",
				Help:      "Total number of users registered",
			},
		),

		APIKeysGenerated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_keys_generated_total",
				Help:      "Total number of API keys generated",
			},
		),

		APIKeysRevoked: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_keys_revoked_total",
				Help:      "Total number of API keys revoked",
			},
		),

		APIKeyAuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_key_auth_failures_total",
				Help:      "Total number of rejected API key requests",
			},
			[]string{"reason"},
		),

		// 系统指标
		SystemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "system_uptime_seconds",
				Help:      "System uptime in seconds",
			},
		),

		WebsocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_connections",
				Help:      "Number of open progress websocket connections",
			},
		),

		// 错误指标
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "panics_total",
				Help:      "Total number of panics",
			},
		),

		// 限流指标
		RateLimitBlocks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_blocks_total",
				Help:      "Total number of requests rejected by rate limiting",
			},
			[]string{"type"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, responseSize int64) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
}

// RecordDownload 记录一次下载结果，size 仅在成功时有意义
func (m *Metrics) RecordDownload(platform, format, status string, duration time.Duration, size int64) {
	m.DownloadsTotal.WithLabelValues(platform, format, status).Inc()
	m.DownloadDuration.WithLabelValues(platform).Observe(duration.Seconds())
	if size > 0 {
		m.DownloadBytes.WithLabelValues(platform).Observe(float64(size))
	}
}

// UpdateDownloadPool 更新下载并发与排队数量
func (m *Metrics) UpdateDownloadPool(active, queued int) {
	m.DownloadsInFlight.Set(float64(active))
	m.DownloadQueue.Set(float64(queued))
}

// RecordSearch 记录搜索，source 为 cache 或 live
func (m *Metrics) RecordSearch(platform, source, status string) {
	m.SearchesTotal.WithLabelValues(platform, source, status).Inc()
}

// RecordSweep 记录一次清理
func (m *Metrics) RecordSweep(removed int, freedBytes int64) {
	m.SweepRuns.Inc()
	m.SweepRemoved.Add(float64(removed))
	m.SweepFreedBytes.Add(float64(freedBytes))
}

// RecordUserRegistered 记录用户注册
func (m *Metrics) RecordUserRegistered() {
	m.UsersRegistered.Inc()
}

// RecordAPIKeyGenerated 记录密钥生成
func (m *Metrics) RecordAPIKeyGenerated() {
	m.APIKeysGenerated.Inc()
}

// RecordAPIKeyRevoked 记录密钥吊销
func (m *Metrics) RecordAPIKeyRevoked() {
	m.APIKeysRevoked.Inc()
}

// RecordAPIKeyAuthFailure 记录密钥校验失败
func (m *Metrics) RecordAPIKeyAuthFailure(reason string) {
	m.APIKeyAuthFailures.WithLabelValues(reason).Inc()
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(limitType string) {
	m.RateLimitBlocks.WithLabelValues(limitType).Inc()
}

// UpdateSystemUptime 更新系统运行时间
func (m *Metrics) UpdateSystemUptime(uptime time.Duration) {
	m.SystemUptime.Set(uptime.Seconds())
}

// WebsocketConnected 连接数加一
func (m *Metrics) WebsocketConnected() {
	m.WebsocketConnections.Inc()
}

// WebsocketDisconnected 连接数减一
func (m *Metrics) WebsocketDisconnected() {
	m.WebsocketConnections.Dec()
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
