package monitoring

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mediadl/backend/internal/storage/filesystem"
)

// HealthStatus 健康状态
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ErrDegraded 检查函数返回包装了它的错误时，只降级不判定为不健康
var ErrDegraded = errors.New("degraded")

// CheckFunc 单项检查，返回人类可读的说明
type CheckFunc func(ctx context.Context) (string, error)

// HealthCheck 单项检查结果
type HealthCheck struct {
	Name        string        `json:"name"`
	Status      HealthStatus  `json:"status"`
	Message     string        `json:"message,omitempty"`
	Duration    time.Duration `json:"duration"`
	LastChecked time.Time     `json:"last_checked"`
}

// HealthReport 健康报告
type HealthReport struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Uptime    string        `json:"uptime"`
	Checks    []HealthCheck `json:"checks"`
	Version   string        `json:"version"`
}

type namedCheck struct {
	name     string
	critical bool
	fn       CheckFunc
}

// StatusReporter 汇总各依赖与运行时状态，生成详细健康报告
//
// 与 /health/live、/health/ready 的探针不同，报告面向运维查看，
// 非关键检查失败只会让整体状态降级
type StatusReporter struct {
	mu        sync.RWMutex
	checks    []namedCheck
	timeout   time.Duration
	metrics   *Metrics
	logger    *zap.Logger
	startTime time.Time
	version   string
}

// NewStatusReporter 创建报告器，并注册内存与协程两项运行时检查
//
// 参数:
//   - metrics: 可为 nil；非 nil 时周期任务会刷新运行时长指标
//   - logger: 日志记录器
//   - version: 服务版本号
//   - memoryLimitMB: 堆内存降级阈值，0 表示 1024
func NewStatusReporter(metrics *Metrics, logger *zap.Logger, version string, memoryLimitMB uint64) *StatusReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if memoryLimitMB == 0 {
		memoryLimitMB = 1024
	}

	r := &StatusReporter{
		timeout:   3 * time.Second,
		metrics:   metrics,
		logger:    logger.Named("status"),
		startTime: time.Now(),
		version:   version,
	}
	r.AddCheck("memory", false, MemoryCheck(memoryLimitMB))
	r.AddCheck("goroutines", false, GoroutineCheck(1000))
	return r
}

// AddCheck 注册检查项，critical 为 true 时失败会使整体状态为 unhealthy
func (r *StatusReporter) AddCheck(name string, critical bool, fn CheckFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, namedCheck{name: name, critical: critical, fn: fn})
}

// CheckHealth 并发执行全部检查并汇总
func (r *StatusReporter) CheckHealth(ctx context.Context) *HealthReport {
	r.mu.RLock()
	checks := make([]namedCheck, len(r.checks))
	copy(checks, r.checks)
	r.mu.RUnlock()

	results := make([]HealthCheck, len(checks))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range checks {
		g.Go(func() error {
			results[i] = r.run(gctx, c)
			return nil
		})
	}
	_ = g.Wait()

	report := &HealthReport{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now(),
		Uptime:    r.Uptime().Truncate(time.Second).String(),
		Checks:    results,
		Version:   r.version,
	}

	for _, check := range results {
		switch check.Status {
		case HealthStatusUnhealthy:
			report.Status = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if report.Status != HealthStatusUnhealthy {
				report.Status = HealthStatusDegraded
			}
		}
	}

	sort.Slice(report.Checks, func(i, j int) bool { return report.Checks[i].Name < report.Checks[j].Name })
	return report
}

func (r *StatusReporter) run(ctx context.Context, c namedCheck) HealthCheck {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	msg, err := c.fn(ctx)
	check := HealthCheck{
		Name:        c.name,
		Status:      HealthStatusHealthy,
		Message:     msg,
		LastChecked: start,
		Duration:    time.Since(start),
	}

	if err != nil {
		check.Message = err.Error()
		if c.critical && !errors.Is(err, ErrDegraded) {
			check.Status = HealthStatusUnhealthy
		} else {
			check.Status = HealthStatusDegraded
		}
	}
	return check
}

// Uptime 运行时长
func (r *StatusReporter) Uptime() time.Duration {
	return time.Since(r.startTime)
}

// StartPeriodicHealthCheck 周期性生成报告并按状态分级记录日志，ctx 结束时返回 nil
func (r *StatusReporter) StartPeriodicHealthCheck(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if r.metrics != nil {
				r.metrics.UpdateSystemUptime(r.Uptime())
			}
			r.logReport(r.CheckHealth(ctx))
		}
	}
}

func (r *StatusReporter) logReport(report *HealthReport) {
	var failing []string
	for _, c := range report.Checks {
		if c.Status != HealthStatusHealthy {
			failing = append(failing, c.Name+": "+c.Message)
		}
	}

	fields := []zap.Field{
		zap.String("status", string(report.Status)),
		zap.String("uptime", report.Uptime),
		zap.Strings("failing", failing),
	}
	switch report.Status {
	case HealthStatusUnhealthy:
		r.logger.Error("System health check failed", fields...)
	case HealthStatusDegraded:
		r.logger.Warn("System health check degraded", fields...)
	default:
		r.logger.Debug("System health check passed", fields...)
	}
}

// ========== 内置检查 ==========

// MemoryCheck 堆内存超过 limitMB 时降级
func MemoryCheck(limitMB uint64) CheckFunc {
	return func(context.Context) (string, error) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		if m.Alloc > limitMB*1024*1024 {
			return "", fmt.Errorf("%w: heap %s exceeds %d MB", ErrDegraded, humanize.IBytes(m.Alloc), limitMB)
		}
		return fmt.Sprintf("heap %s, gc %d", humanize.IBytes(m.Alloc), m.NumGC), nil
	}
}

// GoroutineCheck 协程数超过 max 时降级
func GoroutineCheck(max int) CheckFunc {
	return func(context.Context) (string, error) {
		n := runtime.NumGoroutine()
		if n > max {
			return "", fmt.Errorf("%w: %d goroutines", ErrDegraded, n)
		}
		return fmt.Sprintf("%d goroutines", n), nil
	}
}

// PingCheck 包装 Redis、PostgreSQL 探针等只返回 error 的检查
func PingCheck(ok string, ping func() error) CheckFunc {
	return func(ctx context.Context) (string, error) {
		done := make(chan error, 1)
		go func() { done <- ping() }()

		select {
		case err := <-done:
			if err != nil {
				return "", err
			}
			return ok, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Workspace 下载目录的统计与可写检查，由 filesystem.Store 实现
type Workspace interface {
	Stats() (filesystem.Stats, error)
	Check() error
}

// WorkspaceCheck 检查下载目录可写并报告占用
func WorkspaceCheck(ws Workspace) CheckFunc {
	return func(context.Context) (string, error) {
		if err := ws.Check(); err != nil {
			return "", err
		}
		stats, err := ws.Stats()
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d downloads (%d in flight), %s on disk",
			stats.Downloads, stats.InFlight, humanize.Bytes(uint64(stats.TotalBytes))), nil
	}
}
