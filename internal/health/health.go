package health

import (
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"
)

// defaultCheckTimeout 单项就绪检查的超时时间
const defaultCheckTimeout = 3 * time.Second

// maxGoroutines 存活检查允许的最大协程数
const maxGoroutines = 10000

// Check 健康检查函数
type Check = healthcheck.Check

// HealthChecker 存活与就绪检查
//
// 存活检查只关心进程本身；就绪检查覆盖数据库、Redis 与下载目录等依赖
type HealthChecker struct {
	health healthcheck.Handler
	logger *zap.Logger
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}

	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		logger: logger.Named("health"),
	}

	hc.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))

	return hc
}

// AddReadinessCheck 添加带超时的就绪检查
func (hc *HealthChecker) AddReadinessCheck(name string, check Check) {
	hc.health.AddReadinessCheck(name, healthcheck.Timeout(hc.logged(name, check), defaultCheckTimeout))
}

// AddLivenessCheck 添加存活检查
func (hc *HealthChecker) AddLivenessCheck(name string, check Check) {
	hc.health.AddLivenessCheck(name, hc.logged(name, check))
}

// logged 检查失败时记录日志
func (hc *HealthChecker) logged(name string, check Check) Check {
	return func() error {
		err := check()
		if err != nil {
			hc.logger.Warn("健康检查失败", zap.String("check", name), zap.Error(err))
		}
		return err
	}
}

// LiveEndpoint 存活检查处理函数
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查处理函数
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}

// Handler 返回健康检查处理器（/live 与 /ready）
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}
