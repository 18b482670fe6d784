package httptransport

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"mediadl/backend/internal/health"
	"mediadl/backend/internal/monitoring"
)

// OpsHandler 健康检查与告警查询
type OpsHandler struct {
	probes   *health.HealthChecker
	reporter *monitoring.StatusReporter
	alerts   *monitoring.AlertManager
}

// NewOpsHandler 创建运维处理器，reporter 与 alerts 可为 nil
func NewOpsHandler(probes *health.HealthChecker, reporter *monitoring.StatusReporter, alerts *monitoring.AlertManager) *OpsHandler {
	return &OpsHandler{
		probes:   probes,
		reporter: reporter,
		alerts:   alerts,
	}
}

// Live 存活探针
func (h *OpsHandler) Live(c *gin.Context) {
	h.probes.LiveEndpoint(c.Writer, c.Request)
}

// Ready 就绪探针
func (h *OpsHandler) Ready(c *gin.Context) {
	h.probes.ReadyEndpoint(c.Writer, c.Request)
}

// Health godoc
// @Summary 详细健康报告
// @Description 汇总数据库、缓存、下载目录与运行时状态；不健康时返回 503
// @Tags Ops
// @Produce json
// @Success 200 {object} monitoring.HealthReport
// @Failure 503 {object} monitoring.HealthReport
// @Router /health [get]
func (h *OpsHandler) Health(c *gin.Context) {
	if h.reporter == nil {
		c.JSON(http.StatusOK, gin.H{"status": monitoring.HealthStatusHealthy})
		return
	}

	report := h.reporter.CheckHealth(c.Request.Context())
	status := http.StatusOK
	if report.Status == monitoring.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// Alerts godoc
// @Summary 告警列表
// @Tags Ops
// @Produce json
// @Param active query bool false "只返回未解除的告警"
// @Success 200 {object} Response{data=object{alerts=[]monitoring.Alert,count=int}}
// @Router /alerts [get]
func (h *OpsHandler) Alerts(c *gin.Context) {
	alerts := []monitoring.Alert{}
	if h.alerts != nil {
		activeOnly, _ := strconv.ParseBool(c.Query("active"))
		if activeOnly {
			alerts = h.alerts.GetActiveAlerts()
		} else {
			alerts = h.alerts.GetAlerts()
		}
	}
	if alerts == nil {
		alerts = []monitoring.Alert{}
	}

	Success(c, gin.H{
		"alerts": alerts,
		"count":  len(alerts),
	})
}
