package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// AlertLevel 告警级别
type AlertLevel string

const (
	AlertLevelInfo     AlertLevel = "info"
	AlertLevelWarning  AlertLevel = "warning"
	AlertLevelCritical AlertLevel = "critical"
)

// Alert 告警
type Alert struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Message    string            `json:"message"`
	Level      AlertLevel        `json:"level"`
	Component  string            `json:"component"`
	Timestamp  time.Time         `json:"timestamp"`
	Resolved   bool              `json:"resolved"`
	ResolvedAt *time.Time        `json:"resolved_at,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// AlertRule 告警规则
//
// Condition 返回 true 时触发，detail 会拼接到告警消息后面。
// 条件恢复为 false 时该规则的活跃告警自动解除
type AlertRule struct {
	ID        string
	Name      string
	Condition func() (bool, string)
	Level     AlertLevel
	Component string
	Message   string
	Cooldown  time.Duration
}

// AlertReceiver 告警接收器接口
type AlertReceiver interface {
	SendAlert(ctx context.Context, alert *Alert) error
}

// AlertManager 告警管理器
type AlertManager struct {
	mu            sync.RWMutex
	alerts        map[string]*Alert // 规则ID -> 最近一次告警
	rules         []AlertRule
	lastTriggered map[string]time.Time
	receivers     []AlertReceiver
	metrics       *Metrics
	logger        *zap.Logger
	now           func() time.Time
}

// NewAlertManager 创建告警管理器，metrics 可为 nil
func NewAlertManager(metrics *Metrics, logger *zap.Logger) *AlertManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertManager{
		alerts:        make(map[string]*Alert),
		lastTriggered: make(map[string]time.Time),
		metrics:       metrics,
		logger:        logger.Named("alert"),
		now:           time.Now,
	}
}

// AddReceiver 添加告警接收器
func (am *AlertManager) AddReceiver(receiver AlertReceiver) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.receivers = append(am.receivers, receiver)
}

// AddRule 添加告警规则
func (am *AlertManager) AddRule(rule AlertRule) {
	am.mu.Lock()
	defer am.mu.Unlock()
	am.rules = append(am.rules, rule)
}

// TriggerAlert 记录告警并分发给所有接收器；同一规则未解除的告警不会重复发送
func (am *AlertManager) TriggerAlert(ctx context.Context, ruleID string, alert *Alert) bool {
	am.mu.Lock()
	if existing, ok := am.alerts[ruleID]; ok && !existing.Resolved {
		am.mu.Unlock()
		return false
	}
	am.alerts[ruleID] = alert
	receivers := append([]AlertReceiver(nil), am.receivers...)
	am.mu.Unlock()

	for _, receiver := range receivers {
		if err := receiver.SendAlert(ctx, alert); err != nil {
			am.logger.Error("Failed to send alert",
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
		}
	}

	if am.metrics != nil {
		am.metrics.RecordError("alert_"+string(alert.Level), alert.Component)
	}
	am.logger.Info("Alert triggered",
		zap.String("alert_id", alert.ID),
		zap.String("level", string(alert.Level)),
		zap.String("component", alert.Component),
	)
	return true
}

// ResolveAlert 解除规则的活跃告警
func (am *AlertManager) ResolveAlert(ruleID string) {
	am.mu.Lock()
	defer am.mu.Unlock()

	if alert, ok := am.alerts[ruleID]; ok && !alert.Resolved {
		now := am.now()
		alert.Resolved = true
		alert.ResolvedAt = &now

		am.logger.Info("Alert resolved", zap.String("alert_id", alert.ID))
	}
}

// GetAlerts 获取全部告警，按时间倒序
func (am *AlertManager) GetAlerts() []Alert {
	return am.collect(func(*Alert) bool { return true })
}

// GetActiveAlerts 获取未解除的告警
func (am *AlertManager) GetActiveAlerts() []Alert {
	return am.collect(func(a *Alert) bool { return !a.Resolved })
}

func (am *AlertManager) collect(keep func(*Alert) bool) []Alert {
	am.mu.RLock()
	defer am.mu.RUnlock()

	alerts := make([]Alert, 0, len(am.alerts))
	for _, alert := range am.alerts {
		if keep(alert) {
			alerts = append(alerts, *alert)
		}
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Timestamp.After(alerts[j].Timestamp) })
	return alerts
}

// CheckRules 逐条评估规则
func (am *AlertManager) CheckRules(ctx context.Context) {
	am.mu.RLock()
	rules := make([]AlertRule, len(am.rules))
	copy(rules, am.rules)
	am.mu.RUnlock()

	for _, rule := range rules {
		firing, detail := rule.Condition()
		if !firing {
			am.ResolveAlert(rule.ID)
			continue
		}

		now := am.now()
		am.mu.RLock()
		last := am.lastTriggered[rule.ID]
		am.mu.RUnlock()
		if now.Sub(last) < rule.Cooldown {
			continue
		}

		msg := rule.Message
		if detail != "" {
			msg = fmt.Sprintf("%s: %s", msg, detail)
		}
		alert := &Alert{
			ID:        fmt.Sprintf("%s_%d", rule.ID, now.Unix()),
			Title:     rule.Name,
			Message:   msg,
			Level:     rule.Level,
			Component: rule.Component,
			Timestamp: now,
		}

		if am.TriggerAlert(ctx, rule.ID, alert) {
			am.mu.Lock()
			am.lastTriggered[rule.ID] = now
			am.mu.Unlock()
		}
	}
}

// StartMonitoring 按间隔检查规则，ctx 结束时返回 nil
func (am *AlertManager) StartMonitoring(ctx context.Context, interval time.Duration) error {
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
			am.CheckRules(ctx)
		}
	}
}

// ========== 内置告警规则 ==========

// HighMemoryUsageRule 堆内存超过阈值
func HighMemoryUsageRule(thresholdMB uint64) AlertRule {
	return AlertRule{
		ID:   "high_memory_usage",
		Name: "High Memory Usage",
		Condition: func() (bool, string) {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			return m.Alloc > thresholdMB*1024*1024, humanize.IBytes(m.Alloc)
		},
		Level:     AlertLevelWarning,
		Component: "memory",
		Message:   fmt.Sprintf("Memory usage exceeds %d MB", thresholdMB),
		Cooldown:  5 * time.Minute,
	}
}

// DependencyRule 依赖（数据库、Redis 等）检查失败
func DependencyRule(component string, check func() error) AlertRule {
	return AlertRule{
		ID:   component + "_connection",
		Name: fmt.Sprintf("%s Connection", component),
		Condition: func() (bool, string) {
			if err := check(); err != nil {
				return true, err.Error()
			}
			return false, ""
		},
		Level:     AlertLevelCritical,
		Component: component,
		Message:   fmt.Sprintf("%s connection failed", component),
		Cooldown:  time.Minute,
	}
}

// WorkspaceSizeRule 下载目录占用超过阈值，通常意味着清理任务失效
func WorkspaceSizeRule(ws Workspace, thresholdBytes uint64) AlertRule {
	return AlertRule{
		ID:   "workspace_size",
		Name: "Download Directory Size",
		Condition: func() (bool, string) {
			stats, err := ws.Stats()
			if err != nil {
				return true, err.Error()
			}
			size := uint64(stats.TotalBytes)
			return size > thresholdBytes, fmt.Sprintf("%s in %d downloads", humanize.Bytes(size), stats.Downloads)
		},
		Level:     AlertLevelWarning,
		Component: "workspace",
		Message:   fmt.Sprintf("Download directory exceeds %s", humanize.Bytes(thresholdBytes)),
		Cooldown:  30 * time.Minute,
	}
}

// QueueBacklogRule 下载队列积压
func QueueBacklogRule(queued func() int, threshold int) AlertRule {
	return AlertRule{
		ID:   "download_queue_backlog",
		Name: "Download Queue Backlog",
		Condition: func() (bool, string) {
			n := queued()
			return n >= threshold, fmt.Sprintf("%d queued", n)
		},
		Level:     AlertLevelWarning,
		Component: "downloader",
		Message:   fmt.Sprintf("Download queue has at least %d waiting jobs", threshold),
		Cooldown:  5 * time.Minute,
	}
}

// ========== 告警接收器实现 ==========

// LogAlertReceiver 日志告警接收器
type LogAlertReceiver struct {
	logger *zap.Logger
}

// NewLogAlertReceiver 创建日志告警接收器
func NewLogAlertReceiver(logger *zap.Logger) *LogAlertReceiver {
	return &LogAlertReceiver{logger: logger}
}

// SendAlert 按级别写日志
func (lar *LogAlertReceiver) SendAlert(_ context.Context, alert *Alert) error {
	fields := []zap.Field{
		zap.String("alert_id", alert.ID),
		zap.String("title", alert.Title),
		zap.String("message", alert.Message),
		zap.String("component", alert.Component),
		zap.Time("timestamp", alert.Timestamp),
	}

	switch alert.Level {
	case AlertLevelCritical:
		lar.logger.Error("CRITICAL ALERT", fields...)
	case AlertLevelWarning:
		lar.logger.Warn("WARNING ALERT", fields...)
	default:
		lar.logger.Info("INFO ALERT", fields...)
	}
	return nil
}

// WebhookAlertReceiver 以 JSON POST 告警
type WebhookAlertReceiver struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewWebhookAlertReceiver 创建 Webhook 告警接收器
func NewWebhookAlertReceiver(url string, logger *zap.Logger) *WebhookAlertReceiver {
	return &WebhookAlertReceiver{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// SendAlert 发送告警到 Webhook，非 2xx 响应视为失败
func (war *WebhookAlertReceiver) SendAlert(ctx context.Context, alert *Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, war.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "mediadl-alert/1.0")

	resp, err := war.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	war.logger.Debug("Alert delivered to webhook",
		zap.String("alert_id", alert.ID),
		zap.Int("status", resp.StatusCode),
	)
	return nil
}
