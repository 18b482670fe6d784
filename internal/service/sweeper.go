package service

import (
	"context"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"mediadl/backend/internal/monitoring"
	"mediadl/backend/internal/storage/filesystem"
)

// Sweeper 定期删除过期的下载目录
type Sweeper struct {
	workspace *filesystem.Store
	maxAge    time.Duration
	interval  time.Duration
	metrics   *monitoring.Metrics
	log       *zap.Logger
	now       func() time.Time
}

// NewSweeper 创建清理任务
//
// 参数:
//   - workspace: 下载工作目录
//   - maxAge: 目录保留时长，默认 24 小时
//   - interval: 清理间隔，默认 1 小时
//   - metrics: 可为 nil
func NewSweeper(workspace *filesystem.Store, maxAge, interval time.Duration, metrics *monitoring.Metrics, log *zap.Logger) *Sweeper {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{
		workspace: workspace,
		maxAge:    maxAge,
		interval:  interval,
		metrics:   metrics,
		log:       log.Named("sweeper"),
		now:       time.Now,
	}
}

// Run 启动时先清理一次，之后按间隔执行，ctx 结束时返回 nil
func (s *Sweeper) Run(ctx context.Context) error {
	s.log.Info("sweeper started",
		zap.Duration("maxAge", s.maxAge),
		zap.Duration("interval", s.interval),
	)

	s.SweepOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce 执行一次清理，错误只记录日志
func (s *Sweeper) SweepOnce() filesystem.SweepResult {
	result, err := s.workspace.Sweep(s.maxAge, s.now())
	if err != nil {
		s.log.Error("sweep failed", zap.Error(err))
		if s.metrics != nil {
			s.metrics.RecordError("sweep", "sweeper")
		}
	}

	if s.metrics != nil {
		s.metrics.RecordSweep(result.Removed, result.FreedBytes)
	}

	if result.Removed > 0 || result.Skipped > 0 {
		s.log.Info("swept old downloads",
			zap.Int("removed", result.Removed),
			zap.Int("skippedInFlight", result.Skipped),
			zap.String("freed", humanize.Bytes(uint64(result.FreedBytes))),
		)
	} else {
		s.log.Debug("nothing to sweep")
	}
	return result
}
