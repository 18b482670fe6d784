package service

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mediadl/backend/internal/domain"
	"mediadl/backend/internal/storage"
)

// RecentHistoryLimit 仪表盘展示的历史条数
const RecentHistoryLimit = 10

// HistoryService 下载历史服务，只追加
type HistoryService struct {
	history storage.HistoryRepository
	log     *zap.Logger
	now     func() time.Time
}

// NewHistoryService 创建下载历史服务
func NewHistoryService(history storage.HistoryRepository, log *zap.Logger) *HistoryService {
	if log == nil {
		log = zap.NewNop()
	}
	return &HistoryService{
		history: history,
		log:     log.Named("history"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Record 追加一条历史；userID 为空时忽略
//
// 写入失败只记日志，不影响下载结果
func (s *HistoryService) Record(userID string, platform domain.Platform, url string, format domain.Format, status domain.DownloadStatus) {
	if userID == "" {
		return
	}

	entry := &domain.DownloadHistory{
		ID:           uuid.NewString(),
		UserID:       userID,
		Platform:     platform,
		URL:          url,
		Format:       format,
		DownloadedAt: s.now(),
		Status:       status,
	}
	if err := s.history.CreateHistory(entry); err != nil {
		s.log.Error("failed to record download history",
			zap.String("userID", userID),
			zap.String("platform", string(platform)),
			zap.Error(err),
		)
	}
}

// Recent 最近的下载记录，limit <= 0 时取 RecentHistoryLimit
func (s *HistoryService) Recent(userID string, limit int) ([]*domain.DownloadHistory, error) {
	if limit <= 0 {
		limit = RecentHistoryLimit
	}
	return s.history.ListHistoryByUser(userID, limit)
}

// Stats 按状态统计
func (s *HistoryService) Stats(userID string) (*domain.HistoryStats, error) {
	return s.history.CountHistoryByStatus(userID)
}
