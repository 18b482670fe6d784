package domain

import "time"

// DownloadStatus 下载结果状态
type DownloadStatus string

const (
	StatusSuccess DownloadStatus = "success"
	StatusFailed  DownloadStatus = "failed"
)

// DownloadHistory 下载历史记录（只追加，不修改）
type DownloadHistory struct {
	ID           string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID       string         `json:"userId" gorm:"type:varchar(36);index:idx_history_user_time;not null"`
	Platform     Platform       `json:"platform" gorm:"type:varchar(20);not null"`
	URL          string         `json:"url" gorm:"type:text;not null"`
	Format       Format         `json:"format" gorm:"type:varchar(10)"`
	DownloadedAt time.Time      `json:"downloadedAt" gorm:"index:idx_history_user_time"`
	Status       DownloadStatus `json:"status" gorm:"type:varchar(10);not null"`
}

// TableName 下载历史表名
func (DownloadHistory) TableName() string {
	return "download_history"
}

// HistoryStats 用户下载统计
type HistoryStats struct {
	Total   int64 `json:"total"`
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
}
