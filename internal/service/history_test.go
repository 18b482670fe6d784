package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediadl/backend/internal/domain"
	"mediadl/backend/internal/storage/memory"
)

func TestHistoryService(t *testing.T) {
	store := memory.NewStore()
	svc := NewHistoryService(store, nil)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		svc.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		status := domain.StatusSuccess
		if i%4 == 0 {
			status = domain.StatusFailed
		}
		svc.Record("user-1", domain.PlatformYouTube, "https://youtu.be/x", domain.FormatVideo, status)
	}
	svc.Record("", domain.PlatformYouTube, "https://youtu.be/anon", domain.FormatVideo, domain.StatusSuccess)

	recent, err := svc.Recent("user-1", 0)
	require.NoError(t, err)
	require.Len(t, recent, RecentHistoryLimit)
	assert.Equal(t, base.Add(11*time.Minute), recent[0].DownloadedAt, "最新的在前")

	recent, err = svc.Recent("user-1", 3)
	require.NoError(t, err)
	assert.Len(t, recent, 3)

	stats, err := svc.Stats("user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(12), stats.Total)
	assert.Equal(t, int64(3), stats.Failed)
	assert.Equal(t, int64(9), stats.Success)

	none, err := svc.Recent("nobody", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}
