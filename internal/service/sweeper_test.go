package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediadl/backend/internal/monitoring"
	"mediadl/backend/internal/storage/filesystem"
)

func TestSweeper_SweepOnce(t *testing.T) {
	workspace, err := filesystem.NewStore(t.TempDir())
	require.NoError(t, err)
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())

	done, doneDir, err := workspace.Reserve()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(doneDir, "old.mp4"), make([]byte, 1500), 0644))
	workspace.Release(done)

	inFlight, _, err := workspace.Reserve()
	require.NoError(t, err)
	defer workspace.Release(inFlight)

	sweeper := NewSweeper(workspace, 24*time.Hour, time.Hour, metrics, nil)
	sweeper.now = func() time.Time { return time.Now().Add(25 * time.Hour) }

	result := sweeper.SweepOnce()
	assert.Equal(t, 1, result.Removed)
	assert.Equal(t, 1, result.Skipped, "下载中的目录不应被删除")
	assert.Equal(t, int64(1500), result.FreedBytes)

	_, err = os.Stat(doneDir)
	assert.True(t, os.IsNotExist(err))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SweepRuns))
	assert.Equal(t, 1500.0, testutil.ToFloat64(metrics.SweepFreedBytes))
}

func TestSweeper_KeepsFreshDownloads(t *testing.T) {
	workspace, err := filesystem.NewStore(t.TempDir())
	require.NoError(t, err)

	id, _, err := workspace.Reserve()
	require.NoError(t, err)
	workspace.Release(id)

	sweeper := NewSweeper(workspace, 0, 0, nil, nil)
	assert.Equal(t, 24*time.Hour, sweeper.maxAge)
	assert.Equal(t, time.Hour, sweeper.interval)

	result := sweeper.SweepOnce()
	assert.Zero(t, result.Removed)

	stats, err := workspace.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Downloads)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	workspace, err := filesystem.NewStore(t.TempDir())
	require.NoError(t, err)

	sweeper := NewSweeper(workspace, time.Hour, 10*time.Millisecond, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- sweeper.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
