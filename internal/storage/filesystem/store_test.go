package filesystem

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediadl/backend/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

// age 将目录修改时间调整到 d 之前
func age(t *testing.T, dir string, d time.Duration) {
	t.Helper()

	past := time.Now().Add(-d)
	require.NoError(t, os.Chtimes(dir, past, past))
}

func TestNewStore(t *testing.T) {
	t.Run("自动创建根目录", func(t *testing.T) {
		root := filepath.Join(t.TempDir(), "nested", "downloads")

		store, err := NewStore(root)
		require.NoError(t, err)

		info, err := os.Stat(store.Root())
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("空路径返回错误", func(t *testing.T) {
		_, err := NewStore("")
		assert.Error(t, err)
	})
}

func TestStore_ReserveAndFirstFile(t *testing.T) {
	store := newTestStore(t)

	id, dir, err := store.Reserve()
	require.NoError(t, err)
	assert.True(t, ValidID(id))
	assert.Equal(t, filepath.Join(store.Root(), id), dir)
	assert.Equal(t, []string{id}, store.pinnedIDs())

	t.Run("空目录返回未找到", func(t *testing.T) {
		_, _, err := store.FirstFile(id)
		assert.ErrorIs(t, err, domain.ErrDownloadNotFound)
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_video.mp4"), []byte("bbbb"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_video.mp4"), []byte("aa"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "0_subdir"), 0755))

	t.Run("按文件名返回第一个普通文件", func(t *testing.T) {
		path, info, err := store.FirstFile(id)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "a_video.mp4"), path)
		assert.Equal(t, int64(2), info.Size())
	})

	store.Release(id)
	assert.Empty(t, store.pinnedIDs())
}

func TestStore_FirstFile_RejectsInvalidID(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"", "..", "../etc", "not-a-uuid", "A3BB189E-8BF9-3888-9912-ACE4E6543002"} {
		_, _, err := store.FirstFile(id)
		assert.ErrorIs(t, err, domain.ErrDownloadNotFound, id)
	}

	_, _, err := store.FirstFile("6f1c2a7e-1d1b-4a53-8f3e-0c4b8c0a9d11")
	assert.ErrorIs(t, err, domain.ErrDownloadNotFound)
}

func TestStore_Remove(t *testing.T) {
	store := newTestStore(t)

	id, dir, err := store.Reserve()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "partial.part"), []byte("x"), 0644))

	require.NoError(t, store.Remove(id))

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, store.pinnedIDs())
	assert.ErrorIs(t, store.Remove("../.."), domain.ErrDownloadNotFound)
}

func TestStore_Sweep(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()

	oldID, oldDir, err := store.Reserve()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(oldDir, "old.mp4"), make([]byte, 1024), 0644))
	store.Release(oldID)
	age(t, oldDir, 25*time.Hour)

	pinnedID, pinnedDir, err := store.Reserve()
	require.NoError(t, err)
	age(t, pinnedDir, 48*time.Hour)

	freshID, freshDir, err := store.Reserve()
	require.NoError(t, err)
	store.Release(freshID)

	foreign := filepath.Join(store.Root(), "keep-me")
	require.NoError(t, os.Mkdir(foreign, 0755))
	age(t, foreign, 72*time.Hour)

	result, err := store.Sweep(24*time.Hour, now)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Removed)
	assert.Equal(t, int64(1024), result.FreedBytes)
	assert.Equal(t, 1, result.Skipped)

	_, err = os.Stat(oldDir)
	assert.True(t, os.IsNotExist(err), "过期目录应被删除")
	assert.DirExists(t, pinnedDir, "下载中的目录不应被删除")
	assert.DirExists(t, freshDir)
	assert.DirExists(t, foreign, "非下载目录不受影响")

	t.Run("释放后下一轮清理删除", func(t *testing.T) {
		store.Release(pinnedID)

		result, err := store.Sweep(24*time.Hour, now)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Removed)
		assert.NoDirExists(t, pinnedDir)
	})
}

func TestStore_SweepOneOutcomes(t *testing.T) {
	store := newTestStore(t)
	now := time.Now()
	cutoff := now.Add(-24 * time.Hour)

	// 列目录之后、加锁之前被删除的目录
	goneID, goneDir, err := store.Reserve()
	require.NoError(t, err)
	store.Release(goneID)
	require.NoError(t, os.RemoveAll(goneDir))

	outcome, freed, err := store.sweepOne(goneID, cutoff)
	require.NoError(t, err)
	assert.Equal(t, sweepGone, outcome)
	assert.Zero(t, freed)

	// 列目录之后被重新写入的目录
	freshID, freshDir, err := store.Reserve()
	require.NoError(t, err)
	store.Release(freshID)

	outcome, _, err = store.sweepOne(freshID, cutoff)
	require.NoError(t, err)
	assert.Equal(t, sweepGone, outcome)
	assert.DirExists(t, freshDir)

	pinnedID, pinnedDir, err := store.Reserve()
	require.NoError(t, err)
	age(t, pinnedDir, 48*time.Hour)

	outcome, _, err = store.sweepOne(pinnedID, cutoff)
	require.NoError(t, err)
	assert.Equal(t, sweepPinned, outcome)

	store.Release(pinnedID)
	outcome, _, err = store.sweepOne(pinnedID, cutoff)
	require.NoError(t, err)
	assert.Equal(t, sweepRemoved, outcome)
	assert.NoDirExists(t, pinnedDir)
}

func TestStore_StatsAndCheck(t *testing.T) {
	store := newTestStore(t)

	id, dir, err := store.Reserve()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clip.mp4"), make([]byte, 10), 0644))

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Downloads)
	assert.Equal(t, 1, stats.Files)
	assert.Equal(t, int64(10), stats.TotalBytes)
	assert.Equal(t, 1, stats.InFlight)

	store.Release(id)
	assert.NoError(t, store.Check())
}
