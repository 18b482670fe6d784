package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mediadl/backend/internal/domain"
)

// Store 下载工作目录
//
// 每次下载占用 <root>/<uuid>/ 一个目录。下载进行中的目录处于 pinned 状态，
// 清理任务不会删除 pinned 目录；Reserve 与 Sweep 共用同一把锁。
type Store struct {
	root   string
	mu     sync.Mutex
	pinned map[string]int // 下载ID -> 引用计数
}

// SweepResult 一次清理的统计
type SweepResult struct {
	Removed    int   // 删除的目录数
	FreedBytes int64 // 释放的字节数
	Skipped    int   // 因下载中而跳过的过期目录数
}

// Stats 工作目录统计
type Stats struct {
	Downloads  int    `json:"downloads"`
	Files      int    `json:"files"`
	TotalBytes int64  `json:"totalBytes"`
	InFlight   int    `json:"inFlight"`
	Root       string `json:"root"`
}

// NewStore 创建工作目录实例，根目录不存在时自动创建
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("download directory is required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("invalid download directory: %w", err)
	}

	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download directory: %w", err)
	}

	return &Store{
		root:   abs,
		pinned: make(map[string]int),
	}, nil
}

// Root 返回根目录的绝对路径
func (s *Store) Root() string {
	return s.root
}

// ValidID 判断下载ID是否为规范的 UUID 字符串
//
// 只接受本服务生成的目录名，拒绝任何包含分隔符或 .. 的输入
func ValidID(id string) bool {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	return parsed.String() == id
}

// Reserve 创建新的下载目录并标记为下载中
//
// 返回值:
//   - id: 下载ID（目录名）
//   - dir: 目录绝对路径
//   - error: 创建失败时返回
func (s *Store) Reserve() (string, string, error) {
	id := uuid.NewString()
	dir := filepath.Join(s.root, id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Mkdir(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create download directory: %w", err)
	}
	s.pinned[id]++

	return id, dir, nil
}

// Release 解除下载中标记
func (s *Store) Release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pinned[id] <= 1 {
		delete(s.pinned, id)
		return
	}
	s.pinned[id]--
}

// Remove 删除下载目录（用于失败的下载）
func (s *Store) Remove(id string) error {
	if !ValidID(id) {
		return domain.ErrDownloadNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pinned, id)
	return os.RemoveAll(filepath.Join(s.root, id))
}

// FirstFile 返回下载目录中按名称排序的第一个普通文件
func (s *Store) FirstFile(id string) (string, os.FileInfo, error) {
	if !ValidID(id) {
		return "", nil, domain.ErrDownloadNotFound
	}

	dir := filepath.Join(s.root, id)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil, domain.ErrDownloadNotFound
		}
		return "", nil, err
	}

	// os.ReadDir 已按文件名排序
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		return filepath.Join(dir, entry.Name()), info, nil
	}

	return "", nil, domain.ErrDownloadNotFound
}

// Sweep 删除修改时间早于 now-maxAge 且不在下载中的目录
//
// 根目录下的普通文件与非 UUID 目录不受影响
func (s *Store) Sweep(maxAge time.Duration, now time.Time) (SweepResult, error) {
	var result SweepResult
	cutoff := now.Add(-maxAge)

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return result, err
	}

	for _, entry := range entries {
		if !entry.IsDir() || !ValidID(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		outcome, freed, err := s.sweepOne(entry.Name(), cutoff)
		if err != nil {
			return result, err
		}
		switch outcome {
		case sweepRemoved:
			result.Removed++
			result.FreedBytes += freed
		case sweepPinned:
			result.Skipped++
		}
	}

	return result, nil
}

// sweepOutcome 单个目录的清理结果
type sweepOutcome int

const (
	sweepRemoved sweepOutcome = iota // 已删除
	sweepPinned                      // 下载中，跳过
	sweepGone                        // 目录已不存在或已被刷新，无需处理
)

// sweepOne 在锁内复查并删除单个目录
func (s *Store) sweepOne(id string, cutoff time.Time) (sweepOutcome, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pinned[id] > 0 {
		return sweepPinned, 0, nil
	}

	dir := filepath.Join(s.root, id)
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return sweepGone, 0, nil
		}
		return sweepGone, 0, err
	}
	if !info.ModTime().Before(cutoff) {
		return sweepGone, 0, nil
	}

	size := dirSize(dir)
	if err := os.RemoveAll(dir); err != nil {
		return sweepGone, 0, fmt.Errorf("failed to remove %s: %w", id, err)
	}
	return sweepRemoved, size, nil
}

// Stats 返回工作目录统计信息
func (s *Store) Stats() (Stats, error) {
	stats := Stats{Root: s.root}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return stats, err
	}

	for _, entry := range entries {
		if !entry.IsDir() || !ValidID(entry.Name()) {
			continue
		}
		stats.Downloads++

		files, _ := os.ReadDir(filepath.Join(s.root, entry.Name()))
		for _, f := range files {
			if info, err := f.Info(); err == nil && info.Mode().IsRegular() {
				stats.Files++
				stats.TotalBytes += info.Size()
			}
		}
	}

	s.mu.Lock()
	stats.InFlight = len(s.pinned)
	s.mu.Unlock()

	return stats, nil
}

// Check 健康检查：根目录可写
func (s *Store) Check() error {
	f, err := os.CreateTemp(s.root, ".probe-*")
	if err != nil {
		return fmt.Errorf("download directory not writable: %w", err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func dirSize(dir string) int64 {
	var size int64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				size += info.Size()
			}
		}
		return nil
	})
	return size
}

// pinnedIDs 返回下载中的ID列表（已排序）
func (s *Store) pinnedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.pinned))
	for id := range s.pinned {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
