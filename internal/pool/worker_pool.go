package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	// ErrPoolStopped 协程池已停止
	ErrPoolStopped = errors.New("worker pool stopped")
	// ErrTaskPanicked Do 执行的任务发生 panic
	ErrTaskPanicked = errors.New("task panicked")
)

// WorkerPool 协程池
//
// 用于限制同时进行的下载数量，超出的任务在队列中等待
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan func()
	wg         sync.WaitGroup
	log        *zap.Logger

	mu      sync.RWMutex
	stopped bool

	active atomic.Int64
}

// NewWorkerPool 创建协程池
//
// 参数:
//   - maxWorkers: 最大协程数
//   - queueSize: 任务队列大小
func NewWorkerPool(maxWorkers, queueSize int, log *zap.Logger) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan func(), queueSize),
		log:        log.Named("pool"),
	}
}

// Start 启动协程池
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Submit 提交任务
//
// 如果队列已满，会阻塞直到有空位
func (p *WorkerPool) Submit(task func()) error {
	return p.SubmitContext(context.Background(), task)
}

// SubmitContext 提交任务，队列已满时阻塞直到有空位或 ctx 结束
func (p *WorkerPool) SubmitContext(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.taskQueue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit 尝试提交任务
//
// 如果队列已满，立即返回 false
func (p *WorkerPool) TrySubmit(task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return false
	}

	select {
	case p.taskQueue <- task:
		return true
	default:
		return false
	}
}

// Do 在协程池中执行 fn 并等待其返回
//
// 排队期间 ctx 结束会返回 ctx.Err() 且 fn 不会执行；
// fn 一旦开始执行，Do 会等它返回，调用方可以安全地清理 fn 使用的资源
func (p *WorkerPool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	started := make(chan struct{})

	err := p.SubmitContext(ctx, func() {
		close(started)
		result := ErrTaskPanicked
		defer func() { done <- result }()

		if err := ctx.Err(); err != nil {
			result = err
			return
		}
		result = fn(ctx)
	})
	if err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	select {
	case <-started:
		return <-done
	default:
		return ctx.Err()
	}
}

// Active 正在执行的任务数
func (p *WorkerPool) Active() int {
	return int(p.active.Load())
}

// Queued 排队中的任务数
func (p *WorkerPool) Queued() int {
	return len(p.taskQueue)
}

// Stop 停止协程池，等待已提交的任务执行完毕
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.taskQueue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker 工作协程
func (p *WorkerPool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.run(task)
		}
	}
}

// run 执行任务（捕获 panic）
func (p *WorkerPool) run(task func()) {
	p.active.Add(1)
	defer p.active.Add(-1)

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("任务 panic", zap.String("panic", fmt.Sprint(r)), zap.Stack("stack"))
		}
	}()
	task()
}
