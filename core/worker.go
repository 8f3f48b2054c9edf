package core

import (
	"context"
	"errors"
	"sync"

	"logwarden/metrics"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by TrySubmit when the task queue is at capacity.
var ErrQueueFull = errors.New("worker pool queue is full")

// WorkerPool runs background tasks on a fixed number of goroutines over a
// bounded queue. It replaces detached fire-and-forget evaluation with work
// that is observable and joinable at shutdown.
type WorkerPool struct {
	workers int
	taskCh  chan func()
	wg      sync.WaitGroup
	logger  *zap.SugaredLogger
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	mu      sync.Mutex
}

// NewWorkerPool creates a pool with the given worker count and queue size.
// Workers do not start until Start is called.
func NewWorkerPool(ctx context.Context, workers, queueSize int, logger *zap.SugaredLogger) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	poolCtx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		workers: workers,
		taskCh:  make(chan func(), queueSize),
		logger:  logger,
		ctx:     poolCtx,
		cancel:  cancel,
	}
}

// Start launches the worker goroutines. Safe to call once.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.running {
		return
	}
	wp.running = true
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()
	for {
		select {
		case task, ok := <-wp.taskCh:
			if !ok {
				return
			}
			metrics.PipelineQueueDepth.Dec()
			wp.runTask(task)
		case <-wp.ctx.Done():
			// Drain what is already queued before exiting.
			for {
				select {
				case task, ok := <-wp.taskCh:
					if !ok {
						return
					}
					metrics.PipelineQueueDepth.Dec()
					wp.runTask(task)
				default:
					return
				}
			}
		}
	}
}

func (wp *WorkerPool) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			wp.logger.Errorw("Recovered from panic in worker task", "panic", r)
		}
	}()
	task()
}

// TrySubmit queues a task without blocking. Returns ErrQueueFull when the
// queue is at capacity so callers can drop work instead of stalling.
func (wp *WorkerPool) TrySubmit(task func()) error {
	select {
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	default:
	}
	select {
	case wp.taskCh <- task:
		metrics.PipelineQueueDepth.Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop cancels the pool and waits for workers to drain the queue.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if !wp.running {
		wp.mu.Unlock()
		return
	}
	wp.running = false
	wp.mu.Unlock()

	wp.cancel()
	wp.wg.Wait()
}

// QueueLen reports the number of queued tasks, used by tests and health
// reporting.
func (wp *WorkerPool) QueueLen() int {
	return len(wp.taskCh)
}
