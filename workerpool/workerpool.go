// Package workerpool runs background tasks on a fixed set of workers with a
// bounded queue, per-task timeouts and graceful shutdown.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"socialauth/logger"
)

var (
	// ErrPoolStopped is returned by Submit after Shutdown.
	ErrPoolStopped = errors.New("worker pool is not running")

	// ErrQueueFull is returned when the task queue is full.
	ErrQueueFull = errors.New("task queue is full")
)

// TaskFunc represents a function to be executed by a worker.
type TaskFunc func(ctx context.Context) error

// Task encapsulates a unit of work to be processed by the worker pool.
type Task struct {
	ID      string
	Execute TaskFunc
	Timeout time.Duration // Optional per-task timeout
}

// Stats is a snapshot of the pool counters.
type Stats struct {
	Submitted int64
	Completed int64
	Failed    int64
	Queued    int
}

// WorkerPool manages a pool of workers that execute tasks concurrently.
type WorkerPool struct {
	name          string
	workers       int
	queueCapacity int
	taskTimeout   time.Duration
	log           *logger.Logger

	taskQueue chan Task

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

// Option defines a functional option for configuring the WorkerPool.
type Option func(*WorkerPool)

// WithName sets a name for the worker pool for identification.
func WithName(name string) Option {
	return func(wp *WorkerPool) {
		wp.name = name
	}
}

// WithLogger sets the logger.
func WithLogger(log *logger.Logger) Option {
	return func(wp *WorkerPool) {
		wp.log = log
	}
}

// WithQueueCapacity sets the capacity of the task queue.
func WithQueueCapacity(capacity int) Option {
	return func(wp *WorkerPool) {
		wp.queueCapacity = capacity
	}
}

// WithDefaultTaskTimeout sets the default timeout for tasks.
func WithDefaultTaskTimeout(timeout time.Duration) Option {
	return func(wp *WorkerPool) {
		wp.taskTimeout = timeout
	}
}

// NewWorkerPool creates a worker pool and starts its workers.
func NewWorkerPool(workers int, options ...Option) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	wp := &WorkerPool{
		name:          "worker-pool",
		workers:       workers,
		queueCapacity: workers * 10,
		taskTimeout:   30 * time.Second,
		ctx:           ctx,
		cancel:        cancel,
	}
	for _, option := range options {
		option(wp)
	}

	wp.taskQueue = make(chan Task, wp.queueCapacity)
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
	return wp
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()
	for task := range wp.taskQueue {
		wp.run(task)
	}
}

func (wp *WorkerPool) run(task Task) {
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = wp.taskTimeout
	}
	ctx, cancel := context.WithTimeout(wp.ctx, timeout)
	defer cancel()

	start := time.Now()
	err := wp.execute(ctx, task)
	if err != nil {
		wp.failed.Add(1)
		wp.log.Warn(ctx, "task failed",
			logger.F("pool", wp.name),
			logger.F("task_id", task.ID),
			logger.F("duration_ms", time.Since(start).Milliseconds()),
			logger.Err(err),
		)
		return
	}
	wp.completed.Add(1)
}

func (wp *WorkerPool) execute(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
			wp.log.Error(ctx, "recovered from task panic",
				logger.F("pool", wp.name),
				logger.F("task_id", task.ID),
				logger.F("stack", string(debug.Stack())),
			)
		}
	}()
	return task.Execute(ctx)
}

// Submit queues task without blocking. It returns ErrQueueFull when the
// queue is at capacity and ErrPoolStopped after Shutdown.
func (wp *WorkerPool) Submit(task Task) error {
	if task.Execute == nil {
		return errors.New("task function cannot be nil")
	}

	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return ErrPoolStopped
	}

	n := wp.submitted.Add(1)
	if task.ID == "" {
		task.ID = fmt.Sprintf("task-%d", n)
	}

	select {
	case wp.taskQueue <- task:
		return nil
	default:
		wp.submitted.Add(-1)
		return ErrQueueFull
	}
}

// Shutdown stops accepting tasks and waits for queued tasks to finish. When
// ctx ends first, running tasks are cancelled and ctx's error is returned.
func (wp *WorkerPool) Shutdown(ctx context.Context) error {
	wp.mu.Lock()
	if !wp.stopped {
		wp.stopped = true
		close(wp.taskQueue)
	}
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.cancel()
		return nil
	case <-ctx.Done():
		wp.cancel()
		<-done
		return ctx.Err()
	}
}

// Stats returns the pool counters.
func (wp *WorkerPool) Stats() Stats {
	return Stats{
		Submitted: wp.submitted.Load(),
		Completed: wp.completed.Load(),
		Failed:    wp.failed.Load(),
		Queued:    len(wp.taskQueue),
	}
}
