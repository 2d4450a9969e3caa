package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"murmur/internal/fileutil"
	"murmur/internal/logging"
)

// Pool is the bounded in-memory registry of live tasks plus the persistent
// result store. All mutation funnels through one coarse mutex: task volumes
// are single digits, so serialization wins over throughput.
type Pool struct {
	mu      sync.Mutex
	tasks   map[string]*Task
	order   []string // submission order, drives FIFO dequeue
	maxSize int

	store     *ResultStore
	retention time.Duration
	logger    *slog.Logger
}

// New constructs a pool with the given capacity and result retention window.
func New(store *ResultStore, maxSize int, retention time.Duration, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pool{
		tasks:     make(map[string]*Task),
		maxSize:   maxSize,
		store:     store,
		retention: retention,
		logger:    logger,
	}
}

// TryAdmit inserts task at pending, reporting false without mutation when the
// pool is at capacity. Resubmission under an existing id overwrites the prior
// entry and releases its artifact.
func (p *Pool) TryAdmit(task *Task) bool {
	if task == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.tasks) >= p.maxSize {
		return false
	}

	if old, ok := p.tasks[task.ID]; ok {
		if old.ArtifactPath != "" && old.ArtifactPath != task.ArtifactPath {
			p.releaseArtifact(old)
		}
		p.logger.Info("overwriting existing task", logging.String("task_id", task.ID))
	} else {
		p.order = append(p.order, task.ID)
	}

	p.tasks[task.ID] = task
	p.logger.Info("task admitted",
		logging.String("task_id", task.ID),
		logging.Int("pool_size", len(p.tasks)),
	)
	return true
}

// DequeueNext returns the oldest pending task, atomically transitioned to
// processing with its start timestamp set, or nil when nothing is pending.
// Only the worker loop calls this.
func (p *Pool) DequeueNext() *Task {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, id := range p.order {
		task, ok := p.tasks[id]
		if !ok || task.Status != StatusPending {
			continue
		}
		now := time.Now().UTC()
		task.Status = StatusProcessing
		task.StartedAt = &now
		snapshot := *task
		return &snapshot
	}
	return nil
}

// Complete persists a result for a processing task, then removes the task
// from the pool and deletes its artifact. A persistence failure is routed to
// Fail so the submission is never silently lost.
func (p *Pool) Complete(ctx context.Context, id, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	task, ok := p.tasks[id]
	if !ok {
		return fmt.Errorf("pool: complete: unknown task %s", id)
	}
	if task.Status != StatusProcessing {
		return fmt.Errorf("pool: complete: task %s is %s, not processing", id, task.Status)
	}

	if _, err := p.store.Save(ctx, id, content); err != nil {
		p.failLocked(task, fmt.Sprintf("persist result: %v", err))
		return fmt.Errorf("pool: persist result for %s: %w", id, err)
	}

	now := time.Now().UTC()
	task.Status = StatusCompleted
	task.CompletedAt = &now
	p.releaseArtifact(task)
	p.remove(id)

	p.logger.Info("task completed",
		logging.String("task_id", id),
		logging.Int("srt_length", len(content)),
	)
	return nil
}

// Fail marks a task failed, records the message, and releases its artifact.
// The entry is retained for status queries.
func (p *Pool) Fail(id, message string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	task, ok := p.tasks[id]
	if !ok {
		return false
	}
	if task.Status.Terminal() {
		return false
	}
	p.failLocked(task, message)
	return true
}

func (p *Pool) failLocked(task *Task, message string) {
	now := time.Now().UTC()
	task.Status = StatusFailed
	task.CompletedAt = &now
	task.ErrorMessage = message
	p.releaseArtifact(task)
	p.logger.Error("task failed",
		logging.String("task_id", task.ID),
		logging.String("reason", message),
	)
}

// Cancel transitions a pending or processing task to cancelled and releases
// its artifact. Reports false for unknown or already-terminal tasks.
func (p *Pool) Cancel(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	task, ok := p.tasks[id]
	if !ok {
		return false
	}
	switch task.Status {
	case StatusPending, StatusProcessing:
	default:
		return false
	}

	now := time.Now().UTC()
	task.Status = StatusCancelled
	task.CompletedAt = &now
	p.releaseArtifact(task)
	p.logger.Info("task cancelled", logging.String("task_id", id))
	return true
}

// ClearResult deletes a stored result and its file. Reports false if absent.
func (p *Pool) ClearResult(ctx context.Context, id string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.Delete(ctx, id)
}

// Get returns a copy of the task with the given id.
func (p *Pool) Get(id string) (Task, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	task, ok := p.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// GetResult loads a stored result for the given task id.
func (p *Pool) GetResult(ctx context.Context, id string) (Result, error) {
	return p.store.Get(ctx, id)
}

// Status computes an admission snapshot from the live pool.
func (p *Pool) Status() PoolStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	processing := 0
	for _, task := range p.tasks {
		if task.Status == StatusProcessing {
			processing++
		}
	}
	return PoolStatus{
		IsFull:          len(p.tasks) >= p.maxSize,
		CurrentSize:     len(p.tasks),
		MaxSize:         p.maxSize,
		ProcessingCount: processing,
	}
}

// List returns copies of all tasks in submission order.
func (p *Pool) List() []Task {
	p.mu.Lock()
	defer p.mu.Unlock()

	tasks := make([]Task, 0, len(p.tasks))
	for _, id := range p.order {
		if task, ok := p.tasks[id]; ok {
			tasks = append(tasks, *task)
		}
	}
	return tasks
}

// ListResults returns all indexed results without content.
func (p *Pool) ListResults(ctx context.Context) ([]Result, error) {
	return p.store.List(ctx)
}

// CountsByStatus tallies live tasks per status.
func (p *Pool) CountsByStatus() map[Status]int {
	p.mu.Lock()
	defer p.mu.Unlock()

	counts := make(map[Status]int, 5)
	for _, task := range p.tasks {
		counts[task.Status]++
	}
	return counts
}

// Sweep deletes results older than the retention window. Returns the number
// of results removed.
func (p *Pool) Sweep(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-p.retention)
	expired, err := p.store.ListExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range expired {
		ok, err := p.ClearResult(ctx, id)
		if err != nil {
			p.logger.Warn("failed to clear expired result",
				logging.String("task_id", id),
				logging.Error(err),
			)
			continue
		}
		if ok {
			removed++
			p.logger.Info("expired result cleaned", logging.String("task_id", id))
		}
	}
	return removed, nil
}

// RunSweeper sweeps expired results every interval until ctx is cancelled.
func (p *Pool) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Sweep(ctx); err != nil {
				p.logger.Error("result sweep failed", logging.Error(err))
			}
		}
	}
}

// remove drops the task and its FIFO slot. Caller holds the lock.
func (p *Pool) remove(id string) {
	delete(p.tasks, id)
	for i, ordered := range p.order {
		if ordered == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
}

// releaseArtifact deletes the task's uploaded container. Caller holds the lock.
func (p *Pool) releaseArtifact(task *Task) {
	if task.ArtifactPath == "" {
		return
	}
	if err := fileutil.RemoveIfExists(task.ArtifactPath); err != nil {
		p.logger.Warn("failed to remove artifact",
			logging.String("task_id", task.ID),
			logging.String("path", task.ArtifactPath),
			logging.Error(err),
		)
	}
	task.ArtifactPath = ""
}
