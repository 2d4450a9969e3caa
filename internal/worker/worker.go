package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"murmur/internal/artifact"
	"murmur/internal/logging"
	"murmur/internal/pool"
)

// Transcriber is the external transcription collaborator.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, model, outputDir string) (string, error)
}

// Options configures the processing loop.
type Options struct {
	// TempDir holds per-task extraction directories.
	TempDir string
	// DefaultModel is used when a task's metadata names none.
	DefaultModel string
	// PollInterval is the idle wait between empty dequeues.
	PollInterval time.Duration
	// ErrorRetryInterval is the backoff after an unexpected loop error.
	ErrorRetryInterval time.Duration
}

// Loop is the single consumer of the task pool. Exactly one transcription is
// in flight at any time regardless of pool capacity: capacity bounds queuing,
// the loop bounds execution.
type Loop struct {
	pool        *pool.Pool
	transcriber Transcriber
	opts        Options
	logger      *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a worker loop.
func New(p *pool.Pool, transcriber Transcriber, opts Options, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.ErrorRetryInterval <= 0 {
		opts.ErrorRetryInterval = 5 * time.Second
	}
	return &Loop{pool: p, transcriber: transcriber, opts: opts, logger: logger}
}

// Start launches the background loop.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return errors.New("worker already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.running = true
	l.wg.Add(1)
	go l.run(runCtx)

	l.logger.Info("worker loop started")
	return nil
}

// Stop cancels the loop and waits for the in-flight task, if any, to finish.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	cancel := l.cancel
	l.running = false
	l.cancel = nil
	l.mu.Unlock()

	cancel()
	l.wg.Wait()
	l.logger.Info("worker loop stopped")
}

// Running reports whether the loop is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		idle, err := l.runOnce(ctx)
		switch {
		case err != nil:
			// Not attributable to a specific task; the loop itself must
			// survive. Back off and continue.
			l.logger.Error("worker loop error", logging.Error(err))
			l.sleep(ctx, l.opts.ErrorRetryInterval)
		case idle:
			l.sleep(ctx, l.opts.PollInterval)
		}
	}
}

// runOnce dequeues and processes at most one task. It reports idle=true when
// nothing was pending. Panics are converted to errors so the loop never dies.
func (l *Loop) runOnce(ctx context.Context) (idle bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			idle = false
			err = fmt.Errorf("panic in worker loop: %v", r)
		}
	}()

	task := l.pool.DequeueNext()
	if task == nil {
		return true, nil
	}

	l.processTask(ctx, task)
	return false, nil
}

// processTask drives one task from encrypted artifact to stored result. Every
// failure is recorded on the task; none propagates to the loop.
func (l *Loop) processTask(ctx context.Context, task *pool.Task) {
	logger := l.logger.With(logging.String("task_id", task.ID))
	logger.Info("processing task", logging.String("filename", task.Metadata.Filename))

	container, err := os.ReadFile(task.ArtifactPath)
	if err != nil {
		l.fail(task.ID, fmt.Sprintf("read artifact: %v", err))
		return
	}

	meta, payload, err := artifact.Decode(container, task.Metadata.Password)
	if err != nil {
		l.fail(task.ID, fmt.Sprintf("decode artifact: %v", err))
		return
	}

	workDir, err := os.MkdirTemp(l.opts.TempDir, "task-"+task.ID+"-*")
	if err != nil {
		l.fail(task.ID, fmt.Sprintf("create work dir: %v", err))
		return
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn("failed to clean work dir", logging.String("dir", workDir), logging.Error(err))
		}
	}()

	audioPath := filepath.Join(workDir, artifact.PayloadName)
	if err := os.WriteFile(audioPath, payload, 0o600); err != nil {
		l.fail(task.ID, fmt.Sprintf("stage audio: %v", err))
		return
	}

	model := meta.Model
	if model == "" {
		model = l.opts.DefaultModel
	}

	started := time.Now()
	content, err := l.transcriber.Transcribe(ctx, audioPath, model, workDir)
	if err != nil {
		l.fail(task.ID, fmt.Sprintf("transcribe: %v", err))
		return
	}

	if err := l.pool.Complete(ctx, task.ID, content); err != nil {
		// Complete already routed the failure onto the task.
		logger.Error("completion failed", logging.Error(err))
		return
	}
	logger.Info("transcription finished",
		logging.Duration("elapsed", time.Since(started).Round(time.Millisecond)),
		logging.Int("srt_length", len(content)),
	)
}

func (l *Loop) fail(id, message string) {
	if !l.pool.Fail(id, message) {
		l.logger.Warn("could not record task failure",
			logging.String("task_id", id),
			logging.String("reason", message),
		)
	}
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
