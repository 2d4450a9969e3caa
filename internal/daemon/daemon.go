package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/pool"
	"murmur/internal/worker"
)

const sweepInterval = time.Hour

// Daemon coordinates the murmur server: the task pool, the worker loop, the
// retention sweeper, and the HTTP API, with flock-based locking to prevent
// multiple instances over the same storage directories.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	pool   *pool.Pool
	store  *pool.ResultStore
	loop   *worker.Loop
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	WorkerRunning bool
	Pool          pool.PoolStatus
	LockFilePath  string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *pool.ResultStore, p *pool.Pool, loop *worker.Loop, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || p == nil || loop == nil {
		return nil, errors.New("daemon requires config, store, pool, and worker loop")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "murmurd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		pool:     p,
		store:    store,
		loop:     loop,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock and launches the worker, sweeper, and API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another murmurd instance is already running")
	}

	if err := d.cfg.EnsureDirectories(); err != nil {
		_ = d.lock.Unlock()
		return err
	}
	d.preflight()

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.loop.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		d.cancel = nil
		return fmt.Errorf("start worker: %w", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.pool.RunSweeper(runCtx, sweepInterval)
	}()

	if err := d.api.start(runCtx); err != nil {
		d.loop.Stop()
		cancel()
		d.cancel = nil
		_ = d.lock.Unlock()
		return err
	}

	d.running.Store(true)
	d.logger.Info("murmur daemon started",
		logging.String("lock", d.lockPath),
		logging.String("bind", d.cfg.Paths.APIBind),
	)
	return nil
}

// Stop shuts down background processing and releases the daemon lock.
// The in-flight transcription, if any, is allowed to finish.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.loop.Stop()
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("murmur daemon stopped")
}

// Close stops the daemon and releases held resources.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Status reports runtime information for health checks.
func (d *Daemon) Status() Status {
	return Status{
		Running:       d.running.Load(),
		WorkerRunning: d.loop.Running(),
		Pool:          d.pool.Status(),
		LockFilePath:  d.lockPath,
	}
}

// Addr returns the API listener address once started, for tests and logs.
func (d *Daemon) Addr() string {
	return d.api.addr()
}
