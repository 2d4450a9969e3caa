package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"murmur/internal/fileutil"
	"murmur/internal/logging"
	"murmur/internal/services/ffmpeg"
)

// Options configures a submission run.
type Options struct {
	Model string
	// KeepFiles preserves extracted audio and task containers after the run.
	KeepFiles bool
	// WorkDir holds intermediate files. Created (and removed, unless
	// KeepFiles) by Run when empty.
	WorkDir string

	ProcessingPollInterval time.Duration
	PendingPollInterval    time.Duration
	PoolFullWaitInterval   time.Duration
	// WaitTimeout bounds how long a single task's result is awaited.
	// Zero waits forever.
	WaitTimeout time.Duration
}

// Outcome records the final state of one input file.
type Outcome struct {
	Input   string
	TaskID  string
	Success bool
	Err     error
}

// Summary aggregates a run's outcomes.
type Summary struct {
	Succeeded int
	Failed    int
	Outcomes  []Outcome
}

// Client submits transcription work to a murmur server.
type Client struct {
	api    *APIClient
	ffmpeg *ffmpeg.Service
	opts   Options
	logger *slog.Logger

	mu       sync.Mutex
	outcomes map[string]Outcome
	wg       sync.WaitGroup
}

// New builds a client around an API client and an audio encoder.
func New(apiClient *APIClient, encoder *ffmpeg.Service, opts Options, logger *slog.Logger) (*Client, error) {
	if apiClient == nil || encoder == nil {
		return nil, errors.New("client requires api client and encoder")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.ProcessingPollInterval <= 0 {
		opts.ProcessingPollInterval = 15 * time.Second
	}
	if opts.PendingPollInterval <= 0 {
		opts.PendingPollInterval = 60 * time.Second
	}
	if opts.PoolFullWaitInterval <= 0 {
		opts.PoolFullWaitInterval = 60 * time.Second
	}
	return &Client{
		api:      apiClient,
		ffmpeg:   encoder,
		opts:     opts,
		logger:   logger,
		outcomes: make(map[string]Outcome),
	}, nil
}

// Run scans root for videos and processes each one: extract audio, package,
// submit, then poll for the result in the background. Submission is serial;
// polling overlaps. Run returns once every spawned poller has finished.
func (c *Client) Run(ctx context.Context, root string) (Summary, error) {
	videos, err := ScanVideos(root)
	if err != nil {
		return Summary{}, fmt.Errorf("scan %s: %w", root, err)
	}
	if len(videos) == 0 {
		c.logger.Info("no videos need transcription", logging.String("root", root))
		return Summary{}, nil
	}
	c.logger.Info("scan complete",
		logging.String("root", root),
		logging.Int("videos", len(videos)),
	)
	return c.ProcessFiles(ctx, videos)
}

// ProcessFiles runs the submission pipeline over an explicit input list.
func (c *Client) ProcessFiles(ctx context.Context, videos []string) (Summary, error) {
	workDir, cleanup, err := c.ensureWorkDir()
	if err != nil {
		return Summary{}, err
	}

	for i, video := range videos {
		c.logger.Info("processing input",
			logging.String("video", video),
			logging.String("progress", fmt.Sprintf("%d/%d", i+1, len(videos))),
		)
		if err := ctx.Err(); err != nil {
			c.record(video, Outcome{Input: video, Err: err})
			continue
		}
		c.submitOne(ctx, workDir, video)
	}

	c.wg.Wait()
	cleanup()
	return c.summary(), nil
}

// submitOne performs the serial half of the pipeline for a single input
// and spawns the background poller on successful submission.
func (c *Client) submitOne(ctx context.Context, workDir, video string) {
	audioPath := filepath.Join(workDir, audioFileName(video))
	if err := c.ffmpeg.ExtractAudio(ctx, video, audioPath); err != nil {
		c.logger.Error("audio extraction failed",
			logging.String("video", video),
			logging.Error(err),
		)
		c.record(video, Outcome{Input: video, Err: err})
		return
	}

	taskID := uuid.NewString()
	containerPath, err := packageTask(workDir, audioPath, taskID, c.opts.Model)
	if err != nil {
		c.logger.Error("packaging failed",
			logging.String("video", video),
			logging.Error(err),
		)
		c.cleanupFiles(audioPath)
		c.record(video, Outcome{Input: video, Err: err})
		return
	}

	if err := c.waitForPoolSlot(ctx); err != nil {
		c.cleanupFiles(audioPath, containerPath)
		c.record(video, Outcome{Input: video, TaskID: taskID, Err: err})
		return
	}

	if err := c.api.Submit(ctx, taskID, containerPath); err != nil {
		c.logger.Error("submission failed",
			logging.String("video", video),
			logging.String("task_id", taskID),
			logging.Error(err),
		)
		c.cleanupFiles(audioPath, containerPath)
		c.record(video, Outcome{Input: video, TaskID: taskID, Err: err})
		return
	}
	c.logger.Info("task submitted",
		logging.String("video", video),
		logging.String("task_id", taskID),
	)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.cleanupFiles(audioPath, containerPath)
		c.awaitOne(ctx, taskID, video)
	}()
}

// awaitOne polls one submitted task to its terminal outcome and writes the
// subtitle beside the input on success.
func (c *Client) awaitOne(ctx context.Context, taskID, video string) {
	content, err := c.waitForResult(ctx, taskID)
	if err != nil {
		c.logger.Error("task did not produce a result",
			logging.String("video", video),
			logging.String("task_id", taskID),
			logging.Error(err),
		)
		c.record(video, Outcome{Input: video, TaskID: taskID, Err: err})
		return
	}

	srtPath := SubtitlePath(video)
	if err := fileutil.WriteFileAtomic(srtPath, []byte(content), 0o644); err != nil {
		c.logger.Error("failed to write subtitle",
			logging.String("path", srtPath),
			logging.Error(err),
		)
		c.record(video, Outcome{Input: video, TaskID: taskID, Err: err})
		return
	}
	c.logger.Info("subtitle written",
		logging.String("path", srtPath),
		logging.Int("bytes", len(content)),
	)
	c.record(video, Outcome{Input: video, TaskID: taskID, Success: true})
}

// waitForPoolSlot blocks until the server reports free capacity. Errors
// while probing are treated as "full" and retried on the same cadence.
func (c *Client) waitForPoolSlot(ctx context.Context) error {
	for {
		status, err := c.api.PoolStatus(ctx)
		if err == nil && !status.IsFull {
			return nil
		}
		if err != nil {
			c.logger.Warn("pool status check failed", logging.Error(err))
		} else {
			c.logger.Info("server pool full, waiting",
				logging.Duration("retry_in", c.opts.PoolFullWaitInterval),
			)
		}
		if err := sleepCtx(ctx, c.opts.PoolFullWaitInterval); err != nil {
			return err
		}
	}
}

func (c *Client) ensureWorkDir() (string, func(), error) {
	if c.opts.WorkDir != "" {
		if err := os.MkdirAll(c.opts.WorkDir, 0o755); err != nil {
			return "", nil, fmt.Errorf("create work dir: %w", err)
		}
		return c.opts.WorkDir, func() {}, nil
	}
	dir, err := os.MkdirTemp("", "murmur-work-*")
	if err != nil {
		return "", nil, fmt.Errorf("create work dir: %w", err)
	}
	cleanup := func() {
		if c.opts.KeepFiles {
			c.logger.Info("keeping work dir", logging.String("dir", dir))
			return
		}
		if err := os.RemoveAll(dir); err != nil {
			c.logger.Warn("failed to remove work dir", logging.Error(err))
		}
	}
	return dir, cleanup, nil
}

func (c *Client) cleanupFiles(paths ...string) {
	if c.opts.KeepFiles {
		return
	}
	for _, path := range paths {
		if err := fileutil.RemoveIfExists(path); err != nil {
			c.logger.Warn("failed to remove temp file",
				logging.String("path", path),
				logging.Error(err),
			)
		}
	}
}

func (c *Client) record(input string, outcome Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[input] = outcome
}

func (c *Client) summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	inputs := make([]string, 0, len(c.outcomes))
	for input := range c.outcomes {
		inputs = append(inputs, input)
	}
	sort.Strings(inputs)

	var out Summary
	for _, input := range inputs {
		outcome := c.outcomes[input]
		if outcome.Success {
			out.Succeeded++
		} else {
			out.Failed++
		}
		out.Outcomes = append(out.Outcomes, outcome)
	}
	return out
}
