package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"murmur/internal/logging"
	"murmur/internal/pool"
	"murmur/internal/services"
)

// Fixed polling intervals. The configurable processing and pending
// intervals live in Options; these three are behavioural constants.
const (
	// resultSettleInterval covers the window where status already reads
	// completed but the result row is not visible yet.
	resultSettleInterval = 2 * time.Second
	// fallbackPollInterval is used for unknown or missing statuses.
	fallbackPollInterval = 10 * time.Second
	// networkRetryInterval spaces retries after transport failures.
	networkRetryInterval = 10 * time.Second
)

// ErrTaskFailed reports a server-side terminal failure for a task.
var ErrTaskFailed = errors.New("task failed")

// ErrWaitTimeout reports that the caller-configured wait deadline passed
// before the task reached a terminal outcome.
var ErrWaitTimeout = errors.New("timed out waiting for result")

// waitForResult polls status and result endpoints until the task produces
// subtitle content or fails. A zero Options.WaitTimeout waits forever;
// cancellation of ctx aborts the wait.
func (c *Client) waitForResult(ctx context.Context, taskID string) (string, error) {
	log := c.logger.With(logging.String("task_id", taskID))
	start := time.Now()

	for {
		status := ""
		statusResp, err := c.api.TaskStatus(ctx, taskID)
		switch {
		case err == nil:
			status = statusResp.Status
			if status == string(pool.StatusFailed) {
				message := statusResp.ErrorMessage
				if message == "" {
					message = "unknown error"
				}
				return "", fmt.Errorf("%w: %s", ErrTaskFailed, message)
			}
			if status == string(pool.StatusCancelled) {
				return "", fmt.Errorf("%w: cancelled", ErrTaskFailed)
			}
		case errors.Is(err, services.ErrNotFound):
			// Completed tasks leave the pool; the result probe below
			// decides whether this is done or gone.
		case errors.Is(err, services.ErrTransient):
			log.Warn("network error polling status", logging.Error(err))
			if err := sleepCtx(ctx, networkRetryInterval); err != nil {
				return "", err
			}
			continue
		default:
			log.Warn("status poll failed", logging.Error(err))
		}

		result, err := c.api.TaskResult(ctx, taskID)
		switch {
		case err == nil:
			if result.SRTContent != nil && *result.SRTContent != "" {
				log.Info("result ready",
					logging.Duration("elapsed", time.Since(start)),
					logging.Int("srt_bytes", len(*result.SRTContent)),
				)
				return *result.SRTContent, nil
			}
			if result.Status == string(pool.StatusFailed) {
				return "", fmt.Errorf("%w: %s", ErrTaskFailed, "failed during processing")
			}
		case errors.Is(err, services.ErrNotFound):
			// Task may still be settling between pool and result store;
			// fall through to the interval chosen by status.
		case errors.Is(err, services.ErrTransient):
			log.Warn("network error polling result", logging.Error(err))
			if err := sleepCtx(ctx, networkRetryInterval); err != nil {
				return "", err
			}
			continue
		default:
			log.Warn("result poll failed", logging.Error(err))
		}

		if c.opts.WaitTimeout > 0 && time.Since(start) > c.opts.WaitTimeout {
			return "", ErrWaitTimeout
		}

		var wait time.Duration
		switch status {
		case string(pool.StatusProcessing):
			wait = c.opts.ProcessingPollInterval
		case string(pool.StatusPending):
			wait = c.opts.PendingPollInterval
		case string(pool.StatusCompleted):
			wait = resultSettleInterval
		default:
			wait = fallbackPollInterval
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return "", err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
