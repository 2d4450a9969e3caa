package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"murmur/internal/client"
	"murmur/internal/logging"
	"murmur/internal/services/ffmpeg"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var model string
	var keepFiles bool
	var waitTimeout time.Duration

	cmd := &cobra.Command{
		Use:   "run <path>",
		Short: "Transcribe a video file or every video under a directory",
		Long: "Scans the given directory for video files without subtitles, extracts " +
			"their audio, and submits each one to the server for transcription. " +
			"Finished subtitles are written beside the inputs. A single video file " +
			"may be given instead of a directory.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			logger, err := logging.New(logging.Options{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			apiClient, err := ctx.apiClient()
			if err != nil {
				return err
			}
			if _, err := apiClient.Health(cmd.Context()); err != nil {
				return fmt.Errorf("server %s unavailable: %w", ctx.serverURL(), err)
			}

			encoder := ffmpeg.NewService(cfg.FFmpeg.Binary)
			if !encoder.Available(cmd.Context()) {
				return fmt.Errorf("%s is not available; install ffmpeg first", cfg.FFmpeg.Binary)
			}

			if strings.TrimSpace(model) == "" {
				model = cfg.Whisper.Model
			}
			if waitTimeout == 0 {
				waitTimeout = time.Duration(cfg.Client.WaitTimeout) * time.Second
			}

			c, err := client.New(apiClient, encoder, client.Options{
				Model:                  model,
				KeepFiles:              keepFiles || cfg.Client.KeepFiles,
				ProcessingPollInterval: time.Duration(cfg.Client.ProcessingPollInterval) * time.Second,
				PendingPollInterval:    time.Duration(cfg.Client.PendingPollInterval) * time.Second,
				PoolFullWaitInterval:   time.Duration(cfg.Client.PoolFullWaitInterval) * time.Second,
				WaitTimeout:            waitTimeout,
			}, logger)
			if err != nil {
				return err
			}

			target := args[0]
			info, err := os.Stat(target)
			if err != nil {
				return fmt.Errorf("stat %s: %w", target, err)
			}

			var summary client.Summary
			if info.IsDir() {
				summary, err = c.Run(cmd.Context(), target)
			} else {
				summary, err = c.ProcessFiles(cmd.Context(), []string{target})
			}
			if err != nil {
				return err
			}

			printSummary(cmd, summary)
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d inputs failed", summary.Failed, summary.Failed+summary.Succeeded)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&model, "model", "m", "", "Whisper model (defaults to the configured model)")
	cmd.Flags().BoolVar(&keepFiles, "keep-files", false, "Keep extracted audio and task containers")
	cmd.Flags().DurationVar(&waitTimeout, "wait-timeout", 0, "Give up waiting for a result after this long (0 waits forever)")
	return cmd
}

func printSummary(cmd *cobra.Command, summary client.Summary) {
	out := cmd.OutOrStdout()
	if len(summary.Outcomes) == 0 {
		fmt.Fprintln(out, "Nothing to do.")
		return
	}

	rows := make([][]string, 0, len(summary.Outcomes))
	for _, outcome := range summary.Outcomes {
		state := "ok"
		detail := ""
		if !outcome.Success {
			state = "failed"
			if outcome.Err != nil {
				detail = outcome.Err.Error()
			}
		}
		rows = append(rows, []string{outcome.Input, state, detail})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Input", "Outcome", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft},
	))
	fmt.Fprintf(out, "%d succeeded, %d failed\n", summary.Succeeded, summary.Failed)
}
