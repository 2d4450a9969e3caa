package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server liveness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.apiClient()
			if err != nil {
				return err
			}
			health, err := apiClient.Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("server %s unavailable: %w", ctx.serverURL(), err)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			kind := statusOK
			if health.Status != "healthy" {
				kind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("Server", kind, health.Status, colorize))
			workerKind := statusOK
			workerText := "running"
			if !health.WorkerRunning {
				workerKind = statusError
				workerText = "stopped"
			}
			fmt.Fprintln(out, renderStatusLine("Worker", workerKind, workerText, colorize))
			fmt.Fprintln(out, renderStatusLine("Pool", statusInfo,
				fmt.Sprintf("%d/%d tasks, %d processing",
					health.PoolStatus.CurrentSize,
					health.PoolStatus.MaxSize,
					health.PoolStatus.ProcessingCount),
				colorize))
			return nil
		},
	}
}

func newPoolCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pool",
		Short: "Show the server admission snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.apiClient()
			if err != nil {
				return err
			}
			status, err := apiClient.PoolStatus(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Size", "Max", "Processing", "Full"},
				[][]string{{
					strconv.Itoa(status.CurrentSize),
					strconv.Itoa(status.MaxSize),
					strconv.Itoa(status.ProcessingCount),
					strconv.FormatBool(status.IsFull),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate task and worker counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.apiClient()
			if err != nil {
				return err
			}
			stats, err := apiClient.Stats(cmd.Context())
			if err != nil {
				return err
			}

			rows := [][]string{
				{"pool size", fmt.Sprintf("%d/%d", stats.PoolStatus.CurrentSize, stats.PoolStatus.MaxSize)},
				{"worker running", strconv.FormatBool(stats.Worker.Running)},
				{"stored results", strconv.Itoa(stats.ResultCount)},
			}
			for _, status := range []string{"pending", "processing", "completed", "failed", "cancelled"} {
				if count, ok := stats.TaskCounts[status]; ok {
					rows = append(rows, []string{status + " tasks", strconv.Itoa(count)})
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Metric", "Value"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}
}
