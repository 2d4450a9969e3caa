package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"murmur/internal/fileutil"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List live tasks and stored results on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.apiClient()
			if err != nil {
				return err
			}
			list, err := apiClient.ListTasks(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(list.Tasks) == 0 && len(list.Results) == 0 {
				fmt.Fprintln(out, "No tasks or results on the server.")
				return nil
			}

			if len(list.Tasks) > 0 {
				rows := make([][]string, 0, len(list.Tasks))
				for _, task := range list.Tasks {
					rows = append(rows, []string{
						task.TaskID, task.Status, task.CreatedAt, task.ErrorMessage,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Task", "Status", "Created", "Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				))
			}
			if len(list.Results) > 0 {
				rows := make([][]string, 0, len(list.Results))
				for _, result := range list.Results {
					rows = append(rows, []string{
						result.TaskID, result.CreatedAt, strconv.Itoa(result.SRTLength),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Result", "Created", "SRT bytes"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight},
				))
			}
			return nil
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the lifecycle state of a submitted task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.apiClient()
			if err != nil {
				return err
			}
			status, err := apiClient.TaskStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			rows := [][]string{
				{"status", status.Status},
				{"created", status.CreatedAt},
			}
			if status.StartedAt != "" {
				rows = append(rows, []string{"started", status.StartedAt})
			}
			if status.CompletedAt != "" {
				rows = append(rows, []string{"completed", status.CompletedAt})
			}
			if status.ErrorMessage != "" {
				rows = append(rows, []string{"error", status.ErrorMessage})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Field", "Value"},
				rows,
				[]columnAlignment{alignLeft, alignLeft},
			))
			return nil
		},
	}
}

func newResultCommand(ctx *commandContext) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "result <task-id>",
		Short: "Fetch a finished task's subtitle text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.apiClient()
			if err != nil {
				return err
			}
			result, err := apiClient.TaskResult(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if result.SRTContent == nil {
				return fmt.Errorf("task %s has no result yet (status %s)", args[0], result.Status)
			}

			if target := strings.TrimSpace(outputPath); target != "" {
				if err := fileutil.WriteFileAtomic(target, []byte(*result.SRTContent), 0o644); err != nil {
					return fmt.Errorf("write %s: %w", target, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to %s\n", len(*result.SRTContent), target)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), *result.SRTContent)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the subtitle to a file instead of stdout")
	return cmd
}

func newClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <task-id>",
		Short: "Delete a stored result from the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.apiClient()
			if err != nil {
				return err
			}
			if err := apiClient.ClearResult(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared result for %s\n", args[0])
			return nil
		},
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a queued task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			apiClient, err := ctx.apiClient()
			if err != nil {
				return err
			}
			if err := apiClient.Cancel(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancelled %s\n", args[0])
			return nil
		},
	}
}
