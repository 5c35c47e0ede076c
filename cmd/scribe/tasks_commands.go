package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scribe/internal/api"
)

func newTasksCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List transcription tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				tasks, err := client.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, api.TaskListResponse{Tasks: tasks})
				}
				if len(tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No tasks")
					return nil
				}
				rows := make([][]string, 0, len(tasks))
				for _, task := range tasks {
					rows = append(rows, []string{
						task.TaskID,
						task.Name,
						task.Status,
						fmt.Sprintf("%.0f%%", task.Progress*100),
						task.CreatedAt,
					})
				}
				table := renderTable(
					[]string{"ID", "Name", "Status", "Progress", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by task status (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-id>",
		Short: "Cancel a queued or running task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				task, err := client.Cancel(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if task.Status == "cancelled" {
					fmt.Fprintf(cmd.OutOrStdout(), "Task %s cancelled\n", task.TaskID)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Task %s cancellation requested (currently %s)\n", task.TaskID, task.Status)
				}
				return nil
			})
		},
	}
}

func newRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <task-id>",
		Short: "Remove a finished task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				if err := client.Remove(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Task %s removed\n", args[0])
				return nil
			})
		},
	}
}
