package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scribe/internal/api"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var showTranscript bool

	cmd := &cobra.Command{
		Use:   "status <task-id>",
		Short: "Show the status of a transcription task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, status)
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				for _, line := range renderSectionHeader("Task "+status.TaskID, colorize) {
					fmt.Fprintln(out, line)
				}
				fmt.Fprintln(out, renderStatusLine("Name", statusInfo, status.Name, colorize))
				fmt.Fprintln(out, renderStatusLine("Status", taskStatusKind(status.Status), status.Status, colorize))
				fmt.Fprintln(out, renderStatusLine("Progress", statusInfo, fmt.Sprintf("%.0f%%", status.Progress*100), colorize))
				if status.Message != "" {
					fmt.Fprintln(out, renderStatusLine("Message", statusInfo, status.Message, colorize))
				}
				if status.ChunkCount > 1 {
					fmt.Fprintln(out, renderStatusLine("Chunks", statusInfo, fmt.Sprintf("%d", status.ChunkCount), colorize))
				}
				if status.CreatedAt != "" {
					fmt.Fprintln(out, renderStatusLine("Created", statusInfo, status.CreatedAt, colorize))
				}
				if status.CompletedAt != "" {
					fmt.Fprintln(out, renderStatusLine("Completed", statusInfo, status.CompletedAt, colorize))
				}
				if status.ErrorMessage != "" {
					fmt.Fprintln(out, renderStatusLine("Error", statusError, fmt.Sprintf("%s: %s", status.ErrorKind, status.ErrorMessage), colorize))
				}

				if showTranscript {
					if status.Transcription == "" {
						fmt.Fprintln(out, "No transcript available yet")
					} else {
						fmt.Fprintln(out)
						fmt.Fprintln(out, status.Transcription)
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	cmd.Flags().BoolVarP(&showTranscript, "transcript", "t", false, "Print the transcript text")
	return cmd
}
