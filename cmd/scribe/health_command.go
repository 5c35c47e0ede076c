package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"scribe/internal/api"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Show daemon health and queue counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				health, err := client.Health(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, health)
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				overallKind := statusOK
				if health.Status != "ok" {
					overallKind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine("Daemon", overallKind, health.Status, colorize))
				fmt.Fprintln(out, renderStatusLine("Active", statusInfo, fmt.Sprintf("%d", len(health.Active)), colorize))
				fmt.Fprintln(out, renderStatusLine("Queued", statusInfo, fmt.Sprintf("%d of %d", len(health.Queued), health.Capacity), colorize))

				for _, line := range renderSectionHeader("Stages", colorize) {
					fmt.Fprintln(out, line)
				}
				for _, s := range health.Stages {
					kind := statusOK
					message := "ready"
					if !s.Ready {
						kind = statusError
						message = s.Detail
					}
					fmt.Fprintln(out, renderStatusLine(s.Name, kind, message, colorize))
				}

				if len(health.Queue) > 0 {
					statuses := make([]string, 0, len(health.Queue))
					for status := range health.Queue {
						statuses = append(statuses, status)
					}
					sort.Strings(statuses)
					rows := make([][]string, 0, len(statuses))
					for _, status := range statuses {
						rows = append(rows, []string{status, fmt.Sprintf("%d", health.Queue[status])})
					}
					table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
					fmt.Fprintln(out, table)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}
