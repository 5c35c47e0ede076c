package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scribe/internal/api"
)

func newMonitorCommand(ctx *commandContext) *cobra.Command {
	monitorCmd := &cobra.Command{
		Use:   "monitor",
		Short: "Control the remote folder monitor",
	}

	monitorCmd.AddCommand(newMonitorActionCommand(ctx, "start", "Start watching the configured folder",
		func(client *api.Client, cmd *cobra.Command) (api.MonitorStatus, error) {
			return client.MonitorStart(cmd.Context())
		}))
	monitorCmd.AddCommand(newMonitorActionCommand(ctx, "stop", "Stop watching the configured folder",
		func(client *api.Client, cmd *cobra.Command) (api.MonitorStatus, error) {
			return client.MonitorStop(cmd.Context())
		}))
	monitorCmd.AddCommand(newMonitorActionCommand(ctx, "check-now", "Poll the folder immediately",
		func(client *api.Client, cmd *cobra.Command) (api.MonitorStatus, error) {
			return client.MonitorCheckNow(cmd.Context())
		}))
	monitorCmd.AddCommand(newMonitorStatusCommand(ctx))

	return monitorCmd
}

func newMonitorActionCommand(ctx *commandContext, use, short string, action func(*api.Client, *cobra.Command) (api.MonitorStatus, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := action(client, cmd)
				if err != nil {
					return err
				}
				printMonitorStatus(cmd, status)
				return nil
			})
		},
	}
}

func newMonitorStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show folder monitor status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				status, err := client.MonitorStatus(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, status)
				}
				printMonitorStatus(cmd, status)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

func printMonitorStatus(cmd *cobra.Command, status api.MonitorStatus) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	runningKind := statusWarn
	runningText := "stopped"
	if status.Running {
		runningKind = statusOK
		runningText = "running"
	}
	fmt.Fprintln(out, renderStatusLine("Monitor", runningKind, runningText, colorize))
	if status.FolderID != "" {
		fmt.Fprintln(out, renderStatusLine("Folder", statusInfo, status.FolderID, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Interval", statusInfo, fmt.Sprintf("%ds", status.IntervalSecs), colorize))
	if status.LastCheck != "" {
		fmt.Fprintln(out, renderStatusLine("Last check", statusInfo, status.LastCheck, colorize))
	}
	if status.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusError, status.LastError, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("Processed", statusInfo, fmt.Sprintf("%d", status.ProcessedCount), colorize))
	fmt.Fprintln(out, renderStatusLine("In flight", statusInfo, fmt.Sprintf("%d", status.PendingCount), colorize))
}
