package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"scribe/internal/api"
	"scribe/internal/language"
	"scribe/internal/services/acquire"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var langFlag string
	var filenameFlag string
	var durationFlag float64
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "submit <url|drive-link|drive-id>",
		Short: "Submit a media source for transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := buildSubmitRequest(args[0], filenameFlag, langFlag, durationFlag)
			return ctx.withClient(func(client *api.Client) error {
				resp, err := client.Submit(cmd.Context(), req)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Task %s queued (%s)\n", resp.TaskID, language.Display(req.Language))
				if resp.EstimatedTime != "" {
					fmt.Fprintf(out, "Estimated time: %s\n", resp.EstimatedTime)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&langFlag, "language", "l", "", "Language hint (code, name, or BCP-47 tag)")
	cmd.Flags().StringVar(&filenameFlag, "filename", "", "Name for the source media")
	cmd.Flags().Float64Var(&durationFlag, "duration", 0, "Declared media duration in seconds")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON output")
	return cmd
}

// buildSubmitRequest classifies the positional argument as a direct URL, a
// Drive share link, or a bare Drive file id.
func buildSubmitRequest(source, filename, lang string, duration float64) api.SubmitRequest {
	req := api.SubmitRequest{
		Filename:        strings.TrimSpace(filename),
		Language:        strings.TrimSpace(lang),
		DurationSeconds: duration,
	}
	source = strings.TrimSpace(source)
	switch {
	case acquire.ExtractDriveID(source) != "":
		req.DriveID = acquire.ExtractDriveID(source)
	case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
		req.URL = source
	default:
		req.DriveID = source
	}
	return req
}
