package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/romreviewer/DOWNitUP/internal/core"
)

// controlCommand builds a command applying one control operation to every
// id argument.
func controlCommand(use string, aliases []string, short, done string, op func(core.DownloadService, context.Context, int64) error) *cobra.Command {
	return &cobra.Command{
		Use:     use + " <ID>...",
		Aliases: aliases,
		Short:   short,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			failed := 0
			for _, id := range ids {
				if err := op(client, cmd.Context(), id); err != nil {
					fmt.Fprintf(out, "Error: #%d: %v\n", id, err)
					failed++
					continue
				}
				fmt.Fprintf(out, "%s #%d\n", done, id)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d operations failed", failed, len(ids))
			}
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(
		controlCommand("pause", nil, "Pause downloads, keeping their progress", "Paused",
			core.DownloadService.Pause),
		controlCommand("resume", []string{"start"}, "Start or resume downloads", "Started",
			core.DownloadService.Start),
		controlCommand("cancel", []string{"stop"}, "Cancel downloads and remove their partial files", "Cancelled",
			core.DownloadService.Cancel),
		controlCommand("rm", []string{"kill", "delete"}, "Remove downloads and their partial files", "Removed",
			core.DownloadService.Delete),
		controlCommand("requeue", []string{"retry"}, "Queue finished or failed downloads again", "Requeued",
			core.DownloadService.Requeue),
	)
}
