package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/romreviewer/DOWNitUP/internal/engine/types"
	"github.com/romreviewer/DOWNitUP/internal/utils"
)

var watchCmd = &cobra.Command{
	Use:   "watch <ID>",
	Short: "Follow a download's progress until it stops",
	Args:  cobra.ExactArgs(1),
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
		stream, err := client.Observe(cmd.Context(), ids[0])
		if err != nil {
			return err
		}
		for snap := range stream {
			fmt.Fprintln(out, progressLine(snap))
			if snap.Status != types.StatusDownloading && snap.Status != types.StatusQueued {
				if snap.Status == types.StatusFailed {
					return fmt.Errorf("download failed: %s", snap.LastError)
				}
				return nil
			}
		}
		return cmd.Context().Err()
	},
}

func progressLine(t types.Transfer) string {
	line := fmt.Sprintf("#%d %s %s", t.ID, t.Status, utils.FormatBytes(t.DownloadedBytes))
	if t.TotalBytes > 0 {
		line += fmt.Sprintf(" / %s (%.1f%%)", utils.FormatBytes(t.TotalBytes), t.Progress()*100)
	}
	if t.Status == types.StatusDownloading {
		line += " " + utils.FormatSpeed(t.Speed)
		if t.TotalBytes > 0 {
			line += " eta " + utils.FormatETA(t.TotalBytes-t.DownloadedBytes, t.Speed)
		}
	}
	return line
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
