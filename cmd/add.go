package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/romreviewer/DOWNitUP/internal/clipboard"
	"github.com/romreviewer/DOWNitUP/internal/core"
	"github.com/romreviewer/DOWNitUP/internal/utils"
)

var addCmd = &cobra.Command{
	Use:     "add [url]...",
	Aliases: []string{"get"},
	Short:   "Add downloads to the running daemon",
	Long: `Add one or more HTTP(S) URLs, .torrent URLs or magnet links to the
daemon's queue. With --start they begin downloading immediately.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		batchFile, _ := cmd.Flags().GetString("batch")
		fromClipboard, _ := cmd.Flags().GetBool("clipboard")

		urls := append([]string(nil), args...)
		if batchFile != "" {
			fileURLs, err := readURLsFromFile(batchFile)
			if err != nil {
				return fmt.Errorf("failed to read batch file: %w", err)
			}
			urls = append(urls, fileURLs...)
		}
		if fromClipboard {
			if raw := clipboard.ReadURL(); raw != "" {
				urls = append(urls, raw)
			} else {
				fmt.Fprintln(out, "Clipboard does not hold a downloadable link.")
			}
		}
		if len(urls) == 0 {
			return cmd.Help()
		}

		req, err := addRequestFromFlags(cmd)
		if err != nil {
			return err
		}
		if req.Name != "" && len(urls) > 1 {
			return errors.New("--name can only be used with a single URL")
		}

		client, err := newClient(cmd)
		if err != nil {
			return err
		}

		count := 0
		for _, raw := range urls {
			r := req
			r.URL = raw
			id, err := client.Add(cmd.Context(), r)
			if err != nil {
				var dup *core.DuplicateError
				if errors.As(err, &dup) {
					fmt.Fprintf(out, "Skipped %s: already queued as #%d\n", raw, dup.ID)
					continue
				}
				fmt.Fprintf(out, "Error adding %s: %v\n", raw, err)
				continue
			}
			fmt.Fprintf(out, "Added #%d %s\n", id, raw)
			count++
		}
		if count == 0 {
			return errors.New("no downloads were added")
		}
		fmt.Fprintf(out, "Successfully added %d downloads.\n", count)
		return nil
	},
}

func addRequestFromFlags(cmd *cobra.Command) (core.AddRequest, error) {
	output, _ := cmd.Flags().GetString("output")
	name, _ := cmd.Flags().GetString("name")
	conns, _ := cmd.Flags().GetInt("connections")
	noChunking, _ := cmd.Flags().GetBool("no-chunking")
	start, _ := cmd.Flags().GetBool("start")

	if conns < 0 {
		return core.AddRequest{}, fmt.Errorf("invalid connection count %d", conns)
	}
	req := core.AddRequest{
		Path:        output,
		Name:        name,
		Connections: conns,
		Start:       start,
	}
	if output != "" {
		// the daemon resolves relative paths against its own cwd
		req.Path = utils.EnsureAbsPath(output)
	}
	if noChunking {
		off := false
		req.Chunking = &off
	}
	return req, nil
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringP("batch", "b", "", "File containing URLs to download (one per line)")
	addCmd.Flags().StringP("output", "o", "", "Output directory")
	addCmd.Flags().StringP("name", "n", "", "Output filename (single URL only)")
	addCmd.Flags().IntP("connections", "c", 0, "Parallel connections (1-16, default from settings)")
	addCmd.Flags().Bool("no-chunking", false, "Download over a single connection")
	addCmd.Flags().Bool("clipboard", false, "Also add the link currently on the clipboard")
	addCmd.Flags().BoolP("start", "s", false, "Start the downloads immediately")
}
