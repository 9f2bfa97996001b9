package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/romreviewer/DOWNitUP/internal/engine/types"
	"github.com/romreviewer/DOWNitUP/internal/utils"
)

var (
	stateError       = lipgloss.AdaptiveColor{Light: "#d32f2f", Dark: "#ff5555"}
	statePaused      = lipgloss.AdaptiveColor{Light: "#f57c00", Dark: "#ffb86c"}
	stateDownloading = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#50fa7b"}
	stateDone        = lipgloss.AdaptiveColor{Light: "#7b1fa2", Dark: "#bd93f9"}
	stateQueued      = lipgloss.AdaptiveColor{Light: "#4a4a4a", Dark: "#a9b1d6"}

	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

const maxNameWidth = 40

func statusColor(s types.Status) lipgloss.TerminalColor {
	switch s {
	case types.StatusDownloading:
		return stateDownloading
	case types.StatusPaused:
		return statePaused
	case types.StatusCompleted:
		return stateDone
	case types.StatusFailed, types.StatusCancelled:
		return stateError
	default:
		return stateQueued
	}
}

var lsCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"l", "list"},
	Short:   "List downloads",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		raw, _ := cmd.Flags().GetStringSlice("status")
		var statuses []types.Status
		for _, s := range raw {
			st := types.Status(strings.ToUpper(strings.TrimSpace(s)))
			if !st.Valid() {
				return fmt.Errorf("unknown status %q", s)
			}
			statuses = append(statuses, st)
		}

		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		list, err := client.List(cmd.Context(), statuses...)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(out, "No downloads.")
			return nil
		}
		fmt.Fprintln(out, renderTransfers(list))
		return nil
	},
}

// renderTransfers formats list as a table, one row per transfer.
func renderTransfers(list []types.Transfer) string {
	rows := make([][]string, 0, len(list))
	statuses := make([]types.Status, 0, len(list))
	for _, t := range list {
		rows = append(rows, transferRow(t))
		statuses = append(statuses, t.Status)
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("ID", "NAME", "STATUS", "PROGRESS", "SIZE", "SPEED", "ETA").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 2 && row >= 0 && row < len(statuses) {
				return cellStyle.Foreground(statusColor(statuses[row]))
			}
			return cellStyle
		}).
		String()
}

func transferRow(t types.Transfer) []string {
	progress, size, speed, eta := "-", "-", "-", "-"
	if t.TotalBytes > 0 {
		progress = fmt.Sprintf("%.1f%%", t.Progress()*100)
		size = utils.FormatBytes(t.TotalBytes)
	} else if t.DownloadedBytes > 0 {
		size = utils.FormatBytes(t.DownloadedBytes)
	}
	if t.Status == types.StatusDownloading {
		speed = utils.FormatSpeed(t.Speed)
		if t.TotalBytes > 0 {
			eta = utils.FormatETA(t.TotalBytes-t.DownloadedBytes, t.Speed)
		}
	}
	return []string{
		strconv.FormatInt(t.ID, 10),
		truncate(t.Name, maxNameWidth),
		string(t.Status),
		progress,
		size,
		speed,
		eta,
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().StringSlice("status", nil, "Only show these statuses (e.g. --status paused,failed)")
}
