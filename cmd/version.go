package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/romreviewer/DOWNitUP/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and check for updates",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "DOWNitUP %s (built %s)\n", Version, BuildTime)

		check, _ := cmd.Flags().GetBool("check")
		if !check {
			return nil
		}
		info, err := version.NewChecker().Check(cmd.Context(), Version)
		if err != nil {
			return err
		}
		switch {
		case info == nil:
			fmt.Fprintln(out, "Development build; update check skipped.")
		case info.UpdateAvailable:
			fmt.Fprintf(out, "Update available: %s\n%s\n", info.LatestVersion, info.ReleaseURL)
		default:
			fmt.Fprintln(out, "You are running the latest version.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("check", false, "Check for a newer release")
}
