package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/romreviewer/DOWNitUP/internal/config"
	"github.com/romreviewer/DOWNitUP/internal/utils"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var logLevel string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "downitup",
	Short: "A resumable multi-connection download manager",
	Long: `DOWNitUP downloads HTTP(S) files over several parallel connections and
torrents through a background daemon. Start the daemon with 'downitup serve'
and drive it with the other commands.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(logLevel)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("host", "", "Daemon address as host:port (or set DOWNITUP_HOST)")
	rootCmd.PersistentFlags().String("token", "", "Bearer token for the daemon (or set DOWNITUP_TOKEN)")
	rootCmd.SetVersionTemplate("DOWNitUP version {{.Version}}\n")
}

// initializeGlobalState creates the app directories, loads settings and
// sends logs to a fresh file in the logs directory.
func initializeGlobalState(console bool) *config.Settings {
	if err := config.EnsureDirs(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create app directories: %v\n", err)
	}

	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: using default settings: %v\n", err)
		settings = config.DefaultSettings()
	}

	if err := utils.ConfigureDebug(config.GetLogsDir(), console); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logging to stderr only: %v\n", err)
	}
	level := settings.General.LogLevel
	if rootCmd.PersistentFlags().Changed("log-level") {
		level = logLevel
	}
	utils.SetLevel(level)
	utils.CleanupLogs(settings.General.LogRetentionCount)

	log.Debug().Str("version", Version).Str("build_time", BuildTime).Msg("initialized")
	return settings
}
