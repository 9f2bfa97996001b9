package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/romreviewer/DOWNitUP/internal/api"
	"github.com/romreviewer/DOWNitUP/internal/config"
	"github.com/romreviewer/DOWNitUP/internal/core"
	"github.com/romreviewer/DOWNitUP/internal/download"
	"github.com/romreviewer/DOWNitUP/internal/engine"
	"github.com/romreviewer/DOWNitUP/internal/engine/events"
	"github.com/romreviewer/DOWNitUP/internal/engine/sink"
	"github.com/romreviewer/DOWNitUP/internal/engine/state"
	"github.com/romreviewer/DOWNitUP/internal/engine/transport"
	"github.com/romreviewer/DOWNitUP/internal/telemetry"
	"github.com/romreviewer/DOWNitUP/internal/torrent"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve [url]...",
	Aliases: []string{"server", "daemon"},
	Short:   "Run the download daemon",
	Long: `Run the download daemon in the foreground. The control API listens on
127.0.0.1; its port and token are written to the runtime and state
directories so the other commands can find it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := initializeGlobalState(true)

		isMaster, err := AcquireLock()
		if err != nil {
			return err
		}
		if !isMaster {
			return errors.New("downitup is already running; use 'downitup add <url>' to queue downloads")
		}
		defer func() {
			if err := ReleaseLock(); err != nil {
				log.Debug().Err(err).Msg("failed to release lock")
			}
		}()

		portFlag, _ := cmd.Flags().GetInt("port")
		outputDir, _ := cmd.Flags().GetString("output")
		batchFile, _ := cmd.Flags().GetString("batch")
		noResume, _ := cmd.Flags().GetBool("no-resume")
		metrics, _ := cmd.Flags().GetBool("metrics")

		if outputDir != "" {
			settings.General.DefaultDownloadDir = outputDir
		}
		if noResume {
			settings.General.AutoResume = false
		}

		var (
			port int
			ln   net.Listener
		)
		if portFlag > 0 {
			port = portFlag
			ln, err = net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
			if err != nil {
				return fmt.Errorf("could not bind to port %d: %w", port, err)
			}
		} else {
			port, ln = findAvailablePort(1700)
			if ln == nil {
				return errors.New("could not find an available port")
			}
		}

		urls := append([]string(nil), args...)
		if batchFile != "" {
			fileURLs, err := readURLsFromFile(batchFile)
			if err != nil {
				return fmt.Errorf("failed to read batch file: %w", err)
			}
			urls = append(urls, fileURLs...)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		reload := make(chan os.Signal, 1)
		signal.Notify(reload, syscall.SIGHUP)
		defer signal.Stop(reload)

		return runDaemon(ctx, ln, daemonOptions{
			Settings:    settings,
			DBPath:      config.GetDatabasePath(),
			TorrentDir:  filepath.Join(config.GetStateDir(), "torrent"),
			Token:       ensureAuthToken(),
			Metrics:     metrics,
			InitialURLs: urls,
			Reload:      reload,
			OnListen: func() {
				saveActivePort(port)
				fmt.Printf("DOWNitUP %s listening on 127.0.0.1:%d\n", Version, port)
			},
			OnStop: removeActivePort,
		})
	},
}

type daemonOptions struct {
	Settings    *config.Settings
	DBPath      string
	TorrentDir  string
	Token       string
	Metrics     bool
	InitialURLs []string
	// Reload triggers a settings reload for newly added transfers.
	Reload <-chan os.Signal
	// NewSession overrides the torrent client.
	NewSession torrent.SessionFactory
	OnListen   func()
	OnStop     func()
}

// runDaemon serves the control API on ln until ctx ends, then parks running
// transfers and closes the store.
func runDaemon(ctx context.Context, ln net.Listener, opts daemonOptions) error {
	settings := opts.Settings
	if settings == nil {
		settings = config.DefaultSettings()
	}

	tel, err := telemetry.New(telemetry.Config{
		Enabled:        opts.Metrics,
		ServiceName:    "downitup",
		ServiceVersion: Version,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	db, err := state.Open(opts.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}()
	store := state.NewInstrumented(db, tel)

	rt := settings.Runtime()
	tr := transport.New(rt)
	hub := events.NewHub()
	coord := download.NewCoordinator(&engine.Env{
		Store:     store,
		Sinks:     sink.NewFS(),
		Transport: tr,
		Runtime:   rt,
	}, hub, tel)

	var (
		torrents  *torrent.Engine
		torEngine download.Engine
	)
	if settings.Torrent.Enabled {
		torrents = torrent.NewEngine(torrent.Config{
			Store:     store,
			Hub:       hub,
			Transport: tr,
			Telemetry: tel,
			Session: torrent.SessionConfig{
				DataDir:    opts.TorrentDir,
				ListenPort: settings.Torrent.ListenPort,
			},
			NewSession: opts.NewSession,
		})
		torEngine = torrents
	}

	svc := core.NewLocalDownloadService(store, download.NewRouter(store, coord, torEngine), tr, settings)
	if n, err := svc.RecoverInterrupted(ctx); err != nil {
		log.Error().Err(err).Msg("failed to recover interrupted transfers")
	} else if n > 0 {
		log.Info().Int("count", n).Msg("resumed transfers")
	}

	if opts.Reload != nil {
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-opts.Reload:
					if err := svc.ReloadSettings(); err != nil {
						log.Warn().Err(err).Msg("failed to reload settings")
						continue
					}
					log.Info().Msg("settings reloaded")
				}
			}
		}()
	}

	port := 0
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		port = addr.Port
	}
	handler := api.NewHandler(api.Config{Service: svc, Telemetry: tel, Token: opts.Token, Port: port})
	srv := &http.Server{
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	if opts.OnListen != nil {
		opts.OnListen()
	}
	if opts.OnStop != nil {
		defer opts.OnStop()
	}
	log.Info().Int("port", port).Bool("torrents", torrents != nil).Msg("daemon started")

	for _, raw := range opts.InitialURLs {
		id, err := svc.Add(ctx, core.AddRequest{URL: raw, Start: true})
		if err != nil {
			log.Warn().Err(err).Str("url", raw).Msg("failed to add initial download")
			continue
		}
		log.Info().Int64("id", id).Str("url", raw).Msg("queued initial download")
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown")
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("transfer shutdown")
	}
	if torrents != nil {
		if err := torrents.Close(); err != nil {
			log.Warn().Err(err).Msg("torrent shutdown")
		}
	}
	return serveErr
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntP("port", "p", 0, "Port to listen on (default: first free port from 1700)")
	serveCmd.Flags().StringP("output", "o", "", "Default output directory")
	serveCmd.Flags().StringP("batch", "b", "", "File containing URLs to download (one per line)")
	serveCmd.Flags().Bool("no-resume", false, "Do not auto-resume paused downloads on startup")
	serveCmd.Flags().Bool("metrics", false, "Expose Prometheus metrics on /metrics")
}
