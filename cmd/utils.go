package cmd

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/romreviewer/DOWNitUP/internal/config"
	"github.com/romreviewer/DOWNitUP/internal/core"
	"github.com/romreviewer/DOWNitUP/internal/source"
)

// errNoDaemon is returned by client commands when no local daemon is running.
var errNoDaemon = errors.New("downitup daemon is not running (start it with 'downitup serve')")

func portFilePath() string {
	return filepath.Join(config.GetRuntimeDir(), "port")
}

func tokenFilePath() string {
	return filepath.Join(config.GetStateDir(), "token")
}

// findAvailablePort tries ports starting from 'start' until one is available
func findAvailablePort(start int) (int, net.Listener) {
	for port := start; port < start+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return port, ln
		}
	}
	return 0, nil
}

// saveActivePort writes the daemon's port for client discovery.
func saveActivePort(port int) {
	if err := os.WriteFile(portFilePath(), []byte(strconv.Itoa(port)), 0o644); err != nil {
		log.Debug().Err(err).Msg("failed to write port file")
	}
}

// removeActivePort cleans up the port file on exit
func removeActivePort() {
	if err := os.Remove(portFilePath()); err != nil && !os.IsNotExist(err) {
		log.Debug().Err(err).Msg("failed to remove port file")
	}
}

// readActivePort returns the local daemon's port, or 0 when none is recorded.
func readActivePort() int {
	data, err := os.ReadFile(portFilePath())
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || port <= 0 || port > 65535 {
		return 0
	}
	return port
}

// ensureAuthToken returns the local API token, creating it on first use.
func ensureAuthToken() string {
	path := tokenFilePath()
	if data, err := os.ReadFile(path); err == nil {
		if token := strings.TrimSpace(string(data)); token != "" {
			return token
		}
	}

	token := uuid.New().String()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Debug().Err(err).Msg("failed to create token dir")
	}
	if err := os.WriteFile(path, []byte(token), 0o600); err != nil {
		log.Debug().Err(err).Msg("failed to write token file")
	}
	return token
}

// readURLsFromFile reads supported sources from a batch file. Entries may be
// separated by newlines, commas or spaces; lines starting with # are skipped.
func readURLsFromFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return source.ParseList(string(data)), nil
}

// resolveAPIConnection finds the daemon to talk to: --host / DOWNITUP_HOST
// first, then the local port file. The local token is only reused for
// loopback targets.
func resolveAPIConnection(cmd *cobra.Command) (baseURL, token string, err error) {
	host, _ := cmd.Flags().GetString("host")
	host = strings.TrimSpace(host)
	if host == "" {
		host = strings.TrimSpace(os.Getenv("DOWNITUP_HOST"))
	}
	if host == "" {
		port := readActivePort()
		if port == 0 {
			return "", "", errNoDaemon
		}
		host = net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	}

	token, _ = cmd.Flags().GetString("token")
	token = strings.TrimSpace(token)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("DOWNITUP_TOKEN"))
	}
	if token == "" {
		if !isLoopback(host) {
			return "", "", fmt.Errorf("no token for %s: use --token or set DOWNITUP_TOKEN", host)
		}
		token = ensureAuthToken()
	}

	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	return host, token, nil
}

func isLoopback(hostport string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// newClient returns a DownloadService talking to the daemon.
func newClient(cmd *cobra.Command) (core.DownloadService, error) {
	baseURL, token, err := resolveAPIConnection(cmd)
	if err != nil {
		return nil, err
	}
	return core.NewRemoteDownloadService(baseURL, token), nil
}

// parseIDs converts transfer id arguments.
func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(arg), "#"), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid transfer id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
