package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	debugFile *os.File
	logsDir   string
	mu        sync.Mutex
)

// InitLogger points the global logger at a console writer on stderr.
func InitLogger(level string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.DateTime,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// SetLevel changes the global log level.
func SetLevel(level string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}

// ConfigureDebug sends the global logger to a new debug-<timestamp>.log in
// dir, in addition to stderr when console is true.
func ConfigureDebug(dir string, console bool) error {
	mu.Lock()
	defer mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create logs dir: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, fmt.Sprintf("debug-%s.log", time.Now().Format("20060102-150405"))))
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	if debugFile != nil {
		_ = debugFile.Close()
	}
	debugFile = f
	logsDir = dir

	var w io.Writer = f
	if console {
		w = zerolog.MultiLevelWriter(f, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
	return nil
}

// Debug writes a printf-style message at debug level.
func Debug(format string, args ...any) {
	log.Debug().Msg(fmt.Sprintf(format, args...))
}

// GetLogger returns the global logger tagged with component.
func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// CleanupLogs keeps the newest keep debug logs in the configured directory.
func CleanupLogs(keep int) {
	mu.Lock()
	dir := logsDir
	mu.Unlock()
	if dir == "" || keep < 0 {
		return
	}

	files, err := filepath.Glob(filepath.Join(dir, "debug-*.log"))
	if err != nil || len(files) <= keep {
		return
	}
	// the timestamped names sort chronologically
	sort.Strings(files)
	for _, f := range files[:len(files)-keep] {
		if err := os.Remove(f); err != nil {
			log.Debug().Err(err).Str("file", f).Msg("failed to remove old log")
		}
	}
}
