package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/romreviewer/DOWNitUP/internal/engine/types"
)

// EnvPrefix prefixes every environment override, e.g.
// DOWNITUP_NETWORK_PROXY_URL.
const EnvPrefix = "DOWNITUP"

// Settings holds all user-configurable application settings organized by category.
type Settings struct {
	General     GeneralSettings     `json:"general"`
	Network     NetworkSettings     `json:"network"`
	Torrent     TorrentSettings     `json:"torrent"`
	Performance PerformanceSettings `json:"performance"`
}

// GeneralSettings contains application behavior settings.
type GeneralSettings struct {
	DefaultDownloadDir string `json:"default_download_dir" envconfig:"DEFAULT_DOWNLOAD_DIR"`
	AutoResume         bool   `json:"auto_resume" envconfig:"AUTO_RESUME"`
	LogRetentionCount  int    `json:"log_retention_count" envconfig:"LOG_RETENTION_COUNT"`
	LogLevel           string `json:"log_level" envconfig:"LOG_LEVEL"`
}

// NetworkSettings contains network connection parameters.
type NetworkSettings struct {
	DefaultConnectionCount int           `json:"default_connection_count" envconfig:"DEFAULT_CONNECTION_COUNT"`
	UseChunkingDefault     bool          `json:"use_chunking_default" envconfig:"USE_CHUNKING_DEFAULT"`
	UserAgent              string        `json:"user_agent" envconfig:"USER_AGENT"`
	ProxyURL               string        `json:"proxy_url" envconfig:"PROXY_URL"`
	MaxBytesPerSecond      int64         `json:"max_bytes_per_second" envconfig:"MAX_BYTES_PER_SECOND"`
	RequestTimeout         time.Duration `json:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
}

// TorrentSettings contains torrent engine parameters.
type TorrentSettings struct {
	Enabled    bool `json:"enabled" envconfig:"ENABLED"`
	ListenPort int  `json:"listen_port" envconfig:"LISTEN_PORT"`
}

// PerformanceSettings contains performance tuning parameters.
type PerformanceSettings struct {
	ChunkRetries int `json:"chunk_retries" envconfig:"CHUNK_RETRIES"`
}

// SettingMeta describes one setting for `downitup config` style listings.
type SettingMeta struct {
	Key         string // JSON key name
	Label       string // Human-readable label
	Description string
	Type        string // "string", "int", "int64", "bool", "duration"
}

// GetSettingsMetadata returns metadata for all settings organized by category.
func GetSettingsMetadata() map[string][]SettingMeta {
	return map[string][]SettingMeta{
		"General": {
			{Key: "default_download_dir", Label: "Default Download Dir", Description: "Default directory for new downloads. Leave empty to use the Downloads folder.", Type: "string"},
			{Key: "auto_resume", Label: "Auto Resume", Description: "Automatically resume paused downloads on startup.", Type: "bool"},
			{Key: "log_retention_count", Label: "Log Retention Count", Description: "Number of recent log files to keep.", Type: "int"},
			{Key: "log_level", Label: "Log Level", Description: "debug, info, warn or error.", Type: "string"},
		},
		"Network": {
			{Key: "default_connection_count", Label: "Connections", Description: "Default connections per download (1-16).", Type: "int"},
			{Key: "use_chunking_default", Label: "Chunked Downloads", Description: "Split large downloads across several connections.", Type: "bool"},
			{Key: "user_agent", Label: "User Agent", Description: "Custom User-Agent string for HTTP requests. Leave empty for default.", Type: "string"},
			{Key: "proxy_url", Label: "Proxy URL", Description: "HTTP/HTTPS proxy URL (e.g. http://127.0.0.1:1700). Leave empty to use system default.", Type: "string"},
			{Key: "max_bytes_per_second", Label: "Bandwidth Cap", Description: "Total download rate limit in bytes per second. 0 is unlimited.", Type: "int64"},
			{Key: "request_timeout", Label: "Response Timeout", Description: "Time to wait for response headers (e.g., 15s).", Type: "duration"},
		},
		"Torrent": {
			{Key: "enabled", Label: "Enable Torrents", Description: "Accept magnet links and .torrent URLs.", Type: "bool"},
			{Key: "listen_port", Label: "Listen Port", Description: "Inbound TCP port for torrent peers (1-65535).", Type: "int"},
		},
		"Performance": {
			{Key: "chunk_retries", Label: "Chunk Retries", Description: "Times a failed chunk is retried before the download fails (0-10).", Type: "int"},
		},
	}
}

// CategoryOrder returns the order of settings categories.
func CategoryOrder() []string {
	return []string{"General", "Network", "Performance", "Torrent"}
}

// DefaultSettings returns a new Settings instance with sensible defaults.
func DefaultSettings() *Settings {
	homeDir, _ := os.UserHomeDir()

	defaultDir := ""

	// Check XDG_DOWNLOAD_DIR
	if xdgDir := os.Getenv("XDG_DOWNLOAD_DIR"); xdgDir != "" {
		if info, err := os.Stat(xdgDir); err == nil && info.IsDir() {
			defaultDir = xdgDir
		}
	}

	// Check ~/Downloads if not set
	if defaultDir == "" && homeDir != "" {
		downloadsDir := filepath.Join(homeDir, "Downloads")
		if info, err := os.Stat(downloadsDir); err == nil && info.IsDir() {
			defaultDir = downloadsDir
		}
	}

	return &Settings{
		General: GeneralSettings{
			DefaultDownloadDir: defaultDir,
			AutoResume:         false,
			LogRetentionCount:  5,
			LogLevel:           "info",
		},
		Network: NetworkSettings{
			DefaultConnectionCount: types.DefaultConnectionCount,
			UseChunkingDefault:     true,
			RequestTimeout:         types.DefaultResponseHeaderTimeout,
		},
		Torrent: TorrentSettings{
			Enabled:    true,
			ListenPort: 42069,
		},
		Performance: PerformanceSettings{
			ChunkRetries: 0,
		},
	}
}

// GetSettingsPath returns the path to the settings JSON file.
func GetSettingsPath() string {
	return filepath.Join(GetAppDir(), "settings.json")
}

// LoadSettings loads settings from disk, then applies DOWNITUP_*
// environment overrides. Missing files yield the defaults.
func LoadSettings() (*Settings, error) {
	return LoadSettingsFrom(GetSettingsPath())
}

// LoadSettingsFrom is LoadSettings for an explicit file.
func LoadSettingsFrom(path string) (*Settings, error) {
	settings := DefaultSettings() // Start with defaults to fill any missing fields

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, settings); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return nil, err
	}

	if err := envconfig.Process(EnvPrefix, settings); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}
	settings.Network.DefaultConnectionCount = types.ClampConnections(settings.Network.DefaultConnectionCount)
	return settings, nil
}

// SaveSettings saves settings to disk atomically.
func SaveSettings(s *Settings) error {
	return SaveSettingsTo(GetSettingsPath(), s)
}

// SaveSettingsTo writes s to path via a temp file and rename.
func SaveSettingsTo(path string, s *Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

// Runtime converts Settings into the engine's RuntimeConfig.
func (s *Settings) Runtime() *types.RuntimeConfig {
	return &types.RuntimeConfig{
		UserAgent:         s.Network.UserAgent,
		ProxyURL:          s.Network.ProxyURL,
		RequestTimeout:    s.Network.RequestTimeout,
		MaxBytesPerSecond: s.Network.MaxBytesPerSecond,
		ChunkRetries:      s.Performance.ChunkRetries,
	}
}
