package sink

import (
	"os"
	"path/filepath"
	"runtime"
)

// DownloadsDir returns the user's Downloads folder, or the working directory
// when no home directory is known.
func DownloadsDir() string {
	if runtime.GOOS == "linux" {
		if dir := os.Getenv("XDG_DOWNLOAD_DIR"); dir != "" {
			return dir
		}
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		wd, _ := os.Getwd()
		return wd
	}
	return filepath.Join(home, "Downloads")
}

// CanWrite reports whether files can be created in dir. The directory is
// created if missing.
func CanWrite(dir string) bool {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false
	}
	f, err := os.CreateTemp(dir, ".downitup-probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
