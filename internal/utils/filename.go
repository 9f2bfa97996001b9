package utils

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultFilename is used when neither the server nor the URL names the file.
const DefaultFilename = "download"

const maxFilenameLen = 255

var unsafeChars = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_", "/", "_", `\`, "_", "|", "_", "?", "_", "*", "_",
)

// FilenameFromURL returns the last non-empty path segment of rawURL, or ""
// when there is none.
func FilenameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	p := strings.TrimRight(u.Path, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}

// SanitizeFilename replaces characters that are invalid on common
// filesystems and caps the length.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(unsafeChars.Replace(name))
	for _, r := range name {
		if r < 0x20 {
			name = strings.ReplaceAll(name, string(r), "_")
		}
	}
	if len(name) > maxFilenameLen {
		name = name[:maxFilenameLen]
	}
	if name == "" || name == "." || name == ".." {
		return DefaultFilename
	}
	return name
}

// ResolveFilename picks the first usable name from the explicit name, the
// server-suggested name and the URL.
func ResolveFilename(explicit, suggested, rawURL string) string {
	for _, n := range []string{explicit, suggested, FilenameFromURL(rawURL)} {
		if strings.TrimSpace(n) != "" {
			return SanitizeFilename(n)
		}
	}
	return DefaultFilename
}

// EnsureAbsPath makes p absolute relative to the working directory.
func EnsureAbsPath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

// UniqueFilePath returns p, or p with a "(n)" counter before the extension
// when a file already exists there. A name that already carries a counter
// continues from it.
func UniqueFilePath(p string) string {
	if !exists(p) {
		return p
	}

	dir := filepath.Dir(p)
	ext := filepath.Ext(p)
	name := strings.TrimSuffix(filepath.Base(p), ext)

	base := name
	counter := 1
	clean := strings.TrimSpace(name)
	if len(clean) > 3 && clean[len(clean)-1] == ')' {
		if open := strings.LastIndexByte(clean, '('); open != -1 {
			if num, err := strconv.Atoi(clean[open+1 : len(clean)-1]); err == nil && num > 0 {
				base = clean[:open]
				counter = num + 1
			}
		}
	}

	for i := 0; i < 100; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s(%d)%s", base, counter+i, ext))
		if !exists(candidate) {
			return candidate
		}
	}
	return p
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return !os.IsNotExist(err)
}
