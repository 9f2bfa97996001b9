package clipboard

import (
	"strings"

	"github.com/atotto/clipboard"

	"github.com/romreviewer/DOWNitUP/internal/source"
)

var clipboardReadAll = clipboard.ReadAll

// maxLen bounds what is considered a single pasted link. Magnets with many
// trackers are long, so this is generous.
const maxLen = 8192

// ExtractURL returns text as a downloadable source (http, https, .torrent
// URL or magnet), or "" when it is anything else.
func ExtractURL(text string) string {
	text = strings.TrimSpace(text)
	if text == "" || len(text) > maxLen || strings.ContainsAny(text, "\n\r") {
		return ""
	}
	if !source.IsSupported(text) {
		return ""
	}
	return text
}

// ReadURL returns the clipboard contents when they hold a single supported
// source.
func ReadURL() string {
	text, err := clipboardReadAll()
	if err != nil {
		return ""
	}
	return ExtractURL(text)
}
