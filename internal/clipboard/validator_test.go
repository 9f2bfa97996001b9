package clipboard

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "http", input: "http://example.com/file.zip", expected: "http://example.com/file.zip"},
		{name: "https with query", input: "https://example.com/dl?id=1", expected: "https://example.com/dl?id=1"},
		{name: "trims whitespace", input: "  https://example.com/a  ", expected: "https://example.com/a"},
		{name: "torrent url", input: "https://example.com/ubuntu.torrent", expected: "https://example.com/ubuntu.torrent"},
		{name: "magnet", input: "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567", expected: "magnet:?xt=urn:btih:0123456789abcdef0123456789abcdef01234567"},
		{name: "empty", input: "", expected: ""},
		{name: "plain text", input: "hello world", expected: ""},
		{name: "ftp", input: "ftp://example.com/file", expected: ""},
		{name: "no host", input: "https://", expected: ""},
		{name: "multi line", input: "https://a.com\nhttps://b.com", expected: ""},
		{name: "too long", input: "https://example.com/" + strings.Repeat("a", maxLen), expected: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractURL(tt.input))
		})
	}
}

func TestReadURL(t *testing.T) {
	orig := clipboardReadAll
	t.Cleanup(func() { clipboardReadAll = orig })

	clipboardReadAll = func() (string, error) { return "https://example.com/x.iso\n", nil }
	assert.Equal(t, "https://example.com/x.iso", ReadURL())

	clipboardReadAll = func() (string, error) { return "", errors.New("no clipboard") }
	assert.Empty(t, ReadURL())
}
