// Package source classifies user input into something one of the engines
// can download.
package source

import (
	"encoding/base32"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/romreviewer/DOWNitUP/internal/engine/types"
)

type Kind string

const (
	KindUnknown    Kind = "unknown"
	KindHTTP       Kind = "http"
	KindTorrentURL Kind = "torrent"
	KindMagnet     Kind = "magnet"
)

func Normalize(raw string) string {
	return strings.TrimSpace(raw)
}

// classify parses raw once and reports its kind along with the parsed URL.
func classify(raw string) (Kind, *url.URL) {
	s := Normalize(raw)
	if s == "" {
		return KindUnknown, nil
	}
	u, err := url.Parse(s)
	if err != nil {
		return KindUnknown, nil
	}
	switch strings.ToLower(u.Scheme) {
	case "magnet":
		if u.Opaque == "" && u.RawQuery == "" {
			return KindUnknown, nil
		}
		return KindMagnet, u
	case "http", "https":
		if u.Host == "" {
			return KindUnknown, nil
		}
		if strings.HasSuffix(strings.ToLower(u.Path), ".torrent") {
			return KindTorrentURL, u
		}
		return KindHTTP, u
	}
	return KindUnknown, nil
}

func KindOf(raw string) Kind {
	k, _ := classify(raw)
	return k
}

// IsHTTPURL is true for any http(s) URL with a host, .torrent links included.
func IsHTTPURL(raw string) bool {
	switch KindOf(raw) {
	case KindHTTP, KindTorrentURL:
		return true
	}
	return false
}

func IsMagnet(raw string) bool {
	return KindOf(raw) == KindMagnet
}

func IsSupported(raw string) bool {
	return KindOf(raw) != KindUnknown
}

// TransferKind maps an input to the engine that downloads it.
func TransferKind(raw string) types.Kind {
	switch KindOf(raw) {
	case KindMagnet, KindTorrentURL:
		return types.KindTorrent
	default:
		return types.KindHTTP
	}
}

// CanonicalKey identifies the resource behind raw so the same download can
// be detected under different spellings: magnets by info hash, URLs with
// lower-cased scheme and host and no fragment.
func CanonicalKey(raw string) (Kind, string) {
	kind, u := classify(raw)
	switch kind {
	case KindMagnet:
		if key := magnetKey(u); key != "" {
			return kind, key
		}
		return kind, strings.ToLower(Normalize(raw))
	case KindHTTP, KindTorrentURL:
		c := *u
		c.Fragment = ""
		c.RawFragment = ""
		c.Scheme = strings.ToLower(c.Scheme)
		c.Host = strings.ToLower(c.Host)
		return kind, c.String()
	}
	return KindUnknown, Normalize(raw)
}

var btihBase32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// magnetKey returns "btih:<hex>" for the first usable BitTorrent info hash.
func magnetKey(u *url.URL) string {
	for _, xt := range u.Query()["xt"] {
		hash, ok := strings.CutPrefix(strings.ToLower(strings.TrimSpace(xt)), "urn:btih:")
		if !ok {
			continue
		}
		var raw []byte
		switch len(hash) {
		case 40:
			raw, _ = hex.DecodeString(hash)
		case 32:
			raw, _ = btihBase32.DecodeString(strings.ToUpper(hash))
		}
		if len(raw) == 20 {
			return "btih:" + hex.EncodeToString(raw)
		}
	}
	return ""
}

// ParseList splits a batch of inputs separated by commas, whitespace or
// newlines, dropping blanks, comments and unsupported entries.
func ParseList(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, field := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
			if IsSupported(field) {
				out = append(out, field)
			}
		}
	}
	return out
}
