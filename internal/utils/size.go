package utils

import (
	"time"

	"github.com/dustin/go-humanize"
)

// FormatBytes renders n with binary units, e.g. "1.5 MiB".
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}

// FormatSpeed renders a bytes-per-second rate.
func FormatSpeed(bps int64) string {
	return FormatBytes(bps) + "/s"
}

// FormatETA estimates the time left at the given rate; "-" when unknown.
func FormatETA(remaining, bps int64) string {
	if remaining <= 0 || bps <= 0 {
		return "-"
	}
	return (time.Duration(remaining/bps) * time.Second).String()
}
