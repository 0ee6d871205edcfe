// Package format renders sizes, rates and times for terminal output.
package format

import (
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
)

// Bytes returns a human-readable byte size using binary units (e.g. "1.5 MiB").
func Bytes(b int64) string {
	if b < 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(b))
}

// Rate formats a KiB/s limit for display; 0 means unlimited.
func Rate(kib int) string {
	if kib <= 0 {
		return "unlimited"
	}
	return humanize.IBytes(uint64(kib)*1024) + "/s"
}

// Duration renders seconds as "M:SS", or "H:MM:SS" from one hour up.
// Fractions are dropped; negative and non-finite values render as "0:00".
func Duration(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}
	d := time.Duration(seconds * float64(time.Second)).Truncate(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	sec := int(d/time.Second) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%d:%02d", m, sec)
}

// Truncate returns s cut to at most max bytes with a "..." suffix. The cut
// never splits a UTF-8 sequence.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return cutRunes(s, max)
	}
	return cutRunes(s, max-3) + "..."
}

func cutRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Since formats a wall-clock time relative to now ("3 minutes ago").
func Since(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return humanize.Time(t)
}
