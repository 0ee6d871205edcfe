// Package filename turns media titles into names that are safe on every
// major filesystem.
package filename

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const defaultMaxLen = 120

// reserved cannot appear in a Windows file name; "/" also separates paths elsewhere.
const reserved = `<>:"/\|?*`

func unsafeRune(r rune) bool {
	return r < 0x20 || unicode.IsSpace(r) || strings.ContainsRune(reserved, r)
}

// Sanitize replaces reserved characters, control characters and whitespace
// with dashes. A run of two or more dashes or underscores becomes one dash.
// Leading and trailing dashes and dots are dropped. The result is at most
// maxLen bytes, or 120 when maxLen <= 0.
func Sanitize(name string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}

	var b strings.Builder
	var sep rune
	seps := 0
	flush := func() {
		switch {
		case seps == 1:
			b.WriteRune(sep)
		case seps > 1:
			b.WriteByte('-')
		}
		seps = 0
	}
	for _, r := range strings.TrimSpace(name) {
		if unsafeRune(r) {
			r = '-'
		}
		if r == '-' || r == '_' {
			sep = r
			seps++
			continue
		}
		flush()
		b.WriteRune(r)
	}
	flush()

	s := strings.Trim(b.String(), "-.")
	if len(s) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = strings.TrimRight(s[:cut], "-.")
	}
	return s
}

// ForTitle returns a safe file name for a media title with the given
// extension, falling back to "video" when nothing usable is left.
func ForTitle(title, ext string) string {
	base := Sanitize(title, 0)
	if base == "" {
		base = "video"
	}
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		return base
	}
	return base + "." + ext
}
