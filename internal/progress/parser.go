package progress

import (
	"regexp"
	"strconv"
	"strings"
)

// Parser extracts the elapsed media time, in seconds, from one status line.
type Parser interface {
	Parse(line string) (seconds float64, ok bool)
}

// statsTime matches the time= field of ffmpeg's stats line, in HH:MM:SS(.ms)
// or MM:SS form. A leading minus (seen at stream start) does not match.
var statsTime = regexp.MustCompile(`time=\s*((?:\d+:)?\d{1,2}:\d{1,2}(?:\.\d+)?)`)

// StatsParser reads ffmpeg's default stderr stats lines:
//
//	frame=  240 fps=0.0 q=-1.0 size=    1024KiB time=00:00:08.00 bitrate=1048.6kbits/s speed=16x
type StatsParser struct{}

// Parse implements Parser.
func (StatsParser) Parse(line string) (float64, bool) {
	m := statsTime.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	return ParseClock(m[1])
}

// ParseClock converts "HH:MM:SS(.fraction)" or "MM:SS(.fraction)" to seconds.
func ParseClock(s string) (float64, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, false
	}

	secs, err := strconv.ParseFloat(parts[len(parts)-1], 64)
	if err != nil || secs < 0 {
		return 0, false
	}
	mins, err := strconv.Atoi(parts[len(parts)-2])
	if err != nil || mins < 0 {
		return 0, false
	}
	hours := 0
	if len(parts) == 3 {
		hours, err = strconv.Atoi(parts[0])
		if err != nil || hours < 0 {
			return 0, false
		}
	}

	return float64(hours*3600+mins*60) + secs, true
}

// ParseProgressLine parses a single line from ffmpeg -progress output.
// Returns the key, value, and whether parsing succeeded.
func ParseProgressLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", "", false
	}

	idx := strings.Index(line, "=")
	if idx == -1 {
		return "", "", false
	}

	return line[:idx], line[idx+1:], true
}

// KeyValueParser reads the key=value stream ffmpeg writes with -progress.
// Only the output timestamp keys are used.
type KeyValueParser struct{}

// Parse implements Parser.
func (KeyValueParser) Parse(line string) (float64, bool) {
	key, value, ok := ParseProgressLine(line)
	if !ok {
		return 0, false
	}

	switch key {
	// out_time_ms is also in microseconds; ffmpeg has always mislabelled it.
	case "out_time_us", "out_time_ms":
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return 0, false
		}
		return float64(us) / 1_000_000, true
	case "out_time":
		return ParseClock(value)
	}
	return 0, false
}
