package ffmpeg

import (
	"bytes"
	"context"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// ProbeDuration returns the container duration of path in seconds, or 0 when
// it cannot be determined. Duration is advisory, so failures are only logged.
func (t *Transcoder) ProbeDuration(ctx context.Context, path string) float64 {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	run := t.probeFn
	if run == nil {
		run = runProbe
	}

	out, err := run(ctx, t.ffprobe(), args...)
	if err != nil {
		t.logger().Warn("ffprobe: duration unavailable", "path", path, "error", err)
		return 0
	}

	d, ok := parseProbeDuration(string(out))
	if !ok {
		t.logger().Warn("ffprobe: unparsable duration", "path", path, "output", strings.TrimSpace(string(out)))
		return 0
	}
	return d
}

func runProbe(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &Error{Args: args, Stderr: stderr.String(), Err: err}
	}
	return stdout.Bytes(), nil
}

// parseProbeDuration accepts ffprobe's single-number output ("212.480000").
func parseProbeDuration(out string) (float64, bool) {
	s := strings.TrimSpace(out)
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if s == "" || s == "N/A" {
		return 0, false
	}
	d, err := strconv.ParseFloat(s, 64)
	if err != nil || d <= 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0, false
	}
	return d, true
}
