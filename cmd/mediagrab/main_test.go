package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thirdcoast.systems/mediagrab/internal/history"
	"thirdcoast.systems/mediagrab/internal/pipeline"
	"thirdcoast.systems/mediagrab/pkg/ffmpeg"
	"thirdcoast.systems/mediagrab/pkg/ytdlp"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"jobs failed", errJobsFailed, exitFailed},
		{"plain error", errors.New("boom"), exitFailed},
		{"usage", &usageError{errors.New("unknown flag: --nope")}, exitUsage},
		{"no input", pipeline.ErrNoInput, exitUsage},
		{"bad batch file", &pipeline.InputError{Path: "urls.txt", Err: os.ErrNotExist}, exitUsage},
		{"missing yt-dlp", fmt.Errorf("%w: yt-dlp", ytdlp.ErrToolNotFound), exitUsage},
		{"missing ffmpeg", fmt.Errorf("%w: ffmpeg", ffmpeg.ErrToolNotFound), exitUsage},
		{"wrapped usage", fmt.Errorf("setup: %w", &usageError{errors.New("bad")}), exitUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

type cli struct {
	dir     string
	history string
	stdout  bytes.Buffer
	stderr  bytes.Buffer
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("MEDIAGRAB_ENV_FILE", "")
	return &cli{dir: dir, history: filepath.Join(dir, "history.json")}
}

func (c *cli) run(args ...string) int {
	c.stdout.Reset()
	c.stderr.Reset()
	base := []string{"--history-file", c.history, "--log-file", ""}
	return execute(context.Background(), append(base, args...), strings.NewReader(""), &c.stdout, &c.stderr)
}

func TestExecute_NoURLs(t *testing.T) {
	c := newCLI(t)

	assert.Equal(t, exitUsage, c.run())
	assert.Contains(t, c.stderr.String(), "Error:")
	assert.Contains(t, c.stderr.String(), "no URLs provided")
}

func TestExecute_UsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"--no-such-flag"}},
		{"bad retries", []string{"--retries", "0", "https://youtu.be/XbNghLqsVwU"}},
		{"bad format", []string{"-f", "avi", "https://youtu.be/XbNghLqsVwU"}},
		{"bad log level", []string{"--log-level", "loud", "https://youtu.be/XbNghLqsVwU"}},
		{"formats without url", []string{"formats"}},
		{"merge with one arg", []string{"merge", "video.webm"}},
		{"history with args", []string{"history", "extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCLI(t)
			assert.Equal(t, exitUsage, c.run(tt.args...))
			assert.Contains(t, c.stderr.String(), "Error:")
		})
	}
}

func TestExecute_MissingBatchFile(t *testing.T) {
	c := newCLI(t)

	assert.Equal(t, exitUsage, c.run("-b", filepath.Join(c.dir, "missing.txt")))
	assert.Contains(t, c.stderr.String(), "missing.txt")
}

func TestExecute_MissingYtdlp(t *testing.T) {
	c := newCLI(t)

	code := c.run("--ytdlp-path", filepath.Join(c.dir, "no-such-yt-dlp"), "https://youtu.be/XbNghLqsVwU")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, c.stderr.String(), "executable not found")

	_, err := os.Stat(c.history)
	assert.True(t, os.IsNotExist(err), "no job should have been recorded")
}

func TestExecute_MergeMissingFFmpeg(t *testing.T) {
	c := newCLI(t)
	video := filepath.Join(c.dir, "video.webm")
	require.NoError(t, os.WriteFile(video, []byte("v"), 0o644))

	code := c.run("merge", video, "https://youtu.be/XbNghLqsVwU",
		"--ytdlp-path", os.Args[0],
		"--ffmpeg-path", filepath.Join(c.dir, "no-such-ffmpeg"))
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, c.stderr.String(), "ffmpeg")
}

func TestExecute_History(t *testing.T) {
	c := newCLI(t)

	assert.Equal(t, exitOK, c.run("history"))
	assert.Equal(t, "No downloads recorded.\n", c.stdout.String())

	store := history.NewStore(c.history, nil)
	_, err := store.Append(history.Entry{
		URL:      "https://youtu.be/XbNghLqsVwU",
		Status:   history.StatusSuccess,
		Output:   "My_Video.mp4",
		Title:    "My Video",
		Duration: 212,
		Attempts: 1,
	})
	require.NoError(t, err)
	_, err = store.Append(history.Entry{
		URL:      "https://vimeo.com/76979871",
		Status:   history.StatusFailed,
		Attempts: 3,
		Error:    "ytdlp: command failed (exit 1)",
	})
	require.NoError(t, err)

	assert.Equal(t, exitOK, c.run("history"))
	out := c.stdout.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "STATUS")
	assert.Contains(t, lines[1], "SUCCESS")
	assert.Contains(t, lines[1], "My Video")
	assert.Contains(t, lines[1], "My_Video.mp4")
	assert.Contains(t, lines[1], "3:32")
	assert.Contains(t, lines[2], "FAILED")
	assert.Contains(t, lines[2], "https://vimeo.com/76979871")
	assert.Contains(t, lines[2], "command failed")

	assert.Equal(t, exitOK, c.run("history", "-n", "1"))
	lines = strings.Split(strings.TrimSpace(c.stdout.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "FAILED")
}

func TestExecute_LogFile(t *testing.T) {
	c := newCLI(t)
	logPath := filepath.Join(c.dir, "logs.log")

	code := execute(context.Background(),
		[]string{"--history-file", c.history, "--log-file", logPath, "--log-level", "debug", "--quiet", "history"},
		strings.NewReader(""), &c.stdout, &c.stderr)
	require.Equal(t, exitOK, code)
	assert.Empty(t, c.stderr.String())

	b, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "msg=configured")
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, pipeline.Summary{
		Succeeded: []string{"a"},
		Failed:    []string{"b"},
		Entries: []history.Entry{
			{URL: "a", Status: history.StatusSuccess, Output: "/nonexistent/a.mp4", Attempts: 1},
			{URL: "b", Status: history.StatusFailed, Attempts: 3},
		},
	})
	assert.Equal(t, "Saved: /nonexistent/a.mp4\nFailed: b after 3 attempt(s)\nFailed downloads: 1/2\n", buf.String())
}
