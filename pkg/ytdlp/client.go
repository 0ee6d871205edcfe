// Package ytdlp drives the yt-dlp executable: listing formats, downloading
// streams and reading metadata. Nothing is linked in-process; every call is a
// child process whose stdout/stderr is captured.
package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/alessio/shellescape"
)

// DefaultPath is the executable looked up on PATH when Client.Path is empty.
const DefaultPath = "yt-dlp"

// ErrToolNotFound is returned when the yt-dlp executable cannot be located.
var ErrToolNotFound = errors.New("ytdlp: executable not found")

// streamWriter wraps an io.Writer and calls a callback for each line.
type streamWriter struct {
	stream   string
	callback func(stream string, line string)
	buffer   *bytes.Buffer
	pending  []byte
}

func (w *streamWriter) Write(p []byte) (n int, err error) {
	if w.buffer != nil {
		w.buffer.Write(p)
	}
	w.pending = append(w.pending, p...)

	// yt-dlp redraws its progress line with \r, so both \r and \n end a line.
	for {
		idx := bytes.IndexAny(w.pending, "\r\n")
		if idx < 0 {
			break
		}

		line := string(w.pending[:idx])

		consume := 1
		if w.pending[idx] == '\r' && idx+1 < len(w.pending) && w.pending[idx+1] == '\n' {
			consume = 2
		}
		w.pending = w.pending[idx+consume:]

		if w.callback != nil {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				w.callback(w.stream, trimmed)
			}
		}
	}

	return len(p), nil
}

// ExecError is a non-zero exit (or failed start) of yt-dlp. Stderr carries the
// tool's own diagnostics.
type ExecError struct {
	Cmd      string
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Cause    error
}

func (e *ExecError) Error() string {
	cmdline := shellescape.QuoteCommand(append([]string{e.Cmd}, e.Args...))
	msg := "ytdlp: command failed"
	if e.ExitCode != 0 {
		msg += " (exit " + strconv.Itoa(e.ExitCode) + ")"
	}
	if last := lastLine(e.Stderr); last != "" {
		return fmt.Sprintf("%s: %s: %s", msg, cmdline, last)
	}
	return fmt.Sprintf("%s: %s", msg, cmdline)
}

func (e *ExecError) Unwrap() error { return e.Cause }

type Client struct {
	// Path to yt-dlp executable. Defaults to "yt-dlp" (PATH lookup).
	Path string

	// Proxy is passed as --proxy when set.
	Proxy string

	// RateLimitKB caps download speed in KiB/s (--limit-rate). Zero means unlimited.
	RateLimitKB int

	// ExtraArgs are always appended before per-call args.
	ExtraArgs []string

	// LogCallback is called for each line of stdout/stderr output.
	// If nil, output is only buffered.
	LogCallback func(stream string, line string)

	// GracePeriod bounds how long yt-dlp may take to exit after an interrupt
	// before it is killed. Defaults to 10s.
	GracePeriod time.Duration

	Logger *slog.Logger

	lookPath func(file string) (string, error)
	execFn   func(ctx context.Context, name string, args ...string) (stdout []byte, stderr []byte, err error)
}

func New(logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{Path: DefaultPath, Logger: logger}
}

// PathOrDefault returns the configured path or "yt-dlp" if unset.
func (c *Client) PathOrDefault() string {
	if strings.TrimSpace(c.Path) == "" {
		return DefaultPath
	}
	return c.Path
}

// CheckAvailable reports ErrToolNotFound when the executable is missing.
func (c *Client) CheckAvailable() error {
	look := c.lookPath
	if look == nil {
		look = exec.LookPath
	}
	if _, err := look(c.PathOrDefault()); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrToolNotFound, c.PathOrDefault(), err)
	}
	return nil
}

func (c *Client) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func (c *Client) networkArgs() []string {
	var args []string
	if p := strings.TrimSpace(c.Proxy); p != "" {
		args = append(args, "--proxy", p)
	}
	if c.RateLimitKB > 0 {
		args = append(args, "--limit-rate", strconv.Itoa(c.RateLimitKB)+"K")
	}
	return args
}

func (c *Client) exec(ctx context.Context, args ...string) (stdout []byte, stderr []byte, err error) {
	name := c.PathOrDefault()

	fullArgs := make([]string, 0, len(c.ExtraArgs)+len(args)+5)
	fullArgs = append(fullArgs, c.ExtraArgs...)
	fullArgs = append(fullArgs, c.networkArgs()...)
	if c.LogCallback != nil {
		fullArgs = append(fullArgs, "--newline")
	}
	fullArgs = append(fullArgs, args...)

	if c.execFn != nil {
		return c.execFn(ctx, name, fullArgs...)
	}

	c.logger().Debug("ytdlp: executing", "cmd", shellescape.QuoteCommand(append([]string{name}, fullArgs...)))

	cmd := exec.CommandContext(ctx, name, fullArgs...)
	cmd.Cancel = func() error { return interrupt(cmd.Process) }
	cmd.WaitDelay = c.GracePeriod
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 10 * time.Second
	}

	var outBuf, errBuf bytes.Buffer
	if c.LogCallback != nil {
		cmd.Stdout = &streamWriter{stream: "stdout", callback: c.LogCallback, buffer: &outBuf}
		cmd.Stderr = &streamWriter{stream: "stderr", callback: c.LogCallback, buffer: &errBuf}
	} else {
		cmd.Stdout = &outBuf
		cmd.Stderr = &errBuf
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
		}
		return nil, nil, err
	}

	err = cmd.Wait()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

// interrupt asks the child to stop so it can clean up partial files; platforms
// without interrupt delivery get killed instead.
func interrupt(p *os.Process) error {
	if p == nil {
		return nil
	}
	if err := p.Signal(os.Interrupt); err != nil {
		return p.Kill()
	}
	return nil
}

func wrapExecError(cmd string, args []string, stdout []byte, stderr []byte, cause error) error {
	if errors.Is(cause, ErrToolNotFound) {
		return cause
	}

	exitCode := 0
	var ee *exec.ExitError
	if errors.As(cause, &ee) {
		exitCode = ee.ExitCode()
	}

	return &ExecError{
		Cmd:      cmd,
		Args:     args,
		ExitCode: exitCode,
		Stdout:   strings.TrimSpace(string(stdout)),
		Stderr:   strings.TrimSpace(string(stderr)),
		Cause:    cause,
	}
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexAny(s, "\r\n"); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
