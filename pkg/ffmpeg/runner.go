package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ErrToolNotFound is returned when ffmpeg or ffprobe cannot be located.
var ErrToolNotFound = errors.New("ffmpeg: executable not found")

// stderrTailLimit bounds how much diagnostic output a Process retains.
const stderrTailLimit = 64 * 1024

// Process represents a running ffmpeg process whose stderr is delivered line by line.
type Process struct {
	cmd   *exec.Cmd
	args  []string
	lines chan string
	done  chan struct{}
	err   error

	mu   sync.Mutex
	tail []byte
}

// Lines yields each stderr line as ffmpeg prints it. Status updates that ffmpeg
// redraws with \r arrive as separate lines. The channel closes when stderr does.
func (p *Process) Lines() <-chan string {
	return p.lines
}

// Wait drains any unread lines, blocks until the process exits and returns
// a *Error for a non-zero exit.
func (p *Process) Wait() error {
	for range p.lines {
	}
	<-p.done
	return p.err
}

// Stderr returns the retained tail of the diagnostic output.
func (p *Process) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.tail)
}

func (p *Process) keep(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tail = append(p.tail, line...)
	p.tail = append(p.tail, '\n')
	if over := len(p.tail) - stderrTailLimit; over > 0 {
		p.tail = p.tail[over:]
	}
}

// Start runs bin with args and streams its stderr. The caller must call Wait.
// Cancelling ctx interrupts the child, which is killed if it has not exited
// after grace.
func Start(ctx context.Context, bin string, args []string, grace time.Duration) (*Process, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Cancel = func() error { return interrupt(cmd.Process) }
	if grace <= 0 {
		grace = 10 * time.Second
	}
	cmd.WaitDelay = grace

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrToolNotFound, bin)
		}
		return nil, fmt.Errorf("ffmpeg: failed to start: %w", err)
	}

	p := &Process{
		cmd:   cmd,
		args:  args,
		lines: make(chan string, 64),
		done:  make(chan struct{}),
	}

	go func() {
		defer close(p.done)

		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		scanner.Split(scanLinesCR)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if !progressRecord(line) {
				p.keep(line)
			}
			p.lines <- line
		}
		close(p.lines)

		if err := cmd.Wait(); err != nil {
			p.err = &Error{Args: args, Stderr: p.Stderr(), Err: err}
		}
	}()

	return p, nil
}

// progressRecord reports whether line is a key=value status record rather
// than a diagnostic. Status records are not kept in the stderr tail.
func progressRecord(line string) bool {
	key, _, ok := strings.Cut(line, "=")
	return ok && key != "" && !strings.ContainsAny(key, " \t")
}

// scanLinesCR is bufio.ScanLines that also treats a bare \r as a line end.
func scanLinesCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			return i + 2, data[:i], nil
		}
		if data[i] == '\r' && i+1 == len(data) && !atEOF {
			// Might be the first half of \r\n; wait for more.
			return 0, nil, nil
		}
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// interrupt asks the child to stop; platforms without interrupt delivery kill it.
func interrupt(p *os.Process) error {
	if p == nil {
		return nil
	}
	if err := p.Signal(os.Interrupt); err != nil {
		return p.Kill()
	}
	return nil
}

// Error represents an ffmpeg execution error with context.
type Error struct {
	Args   []string
	Stderr string
	Err    error
}

// Error implements error.
func (e *Error) Error() string {
	if lastLines := lastLines(e.Stderr, 3); lastLines != "" {
		return fmt.Sprintf("ffmpeg: %v: %s", e.Err, lastLines)
	}
	return fmt.Sprintf("ffmpeg: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Command returns the command that was executed.
func (e *Error) Command() string {
	return "ffmpeg " + strings.Join(e.Args, " ")
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
