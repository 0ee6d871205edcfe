package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"thirdcoast.systems/mediagrab/pkg/ytdlp"
)

// Selector decides which format to download for a URL.
type Selector interface {
	// NeedsFormats reports whether the format table must be fetched first.
	NeedsFormats() bool
	// Select returns a yt-dlp format selector. table is the raw -F output,
	// empty when NeedsFormats is false.
	Select(ctx context.Context, url, table string) (string, error)
}

// FixedSelector always returns the same selector and skips discovery.
type FixedSelector string

func (FixedSelector) NeedsFormats() bool { return false }

func (s FixedSelector) Select(context.Context, string, string) (string, error) {
	if strings.TrimSpace(string(s)) == "" {
		return ytdlp.BestSelector, nil
	}
	return strings.TrimSpace(string(s)), nil
}

// PromptSelector prints the format table and reads a format code from the
// operator. An empty answer picks ytdlp.BestSelector.
type PromptSelector struct {
	in  *bufio.Reader
	out io.Writer

	// pending is a read left running by a cancelled Select.
	pending chan answer
}

type answer struct {
	line string
	err  error
}

func NewPromptSelector(in io.Reader, out io.Writer) *PromptSelector {
	return &PromptSelector{in: bufio.NewReader(in), out: out}
}

func (*PromptSelector) NeedsFormats() bool { return true }

func (p *PromptSelector) Select(ctx context.Context, url, table string) (string, error) {
	fmt.Fprintf(p.out, "Available formats for %s:\n", url)
	fmt.Fprintln(p.out, strings.TrimRight(table, "\n"))
	fmt.Fprint(p.out, "Enter the format code of the desired quality (empty for best): ")

	if p.pending == nil {
		ch := make(chan answer, 1)
		go func() {
			line, err := p.in.ReadString('\n')
			ch <- answer{line, err}
		}()
		p.pending = ch
	}

	var a answer
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case a = <-p.pending:
		p.pending = nil
	}

	line := strings.TrimSpace(a.line)
	switch {
	case a.err != nil && !errors.Is(a.err, io.EOF):
		return "", fmt.Errorf("pipeline: read selection: %w", a.err)
	case a.err != nil && line == "":
		return "", fmt.Errorf("pipeline: no format selected: %w", io.ErrUnexpectedEOF)
	case line == "":
		return ytdlp.BestSelector, nil
	}
	return line, nil
}
