package progress

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"thirdcoast.systems/mediagrab/pkg/utils/format"
)

const (
	defaultBarWidth = 30
	// clearLine is "carriage return, erase line".
	clearLine = "\r\x1b[2K"
)

// Bar renders a textual progress bar. On a terminal it redraws one line in
// place; otherwise it prints a line every lineStep percent (or every
// lineStepSeconds of media time when the total is unknown).
type Bar struct {
	w      io.Writer
	label  string
	width  int
	redraw bool

	lastPct     float64
	lastElapsed float64
}

const (
	lineStep        = 10.0
	lineStepSeconds = 30.0
)

// NewBar writes to w. When w is a terminal the output is wrapped so the
// erase-line escape also works on Windows consoles.
func NewBar(w io.Writer, label string) *Bar {
	b := &Bar{w: w, label: label, width: defaultBarWidth}
	if f, ok := w.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		b.redraw = true
		b.w = colorable.NewColorable(f)
	}
	return b
}

// Render formats s as a single line without a trailing newline.
func (b *Bar) Render(s State) string {
	var sb strings.Builder
	if b.label != "" {
		sb.WriteString(b.label)
		sb.WriteString(" ")
	}

	pct, ok := s.Percent()
	if !ok {
		fmt.Fprintf(&sb, "elapsed %s", format.Duration(s.Elapsed))
		return sb.String()
	}

	width := b.width
	if width <= 0 {
		width = defaultBarWidth
	}
	filled := int(math.Round(pct / 100 * float64(width)))
	sb.WriteString("[")
	switch {
	case filled >= width:
		sb.WriteString(strings.Repeat("=", width))
	case filled > 0:
		sb.WriteString(strings.Repeat("=", filled-1))
		sb.WriteString(">")
		sb.WriteString(strings.Repeat(" ", width-filled))
	default:
		sb.WriteString(strings.Repeat(" ", width))
	}
	fmt.Fprintf(&sb, "] %5.1f%%  %s / %s", pct, format.Duration(s.Elapsed), format.Duration(s.Total))
	return sb.String()
}

// Start implements Sink.
func (b *Bar) Start(total float64) {
	b.lastPct, b.lastElapsed = 0, 0
	b.draw(State{Total: total})
}

// Update implements Sink.
func (b *Bar) Update(_ float64, s State) {
	if !b.redraw {
		if pct, ok := s.Percent(); ok {
			if pct-b.lastPct < lineStep {
				return
			}
			b.lastPct = pct
		} else {
			if s.Elapsed-b.lastElapsed < lineStepSeconds {
				return
			}
			b.lastElapsed = s.Elapsed
		}
	}
	b.draw(s)
}

// Finish implements Sink. On success a known total is shown as complete.
func (b *Bar) Finish(s State, err error) {
	if err == nil && s.Known() {
		s.Elapsed = s.Total
	}
	b.draw(s)
	if b.redraw {
		fmt.Fprintln(b.w)
	}
}

func (b *Bar) draw(s State) {
	if b.redraw {
		fmt.Fprint(b.w, clearLine+b.Render(s))
	} else {
		fmt.Fprintln(b.w, b.Render(s))
	}
}

// LogSink reports progress as slog records instead of drawing.
type LogSink struct {
	Logger *slog.Logger
	Label  string
}

func (l LogSink) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

// Start implements Sink.
func (l LogSink) Start(total float64) {
	l.logger().Debug("progress started", "label", l.Label, "total_seconds", total)
}

// Update implements Sink.
func (l LogSink) Update(delta float64, s State) {
	attrs := []any{"label", l.Label, "elapsed_seconds", s.Elapsed, "delta_seconds", delta}
	if pct, ok := s.Percent(); ok {
		attrs = append(attrs, "percent", math.Round(pct*10)/10)
	}
	l.logger().Debug("progress", attrs...)
}

// Finish implements Sink.
func (l LogSink) Finish(s State, err error) {
	if err != nil {
		l.logger().Debug("progress aborted", "label", l.Label, "elapsed_seconds", s.Elapsed, "error", err)
		return
	}
	l.logger().Debug("progress finished", "label", l.Label, "elapsed_seconds", s.Elapsed)
}
