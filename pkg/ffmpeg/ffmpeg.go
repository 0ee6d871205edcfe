// Package ffmpeg builds ffmpeg command lines, runs them with live status
// output, and probes media durations with ffprobe.
package ffmpeg

import (
	"path/filepath"
	"slices"
	"strings"
)

// Command is an ffmpeg invocation under construction.
type Command struct {
	inputs    []string
	output    string
	global    []string // before the first -i
	outputOpt []string // after the last -i
}

// Option adds arguments to a Command. Global options always precede the
// inputs and output options follow them, whatever order options are given in.
type Option interface {
	Apply(cmd *Command)
}

// OptionFunc adapts a function to Option.
type OptionFunc func(cmd *Command)

func (f OptionFunc) Apply(cmd *Command) { f(cmd) }

// NewCommand returns a command writing output. Inputs are numbered in the
// order their Input options appear.
func NewCommand(output string, opts ...Option) *Command {
	cmd := &Command{output: output}
	for _, opt := range opts {
		opt.Apply(cmd)
	}
	return cmd
}

// faststartExts are containers whose index is moved to the front so playback
// can begin before the file is fully read.
var faststartExts = []string{".mp4", ".m4a", ".mov"}

// Build returns the argument list, without the executable.
func (c *Command) Build() []string {
	args := make([]string, 0, 4+len(c.global)+2*len(c.inputs)+len(c.outputOpt)+3)
	args = append(args, "-hide_banner", "-nostdin", "-y")
	args = append(args, c.global...)
	for _, in := range c.inputs {
		args = append(args, "-i", in)
	}
	args = append(args, c.outputOpt...)
	if slices.Contains(faststartExts, strings.ToLower(filepath.Ext(c.output))) {
		args = append(args, "-movflags", "+faststart")
	}
	return append(args, c.output)
}

func outputArgs(args ...string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.outputOpt = append(cmd.outputOpt, args...)
	})
}

// Input adds an input file.
func Input(path string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.inputs = append(cmd.inputs, path)
	})
}

// MapStream selects a stream for the output, e.g. "0:v:0".
func MapStream(spec string) Option { return outputArgs("-map", spec) }

// AudioCodec encodes audio with codec.
func AudioCodec(codec string) Option { return outputArgs("-c:a", codec) }

// CopyVideo passes video through without re-encoding.
var CopyVideo = outputArgs("-c:v", "copy")

// ProgressTo makes ffmpeg write key=value progress records to target
// ("pipe:1", "pipe:2" or a file) instead of its redrawn stats line.
func ProgressTo(target string) Option {
	return OptionFunc(func(cmd *Command) {
		cmd.global = append(cmd.global, "-progress", target, "-nostats")
	})
}
