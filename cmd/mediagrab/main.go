// Command mediagrab downloads web videos with yt-dlp, optionally merges
// separately fetched streams with ffmpeg, and keeps a JSON download history.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"thirdcoast.systems/mediagrab/internal/pipeline"
)

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// execute runs the command line and maps the outcome to an exit code.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd(&streams{in: stdin, out: stdout, err: stderr})
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	if !errors.Is(err, errJobsFailed) {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return exitCode(err)
}

// errJobsFailed is returned after a run in which at least one job failed.
// The failures have already been reported.
var errJobsFailed = errors.New("one or more downloads failed")

// usageError marks bad flags or arguments.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var usage *usageError
	var input *pipeline.InputError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &usage),
		errors.As(err, &input),
		errors.Is(err, pipeline.ErrNoInput),
		pipeline.IsToolMissing(err):
		return exitUsage
	default:
		return exitFailed
	}
}
