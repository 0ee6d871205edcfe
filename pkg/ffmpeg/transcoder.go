package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Transcoder runs ffmpeg and ffprobe on behalf of the download pipeline.
type Transcoder struct {
	// FFmpegPath defaults to "ffmpeg" (PATH lookup).
	FFmpegPath string
	// FFprobePath defaults to "ffprobe" (PATH lookup).
	FFprobePath string
	// GracePeriod bounds how long an interrupted child may take to exit.
	GracePeriod time.Duration

	Logger *slog.Logger

	lookPath func(file string) (string, error)
	probeFn  func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewTranscoder returns a Transcoder using the binaries found on PATH.
func NewTranscoder(logger *slog.Logger) *Transcoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcoder{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe", Logger: logger}
}

func (t *Transcoder) ffmpeg() string {
	if strings.TrimSpace(t.FFmpegPath) == "" {
		return "ffmpeg"
	}
	return t.FFmpegPath
}

func (t *Transcoder) ffprobe() string {
	if strings.TrimSpace(t.FFprobePath) == "" {
		return "ffprobe"
	}
	return t.FFprobePath
}

func (t *Transcoder) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

// CheckAvailable reports ErrToolNotFound when ffmpeg is missing. ffprobe is
// optional: without it durations are simply unknown.
func (t *Transcoder) CheckAvailable() error {
	look := t.lookPath
	if look == nil {
		look = exec.LookPath
	}
	if _, err := look(t.ffmpeg()); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrToolNotFound, t.ffmpeg(), err)
	}
	if _, err := look(t.ffprobe()); err != nil {
		t.logger().Warn("ffprobe not found, progress will show elapsed time only", "path", t.ffprobe())
	}
	return nil
}

// ErrNoExtension is returned when a merge destination has no file extension,
// which ffmpeg needs to pick the output container.
var ErrNoExtension = errors.New("ffmpeg: output has no file extension")

// MergeError is a failed merge. The destination file was not touched.
type MergeError struct {
	Video  string
	Audio  string
	Output string
	Err    error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("ffmpeg: merge %s + %s -> %s: %v", filepath.Base(e.Video), filepath.Base(e.Audio), e.Output, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// Stderr returns ffmpeg's captured diagnostics, if the process ran.
func (e *MergeError) Stderr() string {
	var fe *Error
	if errors.As(e.Err, &fe) {
		return fe.Stderr
	}
	return ""
}

// MergeRun is an in-flight merge.
type MergeRun struct {
	proc   *Process
	video  string
	audio  string
	tmp    string
	output string
}

// Lines yields ffmpeg's output while the merge runs: -progress key=value
// records interleaved with any diagnostics.
func (m *MergeRun) Lines() <-chan string { return m.proc.Lines() }

// Wait blocks until ffmpeg exits. On success the result replaces the output
// path; on failure the partial file is removed and a *MergeError returned.
func (m *MergeRun) Wait() error {
	if err := m.proc.Wait(); err != nil {
		_ = os.Remove(m.tmp)
		return &MergeError{Video: m.video, Audio: m.audio, Output: m.output, Err: err}
	}
	if err := os.Chmod(m.tmp, outputMode(m.output)); err != nil {
		_ = os.Remove(m.tmp)
		return &MergeError{Video: m.video, Audio: m.audio, Output: m.output, Err: err}
	}
	if err := os.Rename(m.tmp, m.output); err != nil {
		_ = os.Remove(m.tmp)
		return &MergeError{Video: m.video, Audio: m.audio, Output: m.output, Err: err}
	}
	return nil
}

// outputMode keeps the permissions of a file being replaced. New files get 0644.
func outputMode(path string) os.FileMode {
	if info, err := os.Stat(path); err == nil {
		return info.Mode().Perm()
	}
	return 0o644
}

// MergeCommand is the ffmpeg invocation that copies the video stream of video
// and encodes the audio stream of audio to AAC. Progress is reported as
// key=value records on stderr.
func MergeCommand(video, audio, output string) *Command {
	return NewCommand(output,
		ProgressTo("pipe:2"),
		Input(video),
		Input(audio),
		MapStream("0:v:0"),
		MapStream("1:a:0"),
		CopyVideo,
		AudioCodec("aac"),
	)
}

// Merge starts combining a video file and an audio file into output. ffmpeg
// writes to a temporary sibling of output, so output only changes once the
// merge has succeeded.
func (t *Transcoder) Merge(ctx context.Context, video, audio, output string) (*MergeRun, error) {
	if filepath.Ext(output) == "" {
		return nil, &MergeError{Video: video, Audio: audio, Output: output, Err: ErrNoExtension}
	}
	for _, in := range []string{video, audio} {
		if _, err := os.Stat(in); err != nil {
			return nil, &MergeError{Video: video, Audio: audio, Output: output, Err: err}
		}
	}

	dir := filepath.Dir(output)
	ext := filepath.Ext(output)
	stem := strings.TrimSuffix(filepath.Base(output), ext)
	tmpFile, err := os.CreateTemp(dir, "."+stem+".*.part"+ext)
	if err != nil {
		return nil, &MergeError{Video: video, Audio: audio, Output: output, Err: err}
	}
	tmp := tmpFile.Name()
	_ = tmpFile.Close()

	args := MergeCommand(video, audio, tmp).Build()
	t.logger().Info("ffmpeg: merging", "video", video, "audio", audio, "output", output)

	proc, err := Start(ctx, t.ffmpeg(), args, t.GracePeriod)
	if err != nil {
		_ = os.Remove(tmp)
		if errors.Is(err, ErrToolNotFound) {
			return nil, err
		}
		return nil, &MergeError{Video: video, Audio: audio, Output: output, Err: err}
	}

	return &MergeRun{proc: proc, video: video, audio: audio, tmp: tmp, output: output}, nil
}
