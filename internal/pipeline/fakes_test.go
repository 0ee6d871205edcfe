package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"thirdcoast.systems/mediagrab/internal/progress"
	"thirdcoast.systems/mediagrab/pkg/ytdlp"
)

type downloadCall struct {
	url      string
	selector string
	opts     ytdlp.DownloadOptions
}

// fakeFetcher stands in for yt-dlp. Files it "downloads" are created in dir.
type fakeFetcher struct {
	dir string

	formatsErr  error
	downloadErr func(url string, attempt int) error
	audioErr    error
	title       string
	duration    float64

	listCalls     []string
	downloadCalls []downloadCall
	audioCalls    []string
	attempts      map[string]int
}

func newFakeFetcher(dir string) *fakeFetcher {
	return &fakeFetcher{dir: dir, title: "My Video", duration: 42, attempts: map[string]int{}}
}

func (f *fakeFetcher) ListFormats(ctx context.Context, url string) (string, error) {
	f.listCalls = append(f.listCalls, url)
	if f.formatsErr != nil {
		return "", f.formatsErr
	}
	return "ID  EXT  RESOLUTION\n137 mp4  1920x1080\n140 m4a  audio only\n", nil
}

func (f *fakeFetcher) Download(ctx context.Context, url string, selector string, opts ytdlp.DownloadOptions) (*ytdlp.Result, error) {
	f.downloadCalls = append(f.downloadCalls, downloadCall{url: url, selector: selector, opts: opts})
	f.attempts[url]++
	if f.downloadErr != nil {
		if err := f.downloadErr(url, f.attempts[url]); err != nil {
			return nil, err
		}
	}
	name := strings.NewReplacer("%(title)s", f.title, "%(ext)s", "mp4").Replace(filepath.Base(opts.OutputTemplate))
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		return nil, err
	}
	return &ytdlp.Result{Path: path, Title: f.title, Duration: f.duration}, nil
}

func (f *fakeFetcher) DownloadAudioOnly(ctx context.Context, url string, destination string) (string, error) {
	f.audioCalls = append(f.audioCalls, url)
	if f.audioErr != nil {
		return "", f.audioErr
	}
	name := strings.NewReplacer("%(title)s", f.title, "%(ext)s", "m4a").Replace(filepath.Base(destination))
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (f *fakeFetcher) GetInfo(ctx context.Context, url string, extraArgs ...string) (*ytdlp.Info, error) {
	return &ytdlp.Info{Title: f.title, Duration: f.duration}, nil
}

type mergeCall struct {
	video, audio, output string
}

// fakeTranscoder writes "merged" to the output unless waitErr is set.
type fakeTranscoder struct {
	lines    []string
	parser   progress.Parser
	duration float64
	startErr error
	waitErr  error

	calls []mergeCall
}

func (t *fakeTranscoder) Merge(ctx context.Context, video, audio, output string) (Merging, error) {
	t.calls = append(t.calls, mergeCall{video, audio, output})
	if t.startErr != nil {
		return nil, t.startErr
	}
	ch := make(chan string, len(t.lines))
	for _, l := range t.lines {
		ch <- l
	}
	close(ch)
	return &fakeMerging{lines: ch, parser: t.parser, output: output, err: t.waitErr}, nil
}

func (t *fakeTranscoder) ProbeDuration(ctx context.Context, path string) float64 {
	return t.duration
}

type fakeMerging struct {
	lines  chan string
	parser progress.Parser
	output string
	err    error
}

func (m *fakeMerging) Lines() <-chan string    { return m.lines }
func (m *fakeMerging) Parser() progress.Parser { return m.parser }

func (m *fakeMerging) Wait() error {
	if m.err != nil {
		return m.err
	}
	return os.WriteFile(m.output, []byte("merged"), 0o644)
}

// scriptedSelector returns a canned answer and remembers the tables it saw.
type scriptedSelector struct {
	needs  bool
	answer string
	err    error
	tables []string
}

func (s *scriptedSelector) NeedsFormats() bool { return s.needs }

func (s *scriptedSelector) Select(ctx context.Context, url, table string) (string, error) {
	s.tables = append(s.tables, table)
	return s.answer, s.err
}

var errBoom = errors.New("boom")
