// Package pipeline sequences the external tools for each download job:
// format discovery, selection, download, optional merge and history recording.
// Jobs run one at a time; every external call blocks until its process exits.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"

	"thirdcoast.systems/mediagrab/internal/history"
	"thirdcoast.systems/mediagrab/internal/progress"
	"thirdcoast.systems/mediagrab/internal/videoid"
	"thirdcoast.systems/mediagrab/pkg/ffmpeg"
	"thirdcoast.systems/mediagrab/pkg/utils/filename"
	"thirdcoast.systems/mediagrab/pkg/ytdlp"
)

// Fetcher is the media-download tool. *ytdlp.Client implements it.
type Fetcher interface {
	ListFormats(ctx context.Context, url string) (string, error)
	Download(ctx context.Context, url string, selector string, opts ytdlp.DownloadOptions) (*ytdlp.Result, error)
	DownloadAudioOnly(ctx context.Context, url string, destination string) (string, error)
	GetInfo(ctx context.Context, url string, extraArgs ...string) (*ytdlp.Info, error)
}

// Merging is an in-flight merge whose status lines can be followed.
type Merging interface {
	Lines() <-chan string
	Wait() error
	// Parser reads elapsed time from Lines. Nil means ffmpeg's stats lines.
	Parser() progress.Parser
}

// Transcoder merges streams and probes durations.
type Transcoder interface {
	Merge(ctx context.Context, video, audio, output string) (Merging, error)
	ProbeDuration(ctx context.Context, path string) float64
}

// History records the final outcome of each job. *history.Store implements it.
type History interface {
	Append(e history.Entry) (history.Entry, error)
}

// NewFFmpeg adapts an ffmpeg.Transcoder to Transcoder.
func NewFFmpeg(t *ffmpeg.Transcoder) Transcoder {
	return ffmpegTranscoder{t}
}

type ffmpegTranscoder struct {
	*ffmpeg.Transcoder
}

func (t ffmpegTranscoder) Merge(ctx context.Context, video, audio, output string) (Merging, error) {
	run, err := t.Transcoder.Merge(ctx, video, audio, output)
	if err != nil {
		return nil, err
	}
	return ffmpegMerge{run}, nil
}

type ffmpegMerge struct {
	*ffmpeg.MergeRun
}

// Parser reads the -progress records ffmpeg.MergeCommand asks for.
func (ffmpegMerge) Parser() progress.Parser { return progress.KeyValueParser{} }

// Options configures a Coordinator.
type Options struct {
	// Retries is the number of download attempts per job; values below 1 mean 1.
	Retries int
	// RetryDelay is waited between attempts.
	RetryDelay time.Duration
	// Selector picks formats. Nil means FixedSelector(ytdlp.BestSelector).
	Selector Selector
	// WorkDir is where downloads and merges are written. Empty is the current directory.
	WorkDir string
	// Progress returns the sink that displays a merge. Nil discards progress.
	Progress func(label string) progress.Sink
	// OnTransition observes every state change.
	OnTransition func(Transition)

	Logger *slog.Logger
}

// Coordinator runs jobs against a Fetcher and a Transcoder and records them in History.
type Coordinator struct {
	fetcher    Fetcher
	transcoder Transcoder
	history    History
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
}

func New(fetcher Fetcher, transcoder Transcoder, hist History, opts Options) *Coordinator {
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	if opts.Selector == nil {
		opts.Selector = FixedSelector(ytdlp.BestSelector)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		fetcher:    fetcher,
		transcoder: transcoder,
		history:    hist,
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// Result is the outcome of one job.
type Result struct {
	Entry history.Entry
	Err   error
}

// IsToolMissing reports whether err means an external executable is absent.
func IsToolMissing(err error) bool {
	return errors.Is(err, ytdlp.ErrToolNotFound) || errors.Is(err, ffmpeg.ErrToolNotFound)
}

// RunBatch runs each URL as a copy of tmpl, strictly in order. A missing tool
// or a cancelled context stops the batch and is returned; ordinary job failures
// are only reported in the Summary.
func (c *Coordinator) RunBatch(ctx context.Context, tmpl Job, urls []string) (Summary, error) {
	var sum Summary
	for i, url := range urls {
		job := tmpl
		job.URL = url

		c.logger.Info("processing url", "url", url, "index", i+1, "total", len(urls))
		res := c.Run(ctx, job)
		sum.Entries = append(sum.Entries, res.Entry)
		if res.Err != nil {
			sum.Failed = append(sum.Failed, url)
		} else {
			sum.Succeeded = append(sum.Succeeded, url)
		}

		if IsToolMissing(res.Err) {
			return sum, res.Err
		}
		if err := ctx.Err(); err != nil {
			return sum, err
		}
	}

	if sum.OK() {
		c.logger.Info("all downloads completed successfully", "total", sum.Total())
	} else {
		c.logger.Error("some downloads failed", "failed", len(sum.Failed), "total", sum.Total())
	}
	return sum, nil
}

// jobRun carries the mutable state of one job through its transitions.
type jobRun struct {
	c       *Coordinator
	job     Job
	state   State
	attempt int
	entry   history.Entry

	// intermediates are stream files downloaded for a merge.
	intermediates []string
}

func (r *jobRun) to(next State, err error) {
	t := Transition{URL: r.job.URL, From: r.state, To: next, Attempt: r.attempt, Err: err}
	r.state = next

	attrs := []any{"url", t.URL, "from", string(t.From), "to", string(t.To)}
	if t.Attempt > 0 {
		attrs = append(attrs, "attempt", t.Attempt)
	}
	switch {
	case err != nil:
		r.c.logger.Warn("job state", append(attrs, "error", err)...)
	case next.Terminal():
		r.c.logger.Info("job state", attrs...)
	default:
		r.c.logger.Debug("job state", attrs...)
	}
	if r.c.opts.OnTransition != nil {
		r.c.opts.OnTransition(t)
	}
}

// Run executes one job: discovery and selection once, then up to Retries
// download attempts. Exactly one history entry is written for the job.
func (c *Coordinator) Run(ctx context.Context, job Job) Result {
	r := &jobRun{c: c, job: job}
	r.entry = history.Entry{
		URL:       job.URL,
		Timestamp: c.now(),
		Status:    history.StatusFailed,
	}
	if src, err := videoid.Identify(job.URL); err == nil {
		r.entry.SourceURL = src.URL
		r.entry.Domain = src.Domain
		r.entry.VideoKey = src.Key()
	}

	err := r.run(ctx)
	if err != nil {
		r.entry.Status = history.StatusFailed
		r.entry.Output = ""
		r.entry.Error = err.Error()
		r.record()
		return Result{Entry: r.entry, Err: err}
	}

	r.to(StateRecording, nil)
	r.entry.Status = history.StatusSuccess
	r.record()
	r.to(StateDone, nil)
	c.logger.Info("successfully downloaded", "url", job.URL, "output", r.entry.Output)
	return Result{Entry: r.entry}
}

func (r *jobRun) record() {
	saved, err := r.c.history.Append(r.entry)
	if err != nil {
		r.c.logger.Error("failed to record history", "url", r.job.URL, "error", err)
		return
	}
	r.entry = saved
}

func (r *jobRun) run(ctx context.Context) error {
	if out := r.job.Output; out != "" && filepath.Ext(out) == "" {
		err := &InputError{Path: out, Err: ffmpeg.ErrNoExtension}
		r.to(StateFailed, err)
		return err
	}

	selector := ""
	if strings.TrimSpace(r.job.LocalVideo) == "" {
		var err error
		selector, err = r.selectFormat(ctx)
		if err != nil {
			return err
		}
	}

	b := retry.WithMaxRetries(uint64(r.c.opts.Retries-1), constantBackoff(r.c.opts.RetryDelay))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		r.attempt++
		if r.attempt > 1 {
			r.c.logger.Warn("retrying", "url", r.job.URL, "attempt", r.attempt, "of", r.c.opts.Retries)
		}
		r.to(StateDownloading, nil)
		r.entry.Attempts = r.attempt

		err := r.attemptOnce(ctx, selector)
		if err == nil {
			return nil
		}
		r.to(StateFailed, err)
		logToolError(r.c.logger, r.job.URL, err)

		var inErr *InputError
		if IsToolMissing(err) || errors.As(err, &inErr) || ctx.Err() != nil {
			return err
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		removeIntermediates(r.c.logger, r.intermediates...)
		if r.attempt >= r.c.opts.Retries {
			r.c.logger.Error("download failed after all attempts", "url", r.job.URL, "attempts", r.attempt)
		}
	}
	return err
}

func constantBackoff(d time.Duration) retry.Backoff {
	if d > 0 {
		return retry.NewConstant(d)
	}
	return retry.BackoffFunc(func() (time.Duration, bool) { return 0, false })
}

func (r *jobRun) selectFormat(ctx context.Context) (string, error) {
	sel := r.c.opts.Selector
	table := ""
	if sel.NeedsFormats() {
		r.to(StateDiscovering, nil)
		var err error
		table, err = r.c.fetcher.ListFormats(ctx, r.job.URL)
		if err != nil {
			err = fmt.Errorf("discover formats: %w", err)
			r.to(StateFailed, err)
			return "", err
		}
	}

	r.to(StateSelecting, nil)
	selector, err := sel.Select(ctx, r.job.URL, table)
	if err != nil {
		err = fmt.Errorf("select format: %w", err)
		r.to(StateFailed, err)
		return "", err
	}
	return selector, nil
}

func (r *jobRun) attemptOnce(ctx context.Context, selector string) error {
	switch {
	case strings.TrimSpace(r.job.LocalVideo) != "":
		return r.mergeLocal(ctx)
	case r.job.Separate && !ytdlp.IsAudioContainer(r.job.Container):
		return r.downloadSeparate(ctx, selector)
	default:
		return r.downloadCombined(ctx, selector)
	}
}

func (r *jobRun) workPath(name string) string {
	if filepath.IsAbs(name) || r.c.opts.WorkDir == "" {
		return name
	}
	return filepath.Join(r.c.opts.WorkDir, name)
}

func (r *jobRun) downloadOptions() ytdlp.DownloadOptions {
	tmpl := r.job.OutputTemplate
	if strings.TrimSpace(tmpl) == "" {
		tmpl = ytdlp.DefaultOutputTemplate
	}
	return ytdlp.DownloadOptions{
		OutputTemplate:    r.workPath(tmpl),
		Container:         r.job.Container,
		Subtitles:         r.job.Subtitles,
		SubLangs:          r.job.SubLangs,
		EmbedMetadata:     r.job.EmbedMetadata,
		RestrictFilenames: r.job.RestrictFilenames,
	}
}

func (r *jobRun) downloadCombined(ctx context.Context, selector string) error {
	res, err := r.c.fetcher.Download(ctx, r.job.URL, ytdlp.CombineWithBestAudio(selector), r.downloadOptions())
	if err != nil {
		return err
	}
	r.entry.Output = res.Path
	r.entry.Title = res.Title
	r.entry.Duration = res.Duration
	return nil
}

// videoOnly reduces a selector to its video part for a separate-streams download.
func videoOnly(selector string) string {
	s := strings.TrimSpace(selector)
	if s == "" || s == ytdlp.BestSelector {
		return "bestvideo"
	}
	if before, _, ok := strings.Cut(s, "+"); ok {
		return before
	}
	return s
}

func (r *jobRun) downloadSeparate(ctx context.Context, selector string) error {
	opts := r.downloadOptions()
	opts.OutputTemplate = r.workPath("%(title)s.video.%(ext)s")
	opts.Container = ""
	opts.EmbedMetadata = false

	video, err := r.c.fetcher.Download(ctx, r.job.URL, videoOnly(selector), opts)
	if err != nil {
		return fmt.Errorf("download video stream: %w", err)
	}
	r.intermediates = append(r.intermediates, video.Path)
	audio, err := r.c.fetcher.DownloadAudioOnly(ctx, r.job.URL, r.workPath("%(title)s.audio.%(ext)s"))
	if err != nil {
		return fmt.Errorf("download audio stream: %w", err)
	}
	r.intermediates = append(r.intermediates, audio)

	container := r.job.Container
	if container == "" {
		container = "mp4"
	}
	output := r.job.Output
	if output == "" {
		output = filename.ForTitle(video.Title, container)
	}
	output = r.workPath(output)

	total := video.Duration
	if d := r.c.transcoder.ProbeDuration(ctx, video.Path); d > 0 {
		total = d
	}
	if err := r.merge(ctx, video.Path, audio, output, total); err != nil {
		return err
	}

	removeIntermediates(r.c.logger, video.Path, audio)
	r.entry.Output = output
	r.entry.Title = video.Title
	r.entry.Duration = total
	return nil
}

func (r *jobRun) mergeLocal(ctx context.Context) error {
	if _, err := os.Stat(r.job.LocalVideo); err != nil {
		return &InputError{Path: r.job.LocalVideo, Err: err}
	}

	audio, err := r.c.fetcher.DownloadAudioOnly(ctx, r.job.URL, r.workPath("%(title)s.audio.%(ext)s"))
	if err != nil {
		return fmt.Errorf("download audio stream: %w", err)
	}
	r.intermediates = append(r.intermediates, audio)

	output := r.job.Output
	if output == "" {
		output = DefaultMergeOutput
	}
	output = r.workPath(output)

	total := r.c.transcoder.ProbeDuration(ctx, r.job.LocalVideo)
	if err := r.merge(ctx, r.job.LocalVideo, audio, output, total); err != nil {
		return err
	}

	removeIntermediates(r.c.logger, audio)
	r.entry.Output = output
	r.entry.Duration = total
	if info, err := r.c.fetcher.GetInfo(ctx, r.job.URL); err == nil {
		r.entry.Title = info.Title
	} else {
		r.c.logger.Debug("could not read title", "url", r.job.URL, "error", err)
	}
	return nil
}

func (r *jobRun) merge(ctx context.Context, video, audio, output string, total float64) error {
	r.to(StateMerging, nil)

	var sink progress.Sink
	if r.c.opts.Progress != nil {
		sink = r.c.opts.Progress(filepath.Base(output))
	}

	run, err := r.c.transcoder.Merge(ctx, video, audio, output)
	if err != nil {
		return err
	}
	mon := progress.NewMonitor(run.Parser(), sink, total)
	mon.Consume(run.Lines())
	err = run.Wait()
	mon.Finish(err)
	return err
}

func removeIntermediates(logger *slog.Logger, paths ...string) {
	var err error
	for _, p := range paths {
		if rerr := os.Remove(p); rerr != nil && !errors.Is(rerr, os.ErrNotExist) {
			err = multierr.Append(err, rerr)
		}
	}
	if err != nil {
		logger.Warn("failed to remove intermediate files", "errors", len(multierr.Errors(err)), "error", err)
	}
}

func logToolError(logger *slog.Logger, url string, err error) {
	var execErr *ytdlp.ExecError
	var mergeErr *ffmpeg.MergeError
	switch {
	case errors.As(err, &execErr):
		logger.Error("download failed",
			"url", url,
			"error", err,
			"exit_code", execErr.ExitCode,
			"stderr", execErr.Stderr)
	case errors.As(err, &mergeErr):
		attrs := []any{"url", url, "error", err, "stderr", mergeErr.Stderr()}
		var ffErr *ffmpeg.Error
		if errors.As(err, &ffErr) {
			attrs = append(attrs, "command", ffErr.Command())
		}
		logger.Error("merge failed", attrs...)
	default:
		logger.Error("job failed", "url", url, "error", err)
	}
}

// MergeLocal fetches the best audio for url and merges it into the local
// video file, writing output (DefaultMergeOutput when empty).
func (c *Coordinator) MergeLocal(ctx context.Context, video, url, output string) Result {
	return c.Run(ctx, Job{URL: url, LocalVideo: video, Output: output})
}
