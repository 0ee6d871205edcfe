package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"thirdcoast.systems/mediagrab/internal/config"
	"thirdcoast.systems/mediagrab/internal/history"
	"thirdcoast.systems/mediagrab/internal/pipeline"
	"thirdcoast.systems/mediagrab/internal/progress"
	"thirdcoast.systems/mediagrab/pkg/ffmpeg"
	"thirdcoast.systems/mediagrab/pkg/utils/format"
	"thirdcoast.systems/mediagrab/pkg/ytdlp"
)

type streams struct {
	in  io.Reader
	out io.Writer
	err io.Writer
}

// app holds what every command needs once flags and environment are resolved.
type app struct {
	streams *streams
	cfg     *config.Config
	logger  *slog.Logger
	logFile *os.File

	ytdlp   *ytdlp.Client
	ffmpeg  *ffmpeg.Transcoder
	history *history.Store
}

func (s *streams) setup(cmd *cobra.Command) (*app, error) {
	viper.Reset()
	cfg, err := config.LoadConfig(cmd.Context(), cmd.Flags())
	if err != nil {
		return nil, &usageError{err}
	}

	a := &app{streams: s, cfg: cfg}
	if err := a.initLogging(); err != nil {
		return nil, err
	}

	if cfg.WorkDir != "" {
		if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
			a.close()
			return nil, fmt.Errorf("create work dir: %w", err)
		}
	}

	a.ytdlp = ytdlp.New(a.logger)
	a.ytdlp.Path = cfg.YtdlpPath
	a.ytdlp.Proxy = cfg.Proxy
	a.ytdlp.RateLimitKB = cfg.SpeedLimit
	a.ytdlp.LogCallback = a.ytdlpLine

	a.ffmpeg = ffmpeg.NewTranscoder(a.logger)
	a.ffmpeg.FFmpegPath = cfg.FFmpegPath
	a.ffmpeg.FFprobePath = cfg.FFprobePath

	a.history = history.NewStore(cfg.HistoryFile, a.logger)

	a.logger.Debug("configured",
		"format", cfg.Format,
		"retries", cfg.Retries,
		"speed_limit", format.Rate(cfg.SpeedLimit),
		"history", cfg.HistoryFile)
	return a, nil
}

// initLogging writes records to stderr (unless quiet) and appends them to the log file.
func (a *app) initLogging() error {
	var writers []io.Writer
	if !a.cfg.Quiet {
		writers = append(writers, a.streams.err)
	}
	if a.cfg.LogFile != "" {
		f, err := os.OpenFile(a.cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.logFile = f
		writers = append(writers, f)
	}

	var w io.Writer = io.Discard
	if len(writers) > 0 {
		w = io.MultiWriter(writers...)
	}
	a.logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: a.cfg.SlogLevel()}))
	slog.SetDefault(a.logger)
	return nil
}

func (a *app) close() {
	if a.logFile != nil {
		_ = a.logFile.Close()
	}
}

// ytdlpLine shows yt-dlp's own download progress and keeps everything in the debug log.
func (a *app) ytdlpLine(stream, line string) {
	if strings.HasPrefix(line, "{") {
		return
	}
	if !a.cfg.Quiet && strings.HasPrefix(line, "[download]") {
		fmt.Fprintln(a.streams.err, line)
	}
	a.logger.Debug("yt-dlp", "stream", stream, "line", line)
}

// requireTools fails with a tool-not-found error before any work starts.
func (a *app) requireTools(needFFmpeg bool) error {
	if err := a.ytdlp.CheckAvailable(); err != nil {
		return err
	}
	if needFFmpeg {
		return a.ffmpeg.CheckAvailable()
	}
	if err := a.ffmpeg.CheckAvailable(); err != nil {
		a.logger.Warn("ffmpeg not found; yt-dlp cannot merge streams or convert audio", "error", err)
	}
	return nil
}

func (a *app) progressSink(label string) progress.Sink {
	if a.cfg.Quiet {
		return progress.LogSink{Logger: a.logger, Label: label}
	}
	return progress.NewBar(a.streams.err, label)
}

func (a *app) coordinator(sel pipeline.Selector) *pipeline.Coordinator {
	return pipeline.New(a.ytdlp, pipeline.NewFFmpeg(a.ffmpeg), a.history, pipeline.Options{
		Retries:    a.cfg.Retries,
		RetryDelay: a.cfg.RetryDelay,
		Selector:   sel,
		WorkDir:    a.cfg.WorkDir,
		Progress:   a.progressSink,
		Logger:     a.logger,
	})
}

func (a *app) job() pipeline.Job {
	return pipeline.Job{
		OutputTemplate:    a.cfg.OutputTemplate,
		Container:         a.cfg.Format,
		Subtitles:         a.cfg.Subtitles,
		SubLangs:          a.cfg.SubLangs,
		EmbedMetadata:     a.cfg.EmbedMetadata,
		RestrictFilenames: a.cfg.RestrictFilenames,
		Separate:          a.cfg.Separate,
	}
}

// describeOutput is "path (size)" when the file can be stat'ed.
func describeOutput(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return path
	}
	return fmt.Sprintf("%s (%s)", path, format.Bytes(info.Size()))
}
