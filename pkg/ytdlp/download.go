package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// DefaultOutputTemplate names files after the video title.
const DefaultOutputTemplate = "%(title)s.%(ext)s"

// reportTemplate makes yt-dlp print one JSON object describing the final file
// once post-processing (merge, remux, extract) has moved it into place.
const reportTemplate = "after_move:%(.{filepath,title,duration})j"

// ErrNoOutputPath means yt-dlp exited successfully without reporting where it wrote the file.
var ErrNoOutputPath = errors.New("ytdlp: no output path reported")

// audioContainers are extracted with -x rather than merged.
var audioContainers = []string{"mp3", "m4a", "opus", "aac", "flac", "wav", "vorbis"}

// IsAudioContainer reports whether container is an audio-only output format.
func IsAudioContainer(container string) bool {
	return slices.Contains(audioContainers, strings.ToLower(strings.TrimSpace(container)))
}

// DownloadOptions controls a single download invocation.
type DownloadOptions struct {
	// OutputTemplate is passed as -o; defaults to DefaultOutputTemplate.
	OutputTemplate string
	// Container is the merge output container (mp4, mkv, ...) or an audio format
	// (mp3, m4a, ...) which switches to audio extraction.
	Container string
	// Subtitles writes manual and automatic subtitles.
	Subtitles bool
	// SubLangs restricts subtitle languages; empty means "all".
	SubLangs []string
	// EmbedMetadata embeds metadata, thumbnail and (with Subtitles) subtitles.
	EmbedMetadata bool
	// RestrictFilenames keeps generated names ASCII without spaces.
	RestrictFilenames bool
}

// Result describes the file yt-dlp produced.
type Result struct {
	Path     string  `json:"filepath"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration"`
}

// Download fetches url using the given format selector. When the selector asks
// for separate streams yt-dlp merges them into opts.Container itself.
// The returned path is the one yt-dlp reports, never a guess.
func (c *Client) Download(ctx context.Context, url string, selector string, opts DownloadOptions) (*Result, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("ytdlp: url is required")
	}
	if strings.TrimSpace(selector) == "" {
		selector = BestSelector
	}

	tmpl := opts.OutputTemplate
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultOutputTemplate
	}

	args := []string{
		"-f", selector,
		"-o", tmpl,
		"--no-playlist",
		"--no-colors",
		"--progress",
	}

	container := strings.ToLower(strings.TrimSpace(opts.Container))
	switch {
	case container == "":
	case IsAudioContainer(container):
		args = append(args, "-x", "--audio-format", container)
	default:
		args = append(args, "--merge-output-format", container)
	}

	if opts.Subtitles {
		langs := "all"
		if len(opts.SubLangs) > 0 {
			langs = strings.Join(opts.SubLangs, ",")
		}
		args = append(args, "--write-subs", "--write-auto-subs", "--sub-langs", langs)
	}
	if opts.EmbedMetadata {
		args = append(args, "--embed-metadata", "--embed-thumbnail")
		if opts.Subtitles && !IsAudioContainer(container) {
			args = append(args, "--embed-subs")
		}
	}
	if opts.RestrictFilenames {
		args = append(args, "--restrict-filenames")
	}

	return c.download(ctx, url, args)
}

// DownloadAudioOnly fetches the best available audio stream to destination
// (a path or an output template) and returns the written path.
func (c *Client) DownloadAudioOnly(ctx context.Context, url string, destination string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", fmt.Errorf("ytdlp: url is required")
	}
	if strings.TrimSpace(destination) == "" {
		return "", fmt.Errorf("ytdlp: destination is required")
	}

	args := []string{
		"-f", "bestaudio",
		"-o", destination,
		"--no-playlist",
		"--no-colors",
		"--progress",
	}
	res, err := c.download(ctx, url, args)
	if err != nil {
		return "", err
	}
	return res.Path, nil
}

func (c *Client) download(ctx context.Context, url string, args []string) (*Result, error) {
	args = append(args, "--print", reportTemplate, url)

	stdout, stderr, err := c.exec(ctx, args...)
	if err != nil {
		return nil, wrapExecError(c.PathOrDefault(), args, stdout, stderr, err)
	}

	res, err := parseReport(stdout)
	if err != nil {
		return nil, err
	}
	c.logger().Info("ytdlp: download finished", "url", url, "path", res.Path, "title", res.Title)
	return res, nil
}

// parseReport picks the last JSON object line on stdout; progress lines and
// other chatter are skipped.
func parseReport(stdout []byte) (*Result, error) {
	var res *Result
	sc := bufio.NewScanner(bytes.NewReader(stdout))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var r Result
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			continue
		}
		if strings.TrimSpace(r.Path) != "" {
			res = &r
		}
	}
	if res == nil {
		return nil, ErrNoOutputPath
	}
	return res, nil
}
