package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"thirdcoast.systems/mediagrab/internal/history"
)

// ErrNoInput means neither arguments nor a batch file supplied a URL.
var ErrNoInput = errors.New("pipeline: no URLs provided")

// InputError is a problem with user-supplied input, reported before any work starts.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("pipeline: invalid input: %v", e.Err)
	}
	return fmt.Sprintf("pipeline: invalid input %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// Job is one download request. It is passed by value and never modified
// once the coordinator starts on it.
type Job struct {
	URL string
	// OutputTemplate is yt-dlp's -o template, relative to the work dir unless absolute.
	OutputTemplate string
	// Container is the output format: mp4, mkv, webm, or an audio format.
	Container     string
	Subtitles     bool
	SubLangs      []string
	EmbedMetadata bool
	// RestrictFilenames keeps yt-dlp's generated names ASCII without spaces.
	RestrictFilenames bool
	// Separate downloads video and audio separately and merges them with ffmpeg.
	Separate bool
	// LocalVideo, when set, is merged with the URL's best audio instead of
	// downloading video.
	LocalVideo string
	// Output is the merge destination for Separate and LocalVideo jobs.
	// Empty derives it from the title (Separate) or DefaultMergeOutput (LocalVideo).
	Output string
}

// DefaultMergeOutput is the file a local-video merge writes when no output is given.
const DefaultMergeOutput = "merged_output.mp4"

// Summary is the outcome of a batch.
type Summary struct {
	Succeeded []string
	Failed    []string
	Entries   []history.Entry
}

// OK reports whether every job succeeded.
func (s Summary) OK() bool {
	return len(s.Failed) == 0
}

// Total is the number of jobs that ran.
func (s Summary) Total() int {
	return len(s.Succeeded) + len(s.Failed)
}

// CollectURLs merges positional URLs with those in batchFile (one per line,
// blank lines and "#" comments skipped). No URLs at all is ErrNoInput.
func CollectURLs(args []string, batchFile string) ([]string, error) {
	var urls []string
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			urls = append(urls, a)
		}
	}

	if strings.TrimSpace(batchFile) != "" {
		fromFile, err := LoadBatchFile(batchFile)
		if err != nil {
			return nil, err
		}
		urls = append(urls, fromFile...)
	}

	if len(urls) == 0 {
		return nil, ErrNoInput
	}
	return urls, nil
}

// LoadBatchFile reads one URL per line.
func LoadBatchFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	return urls, nil
}
