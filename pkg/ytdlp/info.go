package ytdlp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Info is the subset of yt-dlp's metadata JSON this tool reads.
type Info struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	WebpageURL string  `json:"webpage_url"`
	Extractor  string  `json:"extractor_key"`
	Duration   float64 `json:"duration"`
}

// GetInfo reads url's metadata without downloading anything.
// extraArgs are inserted before the URL.
func (c *Client) GetInfo(ctx context.Context, url string, extraArgs ...string) (*Info, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("ytdlp: url is required")
	}

	args := append([]string{"--dump-single-json", "--skip-download", "--no-playlist"}, extraArgs...)
	args = append(args, url)

	stdout, stderr, err := c.exec(ctx, args...)
	if err != nil {
		return nil, wrapExecError(c.PathOrDefault(), args, stdout, stderr, err)
	}

	var info Info
	if err := json.Unmarshal(stdout, &info); err != nil {
		return nil, fmt.Errorf("ytdlp: parse metadata for %s: %w", url, err)
	}
	return &info, nil
}
