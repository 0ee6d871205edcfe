package ytdlp

import (
	"context"
	"fmt"
	"strings"
)

// BestSelector is yt-dlp's "best video with best audio, else best single file".
const BestSelector = "bestvideo+bestaudio/best"

// ListFormats runs `yt-dlp -F` and returns its table exactly as printed.
func (c *Client) ListFormats(ctx context.Context, url string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", fmt.Errorf("ytdlp: url is required")
	}

	args := []string{"-F", "--no-playlist", "--no-colors", url}
	stdout, stderr, err := c.exec(ctx, args...)
	if err != nil {
		return "", wrapExecError(c.PathOrDefault(), args, stdout, stderr, err)
	}
	return string(stdout), nil
}

// CombineWithBestAudio turns a bare format code into "<code>+bestaudio/best".
// Selectors that already combine streams or use fallbacks are returned unchanged.
func CombineWithBestAudio(selector string) string {
	s := strings.TrimSpace(selector)
	if s == "" {
		return BestSelector
	}
	if strings.ContainsAny(s, "+/[,") || strings.HasPrefix(s, "best") || strings.HasPrefix(s, "worst") {
		return s
	}
	return s + "+bestaudio/best"
}
