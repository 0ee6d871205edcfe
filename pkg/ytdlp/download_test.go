package ytdlp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDownload_ReturnsReportedPath(t *testing.T) {
	c := New(nil)
	var gotArgs []string
	c.execFn = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		gotArgs = args
		stdout := "[download]  50.0% of 10.00MiB\n" +
			`{"filepath": "/tmp/out/My Video [abc].mp4", "title": "My Video", "duration": 212.5}` + "\n"
		return []byte(stdout), nil, nil
	}

	res, err := c.Download(context.Background(), "https://youtu.be/abc", "137+bestaudio/best", DownloadOptions{
		OutputTemplate: "/tmp/out/%(title)s [%(id)s].%(ext)s",
		Container:      "mp4",
	})
	require.NoError(t, err)
	require.Equal(t, "/tmp/out/My Video [abc].mp4", res.Path)
	require.Equal(t, "My Video", res.Title)
	require.Equal(t, 212.5, res.Duration)

	require.Subset(t, gotArgs, []string{"-f", "137+bestaudio/best", "--merge-output-format", "mp4", "--print", reportTemplate})
	require.Equal(t, "https://youtu.be/abc", gotArgs[len(gotArgs)-1])
}

func TestDownload_AudioContainerExtracts(t *testing.T) {
	c := New(nil)
	var gotArgs []string
	c.execFn = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		gotArgs = args
		return []byte(`{"filepath":"song.mp3","title":"song","duration":null}`), nil, nil
	}

	res, err := c.Download(context.Background(), "https://youtu.be/abc", "bestaudio/best", DownloadOptions{Container: "mp3"})
	require.NoError(t, err)
	require.Equal(t, "song.mp3", res.Path)
	require.Zero(t, res.Duration)
	require.Subset(t, gotArgs, []string{"-x", "--audio-format", "mp3"})
	require.NotContains(t, gotArgs, "--merge-output-format")
}

func TestDownload_SubtitleAndMetadataFlags(t *testing.T) {
	c := New(nil)
	var gotArgs []string
	c.execFn = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		gotArgs = args
		return []byte(`{"filepath":"a.mkv"}`), nil, nil
	}

	_, err := c.Download(context.Background(), "https://youtu.be/abc", "", DownloadOptions{
		Container:         "mkv",
		Subtitles:         true,
		SubLangs:          []string{"en", "de"},
		EmbedMetadata:     true,
		RestrictFilenames: true,
	})
	require.NoError(t, err)
	require.Subset(t, gotArgs, []string{
		"-f", BestSelector,
		"-o", DefaultOutputTemplate,
		"--write-subs", "--write-auto-subs", "--sub-langs", "en,de",
		"--embed-metadata", "--embed-thumbnail", "--embed-subs",
		"--restrict-filenames",
	})
}

func TestDownload_NoReportedPathIsError(t *testing.T) {
	c := New(nil)
	c.execFn = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return []byte("[download] 100%\n"), nil, nil
	}

	_, err := c.Download(context.Background(), "https://youtu.be/abc", "22", DownloadOptions{})
	require.ErrorIs(t, err, ErrNoOutputPath)
}

func TestDownload_NonZeroExit(t *testing.T) {
	c := New(nil)
	c.execFn = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		return nil, []byte("ERROR: Requested format is not available"), errors.New("exit status 1")
	}

	_, err := c.Download(context.Background(), "https://youtu.be/abc", "999", DownloadOptions{})
	var ee *ExecError
	require.ErrorAs(t, err, &ee)
	require.Contains(t, ee.Stderr, "Requested format is not available")
}

func TestDownloadAudioOnly(t *testing.T) {
	c := New(nil)
	var gotArgs []string
	c.execFn = func(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
		gotArgs = args
		return []byte(`{"filepath":"/work/audio.webm","title":"t"}`), nil, nil
	}

	path, err := c.DownloadAudioOnly(context.Background(), "https://youtu.be/abc", "/work/audio.%(ext)s")
	require.NoError(t, err)
	require.Equal(t, "/work/audio.webm", path)
	require.Subset(t, gotArgs, []string{"-f", "bestaudio", "-o", "/work/audio.%(ext)s"})

	_, err = c.DownloadAudioOnly(context.Background(), "https://youtu.be/abc", "")
	require.Error(t, err)
}

func TestParseReport_UsesLastObject(t *testing.T) {
	res, err := parseReport([]byte("{\"filepath\":\"first.mp4\"}\nnoise\n{\"filepath\":\"second.mp4\"}\n{not json\n"))
	require.NoError(t, err)
	require.Equal(t, "second.mp4", res.Path)
}
