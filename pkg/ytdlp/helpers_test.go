package ytdlp

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStreamWriter_SplitsOnCRAndLF(t *testing.T) {
	var buf bytes.Buffer
	var lines []string
	w := &streamWriter{
		stream: "stdout",
		callback: func(stream string, line string) {
			lines = append(lines, stream+":"+line)
		},
		buffer: &buf,
	}

	_, err := w.Write([]byte("a\rb\nc\r\nd"))
	require.NoError(t, err)

	// No delimiter after trailing "d" yet.
	require.Equal(t, []string{"stdout:a", "stdout:b", "stdout:c"}, lines)

	_, err = w.Write([]byte("\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"stdout:a", "stdout:b", "stdout:c", "stdout:d"}, lines)

	require.Equal(t, "a\rb\nc\r\nd\n", buf.String())
}

func TestWrapExecError_TrimsOutput(t *testing.T) {
	err := wrapExecError("yt-dlp", []string{"--version"}, []byte(" out \n"), []byte(" err \n"), errors.New("boom"))
	var ee *ExecError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, "yt-dlp", ee.Cmd)
	require.Equal(t, []string{"--version"}, ee.Args)
	require.Equal(t, 0, ee.ExitCode)
	require.Equal(t, "out", ee.Stdout)
	require.Equal(t, "err", ee.Stderr)
	require.Equal(t, "boom", ee.Cause.Error())
	require.Contains(t, ee.Error(), "yt-dlp")
}

func TestWrapExecError_PassesToolNotFoundThrough(t *testing.T) {
	err := wrapExecError("yt-dlp", nil, nil, nil, ErrToolNotFound)
	require.ErrorIs(t, err, ErrToolNotFound)

	var ee *ExecError
	require.False(t, errors.As(err, &ee))
}

func TestExecError_QuotesArgs(t *testing.T) {
	e := &ExecError{Cmd: "yt-dlp", Args: []string{"-o", "%(title)s.%(ext)s", "https://x.com/a b"}}
	require.Contains(t, e.Error(), "'https://x.com/a b'")
}

func TestClient_PathOrDefault(t *testing.T) {
	c := &Client{Path: "   "}
	require.Equal(t, "yt-dlp", c.PathOrDefault())

	c.Path = "/usr/local/bin/yt-dlp"
	require.Equal(t, "/usr/local/bin/yt-dlp", c.PathOrDefault())
}

func TestCombineWithBestAudio(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", BestSelector},
		{"137", "137+bestaudio/best"},
		{" 22 ", "22+bestaudio/best"},
		{"137+140", "137+140"},
		{"bestvideo[height<=720]+bestaudio", "bestvideo[height<=720]+bestaudio"},
		{"best", "best"},
		{"18/best", "18/best"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, CombineWithBestAudio(tt.in))
		})
	}
}

func TestIsAudioContainer(t *testing.T) {
	require.True(t, IsAudioContainer("mp3"))
	require.True(t, IsAudioContainer(" M4A "))
	require.False(t, IsAudioContainer("mp4"))
	require.False(t, IsAudioContainer(""))
}
