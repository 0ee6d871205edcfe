package pipeline

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thirdcoast.systems/mediagrab/pkg/ytdlp"
)

const formatTable = "ID  EXT  RESOLUTION\n137 mp4  1920x1080\n140 m4a  audio only\n"

func TestFixedSelector(t *testing.T) {
	assert.False(t, FixedSelector("").NeedsFormats())

	got, err := FixedSelector("").Select(context.Background(), "u", "")
	require.NoError(t, err)
	assert.Equal(t, ytdlp.BestSelector, got)

	got, err = FixedSelector(" 137+140 ").Select(context.Background(), "u", "")
	require.NoError(t, err)
	assert.Equal(t, "137+140", got)
}

func TestPromptSelector(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"code", "137\n", "137"},
		{"padded", "  22 \r\n", "22"},
		{"empty picks best", "\n", ytdlp.BestSelector},
		{"last line without newline", "18", "18"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewPromptSelector(strings.NewReader(tt.input), &out)
			assert.True(t, p.NeedsFormats())

			got, err := p.Select(context.Background(), "https://youtu.be/x", formatTable)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			assert.Contains(t, out.String(), "Available formats for https://youtu.be/x:")
			assert.Contains(t, out.String(), "137 mp4  1920x1080")
			assert.Contains(t, out.String(), "Enter the format code")
		})
	}
}

func TestPromptSelector_SequentialAnswers(t *testing.T) {
	p := NewPromptSelector(strings.NewReader("137\n\n"), io.Discard)

	first, err := p.Select(context.Background(), "a", formatTable)
	require.NoError(t, err)
	second, err := p.Select(context.Background(), "b", formatTable)
	require.NoError(t, err)

	assert.Equal(t, "137", first)
	assert.Equal(t, ytdlp.BestSelector, second)
}

func TestPromptSelector_EOF(t *testing.T) {
	p := NewPromptSelector(strings.NewReader(""), io.Discard)

	_, err := p.Select(context.Background(), "a", formatTable)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestPromptSelector_CancelKeepsPendingRead(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	p := NewPromptSelector(pr, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Select(ctx, "a", formatTable)
	require.ErrorIs(t, err, context.Canceled)

	go func() { _, _ = pw.Write([]byte("140\n")) }()

	got, err := p.Select(context.Background(), "b", formatTable)
	require.NoError(t, err)
	assert.Equal(t, "140", got)
}
