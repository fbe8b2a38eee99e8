package vlmrun

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleVideoFramesWithoutFFmpeg(t *testing.T) {
	original := ffmpegLookPath
	ffmpegLookPath = func(string) (string, error) { return "", exec.ErrNotFound }
	t.Cleanup(func() { ffmpegLookPath = original })

	_, err := SampleVideoFrames(context.Background(), "clip.mp4", FrameSampleOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependency)

	var depErr *Error
	require.True(t, errors.As(err, &depErr))
	assert.Contains(t, depErr.Message, "ffmpeg")
	assert.Contains(t, depErr.Suggestion, "ffmpeg.org")
}

func TestSampleVideoFramesEmptyPath(t *testing.T) {
	t.Setenv("PATH", "")
	_, err := SampleVideoFrames(context.Background(), "clip.mp4", FrameSampleOptions{Max: 2})
	assert.ErrorIs(t, err, ErrDependency)
}

func TestDecodePNGStream(t *testing.T) {
	var stream bytes.Buffer
	for i := 0; i < 3; i++ {
		require.NoError(t, png.Encode(&stream, testImage()))
	}

	frames, err := decodePNGStream(&stream)
	require.NoError(t, err)
	assert.Len(t, frames, 3)

	frames, err = decodePNGStream(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Empty(t, frames)

	_, err = decodePNGStream(bytes.NewReader([]byte("not a png")))
	assert.ErrorIs(t, err, ErrDecode)
}
