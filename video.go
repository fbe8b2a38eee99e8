package vlmrun

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os/exec"
	"strconv"
	"time"
)

// FrameSampleOptions controls SampleVideoFrames.
type FrameSampleOptions struct {
	// Every is the interval between sampled frames. Defaults to one second.
	Every time.Duration
	// Max caps the number of frames; zero means no cap.
	Max int
}

var ffmpegLookPath = exec.LookPath

// SampleVideoFrames extracts frames from a local video at a fixed interval.
// It needs the ffmpeg binary on PATH and returns a dependency error otherwise.
func SampleVideoFrames(ctx context.Context, path string, opts FrameSampleOptions) ([]image.Image, error) {
	bin, err := ffmpegLookPath("ffmpeg")
	if err != nil {
		return nil, NewDependencyError("ffmpeg", "Install ffmpeg (https://ffmpeg.org/download.html) and make sure it is on PATH")
	}
	if opts.Every <= 0 {
		opts.Every = time.Second
	}

	args := []string{
		"-v", "error",
		"-i", path,
		"-vf", "fps=1/" + strconv.FormatFloat(opts.Every.Seconds(), 'f', -1, 64),
	}
	if opts.Max > 0 {
		args = append(args, "-frames:v", strconv.Itoa(opts.Max))
	}
	args = append(args, "-f", "image2pipe", "-vcodec", "png", "-")

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, newError(KindValidation, fmt.Sprintf("ffmpeg failed on %s: %v: %s", path, err, bytes.TrimSpace(stderr.Bytes())), err)
	}
	return decodePNGStream(bytes.NewReader(out))
}

// decodePNGStream decodes back-to-back PNG images.
func decodePNGStream(r io.Reader) ([]image.Image, error) {
	br := bufio.NewReader(r)
	var frames []image.Image
	for {
		if _, err := br.Peek(1); errors.Is(err, io.EOF) {
			return frames, nil
		}
		img, err := png.Decode(br)
		if err != nil {
			return frames, newError(KindDecode, fmt.Sprintf("decode frame %d: %v", len(frames), err), err)
		}
		frames = append(frames, img)
	}
}
