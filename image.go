package vlmrun

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageFormat selects the encoding used for image data URLs.
type ImageFormat string

const (
	ImageJPEG ImageFormat = "JPEG"
	ImagePNG  ImageFormat = "PNG"
)

const defaultJPEGQuality = 90

// EncodeImage renders img as a base64 data URL.
func EncodeImage(img image.Image, format ImageFormat) (string, error) {
	if img == nil {
		return "", newValidationError("image is nil")
	}
	buf := &bytes.Buffer{}
	var mimeType string
	switch ImageFormat(strings.ToUpper(string(format))) {
	case ImageJPEG, "JPG":
		mimeType = "image/jpeg"
		if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: defaultJPEGQuality}); err != nil {
			return "", fmt.Errorf("encode jpeg: %w", err)
		}
	case ImagePNG, "":
		mimeType = "image/png"
		if err := png.Encode(buf, img); err != nil {
			return "", fmt.Errorf("encode png: %w", err)
		}
	default:
		return "", newValidationError("unsupported image format %q", format)
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeImage reads any registered image format (JPEG, PNG, GIF, WebP, BMP, TIFF).
func DecodeImage(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, newError(KindValidation, fmt.Sprintf("decode image: %v", err), err)
	}
	return img, nil
}

// LoadImage decodes the image stored at path.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newError(KindValidation, fmt.Sprintf("open image %s: %v", path, err), err)
	}
	defer f.Close()
	return DecodeImage(f)
}

// imageFromInput resolves local image content to a decoded image.
func imageFromInput(in Input) (image.Image, error) {
	switch {
	case in.Image != nil:
		return in.Image, nil
	case in.Path != "":
		return LoadImage(in.Path)
	case in.Bytes != nil:
		return DecodeImage(bytes.NewReader(in.Bytes))
	default:
		return nil, newValidationError("image input requires Image, Path or Bytes")
	}
}
