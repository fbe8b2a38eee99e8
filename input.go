package vlmrun

import (
	"image"
	"path/filepath"
	"strings"
)

// Input is the content a generation runs on. Exactly one source is set.
type Input struct {
	URL      string
	Bytes    []byte
	Filename string
	Path     string
	FileID   string
	Image    image.Image
}

// InputURL references remote content.
func InputURL(u string) Input { return Input{URL: u} }

// InputBytes carries inline content; name is used for the upload filename.
func InputBytes(name string, data []byte) Input { return Input{Bytes: data, Filename: name} }

// InputPath references a local file.
func InputPath(p string) Input { return Input{Path: p} }

// InputFileID references a file previously uploaded through Files.
func InputFileID(id string) Input { return Input{FileID: id} }

// InputImage carries a decoded image.
func InputImage(img image.Image) Input { return Input{Image: img} }

// ParseInput interprets s as a remote URL, an existing local file or a
// previously uploaded file id, in that order.
func ParseInput(s string) (Input, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return Input{}, newValidationError("input cannot be empty")
	case isHTTPURL(s):
		return InputURL(s), nil
	case isFilePath(s):
		return InputPath(s), nil
	case looksLikePath(s) || filepath.Ext(s) != "":
		return Input{}, newValidationError("file %s does not exist", s)
	default:
		return InputFileID(s), nil
	}
}

func (in Input) sources() int {
	n := 0
	for _, set := range []bool{in.URL != "", in.Bytes != nil, in.Path != "", in.FileID != "", in.Image != nil} {
		if set {
			n++
		}
	}
	return n
}

func (in Input) validate() error {
	switch in.sources() {
	case 0:
		return newValidationError("input requires one of URL, Bytes, Path, FileID or Image")
	case 1:
	default:
		return newValidationError("input must set exactly one of URL, Bytes, Path, FileID or Image")
	}
	if in.URL != "" && !isHTTPURL(in.URL) {
		return newValidationError("input url %q is not an absolute http(s) url", in.URL)
	}
	return nil
}

// upload returns the FileUpload for local content.
func (in Input) upload() FileUpload {
	if in.Path != "" {
		return FileUpload{Path: in.Path}
	}
	name := in.Filename
	if name == "" {
		name = "upload"
	}
	return FileFromBytes(filepath.Base(name), in.Bytes)
}
