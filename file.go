package vlmrun

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// FileUpload represents an explicit file upload with metadata.
// At least one of Path, Reader, or URL must be provided.
type FileUpload struct {
	Path     string
	Reader   io.Reader
	Filename string
	MimeType string
	URL      string

	// Optional validation; when set to >0, paths larger than this are rejected.
	MaxBytes int64
}

// FileFromPath builds an upload for a local file.
func FileFromPath(p string) FileUpload {
	return FileUpload{Path: p}
}

// FileFromBytes builds an upload for in-memory content.
func FileFromBytes(name string, data []byte) FileUpload {
	return FileUpload{Reader: bytes.NewReader(data), Filename: name}
}

func (f FileUpload) isURL() bool {
	return f.URL != "" && isHTTPURL(f.URL)
}

// filename returns the effective filename.
func (f FileUpload) filename() string {
	if f.Filename != "" {
		return f.Filename
	}
	if f.Path != "" {
		return filepath.Base(f.Path)
	}
	if f.isURL() {
		if u, err := url.Parse(f.URL); err == nil && path.Base(u.Path) != "/" && path.Base(u.Path) != "." {
			return path.Base(u.Path)
		}
	}
	return "upload"
}

// mimeType returns the declared mime type or guesses from the filename.
func (f FileUpload) mimeType() string {
	if f.MimeType != "" {
		return f.MimeType
	}
	if typ := mime.TypeByExtension(filepath.Ext(f.filename())); typ != "" {
		return typ
	}
	return "application/octet-stream"
}

// open returns an io.ReadCloser for the file upload.
func (f FileUpload) open() (io.ReadCloser, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}

	if f.Reader != nil {
		if rc, ok := f.Reader.(io.ReadCloser); ok {
			return rc, nil
		}
		return io.NopCloser(f.Reader), nil
	}

	if f.Path != "" {
		// Open first, then stat the handle, so the checks apply to what is read.
		file, err := os.Open(f.Path)
		if err != nil {
			return nil, newError(KindValidation, fmt.Sprintf("open file %s: %v", f.Path, err), err)
		}
		info, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("stat file %s: %w", f.Path, err)
		}
		if info.IsDir() {
			file.Close()
			return nil, newValidationError("file upload requires a file, got directory: %s", f.Path)
		}
		if info.Size() == 0 {
			file.Close()
			return nil, newValidationError("file %s is empty", f.Path)
		}
		if f.MaxBytes > 0 && info.Size() > f.MaxBytes {
			file.Close()
			return nil, newValidationError("file %s exceeds max size of %d bytes", f.Path, f.MaxBytes)
		}
		return file, nil
	}

	return nil, newValidationError("file %s is a remote URL and cannot be streamed", f.URL)
}

func (f FileUpload) validate() error {
	switch {
	case f.Reader != nil:
		return nil
	case f.Path != "":
		return nil
	case f.isURL():
		return nil
	default:
		return newValidationError("file upload requires Path, Reader, or URL")
	}
}

const mimeSniffLen = 3072

// detectMimeType sniffs the leading bytes of r and returns a reader that still
// yields the full content. Generic detections defer to the extension guess.
func detectMimeType(r io.Reader, fallback string) (io.Reader, string, error) {
	head := make([]byte, mimeSniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	combined := io.MultiReader(bytes.NewReader(head), r)
	if n == 0 {
		return combined, fallback, nil
	}

	detected := mimetype.Detect(head)
	switch {
	case detected.Is("application/octet-stream"), strings.HasPrefix(detected.String(), "text/plain"):
		if fallback != "" && fallback != "application/octet-stream" {
			return combined, fallback, nil
		}
	}
	return combined, detected.String(), nil
}
