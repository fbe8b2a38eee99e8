package vlmrun

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/lo"
)

// Dataset types accepted by Datasets.Create.
const (
	DatasetImages    = "images"
	DatasetVideos    = "videos"
	DatasetDocuments = "documents"
)

// DatasetsAPI manages training datasets.
type DatasetsAPI struct {
	r        *requestor
	files    func() *FilesAPI
	cacheDir string
	now      func() time.Time
}

// DatasetCreateRequest describes a dataset built from a local directory.
type DatasetCreateRequest struct {
	Domain      string
	Directory   string
	DatasetName string
	DatasetType string
}

func (d DatasetCreateRequest) validate() error {
	if d.Domain == "" {
		return newValidationError("dataset domain cannot be empty")
	}
	if d.DatasetName == "" {
		return newValidationError("dataset name cannot be empty")
	}
	if !lo.Contains([]string{DatasetImages, DatasetVideos, DatasetDocuments}, d.DatasetType) {
		return newValidationError("dataset_type must be one of: images, videos, documents; got %q", d.DatasetType)
	}
	info, err := os.Stat(d.Directory)
	if err != nil || !info.IsDir() {
		return newValidationError("directory does not exist: %s", d.Directory)
	}
	return nil
}

// Create archives the directory as tar.gz, uploads it and registers a dataset.
func (d *DatasetsAPI) Create(req DatasetCreateRequest) (*DatasetResponse, error) {
	return d.CreateWithContext(context.Background(), req)
}

// CreateWithContext creates a dataset with a caller-supplied context.
func (d *DatasetsAPI) CreateWithContext(ctx context.Context, req DatasetCreateRequest) (*DatasetResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	upload, err := d.archive(req.Directory, req.DatasetName)
	if err != nil {
		return nil, err
	}
	uploaded, err := d.files().UploadWithContext(ctx, upload, PurposeDatasets)
	if err != nil {
		return nil, err
	}

	var out DatasetResponse
	err = d.r.doJSON(ctx, Request{
		Method: http.MethodPost,
		Path:   "datasets/create",
		Body: map[string]any{
			"file_id":      uploaded.ID,
			"domain":       req.Domain,
			"dataset_name": req.DatasetName,
			"dataset_type": req.DatasetType,
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.FileID == "" {
		out.FileID = uploaded.ID
	}
	return &out, nil
}

// archive builds the dataset tarball. With a cache directory the archive is
// written there once per name and day and reused afterwards.
func (d *DatasetsAPI) archive(dir, name string) (FileUpload, error) {
	archiveName := fmt.Sprintf("%s_%s", name, d.now().Format("20060102"))
	filename := archiveName + ".tar.gz"

	if d.cacheDir == "" {
		buf := &bytes.Buffer{}
		if err := writeTarGz(buf, dir, archiveName); err != nil {
			return FileUpload{}, err
		}
		return FileUpload{Reader: buf, Filename: filename, MimeType: "application/gzip"}, nil
	}

	target := filepath.Join(d.cacheDir, "datasets", filename)
	if info, err := os.Stat(target); err == nil && info.Size() > 0 {
		return FileUpload{Path: target, MimeType: "application/gzip"}, nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return FileUpload{}, fmt.Errorf("create dataset cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), filename+".*")
	if err != nil {
		return FileUpload{}, fmt.Errorf("create dataset archive: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := writeTarGz(tmp, dir, archiveName); err != nil {
		tmp.Close()
		return FileUpload{}, err
	}
	if err := tmp.Close(); err != nil {
		return FileUpload{}, fmt.Errorf("close dataset archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return FileUpload{}, fmt.Errorf("store dataset archive: %w", err)
	}
	return FileUpload{Path: target, MimeType: "application/gzip"}, nil
}

// writeTarGz writes dir into w as a gzip-compressed tarball rooted at prefix.
func writeTarGz(w io.Writer, dir, prefix string) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() && !entry.Type().IsRegular() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join(prefix, rel))
		if entry.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", dir, err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("archive %s: %w", dir, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("archive %s: %w", dir, err)
	}
	return nil
}

// Get fetches a dataset by id.
func (d *DatasetsAPI) Get(datasetID string) (*DatasetResponse, error) {
	return d.GetWithContext(context.Background(), datasetID)
}

// GetWithContext fetches a dataset with a caller-supplied context.
func (d *DatasetsAPI) GetWithContext(ctx context.Context, datasetID string) (*DatasetResponse, error) {
	id, err := pathParam("dataset_id", datasetID)
	if err != nil {
		return nil, err
	}
	var out DatasetResponse
	if err := d.r.doJSON(ctx, Request{Method: http.MethodGet, Path: "datasets/" + id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns a pager over datasets.
func (d *DatasetsAPI) List(opts ListOptions) *Pager[DatasetResponse] {
	return newPager(opts, func(ctx context.Context, skip, limit int) ([]DatasetResponse, error) {
		resp, err := d.r.execute(ctx, Request{
			Method: http.MethodGet,
			Path:   "datasets",
			Query:  map[string]any{"skip": skip, "limit": limit},
		})
		if err != nil {
			return nil, err
		}
		return decodeList[DatasetResponse](resp)
	})
}
