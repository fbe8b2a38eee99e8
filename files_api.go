package vlmrun

import (
	"context"
	"net/http"

	"golang.org/x/sync/errgroup"
)

// File upload purposes.
const (
	PurposeFineTune   = "fine-tune"
	PurposeAssistants = "assistants"
	PurposeDatasets   = "datasets"
)

const defaultUploadConcurrency = 4

// FilesAPI manages uploaded files.
type FilesAPI struct {
	r *requestor
}

func newFilesAPI(r *requestor) *FilesAPI {
	return &FilesAPI{r: r}
}

// List returns a pager over uploaded files.
func (f *FilesAPI) List(opts ListOptions) *Pager[FileResponse] {
	return newPager(opts, func(ctx context.Context, skip, limit int) ([]FileResponse, error) {
		resp, err := f.r.execute(ctx, Request{
			Method: http.MethodGet,
			Path:   "files",
			Query:  map[string]any{"skip": skip, "limit": limit},
		})
		if err != nil {
			return nil, err
		}
		return decodeList[FileResponse](resp)
	})
}

// Upload sends a local file. An empty purpose defaults to "fine-tune".
func (f *FilesAPI) Upload(file FileUpload, purpose string) (*FileResponse, error) {
	return f.UploadWithContext(context.Background(), file, purpose)
}

// UploadWithContext sends a local file with a caller-supplied context.
func (f *FilesAPI) UploadWithContext(ctx context.Context, file FileUpload, purpose string) (*FileResponse, error) {
	if purpose == "" {
		purpose = PurposeFineTune
	}
	if file.isURL() && file.Path == "" && file.Reader == nil {
		return nil, newValidationError("cannot upload remote url %s; pass it to generate as a url input", file.URL)
	}
	body, contentType, err := encodeMultipart(nil, formFile{FieldName: "file", File: file})
	if err != nil {
		return nil, err
	}
	var out FileResponse
	err = f.r.doJSON(ctx, Request{
		Method:      http.MethodPost,
		Path:        "files",
		Query:       map[string]any{"purpose": purpose},
		RawBody:     body,
		ContentType: contentType,
	}, &out)
	if err != nil {
		return nil, err
	}
	f.r.http.logger.Debug().Str("file_id", out.ID).Str("filename", out.Filename).Int64("bytes", out.Bytes).Msg("uploaded file")
	return &out, nil
}

// UploadMany uploads files concurrently and returns results in input order.
// concurrency <= 0 uses a default of 4. The first failure cancels the rest.
func (f *FilesAPI) UploadMany(files []FileUpload, purpose string, concurrency int) ([]*FileResponse, error) {
	return f.UploadManyWithContext(context.Background(), files, purpose, concurrency)
}

// UploadManyWithContext uploads files concurrently with a caller-supplied context.
func (f *FilesAPI) UploadManyWithContext(ctx context.Context, files []FileUpload, purpose string, concurrency int) ([]*FileResponse, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if concurrency <= 0 {
		concurrency = defaultUploadConcurrency
	}

	results := make([]*FileResponse, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, file := range files {
		g.Go(func() error {
			resp, err := f.UploadWithContext(ctx, file, purpose)
			if err != nil {
				return err
			}
			results[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Retrieve fetches file metadata.
func (f *FilesAPI) Retrieve(fileID string) (*FileResponse, error) {
	return f.RetrieveWithContext(context.Background(), fileID)
}

// RetrieveWithContext fetches file metadata with a caller-supplied context.
func (f *FilesAPI) RetrieveWithContext(ctx context.Context, fileID string) (*FileResponse, error) {
	id, err := pathParam("file_id", fileID)
	if err != nil {
		return nil, err
	}
	var out FileResponse
	if err := f.r.doJSON(ctx, Request{Method: http.MethodGet, Path: "files/" + id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetrieveContent downloads the file's bytes.
func (f *FilesAPI) RetrieveContent(fileID string) ([]byte, error) {
	return f.RetrieveContentWithContext(context.Background(), fileID)
}

// RetrieveContentWithContext downloads the file's bytes with a caller-supplied context.
func (f *FilesAPI) RetrieveContentWithContext(ctx context.Context, fileID string) ([]byte, error) {
	id, err := pathParam("file_id", fileID)
	if err != nil {
		return nil, err
	}
	return f.r.doBytes(ctx, Request{
		Method:  http.MethodGet,
		Path:    "files/" + id + "/content",
		Headers: http.Header{"Accept": []string{"*/*"}},
	})
}

// Delete removes a file and returns the deleted record.
func (f *FilesAPI) Delete(fileID string) (*FileResponse, error) {
	return f.DeleteWithContext(context.Background(), fileID)
}

// DeleteWithContext removes a file with a caller-supplied context.
func (f *FilesAPI) DeleteWithContext(ctx context.Context, fileID string) (*FileResponse, error) {
	id, err := pathParam("file_id", fileID)
	if err != nil {
		return nil, err
	}
	var out FileResponse
	if err := f.r.doJSON(ctx, Request{Method: http.MethodDelete, Path: "files/" + id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
