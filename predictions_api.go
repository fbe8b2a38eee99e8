package vlmrun

import (
	"context"
	"net/http"
	"time"
)

const (
	defaultPredictionWaitTimeout  = 60 * time.Second
	defaultPredictionWaitInterval = time.Second
)

// PredictionsAPI reads predictions of any category.
type PredictionsAPI struct {
	r *requestor
}

func newPredictionsAPI(r *requestor) *PredictionsAPI {
	return &PredictionsAPI{r: r}
}

// List returns a pager over predictions, newest first.
func (p *PredictionsAPI) List(opts ListOptions) *Pager[PredictionResponse] {
	return newPager(opts, func(ctx context.Context, skip, limit int) ([]PredictionResponse, error) {
		resp, err := p.r.execute(ctx, Request{
			Method: http.MethodGet,
			Path:   "predictions",
			Query:  map[string]any{"skip": skip, "limit": limit},
		})
		if err != nil {
			return nil, err
		}
		return decodePredictionList(resp)
	})
}

// Get fetches the current state of a prediction. It does not wait.
func (p *PredictionsAPI) Get(id string) (*PredictionResponse, error) {
	return p.GetWithContext(context.Background(), id)
}

// GetWithContext fetches a prediction with a caller-supplied context.
func (p *PredictionsAPI) GetWithContext(ctx context.Context, id string) (*PredictionResponse, error) {
	escaped, err := pathParam("prediction_id", id)
	if err != nil {
		return nil, err
	}
	resp, err := p.r.execute(ctx, Request{Method: http.MethodGet, Path: "predictions/" + escaped})
	if err != nil {
		return nil, err
	}
	return decodePrediction(resp)
}

// Wait polls a prediction until it reaches a terminal status. A failed
// prediction is returned as-is; inspect its Status and Error.
func (p *PredictionsAPI) Wait(id string, opts WaitOptions) (*PredictionResponse, error) {
	return p.WaitWithContext(context.Background(), id, opts)
}

// WaitWithContext polls a prediction with a caller-supplied context.
func (p *PredictionsAPI) WaitWithContext(ctx context.Context, id string, opts WaitOptions) (*PredictionResponse, error) {
	opts = opts.withDefaults(defaultPredictionWaitTimeout, defaultPredictionWaitInterval)
	return pollUntil(ctx, "prediction "+id, opts,
		func(ctx context.Context) (*PredictionResponse, error) { return p.GetWithContext(ctx, id) },
		func(pred *PredictionResponse) bool { return pred.Status.IsTerminal() },
	)
}

// GenerateRequest is the input of a generate call.
type GenerateRequest struct {
	Input Input
	// Exactly one of Domain or Model is set.
	Domain      string
	Model       string
	Config      *GenerationConfig
	Metadata    *RequestMetadata
	Batch       bool
	CallbackURL string
}

// validate runs every check that does not need the network.
func (g GenerateRequest) validate() error {
	switch {
	case g.Domain != "" && g.Model != "":
		return newValidationError("set either domain or model, not both")
	case g.Domain == "" && g.Model == "":
		return newValidationError("one of domain or model is required")
	}
	if err := g.Input.validate(); err != nil {
		return err
	}
	if g.Config != nil {
		if err := g.Config.Validate(); err != nil {
			return err
		}
	}
	if g.CallbackURL != "" && !isHTTPURL(g.CallbackURL) {
		return newValidationError("callback_url %q is not an absolute http(s) url", g.CallbackURL)
	}
	return nil
}

// payload renders the shared fields; the caller adds the input reference.
func (g GenerateRequest) payload() (map[string]any, error) {
	body := map[string]any{"batch": g.Batch}
	if g.Domain != "" {
		body["domain"] = g.Domain
	} else {
		body["model"] = g.Model
	}
	if g.CallbackURL != "" {
		body["callback_url"] = g.CallbackURL
	}
	cfg, err := g.Config.payload()
	if err != nil {
		return nil, err
	}
	if cfg != nil {
		body["config"] = cfg
	}
	if g.Metadata != nil {
		body["metadata"] = g.Metadata
	}
	return body, nil
}

// finish decodes a generate response and applies the best-effort cast.
func (g GenerateRequest) finish(resp *Response, category Category) (*PredictionResponse, error) {
	pred, err := decodePrediction(resp)
	if err != nil {
		return nil, err
	}
	if pred.Domain == "" {
		pred.Domain = g.Domain
	}
	pred.applyCast(category, g.Config.castTarget())
	return pred, nil
}

// ImageAPI runs predictions on images.
type ImageAPI struct {
	*PredictionsAPI
}

// Generate submits an image for extraction. Local images are sent inline as
// a JPEG data URL; remote images are sent by URL.
func (a *ImageAPI) Generate(req GenerateRequest) (*PredictionResponse, error) {
	return a.GenerateWithContext(context.Background(), req)
}

// GenerateWithContext submits an image with a caller-supplied context.
func (a *ImageAPI) GenerateWithContext(ctx context.Context, req GenerateRequest) (*PredictionResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	body, err := req.payload()
	if err != nil {
		return nil, err
	}

	switch {
	case req.Input.URL != "":
		body["image"] = req.Input.URL
	case req.Input.FileID != "":
		body["file_id"] = req.Input.FileID
	default:
		img, err := imageFromInput(req.Input)
		if err != nil {
			return nil, err
		}
		encoded, err := EncodeImage(img, ImageJPEG)
		if err != nil {
			return nil, err
		}
		body["image"] = encoded
	}

	resp, err := a.r.execute(ctx, Request{Method: http.MethodPost, Path: "image/generate", Body: body})
	if err != nil {
		return nil, err
	}
	return req.finish(resp, CategoryImage)
}

// FilePredictionsAPI runs predictions on documents, audio or video.
type FilePredictionsAPI struct {
	*PredictionsAPI
	route    string
	category Category
	files    func() *FilesAPI
}

func newFilePredictionsAPI(p *PredictionsAPI, category Category, files func() *FilesAPI) *FilePredictionsAPI {
	return &FilePredictionsAPI{PredictionsAPI: p, route: string(category), category: category, files: files}
}

// Category reports which kind of content this façade handles.
func (a *FilePredictionsAPI) Category() Category {
	return a.category
}

// Generate submits a file for extraction. Local content is uploaded through
// Files first and referenced by id; remote content is referenced by URL.
func (a *FilePredictionsAPI) Generate(req GenerateRequest) (*PredictionResponse, error) {
	return a.GenerateWithContext(context.Background(), req)
}

// GenerateWithContext submits a file with a caller-supplied context.
func (a *FilePredictionsAPI) GenerateWithContext(ctx context.Context, req GenerateRequest) (*PredictionResponse, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if req.Input.Image != nil {
		return nil, newValidationError("%s generation takes a file, url or file id, not a decoded image", a.category)
	}
	body, err := req.payload()
	if err != nil {
		return nil, err
	}

	switch {
	case req.Input.URL != "":
		body["url"] = req.Input.URL
	case req.Input.FileID != "":
		body["file_id"] = req.Input.FileID
	default:
		uploaded, err := a.files().UploadWithContext(ctx, req.Input.upload(), PurposeAssistants)
		if err != nil {
			return nil, err
		}
		body["file_id"] = uploaded.ID
	}

	resp, err := a.r.execute(ctx, Request{Method: http.MethodPost, Path: a.route + "/generate", Body: body})
	if err != nil {
		return nil, err
	}
	return req.finish(resp, a.category)
}
