package vlmrun

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"time"
)

const (
	fineTuningPrefix  = "fine_tuning/"
	fineTuningTimeout = 300 * time.Second

	defaultProvisionDuration    = 10 * time.Minute
	defaultFineTuningEpochs     = 1
	defaultFineTuningRate       = 2e-4
	defaultFineTuningBatchSize  = "auto"
	defaultFineTuningMaxNewToks = 1024
)

var suffixPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// FineTuningAPI manages fine-tuning jobs and fine-tuned models.
type FineTuningAPI struct {
	r *requestor
}

func newFineTuningAPI(r *requestor) *FineTuningAPI {
	return &FineTuningAPI{r: r.withMinTimeout(fineTuningTimeout)}
}

// FineTuningCreateRequest describes a fine-tuning job. Zero values take the
// API defaults: one epoch, "auto" batch size, learning rate 2e-4.
type FineTuningCreateRequest struct {
	Model            string
	TrainingFileID   string
	ValidationFileID string
	NumEpochs        int
	// BatchSize is an int or "auto".
	BatchSize        any
	LearningRate     float64
	Suffix           string
	WandbAPIKey      string
	WandbBaseURL     string
	WandbProjectName string
}

func (r FineTuningCreateRequest) payload() (map[string]any, error) {
	if r.Model == "" {
		return nil, newValidationError("fine-tuning model cannot be empty")
	}
	if r.TrainingFileID == "" {
		return nil, newValidationError("training file id cannot be empty")
	}
	if r.Suffix != "" && !suffixPattern.MatchString(r.Suffix) {
		return nil, newValidationError("suffix must be alphanumeric, hyphens or underscores without spaces")
	}
	switch b := r.BatchSize.(type) {
	case nil:
		r.BatchSize = defaultFineTuningBatchSize
	case int:
		if b <= 0 {
			return nil, newValidationError("batch size must be positive, got %d", b)
		}
	case string:
		if b != defaultFineTuningBatchSize {
			return nil, newValidationError(`batch size must be an integer or "auto", got %q`, b)
		}
	default:
		return nil, newValidationError(`batch size must be an integer or "auto", got %T`, b)
	}
	if r.NumEpochs <= 0 {
		r.NumEpochs = defaultFineTuningEpochs
	}
	if r.LearningRate <= 0 {
		r.LearningRate = defaultFineTuningRate
	}
	return map[string]any{
		"model":              r.Model,
		"training_file_id":   r.TrainingFileID,
		"validation_file_id": nullable(r.ValidationFileID),
		"num_epochs":         r.NumEpochs,
		"batch_size":         r.BatchSize,
		"learning_rate":      r.LearningRate,
		"suffix":             nullable(r.Suffix),
		"wandb_api_key":      nullable(r.WandbAPIKey),
		"wandb_base_url":     nullable(r.WandbBaseURL),
		"wandb_project_name": nullable(r.WandbProjectName),
	}, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Create starts a fine-tuning job.
func (f *FineTuningAPI) Create(req FineTuningCreateRequest) (*FinetuningResponse, error) {
	return f.CreateWithContext(context.Background(), req)
}

// CreateWithContext starts a fine-tuning job with a caller-supplied context.
func (f *FineTuningAPI) CreateWithContext(ctx context.Context, req FineTuningCreateRequest) (*FinetuningResponse, error) {
	body, err := req.payload()
	if err != nil {
		return nil, err
	}
	var out FinetuningResponse
	if err := f.r.doJSON(ctx, Request{Method: http.MethodPost, Path: fineTuningPrefix + "create", Body: body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Provision deploys a fine-tuned model. Zero duration means ten minutes and
// zero concurrency means one replica.
func (f *FineTuningAPI) Provision(model string, duration time.Duration, concurrency int) (*FinetuningProvisionResponse, error) {
	return f.ProvisionWithContext(context.Background(), model, duration, concurrency)
}

// ProvisionWithContext deploys a fine-tuned model with a caller-supplied context.
func (f *FineTuningAPI) ProvisionWithContext(ctx context.Context, model string, duration time.Duration, concurrency int) (*FinetuningProvisionResponse, error) {
	if model == "" {
		return nil, newValidationError("model cannot be empty")
	}
	if duration <= 0 {
		duration = defaultProvisionDuration
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	var out FinetuningProvisionResponse
	err := f.r.doJSON(ctx, Request{
		Method: http.MethodPost,
		Path:   fineTuningPrefix + "provision",
		Body: map[string]any{
			"model":       model,
			"duration":    int(duration / time.Second),
			"concurrency": concurrency,
		},
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FineTunedGenerateRequest runs a fine-tuned model on one image.
type FineTunedGenerateRequest struct {
	Image        Input
	Model        string
	Prompt       string
	JSONSchema   JSONSchema
	MaxNewTokens int
	Temperature  float64
	Metadata     map[string]any
}

// Generate runs a provisioned fine-tuned model. Prompt and JSONSchema are required.
func (f *FineTuningAPI) Generate(req FineTunedGenerateRequest) (*PredictionResponse, error) {
	return f.GenerateWithContext(context.Background(), req)
}

// GenerateWithContext runs a fine-tuned model with a caller-supplied context.
func (f *FineTuningAPI) GenerateWithContext(ctx context.Context, req FineTunedGenerateRequest) (*PredictionResponse, error) {
	switch {
	case req.Model == "":
		return nil, newValidationError("model cannot be empty")
	case len(req.JSONSchema) == 0:
		return nil, newValidationError("JSON schema is required for fine-tuned model predictions")
	case req.Prompt == "":
		return nil, newValidationError("prompt is required for fine-tuned model predictions")
	case req.Temperature < 0 || req.Temperature > 2:
		return nil, newValidationError("temperature must be within [0, 2], got %v", req.Temperature)
	}
	if err := req.Image.validate(); err != nil {
		return nil, err
	}
	if req.Image.URL != "" || req.Image.FileID != "" {
		return nil, newValidationError("fine-tuned generation needs a local image")
	}
	img, err := imageFromInput(req.Image)
	if err != nil {
		return nil, err
	}
	encoded, err := EncodeImage(img, ImageJPEG)
	if err != nil {
		return nil, err
	}
	maxTokens := req.MaxNewTokens
	if maxTokens <= 0 {
		maxTokens = defaultFineTuningMaxNewToks
	}
	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	resp, err := f.r.execute(ctx, Request{
		Method: http.MethodPost,
		Path:   fineTuningPrefix + "generate",
		Body: map[string]any{
			"image":          encoded,
			"model":          req.Model,
			"prompt":         req.Prompt,
			"json_schema":    req.JSONSchema,
			"detail":         DetailAuto,
			"max_new_tokens": maxTokens,
			"temperature":    req.Temperature,
			"metadata":       metadata,
			"batch":          false,
			"callback_url":   nil,
		},
	})
	if err != nil {
		return nil, err
	}
	pred, err := decodePrediction(resp)
	if err != nil {
		return nil, err
	}
	pred.applyCast(CategoryImage, req.JSONSchema)
	return pred, nil
}

// List returns a pager over fine-tuning jobs.
func (f *FineTuningAPI) List(opts ListOptions) *Pager[FinetuningResponse] {
	return newPager(opts, func(ctx context.Context, skip, limit int) ([]FinetuningResponse, error) {
		resp, err := f.r.execute(ctx, Request{
			Method: http.MethodGet,
			Path:   fineTuningPrefix + "jobs",
			Query:  map[string]any{"skip": skip, "limit": limit},
		})
		if err != nil {
			return nil, err
		}
		return decodeList[FinetuningResponse](resp)
	})
}

// ListModels returns a pager over fine-tuned model names.
func (f *FineTuningAPI) ListModels(opts ListOptions) *Pager[string] {
	return newPager(opts, func(ctx context.Context, skip, limit int) ([]string, error) {
		resp, err := f.r.execute(ctx, Request{
			Method: http.MethodGet,
			Path:   fineTuningPrefix + "models",
			Query:  map[string]any{"skip": skip, "limit": limit},
		})
		if err != nil {
			return nil, err
		}
		raw, err := decodeList[json.RawMessage](resp)
		if err != nil {
			return nil, err
		}
		models := make([]string, 0, len(raw))
		for _, item := range raw {
			var name string
			if json.Unmarshal(item, &name) != nil {
				// Non-string entries are kept in their JSON form.
				name = string(item)
			}
			models = append(models, name)
		}
		return models, nil
	})
}

// Get fetches a fine-tuning job.
func (f *FineTuningAPI) Get(jobID string) (*FinetuningResponse, error) {
	return f.GetWithContext(context.Background(), jobID)
}

// GetWithContext fetches a fine-tuning job with a caller-supplied context.
func (f *FineTuningAPI) GetWithContext(ctx context.Context, jobID string) (*FinetuningResponse, error) {
	id, err := pathParam("job_id", jobID)
	if err != nil {
		return nil, err
	}
	var out FinetuningResponse
	if err := f.r.doJSON(ctx, Request{Method: http.MethodGet, Path: fineTuningPrefix + "jobs/" + id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cancel is not offered by the API yet and always fails without a request.
func (f *FineTuningAPI) Cancel(jobID string) error {
	return &Error{
		Kind:       KindAPI,
		Message:    "cancelling fine-tuning job " + jobID + " is not supported",
		Suggestion: "Contact support to stop a running fine-tuning job",
	}
}
