package vlmrun

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
)

// ClientState is the lifecycle state of a Client.
type ClientState int32

const (
	StateUninitialized ClientState = iota
	StateValidating
	StateReady
	StateFailedInit
)

func (s ClientState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateValidating:
		return "validating"
	case StateReady:
		return "ready"
	case StateFailedInit:
		return "failed-init"
	default:
		return "unknown"
	}
}

// lazy builds a value once, on first use.
type lazy[T any] struct {
	once  sync.Once
	value *T
}

func (l *lazy[T]) get(build func() *T) *T {
	l.once.Do(func() { l.value = build() })
	return l.value
}

// Client is the main entrypoint. It is safe for concurrent use.
type Client struct {
	Config Config

	auth      Auth
	http      *httpClient
	requestor *requestor
	state     atomic.Int32

	predictions lazy[PredictionsAPI]
	image       lazy[ImageAPI]
	document    lazy[FilePredictionsAPI]
	audio       lazy[FilePredictionsAPI]
	video       lazy[FilePredictionsAPI]
	files       lazy[FilesAPI]
	models      lazy[ModelsAPI]
	agent       lazy[AgentAPI]
	executions  lazy[ExecutionsAPI]
	completions lazy[CompletionsAPI]
	datasets    lazy[DatasetsAPI]
	fineTuning  lazy[FineTuningAPI]
	feedback    lazy[FeedbackAPI]
	artifacts   lazy[ArtifactsAPI]
	hub         lazy[HubAPI]
	skills      lazy[SkillsAPI]
}

// NewClient constructs a Client using parameters or environment fallbacks.
func NewClient(apiKey, baseURL string, timeoutSeconds float64, maxAttempts int) (*Client, error) {
	cfg, err := LoadConfig(apiKey, baseURL, timeoutSeconds, maxAttempts)
	if err != nil {
		return nil, err
	}
	return NewClientWithConfig(cfg)
}

// NewClientWithParams constructs a Client from structured configuration parameters.
func NewClientWithParams(params ConfigParams) (*Client, error) {
	cfg, err := LoadConfigWithParams(params)
	if err != nil {
		return nil, err
	}
	return NewClientWithConfig(cfg)
}

// NewClientWithConfig builds a Client from a fully parsed Config and probes
// the API unless SkipHealthCheck is set.
func NewClientWithConfig(cfg Config) (*Client, error) {
	return NewClientWithConfigContext(context.Background(), cfg)
}

// NewClientWithConfigContext is NewClientWithConfig with a caller-supplied
// context bounding the health probe.
func NewClientWithConfigContext(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	auth := newAuth(cfg)
	httpClient := newHTTPClient(cfg, auth)

	c := &Client{
		Config:    cfg,
		auth:      auth,
		http:      httpClient,
		requestor: newRequestor(httpClient),
	}
	if err := c.validate(ctx); err != nil {
		httpClient.close()
		return nil, err
	}
	return c, nil
}

// validate runs the construction-time probe and settles the client state.
func (c *Client) validate(ctx context.Context) error {
	c.state.Store(int32(StateValidating))
	if c.Config.SkipHealthCheck {
		c.state.Store(int32(StateReady))
		return nil
	}
	err := c.requestor.doNone(ctx, Request{Method: http.MethodGet, Path: "health"})
	if err != nil {
		c.state.Store(int32(StateFailedInit))
		c.http.logger.Debug().Err(err).Msg("health check failed")
		return err
	}
	c.state.Store(int32(StateReady))
	return nil
}

// State reports the lifecycle state.
func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

// Predictions reads predictions of any category.
func (c *Client) Predictions() *PredictionsAPI {
	return c.predictions.get(func() *PredictionsAPI { return newPredictionsAPI(c.requestor) })
}

// Image runs image predictions.
func (c *Client) Image() *ImageAPI {
	return c.image.get(func() *ImageAPI { return &ImageAPI{PredictionsAPI: c.Predictions()} })
}

// Document runs document predictions.
func (c *Client) Document() *FilePredictionsAPI {
	return c.document.get(func() *FilePredictionsAPI {
		return newFilePredictionsAPI(c.Predictions(), CategoryDocument, c.Files)
	})
}

// Audio runs audio predictions.
func (c *Client) Audio() *FilePredictionsAPI {
	return c.audio.get(func() *FilePredictionsAPI {
		return newFilePredictionsAPI(c.Predictions(), CategoryAudio, c.Files)
	})
}

// Video runs video predictions.
func (c *Client) Video() *FilePredictionsAPI {
	return c.video.get(func() *FilePredictionsAPI {
		return newFilePredictionsAPI(c.Predictions(), CategoryVideo, c.Files)
	})
}

// Files manages uploaded files.
func (c *Client) Files() *FilesAPI {
	return c.files.get(func() *FilesAPI { return newFilesAPI(c.requestor) })
}

// Models lists available models.
func (c *Client) Models() *ModelsAPI {
	return c.models.get(func() *ModelsAPI { return &ModelsAPI{r: c.requestor} })
}

// Agent manages agents.
func (c *Client) Agent() *AgentAPI {
	return c.agent.get(func() *AgentAPI { return &AgentAPI{r: c.requestor} })
}

// Executions reads agent executions.
func (c *Client) Executions() *ExecutionsAPI {
	return c.executions.get(func() *ExecutionsAPI { return &ExecutionsAPI{r: c.requestor} })
}

// Completions is the chat-style agent interface.
func (c *Client) Completions() *CompletionsAPI {
	return c.completions.get(func() *CompletionsAPI {
		return &CompletionsAPI{agent: c.Agent, executions: c.Executions, files: c.Files}
	})
}

// Datasets manages training datasets.
func (c *Client) Datasets() *DatasetsAPI {
	return c.datasets.get(func() *DatasetsAPI {
		return &DatasetsAPI{r: c.requestor, files: c.Files, cacheDir: c.Config.CacheDir, now: timeNow}
	})
}

// FineTuning manages fine-tuning jobs.
func (c *Client) FineTuning() *FineTuningAPI {
	return c.fineTuning.get(func() *FineTuningAPI { return newFineTuningAPI(c.requestor) })
}

// Feedback records prediction feedback.
func (c *Client) Feedback() *FeedbackAPI {
	return c.feedback.get(func() *FeedbackAPI { return &FeedbackAPI{r: c.requestor} })
}

// Artifacts downloads agent artifacts.
func (c *Client) Artifacts() *ArtifactsAPI {
	return c.artifacts.get(func() *ArtifactsAPI { return &ArtifactsAPI{r: c.requestor} })
}

// Hub exposes the domain hub.
func (c *Client) Hub() *HubAPI {
	return c.hub.get(func() *HubAPI { return &HubAPI{r: c.requestor} })
}

// Skills manages reusable skills.
func (c *Client) Skills() *SkillsAPI {
	return c.skills.get(func() *SkillsAPI { return &SkillsAPI{r: c.requestor} })
}

// Close releases HTTP resources.
func (c *Client) Close() {
	if c == nil || c.http == nil {
		return
	}
	c.http.close()
}
