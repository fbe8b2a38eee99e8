package vlmrun

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

// DefaultAgentModel is the agent model used by chat completions.
const DefaultAgentModel = "vlmrun-orion-1:auto"

const (
	defaultCompletionTimeout     = 300 * time.Second
	completionInitialPoll        = 2 * time.Second
	completionMaxPoll            = 10 * time.Second
	completionPollGrowthFactor   = 1.2
	completionUploadConcurrency  = 4
	artifactFallbackIDCharacters = 12
)

// CompletionsAPI is the chat-style interface to agent executions.
type CompletionsAPI struct {
	agent      func() *AgentAPI
	executions func() *ExecutionsAPI
	files      func() *FilesAPI

	// initialPoll overrides the first polling interval.
	initialPoll time.Duration
}

// CompletionRequest is one chat turn sent to an agent model.
type CompletionRequest struct {
	Prompt string
	// Files are local files uploaded before the execution starts.
	Files []FileUpload
	// FileURLs are already reachable by the API.
	FileURLs []string
	// Model defaults to DefaultAgentModel.
	Model    string
	Timeout  time.Duration
	Metadata *RequestMetadata
	// OnUpdate, when set, receives a chunk every time the execution status changes.
	OnUpdate func(CompletionChunk)
}

// Artifact is a file produced by the agent.
type Artifact struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// CompletionChunk is a status update emitted while waiting for a completion.
type CompletionChunk struct {
	ID       string
	Model    string
	Status   JobStatus
	Delta    string
	Finished bool
}

// CompletionResponse is the final result of a completion.
type CompletionResponse struct {
	ID          string          `json:"id"`
	Model       string          `json:"model"`
	Content     string          `json:"content,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
	Artifacts   []Artifact      `json:"artifacts"`
	Usage       *CreditUsage    `json:"usage,omitempty"`
	Status      JobStatus       `json:"status"`
	CreatedAt   *Timestamp      `json:"created_at,omitempty"`
	CompletedAt *Timestamp      `json:"completed_at,omitempty"`
}

// Text returns the textual answer, if the agent produced one.
func (c *CompletionResponse) Text() string {
	if c.Content != "" {
		return c.Content
	}
	return extractText(c.Response)
}

// Create runs a completion and waits for its result.
func (c *CompletionsAPI) Create(req CompletionRequest) (*CompletionResponse, error) {
	return c.CreateWithContext(context.Background(), req)
}

// CreateWithContext runs a completion with a caller-supplied context.
func (c *CompletionsAPI) CreateWithContext(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, newValidationError("prompt cannot be empty")
	}
	for _, u := range req.FileURLs {
		if !isHTTPURL(u) {
			return nil, newValidationError("file url %q is not an absolute http(s) url", u)
		}
	}
	model := lo.CoalesceOrEmpty(req.Model, DefaultAgentModel)
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultCompletionTimeout
	}

	urls, err := c.uploadForURLs(ctx, req.Files)
	if err != nil {
		return nil, err
	}
	urls = append(urls, req.FileURLs...)

	var inputs map[string]any
	if len(urls) > 0 {
		inputs = map[string]any{"files": urls}
	}
	execution, err := c.agent().ExecuteWithContext(ctx, AgentExecuteRequest{
		Name:     model,
		Inputs:   inputs,
		Config:   &AgentExecutionConfig{Prompt: req.Prompt},
		Metadata: req.Metadata,
	})
	if err != nil {
		return nil, err
	}
	return c.wait(ctx, execution.ID, model, timeout, req.OnUpdate)
}

func (c *CompletionsAPI) uploadForURLs(ctx context.Context, files []FileUpload) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}
	uploaded, err := c.files().UploadManyWithContext(ctx, files, PurposeAssistants, completionUploadConcurrency)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(uploaded))
	for _, f := range uploaded {
		if f.PublicURL == "" {
			return nil, &Error{
				Kind:       KindAPI,
				Message:    "uploaded file " + f.ID + " has no public url",
				Suggestion: "Pass the file through FileURLs instead",
			}
		}
		urls = append(urls, f.PublicURL)
	}
	return urls, nil
}

// wait polls the execution with a slowly growing interval.
func (c *CompletionsAPI) wait(ctx context.Context, id, model string, timeout time.Duration, onUpdate func(CompletionChunk)) (*CompletionResponse, error) {
	started := time.Now()
	interval := lo.CoalesceOrEmpty(c.initialPoll, completionInitialPoll)
	var lastStatus JobStatus
	emit := func(chunk CompletionChunk) {
		if onUpdate != nil {
			onUpdate(chunk)
		}
	}

	for {
		execution, err := c.executions().GetWithContext(ctx, id)
		if err != nil {
			emit(CompletionChunk{ID: id, Model: model, Status: "error", Delta: err.Error(), Finished: true})
			return nil, err
		}
		if execution.Status != lastStatus {
			lastStatus = execution.Status
			emit(CompletionChunk{
				ID:       id,
				Model:    model,
				Status:   execution.Status,
				Finished: execution.Status == StatusCompleted || execution.Status == StatusFailed,
			})
		}

		switch execution.Status {
		case StatusCompleted:
			return completionFromExecution(execution, model), nil
		case StatusFailed, StatusCancelled:
			message := "Execution failed"
			if !isNullJSON(execution.Response) {
				message = string(execution.Response)
			}
			emit(CompletionChunk{ID: id, Model: model, Status: execution.Status, Delta: message, Finished: true})
			return &CompletionResponse{ID: id, Model: model, Content: message, Status: execution.Status}, nil
		}

		if time.Since(started) >= timeout {
			return nil, &Error{
				Kind:       KindTimeout,
				Message:    "execution " + id + " did not complete within " + timeout.String() + "; last status: " + string(execution.Status),
				Suggestion: "Increase the completion timeout or poll the execution later",
			}
		}
		if err := sleepWithContext(ctx, interval); err != nil {
			return nil, err
		}
		interval = min(time.Duration(float64(interval)*completionPollGrowthFactor), completionMaxPoll)
	}
}

func completionFromExecution(execution *AgentExecutionResponse, model string) *CompletionResponse {
	out := &CompletionResponse{
		ID:          execution.ID,
		Model:       model,
		Response:    cloneRaw(execution.Response),
		Artifacts:   []Artifact{},
		Usage:       execution.Usage,
		Status:      StatusCompleted,
		CreatedAt:   execution.CreatedAt,
		CompletedAt: execution.CompletedAt,
	}
	if !isNullJSON(execution.Response) {
		out.Content = extractText(execution.Response)
		out.Artifacts = extractArtifacts(execution.Response)
	}
	return out
}

var textKeys = []string{"text", "message", "content", "answer", "result", "output"}

// extractText returns the first string-valued answer key of an object payload.
func extractText(raw json.RawMessage) string {
	parsed := gjson.ParseBytes(raw)
	if !parsed.IsObject() {
		return ""
	}
	for _, key := range textKeys {
		if v := parsed.Get(key); v.Type == gjson.String {
			return v.String()
		}
	}
	return ""
}

var artifactURLKeys = []string{"file_url", "output_url", "download_url", "result_url"}

// extractArtifacts walks the payload for artifact lists and URL fields,
// keeping the first artifact seen per URL.
func extractArtifacts(raw json.RawMessage) []Artifact {
	var found []Artifact
	var walk func(v gjson.Result)
	walk = func(v gjson.Result) {
		switch {
		case v.IsObject():
			if list := v.Get("artifacts"); list.IsArray() {
				for _, item := range list.Array() {
					if !item.IsObject() || !item.Get("url").Exists() {
						continue
					}
					found = append(found, Artifact{
						ID:          lo.CoalesceOrEmpty(item.Get("id").String(), newArtifactID()),
						URL:         item.Get("url").String(),
						Filename:    item.Get("filename").String(),
						ContentType: item.Get("content_type").String(),
						Size:        item.Get("size").Int(),
					})
				}
			}
			for _, key := range artifactURLKeys {
				u := v.Get(key)
				if u.Type == gjson.String && isHTTPURL(u.String()) {
					found = append(found, Artifact{
						ID:       newArtifactID(),
						URL:      u.String(),
						Filename: v.Get("filename").String(),
					})
				}
			}
			v.ForEach(func(_, child gjson.Result) bool {
				walk(child)
				return true
			})
		case v.IsArray():
			v.ForEach(func(_, child gjson.Result) bool {
				walk(child)
				return true
			})
		}
	}
	walk(gjson.ParseBytes(raw))

	return lo.UniqBy(found, func(a Artifact) string { return a.URL })
}

func newArtifactID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:artifactFallbackIDCharacters]
}
