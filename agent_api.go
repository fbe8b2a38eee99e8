package vlmrun

import (
	"context"
	"net/http"
	"strings"
)

// AgentAPI manages agents and starts agent executions.
type AgentAPI struct {
	r *requestor
}

// AgentLookup selects an agent by exactly one of Name, ID or Prompt.
type AgentLookup struct {
	Name   string
	ID     string
	Prompt string
}

func (l AgentLookup) body() (map[string]any, error) {
	set := map[string]string{}
	if l.ID != "" {
		set["id"] = l.ID
	}
	if l.Name != "" {
		set["name"] = l.Name
	}
	if l.Prompt != "" {
		set["prompt"] = l.Prompt
	}
	switch len(set) {
	case 0:
		return nil, newValidationError("one of agent id, name or prompt is required")
	case 1:
		out := make(map[string]any, 1)
		for k, v := range set {
			out[k] = v
		}
		return out, nil
	default:
		return nil, newValidationError("set only one of agent id, name or prompt")
	}
}

// Get looks an agent up.
func (a *AgentAPI) Get(lookup AgentLookup) (*AgentInfo, error) {
	return a.GetWithContext(context.Background(), lookup)
}

// GetWithContext looks an agent up with a caller-supplied context.
func (a *AgentAPI) GetWithContext(ctx context.Context, lookup AgentLookup) (*AgentInfo, error) {
	body, err := lookup.body()
	if err != nil {
		return nil, err
	}
	var out AgentInfo
	if err := a.r.doJSON(ctx, Request{Method: http.MethodPost, Path: "agent/lookup", Body: body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByID fetches an agent by id.
func (a *AgentAPI) GetByID(agentID string) (*AgentInfo, error) {
	return a.GetByIDWithContext(context.Background(), agentID)
}

// GetByIDWithContext fetches an agent by id with a caller-supplied context.
func (a *AgentAPI) GetByIDWithContext(ctx context.Context, agentID string) (*AgentInfo, error) {
	id, err := pathParam("agent_id", agentID)
	if err != nil {
		return nil, err
	}
	var out AgentInfo
	if err := a.r.doJSON(ctx, Request{Method: http.MethodGet, Path: "agents/" + id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns every agent visible to the caller.
func (a *AgentAPI) List() ([]AgentInfo, error) {
	return a.ListWithContext(context.Background())
}

// ListWithContext returns every agent with a caller-supplied context.
func (a *AgentAPI) ListWithContext(ctx context.Context) ([]AgentInfo, error) {
	resp, err := a.r.execute(ctx, Request{Method: http.MethodGet, Path: "agent"})
	if err != nil {
		return nil, err
	}
	return decodeList[AgentInfo](resp)
}

// AgentCreateRequest describes a new agent.
type AgentCreateRequest struct {
	Name        string
	Inputs      map[string]any
	Config      AgentCreationConfig
	CallbackURL string
}

// Create registers a new agent. Config.Prompt is required.
func (a *AgentAPI) Create(req AgentCreateRequest) (*AgentCreationResponse, error) {
	return a.CreateWithContext(context.Background(), req)
}

// CreateWithContext registers an agent with a caller-supplied context.
func (a *AgentAPI) CreateWithContext(ctx context.Context, req AgentCreateRequest) (*AgentCreationResponse, error) {
	if strings.TrimSpace(req.Config.Prompt) == "" {
		return nil, newValidationError("agent config requires a prompt")
	}
	if req.CallbackURL != "" && !isHTTPURL(req.CallbackURL) {
		return nil, newValidationError("callback_url %q is not an absolute http(s) url", req.CallbackURL)
	}
	body := map[string]any{
		"inputs": req.Inputs,
		"config": req.Config,
	}
	if req.Name != "" {
		body["name"] = req.Name
	}
	if req.CallbackURL != "" {
		body["callback_url"] = req.CallbackURL
	}
	var out AgentCreationResponse
	if err := a.r.doJSON(ctx, Request{Method: http.MethodPost, Path: "agent/create", Body: body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AgentExecuteRequest starts an agent execution. Executions always run in
// batch mode; use Executions().Wait to block on the result.
type AgentExecuteRequest struct {
	Name        string
	Inputs      map[string]any
	Config      *AgentExecutionConfig
	Metadata    *RequestMetadata
	CallbackURL string
}

// Execute starts an execution of the named agent.
func (a *AgentAPI) Execute(req AgentExecuteRequest) (*AgentExecutionResponse, error) {
	return a.ExecuteWithContext(context.Background(), req)
}

// ExecuteWithContext starts an execution with a caller-supplied context.
func (a *AgentAPI) ExecuteWithContext(ctx context.Context, req AgentExecuteRequest) (*AgentExecutionResponse, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, newValidationError("agent name cannot be empty")
	}
	if req.CallbackURL != "" && !isHTTPURL(req.CallbackURL) {
		return nil, newValidationError("callback_url %q is not an absolute http(s) url", req.CallbackURL)
	}
	body := map[string]any{
		"name":   req.Name,
		"batch":  true,
		"inputs": req.Inputs,
	}
	if req.Config != nil {
		body["config"] = req.Config
	}
	if req.Metadata != nil {
		body["metadata"] = req.Metadata
	}
	if req.CallbackURL != "" {
		body["callback_url"] = req.CallbackURL
	}
	var out AgentExecutionResponse
	if err := a.r.doJSON(ctx, Request{Method: http.MethodPost, Path: "agent/execute", Body: body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
