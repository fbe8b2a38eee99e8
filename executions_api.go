package vlmrun

import (
	"context"
	"net/http"
	"time"
)

const (
	defaultExecutionWaitTimeout  = 300 * time.Second
	defaultExecutionWaitInterval = 5 * time.Second
)

// ExecutionsAPI reads agent executions.
type ExecutionsAPI struct {
	r *requestor
}

// List returns a pager over agent executions.
func (e *ExecutionsAPI) List(opts ListOptions) *Pager[AgentExecutionResponse] {
	return newPager(opts, func(ctx context.Context, skip, limit int) ([]AgentExecutionResponse, error) {
		resp, err := e.r.execute(ctx, Request{
			Method: http.MethodGet,
			Path:   "agent/executions",
			Query:  map[string]any{"skip": skip, "limit": limit},
		})
		if err != nil {
			return nil, err
		}
		return decodeList[AgentExecutionResponse](resp)
	})
}

// Get fetches an execution by id.
func (e *ExecutionsAPI) Get(id string) (*AgentExecutionResponse, error) {
	return e.GetWithContext(context.Background(), id)
}

// GetWithContext fetches an execution with a caller-supplied context.
func (e *ExecutionsAPI) GetWithContext(ctx context.Context, id string) (*AgentExecutionResponse, error) {
	escaped, err := pathParam("execution_id", id)
	if err != nil {
		return nil, err
	}
	var out AgentExecutionResponse
	if err := e.r.doJSON(ctx, Request{Method: http.MethodGet, Path: "agent/executions/" + escaped}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Wait polls an execution until it reaches a terminal status.
func (e *ExecutionsAPI) Wait(id string, opts WaitOptions) (*AgentExecutionResponse, error) {
	return e.WaitWithContext(context.Background(), id, opts)
}

// WaitWithContext polls an execution with a caller-supplied context.
func (e *ExecutionsAPI) WaitWithContext(ctx context.Context, id string, opts WaitOptions) (*AgentExecutionResponse, error) {
	opts = opts.withDefaults(defaultExecutionWaitTimeout, defaultExecutionWaitInterval)
	return pollUntil(ctx, "execution "+id, opts,
		func(ctx context.Context) (*AgentExecutionResponse, error) { return e.GetWithContext(ctx, id) },
		func(ex *AgentExecutionResponse) bool { return ex.Status.IsTerminal() },
	)
}
