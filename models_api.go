package vlmrun

import (
	"context"
	"net/http"
)

// ModelsAPI lists the models and domains served by the API.
type ModelsAPI struct {
	r *requestor
}

// List returns every available model/domain pair.
func (m *ModelsAPI) List() ([]ModelInfo, error) {
	return m.ListWithContext(context.Background())
}

// ListWithContext returns every model/domain pair with a caller-supplied context.
func (m *ModelsAPI) ListWithContext(ctx context.Context) ([]ModelInfo, error) {
	resp, err := m.r.execute(ctx, Request{Method: http.MethodGet, Path: "models"})
	if err != nil {
		return nil, err
	}
	return decodeList[ModelInfo](resp)
}
