package vlmrun

import (
	"context"
	"net/http"
)

// ArtifactsAPI downloads files produced by agent sessions.
type ArtifactsAPI struct {
	r *requestor
}

// Get returns the raw bytes of an artifact. Persisting them is up to the caller.
func (a *ArtifactsAPI) Get(sessionID, objectID string) ([]byte, error) {
	return a.GetWithContext(context.Background(), sessionID, objectID)
}

// GetWithContext downloads an artifact with a caller-supplied context.
func (a *ArtifactsAPI) GetWithContext(ctx context.Context, sessionID, objectID string) ([]byte, error) {
	session, err := pathParam("session_id", sessionID)
	if err != nil {
		return nil, err
	}
	object, err := pathParam("object_id", objectID)
	if err != nil {
		return nil, err
	}
	return a.r.doBytes(ctx, Request{
		Method:  http.MethodGet,
		Path:    "artifacts/" + session + "/" + object,
		Headers: http.Header{"Accept": []string{"*/*"}},
	})
}
