package vlmrun

import (
	"context"
	"net/http"
)

const experimentalPrefix = "experimental/"

// FeedbackAPI records corrections against predictions.
type FeedbackAPI struct {
	r *requestor
}

// FeedbackRequest is the feedback attached to a prediction. Label is any
// JSON-serialisable corrected result.
type FeedbackRequest struct {
	PredictionID string
	Label        any
	Notes        string
	Flag         *bool
}

// Submit stores feedback for a prediction.
func (f *FeedbackAPI) Submit(req FeedbackRequest) (*FeedbackSubmitResponse, error) {
	return f.SubmitWithContext(context.Background(), req)
}

// SubmitWithContext stores feedback with a caller-supplied context.
func (f *FeedbackAPI) SubmitWithContext(ctx context.Context, req FeedbackRequest) (*FeedbackSubmitResponse, error) {
	if req.PredictionID == "" {
		return nil, newValidationError("prediction id cannot be empty")
	}
	body := map[string]any{
		"request_id": req.PredictionID,
		"response":   req.Label,
		"notes":      nil,
		"flag":       req.Flag,
	}
	if req.Notes != "" {
		body["notes"] = req.Notes
	}
	var out FeedbackSubmitResponse
	if err := f.r.doJSON(ctx, Request{Method: http.MethodPost, Path: experimentalPrefix + "feedback/submit", Body: body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get fetches the feedback stored for a prediction.
func (f *FeedbackAPI) Get(predictionID string) (*FeedbackSubmitResponse, error) {
	return f.GetWithContext(context.Background(), predictionID)
}

// GetWithContext fetches feedback with a caller-supplied context.
func (f *FeedbackAPI) GetWithContext(ctx context.Context, predictionID string) (*FeedbackSubmitResponse, error) {
	id, err := pathParam("prediction_id", predictionID)
	if err != nil {
		return nil, err
	}
	var out FeedbackSubmitResponse
	if err := f.r.doJSON(ctx, Request{Method: http.MethodGet, Path: experimentalPrefix + "feedback/" + id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
