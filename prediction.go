package vlmrun

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// PredictionResponse is a prediction as reported by the API.
//
// Response holds the raw result payload exactly as received. When a response
// model was requested, Typed returns the cast value; if casting failed,
// CastErr explains why and the raw payload remains available.
type PredictionResponse struct {
	ID          string          `json:"id"`
	CreatedAt   *Timestamp      `json:"created_at,omitempty"`
	CompletedAt *Timestamp      `json:"completed_at,omitempty"`
	Status      JobStatus       `json:"status"`
	Domain      string          `json:"domain,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
	Error       *ErrorDetail    `json:"error,omitempty"`
	Usage       *CreditUsage    `json:"usage,omitempty"`

	category Category
	typed    any
	castErr  error
}

// UnmarshalJSON accepts "result" as an alias of "response".
func (p *PredictionResponse) UnmarshalJSON(data []byte) error {
	type alias PredictionResponse
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if isNullJSON(a.Response) {
		if result := gjson.GetBytes(data, "result"); result.Exists() && result.Type != gjson.Null {
			a.Response = json.RawMessage(result.Raw)
		}
	}
	*p = PredictionResponse(a)
	return nil
}

// Raw returns a copy of the raw result payload.
func (p *PredictionResponse) Raw() json.RawMessage {
	if p == nil || p.Response == nil {
		return nil
	}
	return append(json.RawMessage(nil), p.Response...)
}

// Typed returns the value produced by casting the result into the requested
// response model, or nil if none was requested or casting failed.
func (p *PredictionResponse) Typed() any {
	if p == nil {
		return nil
	}
	return p.typed
}

// CastErr reports why the typed view is unavailable.
func (p *PredictionResponse) CastErr() error {
	if p == nil {
		return nil
	}
	return p.castErr
}

// Category returns the domain category of the prediction.
func (p *PredictionResponse) Category() Category {
	if p == nil {
		return ""
	}
	if p.category != "" {
		return p.category
	}
	return categoryFromDomain(p.Domain)
}

// Completed reports whether the prediction finished successfully.
func (p *PredictionResponse) Completed() bool {
	return p != nil && p.Status == StatusCompleted
}

// checkInvariants enforces the status/payload contract of a prediction.
func (p *PredictionResponse) checkInvariants() error {
	switch p.Status {
	case StatusCompleted:
		if isNullJSON(p.Response) {
			return fmt.Errorf("prediction %s is completed but carries no result", p.ID)
		}
	case StatusFailed:
		if p.Error == nil {
			return fmt.Errorf("prediction %s failed without error detail", p.ID)
		}
		if !isNullJSON(p.Response) {
			return fmt.Errorf("prediction %s failed but carries a result", p.ID)
		}
	}
	return nil
}

// applyCast stores the best-effort typed view. Failures never touch Response.
func (p *PredictionResponse) applyCast(category Category, target any) {
	p.category = category
	if target == nil || p.Status != StatusCompleted {
		return
	}
	typed, err := castResult(category, p.Response, target)
	if err != nil {
		p.castErr = err
		return
	}
	p.typed = typed
}

// decodePrediction decodes one prediction and enforces its invariants.
func decodePrediction(resp *Response) (*PredictionResponse, error) {
	var pred PredictionResponse
	if err := resp.Decode(&pred); err != nil {
		return nil, err
	}
	if err := pred.checkInvariants(); err != nil {
		e := newDecodeError(resp.StatusCode, resp.Body, err)
		e.RequestID = resp.RequestID
		return nil, e
	}
	return &pred, nil
}

// decodePredictionList decodes a bare array or a {"data": [...]} envelope.
func decodePredictionList(resp *Response) ([]PredictionResponse, error) {
	items, err := listPayload(resp)
	if err != nil {
		return nil, err
	}
	var preds []PredictionResponse
	if err := json.Unmarshal(items, &preds); err != nil {
		return nil, newDecodeError(resp.StatusCode, resp.Body, err)
	}
	for i := range preds {
		if err := preds[i].checkInvariants(); err != nil {
			return nil, newDecodeError(resp.StatusCode, resp.Body, err)
		}
	}
	return preds, nil
}

// listPayload extracts the item array from a list response.
func listPayload(resp *Response) ([]byte, error) {
	body := bytes.TrimSpace(resp.Body)
	parsed := gjson.ParseBytes(body)
	switch {
	case parsed.IsArray():
		return body, nil
	case parsed.IsObject():
		for _, key := range []string{"data", "results", "items"} {
			if v := parsed.Get(key); v.IsArray() {
				return []byte(v.Raw), nil
			}
		}
	}
	return nil, newDecodeError(resp.StatusCode, resp.Body, errors.New("expected a list response"))
}

func isNullJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
