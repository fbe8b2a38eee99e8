package vlmrun

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	mrand "math/rand"
	"net"
	"net/http"
	"time"
)

// Shape declares how the executor should treat a successful response body.
type Shape int

const (
	// ShapeJSON requires the body to be valid JSON.
	ShapeJSON Shape = iota
	// ShapeBytes hands the body back untouched.
	ShapeBytes
	// ShapeNone ignores the body.
	ShapeNone
)

// Request describes one logical API call. It is built fresh per call.
type Request struct {
	Method string
	Path   string
	Query  map[string]any

	// Body is encoded as JSON. RawBody, when set, is sent as-is with ContentType.
	Body        any
	RawBody     []byte
	ContentType string

	Headers http.Header
	Shape   Shape
}

// Response is the envelope of one completed exchange.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	RequestID  string
	Attempts   int

	// requestHeader is the header set actually sent, for debug logging.
	requestHeader http.Header
}

// Decode unmarshals the body into out, mapping failures to a decode error.
func (r *Response) Decode(out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return newDecodeError(r.StatusCode, r.Body, err)
	}
	return nil
}

// requestor is the request executor shared by every façade.
type requestor struct {
	http *httpClient
	cfg  Config
}

func newRequestor(h *httpClient) *requestor {
	return &requestor{http: h, cfg: h.cfg}
}

// withMinTimeout returns a requestor on the same transport whose attempt
// timeout is at least d.
func (r *requestor) withMinTimeout(d time.Duration) *requestor {
	cfg := r.cfg
	if cfg.Timeout > 0 && cfg.Timeout < d {
		cfg.Timeout = d
	}
	return &requestor{http: r.http, cfg: cfg}
}

// retryState is the explicit state of one call's retry loop.
type retryState struct {
	attempt int
	started time.Time
	lastErr error
}

type retryDecision struct {
	retry bool
	delay time.Duration
}

// execute runs req through the retry state machine and returns the final
// response or a classified *Error. Caller cancellation returns ctx.Err().
func (r *requestor) execute(ctx context.Context, req Request) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	body, contentType, err := encodeRequestBody(req)
	if err != nil {
		return nil, newError(KindValidation, fmt.Sprintf("encode request body: %v", err), err)
	}
	fullURL, err := r.http.buildURL(req.Path, req.Query)
	if err != nil {
		return nil, newError(KindValidation, err.Error(), err)
	}
	headers := cloneHeaders(req.Headers)
	if contentType != "" {
		headers.Set("Content-Type", contentType)
	}

	state := retryState{started: time.Now()}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		state.attempt++

		attemptStart := time.Now()
		resp, err := r.attempt(ctx, req.Method, fullURL, headers, body, req.Shape)
		if err != nil && ctx.Err() != nil {
			r.logAttempt(req, state, time.Since(attemptStart), resp, ctx.Err(), retryDecision{})
			return nil, ctx.Err()
		}

		decision := r.decide(&state, err)
		r.logAttempt(req, state, time.Since(attemptStart), resp, err, decision)

		if err == nil {
			resp.Attempts = state.attempt
			return resp, nil
		}
		state.lastErr = err
		if !decision.retry {
			return nil, state.lastErr
		}
		if err := sleepWithContext(ctx, decision.delay); err != nil {
			return nil, err
		}
	}
}

// attempt performs one bounded exchange and classifies its outcome.
func (r *requestor) attempt(ctx context.Context, method, fullURL string, headers http.Header, body []byte, shape Shape) (*Response, error) {
	attemptCtx := ctx
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	resp, err := r.http.send(attemptCtx, method, fullURL, headers, body)
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, apiErrorFromResponse(resp.StatusCode, resp.Body, resp.Header, r.cfg.RequestIDHeader)
	}

	if shape == ShapeJSON {
		trimmed := bytes.TrimSpace(resp.Body)
		switch {
		case len(trimmed) == 0 && resp.StatusCode == http.StatusNoContent:
		case len(trimmed) == 0:
			e := newDecodeError(resp.StatusCode, resp.Body, errors.New("empty response body"))
			e.RequestID = resp.RequestID
			return resp, e
		case !json.Valid(trimmed):
			e := newDecodeError(resp.StatusCode, resp.Body, errors.New("invalid JSON"))
			e.RequestID = resp.RequestID
			return resp, e
		}
	}
	return resp, nil
}

// decide determines whether the failed attempt recorded in state is retried.
func (r *requestor) decide(state *retryState, err error) retryDecision {
	if err == nil {
		return retryDecision{}
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) || !apiErr.Retryable() {
		return retryDecision{}
	}
	if state.attempt >= r.cfg.MaxAttempts {
		return retryDecision{}
	}
	if apiErr.RetryAfter != nil && *apiErr.RetryAfter > r.retryAfterLimit() {
		return retryDecision{}
	}
	delay := r.retryDelay(apiErr, state.attempt-1)
	if r.cfg.RetryMaxElapsed > 0 && time.Since(state.started)+delay > r.cfg.RetryMaxElapsed {
		return retryDecision{}
	}
	return retryDecision{retry: true, delay: delay}
}

func classifyTransportError(err error) *Error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return newError(KindTimeout, fmt.Sprintf("request timed out: %v", err), err)
	}
	return newError(KindNetwork, fmt.Sprintf("request failed: %v", err), err)
}

// backoffDuration is initial*multiplier^n capped at the max interval, with
// symmetric jitter. A zero initial interval disables waiting.
func (r *requestor) backoffDuration(n int) time.Duration {
	if r.cfg.RetryInitialInterval <= 0 {
		return 0
	}
	factor := math.Pow(r.cfg.RetryMultiplier, float64(n))
	delay := time.Duration(float64(r.cfg.RetryInitialInterval) * factor)
	if r.cfg.RetryMaxInterval > 0 && delay > r.cfg.RetryMaxInterval {
		delay = r.cfg.RetryMaxInterval
	}
	if r.cfg.RetryJitter > 0 {
		jitterFactor := 1 + (mrand.Float64()*2-1)*r.cfg.RetryJitter
		delay = time.Duration(float64(delay) * jitterFactor)
	}
	if delay < 0 {
		return 0
	}
	return delay
}

// retryAfterLimit is the longest server requested wait the executor sleeps
// through. Longer waits surface the error with RetryAfter set.
func (r *requestor) retryAfterLimit() time.Duration {
	if r.cfg.RetryMaxInterval > 0 {
		return r.cfg.RetryMaxInterval
	}
	return defaultRetryAfterLimit
}

// retryDelay honours a server supplied Retry-After when it exceeds the backoff.
func (r *requestor) retryDelay(err *Error, n int) time.Duration {
	delay := r.backoffDuration(n)
	if err == nil || err.RetryAfter == nil || *err.RetryAfter <= 0 {
		return delay
	}
	if *err.RetryAfter > delay {
		return *err.RetryAfter
	}
	return delay
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *requestor) logAttempt(req Request, state retryState, took time.Duration, resp *Response, err error, decision retryDecision) {
	level := r.http.logger.Debug()
	if decision.retry {
		level = r.http.logger.Warn()
	}
	event := level.
		Str("method", req.Method).
		Str("path", req.Path).
		Int("attempt", state.attempt).
		Int("max_attempts", r.cfg.MaxAttempts).
		Dur("took", took).
		Dur("elapsed", time.Since(state.started))
	if resp != nil {
		event = event.Int("status", resp.StatusCode).Str("request_id", resp.RequestID)
		if resp.requestHeader != nil && event.Enabled() {
			event = event.Interface("headers", r.http.redactedHeaders(resp.requestHeader))
		}
	}
	switch {
	case err == nil:
		event.Str("outcome", "success").Msg("request attempt")
	case decision.retry:
		event.Str("outcome", string(KindOf(err))).Dur("retry_in", decision.delay).Err(err).Msg("request attempt failed, retrying")
	default:
		outcome := string(KindOf(err))
		if outcome == "" {
			outcome = "cancelled"
		}
		event.Str("outcome", outcome).Err(err).Msg("request attempt failed")
	}
}

func encodeRequestBody(req Request) ([]byte, string, error) {
	if req.RawBody != nil {
		return req.RawBody, req.ContentType, nil
	}
	if req.Body == nil {
		return nil, "", nil
	}
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(req.Body); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "application/json", nil
}

// doJSON executes req and decodes the JSON body into out.
func (r *requestor) doJSON(ctx context.Context, req Request, out any) error {
	req.Shape = ShapeJSON
	resp, err := r.execute(ctx, req)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	return resp.Decode(out)
}

// doBytes executes req and returns the raw body.
func (r *requestor) doBytes(ctx context.Context, req Request) ([]byte, error) {
	req.Shape = ShapeBytes
	resp, err := r.execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// doNone executes req and discards the body.
func (r *requestor) doNone(ctx context.Context, req Request) error {
	req.Shape = ShapeNone
	_, err := r.execute(ctx, req)
	return err
}
