package vlmrun

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// httpClient is the transport adapter: a pooled *http.Client bound to the
// base URL, auth headers and hooks. It performs exactly one exchange per call.
type httpClient struct {
	client    *http.Client
	cfg       Config
	auth      Auth
	logger    zerolog.Logger
	redactMap map[string]struct{}
}

func newHTTPClient(cfg Config, auth Auth) *httpClient {
	if cfg.RequestIDHeader == "" {
		cfg.RequestIDHeader = defaultRequestIDHeader
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = defaultMaxIdleConns
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = defaultMaxIdlePerHost
	}
	if cfg.IdleConnTimeout == 0 {
		cfg.IdleConnTimeout = defaultIdleConnTimeout
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryMultiplier < 1 {
		cfg.RetryMultiplier = 1
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}
	if cfg.ProxyURL != nil {
		transport.Proxy = http.ProxyURL(cfg.ProxyURL)
	}

	redactions := map[string]struct{}{}
	for _, h := range cfg.RedactHeaders {
		redactions[strings.ToLower(h)] = struct{}{}
	}

	return &httpClient{
		cfg:  cfg,
		auth: auth,
		// Attempt deadlines come from the executor's per-attempt context.
		client:    &http.Client{Transport: transport},
		logger:    newLogger(cfg),
		redactMap: redactions,
	}
}

func newLogger(cfg Config) zerolog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger.With().Str("component", "vlmrun").Logger()
	}
	if !cfg.Debug {
		return zerolog.Nop()
	}
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(output).Level(zerolog.DebugLevel).With().Timestamp().Str("component", "vlmrun").Logger()
}

func (c *httpClient) close() {
	if t, ok := c.client.Transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
}

// buildURL joins path onto the base URL and serialises query values in
// OpenAPI form style. Nil values are dropped; keys are emitted in sorted order.
func (c *httpClient) buildURL(path string, query map[string]any) (string, error) {
	full := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
	if len(query) == 0 {
		return full, nil
	}
	keys := lo.Keys(query)
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := query[k]
		if v == nil {
			continue
		}
		encoded, err := runtime.StyleParamWithLocation("form", true, k, runtime.ParamLocationQuery, v)
		if err != nil {
			return "", fmt.Errorf("encode query parameter %s: %w", k, err)
		}
		parts = append(parts, encoded)
	}
	if len(parts) == 0 {
		return full, nil
	}
	return full + "?" + strings.Join(parts, "&"), nil
}

// pathParam escapes a single path segment.
func pathParam(name string, value string) (string, error) {
	if value == "" {
		return "", newValidationError("%s cannot be empty", name)
	}
	escaped, err := runtime.StyleParamWithLocation("simple", false, name, runtime.ParamLocationPath, value)
	if err != nil {
		return "", newValidationError("invalid %s %q: %v", name, value, err)
	}
	return escaped, nil
}

// send performs one request/response exchange. The body is fully read and the
// connection released before returning.
func (c *httpClient) send(ctx context.Context, method, fullURL string, headers http.Header, body []byte) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, err
	}

	c.applyHeaders(req, headers)
	c.attachRequestID(req)
	c.runRequestHooks(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	c.runResponseHooks(resp, data)

	requestID := resp.Header.Get(c.cfg.RequestIDHeader)
	if requestID == "" {
		requestID = req.Header.Get(c.cfg.RequestIDHeader)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		RequestID:  requestID,

		requestHeader: req.Header,
	}, nil
}

func (c *httpClient) redactedHeaders(h http.Header) http.Header {
	if len(c.redactMap) == 0 {
		return h
	}
	cloned := cloneHeaders(h)
	for k := range cloned {
		if _, ok := c.redactMap[strings.ToLower(k)]; ok {
			cloned.Set(k, "[redacted]")
		}
	}
	return cloned
}

func (c *httpClient) applyHeaders(req *http.Request, headers http.Header) {
	for k, vals := range c.auth.Headers() {
		for _, v := range vals {
			req.Header.Set(k, v)
		}
	}
	for k, vals := range c.cfg.ExtraHeaders {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	for k, vals := range headers {
		req.Header.Del(k)
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
}

func (c *httpClient) attachRequestID(req *http.Request) {
	if c.cfg.RequestIDHeader == "" {
		return
	}
	if req.Header.Get(c.cfg.RequestIDHeader) != "" {
		return
	}
	switch {
	case c.cfg.DefaultRequestID != "":
		req.Header.Set(c.cfg.RequestIDHeader, c.cfg.DefaultRequestID)
	case c.cfg.AutoRequestID:
		req.Header.Set(c.cfg.RequestIDHeader, "vlmrun-"+uuid.NewString())
	}
}

func (c *httpClient) runRequestHooks(req *http.Request) {
	for i, hook := range c.cfg.BeforeRequest {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Warn().Int("hook", i).Interface("panic", r).Msg("request hook panicked")
				}
			}()
			hook(req)
		}()
	}
}

func (c *httpClient) runResponseHooks(resp *http.Response, body []byte) {
	for i, hook := range c.cfg.AfterResponse {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logger.Warn().Int("hook", i).Interface("panic", r).Msg("response hook panicked")
				}
			}()
			hook(resp, body)
		}()
	}
}

// formFile is one file part of a multipart body.
type formFile struct {
	FieldName string
	File      FileUpload
}

// encodeMultipart renders fields and files into a multipart body. The whole
// body is buffered so that the executor can resend it on retry.
func encodeMultipart(fields map[string]string, files ...formFile) ([]byte, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	keys := lo.Keys(fields)
	sort.Strings(keys)
	for _, k := range keys {
		if err := writer.WriteField(k, fields[k]); err != nil {
			return nil, "", err
		}
	}

	for _, f := range files {
		if err := writeFilePart(writer, f); err != nil {
			writer.Close()
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body.Bytes(), writer.FormDataContentType(), nil
}

func writeFilePart(writer *multipart.Writer, f formFile) error {
	rc, err := f.File.open()
	if err != nil {
		return err
	}
	defer rc.Close()

	content, mimeType, err := detectMimeType(rc, f.File.mimeType())
	if err != nil {
		return err
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, escapeQuotes(f.FieldName), escapeQuotes(f.File.filename())))
	h.Set("Content-Type", mimeType)

	part, err := writer.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, content)
	return err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
