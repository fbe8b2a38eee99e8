package vlmrun

import (
	"encoding/json"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestGenerateRejectsDomainModelMisuseWithoutNetwork(t *testing.T) {
	handler := &scriptedHandler{script: []scriptedResponse{{status: http.StatusOK, body: `{}`}}}
	server := newTestServer(t, handler)
	client := newTestClient(t, testConfig(server.URL))

	tests := []struct {
		name string
		req  GenerateRequest
	}{
		{name: "Both", req: GenerateRequest{Input: InputURL("https://x.test/a.jpg"), Domain: "image.caption", Model: "vlm-1"}},
		{name: "Neither", req: GenerateRequest{Input: InputURL("https://x.test/a.jpg")}},
		{name: "NoInput", req: GenerateRequest{Domain: "image.caption"}},
		{name: "TwoInputs", req: GenerateRequest{Input: Input{URL: "https://x.test/a.jpg", FileID: "f"}, Domain: "image.caption"}},
		{name: "RelativeURL", req: GenerateRequest{Input: InputURL("/a.jpg"), Domain: "image.caption"}},
		{name: "BadCallback", req: GenerateRequest{Input: InputFileID("f"), Domain: "image.caption", CallbackURL: "ftp://hook"}},
		{name: "BadTemperature", req: GenerateRequest{Input: InputFileID("f"), Domain: "image.caption", Config: &GenerationConfig{Temperature: ptr(5.0)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Image().Generate(tt.req)
			assert.ErrorIs(t, err, ErrValidation)
			_, err = client.Document().Generate(tt.req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
	assert.Zero(t, handler.Calls())
}

func TestImageGenerateByURLWithTypedCast(t *testing.T) {
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/image/generate", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "https://x.test/invoice.jpg", gjson.GetBytes(body, "image").String())
		assert.Equal(t, "document.invoice", gjson.GetBytes(body, "domain").String())
		assert.False(t, gjson.GetBytes(body, "model").Exists())
		assert.True(t, gjson.GetBytes(body, "config.json_schema.properties.invoice_id").Exists())
		assert.Equal(t, "auto", gjson.GetBytes(body, "config.detail").String())

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"p1","status":"completed","response":{"invoice_id":"INV-3","total":9}}`))
	}))
	client := newTestClient(t, testConfig(server.URL))

	pred, err := client.Image().Generate(GenerateRequest{
		Input:  InputURL("https://x.test/invoice.jpg"),
		Domain: "document.invoice",
		Config: &GenerationConfig{ResponseModel: testInvoice{}},
	})
	require.NoError(t, err)
	require.NoError(t, pred.CastErr())
	assert.Equal(t, &testInvoice{InvoiceID: "INV-3", Total: 9}, pred.Typed())
	assert.Equal(t, CategoryImage, pred.Category())
	assert.Equal(t, "document.invoice", pred.Domain)
}

func TestImageGenerateFailedCastKeepsRaw(t *testing.T) {
	handler := &scriptedHandler{script: []scriptedResponse{{
		status: http.StatusOK,
		body:   `{"id":"p1","status":"completed","response":{"total":"lots"}}`,
	}}}
	server := newTestServer(t, handler)
	client := newTestClient(t, testConfig(server.URL))

	pred, err := client.Image().Generate(GenerateRequest{
		Input:  InputFileID("file-1"),
		Model:  "vlm-1",
		Config: &GenerationConfig{ResponseModel: &testInvoice{}},
	})
	require.NoError(t, err)
	assert.Nil(t, pred.Typed())
	assert.ErrorIs(t, pred.CastErr(), ErrValidation)
	assert.JSONEq(t, `{"total":"lots"}`, string(pred.Raw()))
}

func TestImageGenerateInlinesLocalImage(t *testing.T) {
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.True(t, strings.HasPrefix(gjson.GetBytes(body, "image").String(), "data:image/jpeg;base64,"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"p2","status":"pending"}`))
	}))
	client := newTestClient(t, testConfig(server.URL))

	pred, err := client.Image().Generate(GenerateRequest{
		Input:  InputImage(image.NewRGBA(image.Rect(0, 0, 4, 4))),
		Domain: "image.caption",
		Config: &GenerationConfig{ResponseModel: testInvoice{}},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, pred.Status)
	assert.Nil(t, pred.Typed())
	assert.NoError(t, pred.CastErr())
}

func TestDocumentGenerateUploadsLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "invoice.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0o600))

	var uploads, generates atomic.Int32
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/files":
			uploads.Add(1)
			assert.Equal(t, PurposeAssistants, r.URL.Query().Get("purpose"))
			if _, header, err := r.FormFile("file"); assert.NoError(t, err) {
				assert.Equal(t, "invoice.pdf", header.Filename)
			}
			_, _ = w.Write([]byte(`{"id":"file-9","filename":"invoice.pdf","bytes":13,"purpose":"assistants"}`))
		case "/document/generate":
			generates.Add(1)
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, "file-9", gjson.GetBytes(body, "file_id").String())
			assert.False(t, gjson.GetBytes(body, "url").Exists())
			_, _ = w.Write([]byte(`{"id":"p3","status":"completed","response":{"pages":[{"invoice_id":"A","total":1}]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	client := newTestClient(t, testConfig(server.URL))

	pred, err := client.Document().Generate(GenerateRequest{
		Input:  InputPath(path),
		Domain: "document.invoice",
		Config: &GenerationConfig{ResponseModel: testInvoice{}},
	})
	require.NoError(t, err)
	assert.Equal(t, int32(1), uploads.Load())
	assert.Equal(t, int32(1), generates.Load())
	assert.Equal(t, &testInvoice{InvoiceID: "A", Total: 1}, pred.Typed())
}

func TestFileGenerateRoutesByCategory(t *testing.T) {
	var paths recorder
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths.add(r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "https://x.test/media", gjson.GetBytes(body, "url").String())
		assert.True(t, gjson.GetBytes(body, "batch").Bool())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"p","status":"enqueued"}`))
	}))
	client := newTestClient(t, testConfig(server.URL))

	req := GenerateRequest{Input: InputURL("https://x.test/media"), Model: "vlm-1", Batch: true}
	for _, api := range []*FilePredictionsAPI{client.Document(), client.Audio(), client.Video()} {
		_, err := api.Generate(req)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"/document/generate", "/audio/generate", "/video/generate"}, paths.values())
}

func TestFileGenerateRejectsDecodedImage(t *testing.T) {
	handler := &scriptedHandler{script: []scriptedResponse{{status: http.StatusOK, body: `{}`}}}
	server := newTestServer(t, handler)
	client := newTestClient(t, testConfig(server.URL))

	_, err := client.Video().Generate(GenerateRequest{
		Input:  InputImage(image.NewGray(image.Rect(0, 0, 1, 1))),
		Domain: "video.transcription",
	})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, handler.Calls())
}

func TestPredictionGetRejectsBrokenInvariants(t *testing.T) {
	tests := []string{
		`{"id":"p","status":"completed"}`,
		`{"id":"p","status":"failed"}`,
		`{"id":"p","status":"failed","error":"boom","response":{"a":1}}`,
	}
	for _, body := range tests {
		handler := &scriptedHandler{script: []scriptedResponse{{status: http.StatusOK, body: body}}}
		server := newTestServer(t, handler)
		client := newTestClient(t, testConfig(server.URL))

		_, err := client.Predictions().Get("p")
		assert.ErrorIs(t, err, ErrDecode, body)
	}
}

func TestPredictionWaitPollsUntilTerminal(t *testing.T) {
	handler := &scriptedHandler{script: []scriptedResponse{
		{status: http.StatusOK, body: `{"id":"p","status":"enqueued"}`},
		{status: http.StatusOK, body: `{"id":"p","status":"running"}`},
		{status: http.StatusOK, body: `{"id":"p","status":"completed","result":{"ok":true}}`},
	}}
	server := newTestServer(t, handler)
	client := newTestClient(t, testConfig(server.URL))

	pred, err := client.Predictions().Wait("p", WaitOptions{Timeout: 5 * time.Second, Interval: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, pred.Status)
	assert.JSONEq(t, `{"ok":true}`, string(pred.Raw()))
	assert.Equal(t, 3, handler.Calls())
}

func TestPredictionWaitReturnsFailedPrediction(t *testing.T) {
	handler := &scriptedHandler{script: []scriptedResponse{
		{status: http.StatusOK, body: `{"id":"p","status":"failed","error":{"message":"unreadable","type":"InputError"}}`},
	}}
	server := newTestServer(t, handler)
	client := newTestClient(t, testConfig(server.URL))

	pred, err := client.Predictions().Wait("p", WaitOptions{Interval: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, pred.Status)
	assert.Equal(t, "InputError: unreadable", pred.Error.String())
}

func TestPredictionWaitTimesOut(t *testing.T) {
	handler := &scriptedHandler{script: []scriptedResponse{{status: http.StatusOK, body: `{"id":"p","status":"running"}`}}}
	server := newTestServer(t, handler)
	client := newTestClient(t, testConfig(server.URL))

	pred, err := client.Predictions().Wait("p", WaitOptions{Timeout: 60 * time.Millisecond, Interval: 20 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	require.NotNil(t, pred)
	assert.Equal(t, StatusRunning, pred.Status)
	assert.GreaterOrEqual(t, handler.Calls(), 1)
}

func TestPredictionListPages(t *testing.T) {
	var skips recorder
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		skip := r.URL.Query().Get("skip")
		skips.add(skip)
		w.Header().Set("Content-Type", "application/json")
		var items []map[string]any
		switch skip {
		case "0":
			items = []map[string]any{{"id": "a", "status": "completed", "response": map[string]any{}}, {"id": "b", "status": "running"}}
		case "2":
			items = []map[string]any{{"id": "c", "status": "completed", "response": map[string]any{}}}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": items})
	}))
	client := newTestClient(t, testConfig(server.URL))

	preds, err := client.Predictions().List(ListOptions{PageSize: 2}).Collect(t.Context())
	require.NoError(t, err)
	require.Len(t, preds, 3)
	assert.Equal(t, "c", preds[2].ID)
	assert.Equal(t, []string{"0", "2"}, skips.values())

	completed, err := client.Predictions().List(ListOptions{PageSize: 2, Filter: `status == "completed"`}).Collect(t.Context())
	require.NoError(t, err)
	assert.Len(t, completed, 2)
}
