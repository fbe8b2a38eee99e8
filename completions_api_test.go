package vlmrun

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestExtractText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "Text", raw: `{"text":"hello"}`, want: "hello"},
		{name: "KeyOrder", raw: `{"output":"late","answer":"early"}`, want: "early"},
		{name: "SkipsNonString", raw: `{"text":{"nested":true},"content":"plain"}`, want: "plain"},
		{name: "NoKnownKey", raw: `{"foo":"bar"}`, want: ""},
		{name: "NotObject", raw: `"just a string"`, want: ""},
		{name: "Null", raw: `null`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractText(json.RawMessage(tt.raw)))
		})
	}
}

func TestExtractArtifacts(t *testing.T) {
	raw := json.RawMessage(`{
		"artifacts": [
			{"id":"art-1","url":"https://cdn.test/a.png","filename":"a.png","content_type":"image/png","size":42},
			{"url":"https://cdn.test/b.pdf"},
			{"filename":"no-url.txt"},
			"ignored"
		],
		"steps": [
			{"file_url":"https://cdn.test/c.mp4","filename":"c.mp4"},
			{"output_url":"https://cdn.test/a.png"},
			{"download_url":"not a url"}
		]
	}`)

	artifacts := extractArtifacts(raw)
	require.Len(t, artifacts, 3)

	assert.Equal(t, Artifact{ID: "art-1", URL: "https://cdn.test/a.png", Filename: "a.png", ContentType: "image/png", Size: 42}, artifacts[0])
	assert.Equal(t, "https://cdn.test/b.pdf", artifacts[1].URL)
	assert.Len(t, artifacts[1].ID, artifactFallbackIDCharacters)
	assert.Equal(t, "https://cdn.test/c.mp4", artifacts[2].URL)
	assert.Equal(t, "c.mp4", artifacts[2].Filename)

	assert.Empty(t, extractArtifacts(json.RawMessage(`{"text":"nothing here"}`)))
}

func TestCompletionsCreateWithFiles(t *testing.T) {
	var executeBody atomic.Value
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/files":
			assert.Equal(t, PurposeAssistants, r.URL.Query().Get("purpose"))
			_, header, err := r.FormFile("file")
			if !assert.NoError(t, err) {
				return
			}
			fmt.Fprintf(w, `{"id":"file-%s","filename":%q,"public_url":"https://files.test/%s"}`, header.Filename, header.Filename, header.Filename)
		case r.Method == http.MethodPost && r.URL.Path == "/agent/execute":
			body, _ := io.ReadAll(r.Body)
			executeBody.Store(string(body))
			_, _ = w.Write([]byte(`{"id":"ex-1","status":"pending"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/agent/executions/ex-1":
			_, _ = w.Write([]byte(`{"id":"ex-1","status":"completed","response":{"answer":"Two invoices","file_url":"https://cdn.test/out.csv"},"usage":{"credits_used":3}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	client := newTestClient(t, testConfig(server.URL))

	var chunks []CompletionChunk
	resp, err := client.Completions().Create(CompletionRequest{
		Prompt:   "How many invoices are there?",
		Files:    []FileUpload{FileFromBytes("a.pdf", []byte("%PDF-1.7"))},
		FileURLs: []string{"https://remote.test/b.pdf"},
		OnUpdate: func(c CompletionChunk) { chunks = append(chunks, c) },
	})
	require.NoError(t, err)

	body, _ := executeBody.Load().(string)
	assert.Equal(t, DefaultAgentModel, gjson.Get(body, "name").String())
	assert.True(t, gjson.Get(body, "batch").Bool())
	assert.Equal(t, "How many invoices are there?", gjson.Get(body, "config.prompt").String())
	assert.Equal(t, []any{"https://files.test/a.pdf", "https://remote.test/b.pdf"}, gjson.Get(body, "inputs.files").Value())

	assert.Equal(t, "ex-1", resp.ID)
	assert.Equal(t, StatusCompleted, resp.Status)
	assert.Equal(t, "Two invoices", resp.Text())
	require.Len(t, resp.Artifacts, 1)
	assert.Equal(t, "https://cdn.test/out.csv", resp.Artifacts[0].URL)

	require.Len(t, chunks, 1)
	assert.Equal(t, StatusCompleted, chunks[0].Status)
	assert.True(t, chunks[0].Finished)
}

func TestCompletionsEmitsChunkPerStatusChange(t *testing.T) {
	var polls atomic.Int32
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/agent/execute":
			_, _ = w.Write([]byte(`{"id":"ex-2","status":"pending"}`))
		case "/agent/executions/ex-2":
			switch polls.Add(1) {
			case 1, 2:
				_, _ = w.Write([]byte(`{"id":"ex-2","status":"pending"}`))
			case 3:
				_, _ = w.Write([]byte(`{"id":"ex-2","status":"running"}`))
			default:
				_, _ = w.Write([]byte(`{"id":"ex-2","status":"completed","response":{"text":"done"}}`))
			}
		default:
			http.NotFound(w, r)
		}
	}))
	client := newTestClient(t, testConfig(server.URL))
	completions := client.Completions()
	completions.initialPoll = 5 * time.Millisecond

	var statuses []JobStatus
	resp, err := completions.Create(CompletionRequest{
		Prompt:   "hi",
		Model:    "vlmrun-orion-1:fast",
		OnUpdate: func(c CompletionChunk) { statuses = append(statuses, c.Status) },
	})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)
	assert.Equal(t, "vlmrun-orion-1:fast", resp.Model)
	assert.Equal(t, []JobStatus{StatusPending, StatusRunning, StatusCompleted}, statuses)
	assert.Equal(t, int32(4), polls.Load())
}

func TestCompletionsFailedExecutionIsAResponse(t *testing.T) {
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/agent/execute":
			_, _ = w.Write([]byte(`{"id":"ex-3","status":"pending"}`))
		case "/agent/executions/ex-3":
			_, _ = w.Write([]byte(`{"id":"ex-3","status":"failed","response":null}`))
		default:
			http.NotFound(w, r)
		}
	}))
	client := newTestClient(t, testConfig(server.URL))

	var last CompletionChunk
	resp, err := client.Completions().Create(CompletionRequest{
		Prompt:   "hi",
		OnUpdate: func(c CompletionChunk) { last = c },
	})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, resp.Status)
	assert.Equal(t, "Execution failed", resp.Content)
	assert.True(t, last.Finished)
	assert.Equal(t, "Execution failed", last.Delta)
}

func TestCompletionsTimeout(t *testing.T) {
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/agent/execute" {
			_, _ = w.Write([]byte(`{"id":"ex-4","status":"pending"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"ex-4","status":"running"}`))
	}))
	client := newTestClient(t, testConfig(server.URL))
	completions := client.Completions()
	completions.initialPoll = 5 * time.Millisecond

	_, err := completions.Create(CompletionRequest{Prompt: "hi", Timeout: 30 * time.Millisecond})
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "last status: running")
}

func TestCompletionsPollErrorEmitsErrorChunk(t *testing.T) {
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/agent/execute" {
			_, _ = w.Write([]byte(`{"id":"ex-5","status":"pending"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"execution not found"}`))
	}))
	client := newTestClient(t, testConfig(server.URL))

	var chunks []CompletionChunk
	_, err := client.Completions().Create(CompletionRequest{
		Prompt:   "hi",
		OnUpdate: func(c CompletionChunk) { chunks = append(chunks, c) },
	})
	assert.ErrorIs(t, err, ErrNotFound)
	require.Len(t, chunks, 1)
	assert.Equal(t, JobStatus("error"), chunks[0].Status)
	assert.True(t, chunks[0].Finished)
}

func TestCompletionsValidation(t *testing.T) {
	handler := &scriptedHandler{script: []scriptedResponse{{status: http.StatusOK, body: `{}`}}}
	server := newTestServer(t, handler)
	client := newTestClient(t, testConfig(server.URL))

	_, err := client.Completions().Create(CompletionRequest{Prompt: "   "})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = client.Completions().Create(CompletionRequest{Prompt: "hi", FileURLs: []string{"file:///etc/passwd"}})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, handler.Calls())
}

func TestCompletionsUploadWithoutPublicURL(t *testing.T) {
	var executed atomic.Bool
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/agent/execute" {
			executed.Store(true)
		}
		_, _ = w.Write([]byte(`{"id":"file-1","filename":"a.pdf"}`))
	}))
	client := newTestClient(t, testConfig(server.URL))

	_, err := client.Completions().Create(CompletionRequest{
		Prompt: "hi",
		Files:  []FileUpload{FileFromBytes("a.pdf", []byte("%PDF-1.7"))},
	})
	assert.ErrorIs(t, err, ErrAPI)
	assert.Contains(t, err.Error(), "file-1")
	assert.False(t, executed.Load())
}
