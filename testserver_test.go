package vlmrun

import (
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("unable to start test server listener: %v", err)
	}
	server := httptest.NewUnstartedServer(handler)
	server.Listener = ln
	server.Start()
	t.Cleanup(server.Close)
	return server
}

// testConfig is a ready-to-use config pointed at baseURL with instant retries.
func testConfig(baseURL string) Config {
	return Config{
		APIKey:               "test-key",
		BaseURL:              baseURL,
		Timeout:              2 * time.Second,
		MaxAttempts:          3,
		RetryInitialInterval: 0,
		RetryMaxInterval:     0,
		RetryMultiplier:      1,
		RetryJitter:          0,
		RequestIDHeader:      "X-Request-ID",
		AutoRequestID:        true,
		SkipHealthCheck:      true,
	}
}

func newTestRequestor(t *testing.T, cfg Config) *requestor {
	t.Helper()
	h := newHTTPClient(cfg, newAuth(cfg))
	t.Cleanup(h.close)
	return newRequestor(h)
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	client, err := NewClientWithConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

// scriptedHandler replies with the scripted responses in order and repeats
// the last one once the script runs out.
type scriptedResponse struct {
	status  int
	body    string
	headers map[string]string
}

type scriptedHandler struct {
	script []scriptedResponse
	calls  atomic.Int32
}

func (h *scriptedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := int(h.calls.Add(1)) - 1
	if n >= len(h.script) {
		n = len(h.script) - 1
	}
	resp := h.script[n]
	for k, v := range resp.headers {
		w.Header().Set(k, v)
	}
	if resp.body != "" && w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.status)
	_, _ = w.Write([]byte(resp.body))
}

func (h *scriptedHandler) Calls() int {
	return int(h.calls.Load())
}

// recorder collects strings observed by a handler.
type recorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *recorder) add(v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, v)
}

func (r *recorder) values() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}

func ptr[T any](v T) *T {
	return &v
}
