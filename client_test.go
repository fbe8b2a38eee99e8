package vlmrun

import (
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientHealthProbe(t *testing.T) {
	var paths recorder
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths.add(r.Method + " " + r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	cfg := testConfig(server.URL)
	cfg.SkipHealthCheck = false

	client, err := NewClientWithConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	assert.Equal(t, StateReady, client.State())
	assert.Equal(t, []string{"GET /health"}, paths.values())
}

func TestNewClientHealthProbeFailure(t *testing.T) {
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"Invalid API key"}`))
	}))
	cfg := testConfig(server.URL)
	cfg.SkipHealthCheck = false

	client, err := NewClientWithConfig(cfg)
	assert.Nil(t, client)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestNewClientSkipsProbe(t *testing.T) {
	handler := &scriptedHandler{script: []scriptedResponse{{status: http.StatusInternalServerError}}}
	server := newTestServer(t, handler)

	client := newTestClient(t, testConfig(server.URL))
	assert.Equal(t, StateReady, client.State())
	assert.Zero(t, handler.Calls())
}

func TestNewClientRejectsInvalidConfig(t *testing.T) {
	_, err := NewClientWithConfig(Config{BaseURL: DefaultBaseURL, MaxAttempts: 1, RetryMultiplier: 1})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestClientStateString(t *testing.T) {
	assert.Equal(t, "uninitialized", StateUninitialized.String())
	assert.Equal(t, "validating", StateValidating.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "failed-init", StateFailedInit.String())
	assert.Equal(t, "unknown", ClientState(42).String())
}

func TestClientFacadesAreBuiltOnce(t *testing.T) {
	server := newTestServer(t, http.HandlerFunc(http.NotFound))
	client := newTestClient(t, testConfig(server.URL))

	const workers = 16
	got := make([]*CompletionsAPI, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = client.Completions()
		}()
	}
	wg.Wait()
	for _, c := range got {
		assert.Same(t, got[0], c)
	}

	assert.Same(t, client.Predictions(), client.Image().PredictionsAPI)
	assert.Same(t, client.Document(), client.Document())
	assert.NotSame(t, client.Document(), client.Audio())
	assert.Same(t, client.Files(), client.Files())
	assert.Same(t, client.Hub(), client.Hub())
}

func TestClientCloseIsSafe(t *testing.T) {
	var nilClient *Client
	assert.NotPanics(t, nilClient.Close)

	server := newTestServer(t, http.HandlerFunc(http.NotFound))
	client, err := NewClientWithConfig(testConfig(server.URL))
	require.NoError(t, err)
	assert.NotPanics(t, client.Close)
	assert.NotPanics(t, client.Close)
}
