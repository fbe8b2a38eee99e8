package vlmrun

import (
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestSkillsRoutes(t *testing.T) {
	server := newTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		switch r.Method + " " + r.URL.Path {
		case "GET /skills":
			_, _ = w.Write([]byte(`[{"id":"sk-1","name":"invoice","version":"2"},{"id":"sk-2","name":"receipt"}]`))
		case "GET /skills/sk-1":
			_, _ = w.Write([]byte(`{"id":"sk-1","name":"invoice","version":"2","created_at":"2025-01-02T03:04:05"}`))
		case "POST /skills/lookup":
			assert.Equal(t, "invoice", gjson.GetBytes(body, "name").String())
			version := gjson.GetBytes(body, "version")
			_, _ = w.Write([]byte(`{"id":"sk-1","name":"invoice","version":"` + lookupVersion(version) + `"}`))
		case "POST /skills/create":
			assert.JSONEq(t, `{"prompt":"Extract invoice totals","json_schema":{"type":"object"}}`, string(body))
			_, _ = w.Write([]byte(`{"id":"sk-3","name":"invoice-totals","version":"1","json_schema":{"type":"object"}}`))
		case "POST /skills/sk-1/update":
			assert.JSONEq(t, `{"file_id":"file-9","description":"v3"}`, string(body))
			_, _ = w.Write([]byte(`{"id":"sk-1","name":"invoice","version":"3","description":"v3"}`))
		case "GET /skills/sk-1/download":
			_, _ = w.Write([]byte(`{"id":"sk-1","download_url":"https://files.test/sk-1.zip?sig=x","expires_in":3600}`))
		default:
			http.NotFound(w, r)
		}
	}))
	skills := newTestClient(t, testConfig(server.URL)).Skills()

	all, err := skills.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "receipt", all[1].Name)

	got, err := skills.Get("sk-1")
	require.NoError(t, err)
	assert.Equal(t, "2", got.Version)
	require.NotNil(t, got.CreatedAt)
	assert.Equal(t, 2025, got.CreatedAt.Year())

	latest, err := skills.Lookup("invoice", "")
	require.NoError(t, err)
	assert.Equal(t, "latest", latest.Version)
	pinned, err := skills.Lookup("invoice", "1")
	require.NoError(t, err)
	assert.Equal(t, "1", pinned.Version)

	created, err := skills.Create(SkillCreateRequest{Prompt: "Extract invoice totals", JSONSchema: JSONSchema{"type": "object"}})
	require.NoError(t, err)
	assert.Equal(t, "sk-3", created.ID)
	assert.Equal(t, "object", created.JSONSchema["type"])

	updated, err := skills.Update("sk-1", SkillUpdateRequest{FileID: "file-9", Description: "v3"})
	require.NoError(t, err)
	assert.Equal(t, "3", updated.Version)

	dl, err := skills.Download("sk-1")
	require.NoError(t, err)
	assert.Equal(t, "https://files.test/sk-1.zip?sig=x", dl.DownloadURL)
	assert.Equal(t, 3600, dl.ExpiresIn)

	_, err = skills.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func lookupVersion(v gjson.Result) string {
	if !v.Exists() {
		return "latest"
	}
	return v.String()
}

func TestSkillsRejectBadInputsLocally(t *testing.T) {
	handler := &scriptedHandler{script: []scriptedResponse{{status: http.StatusOK, body: `{}`}}}
	server := newTestServer(t, handler)
	skills := newTestClient(t, testConfig(server.URL)).Skills()

	_, err := skills.Get("")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = skills.Lookup("  ", "1")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = skills.Create(SkillCreateRequest{Name: "only-a-name"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = skills.Update("", SkillUpdateRequest{Description: "x"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = skills.Download("")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, handler.Calls())
}

func TestSkillsListRejectsNonList(t *testing.T) {
	handler := &scriptedHandler{script: []scriptedResponse{{status: http.StatusOK, body: `{"skills":[]}`}}}
	server := newTestServer(t, handler)

	_, err := newTestClient(t, testConfig(server.URL)).Skills().List()
	assert.ErrorIs(t, err, ErrDecode)
}
