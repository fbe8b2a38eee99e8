package vlmrun

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// HubAPI exposes the domain hub: health, domains and their schemas.
type HubAPI struct {
	r *requestor
}

// Health reports hub status and version.
func (h *HubAPI) Health() (*HubInfoResponse, error) {
	return h.HealthWithContext(context.Background())
}

// HealthWithContext reports hub status with a caller-supplied context.
func (h *HubAPI) HealthWithContext(ctx context.Context) (*HubInfoResponse, error) {
	var out HubInfoResponse
	if err := h.r.doJSON(ctx, Request{Method: http.MethodGet, Path: "hub/health"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Info is an alias of Health.
func (h *HubAPI) Info() (*HubInfoResponse, error) {
	return h.Health()
}

// ListDomains returns the domains the hub knows, e.g. "document.invoice".
func (h *HubAPI) ListDomains() ([]string, error) {
	return h.ListDomainsWithContext(context.Background())
}

// ListDomainsWithContext returns the hub domains with a caller-supplied context.
func (h *HubAPI) ListDomainsWithContext(ctx context.Context) ([]string, error) {
	resp, err := h.r.execute(ctx, Request{Method: http.MethodGet, Path: "hub/domains"})
	if err != nil {
		return nil, err
	}
	parsed := gjson.ParseBytes(resp.Body)
	list := parsed
	if parsed.IsObject() {
		list = parsed.Get("domains")
	}
	if !list.IsArray() {
		return nil, newDecodeError(resp.StatusCode, resp.Body, errors.New("expected a list of domains"))
	}
	var domains []string
	for _, item := range list.Array() {
		// Entries are either bare strings or {"domain": "..."} objects.
		name := item.String()
		if item.IsObject() {
			name = item.Get("domain").String()
		}
		if name != "" {
			domains = append(domains, name)
		}
	}
	return domains, nil
}

// GetSchema returns the JSON schema registered for domain.
func (h *HubAPI) GetSchema(domain string) (*HubSchemaResponse, error) {
	return h.GetSchemaWithContext(context.Background(), domain)
}

// GetSchemaWithContext returns a domain schema with a caller-supplied context.
func (h *HubAPI) GetSchemaWithContext(ctx context.Context, domain string) (*HubSchemaResponse, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return nil, newValidationError("domain cannot be empty")
	}
	var out HubSchemaResponse
	err := h.r.doJSON(ctx, Request{
		Method: http.MethodPost,
		Path:   "hub/schema",
		Body:   map[string]any{"domain": domain},
	}, &out)
	if err != nil {
		return nil, err
	}
	if out.Domain == "" {
		out.Domain = domain
	}
	return &out, nil
}
