package vlmrun

import (
	"context"
	"net/http"
	"strings"
)

// SkillsAPI lists, looks up, creates, versions and downloads skills.
type SkillsAPI struct {
	r *requestor
}

// SkillCreateRequest builds a skill from a prompt (with an optional schema),
// from a chat session, or from an uploaded skill zip.
type SkillCreateRequest struct {
	Prompt      string     `json:"prompt,omitempty"`
	JSONSchema  JSONSchema `json:"json_schema,omitempty"`
	SessionID   string     `json:"session_id,omitempty"`
	FileID      string     `json:"file_id,omitempty"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
}

// SkillUpdateRequest publishes a new version of a skill.
type SkillUpdateRequest struct {
	FileID      string `json:"file_id,omitempty"`
	Description string `json:"description,omitempty"`
}

// List returns every skill visible to the API key.
func (s *SkillsAPI) List() ([]SkillInfo, error) {
	return s.ListWithContext(context.Background())
}

// ListWithContext lists skills with a caller-supplied context.
func (s *SkillsAPI) ListWithContext(ctx context.Context) ([]SkillInfo, error) {
	var out []SkillInfo
	if err := s.r.doJSON(ctx, Request{Method: http.MethodGet, Path: "skills"}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Get fetches a skill by id.
func (s *SkillsAPI) Get(skillID string) (*SkillInfo, error) {
	return s.GetWithContext(context.Background(), skillID)
}

// GetWithContext fetches a skill with a caller-supplied context.
func (s *SkillsAPI) GetWithContext(ctx context.Context, skillID string) (*SkillInfo, error) {
	id, err := pathParam("skill_id", skillID)
	if err != nil {
		return nil, err
	}
	var out SkillInfo
	if err := s.r.doJSON(ctx, Request{Method: http.MethodGet, Path: "skills/" + id}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Lookup resolves a skill by name. An empty version selects the latest.
func (s *SkillsAPI) Lookup(name, version string) (*SkillInfo, error) {
	return s.LookupWithContext(context.Background(), name, version)
}

// LookupWithContext resolves a skill by name with a caller-supplied context.
func (s *SkillsAPI) LookupWithContext(ctx context.Context, name, version string) (*SkillInfo, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, newValidationError("skill name cannot be empty")
	}
	body := map[string]any{"name": name}
	if version != "" {
		body["version"] = version
	}
	var out SkillInfo
	if err := s.r.doJSON(ctx, Request{Method: http.MethodPost, Path: "skills/lookup", Body: body}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Create registers a new skill.
func (s *SkillsAPI) Create(req SkillCreateRequest) (*SkillInfo, error) {
	return s.CreateWithContext(context.Background(), req)
}

// CreateWithContext registers a skill with a caller-supplied context.
func (s *SkillsAPI) CreateWithContext(ctx context.Context, req SkillCreateRequest) (*SkillInfo, error) {
	if req.Prompt == "" && req.SessionID == "" && req.FileID == "" {
		return nil, newValidationError("skill requires one of prompt, session id or file id")
	}
	var out SkillInfo
	if err := s.r.doJSON(ctx, Request{Method: http.MethodPost, Path: "skills/create", Body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update creates a new version of an existing skill.
func (s *SkillsAPI) Update(skillID string, req SkillUpdateRequest) (*SkillInfo, error) {
	return s.UpdateWithContext(context.Background(), skillID, req)
}

// UpdateWithContext versions a skill with a caller-supplied context.
func (s *SkillsAPI) UpdateWithContext(ctx context.Context, skillID string, req SkillUpdateRequest) (*SkillInfo, error) {
	id, err := pathParam("skill_id", skillID)
	if err != nil {
		return nil, err
	}
	var out SkillInfo
	if err := s.r.doJSON(ctx, Request{Method: http.MethodPost, Path: "skills/" + id + "/update", Body: req}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Download returns a presigned URL for the skill zip.
func (s *SkillsAPI) Download(skillID string) (*SkillDownloadResponse, error) {
	return s.DownloadWithContext(context.Background(), skillID)
}

// DownloadWithContext returns the download URL with a caller-supplied context.
func (s *SkillsAPI) DownloadWithContext(ctx context.Context, skillID string) (*SkillDownloadResponse, error) {
	id, err := pathParam("skill_id", skillID)
	if err != nil {
		return nil, err
	}
	var out SkillDownloadResponse
	if err := s.r.doJSON(ctx, Request{Method: http.MethodGet, Path: "skills/" + id + "/download"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
