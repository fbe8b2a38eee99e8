package vlmrun

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Timestamp accepts RFC 3339 values as well as the zone-less ISO 8601 forms
// the API emits.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("parse timestamp %q", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// JobStatus is the lifecycle state of a prediction, execution or fine-tuning job.
type JobStatus string

const (
	StatusEnqueued  JobStatus = "enqueued"
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

func (s JobStatus) String() string {
	return string(s)
}

func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// CreditUsage reports credits consumed by a request.
type CreditUsage struct {
	ElementsProcessed *int   `json:"elements_processed,omitempty"`
	ElementType       string `json:"element_type,omitempty"`
	CreditsUsed       *int   `json:"credits_used,omitempty"`
}

// ErrorDetail is the failure payload of a failed job. The API sends either a
// bare string or an object.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
}

func (d *ErrorDetail) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &d.Message)
	}
	type alias ErrorDetail
	var a alias
	if err := json.Unmarshal(trimmed, &a); err != nil {
		return err
	}
	if a.Message == "" {
		var generic map[string]any
		if json.Unmarshal(trimmed, &generic) == nil {
			if s, ok := generic["detail"].(string); ok {
				a.Message = s
			}
		}
	}
	*d = ErrorDetail(a)
	return nil
}

func (d *ErrorDetail) String() string {
	if d == nil {
		return ""
	}
	if d.Type != "" {
		return d.Type + ": " + d.Message
	}
	return d.Message
}

// RequestMetadata is attached to generation requests.
type RequestMetadata struct {
	Environment   string `json:"environment,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
	AllowTraining *bool  `json:"allow_training,omitempty"`
}

// FileResponse describes an uploaded file.
type FileResponse struct {
	ID        string     `json:"id"`
	Filename  string     `json:"filename"`
	Bytes     int64      `json:"bytes"`
	Purpose   string     `json:"purpose"`
	CreatedAt *Timestamp `json:"created_at,omitempty"`
	Object    string     `json:"object,omitempty"`
	PublicURL string     `json:"public_url,omitempty"`
}

// ModelInfo is one model/domain pair served by the API.
type ModelInfo struct {
	Model  string `json:"model"`
	Domain string `json:"domain"`
}

// DatasetResponse describes a dataset.
type DatasetResponse struct {
	ID          string     `json:"id"`
	DatasetName string     `json:"dataset_name,omitempty"`
	DatasetType string     `json:"dataset_type,omitempty"`
	Domain      string     `json:"domain,omitempty"`
	FileID      string     `json:"file_id,omitempty"`
	DatasetURI  string     `json:"dataset_uri,omitempty"`
	Message     string     `json:"message,omitempty"`
	Status      JobStatus  `json:"status,omitempty"`
	CreatedAt   *Timestamp `json:"created_at,omitempty"`
	CompletedAt *Timestamp `json:"completed_at,omitempty"`
}

// UnmarshalJSON accepts "dataset_id" as an alias of "id".
func (d *DatasetResponse) UnmarshalJSON(data []byte) error {
	type alias DatasetResponse
	var a struct {
		alias
		DatasetID string `json:"dataset_id"`
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = a.DatasetID
	}
	*d = DatasetResponse(a.alias)
	return nil
}

// FinetuningRequest echoes the parameters a fine-tuning job was created with.
type FinetuningRequest struct {
	Model            string  `json:"model"`
	TrainingFileID   string  `json:"training_file_id"`
	ValidationFileID string  `json:"validation_file_id,omitempty"`
	NumEpochs        int     `json:"num_epochs,omitempty"`
	BatchSize        any     `json:"batch_size,omitempty"`
	LearningRate     float64 `json:"learning_rate,omitempty"`
	Suffix           string  `json:"suffix,omitempty"`
}

// FinetuningResponse describes a fine-tuning job.
type FinetuningResponse struct {
	ID          string             `json:"id"`
	CreatedAt   *Timestamp         `json:"created_at,omitempty"`
	CompletedAt *Timestamp         `json:"completed_at,omitempty"`
	Status      JobStatus          `json:"status"`
	Model       string             `json:"model"`
	Request     *FinetuningRequest `json:"request,omitempty"`
	Message     string             `json:"message,omitempty"`
	Usage       *CreditUsage       `json:"usage,omitempty"`
}

// FinetuningProvisionResponse describes a provisioned fine-tuned model.
type FinetuningProvisionResponse struct {
	ID          string     `json:"id,omitempty"`
	Model       string     `json:"model"`
	Status      JobStatus  `json:"status,omitempty"`
	Duration    int        `json:"duration,omitempty"`
	Concurrency int        `json:"concurrency,omitempty"`
	Message     string     `json:"message,omitempty"`
	CreatedAt   *Timestamp `json:"created_at,omitempty"`
}

// FeedbackSubmitResponse is the stored feedback for a prediction.
type FeedbackSubmitResponse struct {
	ID        string          `json:"id"`
	CreatedAt *Timestamp      `json:"created_at,omitempty"`
	RequestID string          `json:"request_id"`
	Response  json.RawMessage `json:"response,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	Flag      *bool           `json:"flag,omitempty"`
}

// HubInfoResponse reports hub health and version.
type HubInfoResponse struct {
	Status  string `json:"status,omitempty"`
	Version string `json:"hub_version"`
}

// HubSchemaResponse is the JSON schema registered for a domain.
type HubSchemaResponse struct {
	Domain        string     `json:"domain,omitempty"`
	JSONSchema    JSONSchema `json:"json_schema"`
	SchemaVersion string     `json:"schema_version"`
	SchemaHash    string     `json:"schema_hash"`
}

// UnmarshalJSON accepts the older "schema_json" field name.
func (h *HubSchemaResponse) UnmarshalJSON(data []byte) error {
	type alias HubSchemaResponse
	var a struct {
		alias
		SchemaJSON JSONSchema `json:"schema_json"`
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.JSONSchema == nil {
		a.JSONSchema = a.SchemaJSON
	}
	*h = HubSchemaResponse(a.alias)
	return nil
}

// AgentInfo describes a registered agent.
type AgentInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Prompt      string     `json:"prompt,omitempty"`
	JSONSchema  JSONSchema `json:"json_schema,omitempty"`
	CreatedAt   *Timestamp `json:"created_at,omitempty"`
	UpdatedAt   *Timestamp `json:"updated_at,omitempty"`
	Status      string     `json:"status,omitempty"`
}

// AgentCreationConfig is the configuration for a new agent.
type AgentCreationConfig struct {
	Prompt     string     `json:"prompt"`
	JSONSchema JSONSchema `json:"json_schema,omitempty"`
}

// AgentCreationResponse is returned when an agent is created.
type AgentCreationResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    JobStatus  `json:"status,omitempty"`
	CreatedAt *Timestamp `json:"created_at,omitempty"`
}

// AgentExecutionConfig overrides the agent's prompt or schema for one execution.
type AgentExecutionConfig struct {
	Prompt     string     `json:"prompt,omitempty"`
	JSONSchema JSONSchema `json:"json_schema,omitempty"`
}

// AgentExecutionResponse describes one agent execution.
type AgentExecutionResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name,omitempty"`
	CreatedAt   *Timestamp      `json:"created_at,omitempty"`
	CompletedAt *Timestamp      `json:"completed_at,omitempty"`
	Status      JobStatus       `json:"status"`
	Response    json.RawMessage `json:"response,omitempty"`
	Usage       *CreditUsage    `json:"usage,omitempty"`
}

// SkillInfo describes a reusable skill: a SKILL.md prompt with an optional schema.
type SkillInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Version     string     `json:"version,omitempty"`
	Description string     `json:"description,omitempty"`
	JSONSchema  JSONSchema `json:"json_schema,omitempty"`
	FileID      string     `json:"file_id,omitempty"`
	CreatedAt   *Timestamp `json:"created_at,omitempty"`
	UpdatedAt   *Timestamp `json:"updated_at,omitempty"`
}

// SkillDownloadResponse carries a presigned URL for a skill zip.
type SkillDownloadResponse struct {
	ID          string     `json:"id,omitempty"`
	DownloadURL string     `json:"download_url"`
	ExpiresAt   *Timestamp `json:"expires_at,omitempty"`
	ExpiresIn   int        `json:"expires_in,omitempty"`
}
