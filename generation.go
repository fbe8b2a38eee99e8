package vlmrun

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Detail levels accepted by GenerationConfig.Detail.
const (
	DetailAuto = "auto"
	DetailLow  = "lo"
	DetailHigh = "hi"
)

// GenerationConfig carries the recognised generation options.
type GenerationConfig struct {
	// Prompt overrides the domain's default instruction.
	Prompt string
	// ResponseModel is the target the result is cast into: a struct value,
	// a pointer, a reflect.Type or a JSONSchema.
	ResponseModel any
	// JSONSchema overrides the schema derived from ResponseModel.
	JSONSchema  JSONSchema
	Temperature *float64
	MaxTokens   *int
	Detail      string
	Confidence  bool
	Grounding   bool
}

var generationConfigKeys = []string{
	"prompt", "response_model", "json_schema", "temperature", "max_tokens",
	"detail", "confidence", "grounding",
}

// ParseGenerationConfig builds a GenerationConfig from a loosely typed map,
// rejecting keys it does not recognise.
func ParseGenerationConfig(opts map[string]any) (GenerationConfig, error) {
	var cfg GenerationConfig
	unknown := lo.Filter(lo.Keys(opts), func(k string, _ int) bool {
		return !lo.Contains(generationConfigKeys, k)
	})
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return cfg, newValidationError("unknown generation config option(s): %s", strings.Join(unknown, ", "))
	}

	for key, val := range opts {
		var err error
		switch key {
		case "prompt":
			cfg.Prompt, err = asString(key, val)
		case "response_model":
			cfg.ResponseModel = val
		case "json_schema":
			cfg.JSONSchema, err = asSchema(val)
		case "temperature":
			var f float64
			f, err = asFloat(key, val)
			cfg.Temperature = &f
		case "max_tokens":
			var n int
			n, err = asInt(key, val)
			cfg.MaxTokens = &n
		case "detail":
			cfg.Detail, err = asString(key, val)
		case "confidence":
			cfg.Confidence, err = asBool(key, val)
		case "grounding":
			cfg.Grounding, err = asBool(key, val)
		}
		if err != nil {
			return GenerationConfig{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return GenerationConfig{}, err
	}
	return cfg, nil
}

// Validate checks option ranges.
func (c GenerationConfig) Validate() error {
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return newValidationError("temperature must be within [0, 2], got %v", *c.Temperature)
	}
	if c.MaxTokens != nil && *c.MaxTokens <= 0 {
		return newValidationError("max_tokens must be positive, got %d", *c.MaxTokens)
	}
	if c.Detail != "" && !lo.Contains([]string{DetailAuto, DetailLow, DetailHigh}, c.Detail) {
		return newValidationError("detail must be one of auto, lo, hi; got %q", c.Detail)
	}
	return nil
}

// castTarget is the value the result is cast into, if any.
func (c *GenerationConfig) castTarget() any {
	if c == nil {
		return nil
	}
	if c.ResponseModel != nil {
		return c.ResponseModel
	}
	if c.JSONSchema != nil {
		return c.JSONSchema
	}
	return nil
}

// payload renders the wire form of the config.
func (c *GenerationConfig) payload() (map[string]any, error) {
	if c == nil {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	out := map[string]any{
		"detail":     lo.CoalesceOrEmpty(c.Detail, DetailAuto),
		"confidence": c.Confidence,
		"grounding":  c.Grounding,
	}
	if c.Prompt != "" {
		out["prompt"] = c.Prompt
	}
	schema := c.JSONSchema
	if schema == nil && c.ResponseModel != nil {
		generated, err := SchemaFor(c.ResponseModel)
		if err != nil {
			return nil, err
		}
		schema = generated
	}
	if schema != nil {
		out["json_schema"] = schema
	}
	if c.Temperature != nil {
		out["temperature"] = *c.Temperature
	}
	if c.MaxTokens != nil {
		out["max_tokens"] = *c.MaxTokens
	}
	return out, nil
}

func asString(key string, v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", newValidationError("%s must be a string, got %T", key, v)
	}
	return s, nil
}

func asBool(key string, v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, newValidationError("%s must be a bool, got %T", key, v)
	}
	return b, nil
}

func asFloat(key string, v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	default:
		return 0, newValidationError("%s must be a number, got %T", key, v)
	}
}

func asInt(key string, v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, newValidationError("%s must be an integer, got %v", key, n)
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	default:
		return 0, newValidationError("%s must be an integer, got %T", key, v)
	}
}

func asSchema(v any) (JSONSchema, error) {
	switch s := v.(type) {
	case JSONSchema:
		return s, nil
	case map[string]any:
		return JSONSchema(s), nil
	case string:
		var out JSONSchema
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			return nil, newValidationError("json_schema is not valid JSON: %v", err)
		}
		return out, nil
	default:
		return nil, newValidationError("json_schema must be an object, got %s", fmt.Sprintf("%T", v))
	}
}
