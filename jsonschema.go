package vlmrun

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3gen"
)

// JSONSchema is a JSON schema document in its decoded form.
type JSONSchema map[string]any

// SchemaFor generates a JSON schema describing the Go type of v. v may be a
// value, a pointer, or a reflect.Type.
func SchemaFor(v any) (JSONSchema, error) {
	switch t := v.(type) {
	case nil:
		return nil, newValidationError("cannot derive a schema from nil")
	case JSONSchema:
		return t, nil
	case reflect.Type:
		v = reflect.New(t).Elem().Interface()
	}

	ref, err := openapi3gen.NewSchemaRefForValue(v, nil)
	if err != nil {
		return nil, newError(KindValidation, fmt.Sprintf("generate schema for %T: %v", v, err), err)
	}
	data, err := json.Marshal(ref.Value)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var out JSONSchema
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	return out, nil
}

// Validate checks a decoded JSON value (maps, slices, float64, ...) against the schema.
func (s JSONSchema) Validate(value any) error {
	schema, err := s.compile()
	if err != nil {
		return err
	}
	if err := schema.VisitJSON(value, openapi3.MultiErrors()); err != nil {
		e := newError(KindValidation, fmt.Sprintf("payload does not match schema: %v", err), err)
		return e
	}
	return nil
}

func (s JSONSchema) compile() (*openapi3.Schema, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, newError(KindValidation, fmt.Sprintf("encode json schema: %v", err), err)
	}
	schema := openapi3.NewSchema()
	if err := schema.UnmarshalJSON(data); err != nil {
		return nil, newError(KindValidation, fmt.Sprintf("parse json schema: %v", err), err)
	}
	return schema, nil
}

// declares reports whether the schema lists field as a top-level property.
func (s JSONSchema) declares(field string) bool {
	props, ok := s["properties"].(map[string]any)
	if !ok {
		return false
	}
	_, ok = props[field]
	return ok
}
