package vlmrun

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Category is the closed set of domain categories a prediction belongs to.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryDocument Category = "document"
	CategoryVideo    Category = "video"
	CategoryAudio    Category = "audio"
)

// Categories lists every supported category.
var Categories = []Category{CategoryImage, CategoryDocument, CategoryVideo, CategoryAudio}

func (c Category) Valid() bool {
	switch c {
	case CategoryImage, CategoryDocument, CategoryVideo, CategoryAudio:
		return true
	default:
		return false
	}
}

// ParseCategory converts s into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", newValidationError("unknown category %q", s)
	}
	return c, nil
}

// categoryFromDomain derives the category from a domain such as "document.invoice".
func categoryFromDomain(domain string) Category {
	prefix, _, _ := strings.Cut(domain, ".")
	c := Category(prefix)
	if c.Valid() {
		return c
	}
	return ""
}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// castResult turns a raw result payload into the shape described by target.
// target may be nil (raw passthrough), a JSONSchema, a reflect.Type, or a
// value/pointer whose type is instantiated. raw is never modified.
func castResult(category Category, raw json.RawMessage, target any) (any, error) {
	if target == nil {
		return cloneRaw(raw), nil
	}
	if isNullJSON(raw) {
		return nil, newValidationError("no result payload to cast")
	}

	switch t := target.(type) {
	case JSONSchema:
		normalized, err := normalizeForCategory(category, raw, t.declares)
		if err != nil {
			return nil, err
		}
		var value any
		if err := json.Unmarshal(normalized, &value); err != nil {
			return nil, newError(KindValidation, fmt.Sprintf("result is not valid JSON: %v", err), err)
		}
		if err := t.Validate(value); err != nil {
			return nil, err
		}
		return value, nil
	case reflect.Type:
		return castInto(category, raw, t)
	default:
		typ := reflect.TypeOf(target)
		for typ.Kind() == reflect.Pointer {
			typ = typ.Elem()
		}
		return castInto(category, raw, typ)
	}
}

// castInto decodes raw into a freshly allocated *typ and validates struct tags.
func castInto(category Category, raw json.RawMessage, typ reflect.Type) (any, error) {
	normalized, err := normalizeForCategory(category, raw, func(field string) bool {
		return typeDeclaresField(typ, field)
	})
	if err != nil {
		return nil, err
	}

	ptr := reflect.New(typ)
	if err := json.Unmarshal(normalized, ptr.Interface()); err != nil {
		return nil, newError(KindValidation, fmt.Sprintf("result does not match %s: %v", typ, err), err)
	}

	target := ptr.Elem()
	for target.Kind() == reflect.Pointer && !target.IsNil() {
		target = target.Elem()
	}
	if target.Kind() == reflect.Struct {
		if err := structValidator.Struct(target.Interface()); err != nil {
			return nil, validationFailure(typ, err)
		}
	}
	return ptr.Interface(), nil
}

func validationFailure(typ reflect.Type, err error) *Error {
	e := newError(KindValidation, fmt.Sprintf("result does not satisfy %s: %v", typ, err), err)
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		fields := make(map[string]any, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fe.Namespace()] = fe.Tag()
		}
		e.Details = map[string]any{"fields": fields}
	}
	return e
}

// Cast decodes the prediction's raw result into T. The prediction is not modified.
func Cast[T any](p *PredictionResponse) (T, error) {
	var zero T
	if p == nil {
		return zero, newValidationError("cannot cast a nil prediction")
	}
	if isNullJSON(p.Response) {
		return zero, newValidationError("prediction %s has no result to cast", p.ID)
	}
	v, err := castInto(p.Category(), p.Response, reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	return *(v.(*T)), nil
}

// CastJSON decodes an arbitrary raw result into T without category normalisation.
func CastJSON[T any](raw json.RawMessage) (T, error) {
	var zero T
	if isNullJSON(raw) {
		return zero, newValidationError("no result payload to cast")
	}
	v, err := castInto("", raw, reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	return *(v.(*T)), nil
}

// normalizeForCategory applies category-specific reshaping to a copy of raw.
func normalizeForCategory(category Category, raw json.RawMessage, declares func(string) bool) ([]byte, error) {
	switch category {
	case CategoryDocument:
		return flattenPages(raw, declares)
	case CategoryImage, CategoryVideo, CategoryAudio, "":
		return cloneRaw(raw), nil
	default:
		return nil, newValidationError("unknown category %q", category)
	}
}

// flattenPages merges a page-structured document result into one record.
// Scalars keep the first non-null value seen, arrays are concatenated in page
// order. Targets that declare a "pages" field receive the payload unchanged.
func flattenPages(raw json.RawMessage, declares func(string) bool) ([]byte, error) {
	parsed := gjson.ParseBytes(raw)
	pages := parsed.Get("pages")
	if !parsed.IsObject() || !pages.IsArray() || declares("pages") {
		return cloneRaw(raw), nil
	}

	out := "{}"
	var setErr error
	set := func(path, value string) {
		if setErr != nil {
			return
		}
		out, setErr = sjson.SetRaw(out, path, value)
	}

	parsed.ForEach(func(key, value gjson.Result) bool {
		if key.String() != "pages" {
			set(escapePathKey(key.String()), value.Raw)
		}
		return setErr == nil
	})

	pages.ForEach(func(_, page gjson.Result) bool {
		if !page.IsObject() {
			return true
		}
		page.ForEach(func(key, value gjson.Result) bool {
			path := escapePathKey(key.String())
			existing := gjson.Get(out, path)
			switch {
			case !existing.Exists() || existing.Type == gjson.Null:
				set(path, value.Raw)
			case existing.IsArray() && value.IsArray():
				value.ForEach(func(_, item gjson.Result) bool {
					set(path+".-1", item.Raw)
					return setErr == nil
				})
			}
			return setErr == nil
		})
		return setErr == nil
	})
	if setErr != nil {
		return nil, newError(KindValidation, fmt.Sprintf("flatten document pages: %v", setErr), setErr)
	}
	return []byte(out), nil
}

var pathEscaper = strings.NewReplacer(
	`\`, `\\`, `.`, `\.`, `*`, `\*`, `?`, `\?`, `|`, `\|`, `#`, `\#`, `@`, `\@`, `!`, `\!`,
)

func escapePathKey(key string) string {
	return pathEscaper.Replace(key)
}

// typeDeclaresField reports whether typ decodes a JSON field named field.
func typeDeclaresField(typ reflect.Type, field string) bool {
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if f.Anonymous && name == "" {
			if typeDeclaresField(f.Type, field) {
				return true
			}
			continue
		}
		if name == "" {
			name = f.Name
		}
		if strings.EqualFold(name, field) {
			return true
		}
	}
	return false
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), bytes.TrimSpace(raw)...)
}
