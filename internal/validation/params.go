// Package validation drives operator parameter validation against a
// plugin's JSON-schema and formats failures into a single
// human-readable message.
package validation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	climatoologyerrors "github.com/GIScience/climatoology-go/internal/errors"
)

// Schema wraps a compiled JSON-schema for a plugin's operator
// parameters, plus the schema-path -> title lookup used to produce
// pretty validation messages.
type Schema struct {
	compiled *jsonschema.Schema
	titles   map[string]string
}

// CompileSchema compiles a decoded JSON-schema document and extracts a
// field-name -> title map from each property's `title` keyword, used
// later by PrettyMessage.
func CompileSchema(name string, schemaJSON map[string]any) (*Schema, error) {
	raw, err := json.Marshal(schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(string(raw))); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	titles := map[string]string{}
	if props, ok := schemaJSON["properties"].(map[string]any); ok {
		for field, def := range props {
			if m, ok := def.(map[string]any); ok {
				if title, ok := m["title"].(string); ok {
					titles[field] = title
				}
			}
		}
	}

	return &Schema{compiled: compiled, titles: titles}, nil
}

// ForbiddenFields are reserved parameter names the operator's schema
// must never declare.
var ForbiddenFields = []string{"aoi", "aoi_properties"}

// AssertNoReservedFields refuses a schema that names aoi or
// aoi_properties as a top-level property.
func AssertNoReservedFields(schemaJSON map[string]any) error {
	props, ok := schemaJSON["properties"].(map[string]any)
	if !ok {
		return nil
	}
	for _, reserved := range ForbiddenFields {
		if _, present := props[reserved]; present {
			return fmt.Errorf("operator parameter schema must not declare reserved field %q", reserved)
		}
	}
	return nil
}

// Validate checks raw parameters against the schema. On failure it
// returns an *errors.ClimatoologyError of KindInputValidation whose
// message is produced by PrettyMessage.
func (s *Schema) Validate(raw json.RawMessage) error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return climatoologyerrors.InputValidation(fmt.Sprintf("malformed JSON parameters: %v", err))
	}
	if err := s.compiled.Validate(v); err != nil {
		if verr, ok := err.(*jsonschema.ValidationError); ok {
			return climatoologyerrors.InputValidation(s.PrettyMessage(verr, v))
		}
		return climatoologyerrors.InputValidation(err.Error())
	}
	return nil
}

// PrettyMessage renders a jsonschema.ValidationError as one line per
// leaf error, "<titles>: <reason>. You provided: <value>.", joined
// by newlines. instance is the decoded value Validate was called
// with; jsonschema/v5's ValidationError carries no accessor for the
// offending value itself, only its InstanceLocation pointer, so the
// value is recovered by walking that pointer back into instance.
// Grounded on the original's create_pretty_validation_message: the
// field-title lookup silently falls back to the raw field name.
func (s *Schema) PrettyMessage(verr *jsonschema.ValidationError, instance any) string {
	leaves := flattenLeaves(verr, instance)
	lines := make([]string, 0, len(leaves))
	for _, leaf := range leaves {
		prefix := s.titlePrefix(leaf.fields)
		if leaf.hasValue {
			lines = append(lines, fmt.Sprintf("%s%s. You provided: %v.", prefix, leaf.reason, leaf.value))
		} else {
			lines = append(lines, fmt.Sprintf("%s%s.", prefix, leaf.reason))
		}
	}
	return strings.Join(lines, "\n")
}

type leafError struct {
	fields   []string
	reason   string
	value    any
	hasValue bool
}

// flattenLeaves walks a jsonschema.ValidationError tree and returns
// only the leaf causes, each carrying the JSON-pointer field segments
// that triggered it.
func flattenLeaves(verr *jsonschema.ValidationError, instance any) []leafError {
	if len(verr.Causes) == 0 {
		fields := pathSegments(verr.InstanceLocation)
		value, ok := valueAtPointer(instance, fields)
		return []leafError{{fields: fields, reason: verr.Message, value: value, hasValue: ok}}
	}
	var out []leafError
	for _, cause := range verr.Causes {
		out = append(out, flattenLeaves(cause, instance)...)
	}
	return out
}

func pathSegments(pointer string) []string {
	pointer = strings.TrimPrefix(pointer, "/")
	if pointer == "" {
		return nil
	}
	return strings.Split(pointer, "/")
}

// valueAtPointer walks fields (already-split JSON-pointer segments)
// into the decoded instance, returning the value found there and
// whether the walk succeeded. instance is whatever encoding/json
// produced for an `any`: map[string]any, []any, or a scalar.
func valueAtPointer(instance any, fields []string) (any, bool) {
	cur := instance
	for _, f := range fields {
		switch v := cur.(type) {
		case map[string]any:
			next, ok := v[f]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			idx, err := strconv.Atoi(f)
			if err != nil || idx < 0 || idx >= len(v) {
				return nil, false
			}
			cur = v[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

func (s *Schema) titlePrefix(fields []string) string {
	if len(fields) == 0 {
		return ""
	}
	titles := make([]string, 0, len(fields))
	for _, f := range fields {
		if title, ok := s.titles[f]; ok {
			titles = append(titles, title)
		} else {
			titles = append(titles, f)
		}
	}
	return strings.Join(titles, ",") + ": "
}
