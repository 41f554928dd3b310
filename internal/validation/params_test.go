package validation

import (
	"strings"
	"testing"
)

func TestAssertNoReservedFields(t *testing.T) {
	bad := map[string]any{
		"properties": map[string]any{
			"aoi": map[string]any{"type": "object"},
		},
	}
	if err := AssertNoReservedFields(bad); err == nil {
		t.Error("expected error for schema declaring reserved field aoi")
	}

	ok := map[string]any{
		"properties": map[string]any{
			"id": map[string]any{"type": "integer", "title": "ID"},
		},
	}
	if err := AssertNoReservedFields(ok); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCompileSchemaAndValidate(t *testing.T) {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id": map[string]any{"type": "integer", "title": "ID"},
		},
		"required": []any{"id"},
	}
	compiled, err := CompileSchema("test_plugin", schema)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if err := compiled.Validate([]byte(`{"id": 1}`)); err != nil {
		t.Errorf("expected valid params to pass, got %v", err)
	}

	err = compiled.Validate([]byte(`{"id": "abc"}`))
	if err == nil {
		t.Fatal("expected validation error for string id")
	}
	if !strings.Contains(err.Error(), "ID") || !strings.Contains(err.Error(), "abc") {
		t.Errorf("expected message to name the field title and offending value, got %q", err.Error())
	}
}
