package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/GIScience/climatoology-go/internal/model"
	"github.com/GIScience/climatoology-go/internal/operator"
)

// echoParams is the reference operator's parameter type: one string
// the computation echoes back into a markdown artifact, enough to
// exercise the full worker lifecycle without a real spatial analysis.
type echoParams struct {
	Message string `json:"message"`
}

const echoSchemaJSON = `{
	"type": "object",
	"properties": {
		"message": {"type": "string", "title": "Message", "minLength": 1}
	},
	"required": ["message"],
	"additionalProperties": false
}`

// echoOperator is the reference plugin bound by cmd/worker: it proves
// out the full dispatch-validate-compute-upload cycle end to end.
// Real plugins implement operator.Operator[P] the same way, swapping
// Compute for their own analysis.
type echoOperator struct {
	compiled *jsonschema.Schema
	raw      map[string]any
}

func newEchoOperator() (*echoOperator, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(echoSchemaJSON), &raw); err != nil {
		return nil, fmt.Errorf("parse embedded echo schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("echo.json", strings.NewReader(echoSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add echo schema resource: %w", err)
	}
	compiled, err := compiler.Compile("echo.json")
	if err != nil {
		return nil, fmt.Errorf("compile echo schema: %w", err)
	}
	return &echoOperator{compiled: compiled, raw: raw}, nil
}

func (o *echoOperator) Schema() *jsonschema.Schema {
	return o.compiled
}

func (o *echoOperator) RawSchema() map[string]any {
	return o.raw
}

func (o *echoOperator) Parse(raw json.RawMessage) (echoParams, error) {
	var p echoParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return echoParams{}, err
	}
	return p, nil
}

func (o *echoOperator) Compute(scope *operator.Scope, aoi model.AOIFeature, params echoParams) ([]*model.Artifact, error) {
	content := fmt.Sprintf("# Echo\n\n%s\n\nAOI: %s\n", params.Message, aoi.Properties.Name)
	path := filepath.Join(scope.ComputationDir, "echo.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write echo artifact: %w", err)
	}

	artifact := &model.Artifact{
		Name:     "Echo",
		Modality: model.ModalityMarkdown,
		Primary:  true,
		Tags:     map[string]struct{}{"echo": {}},
		Summary:  "Echoes the requested message back as markdown.",
		Filename: "echo.md",
	}
	return []*model.Artifact{artifact}, nil
}
