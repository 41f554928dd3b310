// Package operator defines the contract a plugin author implements:
// the operator. In a dynamic language this is a duck-typed object;
// here it is a generic
// interface over the plugin's typed parameter struct P, validated
// against a JSON-schema generated at plugin-build time.
package operator

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/GIScience/climatoology-go/internal/model"
)

// Operator is the plugin author's implementation of the compute
// contract for parameter type P.
type Operator[P any] interface {
	// Schema returns the compiled JSON-schema P must satisfy.
	Schema() *jsonschema.Schema

	// RawSchema returns the same schema as a JSON document, used to
	// populate PluginInfo.OperatorSchema and to extract field titles
	// for validation error messages.
	RawSchema() map[string]any

	// Parse decodes and validates raw JSON parameters into P. On
	// failure the caller is expected to wrap the error as
	// InputValidationError with the schema-driven pretty message.
	Parse(raw json.RawMessage) (P, error)

	// Compute runs the operator's computation inside scope, producing
	// the artifacts for one computation. A nil
	// element in the returned slice is dropped by the caller; an
	// empty/all-nil result is a contract violation.
	Compute(scope *Scope, aoi model.AOIFeature, params P) ([]*model.Artifact, error)
}

// ReservedFields are parameter names P's schema must never declare.
var ReservedFields = []string{"aoi", "aoi_properties"}
