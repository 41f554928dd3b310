package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/GIScience/climatoology-go/internal/model"
	"github.com/GIScience/climatoology-go/internal/operator"
	"github.com/GIScience/climatoology-go/internal/store"
	"github.com/GIScience/climatoology-go/internal/validation"
)

type fakeParams struct {
	Threshold float64 `json:"threshold"`
}

type testOperator struct {
	artifacts []*model.Artifact
	err       error
}

func (o testOperator) Schema() *jsonschema.Schema { return nil }

func (o testOperator) RawSchema() map[string]any {
	return map[string]any{"properties": map[string]any{"threshold": map[string]any{"type": "number"}}}
}

func (o testOperator) Parse(raw json.RawMessage) (fakeParams, error) {
	var p fakeParams
	err := json.Unmarshal(raw, &p)
	return p, err
}

func (o testOperator) Compute(scope *operator.Scope, aoi model.AOIFeature, params fakeParams) ([]*model.Artifact, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.artifacts, nil
}

type fakeComputationStore struct {
	validatedParams json.RawMessage
	success         *store.SuccessfulComputation
	failMessage     *string
	failCached      bool
	revoked         bool
}

func (f *fakeComputationStore) AddValidatedParams(_ context.Context, _ uuid.UUID, params json.RawMessage) error {
	f.validatedParams = params
	return nil
}

func (f *fakeComputationStore) UpdateSuccessfulComputation(_ context.Context, info store.SuccessfulComputation, _ bool) error {
	f.success = &info
	return nil
}

func (f *fakeComputationStore) UpdateFailedComputation(_ context.Context, _ uuid.UUID, message *string, cache bool) error {
	f.failMessage = message
	f.failCached = cache
	return nil
}

func (f *fakeComputationStore) UpdateRevokedComputation(_ context.Context, _ uuid.UUID) error {
	f.revoked = true
	return nil
}

type fakeObjectStore struct {
	saved []model.Artifact
	err   error
}

func (f *fakeObjectStore) Save(_ context.Context, artifact model.Artifact, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, artifact)
	return nil
}

func schemaForTest(t *testing.T) *validation.Schema {
	t.Helper()
	s, err := validation.CompileSchema("test", map[string]any{
		"type":       "object",
		"properties": map[string]any{"threshold": map[string]any{"type": "number"}},
	})
	if err != nil {
		t.Fatalf("compile schema: %v", err)
	}
	return s
}

func TestRunSavesArtifactsAndFinalizesSuccess(t *testing.T) {
	compStore := &fakeComputationStore{}
	objects := &fakeObjectStore{}
	r := &Runner[fakeParams]{
		Operator: testOperator{artifacts: []*model.Artifact{
			{Name: "Result", Filename: "result.json", Modality: model.ModalityTable},
		}},
		Schema:  schemaForTest(t),
		Store:   compStore,
		Objects: objects,
		Log:     zerolog.Nop(),
	}

	taskID := uuid.New()
	err := r.Run(context.Background(), taskID, model.AOIFeature{}, json.RawMessage(`{"threshold": 1.5}`))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if compStore.success == nil {
		t.Fatal("expected UpdateSuccessfulComputation to be called")
	}
	// result.json + computation_info.json
	if len(compStore.success.Artifacts) != 2 {
		t.Errorf("expected 2 artifacts (result + computation info), got %d", len(compStore.success.Artifacts))
	}
	if compStore.success.Artifacts[0].Rank != 0 {
		t.Errorf("first artifact rank = %d, want 0", compStore.success.Artifacts[0].Rank)
	}
}

func TestRunRejectsInvalidParams(t *testing.T) {
	compStore := &fakeComputationStore{}
	r := &Runner[fakeParams]{
		Operator: testOperator{},
		Schema:   schemaForTest(t),
		Store:    compStore,
		Objects:  &fakeObjectStore{},
		Log:      zerolog.Nop(),
	}

	err := r.Run(context.Background(), uuid.New(), model.AOIFeature{}, json.RawMessage(`{"threshold": "not-a-number"}`))
	if err == nil {
		t.Fatal("expected schema validation failure")
	}
	if compStore.failMessage == nil || !compStore.failCached {
		t.Error("expected a cached failure for input validation errors")
	}
}

func TestRunFinalizesRevokedOnCancelledContext(t *testing.T) {
	compStore := &fakeComputationStore{}
	r := &Runner[fakeParams]{
		Operator: testOperator{artifacts: []*model.Artifact{{Name: "x", Filename: "x.json"}}},
		Schema:   schemaForTest(t),
		Store:    compStore,
		Objects:  &fakeObjectStore{},
		Log:      zerolog.Nop(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Run(ctx, uuid.New(), model.AOIFeature{}, json.RawMessage(`{"threshold": 1}`))
	if err == nil {
		t.Fatal("expected an error for a cancelled task context")
	}
	if !compStore.revoked {
		t.Error("expected UpdateRevokedComputation to be called")
	}
}

func TestRunPropagatesOperatorFailure(t *testing.T) {
	compStore := &fakeComputationStore{}
	r := &Runner[fakeParams]{
		Operator: testOperator{err: errors.New("boom")},
		Schema:   schemaForTest(t),
		Store:    compStore,
		Objects:  &fakeObjectStore{},
		Log:      zerolog.Nop(),
	}

	err := r.Run(context.Background(), uuid.New(), model.AOIFeature{}, json.RawMessage(`{"threshold": 1}`))
	if err == nil {
		t.Fatal("expected operator failure to propagate")
	}
	if compStore.failMessage == nil {
		t.Error("expected a failure message to be persisted")
	}
	if compStore.failCached {
		t.Error("operator failures other than input validation must not be cached")
	}
}
