package sender

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/GIScience/climatoology-go/internal/model"
)

type fakeInfoStore struct {
	info model.PluginInfo
	err  error
}

func (f fakeInfoStore) ReadInfo(_ context.Context, id string, v *string) (model.PluginInfo, error) {
	if f.err != nil {
		return model.PluginInfo{}, f.err
	}
	return f.info, nil
}

type fakeComputationStore struct {
	registerUUID uuid.UUID
	registerErr  error
	computation  model.Computation
}

func (f *fakeComputationStore) RegisterComputation(_ context.Context, correlationUUID uuid.UUID,
	_ json.RawMessage, _ model.AOIFeature, _ string, _ *int64, _ time.Time) (uuid.UUID, error) {
	if f.registerErr != nil {
		return uuid.Nil, f.registerErr
	}
	if f.registerUUID != uuid.Nil {
		return f.registerUUID, nil
	}
	return correlationUUID, nil
}

func (f *fakeComputationStore) ReadComputation(_ context.Context, correlationUUID uuid.UUID) (model.Computation, error) {
	f.computation.CorrelationUUID = correlationUUID
	return f.computation, nil
}

type fakeDispatcher struct {
	dispatched   bool
	dispatchErr  error
	activeWorkers map[string]struct{}
}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ string, _ uuid.UUID, _ model.AOIFeature,
	_ json.RawMessage, _, _ *time.Duration) error {
	f.dispatched = true
	return f.dispatchErr
}

func (f *fakeDispatcher) ListActiveWorkers(_ context.Context, _ time.Duration) (map[string]struct{}, error) {
	return f.activeWorkers, nil
}

func testInfo(t *testing.T, shelfLife *time.Duration) model.PluginInfo {
	t.Helper()
	return model.PluginInfo{
		ID:                   "heat_exposure",
		Version:              semver.MustParse("1.0.0"),
		LibraryVersion:       semver.MustParse("1.0.0"),
		ComputationShelfLife: shelfLife,
	}
}

func TestSendComputeDispatchesOriginator(t *testing.T) {
	infoStore := fakeInfoStore{info: testInfo(t, nil)}
	compStore := &fakeComputationStore{}
	dispatcher := &fakeDispatcher{}
	s := New(infoStore, compStore, dispatcher, nil)

	correlationUUID := uuid.New()
	handle, err := s.SendCompute(context.Background(), SendComputeRequest{
		PluginID:        "heat_exposure",
		AOI:             model.AOIFeature{},
		Params:          json.RawMessage(`{}`),
		CorrelationUUID: correlationUUID,
	})
	if err != nil {
		t.Fatalf("SendCompute: %v", err)
	}
	if handle.CorrelationUUID != correlationUUID {
		t.Errorf("expected originator handle to carry its own correlation uuid")
	}
	if !dispatcher.dispatched {
		t.Error("expected originator to dispatch a compute task")
	}
}

func TestSendComputeAliasesExistingComputation(t *testing.T) {
	existing := uuid.New()
	infoStore := fakeInfoStore{info: testInfo(t, nil)}
	compStore := &fakeComputationStore{registerUUID: existing}
	dispatcher := &fakeDispatcher{}
	s := New(infoStore, compStore, dispatcher, nil)

	handle, err := s.SendCompute(context.Background(), SendComputeRequest{
		PluginID:        "heat_exposure",
		CorrelationUUID: uuid.New(),
		Params:          json.RawMessage(`{}`),
	})
	if err != nil {
		t.Fatalf("SendCompute: %v", err)
	}
	if handle.CorrelationUUID != existing {
		t.Errorf("expected alias handle to carry the canonical uuid %s, got %s", existing, handle.CorrelationUUID)
	}
	if dispatcher.dispatched {
		t.Error("expected an aliasing caller not to dispatch a new compute task")
	}
}

func TestEffectiveShelfLife(t *testing.T) {
	pluginDefault := 2 * time.Hour
	if got := effectiveShelfLife(&pluginDefault, CacheForever); got != nil {
		t.Errorf("CacheForever should yield unbounded shelf life, got %v", got)
	}
	if got := effectiveShelfLife(&pluginDefault, CacheNever); got == nil || *got != 0 {
		t.Errorf("CacheNever should yield zero shelf life, got %v", got)
	}
	if got := effectiveShelfLife(&pluginDefault, CacheDefault); got != &pluginDefault {
		t.Errorf("CacheDefault should pass through the plugin default")
	}
}

func TestRequestInfoRejectsIncompatibleLibraryVersion(t *testing.T) {
	infoStore := fakeInfoStore{info: testInfo(t, nil)}
	infoStore.info.LibraryVersion = semver.MustParse("2.0.0")
	s := New(infoStore, &fakeComputationStore{}, &fakeDispatcher{}, nil)
	s.AssertLibraryVersion = true
	s.LocalLibraryVersion = "1.0.0"

	if _, err := s.RequestInfo(context.Background(), "heat_exposure", nil); err == nil {
		t.Fatal("expected VersionMismatch for incompatible library_version")
	}
}

func TestResultTimesOutWhileNonTerminal(t *testing.T) {
	compStore := &fakeComputationStore{computation: model.Computation{Status: model.StatePending}}
	h := &ComputationHandle{CorrelationUUID: uuid.New(), computations: compStore}

	_, err := h.Result(context.Background(), 50*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error for a computation that never reaches a terminal state")
	}
}

func TestResultReturnsOnTerminalState(t *testing.T) {
	compStore := &fakeComputationStore{computation: model.Computation{Status: model.StateSuccess}}
	h := &ComputationHandle{CorrelationUUID: uuid.New(), computations: compStore}

	c, err := h.Result(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if c.Status != model.StateSuccess {
		t.Errorf("Status = %v, want success", c.Status)
	}
}
