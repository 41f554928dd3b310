package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/GIScience/climatoology-go/internal/events"
	"github.com/GIScience/climatoology-go/internal/model"
	"github.com/GIScience/climatoology-go/internal/sender"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeInfoStore struct {
	infos []model.PluginInfo
	info  model.PluginInfo
	err   error
}

func (f *fakeInfoStore) ListInfo(_ context.Context) ([]model.PluginInfo, error) {
	return f.infos, f.err
}

func (f *fakeInfoStore) ReadInfo(_ context.Context, _ string, _ *string) (model.PluginInfo, error) {
	if f.err != nil {
		return model.PluginInfo{}, f.err
	}
	return f.info, nil
}

type fakeComputationStore struct{}

func (f *fakeComputationStore) RegisterComputation(_ context.Context, correlationUUID uuid.UUID,
	_ json.RawMessage, _ model.AOIFeature, _ string, _ *int64, _ time.Time) (uuid.UUID, error) {
	return correlationUUID, nil
}

func (f *fakeComputationStore) ReadComputation(_ context.Context, correlationUUID uuid.UUID) (model.Computation, error) {
	return model.Computation{CorrelationUUID: correlationUUID, Status: model.StateSuccess}, nil
}

type fakeDispatcher struct{}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ string, _ uuid.UUID, _ model.AOIFeature,
	_ json.RawMessage, _, _ *time.Duration) error {
	return nil
}

func (f *fakeDispatcher) ListActiveWorkers(_ context.Context, _ time.Duration) (map[string]struct{}, error) {
	return map[string]struct{}{"heat_exposure": {}}, nil
}

func testHandler(t *testing.T, info *fakeInfoStore) (*Handler, *gin.Engine) {
	t.Helper()
	s := sender.New(info, &fakeComputationStore{}, &fakeDispatcher{}, nil)
	subscriber := events.NewSubscriber(nil, zerolog.Nop())
	h := New(s, info, nil, subscriber, zerolog.Nop())
	r := gin.New()
	h.Register(r)
	return h, r
}

func TestHealth(t *testing.T) {
	_, r := testHandler(t, &fakeInfoStore{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestListPlugins(t *testing.T) {
	info := &fakeInfoStore{infos: []model.PluginInfo{
		{ID: "heat_exposure", Version: semver.MustParse("1.0.0"), LibraryVersion: semver.MustParse("1.0.0")},
	}}
	_, r := testHandler(t, info)

	req := httptest.NewRequest(http.MethodGet, "/plugin", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got []model.PluginInfo
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 1 || got[0].ID != "heat_exposure" {
		t.Fatalf("got %+v", got)
	}
}

func TestGetPluginNotFound(t *testing.T) {
	info := &fakeInfoStore{err: errNotFound{}}
	_, r := testHandler(t, info)

	req := httptest.NewRequest(http.MethodGet, "/plugin/heat_exposure", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

type errNotFound struct{}

func (errNotFound) Error() string { return "not found" }

func TestPostComputeDispatches(t *testing.T) {
	info := &fakeInfoStore{info: model.PluginInfo{
		ID: "heat_exposure", Version: semver.MustParse("1.0.0"), LibraryVersion: semver.MustParse("1.0.0"),
	}}
	_, r := testHandler(t, info)

	body := `{"aoi":{"geometry":[],"properties":{"name":"test","id":"1"}},"params":{"threshold":1}}`
	req := httptest.NewRequest(http.MethodPost, "/plugin/heat_exposure", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", w.Code, w.Body.String())
	}
	var resp computeResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.PluginKey != "heat_exposure" {
		t.Fatalf("plugin_key = %q, want heat_exposure", resp.PluginKey)
	}
}

func TestPostComputeRejectsMissingBody(t *testing.T) {
	info := &fakeInfoStore{}
	_, r := testHandler(t, info)

	req := httptest.NewRequest(http.MethodPost, "/plugin/heat_exposure", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
