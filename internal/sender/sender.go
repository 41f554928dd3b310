// Package sender implements the client-facing API:
// atomically turning a user request into a running or cached
// computation and handing back a handle to watch it.
package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/GIScience/climatoology-go/internal/broker"
	"github.com/GIScience/climatoology-go/internal/cache"
	climatoologyerrors "github.com/GIScience/climatoology-go/internal/errors"
	"github.com/GIScience/climatoology-go/internal/events"
	"github.com/GIScience/climatoology-go/internal/model"
	"github.com/GIScience/climatoology-go/internal/version"

	"github.com/GIScience/climatoology-go/internal/cacheepoch"
)

// InfoStore and ComputationStore are the narrowed store dependencies
// Sender needs, kept as interfaces so tests can fake them without a
// live database.
type InfoStore interface {
	ReadInfo(ctx context.Context, id string, v *string) (model.PluginInfo, error)
}

type ComputationStore interface {
	RegisterComputation(ctx context.Context, correlationUUID uuid.UUID, requestedParams json.RawMessage,
		aoi model.AOIFeature, pluginKey string, cacheEpoch *int64, validUntil time.Time) (uuid.UUID, error)
	ReadComputation(ctx context.Context, correlationUUID uuid.UUID) (model.Computation, error)
}

// CacheMode overrides the plugin's default deduplication policy for a
// single send.
type CacheMode int

const (
	CacheDefault CacheMode = iota
	CacheForever
	CacheNever
)

// Dispatcher is the subset of broker.Dispatcher the sender needs,
// narrowed so tests can substitute a fake instead of a live NATS
// connection.
type Dispatcher interface {
	Dispatch(ctx context.Context, pluginKey string, taskID uuid.UUID, aoi model.AOIFeature,
		params json.RawMessage, taskTimeLimit, queueTTL *time.Duration) error
	ListActiveWorkers(ctx context.Context, window time.Duration) (map[string]struct{}, error)
}

// Sender is the shared handle a calling service holds to discover
// plugins and dispatch computations. Safe for concurrent use.
type Sender struct {
	info         InfoStore
	computations ComputationStore
	dispatcher   Dispatcher
	redis        *cache.Cache // optional, nil when CACHE_ENABLED is off

	// AssertLibraryVersion, when true, makes RequestInfo fail with
	// VersionMismatch for plugins incompatible with LocalLibraryVersion.
	AssertLibraryVersion bool
	LocalLibraryVersion  string

	mu          sync.Mutex
	listCache   map[string]struct{}
	listCacheAt time.Time
}

// ListActivePluginsTTL bounds how long ListActivePlugins trusts its
// in-process cache before re-querying the broker.
const ListActivePluginsTTL = 60 * time.Second

// New wires a Sender against an already-open store and broker
// dispatcher sharing one NATS connection. redisCache may be nil.
func New(info InfoStore, computations ComputationStore, dispatcher Dispatcher, redisCache *cache.Cache) *Sender {
	return &Sender{info: info, computations: computations, dispatcher: dispatcher, redis: redisCache}
}

const activePluginsCacheKey = "sender:active_plugins"

// ListActivePlugins returns the set of plugin ids currently answering
// the broker's discovery scatter-gather, backed by a short in-process
// TTL cache (and, when configured, a shared Redis cache so multiple
// gateway instances see the same answer) to reduce broker chatter.
func (s *Sender) ListActivePlugins(ctx context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	if s.listCache != nil && time.Since(s.listCacheAt) < ListActivePluginsTTL {
		cached := cloneSet(s.listCache)
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	if s.redis != nil && s.redis.IsEnabled() {
		var ids []string
		if err := s.redis.Get(ctx, activePluginsCacheKey, &ids); err == nil {
			set := make(map[string]struct{}, len(ids))
			for _, id := range ids {
				set[id] = struct{}{}
			}
			return set, nil
		}
	}

	plugins, err := s.dispatcher.ListActiveWorkers(ctx, broker.DefaultDiscoveryWindow)
	if err != nil {
		return nil, climatoologyerrors.Wrap(climatoologyerrors.KindPlatformUtility, "discover active plugins", err)
	}

	s.mu.Lock()
	s.listCache = cloneSet(plugins)
	s.listCacheAt = time.Now()
	s.mu.Unlock()

	if s.redis != nil && s.redis.IsEnabled() {
		ids := make([]string, 0, len(plugins))
		for id := range plugins {
			ids = append(ids, id)
		}
		_ = s.redis.Set(ctx, activePluginsCacheKey, ids, ListActivePluginsTTL)
	}

	return plugins, nil
}

func cloneSet(src map[string]struct{}) map[string]struct{} {
	dst := make(map[string]struct{}, len(src))
	for k := range src {
		dst[k] = struct{}{}
	}
	return dst
}

// RequestInfo returns a plugin's info, the latest version when
// pluginVersion is nil, enforcing library-version compatibility when
// AssertLibraryVersion is set.
func (s *Sender) RequestInfo(ctx context.Context, pluginID string, pluginVersion *string) (model.PluginInfo, error) {
	info, err := s.info.ReadInfo(ctx, pluginID, pluginVersion)
	if err != nil {
		return model.PluginInfo{}, climatoologyerrors.InfoNotReceived(
			fmt.Sprintf("no info received for plugin %q within the request window", pluginID))
	}

	if s.AssertLibraryVersion && s.LocalLibraryVersion != "" {
		local, err := semver.NewVersion(s.LocalLibraryVersion)
		if err == nil && !version.Compatible(info.LibraryVersion, local) {
			return model.PluginInfo{}, climatoologyerrors.VersionMismatch(fmt.Sprintf(
				"plugin %q library_version %s is incompatible with runtime %s",
				pluginID, info.LibraryVersion, local))
		}
	}
	return info, nil
}

// SendComputeRequest bundles the arguments to SendCompute;
// CacheOverride/TaskTimeLimit/QueueTTL are all optional.
type SendComputeRequest struct {
	PluginID        string
	PluginVersion   *string
	AOI             model.AOIFeature
	Params          json.RawMessage
	CorrelationUUID uuid.UUID
	CacheOverride   CacheMode
	TaskTimeLimit   *time.Duration
	QueueTTL        *time.Duration
}

// SendCompute registers a computation and enqueues it if this call is
// the originator, or returns an alias handle onto a pre-existing
// computation otherwise.
func (s *Sender) SendCompute(ctx context.Context, req SendComputeRequest) (*ComputationHandle, error) {
	info, err := s.info.ReadInfo(ctx, req.PluginID, req.PluginVersion)
	if err != nil {
		return nil, climatoologyerrors.InfoNotReceived(
			fmt.Sprintf("no info received for plugin %q within the request window", req.PluginID))
	}

	shelfLife := effectiveShelfLife(info.ComputationShelfLife, req.CacheOverride)
	requestTS := time.Now().UTC()
	cacheEpoch, validUntil := cacheepoch.Bucket(requestTS, shelfLife)

	canonicalUUID, err := s.computations.RegisterComputation(
		ctx, req.CorrelationUUID, req.Params, req.AOI, info.ID, cacheEpoch, validUntil)
	if err != nil {
		return nil, climatoologyerrors.Wrap(climatoologyerrors.KindUnexpected, "register computation", err)
	}

	if canonicalUUID == req.CorrelationUUID {
		if err := s.dispatcher.Dispatch(ctx, info.ID, canonicalUUID, req.AOI, req.Params,
			req.TaskTimeLimit, req.QueueTTL); err != nil {
			return nil, climatoologyerrors.Wrap(climatoologyerrors.KindPlatformUtility, "dispatch compute task", err)
		}
	}

	return &ComputationHandle{
		CorrelationUUID: canonicalUUID,
		PluginKey:       info.ID,
		computations:    s.computations,
	}, nil
}

// effectiveShelfLife resolves the cache override against the plugin's
// default shelf life: forever -> unbounded
// (nil), never -> zero, default -> the plugin's own value.
func effectiveShelfLife(pluginDefault *time.Duration, override CacheMode) *time.Duration {
	switch override {
	case CacheForever:
		return nil
	case CacheNever:
		zero := time.Duration(0)
		return &zero
	default:
		return pluginDefault
	}
}

// ComputationHandle is the caller-facing observation point for one
// (possibly aliased) dispatched computation.
type ComputationHandle struct {
	CorrelationUUID uuid.UUID
	PluginKey       string

	computations ComputationStore
}

// State returns the computation's current lifecycle state.
func (h *ComputationHandle) State(ctx context.Context) (model.ComputationState, error) {
	c, err := h.computations.ReadComputation(ctx, h.CorrelationUUID)
	if err != nil {
		return "", climatoologyerrors.Wrap(climatoologyerrors.KindUnexpected, "read computation state", err)
	}
	return c.Status, nil
}

// Result blocks (bounded by timeout) until the computation reaches a
// terminal state, then returns the full record.
func (h *ComputationHandle) Result(ctx context.Context, timeout time.Duration) (model.Computation, error) {
	deadline := time.Now().Add(timeout)
	const pollInterval = 200 * time.Millisecond
	for {
		c, err := h.computations.ReadComputation(ctx, h.CorrelationUUID)
		if err != nil {
			return model.Computation{}, climatoologyerrors.Wrap(climatoologyerrors.KindUnexpected, "read computation", err)
		}
		if c.Status.IsTerminal() {
			return c, nil
		}
		if time.Now().After(deadline) {
			return model.Computation{}, climatoologyerrors.New(climatoologyerrors.KindPlatformUtility,
				"computation did not reach a terminal state within the requested timeout")
		}
		select {
		case <-ctx.Done():
			return model.Computation{}, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// Subscribe opens an Event Subscription scoped to this handle's
// canonical correlation id.
func (h *ComputationHandle) Subscribe(subscriber *events.Subscriber) (*events.Subscription, error) {
	filter := h.CorrelationUUID
	return subscriber.Subscribe(&filter)
}
