package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ComputationState is one lifecycle state of a Computation.
// Transitions are monotone: pending never follows a terminal
// state.
type ComputationState string

const (
	StatePending  ComputationState = "pending"
	StateStarted  ComputationState = "started"
	StateSuccess  ComputationState = "success"
	StateFailure  ComputationState = "failure"
	StateRevoked  ComputationState = "revoked"
)

// IsTerminal reports whether s is one of the terminal lifecycle
// states (success, failure, revoked).
func (s ComputationState) IsTerminal() bool {
	return s == StateSuccess || s == StateFailure || s == StateRevoked
}

// Computation is the lifecycle entity for one logical computation,
// keyed by CorrelationUUID.
type Computation struct {
	CorrelationUUID  uuid.UUID         `json:"correlation_uuid"`
	PluginKey        string            `json:"plugin_key"`
	RequestedParams  json.RawMessage   `json:"requested_params"`
	Params           json.RawMessage   `json:"params,omitempty"`
	AOI              AOIFeature        `json:"aoi"`
	CacheEpoch       *int64            `json:"cache_epoch"`
	ValidUntil       time.Time         `json:"valid_until"`
	DeduplicationKey string            `json:"deduplication_key"`
	Timestamp        time.Time         `json:"timestamp"`
	Status           ComputationState  `json:"status"`
	Artifacts        []Artifact        `json:"artifacts"`
	Message          *string           `json:"message,omitempty"`
	ArtifactErrors   map[string]string `json:"artifact_errors"`
}

// PluginBaseInfo is the minimal plugin identity attached to a resolved
// Computation, per the original's store.object_store.PluginBaseInfo.
type PluginBaseInfo struct {
	PluginID      string `json:"plugin_id"`
	PluginVersion string `json:"plugin_version"`
}

// ComputationLookup maps a user-issued correlation id to the
// (possibly deduplicated) canonical Computation record.
type ComputationLookup struct {
	UserCorrelationUUID uuid.UUID       `json:"user_correlation_uuid"`
	RequestTS           time.Time       `json:"request_ts"`
	AOIName             string          `json:"aoi_name"`
	AOIID               string          `json:"aoi_id"`
	AOIProperties       json.RawMessage `json:"aoi_properties,omitempty"`
	IsDemo              bool            `json:"is_demo"`
	ComputationID       uuid.UUID       `json:"computation_id"`
}
