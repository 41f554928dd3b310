package broker

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/GIScience/climatoology-go/internal/model"
)

// ComputeSubject and InfoSubject are the two abstract task names per
// plugin subject.
func ComputeSubject(pluginKey string) string { return pluginKey + ".compute" }
func InfoSubject(pluginKey string) string    { return pluginKey + ".info" }

// DiscoverySubject is where the gateway scatter-gathers active
// worker advertisements.
const DiscoverySubject = "discovery.compute"

// ComputeTask is the wire payload of a dispatched compute task:
// task_id = correlation_uuid, routed by plugin_key.
type ComputeTask struct {
	TaskID        uuid.UUID         `json:"task_id"`
	AOI           model.AOIFeature  `json:"aoi"`
	Params        json.RawMessage   `json:"params"`
	TaskTimeLimit *time.Duration    `json:"task_time_limit,omitempty"`
	QueueTTL      *time.Duration    `json:"queue_ttl,omitempty"`
	EnqueuedAt    time.Time         `json:"enqueued_at"`
}

// Expired reports whether t has sat in the subject longer than its
// QueueTTL; such tasks are discarded with failure/expired.
func (t ComputeTask) Expired(now time.Time) bool {
	if t.QueueTTL == nil {
		return false
	}
	return now.Sub(t.EnqueuedAt) > *t.QueueTTL
}

// DiscoveryReply is what a worker sends back on DiscoverySubject when
// it advertises the "compute" capability tag. Hostname follows the
// "<plugin_id>@<host>" convention plugin ids are derived from.
// PluginID/Version are carried alongside so the Plugin Hosting startup
// check can refuse a downgrade race without a second round-trip.
type DiscoveryReply struct {
	Hostname string `json:"hostname"`
	PluginID string `json:"plugin_id"`
	Version  string `json:"version"`
}
