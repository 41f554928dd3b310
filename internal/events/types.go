// Package events implements the Event Subscription: a fan-out push
// channel carrying ComputeCommandResult lifecycle frames,
// filterable by correlation id, with no backlog replay. Both the
// Broker Adapter (internal/broker, publish side) and the gateway's
// WebSocket hub (subscribe side) depend on this package.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/GIScience/climatoology-go/internal/model"
)

// ComputeCommandResult is the wire frame the broker publishes once per
// task, when the task finishes (success or failure, including an
// expired task); the pending and started transitions are not
// published. Message is populated only on failure.
type ComputeCommandResult struct {
	CorrelationUUID uuid.UUID              `json:"correlation_uuid"`
	Status          model.ComputationState `json:"status"`
	Message         *string                `json:"message,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
}

// NotifySubjectPrefix is the durable NATS subject hierarchy frames are
// published under: "notify.<plugin_key>", matched by subscribers via
// the "notify.>" wildcard. The subject naming is
// durable; message delivery itself is not (see DESIGN.md's resolution
// of the "backlog replay" open question).
const NotifySubjectPrefix = "notify."

// Subject returns the fully-qualified publish subject for pluginKey.
func Subject(pluginKey string) string {
	return NotifySubjectPrefix + pluginKey
}

// WildcardSubject is the subscription pattern that matches every
// plugin's notify subject.
const WildcardSubject = NotifySubjectPrefix + ">"
