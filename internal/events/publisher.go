package events

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Publisher emits ComputeCommandResult frames onto the notify subject
// hierarchy. It is a thin wrapper the Broker Adapter (internal/broker)
// calls once per task, after the task finishes; pending and started
// transitions are not published.
type Publisher struct {
	nc *nats.Conn
}

// NewPublisher wraps an existing NATS connection. The connection's
// lifecycle (connect/reconnect/close) is owned by the caller.
func NewPublisher(nc *nats.Conn) *Publisher {
	return &Publisher{nc: nc}
}

// Publish emits result on the pluginKey's notify subject. Publishing
// is fire-and-forget core NATS: there is no backlog replay, so a
// subscriber must be listening before the transition occurs to
// observe it.
func (p *Publisher) Publish(pluginKey string, result ComputeCommandResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal compute command result: %w", err)
	}
	if err := p.nc.Publish(Subject(pluginKey), payload); err != nil {
		return fmt.Errorf("publish to %s: %w", Subject(pluginKey), err)
	}
	return nil
}
