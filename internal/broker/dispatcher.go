package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	climatoologyerrors "github.com/GIScience/climatoology-go/internal/errors"
	"github.com/GIScience/climatoology-go/internal/model"
)

// DefaultInfoTimeout is the info-request TTL (3s), after which an
// info request fails as InfoNotReceived.
const DefaultInfoTimeout = 3 * time.Second

// DefaultDiscoveryWindow is how long ListActiveWorkers waits for
// scatter-gather replies before concluding discovery.
const DefaultDiscoveryWindow = 500 * time.Millisecond

// Dispatcher is the sender-facing half of the Broker Adapter: enqueue
// compute tasks, request plugin info, and discover active workers.
type Dispatcher struct {
	nc *nats.Conn
}

func NewDispatcher(nc *nats.Conn) *Dispatcher {
	return &Dispatcher{nc: nc}
}

// Dispatch enqueues a compute task routed to pluginKey's compute
// subject, task_id = taskID.
func (d *Dispatcher) Dispatch(ctx context.Context, pluginKey string, taskID uuid.UUID, aoi model.AOIFeature,
	params json.RawMessage, taskTimeLimit, queueTTL *time.Duration) error {
	task := ComputeTask{
		TaskID:        taskID,
		AOI:           aoi,
		Params:        params,
		TaskTimeLimit: taskTimeLimit,
		QueueTTL:      queueTTL,
		EnqueuedAt:    time.Now().UTC(),
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal compute task: %w", err)
	}
	if err := d.nc.Publish(ComputeSubject(pluginKey), payload); err != nil {
		return fmt.Errorf("publish compute task to %s: %w", ComputeSubject(pluginKey), err)
	}
	return nil
}

// RequestInfo fetches a plugin's PluginInfo over the per-plugin info
// subject's request-reply pattern, bounded by DefaultInfoTimeout.
func (d *Dispatcher) RequestInfo(ctx context.Context, pluginKey string) (model.PluginInfo, error) {
	reqCtx, cancel := context.WithTimeout(ctx, DefaultInfoTimeout)
	defer cancel()

	msg, err := d.nc.RequestWithContext(reqCtx, InfoSubject(pluginKey), nil)
	if err != nil {
		return model.PluginInfo{}, climatoologyerrors.Wrap(climatoologyerrors.KindInfoNotReceived,
			fmt.Sprintf("info request to %s", pluginKey), err)
	}

	var info model.PluginInfo
	if err := json.Unmarshal(msg.Data, &info); err != nil {
		return model.PluginInfo{}, fmt.Errorf("unmarshal plugin info: %w", err)
	}
	return info, nil
}

// ListActiveWorkers scatter-gathers DiscoveryReply messages from every
// worker currently bound to the "compute" capability, returning the
// set of plugin ids derived from the hostname segment before '@'.
func (d *Dispatcher) ListActiveWorkers(ctx context.Context, window time.Duration) (map[string]struct{}, error) {
	if window <= 0 {
		window = DefaultDiscoveryWindow
	}

	inbox := nats.NewInbox()
	sub, err := d.nc.SubscribeSync(inbox)
	if err != nil {
		return nil, fmt.Errorf("subscribe to discovery inbox: %w", err)
	}
	defer sub.Unsubscribe()

	if err := d.nc.PublishRequest(DiscoverySubject, inbox, nil); err != nil {
		return nil, fmt.Errorf("publish discovery request: %w", err)
	}

	deadline := time.Now().Add(window)
	plugins := make(map[string]struct{})
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		msg, err := sub.NextMsg(remaining)
		if err != nil {
			break // timeout: discovery window elapsed, return what we have
		}
		var reply DiscoveryReply
		if err := json.Unmarshal(msg.Data, &reply); err != nil {
			continue
		}
		if id, ok := pluginIDFromHostname(reply.Hostname); ok {
			plugins[id] = struct{}{}
		}
	}
	return plugins, nil
}

func pluginIDFromHostname(hostname string) (string, bool) {
	idx := strings.Index(hostname, "@")
	if idx < 0 {
		return "", false
	}
	return hostname[:idx], true
}

// ListActiveWorkerVersions scatter-gathers the same discovery replies
// as ListActiveWorkers but keeps the advertised version per plugin id,
// for the Plugin Hosting startup downgrade-race check.
func (d *Dispatcher) ListActiveWorkerVersions(ctx context.Context, window time.Duration) (map[string][]string, error) {
	if window <= 0 {
		window = DefaultDiscoveryWindow
	}

	inbox := nats.NewInbox()
	sub, err := d.nc.SubscribeSync(inbox)
	if err != nil {
		return nil, fmt.Errorf("subscribe to discovery inbox: %w", err)
	}
	defer sub.Unsubscribe()

	if err := d.nc.PublishRequest(DiscoverySubject, inbox, nil); err != nil {
		return nil, fmt.Errorf("publish discovery request: %w", err)
	}

	deadline := time.Now().Add(window)
	versions := make(map[string][]string)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		msg, err := sub.NextMsg(remaining)
		if err != nil {
			break
		}
		var reply DiscoveryReply
		if err := json.Unmarshal(msg.Data, &reply); err != nil {
			continue
		}
		if reply.PluginID != "" {
			versions[reply.PluginID] = append(versions[reply.PluginID], reply.Version)
		}
	}
	return versions, nil
}
