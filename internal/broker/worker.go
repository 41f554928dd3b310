package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/GIScience/climatoology-go/internal/events"
	"github.com/GIScience/climatoology-go/internal/model"
)

// TaskMetaWriter is the subset of the relational store's API the
// broker needs to mirror task outcomes: the framework (not the
// handler) writes this row once the handler returns.
type TaskMetaWriter interface {
	WriteTaskMeta(ctx context.Context, meta model.TaskMeta) error
}

// Handler runs one compute task to completion, returning an error iff
// the computation failed. It is the Worker Task Runner's entry point
// (internal/worker).
type Handler func(ctx context.Context, taskID uuid.UUID, aoi model.AOIFeature, params json.RawMessage) error

// InfoProvider returns the current PluginInfo for a reply to an
// incoming info request.
type InfoProvider func() model.PluginInfo

// WorkerBinding holds the subscriptions a plugin host registers at
// startup: one compute subject (prefetch = 1, a single goroutine
// draining a size-1 buffered channel to bound memory use) and one
// implicit info reply.
type WorkerBinding struct {
	nc        *nats.Conn
	metaStore TaskMetaWriter
	publisher *events.Publisher
	log       zerolog.Logger

	computeSub   *nats.Subscription
	discoverySub *nats.Subscription
	infoSub      *nats.Subscription
	stop         chan struct{}
}

// Bind registers the compute and info subjects for pluginKey, and
// joins the discovery scatter-gather as this host's hostname
// ("<pluginID>@<host>"), so ListActiveWorkers can find it. Every task
// outcome is also published on the plugin's notify subject, using the
// same connection the subjects are bound on.
func Bind(nc *nats.Conn, metaStore TaskMetaWriter, log zerolog.Logger,
	pluginKey, pluginID, pluginVersion string, handler Handler, infoProvider InfoProvider) (*WorkerBinding, error) {

	wb := &WorkerBinding{nc: nc, metaStore: metaStore, publisher: events.NewPublisher(nc), log: log, stop: make(chan struct{})}

	queue := make(chan *nats.Msg, 1) // prefetch = 1
	computeSub, err := nc.ChanSubscribe(ComputeSubject(pluginKey), queue)
	if err != nil {
		return nil, fmt.Errorf("subscribe to compute subject %s: %w", ComputeSubject(pluginKey), err)
	}
	wb.computeSub = computeSub

	go wb.drain(queue, pluginKey, handler)

	infoSub, err := nc.Subscribe(InfoSubject(pluginKey), func(msg *nats.Msg) {
		info := infoProvider()
		payload, err := json.Marshal(info)
		if err != nil {
			wb.log.Error().Err(err).Msg("marshal plugin info reply")
			return
		}
		if err := msg.Respond(payload); err != nil {
			wb.log.Warn().Err(err).Msg("respond to info request")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to info subject %s: %w", InfoSubject(pluginKey), err)
	}
	wb.infoSub = infoSub

	hostname, _ := os.Hostname()
	advertised := fmt.Sprintf("%s@%s-%s", pluginID, hostname, uuid.NewString()[:8])
	discoverySub, err := nc.Subscribe(DiscoverySubject, func(msg *nats.Msg) {
		payload, _ := json.Marshal(DiscoveryReply{Hostname: advertised, PluginID: pluginID, Version: pluginVersion})
		if msg.Reply != "" {
			_ = nc.Publish(msg.Reply, payload)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to discovery subject: %w", err)
	}
	wb.discoverySub = discoverySub

	return wb, nil
}

func (wb *WorkerBinding) drain(queue chan *nats.Msg, pluginKey string, handler Handler) {
	for {
		select {
		case <-wb.stop:
			return
		case msg := <-queue:
			wb.runOne(msg, pluginKey, handler)
		}
	}
}

func (wb *WorkerBinding) runOne(msg *nats.Msg, pluginKey string, handler Handler) {
	var task ComputeTask
	if err := json.Unmarshal(msg.Data, &task); err != nil {
		wb.log.Error().Err(err).Msg("malformed compute task")
		return
	}

	if task.Expired(time.Now().UTC()) {
		wb.writeOutcome(task, pluginKey, model.TaskStatusFailure, "expired")
		return
	}

	taskCtx := context.Background()
	var cancel context.CancelFunc
	if task.TaskTimeLimit != nil {
		taskCtx, cancel = context.WithTimeout(taskCtx, *task.TaskTimeLimit)
	} else {
		taskCtx, cancel = context.WithCancel(taskCtx)
	}
	defer cancel()

	err := handler(taskCtx, task.TaskID, task.AOI, task.Params)

	status := model.TaskStatusSuccess
	result := ""
	if err != nil {
		status = model.TaskStatusFailure
		result = err.Error()
	}
	wb.writeOutcome(task, pluginKey, status, result)
}

func (wb *WorkerBinding) writeOutcome(task ComputeTask, pluginKey string, status model.TaskStatus, traceback string) {
	meta := model.TaskMeta{
		TaskID:    task.TaskID,
		Status:    status,
		DateDone:  time.Now().UTC(),
		Traceback: traceback,
		Name:      "compute",
		Queue:     pluginKey,
	}
	if err := wb.metaStore.WriteTaskMeta(context.Background(), meta); err != nil {
		wb.log.Error().Err(err).Str("task_id", task.TaskID.String()).Msg("write task meta")
	}

	result := events.ComputeCommandResult{
		CorrelationUUID: task.TaskID,
		Status:          taskStatusToComputationState(status),
		Timestamp:       meta.DateDone,
	}
	if traceback != "" && status != model.TaskStatusSuccess {
		result.Message = &traceback
	}
	if err := wb.publisher.Publish(pluginKey, result); err != nil {
		wb.log.Warn().Err(err).Str("task_id", task.TaskID.String()).Msg("publish compute command result")
	}
}

func taskStatusToComputationState(status model.TaskStatus) model.ComputationState {
	switch status {
	case model.TaskStatusSuccess:
		return model.StateSuccess
	case model.TaskStatusRevoked:
		return model.StateRevoked
	default:
		return model.StateFailure
	}
}

// Close unsubscribes every bound subject and stops the drain loop.
func (wb *WorkerBinding) Close() {
	close(wb.stop)
	if wb.computeSub != nil {
		_ = wb.computeSub.Unsubscribe()
	}
	if wb.infoSub != nil {
		_ = wb.infoSub.Unsubscribe()
	}
	if wb.discoverySub != nil {
		_ = wb.discoverySub.Unsubscribe()
	}
}
