// Package plugin implements Plugin Hosting: the startup sequence a
// worker process runs once, before it starts
// draining compute tasks, to register itself as the authoritative
// host for one plugin id/version.
package plugin

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/GIScience/climatoology-go/internal/broker"
	climatoologyerrors "github.com/GIScience/climatoology-go/internal/errors"
	"github.com/GIScience/climatoology-go/internal/model"
	"github.com/GIScience/climatoology-go/internal/operator"
	"github.com/GIScience/climatoology-go/internal/validation"
	"github.com/GIScience/climatoology-go/internal/version"
)

// InfoStore is the subset of the relational store Host needs.
type InfoStore interface {
	ReadInfo(ctx context.Context, id string, v *string) (model.PluginInfo, error)
	WriteInfo(ctx context.Context, info model.PluginInfo) error
}

// Host carries out one plugin's startup registration. It is built
// once per worker process and discarded once Start has run.
type Host struct {
	nc         *nats.Conn
	dispatcher *broker.Dispatcher
	db         InfoStore
	metaStore  broker.TaskMetaWriter
	log        zerolog.Logger

	// AllowDowngrade overrides the refuse-on-downgrade check, for
	// operators deliberately rolling back a broken release.
	AllowDowngrade bool

	// DiscoveryWindow bounds how long Start waits for running workers
	// to answer the scatter-gather before concluding none conflict.
	DiscoveryWindow time.Duration
}

// NewHost wires a Host against an already-open store and NATS
// connection shared with the rest of the worker process.
func NewHost(nc *nats.Conn, db InfoStore, metaStore broker.TaskMetaWriter, log zerolog.Logger) *Host {
	return &Host{
		nc:              nc,
		dispatcher:      broker.NewDispatcher(nc),
		db:              db,
		metaStore:       metaStore,
		log:             log,
		DiscoveryWindow: broker.DefaultDiscoveryWindow,
	}
}

// Bound is what Start hands back once registration succeeds: the
// effective info that was persisted/advertised, and the live worker
// binding the caller must eventually Close.
type Bound struct {
	Info    model.PluginInfo
	Binding *broker.WorkerBinding
}

// buildEffectiveInfo merges author-supplied metadata with facts only
// the operator contract can derive: the compiled parameter schema and
// its reserved-field boundary.
func buildEffectiveInfo[P any](info model.PluginInfo, op operator.Operator[P]) (model.PluginInfo, error) {
	schemaJSON := op.RawSchema()
	if err := validation.AssertNoReservedFields(schemaJSON); err != nil {
		return model.PluginInfo{}, climatoologyerrors.New(climatoologyerrors.KindVersionMismatch, err.Error())
	}
	if err := model.ValidateName(info.Name); err != nil {
		return model.PluginInfo{}, climatoologyerrors.InputValidation(err.Error())
	}
	if err := model.ValidateTeaser(info.Teaser); err != nil {
		return model.PluginInfo{}, climatoologyerrors.InputValidation(err.Error())
	}

	if info.ID == "" {
		info.ID = model.DeriveID(info.Name)
	}
	info.OperatorSchema = schemaJSON
	return info, nil
}

// Start runs the full startup sequence for one operator: build the
// effective info, refuse a version downgrade against both the store's
// last-registered version and any worker currently answering discovery
// for the same plugin id, persist the info, and bind the compute/info/
// discovery subjects.
func Start[P any](ctx context.Context, h *Host, op operator.Operator[P], userInfo model.PluginInfo,
	handler broker.Handler) (*Bound, error) {

	effective, err := buildEffectiveInfo(userInfo, op)
	if err != nil {
		return nil, err
	}

	if err := h.checkVersion(ctx, effective); err != nil {
		return nil, err
	}

	if err := h.db.WriteInfo(ctx, effective); err != nil {
		return nil, climatoologyerrors.Wrap(climatoologyerrors.KindUnexpected, "persist plugin info", err)
	}

	infoProvider := func() model.PluginInfo { return effective }
	binding, err := broker.Bind(h.nc, h.metaStore, h.log,
		effective.ID, effective.ID, effective.Version.String(), handler, infoProvider)
	if err != nil {
		return nil, climatoologyerrors.Wrap(climatoologyerrors.KindUnexpected, "bind worker subjects", err)
	}

	h.log.Info().Str("plugin_id", effective.ID).Str("version", effective.Version.String()).
		Msg("plugin host started")

	return &Bound{Info: effective, Binding: binding}, nil
}

// checkVersion refuses to start when the candidate version would be a
// downgrade from either the last persisted version or a version
// currently advertised live by a running worker, unless AllowDowngrade
// is set.
func (h *Host) checkVersion(ctx context.Context, candidate model.PluginInfo) error {
	if h.AllowDowngrade {
		return nil
	}

	if previous, err := h.db.ReadInfo(ctx, candidate.ID, nil); err == nil {
		if candidate.Version.LessThan(previous.Version) {
			return climatoologyerrors.VersionMismatch(fmt.Sprintf(
				"refusing to register %s version %s: lower than the last registered version %s",
				candidate.ID, candidate.Version, previous.Version))
		}
	}

	window := h.DiscoveryWindow
	if window <= 0 {
		window = broker.DefaultDiscoveryWindow
	}
	versions, err := h.dispatcher.ListActiveWorkerVersions(ctx, window)
	if err != nil {
		h.log.Warn().Err(err).Msg("discovery scatter-gather for version check failed, proceeding")
		return nil
	}
	for _, raw := range versions[candidate.ID] {
		running, err := semver.NewVersion(raw)
		if err != nil {
			continue
		}
		if candidate.Version.LessThan(running) {
			return climatoologyerrors.VersionMismatch(fmt.Sprintf(
				"refusing to register %s version %s: a running worker already advertises %s",
				candidate.ID, candidate.Version, running))
		}
		if !version.Compatible(candidate.Version, running) {
			return climatoologyerrors.VersionMismatch(fmt.Sprintf(
				"refusing to register %s version %s: incompatible with running worker version %s",
				candidate.ID, candidate.Version, running))
		}
	}
	return nil
}
