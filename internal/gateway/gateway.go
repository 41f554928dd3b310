// Package gateway implements the HTTP/WebSocket surface: plugin
// discovery, compute dispatch, result streaming and
// artifact retrieval, all delegating to internal/sender for the
// actual platform semantics.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	climatoologyerrors "github.com/GIScience/climatoology-go/internal/errors"
	"github.com/GIScience/climatoology-go/internal/events"
	"github.com/GIScience/climatoology-go/internal/model"
	"github.com/GIScience/climatoology-go/internal/objectstore"
	"github.com/GIScience/climatoology-go/internal/sender"
	"github.com/GIScience/climatoology-go/internal/websocket"
)

// InfoStore is the narrowed store dependency the gateway needs beyond
// what Sender already wraps: listing every registered plugin for
// GET /plugin, which Sender has no reason to expose.
type InfoStore interface {
	ListInfo(ctx context.Context) ([]model.PluginInfo, error)
}

// Handler bundles the gateway's dependencies. Every field is required;
// construct with New.
type Handler struct {
	sender     *sender.Sender
	info       InfoStore
	objects    *objectstore.Store
	subscriber *events.Subscriber
	log        zerolog.Logger
}

// New wires a Handler against already-constructed dependencies.
func New(s *sender.Sender, info InfoStore, objects *objectstore.Store, subscriber *events.Subscriber, log zerolog.Logger) *Handler {
	return &Handler{sender: s, info: info, objects: objects, subscriber: subscriber, log: log}
}

// Register mounts every route onto r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/plugin", h.listPlugins)
	r.GET("/plugin/:id", h.getPlugin)
	r.POST("/plugin/:id", h.postCompute)
	r.GET("/computation", h.serveComputation)
	r.GET("/store/:correlation_uuid", h.listArtifacts)
	r.GET("/store/:correlation_uuid/:store_id", h.getArtifact)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) listPlugins(c *gin.Context) {
	infos, err := h.info.ListInfo(c.Request.Context())
	if err != nil {
		climatoologyerrors.Abort(c, climatoologyerrors.Wrap(climatoologyerrors.KindUnexpected, "list plugins", err))
		return
	}
	c.JSON(http.StatusOK, infos)
}

func (h *Handler) getPlugin(c *gin.Context) {
	id := c.Param("id")
	var version *string
	if v := c.Query("version"); v != "" {
		version = &v
	}
	info, err := h.sender.RequestInfo(c.Request.Context(), id, version)
	if err != nil {
		climatoologyerrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// computeRequest is the POST /plugin/{id} body: the AOI feature and
// the operator's own parameters side by side, since the operator
// schema itself must never declare an "aoi" field.
type computeRequest struct {
	AOI             model.AOIFeature `json:"aoi" binding:"required"`
	Params          json.RawMessage  `json:"params" binding:"required"`
	CorrelationUUID *uuid.UUID       `json:"correlation_uuid,omitempty"`
	Cache           string           `json:"cache,omitempty"`
}

type computeResponse struct {
	CorrelationUUID uuid.UUID `json:"correlation_uuid"`
	PluginKey       string    `json:"plugin_key"`
}

func (h *Handler) postCompute(c *gin.Context) {
	id := c.Param("id")

	var body computeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		climatoologyerrors.Abort(c, climatoologyerrors.InputValidation(err.Error()))
		return
	}

	correlationUUID := uuid.New()
	if body.CorrelationUUID != nil {
		correlationUUID = *body.CorrelationUUID
	}

	var taskTimeLimit, queueTTL *time.Duration
	if v := c.Query("task_time_limit"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			d := time.Duration(seconds) * time.Second
			taskTimeLimit = &d
		}
	}
	if v := c.Query("queue_ttl"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			d := time.Duration(seconds) * time.Second
			queueTTL = &d
		}
	}

	handle, err := h.sender.SendCompute(c.Request.Context(), sender.SendComputeRequest{
		PluginID:        id,
		AOI:             body.AOI,
		Params:          body.Params,
		CorrelationUUID: correlationUUID,
		CacheOverride:   parseCacheMode(body.Cache),
		TaskTimeLimit:   taskTimeLimit,
		QueueTTL:        queueTTL,
	})
	if err != nil {
		climatoologyerrors.Abort(c, err)
		return
	}

	c.JSON(http.StatusAccepted, computeResponse{
		CorrelationUUID: handle.CorrelationUUID,
		PluginKey:       handle.PluginKey,
	})
}

func parseCacheMode(raw string) sender.CacheMode {
	switch raw {
	case "forever":
		return sender.CacheForever
	case "never":
		return sender.CacheNever
	default:
		return sender.CacheDefault
	}
}

// serveComputation upgrades to WebSocket and streams ComputeCommandResult
// frames, optionally filtered to one correlation id.
func (h *Handler) serveComputation(c *gin.Context) {
	var filter *uuid.UUID
	if raw := c.Query("correlation_uuid"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			climatoologyerrors.Abort(c, climatoologyerrors.InputValidation("correlation_uuid is not a valid UUID"))
			return
		}
		filter = &id
	}

	if err := websocket.ServeComputation(c.Writer, c.Request, h.subscriber, filter, h.log); err != nil {
		h.log.Warn().Err(err).Msg("computation websocket closed")
	}
}

func (h *Handler) listArtifacts(c *gin.Context) {
	correlationUUID, err := uuid.Parse(c.Param("correlation_uuid"))
	if err != nil {
		climatoologyerrors.Abort(c, climatoologyerrors.InputValidation("correlation_uuid is not a valid UUID"))
		return
	}

	artifacts, err := h.objects.ListAll(c.Request.Context(), correlationUUID)
	if err != nil {
		climatoologyerrors.Abort(c, climatoologyerrors.Wrap(climatoologyerrors.KindPlatformUtility, "list artifacts", err))
		return
	}
	c.JSON(http.StatusOK, artifacts)
}

// getArtifact redirects to a presigned URL rather than streaming the
// blob through the gateway process: callers get a direct-to-storage
// link instead of the gateway proxying bytes.
func (h *Handler) getArtifact(c *gin.Context) {
	correlationUUID, err := uuid.Parse(c.Param("correlation_uuid"))
	if err != nil {
		climatoologyerrors.Abort(c, climatoologyerrors.InputValidation("correlation_uuid is not a valid UUID"))
		return
	}
	storeID := c.Param("store_id")

	url, err := h.objects.GetArtifactURL(c.Request.Context(), correlationUUID, storeID, objectstore.DefaultPresignTTL)
	if err != nil {
		climatoologyerrors.Abort(c, climatoologyerrors.Wrap(climatoologyerrors.KindPlatformUtility, "presign artifact url", err))
		return
	}
	c.Redirect(http.StatusFound, url)
}
