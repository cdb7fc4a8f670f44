package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"consult-edge/constant"
	"consult-edge/dto"
	"consult-edge/edge"
	"consult-edge/entities"
	"consult-edge/service"
)

type ServiceDependencies struct {
	Store      service.RecordingStore
	Agent      service.UploadAgent
	Edge       *edge.Handler
	Generation string
}

func RegisterRoutes(r *gin.Engine, deps ServiceDependencies) {
	api := r.Group("/api")
	api.POST("/recordings", createRecording(deps))
	api.PUT("/recordings/:id/chunks/:index", appendChunk(deps))
	api.POST("/recordings/:id/finalize", finalizeRecording(deps))
	api.GET("/recordings", listRecordings(deps))

	control := r.Group("/control")
	control.POST("/activate", activateGeneration(deps))
	control.POST("/precache", precacheUrls(deps))
	control.POST("/sweep", triggerSweep(deps))
}

func createRecording(deps ServiceDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{
			"recordingId": deps.Store.NewRecordingId(),
		})
	}
}

// appendChunk always answers 202 once the payload is read: a chunk write
// is best-effort and the capture must keep going either way.
func appendChunk(deps ServiceDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		index, err := strconv.Atoi(c.Param("index"))
		if err != nil || index < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "chunk index must be a non-negative integer"})
			return
		}

		payload, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable chunk payload"})
			return
		}

		persisted := deps.Store.AppendChunk(
			c.Request.Context(),
			c.Param("id"),
			index,
			payload,
			c.ContentType(),
			c.GetHeader("X-Owner-Id"),
		)
		c.JSON(http.StatusAccepted, gin.H{"persisted": persisted})
	}
}

func finalizeRecording(deps ServiceDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dto.FinalizeRecordingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		meta := &entities.RecordingMetadata{
			RecordingId:      c.Param("id"),
			OwnerId:          req.OwnerId,
			OwnerDisplayName: req.OwnerDisplayName,
			FinalizedAt:      time.Now().UTC(),
			DurationSeconds:  req.DurationSeconds,
			ByteSize:         req.ByteSize,
			MimeType:         req.MimeType,
		}
		if err := deps.Store.FinalizeRecording(c.Request.Context(), meta); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to finalize recording"})
			return
		}
		c.JSON(http.StatusCreated, meta)
	}
}

func listRecordings(deps ServiceDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		metas := deps.Store.ListAllMetadata(c.Request.Context())
		if metas == nil {
			metas = []*entities.RecordingMetadata{}
		}
		c.JSON(http.StatusOK, gin.H{"recordings": metas})
	}
}

func activateGeneration(deps ServiceDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Generation string `json:"generation"`
		}
		_ = c.ShouldBindJSON(&req)
		if req.Generation == "" {
			req.Generation = deps.Generation
		}

		if err := deps.Edge.Activate(c.Request.Context(), req.Generation); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to activate cache generation"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"generation": req.Generation})
	}
}

func precacheUrls(deps ServiceDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Urls []string `json:"urls" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		deps.Edge.Precache(c.Request.Context(), req.Urls)
		c.JSON(http.StatusAccepted, gin.H{"requested": len(req.Urls)})
	}
}

func triggerSweep(deps ServiceDependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		ran := deps.Agent.Sweep(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"ran": ran})
	}
}

// ControlHandler consumes the page-to-agent control channel over AMQP:
// SKIP_WAITING activates the configured generation immediately,
// CACHE_URLS bulk pre-caches into the live one.
func ControlHandler(ctx context.Context, msg amqp.Delivery, deps ServiceDependencies) error {
	var control dto.ControlMessage
	if err := json.Unmarshal(msg.Body, &control); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("failed to unmarshal control message")
		return err
	}

	switch control.Type {
	case constant.ControlSkipWaiting:
		return deps.Edge.Activate(ctx, deps.Generation)
	case constant.ControlCacheURLs:
		deps.Edge.Precache(ctx, control.Urls)
		return nil
	default:
		zerolog.Ctx(ctx).Warn().Str("type", string(control.Type)).Msg("unknown control message type")
		return nil
	}
}
