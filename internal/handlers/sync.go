package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/yukikurage/classroom-sync/internal/dto"
	apierrors "github.com/yukikurage/classroom-sync/internal/errors"
	"github.com/yukikurage/classroom-sync/internal/repository"
	"github.com/yukikurage/classroom-sync/internal/services"
)

const (
	eventBufferSize   = 16
	heartbeatInterval = 30 * time.Second
)

type SyncHandler struct {
	// baseCtx outlives requests; the interval loop started by Enable runs on it
	baseCtx context.Context
	sync    *services.SyncService
	log     *logrus.Entry
}

func NewSyncHandler(baseCtx context.Context, sync *services.SyncService, log *logrus.Entry) *SyncHandler {
	return &SyncHandler{
		baseCtx: baseCtx,
		sync:    sync,
		log:     log,
	}
}

// GetStatus returns the orchestrator state with a fresh consistency check
func (h *SyncHandler) GetStatus(c *gin.Context) {
	report, err := h.sync.GenerateStatusReport(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("Failed to generate status report")
		apierrors.StoreUnavailable(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetConsistency reports drift between tasks and the derived collections
func (h *SyncHandler) GetConsistency(c *gin.Context) {
	report, err := h.sync.CheckConsistency(c.Request.Context())
	if err != nil {
		h.log.WithError(err).Error("Failed to check consistency")
		apierrors.StoreUnavailable(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}

// RunSync forces a synchronous reconciliation run
func (h *SyncHandler) RunSync(c *gin.Context) {
	result, err := h.sync.ForceSync(c.Request.Context())
	switch {
	case errors.Is(err, services.ErrSyncInProgress):
		apierrors.SyncInProgress(c)
		return
	case errors.Is(err, repository.ErrCollectionRead), errors.Is(err, repository.ErrCollectionWrite):
		apierrors.StoreUnavailable(c, err)
		return
	case err != nil:
		apierrors.InternalError(c, "Sync run failed")
		return
	}

	c.JSON(http.StatusOK, dto.SyncRunResponse{Result: result})
}

// Enable turns background sync on, running one sync before responding
func (h *SyncHandler) Enable(c *gin.Context) {
	h.sync.Enable(h.baseCtx)
	c.JSON(http.StatusOK, h.configResponse())
}

// Disable turns background sync off
func (h *SyncHandler) Disable(c *gin.Context) {
	h.sync.Disable()
	c.JSON(http.StatusOK, h.configResponse())
}

// UpdateConfig changes the interval and/or debug mode at runtime
func (h *SyncHandler) UpdateConfig(c *gin.Context) {
	var req dto.SyncConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequestWithDetails(c, "Invalid request body", err.Error())
		return
	}

	if req.IntervalMs != nil {
		if err := h.sync.SetInterval(time.Duration(*req.IntervalMs) * time.Millisecond); err != nil {
			apierrors.BadRequest(c, err.Error())
			return
		}
	}
	if req.Debug != nil {
		h.sync.SetDebugMode(*req.Debug)
	}

	c.JSON(http.StatusOK, h.configResponse())
}

// ClearStats resets the accumulated sync statistics
func (h *SyncHandler) ClearStats(c *gin.Context) {
	h.sync.ClearStats()
	c.Status(http.StatusNoContent)
}

// PostEvent schedules a debounced run in response to an external write
func (h *SyncHandler) PostEvent(c *gin.Context) {
	var req dto.SyncTriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequestWithDetails(c, "Invalid request body", err.Error())
		return
	}

	reason, ok := services.ParseTriggerReason(req.Type)
	if !ok {
		apierrors.BadRequest(c, "type must be one of taskCreated, taskDeleted, storageChanged")
		return
	}

	var (
		scheduled bool
		err       error
	)
	if reason == services.TriggerStorageChanged {
		collection := repository.CollectionTasks
		if req.Collection != "" {
			collection, err = repository.ParseCollection(req.Collection)
			if err != nil {
				apierrors.BadRequest(c, err.Error())
				return
			}
		}
		scheduled, err = h.sync.NotifyStorageChange(collection)
	} else {
		err = h.sync.Trigger(reason)
		scheduled = err == nil
	}

	resp := dto.SyncTriggerResponse{Scheduled: scheduled}
	switch {
	case errors.Is(err, services.ErrSyncDisabled):
		resp.Reason = "sync disabled"
	case err != nil:
		apierrors.InternalError(c, "")
		return
	case !scheduled:
		resp.Reason = "collection not watched"
	}

	c.JSON(http.StatusAccepted, resp)
}

// StreamEvents pushes sync events to the client as Server-Sent Events. The
// first event reports the current state so clients know the stream is live.
func (h *SyncHandler) StreamEvents(c *gin.Context) {
	events := make(chan services.SyncEvent, eventBufferSize)
	unsubscribe := h.sync.Subscribe(func(e services.SyncEvent) {
		select {
		case events <- e:
		default:
			h.log.WithField("event_type", e.Type).Warn("Event stream client is slow, dropping event")
		}
	})
	defer unsubscribe()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	c.SSEvent("status", h.configResponse())
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case e := <-events:
			c.SSEvent(string(e.Type), e)
			return true
		case t := <-heartbeat.C:
			c.SSEvent("heartbeat", t.UTC().Format(time.RFC3339))
			return true
		}
	})
}

func (h *SyncHandler) configResponse() dto.SyncConfigResponse {
	return dto.SyncConfigResponse{
		IsEnabled:  h.sync.IsEnabled(),
		IntervalMs: h.sync.Interval().Milliseconds(),
		Debug:      h.sync.DebugMode(),
	}
}
