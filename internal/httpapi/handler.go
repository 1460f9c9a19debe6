package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"reaperd/internal/eventbus"
	"reaperd/internal/eventstore"
	"reaperd/internal/notifier"
	"reaperd/internal/proxmox"
	"reaperd/internal/scheduler"
	logx "reaperd/pkg/logx"
)

// HistorySource provides recently delivered notifications for the status
// endpoint. Implemented by notifier.Service.
type HistorySource interface {
	Snapshot() []notifier.HistoryItem
}

// Handler exposes the deletion engine, container operations and the agent's
// status over HTTP.
type Handler struct {
	engine     *scheduler.Engine
	containers *proxmox.Client
	events     *eventbus.Recorder
	history    HistorySource
	log        logx.Logger
}

func NewHandler(engine *scheduler.Engine, containers *proxmox.Client, events *eventbus.Recorder, history HistorySource, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{
		engine:     engine,
		containers: containers,
		events:     events,
		history:    history,
		log:        log,
	}
}

// Routes registers all endpoints on the router.
func (h *Handler) Routes(router *gin.Engine, token string) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
	})

	api := router.Group("/api/v1")
	if token != "" {
		api.Use(bearerAuth(token))
	}

	api.GET("/status", h.Status)

	deletions := api.Group("/deletions")
	{
		deletions.GET("", h.ListDeletions)
		deletions.GET("/summary", h.Summary)
		deletions.POST("", h.ScheduleDeletion)
		deletions.DELETE("/:id", h.CancelDeletion)
		deletions.POST("/:id/confirm", h.ConfirmDeletion)
	}

	containers := api.Group("/containers")
	{
		containers.GET("", h.ListContainers)
		containers.POST("/:id/start", h.StartContainer)
		containers.POST("/:id/stop", h.StopContainer)
	}
}

func (h *Handler) Status(c *gin.Context) {
	recs, err := h.engine.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "failed to list deletions",
			Details: err.Error(),
		})
		return
	}
	resp := StatusResponse{
		Pending:       len(recs),
		Events:        []eventbus.Event{},
		Notifications: []notifier.HistoryItem{},
	}
	if h.events != nil {
		resp.Events = h.events.Recent()
	}
	if h.history != nil {
		resp.Notifications = h.history.Snapshot()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListDeletions(c *gin.Context) {
	recs, err := h.engine.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "failed to list deletions",
			Details: err.Error(),
		})
		return
	}
	if recs == nil {
		recs = []eventstore.Record{}
	}
	c.JSON(http.StatusOK, recs)
}

func (h *Handler) Summary(c *gin.Context) {
	recs, err := h.engine.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "failed to list deletions",
			Details: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, SummaryResponse{
		Summary: scheduler.SummaryText(recs, time.Now()),
		Count:   len(recs),
	})
}

func (h *Handler) ScheduleDeletion(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid request body",
			Details: err.Error(),
		})
		return
	}

	rec, err := h.engine.Schedule(c.Request.Context(), scheduler.ScheduleRequest{
		TargetID:      req.TargetID,
		TargetName:    req.TargetName,
		RequestedBy:   req.RequestedBy,
		OriginChannel: req.OriginChannel,
	})
	if err != nil {
		h.writeEngineError(c, "failed to schedule deletion", err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) CancelDeletion(c *gin.Context) {
	id := c.Param("id")

	if err := h.engine.Cancel(c.Request.Context(), id); err != nil {
		h.writeEngineError(c, "failed to cancel deletion", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Message: "deletion cancelled",
	})
}

func (h *Handler) ConfirmDeletion(c *gin.Context) {
	id := c.Param("id")

	var req ConfirmRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "invalid request body",
				Details: err.Error(),
			})
			return
		}
	}

	if err := h.engine.Confirm(c.Request.Context(), id, req.ConfirmedBy); err != nil {
		h.writeEngineError(c, "failed to confirm deletion", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{
		Message: "deletion confirmed",
	})
}

func (h *Handler) ListContainers(c *gin.Context) {
	if h.containers == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "container backend not configured"})
		return
	}
	cts, err := h.containers.ListContainers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "failed to list containers",
			Details: err.Error(),
		})
		return
	}
	if cts == nil {
		cts = []proxmox.Container{}
	}
	c.JSON(http.StatusOK, cts)
}

func (h *Handler) StartContainer(c *gin.Context) {
	if h.containers == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "container backend not configured"})
		return
	}
	id := c.Param("id")
	if err := h.containers.StartContainer(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "failed to start container",
			Details: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "container started"})
}

func (h *Handler) StopContainer(c *gin.Context) {
	if h.containers == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "container backend not configured"})
		return
	}
	id := c.Param("id")
	if err := h.containers.StopContainer(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "failed to stop container",
			Details: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "container stopped"})
}

func (h *Handler) writeEngineError(c *gin.Context, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, scheduler.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, scheduler.ErrDuplicatePending),
		errors.Is(err, scheduler.ErrInvalidState),
		errors.Is(err, scheduler.ErrNotPending):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.log.Warn("api request failed", logx.String("path", c.FullPath()), logx.Err(err))
	}
	c.JSON(status, ErrorResponse{
		Error:   msg,
		Details: err.Error(),
	})
}

func bearerAuth(token string) gin.HandlerFunc {
	tok := strings.TrimSpace(token)
	return func(c *gin.Context) {
		const p = "Bearer "
		ah := c.GetHeader("Authorization")
		if strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
			c.Next()
			return
		}
		c.Header("WWW-Authenticate", "Bearer")
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}
}
