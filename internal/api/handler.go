// Package api exposes the simulation service over HTTP.
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"vpp_simulator/internal/repository"
	"vpp_simulator/internal/service"
	"vpp_simulator/internal/simulator"
)

// Handler serves the REST API. repo, ws and metrics may be nil.
type Handler struct {
	logger  *zap.Logger
	svc     *service.Service
	repo    repository.Repository
	ws      http.Handler
	metrics http.Handler
}

func NewHandler(logger *zap.Logger, svc *service.Service, repo repository.Repository, ws, metrics http.Handler) *Handler {
	return &Handler{logger: logger, svc: svc, repo: repo, ws: ws, metrics: metrics}
}

// RegisterRoutes mounts every route on r.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/scenario", h.GetScenario)
		api.POST("/components/:id/limit", h.LimitComponent)

		// runs
		api.POST("/runs", h.StartRun)
		api.GET("/runs", h.ListRuns)
		api.GET("/last-run", h.GetLastRun)
		api.GET("/runs/:id", h.GetRun)
		api.GET("/runs/:id/steps", h.GetRunSteps)
		api.DELETE("/runs/:id", h.DeleteRun)

		// grid results of the last run
		api.GET("/results", h.ListResults)
		api.GET("/results/:kind/:measurement", h.GetResult)

		// replay
		api.GET("/replay", h.GetReplay)
		api.POST("/replay/start", h.StartReplay)
		api.POST("/replay/pause", h.PauseReplay)
		api.POST("/replay/speed", h.SetReplaySpeed)
		api.POST("/replay/seek", h.SeekReplay)
	}

	if h.ws != nil {
		r.GET("/ws", gin.WrapH(h.ws))
	}
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics))
	}
	r.GET("/health", h.HealthCheck)
}

func (h *Handler) GetScenario(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": h.svc.Info()})
}

// LimitComponent scales a component's output for the next run.
// POST /api/components/:id/limit {"limit": 0.5}
func (h *Handler) LimitComponent(c *gin.Context) {
	var req struct {
		Limit *float64 `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Limit == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if *req.Limit < 0 || *req.Limit > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Limit must be within [0, 1]"})
		return
	}

	id := c.Param("id")
	if err := h.svc.LimitComponent(id, *req.Limit); err != nil {
		switch {
		case errors.Is(err, service.ErrBusy):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, simulator.ErrUnknownComponent):
			c.JSON(http.StatusNotFound, gin.H{"error": "Component not found"})
		default:
			h.logger.Error("Failed to limit component", zap.String("component", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	h.logger.Info("Component limited via API", zap.String("component", id), zap.Float64("limit", *req.Limit))
	c.JSON(http.StatusOK, gin.H{"data": h.svc.Info()})
}

// StartRun runs the scenario. With ?async=true it returns immediately and
// events arrive over the websocket.
// POST /api/runs
func (h *Handler) StartRun(c *gin.Context) {
	if async, _ := strconv.ParseBool(c.Query("async")); async {
		if err := h.svc.StartRun(); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"message": "Run started"})
		return
	}

	run, err := h.svc.Run(c.Request.Context())
	switch {
	case errors.Is(err, service.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil && run == nil:
		h.logger.Error("Failed to run scenario", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "data": run})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": run})
}

func (h *Handler) GetLastRun(c *gin.Context) {
	run, err := h.svc.LastRun()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No finished run"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": run})
}

func (h *Handler) ListRuns(c *gin.Context) {
	if !h.requireRepo(c) {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	runs, err := h.repo.ListRuns(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": runs})
}

func (h *Handler) GetRun(c *gin.Context) {
	id, ok := h.runID(c)
	if !ok {
		return
	}
	run, err := h.repo.GetRun(c.Request.Context(), id)
	if err != nil {
		h.repoError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": run})
}

func (h *Handler) GetRunSteps(c *gin.Context) {
	id, ok := h.runID(c)
	if !ok {
		return
	}
	steps, err := h.repo.GetSteps(c.Request.Context(), id)
	if err != nil {
		h.repoError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": steps})
}

func (h *Handler) DeleteRun(c *gin.Context) {
	id, ok := h.runID(c)
	if !ok {
		return
	}
	if err := h.repo.DeleteRun(c.Request.Context(), id); err != nil {
		h.repoError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListResults(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": simulator.ResultKeys()})
}

// GetResult returns one result table of the last run, as JSON rows or as
// CSV with ?format=csv.
// GET /api/results/:kind/:measurement
func (h *Handler) GetResult(c *gin.Context) {
	df, err := h.svc.Result(c.Param("kind"), c.Param("measurement"))
	switch {
	case errors.Is(err, service.ErrNoRun), errors.Is(err, simulator.ErrNoSnapshots):
		c.JSON(http.StatusNotFound, gin.H{"error": "No finished run"})
		return
	case errors.Is(err, simulator.ErrUnknownResult):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.logger.Error("Failed to extract result", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if c.Query("format") == "csv" {
		c.Header("Content-Type", "text/csv")
		c.Status(http.StatusOK)
		if err := df.WriteCSV(c.Writer); err != nil {
			h.logger.Error("Failed to write csv", zap.Error(err))
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"columns": df.Names(), "data": df.Maps()})
}

func (h *Handler) GetReplay(c *gin.Context) {
	p, ok := h.player(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": p.State()})
}

func (h *Handler) StartReplay(c *gin.Context) {
	p, ok := h.player(c)
	if !ok {
		return
	}
	p.Start()
	c.JSON(http.StatusOK, gin.H{"data": p.State()})
}

func (h *Handler) PauseReplay(c *gin.Context) {
	p, ok := h.player(c)
	if !ok {
		return
	}
	p.Pause()
	c.JSON(http.StatusOK, gin.H{"data": p.State()})
}

// SetReplaySpeed takes simulated seconds per wall second.
// POST /api/replay/speed {"speed": 3600}
func (h *Handler) SetReplaySpeed(c *gin.Context) {
	var req struct {
		Speed float64 `json:"speed"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Speed <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid speed"})
		return
	}
	p, ok := h.player(c)
	if !ok {
		return
	}
	p.SetSpeed(req.Speed)
	c.JSON(http.StatusOK, gin.H{"data": p.State()})
}

// SeekReplay moves the replay to an RFC 3339 timestamp.
// POST /api/replay/seek {"timestamp": "2015-06-01T12:00:00Z"}
func (h *Handler) SeekReplay(c *gin.Context) {
	var req struct {
		Timestamp string `json:"timestamp"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	t, err := time.Parse(time.RFC3339, req.Timestamp)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid timestamp"})
		return
	}
	p, ok := h.player(c)
	if !ok {
		return
	}
	p.Seek(t)
	c.JSON(http.StatusOK, gin.H{"data": p.State()})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"running":     h.svc.Running(),
		"persistence": h.repo != nil,
	})
}

func (h *Handler) player(c *gin.Context) (*simulator.Player, bool) {
	p, err := h.svc.Replay()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No finished run"})
		return nil, false
	}
	return p, true
}

func (h *Handler) requireRepo(c *gin.Context) bool {
	if h.repo == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Persistence disabled"})
		return false
	}
	return true
}

func (h *Handler) runID(c *gin.Context) (uuid.UUID, bool) {
	if !h.requireRepo(c) {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid run ID"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) repoError(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}
	h.logger.Error("Repository error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Repository error"})
}
