package server

// handlers.go holds the HTTP handlers that read and control a simulation

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/iti/flowsim"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/iti/flowsim/server")

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// SpawnRequest names the endpoints of the edge a new request travels
type SpawnRequest struct {
	Source string `json:"source" binding:"required"`
	Target string `json:"target" binding:"required"`
}

// StateResponse is the full picture a renderer needs
type StateResponse struct {
	RunState flowsim.RunState `json:"runstate"`
	flowsim.Snapshot
}

// ControlResponse reports the run state after a control action
type ControlResponse struct {
	RunState flowsim.RunState `json:"runstate"`
	Time     float64          `json:"time"`
}

// Handlers serves one simulation through its scheduler
type Handlers struct {
	sch    *flowsim.Scheduler
	sim    *flowsim.Simulation
	hub    *Hub
	logger *slog.Logger

	// lifetime of runs started over HTTP; a request's own context ends with the request
	runCtx context.Context
}

// NewHandlers creates the handlers.  Runs started by POST /start last until runCtx is cancelled
func NewHandlers(runCtx context.Context, sch *flowsim.Scheduler, hub *Hub, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{sch: sch, sim: sch.Simulation(), hub: hub, logger: logger, runCtx: runCtx}
}

// HandlePackets returns the live packets
func (h *Handlers) HandlePackets(c *gin.Context) {
	c.JSON(http.StatusOK, h.sim.Packets())
}

// HandleNodes returns the runtime state of the nodes
func (h *Handlers) HandleNodes(c *gin.Context) {
	c.JSON(http.StatusOK, h.sim.NodeStates())
}

// HandleLogs returns the event log, oldest entry first
func (h *Handlers) HandleLogs(c *gin.Context) {
	c.JSON(http.StatusOK, h.sim.Logs())
}

// HandleState returns the run state with a snapshot of the simulation
func (h *Handlers) HandleState(c *gin.Context) {
	c.JSON(http.StatusOK, StateResponse{RunState: h.sch.State(), Snapshot: h.sim.Snapshot()})
}

// HandleDiagram returns the nodes and edges being played
func (h *Handlers) HandleDiagram(c *gin.Context) {
	src := h.sim.Source()
	if src == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no diagram loaded", Code: "NO_DIAGRAM"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"nodes": src.CurrentNodes(), "edges": src.CurrentEdges()})
}

func (h *Handlers) control(c *gin.Context, action string, fn func() error) {
	_, span := tracer.Start(c.Request.Context(), "sim."+action,
		trace.WithAttributes(attribute.String("sim.runstate.before", string(h.sch.State()))))
	defer span.End()

	if err := fn(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.logger.Info("control refused", "action", action, "error", err)
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "INVALID_RUN_STATE"})
		return
	}
	span.SetAttributes(attribute.String("sim.runstate.after", string(h.sch.State())))
	h.logger.Info("control", "action", action, "runstate", h.sch.State())
	c.JSON(http.StatusOK, ControlResponse{RunState: h.sch.State(), Time: h.sim.Now()})
}

// HandleStart starts or resumes the realtime run
func (h *Handlers) HandleStart(c *gin.Context) {
	h.control(c, "start", func() error { return h.sch.Start(h.runCtx) })
}

// HandlePause pauses the realtime run, keeping its state
func (h *Handlers) HandlePause(c *gin.Context) {
	h.control(c, "pause", h.sch.Pause)
}

// HandleStop stops the run and clears the simulation
func (h *Handlers) HandleStop(c *gin.Context) {
	h.control(c, "stop", func() error {
		h.sch.Stop()
		return nil
	})
}

// HandleSpawn injects a request packet over the edge from source to target
func (h *Handlers) HandleSpawn(c *gin.Context) {
	var req SpawnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	_, span := tracer.Start(c.Request.Context(), "sim.spawn",
		trace.WithAttributes(attribute.String("source", req.Source), attribute.String("target", req.Target)))
	defer span.End()

	pkt, err := h.sim.Spawn(req.Source, req.Target)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		status, code := http.StatusInternalServerError, "INTERNAL"
		switch {
		case errors.Is(err, flowsim.ErrUnknownNode):
			status, code = http.StatusNotFound, "UNKNOWN_NODE"
		case errors.Is(err, flowsim.ErrNoRoute):
			status, code = http.StatusUnprocessableEntity, "NO_ROUTE"
		}
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}
	span.SetAttributes(attribute.String("packet", pkt.ID))
	c.JSON(http.StatusCreated, pkt)
}

// HandleStream upgrades to a websocket carrying snapshot frames
func (h *Handlers) HandleStream(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}
