package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/iti/flowsim"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	sim    *flowsim.Simulation
	sch    *flowsim.Scheduler
	hub    *Hub
	router *gin.Engine
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	dgm, err := flowsim.Template("simple-api")
	require.NoError(t, err)
	cfg := flowsim.DefaultSimConfig()
	cfg.AutoSpawn = false
	cfg.TickMs = 5

	sim := flowsim.CreateSimulation(dgm, cfg, nil, nil)
	reg := prometheus.NewRegistry()
	sim.AddObserver(flowsim.NewMetrics(reg))
	hub := NewHub(sim, 1000, nil)
	sim.AddObserver(hub)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	sch := flowsim.CreateScheduler(sim, nil)
	t.Cleanup(sch.Stop)

	handlers := NewHandlers(ctx, sch, hub, nil)
	return &fixture{sim: sim, sch: sch, hub: hub, router: NewRouter(handlers, reg, nil)}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

type diagramBody struct {
	Nodes []flowsim.Node `json:"nodes"`
	Edges []flowsim.Edge `json:"edges"`
}

func TestHandleState(t *testing.T) {
	f := setupFixture(t)
	w := f.do(t, "GET", "/v1/sim/state", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[StateResponse](t, w)
	assert.Equal(t, flowsim.Stopped, resp.RunState)
	assert.Equal(t, int64(0), resp.Tick)
	assert.Empty(t, resp.Packets)

	w = f.do(t, "GET", "/v1/sim/diagram", nil)
	require.Equal(t, http.StatusOK, w.Code)
	diagram := decode[diagramBody](t, w)
	assert.Len(t, diagram.Nodes, 3)
	assert.Len(t, diagram.Edges, 2)
}

func TestHandleSpawn(t *testing.T) {
	f := setupFixture(t)

	w := f.do(t, "POST", "/v1/sim/spawn", SpawnRequest{Source: "t1-1", Target: "t1-2"})
	require.Equal(t, http.StatusCreated, w.Code)
	pkt := decode[flowsim.Packet](t, w)
	assert.Equal(t, "t1-1", pkt.SourceNodeID)
	assert.Equal(t, flowsim.Moving, pkt.Status)

	w = f.do(t, "GET", "/v1/sim/packets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	pkts := decode[[]flowsim.Packet](t, w)
	require.Len(t, pkts, 1)
	assert.Equal(t, pkt.ID, pkts[0].ID)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"missing target", map[string]string{"source": "t1-1"}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"unknown source", SpawnRequest{Source: "nope", Target: "t1-2"}, http.StatusNotFound, "UNKNOWN_NODE"},
		{"no edge", SpawnRequest{Source: "t1-1", Target: "t1-3"}, http.StatusUnprocessableEntity, "NO_ROUTE"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, "POST", "/v1/sim/spawn", tc.body)
			assert.Equal(t, tc.status, w.Code)
			assert.Equal(t, tc.code, decode[ErrorResponse](t, w).Code)
		})
	}
	assert.Len(t, f.sim.Packets(), 1)
}

func TestHandleControl(t *testing.T) {
	f := setupFixture(t)

	w := f.do(t, "POST", "/v1/sim/pause", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, "POST", "/v1/sim/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, flowsim.Running, decode[ControlResponse](t, w).RunState)

	w = f.do(t, "POST", "/v1/sim/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_RUN_STATE", decode[ErrorResponse](t, w).Code)

	require.Eventually(t, func() bool { return f.sim.Now() > 0 }, 5*time.Second, 5*time.Millisecond)

	w = f.do(t, "POST", "/v1/sim/pause", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, flowsim.Paused, decode[ControlResponse](t, w).RunState)

	w = f.do(t, "GET", "/v1/sim/logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs := decode[[]flowsim.LogEntry](t, w)
	require.Len(t, logs, 2)
	assert.Equal(t, "Simulation started", logs[0].Message)

	w = f.do(t, "POST", "/v1/sim/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ControlResponse](t, w)
	assert.Equal(t, flowsim.Stopped, resp.RunState)
	assert.Equal(t, 0.0, resp.Time)
}

func TestMetricsEndpoint(t *testing.T) {
	f := setupFixture(t)
	_, err := f.sim.Spawn("t1-1", "t1-2")
	require.NoError(t, err)
	f.sim.Tick()

	w := f.do(t, "GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "flowsim_ticks_total 1")
	assert.Contains(t, w.Body.String(), "flowsim_live_packets 1")

	w = f.do(t, "GET", "/v1/sim/nodes", nil)
	require.Equal(t, http.StatusOK, w.Code)
	nodes := decode[flowsim.NodeStateTable](t, w)
	assert.True(t, nodes["t1-1"].Active, "the spawning client is flashed")
}

func TestStream(t *testing.T) {
	f := setupFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.hub.Run(ctx)

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sim/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readFrame := func() Frame {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var frame Frame
		require.NoError(t, conn.ReadJSON(&frame))
		return frame
	}

	hello := readFrame()
	assert.Equal(t, "hello", hello.Type)
	assert.Equal(t, int64(0), hello.Snapshot.Tick)

	_, err = f.sim.Spawn("t1-1", "t1-2")
	require.NoError(t, err)
	f.sim.Tick()

	frame := readFrame()
	assert.Equal(t, "tick", frame.Type)
	assert.Equal(t, int64(1), frame.Snapshot.Tick)
	assert.Len(t, frame.Snapshot.Packets, 1)

	f.sim.Reset()
	frame = readFrame()
	assert.Equal(t, "reset", frame.Type)
	assert.Empty(t, frame.Snapshot.Packets)
	assert.Equal(t, 0, f.hub.Dropped())
}
