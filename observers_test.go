package flowsim

import (
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func failingReport() *TickReport {
	return &TickReport{
		Tick:    7,
		Time:    350,
		Spawned: []Packet{{ID: "new"}},
		Retired: []Packet{
			{ID: "ok", Status: Completed, Timestamp: 50},
			{ID: "full", Status: Failed, FailReason: CapacityFailure},
			{ID: "unlucky", Status: Failed, FailReason: RandomFailure},
			{ID: "lost", Status: Failed, FailReason: TopologyFailure},
			{ID: "full2", Status: Failed, FailReason: CapacityFailure},
		},
		Logged: []LogEntry{{Severity: ErrorSev}, {Severity: ErrorSev}, {Severity: SuccessSev}},
		Live:   3,
		Load:   map[string]int{"a1": 2},
	}
}

func TestRunSummary(t *testing.T) {
	rs := CreateRunSummary()
	rs.OnTick(failingReport())
	rs.OnTick(&TickReport{Tick: 8, Time: 400, Live: 1,
		Retired: []Packet{{ID: "ok2", Status: Completed, Timestamp: 300}}})

	assert.Equal(t, int64(8), rs.Ticks)
	assert.Equal(t, 1, rs.Spawned)
	assert.Equal(t, 2, rs.Completed)
	assert.Equal(t, 4, rs.TotalFailed())
	assert.Equal(t, 2, rs.Failed[CapacityFailure])
	assert.Equal(t, 3, rs.PeakLive)
	assert.Equal(t, 100.0, rs.RoundTripMin)
	assert.Equal(t, 300.0, rs.RoundTripMax)
	assert.Equal(t, 200.0, rs.MeanRoundTrip())

	out := rs.String()
	assert.Contains(t, out, "spawned 1, completed 2, failed 4, peak live 3")
	assert.Contains(t, out, "failed (capacity) 2")
	assert.Contains(t, out, "round trip mean 200.0ms")

	rs.OnReset()
	assert.Equal(t, 0, rs.Completed)
	assert.Equal(t, 0, rs.TotalFailed())
	assert.Equal(t, 0.0, rs.MeanRoundTrip())
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.OnTick(failingReport())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.spawned))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completed))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.failed.WithLabelValues("capacity")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failed.WithLabelValues("topology")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.logged.WithLabelValues("error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.live))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.processing.WithLabelValues("a1")))

	m.OnTick(&TickReport{Live: 0, Load: map[string]int{}})
	assert.Equal(t, 0, testutil.CollectAndCount(m.processing), "nodes no longer loaded are dropped")

	count, err := testutil.GatherAndCount(reg, "flowsim_ticks_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestTraceManagerObservesRun(t *testing.T) {
	dgm := scenarioDiagram(t)
	tm := CreateTraceManager("scenario", true)
	require.NoError(t, tm.AddDiagram(dgm))
	assert.ErrorIs(t, tm.AddName("c1", "again", "client"), ErrDuplicateID)
	assert.Equal(t, NameType{Name: "API", Type: "api"}, tm.NameByID["a1"])

	sim := CreateSimulation(dgm, quietConfig(), constRand(0.5), nil)
	sim.AddObserver(tm)
	pkt, err := sim.Spawn("c1", "a1")
	require.NoError(t, err)
	for range 29 {
		sim.Tick()
	}

	assert.Equal(t, []string{pkt.ID}, tm.PacketIDs())
	assert.Equal(t, []string{"a1", "d1", "a1", "c1"}, tm.Visited(pkt.ID))
	hops := tm.Hops(pkt.ID)
	assert.Equal(t, CompleteOp, hops[len(hops)-1].Op)

	filename := filepath.Join(t.TempDir(), "trace.json")
	written, err := tm.WriteToFile(filename)
	require.NoError(t, err)
	assert.True(t, written)

	read, err := ReadTraceManager(filename, false, []byte{})
	require.NoError(t, err)
	assert.Equal(t, tm.Traces, read.Traces)
	assert.Equal(t, "scenario", read.ExpName)

	sim.Reset()
	assert.Empty(t, tm.PacketIDs())
}

func TestTraceManagerInactive(t *testing.T) {
	tm := CreateTraceManager("off", false)
	tm.AddTrace(HopEvent{PacketID: "p", Op: SpawnOp})
	assert.NoError(t, tm.AddName("n", "n", "api"))
	assert.Empty(t, tm.Traces)
	assert.Empty(t, tm.NameByID)

	written, err := tm.WriteToFile(filepath.Join(t.TempDir(), "trace.yaml"))
	assert.NoError(t, err)
	assert.False(t, written)
}
