package flowsim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// constRand returns the same sample every draw
type constRand float64

func (c constRand) RandU01() float64 { return float64(c) }

// seqRand cycles through a fixed list of samples
type seqRand struct {
	vals  []float64
	draws int
}

func (s *seqRand) RandU01() float64 {
	v := s.vals[s.draws%len(s.vals)]
	s.draws += 1
	return v
}

func quietConfig() *SimConfig {
	cfg := DefaultSimConfig()
	cfg.AutoSpawn = false
	return cfg
}

func emptyState() State {
	return State{Packets: PacketSet{}, Nodes: NodeStateTable{}}
}

// scenarioDiagram is client c1 -> api a1 (100ms, capacity 1) -> db d1 (500ms)
func scenarioDiagram(t *testing.T) *Diagram {
	t.Helper()
	dgm := CreateDiagram("scenario")
	require.NoError(t, dgm.AddNode(Node{ID: "c1", Kind: ClientKind, Label: "Client"}))
	require.NoError(t, dgm.AddNode(Node{ID: "a1", Kind: APIKind, Label: "API", Latency: 100, Capacity: 1}))
	require.NoError(t, dgm.AddNode(Node{ID: "d1", Kind: DatabaseKind, Label: "DB", Latency: 500}))
	require.NoError(t, dgm.AddEdge("e1", "c1", "a1"))
	require.NoError(t, dgm.AddEdge("e2", "a1", "d1"))
	return dgm
}

// chainDiagram is client A -> B -> C, each hop 100ms
func chainDiagram(t *testing.T) *Diagram {
	t.Helper()
	dgm := CreateDiagram("chain")
	require.NoError(t, dgm.AddNode(Node{ID: "A", Kind: ClientKind, Label: "A", Latency: 100}))
	require.NoError(t, dgm.AddNode(Node{ID: "B", Kind: ServiceKind, Label: "B", Latency: 100}))
	require.NoError(t, dgm.AddNode(Node{ID: "C", Kind: DatabaseKind, Label: "C", Latency: 100}))
	require.NoError(t, dgm.AddEdge("ab", "A", "B"))
	require.NoError(t, dgm.AddEdge("bc", "B", "C"))
	return dgm
}

// runUntilRetired steps the engine until the packet leaves the live set,
// returning the packet as retired and every report produced on the way
func runUntilRetired(t *testing.T, eng *Engine, state State, src GraphSource, pktID string) (Packet, []TickReport) {
	t.Helper()
	reports := []TickReport{}
	for range 1000 {
		var rpt TickReport
		state, rpt = eng.Step(state, src)
		reports = append(reports, rpt)
		for _, pkt := range rpt.Retired {
			if pkt.ID == pktID {
				return pkt, reports
			}
		}
	}
	require.FailNow(t, "packet never retired", pktID)
	return Packet{}, nil
}

func hopsOf(reports []TickReport, pktID string, op HopOp) []HopEvent {
	hops := []HopEvent{}
	for _, rpt := range reports {
		for _, hop := range rpt.Hops {
			if hop.PacketID == pktID && hop.Op == op {
				hops = append(hops, hop)
			}
		}
	}
	return hops
}

func messages(entries []LogEntry) []string {
	msgs := make([]string, len(entries))
	for idx, entry := range entries {
		msgs[idx] = entry.Message
	}
	return msgs
}

func loggedIn(reports []TickReport) []string {
	msgs := []string{}
	for _, rpt := range reports {
		msgs = append(msgs, messages(rpt.Logged)...)
	}
	return msgs
}
