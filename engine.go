package flowsim

// engine.go holds the tick engine.  Each tick takes the packet set and node
// state table committed by the previous tick, and computes from them (never
// modifying them) the packet set and node states of the next tick, plus the
// log entries and hop events the tick produced.
//
// Processing at a node is instantaneous.  A packet that arrives at a node
// during tick t appears in processing there in the state committed by t,
// and during tick t+1 it is either sent along an edge, turned into a
// response, or retired.  All the time a round trip takes is travel time,
// and the travel time of an edge is the latency of the node it leads to.

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

// HopOp names what happened to a packet in a HopEvent
type HopOp string

const (
	SpawnOp    HopOp = "spawn"
	ArriveOp   HopOp = "arrive"
	RejectOp   HopOp = "reject"
	FailOp     HopOp = "fail"
	ForwardOp  HopOp = "forward"
	TurnOp     HopOp = "turn"
	ReturnOp   HopOp = "return"
	CompleteOp HopOp = "complete"
)

// HopEvent records one step in the life of a packet
type HopEvent struct {
	Time     float64    `json:"time" yaml:"time"`
	PacketID string     `json:"packetid" yaml:"packetid"`
	Op       HopOp      `json:"op" yaml:"op"`
	NodeID   string     `json:"nodeid,omitempty" yaml:"nodeid,omitempty"`
	EdgeID   string     `json:"edgeid,omitempty" yaml:"edgeid,omitempty"`
	Kind     PacketKind `json:"kind" yaml:"kind"`
	Reason   FailReason `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// State is what a tick commits: the live packets and the node states
type State struct {
	Packets PacketSet      `json:"packets" yaml:"packets"`
	Nodes   NodeStateTable `json:"nodes" yaml:"nodes"`
}

// TickReport describes the outcome of one tick to observers
type TickReport struct {
	Tick      int64             `json:"tick" yaml:"tick"`
	Time      float64           `json:"time" yaml:"time"`
	Spawned   []Packet          `json:"spawned" yaml:"spawned"`
	Retired   []Packet          `json:"retired" yaml:"retired"`
	Hops      []HopEvent        `json:"hops" yaml:"hops"`
	Logged    []LogEntry        `json:"logged" yaml:"logged"`
	Triggered []SimulationEvent `json:"triggered" yaml:"triggered"`
	Refused   []RefusedEvent    `json:"refused" yaml:"refused"`
	Live      int               `json:"live" yaml:"live"`
	Load      map[string]int    `json:"load" yaml:"load"`
	Elapsed   time.Duration     `json:"elapsed" yaml:"elapsed"`
}

// graphView is the diagram as read at the start of a tick, indexed for lookups
type graphView struct {
	nodes    map[string]*Node
	edges    []Edge
	edgeByID map[string]*Edge
	outgoing map[string][]*Edge
	clients  []*Node
}

func newGraphView(src GraphSource) *graphView {
	gv := new(graphView)
	nodes := src.CurrentNodes()
	gv.edges = src.CurrentEdges()
	gv.nodes = make(map[string]*Node, len(nodes))
	gv.edgeByID = make(map[string]*Edge, len(gv.edges))
	gv.outgoing = make(map[string][]*Edge)
	gv.clients = make([]*Node, 0)

	for idx := range nodes {
		node := &nodes[idx]
		gv.nodes[node.ID] = node
		if kind, _ := KindFromStr(string(node.Kind)); kind == ClientKind {
			gv.clients = append(gv.clients, node)
		}
	}
	for idx := range gv.edges {
		edge := &gv.edges[idx]
		gv.edgeByID[edge.ID] = edge
		gv.outgoing[edge.Source] = append(gv.outgoing[edge.Source], edge)
	}
	return gv
}

// findEdge returns the first edge in diagram order from source to target
func (gv *graphView) findEdge(source, target string) *Edge {
	for idx := range gv.edges {
		if gv.edges[idx].Source == source && gv.edges[idx].Target == target {
			return &gv.edges[idx]
		}
	}
	return nil
}

// connecting returns the first edge in diagram order joining the two
// nodes, in either direction
func (gv *graphView) connecting(a, b string) *Edge {
	for idx := range gv.edges {
		edge := &gv.edges[idx]
		if (edge.Source == a && edge.Target == b) || (edge.Source == b && edge.Target == a) {
			return edge
		}
	}
	return nil
}

// Engine advances a simulation one tick at a time.  It owns the simulated
// clock, the spawn clock and the random source; the committed state
// is owned by its caller
type Engine struct {
	cfg      *SimConfig
	rng      RandSource
	timeline *Timeline

	tick      int64
	now       float64 // simulated ms
	lastSpawn float64
	hasSpawn  bool
	seq       int64
}

// CreateEngine is a constructor.  A nil cfg selects DefaultSimConfig and
// a nil rng an rngstream stream named after the configuration
func CreateEngine(cfg *SimConfig, rng RandSource) *Engine {
	if cfg == nil {
		cfg = DefaultSimConfig()
	}
	if rng == nil {
		rng = NewStreamSource(cfg.Name, cfg.Stream)
	}
	return &Engine{cfg: cfg, rng: rng}
}

// Now is the simulated time in ms reached by the last tick
func (eng *Engine) Now() float64 {
	return eng.now
}

// Ticks is the number of ticks computed since creation or the last reset
func (eng *Engine) Ticks() int64 {
	return eng.tick
}

// SetTimeline attaches scripted events, replacing any attached before
func (eng *Engine) SetTimeline(tl *Timeline) {
	eng.timeline = tl
}

// Reset rewinds the clocks and any attached timeline
func (eng *Engine) Reset() {
	eng.tick = 0
	eng.now = 0.0
	eng.lastSpawn = 0.0
	eng.hasSpawn = false
	if eng.timeline != nil {
		eng.timeline.Rewind()
	}
}

// tickCtx gathers what one tick accumulates as it goes
type tickCtx struct {
	gv    *graphView
	nodes NodeStateTable
	rpt   *TickReport
}

func (tc *tickCtx) log(sev Severity, format string, args ...any) {
	tc.rpt.Logged = append(tc.rpt.Logged,
		LogEntry{ID: uuid.NewString(), Timestamp: tc.rpt.Time, Message: fmt.Sprintf(format, args...), Severity: sev})
}

func (tc *tickCtx) hop(pkt *Packet, op HopOp, nodeID, edgeID string) {
	tc.rpt.Hops = append(tc.rpt.Hops, HopEvent{Time: tc.rpt.Time, PacketID: pkt.ID, Op: op,
		NodeID: nodeID, EdgeID: edgeID, Kind: pkt.Kind, Reason: pkt.FailReason})
}

// Step computes the tick that follows prev.  prev is not modified; the
// returned State shares nothing with it
func (eng *Engine) Step(prev State, src GraphSource) (State, TickReport) {
	started := time.Now()
	eng.tick += 1
	eng.now = roundFloat(eng.now+eng.cfg.TickMs, rdigits)

	rpt := TickReport{Tick: eng.tick, Time: eng.now, Spawned: []Packet{}, Retired: []Packet{},
		Hops: []HopEvent{}, Logged: []LogEntry{}, Triggered: []SimulationEvent{}, Refused: []RefusedEvent{}}
	tc := &tickCtx{gv: newGraphView(src), nodes: prev.Nodes.Clone(), rpt: &rpt}
	if tc.nodes == nil {
		tc.nodes = make(NodeStateTable)
	}

	// loads as they stood before the tick
	load := make(map[string]int)
	for idx := range prev.Packets {
		if prev.Packets[idx].Status == Processing {
			load[prev.Packets[idx].NodeID] += 1
		}
	}

	next := make(PacketSet, len(prev.Packets))
	arrivals := []int{}
	for idx := range prev.Packets {
		pkt := prev.Packets[idx].Clone()
		switch pkt.Status {
		case Moving:
			if eng.advance(tc, &pkt) {
				arrivals = append(arrivals, idx)
			}
		case Processing:
			eng.process(tc, &pkt)
		}
		next[idx] = pkt
	}

	// same-tick arrivals are admitted in creation order, whatever
	// their position in the packet set
	slices.SortStableFunc(arrivals, func(a, b int) int {
		pa, pb := &next[a], &next[b]
		switch {
		case pa.Timestamp < pb.Timestamp:
			return -1
		case pa.Timestamp > pb.Timestamp:
			return 1
		case pa.Seq < pb.Seq:
			return -1
		case pa.Seq > pb.Seq:
			return 1
		}
		return 0
	})
	admitted := make(map[string]int)
	for _, idx := range arrivals {
		eng.arrive(tc, &next[idx], load, admitted)
	}

	// scripted events, then organic traffic
	live := next.Live()
	if eng.timeline != nil {
		for _, evt := range eng.timeline.Due(eng.now) {
			if evt.Action != PacketAction {
				rpt.Triggered = append(rpt.Triggered, evt)
				continue
			}
			if evt.Data == nil || len(evt.Data.TargetNodeID) == 0 {
				rpt.Refused = append(rpt.Refused, RefusedEvent{Event: evt, Reason: "no target node"})
				continue
			}
			pkt, err := eng.spawnOn(tc.gv, tc.nodes, evt.NodeID, evt.Data.TargetNodeID)
			if err != nil {
				rpt.Refused = append(rpt.Refused, RefusedEvent{Event: evt, Reason: err.Error()})
				continue
			}
			tc.hop(&pkt, SpawnOp, pkt.SourceNodeID, pkt.EdgeID)
			rpt.Spawned = append(rpt.Spawned, pkt)
			live += 1
		}
	}
	if pkt, spawned := eng.autoSpawn(tc, live); spawned {
		tc.hop(&pkt, SpawnOp, pkt.SourceNodeID, pkt.EdgeID)
		rpt.Spawned = append(rpt.Spawned, pkt)
	}

	// commit
	committed := make(PacketSet, 0, len(next)+len(rpt.Spawned))
	for idx := range next {
		if next[idx].Live() {
			committed = append(committed, next[idx])
		} else {
			rpt.Retired = append(rpt.Retired, next[idx])
		}
	}
	for _, pkt := range rpt.Spawned {
		committed = append(committed, pkt.Clone())
	}
	tc.nodes.recount(committed)
	tc.nodes.expire(eng.now)

	rpt.Live = len(committed)
	rpt.Load = make(map[string]int)
	for id, ns := range tc.nodes {
		if ns.ProcessingCount > 0 {
			rpt.Load[id] = ns.ProcessingCount
		}
	}
	rpt.Elapsed = time.Since(started)
	return State{Packets: committed, Nodes: tc.nodes}, rpt
}

// travelMs is the time to traverse the edge a packet is on
func (eng *Engine) travelMs(gv *graphView, pkt *Packet) float64 {
	targetID := pkt.TargetNodeID
	if edge, present := gv.edgeByID[pkt.EdgeID]; present {
		// on the response leg the edge is crossed backwards, but
		// it is still the edge's target that sets its latency
		targetID = edge.Target
	}
	if node, present := gv.nodes[targetID]; present {
		return node.latencyOr(eng.cfg.DefaultLatencyMs)
	}
	if node, present := gv.nodes[pkt.TargetNodeID]; present {
		return node.latencyOr(eng.cfg.DefaultLatencyMs)
	}
	return eng.cfg.DefaultLatencyMs
}

// advance moves a packet along its edge, reporting whether it arrived
func (eng *Engine) advance(tc *tickCtx, pkt *Packet) bool {
	steps := max(1.0, eng.travelMs(tc.gv, pkt)/eng.cfg.TickMs)
	pkt.Progress += 100.0 / steps
	if pkt.Progress >= 100.0-1e-6 {
		pkt.Progress = 100.0
		return true
	}
	return false
}

// arrive applies the policies of the node a packet has reached
func (eng *Engine) arrive(tc *tickCtx, pkt *Packet, load, admitted map[string]int) {
	node, present := tc.gv.nodes[pkt.TargetNodeID]
	if !present {
		pkt.fail(TopologyFailure)
		tc.hop(pkt, FailOp, pkt.TargetNodeID, pkt.EdgeID)
		return
	}
	name := node.displayName()
	capacity := node.capacityOr(eng.cfg.DefaultCapacity)

	if load[node.ID]+admitted[node.ID] >= capacity {
		pkt.fail(CapacityFailure)
		tc.log(ErrorSev, "Capacity exceeded at %s (%d/%d)", name, load[node.ID]+admitted[node.ID], capacity)
		tc.nodes.markActive(node.ID, eng.now, eng.cfg.RejectFlashMs)
		tc.hop(pkt, RejectOp, node.ID, pkt.EdgeID)
		return
	}

	if percentDraw(eng.rng, node.FailureRate) {
		pkt.fail(RandomFailure)
		tc.log(ErrorSev, "Request failed at %s", name)
		tc.nodes.markActive(node.ID, eng.now, eng.cfg.RejectFlashMs)
		tc.hop(pkt, FailOp, node.ID, pkt.EdgeID)
		return
	}

	admitted[node.ID] += 1
	edgeID := pkt.EdgeID
	if pkt.Kind == ResponsePkt {
		pkt.StackIndex -= 1
	} else {
		pkt.PathStack = append(slices.Clone(pkt.PathStack), node.ID)
		pkt.StackIndex = len(pkt.PathStack) - 1
	}
	pkt.settleAt(node.ID)
	tc.nodes.markActive(node.ID, eng.now, eng.cfg.TickMs)
	tc.hop(pkt, ArriveOp, node.ID, edgeID)
}

// process decides the next step of a packet in processing at a node
func (eng *Engine) process(tc *tickCtx, pkt *Packet) {
	node, present := tc.gv.nodes[pkt.NodeID]
	if !present {
		pkt.fail(TopologyFailure)
		tc.hop(pkt, FailOp, pkt.NodeID, "")
		return
	}

	if pkt.Kind == ResponsePkt {
		if pkt.StackIndex <= 0 {
			pkt.Status = Completed
			tc.log(SuccessSev, "Response received at %s", node.displayName())
			tc.hop(pkt, CompleteOp, node.ID, "")
			return
		}
		prevID := pkt.PathStack[pkt.StackIndex-1]
		edge := tc.gv.connecting(node.ID, prevID)
		if edge == nil {
			pkt.fail(TopologyFailure)
			tc.hop(pkt, FailOp, node.ID, "")
			return
		}
		pkt.moveAlong(edge.ID, node.ID, prevID)
		tc.hop(pkt, ReturnOp, node.ID, edge.ID)
		return
	}

	outgoing := tc.gv.outgoing[node.ID]
	if len(outgoing) > 0 && percentDraw(eng.rng, node.forwardRate()) {
		edge := outgoing[pickIndex(eng.rng, len(outgoing))]
		pkt.moveAlong(edge.ID, node.ID, edge.Target)
		tc.hop(pkt, ForwardOp, node.ID, edge.ID)
		return
	}

	pkt.Kind = ResponsePkt
	if len(outgoing) == 0 {
		tc.log(InfoSev, "Request processed at %s. Sending response.", node.displayName())
	} else {
		tc.log(InfoSev, "Request sampled at %s. Returning early.", node.displayName())
	}
	tc.nodes.markActive(node.ID, eng.now, eng.cfg.TickMs)
	tc.hop(pkt, TurnOp, node.ID, "")
}

// autoSpawn applies the spawn policy, given the number of packets live
func (eng *Engine) autoSpawn(tc *tickCtx, live int) (Packet, bool) {
	if !eng.cfg.AutoSpawn || live >= eng.cfg.MaxLive {
		return Packet{}, false
	}
	if eng.hasSpawn && eng.now-eng.lastSpawn < eng.cfg.SpawnIntervalMs {
		return Packet{}, false
	}
	if live > 0 && eng.rng.RandU01() >= eng.cfg.SpawnChance {
		return Packet{}, false
	}
	if len(tc.gv.clients) == 0 {
		return Packet{}, false
	}
	client := tc.gv.clients[pickIndex(eng.rng, len(tc.gv.clients))]
	outgoing := tc.gv.outgoing[client.ID]
	if len(outgoing) == 0 {
		return Packet{}, false
	}
	edge := outgoing[pickIndex(eng.rng, len(outgoing))]

	// only organic traffic runs the spawn clock
	eng.lastSpawn = eng.now
	eng.hasSpawn = true
	return eng.launch(tc.nodes, client.ID, edge), true
}

// spawnOn creates a request from source to target over the edge joining them
func (eng *Engine) spawnOn(gv *graphView, nodes NodeStateTable, source, target string) (Packet, error) {
	if _, present := gv.nodes[source]; !present {
		return Packet{}, fmt.Errorf("spawn at %s: %w", source, ErrUnknownNode)
	}
	edge := gv.findEdge(source, target)
	if edge == nil {
		return Packet{}, fmt.Errorf("spawn %s to %s: %w", source, target, ErrNoRoute)
	}
	return eng.launch(nodes, source, edge), nil
}

// launch builds a new request leaving source over edge, and flashes the source
func (eng *Engine) launch(nodes NodeStateTable, source string, edge *Edge) Packet {
	eng.seq += 1
	pkt := Packet{ID: uuid.NewString(), Seq: eng.seq, Kind: RequestPkt, Timestamp: eng.now,
		PathStack: []string{source}, StackIndex: 0}
	pkt.moveAlong(edge.ID, source, edge.Target)
	nodes.markActive(source, eng.now, eng.cfg.SpawnFlashMs)
	return pkt
}

// Spawn creates a request between two named nodes outside of a tick.
// The packet is added to the state and starts moving on the next tick
func (eng *Engine) Spawn(state State, src GraphSource, source, target string) (State, Packet, error) {
	nodes := state.Nodes.Clone()
	if nodes == nil {
		nodes = make(NodeStateTable)
	}
	pkt, err := eng.spawnOn(newGraphView(src), nodes, source, target)
	if err != nil {
		return state, Packet{}, err
	}
	pkts := state.Packets.Clone()
	pkts = append(pkts, pkt.Clone())
	return State{Packets: pkts, Nodes: nodes}, pkt, nil
}
