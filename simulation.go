package flowsim

// simulation.go holds the Simulation, the single owner of the state of a run.
// The tick engine is its only writer, through Tick; renderers, the HTTP layer
// and observers read copies of the committed state through its accessors

import (
	"log/slog"
	"sync"
)

// Observer is told about each tick once it has been committed
type Observer interface {
	OnTick(rpt *TickReport)
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(rpt *TickReport)

// OnTick calls the function
func (of ObserverFunc) OnTick(rpt *TickReport) {
	of(rpt)
}

// Resetter is implemented by observers that clear what they
// have accumulated when the simulation is reset
type Resetter interface {
	OnReset()
}

// Snapshot is a consistent copy of everything a renderer shows
type Snapshot struct {
	Tick    int64          `json:"tick" yaml:"tick"`
	Time    float64        `json:"time" yaml:"time"`
	Packets PacketSet      `json:"packets" yaml:"packets"`
	Nodes   NodeStateTable `json:"nodes" yaml:"nodes"`
	Logs    []LogEntry     `json:"logs" yaml:"logs"`
}

// Simulation ties a diagram source to the engine that plays it and the state it commits
type Simulation struct {
	mu        sync.RWMutex
	cfg       *SimConfig
	eng       *Engine
	src       GraphSource
	state     State
	log       *EventLog
	observers []Observer
	logger    *slog.Logger
}

// CreateSimulation is a constructor.  A nil cfg selects DefaultSimConfig, a nil rng
// an rngstream stream chosen by the configuration, and a nil logger slog.Default()
func CreateSimulation(src GraphSource, cfg *SimConfig, rng RandSource, logger *slog.Logger) *Simulation {
	if cfg == nil {
		cfg = DefaultSimConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	sim := &Simulation{cfg: cfg, src: src, logger: logger.With("sim", cfg.Name)}
	sim.eng = CreateEngine(cfg, rng)
	sim.log = CreateEventLog(cfg.LogSize)
	sim.state = State{Packets: PacketSet{}, Nodes: make(NodeStateTable)}
	return sim
}

// Config returns a copy of the run parameters
func (sim *Simulation) Config() SimConfig {
	return *sim.cfg
}

// SetSource replaces the diagram played.  It takes effect at the next tick
func (sim *Simulation) SetSource(src GraphSource) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	sim.src = src
}

// Source returns the diagram being played
func (sim *Simulation) Source() GraphSource {
	sim.mu.RLock()
	defer sim.mu.RUnlock()
	return sim.src
}

// SetTimeline attaches scripted events to the run
func (sim *Simulation) SetTimeline(tl *Timeline) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	sim.eng.SetTimeline(tl)
}

// AddObserver registers an observer, called after each tick in order of registration
func (sim *Simulation) AddObserver(obs Observer) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	sim.observers = append(sim.observers, obs)
}

// emptySource stands in when no diagram has been given
type emptySource struct{}

func (emptySource) CurrentNodes() []Node { return []Node{} }
func (emptySource) CurrentEdges() []Edge { return []Edge{} }

// Tick computes and commits one tick, then tells the observers about it
func (sim *Simulation) Tick() TickReport {
	sim.mu.Lock()
	src := sim.src
	if src == nil {
		src = emptySource{}
	}
	next, rpt := sim.eng.Step(sim.state, src)
	sim.state = next
	for _, entry := range rpt.Logged {
		sim.log.Append(entry)
	}
	observers := append([]Observer(nil), sim.observers...)
	sim.mu.Unlock()

	if len(rpt.Spawned) > 0 || len(rpt.Retired) > 0 {
		sim.logger.Debug("tick", "tick", rpt.Tick, "time", rpt.Time,
			"spawned", len(rpt.Spawned), "retired", len(rpt.Retired), "live", rpt.Live)
	}
	for _, refused := range rpt.Refused {
		sim.logger.Warn("timeline event spawned nothing", "event", refused.Event.ID,
			"node", refused.Event.NodeID, "time", refused.Event.Time, "reason", refused.Reason)
	}
	for _, obs := range observers {
		obs.OnTick(&rpt)
	}
	return rpt
}

// Spawn injects a request from source to target over the edge joining them.
// ErrUnknownNode or ErrNoRoute is returned, and nothing spawned, when the
// source node or the edge does not exist
func (sim *Simulation) Spawn(source, target string) (Packet, error) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	src := sim.src
	if src == nil {
		src = emptySource{}
	}
	next, pkt, err := sim.eng.Spawn(sim.state, src, source, target)
	if err != nil {
		sim.logger.Info("spawn refused", "source", source, "target", target, "err", err)
		return Packet{}, err
	}
	sim.state = next
	return pkt, nil
}

// Packets returns a copy of the live packets
func (sim *Simulation) Packets() PacketSet {
	sim.mu.RLock()
	defer sim.mu.RUnlock()
	return sim.state.Packets.Clone()
}

// NodeState returns the runtime state of one node
func (sim *Simulation) NodeState(nodeID string) NodeState {
	sim.mu.RLock()
	defer sim.mu.RUnlock()
	return sim.state.Nodes.Get(nodeID)
}

// NodeStates returns a copy of the node state table
func (sim *Simulation) NodeStates() NodeStateTable {
	sim.mu.RLock()
	defer sim.mu.RUnlock()
	return sim.state.Nodes.Clone()
}

// Logs returns the event log, oldest entry first
func (sim *Simulation) Logs() []LogEntry {
	sim.mu.RLock()
	defer sim.mu.RUnlock()
	return sim.log.Entries()
}

// AddLog appends an entry to the event log, stamped with the current simulated time
func (sim *Simulation) AddLog(sev Severity, msg string) LogEntry {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	return sim.log.Add(sim.eng.Now(), sev, msg)
}

// ReplaceLog discards the event log and keeps the most recent of the entries given
func (sim *Simulation) ReplaceLog(entries []LogEntry) {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	sim.log.Replace(entries)
}

// ClearLog empties the event log
func (sim *Simulation) ClearLog() {
	sim.mu.Lock()
	defer sim.mu.Unlock()
	sim.log.Clear()
}

// Now is the simulated time in ms
func (sim *Simulation) Now() float64 {
	sim.mu.RLock()
	defer sim.mu.RUnlock()
	return sim.eng.Now()
}

// Reset discards the packets, node states and log, and rewinds the clocks
// and the timeline.  Observers that accumulate are reset too
func (sim *Simulation) Reset() {
	sim.mu.Lock()
	sim.state = State{Packets: PacketSet{}, Nodes: make(NodeStateTable)}
	sim.log.Clear()
	sim.eng.Reset()
	observers := append([]Observer(nil), sim.observers...)
	sim.mu.Unlock()

	for _, obs := range observers {
		if rs, ok := obs.(Resetter); ok {
			rs.OnReset()
		}
	}
}

// Snapshot returns a consistent copy of the committed state and the log
func (sim *Simulation) Snapshot() Snapshot {
	sim.mu.RLock()
	defer sim.mu.RUnlock()
	return Snapshot{Tick: sim.eng.Ticks(), Time: sim.eng.Now(),
		Packets: sim.state.Packets.Clone(), Nodes: sim.state.Nodes.Clone(), Logs: sim.log.Entries()}
}
