package flowsim

// nodestate.go holds the per-node counters the engine maintains
// for renderers: whether a node is showing activity, and how many
// packets it is processing

// NodeState is the runtime state of one node.  Active is a visual cue
// that clears by itself once simulated time passes ActiveUntil.
// PacketsQueued is carried for renderers but always zero, arrivals
// beyond capacity are dropped rather than queued
type NodeState struct {
	Active          bool    `json:"active" yaml:"active"`
	ProcessingCount int     `json:"processingcount" yaml:"processingcount"`
	PacketsQueued   int     `json:"packetsqueued" yaml:"packetsqueued"`
	LastActive      float64 `json:"lastactive" yaml:"lastactive"`
	ActiveUntil     float64 `json:"activeuntil" yaml:"activeuntil"`
}

// NodeStateTable maps node id to its runtime state.  Entries are created
// the first time a node is referenced and persist until the simulation is reset
type NodeStateTable map[string]NodeState

// Get returns the state of a node, the zero state if it was never referenced
func (nst NodeStateTable) Get(nodeID string) NodeState {
	return nst[nodeID]
}

// Clone returns an independent copy of the table
func (nst NodeStateTable) Clone() NodeStateTable {
	cpy := make(NodeStateTable, len(nst))
	for id, ns := range nst {
		cpy[id] = ns
	}
	return cpy
}

// markActive turns on the activity cue of a node until now+hold.
// An already longer cue is not shortened
func (nst NodeStateTable) markActive(nodeID string, now, hold float64) {
	ns := nst[nodeID]
	ns.Active = true
	ns.LastActive = now
	ns.ActiveUntil = max(ns.ActiveUntil, now+hold)
	nst[nodeID] = ns
}

// recount replaces every processing count with one taken from the packet set
func (nst NodeStateTable) recount(ps PacketSet) {
	for id, ns := range nst {
		ns.ProcessingCount = 0
		nst[id] = ns
	}
	for idx := range ps {
		if ps[idx].Status != Processing {
			continue
		}
		ns := nst[ps[idx].NodeID]
		ns.ProcessingCount += 1
		nst[ps[idx].NodeID] = ns
	}
}

// expire clears activity cues that have run their course, unless
// the node still holds a packet
func (nst NodeStateTable) expire(now float64) {
	for id, ns := range nst {
		if ns.Active && ns.ActiveUntil <= now && ns.ProcessingCount == 0 {
			ns.Active = false
			nst[id] = ns
		}
	}
}
