package flowsim

// trace.go holds the TraceManager, which gathers the hop events of every packet of
// a run so that the life of each can be analyzed after the run, or saved to file

import (
	"fmt"
	"sync"

	"golang.org/x/exp/slices"
)

// NameType is an entry in a dictionary created for a trace
// that maps node ids to a (label, kind) pair
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// TraceManager gathers information about a diagram and a run of the simulation
// over it.  It is an Observer of the Simulation
type TraceManager struct {
	mu sync.Mutex

	// run uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// label and kind associated with each node id
	NameByID map[string]NameType `json:"namebyid" yaml:"namebyid"`

	// all hop events of the run, by packet id
	Traces map[string][]HopEvent `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active.  By testing this
// flag we can inhibit the activity of gathering a trace when we don't want it,
// while embedding calls to its methods everywhere we need them when it is
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[string]NameType)
	tm.Traces = make(map[string][]HopEvent)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm.InUse
}

// AddTrace stores a hop event under the id of its packet
func (tm *TraceManager) AddTrace(hop HopEvent) {
	if !tm.InUse {
		return
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.Traces[hop.PacketID] = append(tm.Traces[hop.PacketID], hop)
}

// AddName is used to add an element to the id -> (name,type) dictionary for the trace file
func (tm *TraceManager) AddName(id string, name string, objDesc string) error {
	if !tm.InUse {
		return nil
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if _, present := tm.NameByID[id]; present {
		return fmt.Errorf("trace name %s: %w", id, ErrDuplicateID)
	}
	tm.NameByID[id] = NameType{Name: name, Type: objDesc}
	return nil
}

// AddDiagram enters every node of a diagram in the dictionary
func (tm *TraceManager) AddDiagram(dgm *Diagram) error {
	errList := []error{}
	for _, node := range dgm.Nodes {
		errList = append(errList, tm.AddName(node.ID, node.displayName(), string(node.Kind)))
	}
	return ReportErrs(errList)
}

// OnTick records the hops of a tick
func (tm *TraceManager) OnTick(rpt *TickReport) {
	for _, hop := range rpt.Hops {
		tm.AddTrace(hop)
	}
}

// OnReset discards the traces gathered, keeping the dictionary
func (tm *TraceManager) OnReset() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.Traces = make(map[string][]HopEvent)
}

// Hops returns the hop events of one packet, in the order they happened
func (tm *TraceManager) Hops(packetID string) []HopEvent {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return slices.Clone(tm.Traces[packetID])
}

// Visited returns the nodes a packet was admitted to, in order
func (tm *TraceManager) Visited(packetID string) []string {
	visited := []string{}
	for _, hop := range tm.Hops(packetID) {
		if hop.Op == ArriveOp {
			visited = append(visited, hop.NodeID)
		}
	}
	return visited
}

// PacketIDs returns the ids of the packets traced, ordered by the time of their first hop
func (tm *TraceManager) PacketIDs() []string {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	ids := make([]string, 0, len(tm.Traces))
	for id := range tm.Traces {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		ta, tb := tm.Traces[a][0].Time, tm.Traces[b][0].Time
		switch {
		case ta < tb:
			return -1
		case ta > tb:
			return 1
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	})
	return ids
}

// WriteToFile stores the TraceManager struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
// Nothing is written by an inactive manager
func (tm *TraceManager) WriteToFile(filename string) (bool, error) {
	if !tm.InUse {
		return false, nil
	}
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if err := writeDesc(filename, tm); err != nil {
		return false, err
	}
	return true, nil
}

// ReadTraceManager deserializes a trace written by WriteToFile
func ReadTraceManager(filename string, useYAML bool, dict []byte) (*TraceManager, error) {
	tm := CreateTraceManager("", true)
	if err := readDesc(filename, useYAML, dict, tm); err != nil {
		return nil, err
	}
	return tm, nil
}
