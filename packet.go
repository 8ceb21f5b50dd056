package flowsim

// packet.go holds the representation of the simulated requests and responses
// that move over a diagram, and of the collection of them alive at one tick

import (
	"golang.org/x/exp/slices"
)

// PacketKind tells whether a packet is on its request leg or its response leg
type PacketKind string

const (
	RequestPkt  PacketKind = "request"
	ResponsePkt PacketKind = "response"
	ErrorPkt    PacketKind = "error"
)

// PacketStatus is the state of a packet in its life cycle.  A live packet is
// Moving or Processing; Failed and Completed are terminal and the packet is
// retired at the end of the tick that puts it there
type PacketStatus string

const (
	Moving     PacketStatus = "moving"
	Processing PacketStatus = "processing"
	Failed     PacketStatus = "failed"
	Completed  PacketStatus = "completed"
)

// FailReason records why a packet failed
type FailReason string

const (
	NoFailure       FailReason = ""
	CapacityFailure FailReason = "capacity"
	RandomFailure   FailReason = "failure"
	TopologyFailure FailReason = "topology"
)

var failReasons []FailReason = []FailReason{CapacityFailure, RandomFailure, TopologyFailure}

// Packet is one simulated request, or the response it turned into
type Packet struct {
	ID     string       `json:"id" yaml:"id"`
	Seq    int64        `json:"seq" yaml:"seq"`
	Kind   PacketKind   `json:"kind" yaml:"kind"`
	Status PacketStatus `json:"status" yaml:"status"`

	// set while Moving
	EdgeID       string  `json:"edgeid,omitempty" yaml:"edgeid,omitempty"`
	SourceNodeID string  `json:"sourcenodeid,omitempty" yaml:"sourcenodeid,omitempty"`
	TargetNodeID string  `json:"targetnodeid,omitempty" yaml:"targetnodeid,omitempty"`
	Progress     float64 `json:"progress" yaml:"progress"`

	// set while Processing
	NodeID string `json:"nodeid,omitempty" yaml:"nodeid,omitempty"`

	// nodes visited by the request leg, in order.  StackIndex is the
	// position of the node the packet is at, or last left
	PathStack  []string `json:"pathstack" yaml:"pathstack"`
	StackIndex int      `json:"stackindex" yaml:"stackindex"`

	// always zero, processing is instantaneous
	ProcessingTimeRemaining float64 `json:"processingtimeremaining,omitempty" yaml:"processingtimeremaining,omitempty"`

	// simulated ms at creation
	Timestamp  float64    `json:"timestamp" yaml:"timestamp"`
	FailReason FailReason `json:"failreason,omitempty" yaml:"failreason,omitempty"`
}

// Live is true for a packet that has not reached a terminal status
func (pkt *Packet) Live() bool {
	return pkt.Status == Moving || pkt.Status == Processing
}

// Clone returns a copy that shares nothing with the original
func (pkt *Packet) Clone() Packet {
	cpy := *pkt
	cpy.PathStack = slices.Clone(pkt.PathStack)
	return cpy
}

// Location names the node holding a processing packet, or the node
// a moving packet is headed to
func (pkt *Packet) Location() string {
	if pkt.Status == Processing {
		return pkt.NodeID
	}
	return pkt.TargetNodeID
}

// moveAlong puts the packet on an edge at zero progress
func (pkt *Packet) moveAlong(edgeID, from, to string) {
	pkt.Status = Moving
	pkt.EdgeID = edgeID
	pkt.SourceNodeID = from
	pkt.TargetNodeID = to
	pkt.NodeID = ""
	pkt.Progress = 0.0
}

// settleAt puts the packet into processing at the node
func (pkt *Packet) settleAt(nodeID string) {
	pkt.Status = Processing
	pkt.NodeID = nodeID
	pkt.EdgeID = ""
	pkt.SourceNodeID = ""
	pkt.TargetNodeID = ""
	pkt.Progress = 0.0
}

func (pkt *Packet) fail(reason FailReason) {
	pkt.Status = Failed
	pkt.FailReason = reason
}

// PacketSet is the collection of packets alive at the end of a tick.
// The engine never modifies a PacketSet in place; each tick builds a new one
type PacketSet []Packet

// Clone returns a deep copy of the set
func (ps PacketSet) Clone() PacketSet {
	cpy := make(PacketSet, len(ps))
	for idx := range ps {
		cpy[idx] = ps[idx].Clone()
	}
	return cpy
}

// ProcessingAt counts the packets in processing at a node
func (ps PacketSet) ProcessingAt(nodeID string) int {
	cnt := 0
	for idx := range ps {
		if ps[idx].Status == Processing && ps[idx].NodeID == nodeID {
			cnt += 1
		}
	}
	return cnt
}

// Find returns the packet with the given id
func (ps PacketSet) Find(id string) (Packet, bool) {
	for idx := range ps {
		if ps[idx].ID == id {
			return ps[idx], true
		}
	}
	return Packet{}, false
}

// Live counts the packets that are not terminal
func (ps PacketSet) Live() int {
	cnt := 0
	for idx := range ps {
		if ps[idx].Live() {
			cnt += 1
		}
	}
	return cnt
}
