package flowsim

// diagram.go holds the description of the diagram a simulation plays over:
// nodes carrying their simulation parameters, directed edges between them,
// and the serializable form of both that is read from and written to
// yaml or json files.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// NodeKind names the kind of backend component a node stands for.
// The engine never branches on it, it is carried for display and
// for the per-kind parameter ranges used when checking a diagram
type NodeKind string

const (
	ClientKind       NodeKind = "client"
	APIKind          NodeKind = "api"
	ServiceKind      NodeKind = "service"
	DatabaseKind     NodeKind = "database"
	CacheKind        NodeKind = "cache"
	QueueKind        NodeKind = "queue"
	LoadBalancerKind NodeKind = "load_balancer"
	CDNKind          NodeKind = "cdn"
)

var nodeKinds []NodeKind = []NodeKind{ClientKind, APIKind, ServiceKind, DatabaseKind,
	CacheKind, QueueKind, LoadBalancerKind, CDNKind}

// KindFromStr maps a kind name as written by an editor to a NodeKind.
// Case and the separator used in "load balancer" are not significant.
func KindFromStr(kind string) (NodeKind, bool) {
	norm := strings.ToLower(strings.TrimSpace(kind))
	norm = strings.NewReplacer("-", "_", " ", "_").Replace(norm)
	if norm == "loadbalancer" {
		norm = string(LoadBalancerKind)
	}
	if slices.Contains(nodeKinds, NodeKind(norm)) {
		return NodeKind(norm), true
	}
	return NodeKind(norm), false
}

// Node is a diagram vertex.  Latency is the time (in milliseconds) to traverse
// an edge that arrives at this node, FailureRate the percentage of arrivals rejected,
// Capacity the number of packets it may hold in processing at once, and SampleRate
// the percentage of processed requests that are forwarded downstream.
// Zero Latency and Capacity select the simulation defaults; a nil SampleRate means 100.
type Node struct {
	ID          string   `json:"id" yaml:"id" validate:"required"`
	Kind        NodeKind `json:"kind" yaml:"kind"`
	Label       string   `json:"label" yaml:"label"`
	Latency     float64  `json:"latency,omitempty" yaml:"latency,omitempty" validate:"gte=0"`
	FailureRate float64  `json:"failurerate,omitempty" yaml:"failurerate,omitempty" validate:"gte=0,lte=100"`
	Capacity    int      `json:"capacity,omitempty" yaml:"capacity,omitempty" validate:"gte=0"`
	SampleRate  *float64 `json:"samplerate,omitempty" yaml:"samplerate,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// Edge is a directed link between two nodes
type Edge struct {
	ID     string `json:"id" yaml:"id" validate:"required"`
	Source string `json:"source" yaml:"source" validate:"required"`
	Target string `json:"target" yaml:"target" validate:"required"`
}

// GraphSource is how the engine reads the diagram.  Both methods are called
// fresh at the start of every tick, so an implementation may swap in an
// edited diagram between ticks.
type GraphSource interface {
	CurrentNodes() []Node
	CurrentEdges() []Edge
}

// Float64 returns a pointer to its argument, for filling in optional parameters
func Float64(v float64) *float64 {
	return &v
}

// latencyOr returns the travel time of an edge arriving at the node
func (n *Node) latencyOr(dflt float64) float64 {
	if n.Latency > 0 {
		return n.Latency
	}
	return dflt
}

// capacityOr returns the limit on packets concurrently in processing at the node
func (n *Node) capacityOr(dflt int) int {
	if n.Capacity > 0 {
		return n.Capacity
	}
	return dflt
}

// forwardRate returns the percentage of processed requests the node forwards
func (n *Node) forwardRate() float64 {
	if n.SampleRate == nil {
		return 100.0
	}
	return *n.SampleRate
}

// displayName is what log messages call the node
func (n *Node) displayName() string {
	if len(n.Label) > 0 {
		return n.Label
	}
	return n.ID
}

// Diagram is the serializable description of a graph of nodes and edges.
// It satisfies GraphSource directly, for diagrams that do not change while played.
type Diagram struct {
	Name        string `json:"name" yaml:"name"`
	Title       string `json:"title,omitempty" yaml:"title,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Difficulty  string `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	Nodes       []Node `json:"nodes" yaml:"nodes" validate:"dive"`
	Edges       []Edge `json:"edges" yaml:"edges" validate:"dive"`
}

// CreateDiagram is a constructor
func CreateDiagram(name string) *Diagram {
	dgm := new(Diagram)
	dgm.Name = name
	dgm.Nodes = make([]Node, 0)
	dgm.Edges = make([]Edge, 0)
	return dgm
}

// CurrentNodes returns a copy of the diagram's nodes
func (dgm *Diagram) CurrentNodes() []Node {
	return slices.Clone(dgm.Nodes)
}

// CurrentEdges returns a copy of the diagram's edges
func (dgm *Diagram) CurrentEdges() []Edge {
	return slices.Clone(dgm.Edges)
}

// NodeByID looks up a node
func (dgm *Diagram) NodeByID(id string) (*Node, bool) {
	for idx := range dgm.Nodes {
		if dgm.Nodes[idx].ID == id {
			return &dgm.Nodes[idx], true
		}
	}
	return nil, false
}

// AddNode includes a node, refusing a duplicated id
func (dgm *Diagram) AddNode(node Node) error {
	if len(node.ID) == 0 {
		return fmt.Errorf("node without id: %w", ErrInvalidDiagram)
	}
	if _, present := dgm.NodeByID(node.ID); present {
		return fmt.Errorf("node %s: %w", node.ID, ErrDuplicateID)
	}
	dgm.Nodes = append(dgm.Nodes, node)
	return nil
}

// AddEdge includes a directed edge between two nodes already in the diagram.
// An empty id is replaced by one built from the endpoints.
func (dgm *Diagram) AddEdge(id, source, target string) error {
	if len(id) == 0 {
		id = fmt.Sprintf("%s->%s", source, target)
	}
	for _, edge := range dgm.Edges {
		if edge.ID == id {
			return fmt.Errorf("edge %s: %w", id, ErrDuplicateID)
		}
	}
	for _, end := range []string{source, target} {
		if _, present := dgm.NodeByID(end); !present {
			return fmt.Errorf("edge %s endpoint %s: %w", id, end, ErrUnknownNode)
		}
	}
	dgm.Edges = append(dgm.Edges, Edge{ID: id, Source: source, Target: target})
	return nil
}

// Clone returns a deep copy of the diagram
func (dgm *Diagram) Clone() *Diagram {
	cpy := *dgm
	cpy.Nodes = make([]Node, len(dgm.Nodes))
	for idx, node := range dgm.Nodes {
		if node.SampleRate != nil {
			node.SampleRate = Float64(*node.SampleRate)
		}
		cpy.Nodes[idx] = node
	}
	cpy.Edges = slices.Clone(dgm.Edges)
	return &cpy
}

var paramValidator = validator.New()

// Validate checks the invariants the engine relies on: node ids are unique,
// edges reference nodes that exist, and every parameter lies in its legal range.
// All problems found are reported together.
func (dgm *Diagram) Validate() error {
	errList := []error{}

	if err := paramValidator.Struct(dgm); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, verr := range verrs {
				errList = append(errList, fmt.Errorf("%s fails %q: %w", verr.Namespace(), verr.Tag(), ErrInvalidDiagram))
			}
		} else {
			errList = append(errList, err)
		}
	}

	nodeIDs := make(map[string]bool)
	for _, node := range dgm.Nodes {
		if nodeIDs[node.ID] {
			errList = append(errList, fmt.Errorf("node %s: %w", node.ID, ErrDuplicateID))
		}
		nodeIDs[node.ID] = true
	}

	edgeIDs := make(map[string]bool)
	for _, edge := range dgm.Edges {
		if edgeIDs[edge.ID] {
			errList = append(errList, fmt.Errorf("edge %s: %w", edge.ID, ErrDuplicateID))
		}
		edgeIDs[edge.ID] = true
		if !nodeIDs[edge.Source] {
			errList = append(errList, fmt.Errorf("edge %s source %s: %w", edge.ID, edge.Source, ErrUnknownNode))
		}
		if !nodeIDs[edge.Target] {
			errList = append(errList, fmt.Errorf("edge %s target %s: %w", edge.ID, edge.Target, ErrUnknownNode))
		}
	}
	return ReportErrs(errList)
}

// Check returns warnings about a diagram that is valid but probably not what
// its author meant: unrecognized kinds, parameters outside the range an editor
// offers for that kind, and the absence of any client to generate traffic.
func (dgm *Diagram) Check() []string {
	warnings := []string{}
	clients := 0
	for _, node := range dgm.Nodes {
		kind, known := KindFromStr(string(node.Kind))
		if !known {
			warnings = append(warnings, fmt.Sprintf("node %s has unrecognized kind %q", node.ID, node.Kind))
		}
		if kind == ClientKind {
			clients += 1
		}
		warnings = append(warnings, checkKindRanges(&node, kind)...)
	}
	if clients == 0 && len(dgm.Nodes) > 0 {
		warnings = append(warnings, "diagram has no client node, no traffic will be generated")
	}
	return warnings
}

// WriteToFile stores the Diagram struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (dgm *Diagram) WriteToFile(filename string) error {
	return writeDesc(filename, dgm)
}

// ReadDiagram deserializes a byte slice holding a representation of a Diagram struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.  A deserialized representation is returned, or an error if one is generated
// from a file read or the deserialization.
func ReadDiagram(filename string, useYAML bool, dict []byte) (*Diagram, error) {
	dgm := CreateDiagram("")
	if err := readDesc(filename, useYAML, dict, dgm); err != nil {
		return nil, err
	}
	for idx := range dgm.Nodes {
		if kind, known := KindFromStr(string(dgm.Nodes[idx].Kind)); known {
			dgm.Nodes[idx].Kind = kind
		}
	}
	return dgm, nil
}

// UseYAML reports whether a file name calls for yaml rather than json
func UseYAML(filename string) bool {
	pathExt := strings.ToLower(path.Ext(filename))
	return pathExt == ".yaml" || pathExt == ".yml"
}

// writeDesc serializes a description struct to json or yaml, chosen
// by the extension of the file name
func writeDesc(filename string, desc any) error {
	pathExt := strings.ToLower(path.Ext(filename))
	var bytes []byte
	var merr error

	switch pathExt {
	case ".yaml", ".yml":
		bytes, merr = yaml.Marshal(desc)
	case ".json":
		bytes, merr = json.MarshalIndent(desc, "", "\t")
	default:
		return fmt.Errorf("%s: unrecognized extension %q", filename, pathExt)
	}
	if merr != nil {
		return merr
	}
	return os.WriteFile(filename, bytes, 0o644)
}

// readDesc fills in desc from dict, or from the named file when dict is empty
func readDesc(filename string, useYAML bool, dict []byte, desc any) error {
	var err error

	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return err
		}
	}

	if useYAML {
		err = yaml.Unmarshal(dict, desc)
	} else {
		err = json.Unmarshal(dict, desc)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}
	return nil
}
