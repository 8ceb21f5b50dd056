package flowsim

// routes.go provides a static analysis of a diagram, done before any packet moves:
// which nodes a client's traffic can reach, the fastest request path to each, the
// round trip a packet following it would take, and the cycles a request could loop in.
//
// The general approach is to convert the diagram into the data structures of a graph
// package with built-in path discovery.  Each edge is weighted by the latency of the
// node it leads to, the same travel time the engine charges, so a shortest path is the
// quickest route a request can take, and because a response retraces its request's path
// edge for edge, the round trip of that route is twice its length.

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// RouteInfo describes the quickest route from a client to a node
type RouteInfo struct {
	Client      string   `json:"client" yaml:"client"`
	Node        string   `json:"node" yaml:"node"`
	Path        []string `json:"path" yaml:"path"`
	OneWayMs    float64  `json:"onewayms" yaml:"onewayms"`
	RoundTripMs float64  `json:"roundtripms" yaml:"roundtripms"`
}

// Analysis gathers what is known about a diagram's routes
type Analysis struct {
	Clients     []string            `json:"clients" yaml:"clients"`
	ReachedBy   map[string][]string `json:"reachedby" yaml:"reachedby"`
	Unreachable []string            `json:"unreachable" yaml:"unreachable"`
	DeadEnds    []string            `json:"deadends" yaml:"deadends"`
	Routes      []RouteInfo         `json:"routes" yaml:"routes"`
	Cycles      [][]string          `json:"cycles" yaml:"cycles"`
}

// connGraph is the graph package representation of a diagram, with the
// maps between diagram node ids and graph node ids
type connGraph struct {
	g      *simple.WeightedDirectedGraph
	idOf   map[string]int64
	nameOf map[int64]string
}

// buildConnGraph returns the weighted directed graph of a diagram.  Self loops
// cannot be represented and are left out; of parallel edges only one is kept,
// they carry the same weight anyway
func buildConnGraph(dgm *Diagram, dfltLatency float64) *connGraph {
	cg := &connGraph{g: simple.NewWeightedDirectedGraph(0, math.Inf(1)),
		idOf: make(map[string]int64), nameOf: make(map[int64]string)}

	for idx, node := range dgm.Nodes {
		gid := int64(idx)
		cg.idOf[node.ID] = gid
		cg.nameOf[gid] = node.ID
		cg.g.AddNode(simple.Node(gid))
	}

	for _, edge := range dgm.Edges {
		from, fok := cg.idOf[edge.Source]
		to, tok := cg.idOf[edge.Target]
		if !fok || !tok || from == to {
			continue
		}
		target, _ := dgm.NodeByID(edge.Target)
		weightedEdge := simple.WeightedEdge{F: simple.Node(from), T: simple.Node(to), W: target.latencyOr(dfltLatency)}
		cg.g.SetWeightedEdge(weightedEdge)
	}
	return cg
}

// convertNodeSeq extracts the diagram node ids from a sequence of graph nodes
func (cg *connGraph) convertNodeSeq(nsQ []graph.Node) []string {
	rtn := make([]string, 0, len(nsQ))
	for _, node := range nsQ {
		rtn = append(rtn, cg.nameOf[node.ID()])
	}
	return rtn
}

// Analyze computes the route analysis of a diagram.  dfltLatency is charged for
// nodes whose latency is unset, as the engine does
func Analyze(dgm *Diagram, dfltLatency float64) *Analysis {
	cg := buildConnGraph(dgm, dfltLatency)
	an := &Analysis{Clients: []string{}, ReachedBy: make(map[string][]string),
		Unreachable: []string{}, DeadEnds: []string{}, Routes: []RouteInfo{}, Cycles: [][]string{}}

	hasOut := make(map[string]bool)
	for _, edge := range dgm.Edges {
		hasOut[edge.Source] = true
	}

	for _, node := range dgm.Nodes {
		if kind, _ := KindFromStr(string(node.Kind)); kind == ClientKind {
			an.Clients = append(an.Clients, node.ID)
		} else if !hasOut[node.ID] {
			an.DeadEnds = append(an.DeadEnds, node.ID)
		}
	}

	for _, client := range an.Clients {
		// DijkstraFrom computes the tree of shortest paths rooted in the client
		spTree := path.DijkstraFrom(simple.Node(cg.idOf[client]), cg.g)
		for _, node := range dgm.Nodes {
			if node.ID == client {
				continue
			}
			nodeSeq, weight := spTree.To(cg.idOf[node.ID])
			if len(nodeSeq) == 0 || math.IsInf(weight, 1) {
				continue
			}
			an.ReachedBy[node.ID] = append(an.ReachedBy[node.ID], client)
			an.Routes = append(an.Routes, RouteInfo{Client: client, Node: node.ID,
				Path: cg.convertNodeSeq(nodeSeq), OneWayMs: weight, RoundTripMs: 2.0 * weight})
		}
	}

	for _, node := range dgm.Nodes {
		if slices.Contains(an.Clients, node.ID) {
			continue
		}
		if _, present := an.ReachedBy[node.ID]; !present {
			an.Unreachable = append(an.Unreachable, node.ID)
		}
	}

	for _, cycle := range topo.DirectedCyclesIn(cg.g) {
		ids := cg.convertNodeSeq(cycle)
		// the cycle is reported closed, with its first node repeated at the end
		if len(ids) > 1 && ids[0] == ids[len(ids)-1] {
			ids = ids[:len(ids)-1]
		}
		an.Cycles = append(an.Cycles, ids)
	}
	return an
}

// Route returns the quickest route from a client to a node, if there is one
func (an *Analysis) Route(client, node string) (RouteInfo, bool) {
	for _, rt := range an.Routes {
		if rt.Client == client && rt.Node == node {
			return rt, true
		}
	}
	return RouteInfo{}, false
}

// ShowPath returns a string that lists the names of the nodes on a path,
// in the order visited.  Nodes without an entry in idToName are shown by id
func ShowPath(nodePath []string, idToName map[string]string) string {
	pathString := make([]string, 0, len(nodePath))
	for _, id := range nodePath {
		name, present := idToName[id]
		if !present || len(name) == 0 {
			name = id
		}
		pathString = append(pathString, name)
	}
	return strings.Join(pathString, " -> ")
}

// Report renders the analysis as lines of text
func (an *Analysis) Report(dgm *Diagram) []string {
	idToName := make(map[string]string)
	for _, node := range dgm.Nodes {
		idToName[node.ID] = node.displayName()
	}
	lines := []string{fmt.Sprintf("clients: %s", ShowPath(an.Clients, idToName))}
	for _, rt := range an.Routes {
		lines = append(lines, fmt.Sprintf("route %s: %.0fms round trip", ShowPath(rt.Path, idToName), rt.RoundTripMs))
	}
	if len(an.Unreachable) > 0 {
		lines = append(lines, fmt.Sprintf("unreachable from any client: %s", ShowPath(an.Unreachable, idToName)))
	}
	for _, cycle := range an.Cycles {
		lines = append(lines, fmt.Sprintf("cycle: %s", ShowPath(cycle, idToName)))
	}
	return lines
}
