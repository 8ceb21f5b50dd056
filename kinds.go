package flowsim

// kinds.go holds the ranges a diagram editor offers for each node parameter,
// by node kind.  The engine never consults them; Diagram.Check uses them to
// warn about values no editor would have produced.

import (
	"fmt"
)

// ParamRange is a closed interval of legal values for one parameter.
// A nil *ParamRange in KindRanges means the editor does not expose the parameter
type ParamRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

func (pr *ParamRange) contains(v float64) bool {
	return pr.Min <= v && v <= pr.Max
}

// KindRanges gathers the parameter ranges for one kind of node
type KindRanges struct {
	Latency     *ParamRange `json:"latency,omitempty" yaml:"latency,omitempty"`
	FailureRate *ParamRange `json:"failurerate,omitempty" yaml:"failurerate,omitempty"`
	Capacity    *ParamRange `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	SampleRate  *ParamRange `json:"samplerate,omitempty" yaml:"samplerate,omitempty"`
}

var percentRange = &ParamRange{Min: 0, Max: 100}

var defaultRanges = KindRanges{
	Latency:     &ParamRange{Min: 0, Max: 2000},
	FailureRate: percentRange,
	Capacity:    &ParamRange{Min: 1, Max: 1000},
}

var rangesByKind map[NodeKind]KindRanges = map[NodeKind]KindRanges{
	ClientKind: {Latency: &ParamRange{0, 2000}, Capacity: &ParamRange{1, 1000}},
	APIKind: {Latency: &ParamRange{0, 2000}, FailureRate: percentRange,
		Capacity: &ParamRange{1, 1000}, SampleRate: percentRange},
	DatabaseKind: {Latency: &ParamRange{0, 5000}, FailureRate: percentRange, Capacity: &ParamRange{1, 500}},
	CacheKind:    {Latency: &ParamRange{0, 200}, Capacity: &ParamRange{1, 10000}},
	ServiceKind: {Latency: &ParamRange{0, 3000}, FailureRate: percentRange,
		Capacity: &ParamRange{1, 100}, SampleRate: percentRange},
	QueueKind:        {Latency: &ParamRange{0, 1000}, Capacity: &ParamRange{1, 10000}},
	LoadBalancerKind: {Latency: &ParamRange{0, 500}, Capacity: &ParamRange{10, 10000}, SampleRate: percentRange},
	CDNKind:          {Latency: &ParamRange{0, 500}, FailureRate: percentRange},
}

// RangesFor returns the parameter ranges of a kind, falling back
// to the generic table for a kind that is not recognized
func RangesFor(kind NodeKind) KindRanges {
	kr, present := rangesByKind[kind]
	if !present {
		return defaultRanges
	}
	return kr
}

// checkKindRanges reports each explicitly set parameter of a node that
// falls outside, or is not offered by, the ranges of its kind
func checkKindRanges(node *Node, kind NodeKind) []string {
	kr := RangesFor(kind)
	warnings := []string{}

	check := func(param string, pr *ParamRange, v float64) {
		if pr == nil {
			warnings = append(warnings, fmt.Sprintf("node %s (%s) sets %s, which its kind does not use", node.ID, kind, param))
			return
		}
		if !pr.contains(v) {
			warnings = append(warnings, fmt.Sprintf("node %s (%s) %s %g outside [%g, %g]", node.ID, kind, param, v, pr.Min, pr.Max))
		}
	}

	if node.Latency > 0 {
		check("latency", kr.Latency, node.Latency)
	}
	if node.FailureRate > 0 {
		check("failure rate", kr.FailureRate, node.FailureRate)
	}
	if node.Capacity > 0 {
		check("capacity", kr.Capacity, float64(node.Capacity))
	}
	if node.SampleRate != nil {
		check("forward rate", kr.SampleRate, *node.SampleRate)
	}
	return warnings
}
