package flowsim

// timeline.go holds the description of scripted events a lesson attaches to
// points in simulated time.  Packet events inject a request between two named
// nodes; the other actions are display effects handed to observers untouched

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// EventAction is what a scripted event does when its time comes
type EventAction string

const (
	HighlightAction  EventAction = "highlight"
	PacketAction     EventAction = "packet"
	AnnotationAction EventAction = "annotation"
	PulseAction      EventAction = "pulse"
)

// EventData carries the action-specific parameters of a SimulationEvent
type EventData struct {
	TargetNodeID string  `json:"targetnodeid,omitempty" yaml:"targetnodeid,omitempty"`
	Content      string  `json:"content,omitempty" yaml:"content,omitempty"`
	Duration     float64 `json:"duration,omitempty" yaml:"duration,omitempty"`
	Color        string  `json:"color,omitempty" yaml:"color,omitempty"`
}

// SimulationEvent is one scripted event.  Time is in seconds of simulated time
type SimulationEvent struct {
	ID     string      `json:"id" yaml:"id"`
	Time   float64     `json:"time" yaml:"time" validate:"gte=0"`
	NodeID string      `json:"nodeid" yaml:"nodeid"`
	Action EventAction `json:"action" yaml:"action" validate:"oneof=highlight packet annotation pulse"`
	Data   *EventData  `json:"data,omitempty" yaml:"data,omitempty"`
}

// RefusedEvent is a packet event that came due but spawned nothing
type RefusedEvent struct {
	Event  SimulationEvent `json:"event" yaml:"event"`
	Reason string          `json:"reason" yaml:"reason"`
}

// Timeline is an ordered list of scripted events, with a cursor marking
// how many of them have already fired
type Timeline struct {
	Name   string            `json:"name" yaml:"name"`
	Events []SimulationEvent `json:"events" yaml:"events" validate:"dive"`
	cursor int
}

// CreateTimeline is a constructor.  The events are put in time order,
// events sharing a time keep the order given
func CreateTimeline(name string, events []SimulationEvent) *Timeline {
	tl := &Timeline{Name: name, Events: slices.Clone(events)}
	tl.sort()
	return tl
}

func (tl *Timeline) sort() {
	slices.SortStableFunc(tl.Events, func(a, b SimulationEvent) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		}
		return 0
	})
}

// Due returns the events whose time has been reached at simulated time
// nowMs and which have not fired before, and advances the cursor past them
func (tl *Timeline) Due(nowMs float64) []SimulationEvent {
	due := []SimulationEvent{}
	for tl.cursor < len(tl.Events) {
		evt := tl.Events[tl.cursor]
		if roundFloat(evt.Time*1000.0, rdigits) > roundFloat(nowMs, rdigits) {
			break
		}
		due = append(due, evt)
		tl.cursor += 1
	}
	return due
}

// Pending is the number of events that have not fired
func (tl *Timeline) Pending() int {
	return len(tl.Events) - tl.cursor
}

// Rewind makes every event eligible to fire again
func (tl *Timeline) Rewind() {
	tl.cursor = 0
}

// Validate checks the events, and that packet events name both endpoints
func (tl *Timeline) Validate() error {
	errList := []error{}
	if err := paramValidator.Struct(tl); err != nil {
		errList = append(errList, err)
	}
	for _, evt := range tl.Events {
		if evt.Action == PacketAction && (len(evt.NodeID) == 0 || evt.Data == nil || len(evt.Data.TargetNodeID) == 0) {
			errList = append(errList, fmt.Errorf("packet event %s needs a node and a target node", evt.ID))
		}
	}
	return ReportErrs(errList)
}

// WriteToFile stores the Timeline struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tl *Timeline) WriteToFile(filename string) error {
	return writeDesc(filename, tl)
}

// ReadTimeline deserializes a Timeline from dict, or from the named file when dict is empty
func ReadTimeline(filename string, useYAML bool, dict []byte) (*Timeline, error) {
	tl := new(Timeline)
	if err := readDesc(filename, useYAML, dict, tl); err != nil {
		return nil, err
	}
	tl.sort()
	return tl, nil
}
