package flowsim

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimelineDue(t *testing.T) {
	tl := CreateTimeline("lesson", []SimulationEvent{
		{ID: "late", Time: 2, NodeID: "a", Action: PulseAction},
		{ID: "early", Time: 0.5, NodeID: "a", Action: HighlightAction},
		{ID: "early2", Time: 0.5, NodeID: "b", Action: AnnotationAction, Data: &EventData{Content: "note"}},
	})

	assert.Empty(t, tl.Due(499))
	due := tl.Due(500)
	require.Len(t, due, 2)
	assert.Equal(t, "early", due[0].ID)
	assert.Equal(t, "early2", due[1].ID)
	assert.Empty(t, tl.Due(1000))
	assert.Equal(t, 1, tl.Pending())

	due = tl.Due(5000)
	require.Len(t, due, 1)
	assert.Equal(t, "late", due[0].ID)

	tl.Rewind()
	assert.Equal(t, 3, tl.Pending())
}

func TestTimelineValidate(t *testing.T) {
	good := CreateTimeline("good", []SimulationEvent{
		{ID: "p", Time: 1, NodeID: "c", Action: PacketAction, Data: &EventData{TargetNodeID: "a"}},
	})
	assert.NoError(t, good.Validate())

	bad := CreateTimeline("bad", []SimulationEvent{
		{ID: "p", Time: 1, NodeID: "c", Action: PacketAction},
		{ID: "x", Time: -1, NodeID: "c", Action: "explode"},
	})
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "packet event p")
	assert.Contains(t, err.Error(), "Action")
}

func TestTimelineFileRoundTrip(t *testing.T) {
	tl := CreateTimeline("lesson", []SimulationEvent{
		{ID: "p", Time: 1.5, NodeID: "c", Action: PacketAction, Data: &EventData{TargetNodeID: "a", Duration: 2}},
		{ID: "h", Time: 0.25, NodeID: "a", Action: HighlightAction, Data: &EventData{Color: "#ff0000"}},
	})
	filename := filepath.Join(t.TempDir(), "timeline.yaml")
	require.NoError(t, tl.WriteToFile(filename))

	read, err := ReadTimeline(filename, true, []byte{})
	require.NoError(t, err)
	assert.Equal(t, tl.Events, read.Events)
	assert.Equal(t, "h", read.Events[0].ID)
}
