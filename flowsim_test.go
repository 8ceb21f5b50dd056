package flowsim

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSimulationFromTemplate(t *testing.T) {
	sim, parts, err := BuildSimulation(map[string]string{TemplateKey: "simple-api"},
		func(cfg *SimConfig) {
			cfg.AutoSpawn = false
			cfg.Trace = true
		}, nil)
	require.NoError(t, err)

	assert.Equal(t, "simple-api", sim.Config().Name)
	assert.Equal(t, "simple-api", parts.Diagram.Name)
	assert.Nil(t, parts.Timeline)
	require.NotNil(t, parts.Trace)
	assert.Equal(t, NameType{Name: "REST API", Type: "api"}, parts.Trace.NameByID["t1-2"])

	_, err = sim.Spawn("t1-1", "t1-2")
	require.NoError(t, err)
	for range 29 {
		sim.Tick()
	}
	assert.Equal(t, 1, parts.Summary.Completed)
	assert.Len(t, parts.Trace.PacketIDs(), 1)
}

func TestBuildSimulationFromFiles(t *testing.T) {
	dir := t.TempDir()
	syn := map[string]string{
		DiagramKey:  filepath.Join(dir, "diagram.yaml"),
		ConfigKey:   filepath.Join(dir, "config.json"),
		TimelineKey: filepath.Join(dir, "timeline.yaml"),
	}
	require.NoError(t, scenarioDiagram(t).WriteToFile(syn[DiagramKey]))

	cfg := quietConfig()
	cfg.Name = "lesson-1"
	require.NoError(t, cfg.WriteToFile(syn[ConfigKey]))

	tl := CreateTimeline("lesson-1", []SimulationEvent{
		{ID: "go", Time: 0.1, NodeID: "c1", Action: PacketAction, Data: &EventData{TargetNodeID: "a1"}},
	})
	require.NoError(t, tl.WriteToFile(syn[TimelineKey]))

	sim, parts, err := BuildSimulation(syn, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "lesson-1", sim.Config().Name)
	assert.Nil(t, parts.Trace)
	require.NotNil(t, parts.Timeline)

	sim.Tick()
	rpt := sim.Tick()
	require.Len(t, rpt.Spawned, 1)
	assert.Equal(t, "c1", rpt.Spawned[0].SourceNodeID)
	assert.Equal(t, 1, parts.Summary.Spawned)
}

func TestBuildSimulationErrors(t *testing.T) {
	_, _, err := BuildSimulation(map[string]string{}, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidDiagram)

	_, _, err = BuildSimulation(map[string]string{TemplateKey: "monolith"}, nil, nil)
	assert.ErrorIs(t, err, ErrUnknownTemplate)

	_, _, err = BuildSimulation(map[string]string{TemplateKey: "simple-api"},
		func(cfg *SimConfig) { cfg.TickMs = 0 }, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, _, err = BuildSimulation(map[string]string{DiagramKey: filepath.Join(t.TempDir(), "absent.yaml")}, nil, nil)
	assert.Error(t, err)
}
