package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/iti/flowsim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(append(args, "--log-level", "error"))
	err := root.Execute()
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.yaml")
	cfg := flowsim.DefaultSimConfig()
	cfg.AutoSpawn = false
	require.NoError(t, cfg.WriteToFile(cfgFile))

	timelineFile := filepath.Join(dir, "timeline.json")
	tl := flowsim.CreateTimeline("one", []flowsim.SimulationEvent{
		{ID: "go", Time: 0, NodeID: "t1-1", Action: flowsim.PacketAction, Data: &flowsim.EventData{TargetNodeID: "t1-2"}},
	})
	require.NoError(t, tl.WriteToFile(timelineFile))
	traceFile := filepath.Join(dir, "trace.yaml")

	out, err := execute(t, "run", "--template", "simple-api", "--config", cfgFile,
		"--timeline", timelineFile, "--duration", "3s", "--trace-file", traceFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Simulation started")
	assert.Contains(t, out, "Response received at Mobile App")
	assert.Contains(t, out, "completed 1, failed 0")
	assert.Contains(t, out, "trace of 1 packets written")

	tm, err := flowsim.ReadTraceManager(traceFile, true, []byte{})
	require.NoError(t, err)
	assert.Equal(t, "simple-api", tm.ExpName)
	assert.Len(t, tm.Traces, 1)
}

func TestRunCommandNeedsDiagram(t *testing.T) {
	_, err := execute(t, "run")
	assert.Error(t, err)

	_, err = execute(t, "run", "--template", "nope")
	assert.ErrorIs(t, err, flowsim.ErrUnknownTemplate)
}

func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", "--template", "simple-api")
	require.NoError(t, err)
	assert.Contains(t, out, "diagram simple-api: 3 nodes, 2 edges")
	assert.Contains(t, out, "route Mobile App -> REST API -> Main DB: 1200ms round trip")
}

func TestTemplatesCommand(t *testing.T) {
	out, err := execute(t, "templates")
	require.NoError(t, err)
	assert.Contains(t, out, "caching-pattern")

	filename := filepath.Join(t.TempDir(), "micro.json")
	_, err = execute(t, "templates", "export", "microservices", filename)
	require.NoError(t, err)

	out, err = execute(t, "validate", filename)
	require.NoError(t, err)
	assert.Contains(t, out, "diagram microservices")
}

func TestLogLevel(t *testing.T) {
	_, err := newLogger(&bytes.Buffer{}, &logOpts{level: "loud"})
	assert.Error(t, err)

	logger, err := newLogger(&bytes.Buffer{}, &logOpts{level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Enabled(t.Context(), -4))
}
