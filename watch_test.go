package flowsim

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchedDiagramReload(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "diagram.yaml")
	dgm := scenarioDiagram(t)
	require.NoError(t, dgm.WriteToFile(filename))

	wd, err := CreateWatchedDiagram(filename, nil)
	require.NoError(t, err)
	defer wd.Close()
	assert.Equal(t, 1, wd.Reloads())
	assert.Len(t, wd.CurrentNodes(), 3)
	assert.Len(t, wd.CurrentEdges(), 2)

	loaded := []int{}
	wd.OnLoad(func(d *Diagram) { loaded = append(loaded, len(d.Nodes)) })

	require.NoError(t, dgm.AddNode(Node{ID: "k1", Kind: CacheKind, Label: "Cache"}))
	require.NoError(t, dgm.WriteToFile(filename))
	require.NoError(t, wd.Reload())
	assert.Equal(t, 2, wd.Reloads())
	assert.Len(t, wd.CurrentNodes(), 4)
	assert.Equal(t, []int{4}, loaded)

	// a broken edit leaves the last good version in place
	require.NoError(t, os.WriteFile(filename, []byte("nodes: [\n"), 0644))
	assert.Error(t, wd.Reload())
	assert.Len(t, wd.CurrentNodes(), 4)

	// so does one that reads but does not validate
	dgm.Edges = append(dgm.Edges, Edge{ID: "bad", Source: "c1", Target: "nowhere"})
	require.NoError(t, dgm.WriteToFile(filename))
	assert.ErrorIs(t, wd.Reload(), ErrUnknownNode)
	assert.Len(t, wd.CurrentEdges(), 2)
	assert.Equal(t, 2, wd.Reloads())
}

func TestWatchedDiagramMissingFile(t *testing.T) {
	_, err := CreateWatchedDiagram(filepath.Join(t.TempDir(), "absent.json"), nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWatchedDiagramFollowsEdits(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "diagram.json")
	dgm := scenarioDiagram(t)
	require.NoError(t, dgm.WriteToFile(filename))

	wd, err := CreateWatchedDiagram(filename, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- wd.Run(ctx) }()

	dgm.Nodes[1].Capacity = 7
	require.NoError(t, dgm.WriteToFile(filename))

	require.Eventually(t, func() bool {
		nodes := wd.CurrentNodes()
		return len(nodes) == 3 && nodes[1].Capacity == 7
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "watcher did not stop")
	}
}
