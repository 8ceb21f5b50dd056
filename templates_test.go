package flowsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplatesValidate(t *testing.T) {
	names := TemplateNames()
	assert.Equal(t, []string{"simple-api", "caching-pattern", "microservices", "msg-queue"}, names)

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			dgm, err := Template(name)
			require.NoError(t, err)
			assert.Equal(t, name, dgm.Name)
			assert.NoError(t, dgm.Validate())
			assert.NotEmpty(t, Analyze(dgm, 1000).Routes)
		})
	}
}

func TestTemplateIsACopy(t *testing.T) {
	dgm, err := Template("simple-api")
	require.NoError(t, err)
	dgm.Nodes[0].Label = "changed"
	dgm.Edges = nil

	again, err := Template("simple-api")
	require.NoError(t, err)
	assert.Equal(t, "Mobile App", again.Nodes[0].Label)
	assert.Len(t, again.Edges, 2)
	assert.Equal(t, "e1-1", again.Edges[0].ID)
}

func TestUnknownTemplate(t *testing.T) {
	_, err := Template("monolith")
	assert.ErrorIs(t, err, ErrUnknownTemplate)
}
