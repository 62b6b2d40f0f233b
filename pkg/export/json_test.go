package export

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphFileRoundTrip(t *testing.T) {
	g := newGraph(t, true)
	_, err := g.AddVertex([]string{"Person"}, map[string]any{"name": "mia"})
	require.NoError(t, err)
	_, err = g.AddVertex([]string{"Person"}, nil)
	require.NoError(t, err)
	_, err = g.AddEdge(1, 2, "KNOWS", nil)
	require.NoError(t, err)
	_, err = g.AttachVertexTable(twoRowTable(t), 1)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, WriteGraphFile(path, g))

	got, err := ReadGraphFile(path)
	require.NoError(t, err)
	assert.Equal(t, g.ID(), got.ID())
	assert.Equal(t, g.VertexCount(), got.VertexCount())
	assert.Equal(t, g.EdgeCount(), got.EdgeCount())
	assert.Equal(t, len(g.History()), len(got.History()))

	want, err := g.VertexTable(1)
	require.NoError(t, err)
	have, err := got.VertexTable(1)
	require.NoError(t, err)
	assert.True(t, want.Equal(have))
}

func TestReadGraphFileMissing(t *testing.T) {
	_, err := ReadGraphFile(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
