package graph

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/vev/pkg/ident"
	"github.com/orneryd/vev/pkg/table"
	"github.com/orneryd/vev/pkg/tablestore"
)

// mustTable builds a table with the given columns and two rows of values
// like "a1", "a2" per column.
func mustTable(t *testing.T, cols ...string) *table.Table {
	t.Helper()
	tbl, err := table.New(cols...)
	require.NoError(t, err)
	for r := 1; r <= 2; r++ {
		row := make([]any, len(cols))
		for c := range cols {
			row[c] = fmt.Sprintf("%s%d", cols[c], r)
		}
		require.NoError(t, tbl.AppendRow(row...))
	}
	return tbl
}

func TestAttachVertexTable(t *testing.T) {
	t.Run("fresh attach stores decorated entry and sets pointer", func(t *testing.T) {
		g := testGraph(t, 4)
		src := mustTable(t, "a", "b")

		id, err := g.AttachVertexTable(src, 2)
		require.NoError(t, err)
		assert.True(t, ident.Valid(id))

		// Exactly one entry, bound to vertex 2.
		require.Equal(t, 1, g.TableCount())
		entries := g.Tables()
		require.Len(t, entries, 1)
		entry := entries[0]
		assert.Equal(t, id, entry.ID)
		assert.Equal(t, tablestore.Owner{Kind: tablestore.OwnerVertex, ID: 2}, entry.Owner)

		// Bookkeeping columns prefixed, caller's columns preserved.
		assert.Equal(t, []string{"df_id", "node_edge", "id", "a", "b"}, entry.Table.Columns())
		v, _ := entry.Table.Value(0, ColTableID)
		assert.Equal(t, id, v)
		v, _ = entry.Table.Value(0, ColOwnerKind)
		assert.Equal(t, "vertex", v)
		v, _ = entry.Table.Value(1, ColOwnerID)
		assert.Equal(t, int64(2), v)
		v, _ = entry.Table.Value(1, "b")
		assert.Equal(t, "b2", v)

		// The vertex points at the entry; other vertices are untouched.
		attr, ok := g.VertexAttr(2, AttrTableID)
		require.True(t, ok)
		assert.Equal(t, id, attr)
		for _, vid := range []int64{1, 3, 4} {
			_, ok := g.VertexAttr(vid, AttrTableID)
			assert.False(t, ok, "vertex %d should have no table pointer", vid)
		}

		// Retrieval strips the bookkeeping prefix.
		got, err := g.VertexTable(2)
		require.NoError(t, err)
		assert.True(t, src.Equal(got))
	})

	t.Run("re-attach replaces entry and moves pointer", func(t *testing.T) {
		g := testGraph(t, 4)

		first, err := g.AttachVertexTable(mustTable(t, "a", "b"), 2)
		require.NoError(t, err)
		second, err := g.AttachVertexTable(mustTable(t, "c"), 2)
		require.NoError(t, err)

		assert.NotEqual(t, first, second)
		assert.Equal(t, 1, g.TableCount())

		entries := g.Tables()
		require.Len(t, entries, 1)
		assert.Equal(t, second, entries[0].ID)

		attr, ok := g.VertexAttr(2, AttrTableID)
		require.True(t, ok)
		assert.Equal(t, second, attr)

		got, err := g.VertexTable(2)
		require.NoError(t, err)
		assert.Equal(t, []string{"c"}, got.Columns())
	})

	t.Run("identical content mints distinct identifiers", func(t *testing.T) {
		g := testGraph(t, 2)
		src := mustTable(t, "a")

		id1, err := g.AttachVertexTable(src, 1)
		require.NoError(t, err)
		id2, err := g.AttachVertexTable(src.Clone(), 1)
		require.NoError(t, err)

		assert.NotEqual(t, id1, id2)
		assert.Equal(t, 1, g.TableCount())
	})

	t.Run("attached copy is isolated from caller", func(t *testing.T) {
		g := testGraph(t, 1)
		src := mustTable(t, "a")
		_, err := g.AttachVertexTable(src, 1)
		require.NoError(t, err)

		require.NoError(t, src.AppendRow("a3"))

		got, err := g.VertexTable(1)
		require.NoError(t, err)
		assert.Equal(t, 2, got.NumRows())
	})
}

func TestAttachPreconditions(t *testing.T) {
	t.Run("invalid graph", func(t *testing.T) {
		_, err := (&Graph{}).AttachVertexTable(nil, 1)
		assert.ErrorIs(t, err, ErrInvalidGraph)
	})

	t.Run("empty graph", func(t *testing.T) {
		g := testGraph(t, 0)
		_, err := g.AttachVertexTable(mustTable(t, "a"), 1)
		assert.ErrorIs(t, err, ErrEmptyGraph)
	})

	t.Run("no target", func(t *testing.T) {
		g := testGraph(t, 2)
		_, err := g.AttachVertexTable(mustTable(t, "a"))
		assert.ErrorIs(t, err, ErrNoTarget)
	})

	t.Run("multiple targets", func(t *testing.T) {
		g := testGraph(t, 3)
		before := g.History()
		_, err := g.AttachVertexTable(mustTable(t, "a"), 1, 2)
		assert.ErrorIs(t, err, ErrMultipleTargets)
		assert.Equal(t, 0, g.TableCount())
		assert.Equal(t, before, g.History())
	})

	t.Run("unknown vertex", func(t *testing.T) {
		g := testGraph(t, 4)
		before := g.History()
		_, err := g.AttachVertexTable(mustTable(t, "a"), 9)
		assert.ErrorIs(t, err, ErrUnknownVertex)
		assert.Equal(t, 0, g.TableCount())
		assert.Equal(t, before, g.History())
	})

	t.Run("nil table", func(t *testing.T) {
		g := testGraph(t, 1)
		_, err := g.AttachVertexTable(nil, 1)
		assert.ErrorIs(t, err, ErrNilTable)
		assert.Equal(t, 0, g.TableCount())
	})

	t.Run("table carrying a bookkeeping column", func(t *testing.T) {
		g := testGraph(t, 1)
		before := g.History()
		_, err := g.AttachVertexTable(mustTable(t, "a", "df_id"), 1)
		assert.ErrorIs(t, err, table.ErrDupColumn)
		assert.Equal(t, 0, g.TableCount())
		assert.Equal(t, before, g.History())
		_, ok := g.VertexAttr(1, AttrTableID)
		assert.False(t, ok)
	})
}

func TestAttachHistory(t *testing.T) {
	t.Run("one entry supersedes the attribute step", func(t *testing.T) {
		g := testGraph(t, 4)
		lenBefore := len(g.History())
		seqBefore := g.log.Seq()

		_, err := g.AttachVertexTable(mustTable(t, "a", "b"), 2)
		require.NoError(t, err)

		hist := g.History()
		assert.Len(t, hist, lenBefore+1)

		last := hist[len(hist)-1]
		assert.Equal(t, OpAttachVertexTable, last.Operation)
		assert.Equal(t, seqBefore+1, last.Seq)
		assert.Equal(t, 4, last.Vertices)
		assert.Equal(t, 0, last.Edges)
		assert.GreaterOrEqual(t, last.Duration, time.Duration(0))
		assert.False(t, last.Timestamp.IsZero())

		for _, e := range hist {
			assert.NotEqual(t, OpSetVertexAttr, e.Operation,
				"attribute step should have been superseded")
		}
	})

	t.Run("counts include edges at attach time", func(t *testing.T) {
		g := testGraph(t, 3)
		_, err := g.AddEdge(1, 2, "", nil)
		require.NoError(t, err)
		_, err = g.AddEdge(2, 3, "", nil)
		require.NoError(t, err)

		_, err = g.AttachVertexTable(mustTable(t, "a"), 3)
		require.NoError(t, err)

		last, ok := g.LastAction()
		require.True(t, ok)
		assert.Equal(t, 3, last.Vertices)
		assert.Equal(t, 2, last.Edges)
	})
}

func TestAttachEdgeTable(t *testing.T) {
	t.Run("mirrors vertex attach with edge owner", func(t *testing.T) {
		g := testGraph(t, 2)
		eid, err := g.AddEdge(1, 2, "LINE", nil)
		require.NoError(t, err)

		src := mustTable(t, "a", "b")
		id, err := g.AttachEdgeTable(src, eid)
		require.NoError(t, err)
		assert.True(t, ident.Valid(id))

		entries := g.Tables()
		require.Len(t, entries, 1)
		assert.Equal(t, tablestore.Owner{Kind: tablestore.OwnerEdge, ID: eid}, entries[0].Owner)
		v, _ := entries[0].Table.Value(0, ColOwnerKind)
		assert.Equal(t, "edge", v)

		attr, ok := g.EdgeAttr(eid, AttrTableID)
		require.True(t, ok)
		assert.Equal(t, id, attr)

		got, err := g.EdgeTable(eid)
		require.NoError(t, err)
		assert.True(t, src.Equal(got))

		last, okLast := g.LastAction()
		require.True(t, okLast)
		assert.Equal(t, OpAttachEdgeTable, last.Operation)
	})

	t.Run("unknown edge", func(t *testing.T) {
		g := testGraph(t, 2)
		_, err := g.AttachEdgeTable(mustTable(t, "a"), 9)
		assert.ErrorIs(t, err, ErrUnknownEdge)
	})

	t.Run("vertex and edge tables do not collide", func(t *testing.T) {
		g := testGraph(t, 2)
		eid, err := g.AddEdge(1, 2, "", nil)
		require.NoError(t, err)

		// Same numeric ID, different owner kinds.
		vID, err := g.AttachVertexTable(mustTable(t, "a"), 1)
		require.NoError(t, err)
		eID, err := g.AttachEdgeTable(mustTable(t, "b"), eid)
		require.NoError(t, err)

		assert.NotEqual(t, vID, eID)
		assert.Equal(t, 2, g.TableCount())
	})
}

func TestDetach(t *testing.T) {
	t.Run("removes entry, clears pointer, logs once", func(t *testing.T) {
		g := testGraph(t, 2)
		_, err := g.AttachVertexTable(mustTable(t, "a"), 1)
		require.NoError(t, err)
		lenBefore := len(g.History())

		require.NoError(t, g.DetachVertexTable(1))

		assert.Equal(t, 0, g.TableCount())
		_, ok := g.VertexAttr(1, AttrTableID)
		assert.False(t, ok)
		_, err = g.VertexTable(1)
		assert.ErrorIs(t, err, ErrNoSuchTable)

		hist := g.History()
		assert.Len(t, hist, lenBefore+1)
		assert.Equal(t, OpDetachVertexTable, hist[len(hist)-1].Operation)
	})

	t.Run("edge detach", func(t *testing.T) {
		g := testGraph(t, 2)
		eid, err := g.AddEdge(1, 2, "", nil)
		require.NoError(t, err)
		_, err = g.AttachEdgeTable(mustTable(t, "a"), eid)
		require.NoError(t, err)

		require.NoError(t, g.DetachEdgeTable(eid))
		assert.Equal(t, 0, g.TableCount())
		_, ok := g.EdgeAttr(eid, AttrTableID)
		assert.False(t, ok)
	})

	t.Run("errors", func(t *testing.T) {
		g := testGraph(t, 1)
		assert.ErrorIs(t, g.DetachVertexTable(9), ErrUnknownVertex)
		assert.ErrorIs(t, g.DetachVertexTable(1), ErrNoSuchTable)
		assert.ErrorIs(t, g.DetachEdgeTable(1), ErrUnknownEdge)
	})
}

func TestTableReadErrors(t *testing.T) {
	g := testGraph(t, 1)
	_, err := g.VertexTable(9)
	assert.ErrorIs(t, err, ErrUnknownVertex)
	_, err = g.VertexTable(1)
	assert.ErrorIs(t, err, ErrNoSuchTable)
	_, err = g.EdgeTable(1)
	assert.ErrorIs(t, err, ErrUnknownEdge)
}

func TestAttachMintCollision(t *testing.T) {
	// The source yields the same eight bytes for the first two mints, then a
	// different block: the second attach must retry once and succeed.
	block1 := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	block2 := []byte{8, 9, 10, 11, 12, 13, 14, 15}
	src := bytes.NewReader(append(append(append(append([]byte{},
		block1...), block1...), block1...), block2...))

	g, err := New(Options{Directed: true, Minter: ident.NewFrom(src)})
	require.NoError(t, err)
	_, err = g.AddVertex(nil, nil)
	require.NoError(t, err)
	_, err = g.AddVertex(nil, nil)
	require.NoError(t, err)

	id1, err := g.AttachVertexTable(mustTable(t, "a"), 1)
	require.NoError(t, err)
	id2, err := g.AttachVertexTable(mustTable(t, "a"), 2)
	require.NoError(t, err)

	assert.NotEqual(t, id1, id2)
	assert.Equal(t, 2, g.TableCount())
}
