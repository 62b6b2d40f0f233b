package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntries() []Entry {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return []Entry{
		{Seq: 1, Operation: "create", Timestamp: base, Duration: 12 * time.Microsecond, Vertices: 0, Edges: 0},
		{Seq: 2, Operation: "add_vertex", Timestamp: base.Add(time.Second), Duration: 8 * time.Microsecond, Vertices: 1, Edges: 0},
		{Seq: 3, Operation: "attach_vertex_table", Timestamp: base.Add(2 * time.Second), Duration: 150 * time.Microsecond, Vertices: 1, Edges: 0},
	}
}

func TestArchiveRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	a, err := OpenArchive(path)
	require.NoError(t, err)
	defer a.Close()

	entries := testEntries()
	require.NoError(t, a.RecordAll(ctx, "g1aB2cD3", entries))

	got, err := a.Read(ctx, "g1aB2cD3")
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i := range entries {
		assert.Equal(t, entries[i].Seq, got[i].Seq)
		assert.Equal(t, entries[i].Operation, got[i].Operation)
		assert.True(t, entries[i].Timestamp.Equal(got[i].Timestamp),
			"timestamp %d: want %v, got %v", i, entries[i].Timestamp, got[i].Timestamp)
		assert.Equal(t, entries[i].Duration, got[i].Duration)
		assert.Equal(t, entries[i].Vertices, got[i].Vertices)
		assert.Equal(t, entries[i].Edges, got[i].Edges)
	}
}

func TestArchiveIdempotentRecord(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	a, err := OpenArchive(path)
	require.NoError(t, err)
	defer a.Close()

	entries := testEntries()
	require.NoError(t, a.RecordAll(ctx, "g1aB2cD3", entries))
	require.NoError(t, a.RecordAll(ctx, "g1aB2cD3", entries))

	got, err := a.Read(ctx, "g1aB2cD3")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestArchiveSupersede(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	a, err := OpenArchive(path)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.RecordAll(ctx, "g1aB2cD3", testEntries()))

	// The in-memory log replaced seq 3; re-recording overwrites the row.
	superseded := Entry{
		Seq: 3, Operation: "attach_edge_table",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC),
		Duration:  99 * time.Microsecond, Vertices: 1, Edges: 1,
	}
	require.NoError(t, a.Record(ctx, "g1aB2cD3", superseded))

	got, err := a.Read(ctx, "g1aB2cD3")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "attach_edge_table", got[2].Operation)
	assert.Equal(t, 1, got[2].Edges)
}

func TestArchiveGraphs(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	a, err := OpenArchive(path)
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Record(ctx, "bGraphId", testEntries()[0]))
	require.NoError(t, a.Record(ctx, "aGraphId", testEntries()[0]))

	graphs, err := a.Graphs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"aGraphId", "bGraphId"}, graphs)
}

func TestArchiveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	a, err := OpenArchive(path)
	require.NoError(t, err)
	require.NoError(t, a.Record(ctx, "g1aB2cD3", testEntries()[0]))
	require.NoError(t, a.Close())

	b, err := OpenArchive(path)
	require.NoError(t, err)
	defer b.Close()

	got, err := b.Read(ctx, "g1aB2cD3")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestArchiveReadEmpty(t *testing.T) {
	ctx := context.Background()
	a, err := OpenArchive(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer a.Close()

	got, err := a.Read(ctx, "missing1")
	require.NoError(t, err)
	assert.Empty(t, got)
}
