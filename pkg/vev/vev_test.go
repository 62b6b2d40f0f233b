package vev

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/vev/pkg/config"
	"github.com/orneryd/vev/pkg/table"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Backup.Dir = filepath.Join(t.TempDir(), "backups")
	cfg.Archive.Path = filepath.Join(t.TempDir(), "history.db")
	return cfg
}

func TestOpenDefaults(t *testing.T) {
	db, err := Open(testConfig(t))
	require.NoError(t, err)
	defer db.Close()

	g := db.Graph()
	require.NotNil(t, g)
	assert.True(t, g.IsValid())
	assert.True(t, g.Directed())

	// Neither collaborator is configured by default.
	assert.Nil(t, db.Snapshots())
	assert.Nil(t, db.Archive())
	_, err = db.Snapshot()
	assert.ErrorIs(t, err, ErrNoBackupStore)
	assert.ErrorIs(t, db.SyncHistory(context.Background()), ErrNoArchive)
}

func TestOpenRejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Graph.WriteBackups = true
	cfg.Backup.Dir = ""
	_, err := Open(cfg)
	assert.Error(t, err)
}

func TestWriteBackups(t *testing.T) {
	cfg := testConfig(t)
	cfg.Graph.WriteBackups = true
	cfg.Backup.Keep = 2

	db, err := Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	g := db.Graph()
	for i := 0; i < 4; i++ {
		_, err := g.AddVertex([]string{"Station"}, nil)
		require.NoError(t, err)
	}

	metas, err := db.Snapshots().ListGraph(g.ID())
	require.NoError(t, err)
	assert.Len(t, metas, 4)
	assert.Equal(t, 4, metas[0].Vertices)

	removed, err := db.PruneBackups()
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	metas, err = db.Snapshots().ListGraph(g.ID())
	require.NoError(t, err)
	assert.Len(t, metas, 2)
}

func TestManualSnapshot(t *testing.T) {
	cfg := testConfig(t)
	cfg.Graph.WriteBackups = true

	db, err := Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	// Turn the automatic side effect off; manual snapshots still work.
	db.Graph().EnableBackups(false)
	_, err = db.Graph().AddVertex(nil, nil)
	require.NoError(t, err)

	metas, err := db.Snapshots().ListGraph(db.Graph().ID())
	require.NoError(t, err)
	assert.Empty(t, metas)

	meta, err := db.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 1, meta.Vertices)
}

func TestOpenLatest(t *testing.T) {
	cfg := testConfig(t)
	cfg.Graph.WriteBackups = true

	db, err := Open(cfg)
	require.NoError(t, err)
	g := db.Graph()
	graphID := g.ID()

	_, err = g.AddVertex([]string{"Station"}, map[string]any{"name": "Oslo S"})
	require.NoError(t, err)
	_, err = g.AddVertex([]string{"Station"}, map[string]any{"name": "Bergen"})
	require.NoError(t, err)
	_, err = g.AddEdge(1, 2, "LINE", nil)
	require.NoError(t, err)

	tbl, err := table.FromRows([]string{"track"}, [][]any{{int64(3)}})
	require.NoError(t, err)
	_, err = g.AttachVertexTable(tbl, 1)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	restored, err := OpenLatest(cfg, graphID)
	require.NoError(t, err)
	defer restored.Close()

	rg := restored.Graph()
	assert.Equal(t, graphID, rg.ID())
	assert.Equal(t, 2, rg.VertexCount())
	assert.Equal(t, 1, rg.EdgeCount())
	got, err := rg.VertexTable(1)
	require.NoError(t, err)
	assert.True(t, tbl.Equal(got))

	// WriteBackups resumes on the restored graph.
	before, err := restored.Snapshots().ListGraph(graphID)
	require.NoError(t, err)
	_, err = rg.AddVertex(nil, nil)
	require.NoError(t, err)
	after, err := restored.Snapshots().ListGraph(graphID)
	require.NoError(t, err)
	assert.Len(t, after, len(before)+1)
}

func TestOpenLatestMissing(t *testing.T) {
	cfg := testConfig(t)
	_, err := OpenLatest(cfg, "AAAAAAAA")
	assert.Error(t, err)

	cfg.Backup.Dir = ""
	_, err = OpenLatest(cfg, "AAAAAAAA")
	assert.ErrorIs(t, err, ErrNoBackupStore)
}

func TestSyncHistory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Archive.Enabled = true

	db, err := Open(cfg)
	require.NoError(t, err)
	defer db.Close()

	g := db.Graph()
	_, err = g.AddVertex(nil, nil)
	require.NoError(t, err)
	_, err = g.AddVertex(nil, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, db.SyncHistory(ctx))

	entries, err := db.Archive().Read(ctx, g.ID())
	require.NoError(t, err)
	require.Len(t, entries, len(g.History()))
	assert.Equal(t, "create_graph", entries[0].Operation)

	// Syncing twice stays idempotent.
	require.NoError(t, db.SyncHistory(ctx))
	again, err := db.Archive().Read(ctx, g.ID())
	require.NoError(t, err)
	assert.Len(t, again, len(entries))
}

func TestClose(t *testing.T) {
	cfg := testConfig(t)
	cfg.Graph.WriteBackups = true
	cfg.Archive.Enabled = true

	db, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, db.Close())
	require.NoError(t, db.Close())

	_, err = db.Snapshot()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = db.PruneBackups()
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, db.SyncHistory(context.Background()), ErrClosed)
}
