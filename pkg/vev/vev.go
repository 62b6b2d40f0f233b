// Package vev provides the main API for embedded vev usage.
//
// A vev database is a property graph where every vertex or edge can carry
// one attached data table, every mutation is recorded in an action history,
// and the whole graph can be snapshotted to disk after each change.
//
// Key Features:
//   - Labeled vertices and typed edges with scalar attributes
//   - One identified table per vertex or edge, linked through the reserved
//     df_id attribute
//   - A complete, ordered action history with optional SQLite archival
//   - Checksummed, snappy-compressed snapshots in BadgerDB
//
// Architecture:
//   - pkg/graph: the in-memory graph, attach protocol, and history log
//   - pkg/backup: the BadgerDB snapshot store and the graph's backup sink
//   - pkg/history: the in-memory log plus the SQLite archive
//   - pkg/config: VEV_* environment and YAML configuration
//
// Example Usage:
//
//	cfg := config.Default()
//	cfg.Graph.WriteBackups = true
//	cfg.Backup.Dir = "./backups"
//
//	db, err := vev.Open(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	g := db.Graph()
//	a, _ := g.AddVertex([]string{"Station"}, map[string]any{"name": "Oslo S"})
//	b, _ := g.AddVertex([]string{"Station"}, map[string]any{"name": "Bergen"})
//	g.AddEdge(a, b, "LINE", nil)
//
//	tbl, _ := table.FromRows([]string{"track", "length_m"}, [][]any{
//		{int64(3), 420.5},
//	})
//	id, _ := g.AttachVertexTable(tbl, a)
//	fmt.Println(id) // the table's 8-character identifier
//
// ELI12 (Explain Like I'm 12):
//
// Imagine a corkboard of index cards connected by strings. Each card is a
// vertex, each string an edge. vev lets you clip one spreadsheet to any
// card or string, writes down every change you make in a diary, and, if
// you ask it to, photographs the whole board after each change so you can
// always rebuild it exactly as it was.
package vev

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/orneryd/vev/pkg/backup"
	"github.com/orneryd/vev/pkg/config"
	"github.com/orneryd/vev/pkg/graph"
	"github.com/orneryd/vev/pkg/history"
)

// Errors returned by DB operations.
var (
	ErrClosed        = errors.New("vev: database is closed")
	ErrNoBackupStore = errors.New("vev: backup store not configured")
	ErrNoArchive     = errors.New("vev: history archive not configured")
)

// DB bundles a graph with its configured collaborators: the snapshot store
// and the history archive, either of which may be absent.
type DB struct {
	mu      sync.Mutex
	cfg     *config.Config
	graph   *graph.Graph
	store   *backup.Store
	archive *history.Archive
	closed  bool
}

// Open assembles a database around a fresh graph. The snapshot store is
// opened and wired as the graph's backup sink when the config enables
// WriteBackups; the SQLite archive is opened when the config enables it.
// A nil config means defaults.
func Open(cfg *config.Config) (*DB, error) {
	cfg, err := prepare(cfg)
	if err != nil {
		return nil, err
	}

	g, err := graph.New(graph.Options{
		Directed:   cfg.Graph.Directed,
		HistoryCap: cfg.Graph.HistoryCap,
	})
	if err != nil {
		return nil, fmt.Errorf("vev: create graph: %w", err)
	}
	return assemble(cfg, g, nil)
}

// OpenLatest assembles a database around the newest stored snapshot of the
// given graph instead of starting empty. The snapshot store named by the
// config must exist and hold at least one snapshot of that graph.
func OpenLatest(cfg *config.Config, graphID string) (*DB, error) {
	cfg, err := prepare(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Backup.Dir == "" {
		return nil, ErrNoBackupStore
	}

	store, err := backup.Open(cfg.Backup.Dir)
	if err != nil {
		return nil, err
	}
	g, err := store.Latest(graphID)
	if err != nil {
		store.Close()
		return nil, err
	}
	return assemble(cfg, g, store)
}

func prepare(cfg *config.Config) (*config.Config, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// assemble wires the optional collaborators around g, closing anything
// already opened if a later step fails.
func assemble(cfg *config.Config, g *graph.Graph, store *backup.Store) (*DB, error) {
	db := &DB{cfg: cfg, graph: g, store: store}

	if cfg.Graph.WriteBackups {
		if db.store == nil {
			s, err := backup.Open(cfg.Backup.Dir)
			if err != nil {
				return nil, err
			}
			db.store = s
		}
		g.SetBackupSink(backup.NewSink(db.store))
		g.EnableBackups(true)
	}

	if cfg.Archive.Enabled {
		a, err := history.OpenArchive(cfg.Archive.Path)
		if err != nil {
			if db.store != nil {
				db.store.Close()
			}
			return nil, err
		}
		db.archive = a
	}
	return db, nil
}

// Graph returns the live graph. Mutations through it honor the configured
// backup behavior.
func (db *DB) Graph() *graph.Graph {
	return db.graph
}

// Snapshots returns the snapshot store, or nil when no store is configured.
func (db *DB) Snapshots() *backup.Store {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.store
}

// Archive returns the history archive, or nil when archival is disabled.
func (db *DB) Archive() *history.Archive {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.archive
}

// Snapshot saves one snapshot of the graph right now, independent of the
// WriteBackups setting.
func (db *DB) Snapshot() (*backup.Meta, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, ErrClosed
	}
	if db.store == nil {
		return nil, ErrNoBackupStore
	}
	return db.store.Save(db.graph)
}

// PruneBackups trims this graph's snapshots to the configured keep count
// and returns how many were removed.
func (db *DB) PruneBackups() (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return 0, ErrClosed
	}
	if db.store == nil {
		return 0, ErrNoBackupStore
	}
	return db.store.Prune(db.graph.ID(), db.cfg.Backup.Keep)
}

// SyncHistory mirrors the graph's in-memory action log into the SQLite
// archive. Entries superseded in memory overwrite their archived rows.
func (db *DB) SyncHistory(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return ErrClosed
	}
	if db.archive == nil {
		return ErrNoArchive
	}
	return db.archive.RecordAll(ctx, db.graph.ID(), db.graph.History())
}

// Close releases the snapshot store and the archive. Safe to call twice.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	db.closed = true

	var firstErr error
	if db.store != nil {
		if err := db.store.Close(); err != nil {
			firstErr = err
		}
	}
	if db.archive != nil {
		if err := db.archive.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
