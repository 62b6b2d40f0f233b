package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - actions table keyed by (graph_id, seq)
const currentSchemaVersion = 1

// Archive persists log entries to SQLite so history survives the process.
// The in-memory Log stays authoritative; recording the same entries again is
// harmless, and an entry superseded by ReplaceLast simply overwrites its row
// the next time it is recorded.
type Archive struct {
	db *sql.DB
}

// OpenArchive creates or opens the archive database at path.
//
// The database runs in WAL mode with NORMAL synchronous writes, a 5-second
// busy timeout, and a single writer connection. Safe to call repeatedly on
// the same path.
func OpenArchive(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("history: open archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: connect archive: %w", err)
	}

	// SQLite allows one writer at a time; a larger pool just manufactures
	// SQLITE_BUSY errors.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Record writes one entry for the given graph. Recording a sequence number
// that already exists overwrites the old row.
func (a *Archive) Record(ctx context.Context, graphID string, e Entry) error {
	_, err := a.db.ExecContext(ctx, `
		INSERT INTO actions (graph_id, seq, operation, timestamp, duration_ns, vertices, edges)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (graph_id, seq) DO UPDATE SET
			operation   = excluded.operation,
			timestamp   = excluded.timestamp,
			duration_ns = excluded.duration_ns,
			vertices    = excluded.vertices,
			edges       = excluded.edges`,
		graphID, e.Seq, e.Operation,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		int64(e.Duration), e.Vertices, e.Edges)
	if err != nil {
		return fmt.Errorf("history: record entry %d: %w", e.Seq, err)
	}
	return nil
}

// RecordAll writes a batch of entries for the given graph in one
// transaction.
func (a *Archive) RecordAll(ctx context.Context, graphID string, entries []Entry) error {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin record batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO actions (graph_id, seq, operation, timestamp, duration_ns, vertices, edges)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (graph_id, seq) DO UPDATE SET
			operation   = excluded.operation,
			timestamp   = excluded.timestamp,
			duration_ns = excluded.duration_ns,
			vertices    = excluded.vertices,
			edges       = excluded.edges`)
	if err != nil {
		return fmt.Errorf("history: prepare record batch: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, graphID, e.Seq, e.Operation,
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			int64(e.Duration), e.Vertices, e.Edges); err != nil {
			return fmt.Errorf("history: record entry %d: %w", e.Seq, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: commit record batch: %w", err)
	}
	return nil
}

// Read returns all archived entries for the given graph, oldest first.
func (a *Archive) Read(ctx context.Context, graphID string) ([]Entry, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT seq, operation, timestamp, duration_ns, vertices, edges
		FROM actions WHERE graph_id = ? ORDER BY seq`, graphID)
	if err != nil {
		return nil, fmt.Errorf("history: read archive: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts string
		var dur int64
		if err := rows.Scan(&e.Seq, &e.Operation, &ts, &dur, &e.Vertices, &e.Edges); err != nil {
			return nil, fmt.Errorf("history: scan archive row: %w", err)
		}
		e.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("history: parse archived timestamp %q: %w", ts, err)
		}
		e.Duration = time.Duration(dur)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: read archive: %w", err)
	}
	return out, nil
}

// Graphs returns the distinct graph identifiers present in the archive.
func (a *Archive) Graphs(ctx context.Context) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT DISTINCT graph_id FROM actions ORDER BY graph_id`)
	if err != nil {
		return nil, fmt.Errorf("history: list graphs: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("history: scan graph id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: list graphs: %w", err)
	}
	return out, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}
