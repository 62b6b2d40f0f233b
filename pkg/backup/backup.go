// Package backup persists graph snapshots to BadgerDB.
//
// Every snapshot is the full JSON encoding of a graph, compressed with
// snappy and checksummed with BLAKE2b-256 before it goes to disk. Snapshots
// are immutable once written; the store only ever adds new ones and prunes
// old ones.
package backup

import (
	"bytes"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/golang/snappy"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/orneryd/vev/pkg/graph"
)

// Common errors
var (
	ErrNotFound = errors.New("backup: snapshot not found")
	ErrChecksum = errors.New("backup: payload checksum mismatch")
	ErrClosed   = errors.New("backup: store closed")
	ErrNoGraphs = errors.New("backup: no snapshots for graph")
)

// Key prefixes for BadgerDB storage organization
// Using single-byte prefixes for efficiency
const (
	prefixMeta       = byte(0x01) // meta:snapshotID -> JSON(Meta)
	prefixPayload    = byte(0x02) // payload:snapshotID -> snappy(JSON snapshot)
	prefixGraphIndex = byte(0x03) // graph:graphID:invTime:snapshotID -> empty
)

// Meta describes one stored snapshot.
type Meta struct {
	ID         string    `json:"id"`
	GraphID    string    `json:"graph_id"`
	CreatedAt  time.Time `json:"created_at"`
	Vertices   int       `json:"vertices"`
	Edges      int       `json:"edges"`
	Tables     int       `json:"tables"`
	RawSize    int64     `json:"raw_size"`
	StoredSize int64     `json:"stored_size"`
	Checksum   string    `json:"checksum"` // hex BLAKE2b-256 of the raw payload
}

// Options configures the snapshot store.
type Options struct {
	// Dir is the directory for storing data files. Required unless InMemory.
	Dir string

	// InMemory runs BadgerDB in memory-only mode. Useful for testing.
	InMemory bool

	// SyncWrites forces fsync after each write.
	SyncWrites bool
}

// Store is a BadgerDB-backed snapshot store.
//
// Key Structure:
//   - Meta:    0x01 + snapshotID -> JSON(Meta)
//   - Payload: 0x02 + snapshotID -> snappy(JSON snapshot)
//   - Index:   0x03 + graphID + 0x00 + inverted-nanos + snapshotID -> empty
//
// The index orders a graph's snapshots newest first: the timestamp is
// stored inverted, so a plain ascending prefix scan starts at the latest
// snapshot.
type Store struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// Open creates or opens a snapshot store in dir.
//
// ELI12:
//
// Think of the store as a box of dated photographs of your graph. Every
// time you call Save, it takes a new photo, shrink-wraps it (snappy), and
// writes a fingerprint on the back (BLAKE2b). Load finds a photo, checks
// the fingerprint to make sure nobody scribbled on it, and rebuilds the
// graph exactly as it looked.
func Open(dir string) (*Store, error) {
	return OpenWithOptions(Options{Dir: dir})
}

// OpenWithOptions creates a Store with custom configuration. InMemory mode
// keeps everything in RAM, which is what the tests use.
func OpenWithOptions(opts Options) (*Store, error) {
	badgerOpts := badger.DefaultOptions(opts.Dir)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}

	// Quiet logger; snapshot stores run embedded in CLI runs and tests.
	badgerOpts = badgerOpts.WithLogger(nil)

	// Snapshot payloads are few and blobby, keep the engine small.
	badgerOpts = badgerOpts.
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithValueThreshold(1024).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("backup: open store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Save writes one snapshot of g and returns its metadata.
func (s *Store) Save(g *graph.Graph) (*Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var raw bytes.Buffer
	if err := g.EncodeJSON(&raw); err != nil {
		return nil, fmt.Errorf("backup: encode graph: %w", err)
	}
	sum := blake2b.Sum256(raw.Bytes())
	compressed := snappy.Encode(nil, raw.Bytes())

	meta := &Meta{
		ID:         uuid.NewString(),
		GraphID:    g.ID(),
		CreatedAt:  time.Now().UTC(),
		Vertices:   g.VertexCount(),
		Edges:      g.EdgeCount(),
		Tables:     g.TableCount(),
		RawSize:    int64(raw.Len()),
		StoredSize: int64(len(compressed)),
		Checksum:   hex.EncodeToString(sum[:]),
	}
	metaData, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("backup: marshal meta: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(metaKey(meta.ID), metaData); err != nil {
			return err
		}
		if err := txn.Set(payloadKey(meta.ID), compressed); err != nil {
			return err
		}
		return txn.Set(graphIndexKey(meta.GraphID, meta.CreatedAt, meta.ID), []byte{})
	})
	if err != nil {
		return nil, fmt.Errorf("backup: write snapshot: %w", err)
	}
	return meta, nil
}

// List returns metadata for every stored snapshot, newest first.
func (s *Store) List() ([]*Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var out []*Meta
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{prefixMeta}
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte{prefixMeta}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var m Meta
				if err := json.Unmarshal(val, &m); err != nil {
					return fmt.Errorf("unmarshal meta: %w", err)
				}
				out = append(out, &m)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("backup: list snapshots: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// ListGraph returns metadata for one graph's snapshots, newest first, using
// the inverted-time index.
func (s *Store) ListGraph(graphID string) ([]*Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := graphIndexPrefix(graphID)
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			// Snapshot ID trails the fixed-width inverted timestamp.
			if len(key) > len(prefix)+8 {
				ids = append(ids, string(key[len(prefix)+8:]))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("backup: scan graph index: %w", err)
	}

	out := make([]*Meta, 0, len(ids))
	for _, id := range ids {
		m, err := s.meta(id)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Load reads a snapshot by ID, verifies its checksum, and rebuilds the
// graph.
func (s *Store) Load(id string) (*graph.Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	meta, err := s.meta(id)
	if err != nil {
		return nil, err
	}

	var compressed []byte
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(payloadKey(id))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		compressed, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("backup: read payload: %w", err)
	}

	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("backup: decompress snapshot %s: %w", id, err)
	}
	sum := blake2b.Sum256(raw)
	want, err := hex.DecodeString(meta.Checksum)
	if err != nil || subtle.ConstantTimeCompare(sum[:], want) != 1 {
		return nil, fmt.Errorf("%w: snapshot %s", ErrChecksum, id)
	}

	g, err := graph.DecodeJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("backup: decode snapshot %s: %w", id, err)
	}
	return g, nil
}

// Latest loads the newest snapshot of the given graph.
func (s *Store) Latest(graphID string) (*graph.Graph, error) {
	metas, err := s.ListGraph(graphID)
	if err != nil {
		return nil, err
	}
	if len(metas) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoGraphs, graphID)
	}
	return s.Load(metas[0].ID)
}

// Prune deletes all but the newest keep snapshots of the given graph and
// returns how many were removed. keep <= 0 removes everything.
func (s *Store) Prune(graphID string, keep int) (int, error) {
	metas, err := s.ListGraph(graphID)
	if err != nil {
		return 0, err
	}
	if keep < 0 {
		keep = 0
	}
	if len(metas) <= keep {
		return 0, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	victims := metas[keep:]
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, m := range victims {
			if err := txn.Delete(metaKey(m.ID)); err != nil {
				return err
			}
			if err := txn.Delete(payloadKey(m.ID)); err != nil {
				return err
			}
			if err := txn.Delete(graphIndexKey(m.GraphID, m.CreatedAt, m.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("backup: prune snapshots: %w", err)
	}
	return len(victims), nil
}

func (s *Store) meta(id string) (*Meta, error) {
	var m Meta
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(id))
		if err == badger.ErrKeyNotFound {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("backup: read meta %s: %w", id, err)
	}
	return &m, nil
}

// ============================================================================
// Key encoding helpers
// ============================================================================

func metaKey(id string) []byte {
	return append([]byte{prefixMeta}, []byte(id)...)
}

func payloadKey(id string) []byte {
	return append([]byte{prefixPayload}, []byte(id)...)
}

// graphIndexKey builds an index key that sorts a graph's snapshots newest
// first: prefix + graphID + 0x00 + (MaxUint64 - unix nanos) + snapshotID.
func graphIndexKey(graphID string, at time.Time, id string) []byte {
	key := graphIndexPrefix(graphID)
	var inv [8]byte
	binary.BigEndian.PutUint64(inv[:], math.MaxUint64-uint64(at.UnixNano()))
	key = append(key, inv[:]...)
	key = append(key, []byte(id)...)
	return key
}

func graphIndexPrefix(graphID string) []byte {
	key := make([]byte, 0, 1+len(graphID)+1)
	key = append(key, prefixGraphIndex)
	key = append(key, []byte(graphID)...)
	key = append(key, 0x00)
	return key
}
