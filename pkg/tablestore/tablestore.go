// Package tablestore keeps the tables attached to graph elements, keyed by
// minted identifier and indexed by owner.
//
// The store enforces two invariants the attach protocol depends on:
//
//   - identifiers are unique: inserting an existing identifier fails rather
//     than overwriting, so a duplicate mint surfaces instead of clobbering
//     another element's payload
//   - at most one table per owner: ReplaceForOwner evicts the owner's
//     previous entry before inserting the new one
//
// Lookup by owner is O(1) through a secondary owner index that is kept in
// sync with every insert and evict. Entries are deep-copied across the store
// boundary in both directions.
package tablestore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/orneryd/vev/pkg/ident"
	"github.com/orneryd/vev/pkg/table"
)

// Common errors
var (
	ErrInvalidID   = errors.New("tablestore: invalid identifier")
	ErrDuplicateID = errors.New("tablestore: identifier already present")
	ErrUnknownID   = errors.New("tablestore: unknown identifier")
	ErrNilTable    = errors.New("tablestore: nil table")
)

// OwnerKind says which kind of graph element an entry is bound to.
type OwnerKind string

const (
	OwnerVertex OwnerKind = "vertex"
	OwnerEdge   OwnerKind = "edge"
)

// Owner identifies the graph element an entry is bound to.
type Owner struct {
	Kind OwnerKind `json:"kind"`
	ID   int64     `json:"id"`
}

func (o Owner) String() string {
	return fmt.Sprintf("%s/%d", o.Kind, o.ID)
}

// Entry is one stored table with its binding metadata.
type Entry struct {
	ID       string       `json:"id"`
	Owner    Owner        `json:"owner"`
	Table    *table.Table `json:"table"`
	StoredAt time.Time    `json:"stored_at"`
}

func (e *Entry) clone() *Entry {
	return &Entry{
		ID:       e.ID,
		Owner:    e.Owner,
		Table:    e.Table.Clone(),
		StoredAt: e.StoredAt,
	}
}

// Store holds attached tables keyed by identifier. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	byOwner map[Owner]string
	order   []string // live identifiers in insertion order
}

// New creates an empty store.
func New() *Store {
	return &Store{
		entries: make(map[string]*Entry),
		byOwner: make(map[Owner]string),
	}
}

// Insert stores tbl under id for the given owner. The identifier must be
// well formed and unused. The table is copied on the way in.
func (s *Store) Insert(id string, owner Owner, tbl *table.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(id, owner, tbl)
}

func (s *Store) insertLocked(id string, owner Owner, tbl *table.Table) error {
	if !ident.Valid(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	if tbl == nil {
		return ErrNilTable
	}
	if _, exists := s.entries[id]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	s.entries[id] = &Entry{
		ID:       id,
		Owner:    owner,
		Table:    tbl.Clone(),
		StoredAt: time.Now(),
	}
	s.byOwner[owner] = id
	s.order = append(s.order, id)
	return nil
}

// Evict removes the entry with the given identifier.
func (s *Store) Evict(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictLocked(id)
}

func (s *Store) evictLocked(id string) error {
	e, exists := s.entries[id]
	if !exists {
		return fmt.Errorf("%w: %q", ErrUnknownID, id)
	}
	delete(s.entries, id)
	if s.byOwner[e.Owner] == id {
		delete(s.byOwner, e.Owner)
	}
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// ReplaceForOwner binds a new entry to the owner, evicting whatever entry the
// owner held before. This is the only write path the attach protocol uses,
// so an owner can never accumulate two live entries. All arguments are
// validated before the old entry is touched; a failed replace leaves the
// owner's previous binding intact.
func (s *Store) ReplaceForOwner(owner Owner, newID string, tbl *table.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !ident.Valid(newID) {
		return fmt.Errorf("%w: %q", ErrInvalidID, newID)
	}
	if tbl == nil {
		return ErrNilTable
	}
	if _, exists := s.entries[newID]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateID, newID)
	}
	if old, ok := s.byOwner[owner]; ok {
		if err := s.evictLocked(old); err != nil {
			return err
		}
	}
	return s.insertLocked(newID, owner, tbl)
}

// Restore replays previously exported entries into an empty store,
// preserving identifiers, bindings, and StoredAt timestamps. Entry order
// becomes the store's insertion order.
func (s *Store) Restore(entries []*Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) > 0 {
		return errors.New("tablestore: restore into non-empty store")
	}
	for _, e := range entries {
		if e == nil {
			return ErrNilTable
		}
		if err := s.insertLocked(e.ID, e.Owner, e.Table); err != nil {
			return err
		}
		s.entries[e.ID].StoredAt = e.StoredAt
	}
	return nil
}

// OwnerEntry returns the identifier currently bound to the owner, if any.
func (s *Store) OwnerEntry(owner Owner) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byOwner[owner]
	return id, ok
}

// Get returns a copy of the entry with the given identifier.
func (s *Store) Get(id string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	return e.clone(), true
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Entries returns copies of all live entries in insertion order.
func (s *Store) Entries() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.entries[id].clone())
	}
	return out
}
