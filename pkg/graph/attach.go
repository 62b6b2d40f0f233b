package graph

import (
	"errors"
	"fmt"
	"time"

	"github.com/orneryd/vev/pkg/table"
	"github.com/orneryd/vev/pkg/tablestore"
)

// mintAttempts bounds re-minting when a freshly minted identifier collides
// with a stored one. With a 62^8 space a single retry is already overkill.
const mintAttempts = 3

// AttachVertexTable attaches a table to exactly one vertex and returns the
// minted table identifier.
//
// The stored copy gains three bookkeeping columns ahead of the caller's
// own, in order: the identifier, the owner kind, and the owner's ID. The
// caller's columns keep their order and values. A vertex holds at most one
// table; attaching again replaces the previous entry under a fresh
// identifier. The vertex's reserved attribute is updated to point at the
// new entry, and the whole attach is recorded as one history entry.
//
// All preconditions are checked before anything is minted or mutated:
// ErrInvalidGraph, ErrEmptyGraph, then ErrNoTarget or ErrMultipleTargets
// for a target list that isn't exactly one, ErrUnknownVertex for a missing
// target, and ErrNilTable last. A table already carrying a bookkeeping
// column name is rejected with a wrapped table error.
func (g *Graph) AttachVertexTable(tbl *table.Table, vertexIDs ...int64) (string, error) {
	id, err := g.attachTable(tablestore.OwnerVertex, tbl, vertexIDs)
	if err != nil {
		return "", err
	}
	g.maybeBackup()
	return id, nil
}

// AttachEdgeTable attaches a table to exactly one edge. Semantics mirror
// AttachVertexTable with ErrUnknownEdge for a missing target.
func (g *Graph) AttachEdgeTable(tbl *table.Table, edgeIDs ...int64) (string, error) {
	id, err := g.attachTable(tablestore.OwnerEdge, tbl, edgeIDs)
	if err != nil {
		return "", err
	}
	g.maybeBackup()
	return id, nil
}

func (g *Graph) attachTable(kind tablestore.OwnerKind, tbl *table.Table, ids []int64) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	start := time.Now()

	target, err := g.checkAttachTargetLocked(kind, ids)
	if err != nil {
		return "", err
	}
	if tbl == nil {
		return "", ErrNilTable
	}

	owner := tablestore.Owner{Kind: kind, ID: target}
	var id string
	for attempt := 0; ; attempt++ {
		id, err = g.minter.Mint()
		if err != nil {
			return "", fmt.Errorf("graph: mint table id: %w", err)
		}
		decorated, derr := tbl.WithLeadingColumns(
			BookkeepingColumns(),
			[]any{id, string(kind), target},
		)
		if derr != nil {
			return "", fmt.Errorf("graph: decorate table: %w", derr)
		}
		err = g.store.ReplaceForOwner(owner, id, decorated)
		if err == nil {
			break
		}
		if !errors.Is(err, tablestore.ErrDuplicateID) || attempt+1 >= mintAttempts {
			return "", fmt.Errorf("graph: store table: %w", err)
		}
	}

	// Point the element at its new table. The attribute write logs its own
	// entry; the attach entry then supersedes it so the history shows one
	// action.
	attrStart := time.Now()
	if err := g.applyAttrLocked(kind, AttrTableID, id, []int64{target}); err != nil {
		return "", err
	}
	switch kind {
	case tablestore.OwnerVertex:
		g.appendLogLocked(OpSetVertexAttr, attrStart)
		g.replaceLogLocked(OpAttachVertexTable, start)
	case tablestore.OwnerEdge:
		g.appendLogLocked(OpSetEdgeAttr, attrStart)
		g.replaceLogLocked(OpAttachEdgeTable, start)
	}
	return id, nil
}

// checkAttachTargetLocked runs the attach precondition ladder and resolves
// the single target element.
func (g *Graph) checkAttachTargetLocked(kind tablestore.OwnerKind, ids []int64) (int64, error) {
	if !g.validLocked() {
		return 0, ErrInvalidGraph
	}
	if len(g.vertices) == 0 {
		return 0, ErrEmptyGraph
	}
	if len(ids) == 0 {
		return 0, ErrNoTarget
	}
	if len(ids) > 1 {
		return 0, fmt.Errorf("%w: got %d", ErrMultipleTargets, len(ids))
	}
	target := ids[0]
	switch kind {
	case tablestore.OwnerVertex:
		if _, ok := g.vertices[target]; !ok {
			return 0, fmt.Errorf("%w: %d", ErrUnknownVertex, target)
		}
	case tablestore.OwnerEdge:
		if _, ok := g.edges[target]; !ok {
			return 0, fmt.Errorf("%w: %d", ErrUnknownEdge, target)
		}
	}
	return target, nil
}

// VertexTable returns the table attached to a vertex, with the bookkeeping
// columns stripped so the caller sees what was originally attached.
func (g *Graph) VertexTable(vertexID int64) (*table.Table, error) {
	return g.elementTable(tablestore.OwnerVertex, vertexID)
}

// EdgeTable returns the table attached to an edge.
func (g *Graph) EdgeTable(edgeID int64) (*table.Table, error) {
	return g.elementTable(tablestore.OwnerEdge, edgeID)
}

func (g *Graph) elementTable(kind tablestore.OwnerKind, id int64) (*table.Table, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if err := g.checkElementLocked(kind, id); err != nil {
		return nil, err
	}
	owner := tablestore.Owner{Kind: kind, ID: id}
	tid, ok := g.store.OwnerEntry(owner)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, owner)
	}
	entry, ok := g.store.Get(tid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, owner)
	}
	stripped, err := entry.Table.DropColumns(BookkeepingColumns()...)
	if err != nil {
		return nil, fmt.Errorf("graph: strip bookkeeping columns: %w", err)
	}
	return stripped, nil
}

// DetachVertexTable removes the table attached to a vertex and clears its
// reserved attribute. One history entry records the detach.
func (g *Graph) DetachVertexTable(vertexID int64) error {
	if err := g.detachTable(tablestore.OwnerVertex, vertexID); err != nil {
		return err
	}
	g.maybeBackup()
	return nil
}

// DetachEdgeTable removes the table attached to an edge.
func (g *Graph) DetachEdgeTable(edgeID int64) error {
	if err := g.detachTable(tablestore.OwnerEdge, edgeID); err != nil {
		return err
	}
	g.maybeBackup()
	return nil
}

func (g *Graph) detachTable(kind tablestore.OwnerKind, id int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	start := time.Now()

	if err := g.checkElementLocked(kind, id); err != nil {
		return err
	}
	owner := tablestore.Owner{Kind: kind, ID: id}
	tid, ok := g.store.OwnerEntry(owner)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchTable, owner)
	}
	if err := g.store.Evict(tid); err != nil {
		return fmt.Errorf("graph: evict table: %w", err)
	}
	if err := g.applyAttrLocked(kind, AttrTableID, nil, []int64{id}); err != nil {
		return err
	}
	switch kind {
	case tablestore.OwnerVertex:
		g.appendLogLocked(OpDetachVertexTable, start)
	case tablestore.OwnerEdge:
		g.appendLogLocked(OpDetachEdgeTable, start)
	}
	return nil
}

func (g *Graph) checkElementLocked(kind tablestore.OwnerKind, id int64) error {
	switch kind {
	case tablestore.OwnerVertex:
		if _, ok := g.vertices[id]; !ok {
			return fmt.Errorf("%w: %d", ErrUnknownVertex, id)
		}
	case tablestore.OwnerEdge:
		if _, ok := g.edges[id]; !ok {
			return fmt.Errorf("%w: %d", ErrUnknownEdge, id)
		}
	}
	return nil
}

