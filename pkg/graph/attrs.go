package graph

import (
	"fmt"
	"time"

	"github.com/orneryd/vev/pkg/tablestore"
)

// SetVertexAttr sets a named attribute on the given vertices, or on every
// vertex when none are given. Reserved attribute names are rejected; they
// belong to the attach and detach operations.
func (g *Graph) SetVertexAttr(name string, value any, vertexIDs ...int64) error {
	if err := g.setElementAttr(tablestore.OwnerVertex, name, value, vertexIDs); err != nil {
		return err
	}
	g.maybeBackup()
	return nil
}

// SetEdgeAttr sets a named attribute on the given edges, or on every edge
// when none are given.
func (g *Graph) SetEdgeAttr(name string, value any, edgeIDs ...int64) error {
	if err := g.setElementAttr(tablestore.OwnerEdge, name, value, edgeIDs); err != nil {
		return err
	}
	g.maybeBackup()
	return nil
}

// VertexAttr returns the named attribute of a vertex.
func (g *Graph) VertexAttr(id int64, name string) (any, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.vertices[id]
	if !ok || v.Attrs == nil {
		return nil, false
	}
	val, ok := v.Attrs[name]
	return val, ok
}

// EdgeAttr returns the named attribute of an edge.
func (g *Graph) EdgeAttr(id int64, name string) (any, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[id]
	if !ok || e.Attrs == nil {
		return nil, false
	}
	val, ok := e.Attrs[name]
	return val, ok
}

func (g *Graph) setElementAttr(kind tablestore.OwnerKind, name string, value any, ids []int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	start := time.Now()

	if name == AttrTableID {
		return fmt.Errorf("%w: %q", ErrReservedAttr, name)
	}
	if err := g.applyAttrLocked(kind, name, value, ids); err != nil {
		return err
	}
	switch kind {
	case tablestore.OwnerVertex:
		g.appendLogLocked(OpSetVertexAttr, start)
	case tablestore.OwnerEdge:
		g.appendLogLocked(OpSetEdgeAttr, start)
	}
	return nil
}

// applyAttrLocked writes the attribute without logging or reservation
// checks. The attach path calls it for the reserved attribute and then
// supersedes the log itself.
func (g *Graph) applyAttrLocked(kind tablestore.OwnerKind, name string, value any, ids []int64) error {
	now := time.Now()
	switch kind {
	case tablestore.OwnerVertex:
		if len(ids) == 0 {
			ids = g.vertexOrder
		}
		for _, id := range ids {
			if _, ok := g.vertices[id]; !ok {
				return fmt.Errorf("%w: %d", ErrUnknownVertex, id)
			}
		}
		for _, id := range ids {
			v := g.vertices[id]
			if v.Attrs == nil {
				v.Attrs = make(map[string]any)
			}
			if value == nil {
				delete(v.Attrs, name)
			} else {
				v.Attrs[name] = value
			}
			v.UpdatedAt = now
		}
	case tablestore.OwnerEdge:
		if len(ids) == 0 {
			ids = g.edgeOrder
		}
		for _, id := range ids {
			if _, ok := g.edges[id]; !ok {
				return fmt.Errorf("%w: %d", ErrUnknownEdge, id)
			}
		}
		for _, id := range ids {
			e := g.edges[id]
			if e.Attrs == nil {
				e.Attrs = make(map[string]any)
			}
			if value == nil {
				delete(e.Attrs, name)
			} else {
				e.Attrs[name] = value
			}
			e.UpdatedAt = now
		}
	default:
		return fmt.Errorf("graph: unknown owner kind %q", kind)
	}
	return nil
}
