package graph

import "github.com/orneryd/vev/pkg/ident"

// IsValid reports whether the graph is structurally sound: constructed
// through New, internally consistent, and with every edge referencing
// existing vertices. A graph built as a bare struct literal, or one whose
// invariants were broken by a partial decode, reports false.
func (g *Graph) IsValid() bool {
	if g == nil {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.validLocked()
}

// HasVertices reports whether the graph contains at least one vertex.
func (g *Graph) HasVertices() bool {
	if g == nil {
		return false
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.vertices) > 0
}

func (g *Graph) validLocked() bool {
	if !ident.Valid(g.id) {
		return false
	}
	if g.vertices == nil || g.edges == nil || g.outgoing == nil || g.incoming == nil {
		return false
	}
	if g.store == nil || g.log == nil || g.minter == nil {
		return false
	}
	if len(g.vertexOrder) != len(g.vertices) || len(g.edgeOrder) != len(g.edges) {
		return false
	}
	for _, id := range g.vertexOrder {
		if _, ok := g.vertices[id]; !ok {
			return false
		}
	}
	for _, id := range g.edgeOrder {
		e, ok := g.edges[id]
		if !ok {
			return false
		}
		if _, ok := g.vertices[e.From]; !ok {
			return false
		}
		if _, ok := g.vertices[e.To]; !ok {
			return false
		}
	}
	return true
}
