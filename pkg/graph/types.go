// Package graph implements the Vev property graph: ordered vertices and
// edges with named attributes, attachable tables, and a complete action
// history.
//
// Design principles:
//   - Every user-visible mutation leaves exactly one history entry
//   - Attached tables live in a side store, linked from the element through
//     a reserved attribute holding the table's minted identifier
//   - Reads hand out copies; internal state never escapes
//   - Thread-safe through one RWMutex per graph, though the intended use is
//     a single logical writer
//
// Example:
//
//	g, _ := graph.New(graph.DefaultOptions())
//	a, _ := g.AddVertex([]string{"Station"}, map[string]any{"name": "Oslo S"})
//	b, _ := g.AddVertex([]string{"Station"}, map[string]any{"name": "Bergen"})
//	g.AddEdge(a, b, "LINE", nil)
//
//	tbl, _ := table.FromRows([]string{"track", "length_m"}, [][]any{
//		{int64(3), 420.5},
//	})
//	id, _ := g.AttachVertexTable(tbl, a)
//	fmt.Println(id) // 8-character table identifier
package graph

import (
	"errors"
	"time"
)

// Common errors
var (
	ErrInvalidGraph    = errors.New("graph: structurally invalid")
	ErrEmptyGraph      = errors.New("graph: contains no vertices")
	ErrNoTarget        = errors.New("graph: no target element given")
	ErrMultipleTargets = errors.New("graph: more than one target element given")
	ErrUnknownVertex   = errors.New("graph: vertex not present")
	ErrUnknownEdge     = errors.New("graph: edge not present")
	ErrVertexExists    = errors.New("graph: vertex already exists")
	ErrNilTable        = errors.New("graph: nil table")
	ErrNoSuchTable     = errors.New("graph: element has no attached table")
	ErrReservedAttr    = errors.New("graph: attribute name is reserved")
)

// AttrTableID is the reserved attribute that links a vertex or edge to its
// attached table. It is written only by the attach and detach operations.
const AttrTableID = "df_id"

// Bookkeeping column names prefixed ahead of an attached table's own
// columns. ColTableID repeats the minted identifier, ColOwnerKind records
// whether the owner is a vertex or an edge, and ColOwnerID records the
// owner's integer ID.
const (
	ColTableID   = "df_id"
	ColOwnerKind = "node_edge"
	ColOwnerID   = "id"
)

// BookkeepingColumns returns the bookkeeping column names in prefix order.
func BookkeepingColumns() []string {
	return []string{ColTableID, ColOwnerKind, ColOwnerID}
}

// Operation names recorded in history entries.
const (
	OpCreateGraph       = "create_graph"
	OpAddVertex         = "add_vertex"
	OpAddEdge           = "add_edge"
	OpRemoveVertex      = "remove_vertex"
	OpRemoveEdge        = "remove_edge"
	OpSetVertexAttr     = "set_vertex_attr"
	OpSetEdgeAttr       = "set_edge_attr"
	OpAttachVertexTable = "attach_vertex_table"
	OpAttachEdgeTable   = "attach_edge_table"
	OpDetachVertexTable = "detach_vertex_table"
	OpDetachEdgeTable   = "detach_edge_table"
)

// Vertex is a graph vertex: an integer ID unique within its graph, optional
// labels, and named attributes.
type Vertex struct {
	ID        int64          `json:"id"`
	Labels    []string       `json:"labels,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Edge is a directed connection between two vertices. In an undirected
// graph From and To still record the insertion orientation; traversal and
// rendering ignore it.
type Edge struct {
	ID        int64          `json:"id"`
	From      int64          `json:"from"`
	To        int64          `json:"to"`
	Type      string         `json:"type,omitempty"`
	Attrs     map[string]any `json:"attrs,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// copyVertex returns a deep copy so callers can't mutate graph internals.
func copyVertex(v *Vertex) *Vertex {
	if v == nil {
		return nil
	}
	cp := *v
	if v.Labels != nil {
		cp.Labels = make([]string, len(v.Labels))
		copy(cp.Labels, v.Labels)
	}
	if v.Attrs != nil {
		cp.Attrs = make(map[string]any, len(v.Attrs))
		for k, val := range v.Attrs {
			cp.Attrs[k] = val
		}
	}
	return &cp
}

func copyEdge(e *Edge) *Edge {
	if e == nil {
		return nil
	}
	cp := *e
	if e.Attrs != nil {
		cp.Attrs = make(map[string]any, len(e.Attrs))
		for k, val := range e.Attrs {
			cp.Attrs[k] = val
		}
	}
	return &cp
}
