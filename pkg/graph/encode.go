package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/orneryd/vev/pkg/history"
	"github.com/orneryd/vev/pkg/ident"
	"github.com/orneryd/vev/pkg/tablestore"
)

// FormatVersion identifies the snapshot layout written by EncodeJSON.
const FormatVersion = 1

// snapshot is the serializable form of a graph: everything needed to
// rebuild vertices, edges, attached tables, and history.
type snapshot struct {
	Version      int                 `json:"version"`
	ID           string              `json:"id"`
	Directed     bool                `json:"directed"`
	CreatedAt    time.Time           `json:"created_at"`
	NextVertexID int64               `json:"next_vertex_id"`
	NextEdgeID   int64               `json:"next_edge_id"`
	Vertices     []*Vertex           `json:"vertices"`
	Edges        []*Edge             `json:"edges"`
	Tables       []*tablestore.Entry `json:"tables"`
	History      []history.Entry     `json:"history"`
}

// EncodeJSON writes the graph as an indented JSON snapshot. The snapshot
// captures graph structure and history, not runtime options; backups and
// sinks are per-process configuration.
func (g *Graph) EncodeJSON(w io.Writer) error {
	g.mu.RLock()
	snap := snapshot{
		Version:      FormatVersion,
		ID:           g.id,
		Directed:     g.opts.Directed,
		CreatedAt:    g.createdAt,
		NextVertexID: g.nextVertexID,
		NextEdgeID:   g.nextEdgeID,
		Vertices:     make([]*Vertex, 0, len(g.vertexOrder)),
		Edges:        make([]*Edge, 0, len(g.edgeOrder)),
	}
	for _, id := range g.vertexOrder {
		snap.Vertices = append(snap.Vertices, copyVertex(g.vertices[id]))
	}
	for _, id := range g.edgeOrder {
		snap.Edges = append(snap.Edges, copyEdge(g.edges[id]))
	}
	snap.Tables = g.store.Entries()
	snap.History = g.log.Entries()
	g.mu.RUnlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&snap); err != nil {
		return fmt.Errorf("graph: encode snapshot: %w", err)
	}
	return nil
}

// DecodeJSON rebuilds a graph from a snapshot written by EncodeJSON. The
// restored graph has backups off and a default identifier source; callers
// re-apply process configuration after restoring.
func DecodeJSON(r io.Reader) (*Graph, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var snap snapshot
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("graph: decode snapshot: %w", err)
	}
	if snap.Version != FormatVersion {
		return nil, fmt.Errorf("graph: unsupported snapshot version %d", snap.Version)
	}
	if !ident.Valid(snap.ID) {
		return nil, fmt.Errorf("graph: snapshot has invalid graph id %q", snap.ID)
	}

	g := &Graph{
		id:           snap.ID,
		opts:         Options{Directed: snap.Directed},
		vertices:     make(map[int64]*Vertex, len(snap.Vertices)),
		edges:        make(map[int64]*Edge, len(snap.Edges)),
		outgoing:     make(map[int64][]int64),
		incoming:     make(map[int64][]int64),
		store:        tablestore.New(),
		log:          history.NewLogFrom(snap.History),
		minter:       ident.New(),
		nextVertexID: snap.NextVertexID,
		nextEdgeID:   snap.NextEdgeID,
		createdAt:    snap.CreatedAt,
	}

	for _, v := range snap.Vertices {
		if v == nil {
			return nil, fmt.Errorf("%w: null vertex in snapshot", ErrInvalidGraph)
		}
		if _, dup := g.vertices[v.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate vertex %d", ErrInvalidGraph, v.ID)
		}
		coerceAttrs(v.Attrs)
		g.vertices[v.ID] = v
		g.vertexOrder = append(g.vertexOrder, v.ID)
		if v.ID >= g.nextVertexID {
			g.nextVertexID = v.ID + 1
		}
	}
	for _, e := range snap.Edges {
		if e == nil {
			return nil, fmt.Errorf("%w: null edge in snapshot", ErrInvalidGraph)
		}
		if _, dup := g.edges[e.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate edge %d", ErrInvalidGraph, e.ID)
		}
		if _, ok := g.vertices[e.From]; !ok {
			return nil, fmt.Errorf("%w: edge %d references missing vertex %d", ErrInvalidGraph, e.ID, e.From)
		}
		if _, ok := g.vertices[e.To]; !ok {
			return nil, fmt.Errorf("%w: edge %d references missing vertex %d", ErrInvalidGraph, e.ID, e.To)
		}
		coerceAttrs(e.Attrs)
		g.edges[e.ID] = e
		g.edgeOrder = append(g.edgeOrder, e.ID)
		g.outgoing[e.From] = append(g.outgoing[e.From], e.ID)
		g.incoming[e.To] = append(g.incoming[e.To], e.ID)
		if e.ID >= g.nextEdgeID {
			g.nextEdgeID = e.ID + 1
		}
	}
	if err := g.store.Restore(snap.Tables); err != nil {
		return nil, fmt.Errorf("graph: restore tables: %w", err)
	}
	if g.nextVertexID < 1 {
		g.nextVertexID = 1
	}
	if g.nextEdgeID < 1 {
		g.nextEdgeID = 1
	}
	return g, nil
}

// coerceAttrs folds json.Number attribute values into int64 or float64,
// matching what the rest of the API hands out.
func coerceAttrs(m map[string]any) {
	for k, v := range m {
		n, ok := v.(json.Number)
		if !ok {
			continue
		}
		if i, err := n.Int64(); err == nil {
			m[k] = i
		} else if f, err := n.Float64(); err == nil {
			m[k] = f
		} else {
			m[k] = n.String()
		}
	}
}
