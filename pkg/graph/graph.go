package graph

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/orneryd/vev/pkg/history"
	"github.com/orneryd/vev/pkg/ident"
	"github.com/orneryd/vev/pkg/tablestore"
)

// BackupSink receives the graph after a mutation when backups are enabled.
// Implementations must not mutate the graph; they are invoked only after the
// graph's own state is fully consistent.
type BackupSink interface {
	SaveSnapshot(g *Graph) error
}

// Options configures a graph. The zero value is an undirected graph with
// backups off and unbounded history; most callers want DefaultOptions.
type Options struct {
	// Directed selects directed edge semantics for rendering and traversal.
	Directed bool
	// WriteBackups invokes the backup sink after every mutation.
	WriteBackups bool
	// HistoryCap bounds the in-memory action log. 0 means unbounded.
	HistoryCap int
	// Minter overrides the identifier source. nil uses crypto/rand.
	Minter *ident.Minter
}

// DefaultOptions returns the standard configuration: directed, no backups,
// unbounded history.
func DefaultOptions() Options {
	return Options{Directed: true}
}

// Graph is an in-memory property graph with attached tables and an action
// history. Create one with New; the zero value is not usable.
type Graph struct {
	mu   sync.RWMutex
	id   string
	opts Options

	vertices    map[int64]*Vertex
	vertexOrder []int64
	edges       map[int64]*Edge
	edgeOrder   []int64
	outgoing    map[int64][]int64 // vertex ID -> outgoing edge IDs
	incoming    map[int64][]int64 // vertex ID -> incoming edge IDs

	store  *tablestore.Store
	log    *history.Log
	minter *ident.Minter
	backup BackupSink

	nextVertexID int64
	nextEdgeID   int64
	createdAt    time.Time
}

// New creates an empty graph with a freshly minted identifier and records
// the creation in its history.
func New(opts Options) (*Graph, error) {
	minter := opts.Minter
	if minter == nil {
		minter = ident.New()
	}
	id, err := minter.Mint()
	if err != nil {
		return nil, fmt.Errorf("graph: mint graph id: %w", err)
	}
	g := &Graph{
		id:           id,
		opts:         opts,
		vertices:     make(map[int64]*Vertex),
		edges:        make(map[int64]*Edge),
		outgoing:     make(map[int64][]int64),
		incoming:     make(map[int64][]int64),
		store:        tablestore.New(),
		log:          history.NewCappedLog(opts.HistoryCap),
		minter:       minter,
		nextVertexID: 1,
		nextEdgeID:   1,
		createdAt:    time.Now(),
	}
	g.log.Append(history.Entry{Operation: OpCreateGraph})
	return g, nil
}

// ID returns the graph's minted identifier.
func (g *Graph) ID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.id
}

// Directed reports whether the graph uses directed edge semantics.
func (g *Graph) Directed() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.opts.Directed
}

// CreatedAt returns when the graph was created.
func (g *Graph) CreatedAt() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.createdAt
}

// SetBackupSink installs the collaborator that persists snapshots. The sink
// only runs when Options.WriteBackups is set.
func (g *Graph) SetBackupSink(s BackupSink) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.backup = s
}

// EnableBackups turns the backup side effect on or off. Decoded graphs
// start with backups off; callers re-enable after wiring a sink.
func (g *Graph) EnableBackups(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.opts.WriteBackups = on
}

// AddVertex adds a vertex with the next free ID and returns that ID. Attrs
// may not use reserved attribute names.
func (g *Graph) AddVertex(labels []string, attrs map[string]any) (int64, error) {
	id, err := g.addVertex(labels, attrs)
	if err != nil {
		return 0, err
	}
	g.maybeBackup()
	return id, nil
}

func (g *Graph) addVertex(labels []string, attrs map[string]any) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	start := time.Now()

	if err := checkAttrNames(attrs); err != nil {
		return 0, err
	}
	id := g.nextVertexID
	g.nextVertexID++
	g.storeVertexLocked(id, labels, attrs)

	g.appendLogLocked(OpAddVertex, start)
	return id, nil
}

// AddVertexWithID adds a vertex under a caller-chosen positive ID, for
// callers reconstructing a graph whose identities are fixed elsewhere.
// Fails with ErrVertexExists if the ID is taken.
func (g *Graph) AddVertexWithID(id int64, labels []string, attrs map[string]any) error {
	if err := g.addVertexWithID(id, labels, attrs); err != nil {
		return err
	}
	g.maybeBackup()
	return nil
}

func (g *Graph) addVertexWithID(id int64, labels []string, attrs map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	start := time.Now()

	if id <= 0 {
		return fmt.Errorf("graph: vertex id must be positive, got %d", id)
	}
	if _, ok := g.vertices[id]; ok {
		return fmt.Errorf("%w: %d", ErrVertexExists, id)
	}
	if err := checkAttrNames(attrs); err != nil {
		return err
	}
	if id >= g.nextVertexID {
		g.nextVertexID = id + 1
	}
	g.storeVertexLocked(id, labels, attrs)

	g.appendLogLocked(OpAddVertex, start)
	return nil
}

func (g *Graph) storeVertexLocked(id int64, labels []string, attrs map[string]any) {
	now := time.Now()
	v := &Vertex{ID: id, CreatedAt: now, UpdatedAt: now}
	if len(labels) > 0 {
		v.Labels = append([]string{}, labels...)
	}
	if len(attrs) > 0 {
		v.Attrs = make(map[string]any, len(attrs))
		for k, val := range attrs {
			v.Attrs[k] = val
		}
	}
	g.vertices[id] = v
	g.vertexOrder = append(g.vertexOrder, id)
}

// AddEdge connects two existing vertices and returns the new edge's ID.
func (g *Graph) AddEdge(from, to int64, edgeType string, attrs map[string]any) (int64, error) {
	id, err := g.addEdge(from, to, edgeType, attrs)
	if err != nil {
		return 0, err
	}
	g.maybeBackup()
	return id, nil
}

func (g *Graph) addEdge(from, to int64, edgeType string, attrs map[string]any) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	start := time.Now()

	if err := checkAttrNames(attrs); err != nil {
		return 0, err
	}
	if _, ok := g.vertices[from]; !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownVertex, from)
	}
	if _, ok := g.vertices[to]; !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownVertex, to)
	}
	id := g.nextEdgeID
	g.nextEdgeID++

	now := time.Now()
	e := &Edge{ID: id, From: from, To: to, Type: edgeType, CreatedAt: now, UpdatedAt: now}
	if len(attrs) > 0 {
		e.Attrs = make(map[string]any, len(attrs))
		for k, val := range attrs {
			e.Attrs[k] = val
		}
	}
	g.edges[id] = e
	g.edgeOrder = append(g.edgeOrder, id)
	g.outgoing[from] = append(g.outgoing[from], id)
	g.incoming[to] = append(g.incoming[to], id)

	g.appendLogLocked(OpAddEdge, start)
	return id, nil
}

// RemoveVertex deletes a vertex, its incident edges, and every table
// attached to any of them. One history entry records the whole removal.
func (g *Graph) RemoveVertex(id int64) error {
	if err := g.removeVertex(id); err != nil {
		return err
	}
	g.maybeBackup()
	return nil
}

func (g *Graph) removeVertex(id int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	start := time.Now()

	if _, ok := g.vertices[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownVertex, id)
	}

	incident := make(map[int64]bool)
	for _, eid := range g.outgoing[id] {
		incident[eid] = true
	}
	for _, eid := range g.incoming[id] {
		incident[eid] = true
	}
	for eid := range incident {
		g.dropEdgeLocked(eid)
	}

	g.evictTableLocked(tablestore.Owner{Kind: tablestore.OwnerVertex, ID: id})
	delete(g.vertices, id)
	delete(g.outgoing, id)
	delete(g.incoming, id)
	g.vertexOrder = removeID(g.vertexOrder, id)

	g.appendLogLocked(OpRemoveVertex, start)
	return nil
}

// RemoveEdge deletes an edge and its attached table, if any.
func (g *Graph) RemoveEdge(id int64) error {
	if err := g.removeEdge(id); err != nil {
		return err
	}
	g.maybeBackup()
	return nil
}

func (g *Graph) removeEdge(id int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	start := time.Now()

	if _, ok := g.edges[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownEdge, id)
	}
	g.dropEdgeLocked(id)

	g.appendLogLocked(OpRemoveEdge, start)
	return nil
}

// dropEdgeLocked removes one edge and its table without logging; callers
// own the history entry.
func (g *Graph) dropEdgeLocked(id int64) {
	e, ok := g.edges[id]
	if !ok {
		return
	}
	g.evictTableLocked(tablestore.Owner{Kind: tablestore.OwnerEdge, ID: id})
	g.outgoing[e.From] = removeID(g.outgoing[e.From], id)
	g.incoming[e.To] = removeID(g.incoming[e.To], id)
	delete(g.edges, id)
	g.edgeOrder = removeID(g.edgeOrder, id)
}

// evictTableLocked silently drops the owner's table entry, if present.
func (g *Graph) evictTableLocked(owner tablestore.Owner) {
	if tid, ok := g.store.OwnerEntry(owner); ok {
		if err := g.store.Evict(tid); err != nil {
			log.Printf("vev: evict table %s for %s: %v", tid, owner, err)
		}
	}
}

// VertexCount returns the number of vertices.
func (g *Graph) VertexCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.vertices)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// HasVertex reports whether the vertex exists.
func (g *Graph) HasVertex(id int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.vertices[id]
	return ok
}

// HasEdge reports whether the edge exists.
func (g *Graph) HasEdge(id int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.edges[id]
	return ok
}

// Vertex returns a copy of the vertex with the given ID.
func (g *Graph) Vertex(id int64) (*Vertex, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	v, ok := g.vertices[id]
	if !ok {
		return nil, false
	}
	return copyVertex(v), true
}

// Edge returns a copy of the edge with the given ID.
func (g *Graph) Edge(id int64) (*Edge, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.edges[id]
	if !ok {
		return nil, false
	}
	return copyEdge(e), true
}

// Vertices returns copies of all vertices in insertion order.
func (g *Graph) Vertices() []*Vertex {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Vertex, 0, len(g.vertexOrder))
	for _, id := range g.vertexOrder {
		out = append(out, copyVertex(g.vertices[id]))
	}
	return out
}

// Edges returns copies of all edges in insertion order.
func (g *Graph) Edges() []*Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Edge, 0, len(g.edgeOrder))
	for _, id := range g.edgeOrder {
		out = append(out, copyEdge(g.edges[id]))
	}
	return out
}

// Neighbors returns the IDs of vertices adjacent to the given vertex. In a
// directed graph that means targets of outgoing edges and sources of
// incoming ones; duplicates are collapsed, order follows edge insertion.
func (g *Graph) Neighbors(id int64) ([]int64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.vertices[id]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVertex, id)
	}
	seen := make(map[int64]bool)
	var out []int64
	add := func(vid int64) {
		if vid != id && !seen[vid] {
			seen[vid] = true
			out = append(out, vid)
		}
	}
	for _, eid := range g.outgoing[id] {
		add(g.edges[eid].To)
	}
	for _, eid := range g.incoming[id] {
		add(g.edges[eid].From)
	}
	return out, nil
}

// History returns a copy of the action log, oldest first.
func (g *Graph) History() []history.Entry {
	return g.log.Entries()
}

// LastAction returns the newest history entry.
func (g *Graph) LastAction() (history.Entry, bool) {
	return g.log.Last()
}

// Tables returns copies of all attached table entries in attachment order.
func (g *Graph) Tables() []*tablestore.Entry {
	return g.store.Entries()
}

// TableCount returns the number of attached tables.
func (g *Graph) TableCount() int {
	return g.store.Len()
}

// appendLogLocked appends a history entry for op with counts taken from the
// current (post-mutation) state.
func (g *Graph) appendLogLocked(op string, start time.Time) history.Entry {
	return g.log.Append(history.Entry{
		Operation: op,
		Duration:  time.Since(start),
		Vertices:  len(g.vertices),
		Edges:     len(g.edges),
	})
}

// replaceLogLocked supersedes the newest history entry, see history.Log.
func (g *Graph) replaceLogLocked(op string, start time.Time) history.Entry {
	return g.log.ReplaceLast(history.Entry{
		Operation: op,
		Duration:  time.Since(start),
		Vertices:  len(g.vertices),
		Edges:     len(g.edges),
	})
}

// maybeBackup hands the graph to the backup sink when backups are on. It
// must be called without holding the mutex; sinks read the graph through
// its public API. Backup failures are logged, never propagated.
func (g *Graph) maybeBackup() {
	g.mu.RLock()
	sink := g.backup
	enabled := g.opts.WriteBackups && sink != nil
	g.mu.RUnlock()
	if !enabled {
		return
	}
	if err := sink.SaveSnapshot(g); err != nil {
		log.Printf("vev: backup of graph %s failed: %v", g.ID(), err)
	}
}

func removeID(ids []int64, id int64) []int64 {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func checkAttrNames(attrs map[string]any) error {
	for name := range attrs {
		if name == AttrTableID {
			return fmt.Errorf("%w: %q", ErrReservedAttr, name)
		}
	}
	return nil
}
