package backup

import "github.com/orneryd/vev/pkg/graph"

// Sink adapts a Store to the graph.BackupSink interface so a graph can
// push a snapshot after every mutation.
type Sink struct {
	store *Store
}

// NewSink wraps a store for use with graph.SetBackupSink.
func NewSink(store *Store) *Sink {
	return &Sink{store: store}
}

// SaveSnapshot stores one snapshot of g, discarding the metadata.
func (s *Sink) SaveSnapshot(g *graph.Graph) error {
	_, err := s.store.Save(g)
	return err
}
