package export

import (
	"fmt"
	"os"

	"github.com/orneryd/vev/pkg/graph"
)

// WriteGraphFile writes the full JSON snapshot of g to path.
func WriteGraphFile(path string, g *graph.Graph) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	if err := g.EncodeJSON(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("export: close %s: %w", path, err)
	}
	return nil
}

// ReadGraphFile rebuilds a graph from a JSON snapshot file written by
// WriteGraphFile.
func ReadGraphFile(path string) (*graph.Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("export: open %s: %w", path, err)
	}
	defer f.Close()

	g, err := graph.DecodeJSON(f)
	if err != nil {
		return nil, err
	}
	return g, nil
}
