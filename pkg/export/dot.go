// Package export renders graphs and tables into interchange formats:
// Graphviz DOT for visualization, JSON snapshots for persistence, and
// Arrow IPC for handing tables to analytics tooling.
package export

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/orneryd/vev/pkg/graph"
)

// WriteDOT renders g in Graphviz DOT format. Vertices and edges appear in
// insertion order with their attributes sorted by name, so the output is
// stable for a given graph. Elements carrying an attached table are marked
// (peripheries=2 for vertices, penwidth=2 for edges); the table pointer
// attribute itself is not printed.
func WriteDOT(w io.Writer, g *graph.Graph) error {
	keyword, arrow := "digraph", "->"
	if !g.Directed() {
		keyword, arrow = "graph", "--"
	}
	if _, err := fmt.Fprintf(w, "%s vev {\n", keyword); err != nil {
		return fmt.Errorf("export: write dot: %w", err)
	}

	for _, v := range g.Vertices() {
		label := strconv.FormatInt(v.ID, 10)
		if len(v.Labels) > 0 {
			label += " " + strings.Join(v.Labels, ":")
		}
		label += attrLines(v.Attrs)

		extra := ""
		if _, ok := v.Attrs[graph.AttrTableID]; ok {
			extra = ", peripheries=2"
		}
		if _, err := fmt.Fprintf(w, "  v%d [label=%q%s];\n", v.ID, label, extra); err != nil {
			return fmt.Errorf("export: write dot: %w", err)
		}
	}

	edges := g.Edges()
	if len(edges) > 0 {
		if _, err := io.WriteString(w, "\n"); err != nil {
			return fmt.Errorf("export: write dot: %w", err)
		}
	}
	for _, e := range edges {
		label := e.Type + attrLines(e.Attrs)

		extra := ""
		if _, ok := e.Attrs[graph.AttrTableID]; ok {
			extra = ", penwidth=2"
		}
		if _, err := fmt.Fprintf(w, "  v%d %s v%d [label=%q%s];\n", e.From, arrow, e.To, label, extra); err != nil {
			return fmt.Errorf("export: write dot: %w", err)
		}
	}

	if _, err := io.WriteString(w, "}\n"); err != nil {
		return fmt.Errorf("export: write dot: %w", err)
	}
	return nil
}

// WriteDOTFile renders g into a file at path.
func WriteDOTFile(path string, g *graph.Graph) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: create %s: %w", path, err)
	}
	if err := WriteDOT(f, g); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("export: close %s: %w", path, err)
	}
	return nil
}

// attrLines renders attrs as newline-separated key=value pairs, keys
// sorted, skipping the reserved table pointer.
func attrLines(attrs map[string]any) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		if k == graph.AttrTableID {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString("\n")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(formatValue(attrs[k]))
	}
	return b.String()
}

// formatValue renders a scalar the way it would appear in a cell.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}
