// Package main provides the vev CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/orneryd/vev/pkg/backup"
	"github.com/orneryd/vev/pkg/config"
	"github.com/orneryd/vev/pkg/export"
	"github.com/orneryd/vev/pkg/graph"
	"github.com/orneryd/vev/pkg/history"
	"github.com/orneryd/vev/pkg/table"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

var cfgPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "vev",
		Short: "vev - property graphs with attached tables",
		Long: `vev is an embedded property graph store where every vertex or edge
can carry one attached data table.

Features:
  • Labeled vertices and typed edges with scalar attributes
  • One identified table per vertex or edge
  • Full action history with a SQLite archive
  • Checksummed, compressed snapshots in BadgerDB
  • DOT, JSON, and Arrow IPC exports`,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (default: vev.yaml if present)")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("vev v%s (%s)\n", version, commit)
		},
	})

	// Init command
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file and create the backup directory",
		RunE:  runInit,
	}
	initCmd.Flags().String("out", "vev.yaml", "Where to write the config file")
	rootCmd.AddCommand(initCmd)

	// Backups commands
	backupsCmd := &cobra.Command{
		Use:   "backups",
		Short: "Inspect and prune stored snapshots",
	}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		RunE:  runBackupsList,
	}
	listCmd.Flags().String("graph", "", "Only list snapshots of this graph")
	backupsCmd.AddCommand(listCmd)
	backupsCmd.AddCommand(&cobra.Command{
		Use:   "show <snapshot-id>",
		Short: "Show one snapshot's metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  runBackupsShow,
	})
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old snapshots, keeping the newest per graph",
		RunE:  runBackupsPrune,
	}
	pruneCmd.Flags().Int("keep", -1, "Snapshots to keep per graph (default: config value)")
	pruneCmd.Flags().String("graph", "", "Only prune this graph")
	backupsCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(backupsCmd)

	// Export commands
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export a snapshot to an interchange format",
	}
	dotCmd := &cobra.Command{
		Use:   "dot <snapshot-id>",
		Short: "Render a snapshot as Graphviz DOT",
		Args:  cobra.ExactArgs(1),
		RunE:  runExportDOT,
	}
	dotCmd.Flags().String("out", "graph.dot", "Output file")
	dotCmd.Flags().Bool("latest", false, "Treat the argument as a graph ID and use its newest snapshot")
	exportCmd.AddCommand(dotCmd)
	jsonCmd := &cobra.Command{
		Use:   "json <snapshot-id>",
		Short: "Write a snapshot as a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE:  runExportJSON,
	}
	jsonCmd.Flags().String("out", "graph.json", "Output file")
	jsonCmd.Flags().Bool("latest", false, "Treat the argument as a graph ID and use its newest snapshot")
	exportCmd.AddCommand(jsonCmd)
	tableCmd := &cobra.Command{
		Use:   "table <snapshot-id>",
		Short: "Write one attached table as an Arrow IPC file",
		Args:  cobra.ExactArgs(1),
		RunE:  runExportTable,
	}
	tableCmd.Flags().String("out", "table.arrow", "Output file")
	tableCmd.Flags().Bool("latest", false, "Treat the argument as a graph ID and use its newest snapshot")
	tableCmd.Flags().Int64("vertex", 0, "Export the table attached to this vertex")
	tableCmd.Flags().Int64("edge", 0, "Export the table attached to this edge")
	exportCmd.AddCommand(tableCmd)
	rootCmd.AddCommand(exportCmd)

	// History commands
	historyCmd := &cobra.Command{
		Use:   "history <graph-id>",
		Short: "Print a graph's archived action history",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory,
	}
	historyCmd.AddCommand(&cobra.Command{
		Use:   "sync <snapshot-id>",
		Short: "Copy a snapshot's action history into the SQLite archive",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistorySync,
	})
	rootCmd.AddCommand(historyCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the active configuration: the --config file if given,
// vev.yaml if present, environment variables otherwise.
func loadConfig() (*config.Config, error) {
	if cfgPath != "" {
		return config.Load(cfgPath)
	}
	if _, err := os.Stat("vev.yaml"); err == nil {
		return config.Load("vev.yaml")
	}
	return config.LoadFromEnv(), nil
}

func openStore(cfg *config.Config) (*backup.Store, error) {
	if err := os.MkdirAll(cfg.Backup.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating backup directory: %w", err)
	}
	return backup.Open(cfg.Backup.Dir)
}

// resolveGraph loads either the named snapshot or, with latest set, the
// newest snapshot of the named graph.
func resolveGraph(store *backup.Store, arg string, latest bool) (*graph.Graph, error) {
	if latest {
		return store.Latest(arg)
	}
	return store.Load(arg)
}

func runInit(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")

	cfg := config.Default()
	if err := cfg.WriteFile(out); err != nil {
		return err
	}
	fmt.Printf("📝 Wrote %s\n", out)

	if err := os.MkdirAll(cfg.Backup.Dir, 0755); err != nil {
		return fmt.Errorf("creating backup directory: %w", err)
	}
	fmt.Printf("📁 Backup directory: %s\n", cfg.Backup.Dir)
	return nil
}

func runBackupsList(cmd *cobra.Command, args []string) error {
	graphID, _ := cmd.Flags().GetString("graph")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var metas []*backup.Meta
	if graphID != "" {
		metas, err = store.ListGraph(graphID)
	} else {
		metas, err = store.List()
	}
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Println("No snapshots.")
		return nil
	}

	for _, m := range metas {
		fmt.Printf("%s  graph=%s  %s  %dv/%de/%dt  %s\n",
			m.ID, m.GraphID, humanize.Time(m.CreatedAt),
			m.Vertices, m.Edges, m.Tables,
			humanize.Bytes(uint64(m.StoredSize)))
	}
	return nil
}

func runBackupsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	metas, err := store.List()
	if err != nil {
		return err
	}
	for _, m := range metas {
		if m.ID != args[0] {
			continue
		}
		fmt.Printf("Snapshot:  %s\n", m.ID)
		fmt.Printf("Graph:     %s\n", m.GraphID)
		fmt.Printf("Created:   %s (%s)\n", m.CreatedAt.Format(time.RFC3339), humanize.Time(m.CreatedAt))
		fmt.Printf("Contents:  %d vertices, %d edges, %d tables\n", m.Vertices, m.Edges, m.Tables)
		fmt.Printf("Size:      %s raw, %s stored\n", humanize.Bytes(uint64(m.RawSize)), humanize.Bytes(uint64(m.StoredSize)))
		fmt.Printf("Checksum:  %s\n", m.Checksum)
		return nil
	}
	return fmt.Errorf("snapshot %s not found", args[0])
}

func runBackupsPrune(cmd *cobra.Command, args []string) error {
	keep, _ := cmd.Flags().GetInt("keep")
	graphID, _ := cmd.Flags().GetString("graph")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if keep < 0 {
		keep = cfg.Backup.Keep
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	graphIDs := []string{graphID}
	if graphID == "" {
		metas, err := store.List()
		if err != nil {
			return err
		}
		seen := map[string]bool{}
		graphIDs = graphIDs[:0]
		for _, m := range metas {
			if !seen[m.GraphID] {
				seen[m.GraphID] = true
				graphIDs = append(graphIDs, m.GraphID)
			}
		}
	}

	total := 0
	for _, id := range graphIDs {
		removed, err := store.Prune(id, keep)
		if err != nil {
			return err
		}
		total += removed
	}
	fmt.Printf("🗑️  Removed %d snapshot(s), keeping up to %d per graph\n", total, keep)
	return nil
}

func runExportDOT(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	latest, _ := cmd.Flags().GetBool("latest")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	g, err := resolveGraph(store, args[0], latest)
	if err != nil {
		return err
	}
	if err := export.WriteDOTFile(out, g); err != nil {
		return err
	}
	fmt.Printf("✅ Wrote %s (%d vertices, %d edges)\n", out, g.VertexCount(), g.EdgeCount())
	return nil
}

func runExportJSON(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	latest, _ := cmd.Flags().GetBool("latest")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	g, err := resolveGraph(store, args[0], latest)
	if err != nil {
		return err
	}
	if err := export.WriteGraphFile(out, g); err != nil {
		return err
	}
	fmt.Printf("✅ Wrote %s (%d vertices, %d edges, %d tables)\n", out, g.VertexCount(), g.EdgeCount(), g.TableCount())
	return nil
}

func runExportTable(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	latest, _ := cmd.Flags().GetBool("latest")
	vertexID, _ := cmd.Flags().GetInt64("vertex")
	edgeID, _ := cmd.Flags().GetInt64("edge")

	if (vertexID == 0) == (edgeID == 0) {
		return fmt.Errorf("exactly one of --vertex or --edge is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	g, err := resolveGraph(store, args[0], latest)
	if err != nil {
		return err
	}

	var tbl *table.Table
	if vertexID != 0 {
		tbl, err = g.VertexTable(vertexID)
	} else {
		tbl, err = g.EdgeTable(edgeID)
	}
	if err != nil {
		return err
	}
	if err := export.WriteTableFile(out, tbl); err != nil {
		return err
	}
	fmt.Printf("✅ Wrote %s (%d rows, %d columns)\n", out, tbl.NumRows(), tbl.NumCols())
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	archive, err := history.OpenArchive(cfg.Archive.Path)
	if err != nil {
		return err
	}
	defer archive.Close()

	ctx := context.Background()
	entries, err := archive.Read(ctx, args[0])
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Printf("No archived actions for graph %s.\n", args[0])
		return nil
	}

	for _, e := range entries {
		fmt.Printf("%4d  %-20s %s  %10s  %dv/%de\n",
			e.Seq, e.Operation, e.Timestamp.Format(time.RFC3339),
			e.Duration, e.Vertices, e.Edges)
	}
	return nil
}

func runHistorySync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	g, err := store.Load(args[0])
	if err != nil {
		return err
	}

	archive, err := history.OpenArchive(cfg.Archive.Path)
	if err != nil {
		return err
	}
	defer archive.Close()

	ctx := context.Background()
	entries := g.History()
	if err := archive.RecordAll(ctx, g.ID(), entries); err != nil {
		return err
	}
	fmt.Printf("✅ Archived %d action(s) for graph %s\n", len(entries), g.ID())
	return nil
}
