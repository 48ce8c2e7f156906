package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skylane-labs/hubgraph/engine/kg"
	"github.com/skylane-labs/hubgraph/engine/semantic"
)

func (a *app) exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "export neo4j|qdrant",
		Short:     "Project the saved graph into Neo4j or the Qdrant similarity index",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"neo4j", "qdrant"},
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := kg.LoadSaved(a.cfg.Paths().Graph)
			if err != nil {
				return fmt.Errorf("export: no graph, run build first: %w", err)
			}
			if args[0] == "neo4j" {
				return a.exportNeo4j(cmd.Context(), g)
			}
			return a.exportQdrant(cmd.Context(), g)
		},
	}
}

func (a *app) exportNeo4j(ctx context.Context, g *kg.Graph) error {
	if a.cfg.Neo4j.URL == "" {
		return fmt.Errorf("export: neo4j.url is not configured")
	}
	store, closeDriver, err := a.neo4jStore(ctx)
	if err != nil {
		return err
	}
	defer closeDriver()
	stats, err := store.ExportGraph(ctx, g)
	if err != nil {
		return err
	}
	a.log.Info("neo4j export done", "nodes", stats.Nodes, "edges", stats.Edges,
		"dangling", stats.Dangling, "statements", stats.Statements)
	return nil
}

func (a *app) exportQdrant(ctx context.Context, g *kg.Graph) error {
	cfg := a.cfg.Qdrant
	if cfg.Addr == "" {
		return fmt.Errorf("export: qdrant.addr is not configured")
	}
	ix, err := semantic.New(cfg.Addr, cfg.Collection)
	if err != nil {
		return err
	}
	defer ix.Close()
	vs := semantic.Vectors(g)
	if err := ix.Rebuild(ctx, vs); err != nil {
		return err
	}
	a.log.Info("qdrant export done", "collection", cfg.Collection, "points", len(vs))
	return nil
}
