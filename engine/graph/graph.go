// Package graph exports the knowledge graph into Neo4j as a labelled
// property graph and reads airport nodes back for the API.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/skylane-labs/hubgraph/engine/kg"
	"github.com/skylane-labs/hubgraph/pkg/fn"
	"github.com/skylane-labs/hubgraph/pkg/repo"
)

// DefaultBatchSize is the number of rows sent per UNWIND statement.
const DefaultBatchSize = 500

// Store writes projections to Neo4j.
type Store struct {
	open      repo.SessionFunc
	airports  *repo.Neo4jRepo[Airport, string]
	BatchSize int
	Log       *slog.Logger
}

// New opens sessions on driver against database ("" for the default).
func New(driver neo4j.DriverWithContext, database string) *Store {
	return NewWithSessions(repo.DriverSessions(driver, database))
}

// NewWithSessions builds a store over any session source.
func NewWithSessions(open repo.SessionFunc) *Store {
	return &Store{
		open:      open,
		airports:  newAirportRepo(open),
		BatchSize: DefaultBatchSize,
		Log:       slog.Default(),
	}
}

func (s *Store) exec(ctx context.Context, sess repo.Session, cypher string, params map[string]any) error {
	res, err := sess.Run(ctx, cypher, params)
	if err == nil {
		err = repo.Drain(ctx, res)
	}
	if err != nil {
		return fmt.Errorf("graph: %w", err)
	}
	return nil
}

// Export replaces the previously exported graph with p. Nodes are merged
// on iri in batches grouped by label set, then relationships grouped by
// type. The first failing statement aborts the export.
func (s *Store) Export(ctx context.Context, p Projection) (ExportStats, error) {
	stats := ExportStats{Dangling: p.Dangling}
	sess := s.open(ctx)
	defer sess.Close(ctx)

	run := func(cypher string, params map[string]any) error {
		stats.Statements++
		return s.exec(ctx, sess, cypher, params)
	}
	if err := run(fmt.Sprintf("CREATE CONSTRAINT resource_iri IF NOT EXISTS FOR (n:%s) REQUIRE n.iri IS UNIQUE", ResourceLabel), nil); err != nil {
		return stats, err
	}
	if err := run(fmt.Sprintf("MATCH (n:%s) DETACH DELETE n", ResourceLabel), nil); err != nil {
		return stats, err
	}

	byLabels := fn.GroupBy(p.Nodes, func(n Node) string { return strings.Join(n.Labels, ":") })
	for _, labels := range fn.SortedKeys(byLabels) {
		cypher := fmt.Sprintf("UNWIND $rows AS row MERGE (n:%s {iri: row.iri}) SET n += row.props, n:%s",
			ResourceLabel, labels)
		for _, chunk := range fn.Chunk(byLabels[labels], s.batch()) {
			rows := fn.Map(chunk, func(n Node) map[string]any { return map[string]any{"iri": n.IRI, "props": n.Props} })
			if err := run(cypher, map[string]any{"rows": rows}); err != nil {
				return stats, err
			}
			stats.Nodes += len(chunk)
		}
	}

	byType := fn.GroupBy(p.Edges, func(e Edge) string { return e.Type })
	for _, typ := range fn.SortedKeys(byType) {
		cypher := fmt.Sprintf("UNWIND $rows AS row MATCH (a:%[1]s {iri: row.from}), (b:%[1]s {iri: row.to}) MERGE (a)-[:%[2]s]->(b)",
			ResourceLabel, repo.Identifier(typ))
		for _, chunk := range fn.Chunk(byType[typ], s.batch()) {
			rows := fn.Map(chunk, func(e Edge) map[string]any { return map[string]any{"from": e.From, "to": e.To} })
			if err := run(cypher, map[string]any{"rows": rows}); err != nil {
				return stats, err
			}
			stats.Edges += len(chunk)
		}
	}
	s.Log.Info("graph: exported", "nodes", stats.Nodes, "edges", stats.Edges,
		"dangling", stats.Dangling, "statements", stats.Statements)
	return stats, nil
}

// ExportGraph projects g and exports it.
func (s *Store) ExportGraph(ctx context.Context, g *kg.Graph) (ExportStats, error) {
	return s.Export(ctx, Project(g))
}

func (s *Store) batch() int {
	if s.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return s.BatchSize
}

// Airport reads one airport node by IATA code.
func (s *Store) Airport(ctx context.Context, code string) (Airport, error) {
	return s.airports.Get(ctx, strings.ToUpper(code))
}

// Airports lists airport nodes ordered by code.
func (s *Store) Airports(ctx context.Context, opts repo.ListOpts) ([]Airport, error) {
	return s.airports.List(ctx, opts)
}

// TopHubs returns the limit highest-scoring airports.
func (s *Store) TopHubs(ctx context.Context, limit int) ([]Airport, error) {
	all, err := s.airports.List(ctx, repo.ListOpts{Limit: 10000})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(all, func(a, b Airport) int {
		switch {
		case a.HubScore > b.HubScore:
			return -1
		case a.HubScore < b.HubScore:
			return 1
		}
		return strings.Compare(a.Code, b.Code)
	})
	return all[:min(limit, len(all))], nil
}
