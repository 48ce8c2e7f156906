package graph

import (
	"context"
	"fmt"
)

// NodeCounts returns exported node counts per label, the shared Resource
// label excluded.
func (s *Store) NodeCounts(ctx context.Context) (map[string]int64, error) {
	return s.counts(ctx, fmt.Sprintf(
		"MATCH (n:%s) UNWIND labels(n) AS type WITH type WHERE type <> '%[1]s' RETURN type, count(*) AS count",
		ResourceLabel))
}

// RelationshipCounts returns exported relationship counts per type.
func (s *Store) RelationshipCounts(ctx context.Context) (map[string]int64, error) {
	return s.counts(ctx, fmt.Sprintf(
		"MATCH (:%[1]s)-[r]->(:%[1]s) RETURN type(r) AS type, count(*) AS count", ResourceLabel))
}

func (s *Store) counts(ctx context.Context, cypher string) (map[string]int64, error) {
	sess := s.open(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypher, nil)
	if err != nil {
		return nil, fmt.Errorf("graph: counts: %w", err)
	}
	counts := make(map[string]int64)
	for res.Next(ctx) {
		rec := res.Record()
		typ, _ := rec.Get("type")
		cnt, _ := rec.Get("count")
		if t, ok := typ.(string); ok {
			if c, ok := cnt.(int64); ok {
				counts[t] = c
			}
		}
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("graph: counts: %w", err)
	}
	return counts, nil
}
