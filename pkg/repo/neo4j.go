package repo

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jRepo stores T as nodes with one label, keyed by a single property.
type Neo4jRepo[T any, ID comparable] struct {
	open       SessionFunc
	label      string
	idKey      string
	toMap      func(T) map[string]any
	fromRecord func(*neo4j.Record) (T, error)
}

// Neo4jOption configures a Neo4jRepo.
type Neo4jOption[T any, ID comparable] func(*Neo4jRepo[T, ID])

// WithIDKey sets the key property (default "id").
func WithIDKey[T any, ID comparable](key string) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.idKey = mustIdentifier("id key", key) }
}

// NewNeo4jRepo panics when label is not a plain identifier; labels are
// spliced into Cypher and are always compile-time constants.
func NewNeo4jRepo[T any, ID comparable](
	open SessionFunc,
	label string,
	toMap func(T) map[string]any,
	fromRecord func(*neo4j.Record) (T, error),
	opts ...Neo4jOption[T, ID],
) *Neo4jRepo[T, ID] {
	r := &Neo4jRepo[T, ID]{
		open:       open,
		label:      mustIdentifier("label", label),
		idKey:      "id",
		toMap:      toMap,
		fromRecord: fromRecord,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

var _ Repository[any, string] = (*Neo4jRepo[any, string])(nil)

// one runs cypher and decodes the first record. ok is false when the
// statement returned nothing.
func (r *Neo4jRepo[T, ID]) one(ctx context.Context, cypher string, params map[string]any) (v T, ok bool, err error) {
	sess := r.open(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return v, false, fmt.Errorf("repo: %s: %w", r.label, err)
	}
	if !res.Next(ctx) {
		if err := res.Err(); err != nil {
			return v, false, fmt.Errorf("repo: %s: %w", r.label, err)
		}
		return v, false, nil
	}
	v, err = r.fromRecord(res.Record())
	if err != nil {
		return v, false, fmt.Errorf("repo: %s: decode: %w", r.label, err)
	}
	return v, true, nil
}

func (r *Neo4jRepo[T, ID]) Get(ctx context.Context, id ID) (T, error) {
	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) RETURN n", r.label, r.idKey)
	v, ok, err := r.one(ctx, cypher, map[string]any{"id": id})
	if err == nil && !ok {
		err = fmt.Errorf("%s %v: %w", r.label, id, ErrNotFound)
	}
	return v, err
}

func (r *Neo4jRepo[T, ID]) List(ctx context.Context, opts ListOpts) ([]T, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	sess := r.open(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s) RETURN n ORDER BY n.%s SKIP $offset LIMIT $limit", r.label, r.idKey)
	res, err := sess.Run(ctx, cypher, map[string]any{"offset": int64(opts.Offset), "limit": int64(limit)})
	if err != nil {
		return nil, fmt.Errorf("repo: %s: list: %w", r.label, err)
	}
	var items []T
	for res.Next(ctx) {
		item, err := r.fromRecord(res.Record())
		if err != nil {
			return nil, fmt.Errorf("repo: %s: decode: %w", r.label, err)
		}
		items = append(items, item)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("repo: %s: list: %w", r.label, err)
	}
	return items, nil
}

// Upsert merges on the id property and overwrites the others.
func (r *Neo4jRepo[T, ID]) Upsert(ctx context.Context, entity T) (T, error) {
	props := r.toMap(entity)
	id, ok := props[r.idKey]
	if !ok || id == nil || id == "" {
		var zero T
		return zero, fmt.Errorf("repo: %s: upsert without %s", r.label, r.idKey)
	}
	cypher := fmt.Sprintf("MERGE (n:%s {%s: $id}) SET n += $props RETURN n", r.label, r.idKey)
	v, ok, err := r.one(ctx, cypher, map[string]any{"id": id, "props": props})
	if err == nil && !ok {
		err = fmt.Errorf("repo: %s: upsert returned no node", r.label)
	}
	return v, err
}

// Delete removes the node and its relationships. Deleting a missing id is
// not an error.
func (r *Neo4jRepo[T, ID]) Delete(ctx context.Context, id ID) error {
	sess := r.open(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) DETACH DELETE n", r.label, r.idKey)
	res, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	if err == nil {
		err = Drain(ctx, res)
	}
	if err != nil {
		return fmt.Errorf("repo: %s: delete: %w", r.label, err)
	}
	return nil
}

func (r *Neo4jRepo[T, ID]) Count(ctx context.Context) (int64, error) {
	sess := r.open(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, fmt.Sprintf("MATCH (n:%s) RETURN count(n) AS count", r.label), nil)
	if err != nil {
		return 0, fmt.Errorf("repo: %s: count: %w", r.label, err)
	}
	if !res.Next(ctx) {
		return 0, res.Err()
	}
	n, _, err := neo4j.GetRecordValue[int64](res.Record(), "count")
	if err != nil {
		return 0, fmt.Errorf("repo: %s: count: %w", r.label, err)
	}
	return n, nil
}
