// Package repo defines a generic keyed repository and its Neo4j
// implementation, plus the session seam the graph exporter shares.
package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no node carries the id.
var ErrNotFound = errors.New("repo: not found")

// Repository reads and upserts entities keyed by ID. The pipeline rebuilds
// every entity each run, so there is no separate create path.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Upsert(ctx context.Context, entity T) (T, error)
	Delete(ctx context.Context, id ID) error
	Count(ctx context.Context) (int64, error)
}

// ListOpts controls pagination for List. Results are ordered by id.
type ListOpts struct {
	Offset int
	Limit  int
}

// DefaultLimit applies when ListOpts.Limit is not positive.
const DefaultLimit = 100
