// Package tablestore mirrors processed CSV tables into a SQL database so
// they can be explored with ad-hoc queries. Every column is stored as text
// and tables are recreated on each write.
package tablestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store is a table sink backed by a database.
type Store interface {
	WriteTable(ctx context.Context, name string, header []string, rows [][]string) error
	Close() error
}

// Open picks SQLite when sqlitePath is set, else PostgreSQL when dsn is
// set. It returns (nil, nil) when neither is configured.
func Open(ctx context.Context, sqlitePath, dsn string) (Store, error) {
	switch {
	case sqlitePath != "":
		s, err := NewSQLite(ctx, sqlitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case dsn != "":
		p, err := NewPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, nil
}

var errNoColumns = errors.New("tablestore: table has no columns")

// quoteIdent double-quotes an identifier for both SQLite and PostgreSQL.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func createStmt(name string, header []string) string {
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = quoteIdent(h) + " TEXT"
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(cols, ", "))
}

// pad returns row sized to n cells.
func pad(row []string, n int) []string {
	if len(row) >= n {
		return row[:n]
	}
	out := make([]string, n)
	copy(out, row)
	return out
}
