package tablestore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type Postgres struct {
	conn *pgx.Conn
}

func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("tablestore: connect postgres: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("tablestore: ping postgres: %w", err)
	}
	return &Postgres{conn: conn}, nil
}

func (p *Postgres) Close() error { return p.conn.Close(context.Background()) }

// Conn exposes the connection for ad-hoc queries.
func (p *Postgres) Conn() *pgx.Conn { return p.conn }

// WriteTable replaces table name using COPY inside a transaction.
func (p *Postgres) WriteTable(ctx context.Context, name string, header []string, rows [][]string) error {
	if len(header) == 0 {
		return errNoColumns
	}
	tx, err := p.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("tablestore: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
		return fmt.Errorf("tablestore: drop %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, createStmt(name, header)); err != nil {
		return fmt.Errorf("tablestore: create %s: %w", name, err)
	}

	values := make([][]any, len(rows))
	for i, row := range rows {
		cells := pad(row, len(header))
		values[i] = make([]any, len(cells))
		for j, v := range cells {
			values[i][j] = v
		}
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{name}, header, pgx.CopyFromRows(values)); err != nil {
		return fmt.Errorf("tablestore: copy %s: %w", name, err)
	}
	return tx.Commit(ctx)
}
