package tablestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database file at path.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("tablestore: open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("tablestore: ping sqlite: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

// DB exposes the connection for ad-hoc queries.
func (s *SQLite) DB() *sql.DB { return s.db }

// WriteTable replaces table name with rows in a single transaction.
func (s *SQLite) WriteTable(ctx context.Context, name string, header []string, rows [][]string) error {
	if len(header) == 0 {
		return errNoColumns
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tablestore: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(name)); err != nil {
		return fmt.Errorf("tablestore: drop %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, createStmt(name, header)); err != nil {
		return fmt.Errorf("tablestore: create %s: %w", name, err)
	}

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(header)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(name), marks))
	if err != nil {
		return fmt.Errorf("tablestore: prepare %s: %w", name, err)
	}
	defer stmt.Close()

	args := make([]any, len(header))
	for _, row := range rows {
		for i, v := range pad(row, len(header)) {
			args[i] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("tablestore: insert %s: %w", name, err)
		}
	}
	return tx.Commit()
}
