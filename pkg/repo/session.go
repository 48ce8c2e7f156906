package repo

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Result is the part of a neo4j result set the repositories read.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// Session runs auto-commit Cypher statements.
type Session interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
	Close(ctx context.Context) error
}

// SessionFunc opens a session. Tests substitute a fake.
type SessionFunc func(ctx context.Context) Session

type driverSession struct {
	sess neo4j.SessionWithContext
}

func (d driverSession) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return d.sess.Run(ctx, cypher, params)
}

func (d driverSession) Close(ctx context.Context) error { return d.sess.Close(ctx) }

// DriverSessions opens sessions on driver against database; an empty
// database selects the server default.
func DriverSessions(driver neo4j.DriverWithContext, database string) SessionFunc {
	return func(ctx context.Context) Session {
		return driverSession{sess: driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: database})}
	}
}

// Drain consumes res and reports the first streaming error.
func Drain(ctx context.Context, res Result) error {
	for res.Next(ctx) {
	}
	return res.Err()
}

// Identifier strips everything but letters, digits and underscores so the
// value can be spliced into Cypher as a label, key or relationship type.
func Identifier(s string) string {
	var b strings.Builder
	for _, c := range s {
		if c < 0x80 && (c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			b.WriteRune(c)
		}
	}
	return b.String()
}

func mustIdentifier(kind, s string) string {
	id := Identifier(s)
	if id == "" || id != s {
		panic(fmt.Sprintf("repo: invalid %s %q", kind, s))
	}
	return id
}
