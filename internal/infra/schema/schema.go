// Package schema holds the datastore DDL and the similarity-search procedure.
package schema

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

//go:embed schema.sql
var DDL string

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Apply creates every table, index and function idempotently.
func Apply(ctx context.Context, db execer) error {
	if _, err := db.Exec(ctx, DDL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
