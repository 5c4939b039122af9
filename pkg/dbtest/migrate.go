// Package dbtest prepares disposable databases for integration tests.
package dbtest

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/jmoiron/sqlx"
)

// Migrate executes the named SQL files from fsys in order.
func Migrate(ctx context.Context, db *sqlx.DB, fsys fs.FS, names ...string) error {
	for _, name := range names {
		script, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("fs.ReadFile %s: %w", name, err)
		}

		if _, err = db.ExecContext(ctx, string(script)); err != nil {
			return fmt.Errorf("db.ExecContext %s: %w", name, err)
		}
	}

	return nil
}

// Truncate empties the given tables and resets their identity sequences.
func Truncate(ctx context.Context, db *sqlx.DB, tables ...string) error {
	for _, table := range tables {
		if _, err := db.ExecContext(ctx, "TRUNCATE TABLE "+table+" RESTART IDENTITY CASCADE"); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}
	}

	return nil
}
