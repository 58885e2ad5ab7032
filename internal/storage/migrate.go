package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations
var migrations embed.FS

// Migrate applies all pending embedded migrations for dialect to db.
func Migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect) error {
	var dir string
	switch dialect {
	case goose.DialectPostgres:
		dir = "migrations/postgres"
	case goose.DialectSQLite3:
		dir = "migrations/sqlite"
	default:
		return fmt.Errorf("no migrations for dialect %q", dialect)
	}

	fsys, err := fs.Sub(migrations, dir)
	if err != nil {
		return fmt.Errorf("failed to open migrations: %w", err)
	}

	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return fmt.Errorf("failed to create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	for _, r := range results {
		slog.Info("Applied migration", "dialect", dialect, "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}
