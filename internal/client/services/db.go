package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dpetrovs/finsync/internal/client/migrations"
	"github.com/pressly/goose/v3"
)

// RunMigrations applies the embedded goose migrations to the meta database.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens the local SQLite meta database and brings its schema up
// to date. The caller owns closing the handle.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
