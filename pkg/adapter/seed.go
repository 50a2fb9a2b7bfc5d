package adapter

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sync"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/sqlparser"
)

//go:embed fixtures/*.sql
var fixtures embed.FS

// goose keeps its base FS and dialect in package globals.
var gooseMu sync.Mutex

// gooseDialects maps adapter dialect names to goose dialects.
var gooseDialects = map[string]string{
	"sqlite":   "sqlite",
	"postgres": "postgres",
}

// Seed loads the sample dataset (users, orders) into a connected adapter.
//
// Dialects goose supports are migrated with goose so the version table is
// tracked. Other dialects (DuckDB) get the Up statements of each fixture
// applied directly; the fixtures are idempotent.
func Seed(ctx context.Context, a Adapter) error {
	db := a.SQLDB()
	if db == nil {
		return fmt.Errorf("database connection not established")
	}

	if dialect, ok := gooseDialects[a.DialectName()]; ok {
		gooseMu.Lock()
		defer gooseMu.Unlock()

		goose.SetBaseFS(fixtures)
		defer goose.SetBaseFS(nil)

		if err := goose.SetDialect(dialect); err != nil {
			return fmt.Errorf("failed to set dialect: %w", err)
		}
		if err := goose.UpContext(ctx, db, "fixtures"); err != nil {
			return fmt.Errorf("failed to seed sample data: %w", err)
		}
		return nil
	}

	files, err := fs.Glob(fixtures, "fixtures/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list fixtures: %w", err)
	}
	for _, name := range files {
		if err := applyUp(ctx, a, name); err != nil {
			return fmt.Errorf("failed to seed sample data from %s: %w", name, err)
		}
	}
	return nil
}

func applyUp(ctx context.Context, a Adapter, name string) error {
	f, err := fixtures.Open(name)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	stmts, _, err := sqlparser.ParseSQLMigration(f, sqlparser.DirectionUp, false)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if err := a.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
