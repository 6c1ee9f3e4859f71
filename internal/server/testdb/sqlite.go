// Package testdb opens migrated in-memory SQLite databases for tests.
package testdb

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dmitrijs2005/fundkeeper/internal/dbx"
	"github.com/dmitrijs2005/fundkeeper/internal/server/migrations"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// NewSQLite returns a fresh in-memory database with all migrations applied.
// The handle is closed when the test ends.
func NewSQLite(t testing.TB) *sql.DB {
	t.Helper()

	db, err := dbx.Open(context.Background(), dbx.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		t.Fatalf("goose dialect: %v", err)
	}
	goose.SetLogger(goose.NopLogger())
	if err := goose.UpContext(context.Background(), db, migrations.DirSQLite); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}

	return db
}
