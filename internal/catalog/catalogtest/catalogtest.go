// Package catalogtest opens throwaway catalog stores for tests.
package catalogtest

import (
	"context"
	"testing"

	"github.com/studyshelf/catalogbot/internal/catalog/sqlite"
	"github.com/studyshelf/catalogbot/internal/db"
)

// NewStore returns a migrated in-memory SQLite store closed at test cleanup.
func NewStore(t testing.TB) *sqlite.Store {
	t.Helper()

	conn, err := db.OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := db.MigrateSQLite(conn, db.Up); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return sqlite.New(conn)
}
