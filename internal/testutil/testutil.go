// Package testutil provides shared test helpers for setting up stores and
// archives.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/mimir/internal/blob"
	"github.com/starford/mimir/internal/docstore"
)

// TestStore creates a temporary SQLite document store that is automatically
// cleaned up.
func TestStore(t *testing.T) *docstore.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "mimir-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := docstore.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestArchive creates a temporary blob archive rooted in a per-test
// directory.
func TestArchive(t *testing.T) *blob.FS {
	t.Helper()
	store, err := blob.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return store
}
