// Package testutil provides deterministic fixtures shared by the engine,
// shrinker, and store tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/roach88/falsify/choice"
	"github.com/roach88/falsify/internal/store"
)

// Seq builds a sequence from literal draws, with no span metadata.
// Replay re-derives spans, so tests rarely need to construct them.
func Seq(draws ...uint64) choice.Sequence {
	return choice.New(draws, nil)
}

// OpenDB opens a throwaway example database under the test's temp
// directory and closes it when the test finishes.
func OpenDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "examples.db"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
