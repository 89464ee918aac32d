package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/falsify/choice"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "examples.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seq(draws ...uint64) choice.Sequence {
	return choice.New(draws, nil)
}

func TestOpen_CreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "examples.db")
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Put(context.Background(), "id", seq(1)))
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "examples.db")

	db1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db1.Put(context.Background(), "id", seq(1, 2)))
	require.NoError(t, db1.Close())

	db2, err := Open(path)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get(context.Background(), "id")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Equal(seq(1, 2)))
}

func TestPut_RoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, "test-a", seq(5, 10, 15)))

	got, err := db.Get(ctx, "test-a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []uint64{5, 10, 15}, got[0].Draws())
}

func TestGet_MissingIdentityIsEmpty(t *testing.T) {
	db := openTestDB(t)

	got, err := db.Get(context.Background(), "never-stored")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPut_SimplerReplacesStored(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, "id", seq(9, 9, 9)))
	require.NoError(t, db.Put(ctx, "id", seq(1, 1)))

	got, err := db.Get(ctx, "id")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []uint64{1, 1}, got[0].Draws(), "a shorter sequence wins")
}

func TestPut_NotSimplerIsIgnored(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, "id", seq(1, 1)))
	require.NoError(t, db.Put(ctx, "id", seq(9, 9, 9)))
	require.NoError(t, db.Put(ctx, "id", seq(2, 2)), "equal length, lexicographically larger")

	got, err := db.Get(ctx, "id")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []uint64{1, 1}, got[0].Draws(), "the stored example only ever gets simpler")
}

func TestPut_EqualSequenceIsNoOp(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, "id", seq(3, 4)))
	require.NoError(t, db.Put(ctx, "id", seq(3, 4)))

	got, err := db.Get(ctx, "id")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestPut_IdentitiesAreIndependent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, "a", seq(1)))
	require.NoError(t, db.Put(ctx, "b", seq(2, 3)))

	gotA, err := db.Get(ctx, "a")
	require.NoError(t, err)
	require.Len(t, gotA, 1)
	assert.Equal(t, []uint64{1}, gotA[0].Draws())

	gotB, err := db.Get(ctx, "b")
	require.NoError(t, err)
	require.Len(t, gotB, 1)
	assert.Equal(t, []uint64{2, 3}, gotB[0].Draws())
}

func TestPrune_OnlyRemovesExactMatch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, "id", seq(5, 5)))

	// Pruning a different sequence leaves the stored one alone.
	require.NoError(t, db.Prune(ctx, "id", seq(6, 6)))
	got, err := db.Get(ctx, "id")
	require.NoError(t, err)
	require.Len(t, got, 1)

	require.NoError(t, db.Prune(ctx, "id", seq(5, 5)))
	got, err = db.Get(ctx, "id")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDelete_RemovesIdentity(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, "keep", seq(1)))
	require.NoError(t, db.Put(ctx, "drop", seq(2)))

	require.NoError(t, db.Delete(ctx, "drop"))

	got, err := db.Get(ctx, "drop")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = db.Get(ctx, "keep")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestList_SortedIdentities(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.Put(ctx, "charlie", seq(1)))
	require.NoError(t, db.Put(ctx, "alpha", seq(2)))
	require.NoError(t, db.Put(ctx, "bravo", seq(3)))

	ids, err := db.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, ids)
}

func TestGet_SkipsCorruptRows(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// A payload that is not a multiple of 8 bytes cannot decode.
	_, err := db.db.ExecContext(ctx,
		"INSERT INTO examples (identity, sequence, draw_count) VALUES (?, ?, ?)",
		"corrupt", []byte{0xde, 0xad, 0xbe}, 1)
	require.NoError(t, err)
	require.NoError(t, db.Put(ctx, "healthy", seq(7)))

	got, err := db.Get(ctx, "corrupt")
	require.NoError(t, err, "corrupt rows degrade to no stored example")
	assert.Empty(t, got)

	got, err = db.Get(ctx, "healthy")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestPruneCorrupt_RemovesUndecodableRow(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.db.ExecContext(ctx,
		"INSERT INTO examples (identity, sequence, draw_count) VALUES (?, ?, ?)",
		"corrupt", []byte{0xde, 0xad, 0xbe}, 1)
	require.NoError(t, err)

	removed, err := db.PruneCorrupt(ctx, "corrupt")
	require.NoError(t, err)
	assert.True(t, removed)

	ids, err := db.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestPruneCorrupt_KeepsHealthyRow(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.Put(ctx, "healthy", seq(7, 3)))

	removed, err := db.PruneCorrupt(ctx, "healthy")
	require.NoError(t, err)
	assert.False(t, removed)

	got, err := db.Get(ctx, "healthy")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []uint64{7, 3}, got[0].Draws())
}

func TestPruneCorrupt_MissingIdentityIsNoOp(t *testing.T) {
	db := openTestDB(t)

	removed, err := db.PruneCorrupt(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestPut_ConcurrentWritersConverge(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, db.Put(ctx, "shared", seq(uint64(i+1), uint64(i+1))))
		}(i)
	}
	wg.Wait()

	got, err := db.Get(ctx, "shared")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []uint64{1, 1}, got[0].Draws(), "the simplest write wins regardless of order")
}
