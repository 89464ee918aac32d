package shrink

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/falsify/choice"
	"github.com/roach88/falsify/internal/testutil"
	"github.com/roach88/falsify/strategy"
)

// propertyReplay builds a ReplayFunc from a strategy and a failure
// predicate on the generated value. Overruns and rejected draws are
// non-failing; anything else is a replay error.
func propertyReplay(s *strategy.Strategy, fails func(v any) bool) ReplayFunc {
	return func(seq choice.Sequence) Result {
		src := choice.NewReplaySource(seq)
		v, err := strategy.NewDraw(src).Draw(s)
		if err != nil {
			if errors.Is(err, choice.ErrOverrun) || errors.Is(err, strategy.ErrInvalid) {
				return Result{Seq: src.Record()}
			}
			return Result{Errored: true}
		}
		return Result{Seq: src.Record(), Fails: fails(v)}
	}
}

func TestMinimize_PerDrawBoundary(t *testing.T) {
	// Fails for values at or above 26; the minimal draw is exactly 26.
	replay := propertyReplay(strategy.Integers(0, 100), func(v any) bool {
		return v.(int64) >= 26
	})

	best, stats, err := Minimize(replay, testutil.Seq(73), 1000)
	require.NoError(t, err)
	assert.Equal(t, []uint64{26}, best.Draws())
	assert.Greater(t, stats.Adopted, 0)
	assert.False(t, stats.Incomplete)
}

func TestMinimize_BinarySearchIsCheap(t *testing.T) {
	// A huge draw space must not cost a linear number of candidates.
	replay := propertyReplay(strategy.Integers(0, 1<<40), func(v any) bool {
		return v.(int64) >= 123456
	})

	best, stats, err := Minimize(replay, testutil.Seq(1 << 39), 1000)
	require.NoError(t, err)
	assert.Equal(t, []uint64{123456}, best.Draws())
	assert.Less(t, stats.Candidates, 400, "binary search keeps the candidate count logarithmic")
}

func TestMinimize_ResultIsStrictlySimpler(t *testing.T) {
	replay := propertyReplay(strategy.TupleOf(strategy.Integers(0, 100), strategy.Integers(0, 100)),
		func(v any) bool {
			pair := v.([]any)
			return pair[0].(int64)+pair[1].(int64) >= 50
		})

	seed := testutil.Seq(80, 90)
	best, _, err := Minimize(replay, seed, 1000)
	require.NoError(t, err)
	assert.Negative(t, choice.Compare(best, seed))

	// The minimum lies on the predicate boundary.
	sum := best.Draw(0) + best.Draw(1)
	assert.Equal(t, uint64(50), sum)
}

func TestMinimize_DeletesListElements(t *testing.T) {
	// Fails when any element is at least 7. The minimum is a single-element
	// list holding exactly 7: element deletion must also decrement the
	// length draw so the shortened sequence still replays.
	lists := strategy.Lists(strategy.Integers(0, 9), 0, 5)
	replay := propertyReplay(lists, func(v any) bool {
		for _, el := range v.([]any) {
			if el.(int64) >= 7 {
				return true
			}
		}
		return false
	})

	seed := testutil.Seq(4, 3, 9, 1, 8)
	best, _, err := Minimize(replay, seed, 1000)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 7}, best.Draws())
}

func TestMinimize_LowersUnionDiscriminant(t *testing.T) {
	// Alternative 0 can never fail, so lowering stops at alternative 1 with
	// its payload minimized.
	s := strategy.OneOf(
		strategy.Integers(0, 9),
		strategy.Integers(100, 200),
		strategy.Integers(1000, 2000),
	)
	replay := propertyReplay(s, func(v any) bool {
		return v.(int64) >= 100
	})

	seed := testutil.Seq(2, 500)
	best, _, err := Minimize(replay, seed, 1000)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 0}, best.Draws(), "collapse to the earliest alternative that still fails")
}

func TestMinimize_SortsEqualWidthElements(t *testing.T) {
	// The failure is order-insensitive, so sorting canonicalizes the
	// element order without changing the multiset.
	lists := strategy.Lists(strategy.Integers(0, 9), 0, 3)
	replay := propertyReplay(lists, func(v any) bool {
		has := map[int64]bool{}
		for _, el := range v.([]any) {
			has[el.(int64)] = true
		}
		return has[1] && has[3]
	})

	best, _, err := Minimize(replay, testutil.Seq(2, 3, 1), 1000)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 1, 3}, best.Draws())
}

func TestMinimize_RawChunkDeletion(t *testing.T) {
	// No span metadata at all: only raw chunk deletion and per-draw
	// minimization apply. The predicate is a sum threshold, so every draw
	// ends exactly at its boundary.
	sumReplay := func(seq choice.Sequence) Result {
		src := choice.NewReplaySource(seq)
		var sum uint64
		for src.Consumed() < seq.Len() {
			v, err := src.DrawUint64()
			if err != nil {
				return Result{Seq: src.Record()}
			}
			sum += v
		}
		return Result{Seq: src.Record(), Fails: sum >= 10}
	}

	seed := testutil.Seq(3, 4, 2, 5)
	best, _, err := Minimize(sumReplay, seed, 1000)
	require.NoError(t, err)
	assert.Negative(t, choice.Compare(best, seed))

	var sum uint64
	for _, d := range best.Draws() {
		sum += d
	}
	assert.Equal(t, uint64(10), sum, "each draw minimized to the failure boundary")
}

func TestMinimize_SeedMustFail(t *testing.T) {
	replay := propertyReplay(strategy.Integers(0, 100), func(v any) bool {
		return false
	})

	_, stats, err := Minimize(replay, testutil.Seq(50), 1000)
	assert.ErrorIs(t, err, ErrNotReproducible)
	assert.Equal(t, 1, stats.Candidates, "a non-failing seed ends the search immediately")
}

func TestMinimize_FinalVerificationCatchesFlakiness(t *testing.T) {
	// Fails only on the very first replay: the seed reproduces but the
	// verification replay does not.
	calls := 0
	replay := func(seq choice.Sequence) Result {
		calls++
		src := choice.NewReplaySource(seq)
		for src.Consumed() < seq.Len() {
			if _, err := src.DrawUint64(); err != nil {
				return Result{Seq: src.Record()}
			}
		}
		return Result{Seq: src.Record(), Fails: calls == 1}
	}

	_, _, err := Minimize(replay, testutil.Seq(5), 1000)
	assert.ErrorIs(t, err, ErrNotReproducible)
}

func TestMinimize_ReplayErrorAbortsWithLastBest(t *testing.T) {
	// The seed replays fine; every later candidate errors. The search must
	// stop early, keep the seed as the best, and flag the run incomplete.
	calls := 0
	replay := func(seq choice.Sequence) Result {
		calls++
		if calls > 1 {
			return Result{Errored: true}
		}
		src := choice.NewReplaySource(seq)
		for src.Consumed() < seq.Len() {
			if _, err := src.DrawUint64(); err != nil {
				return Result{Seq: src.Record()}
			}
		}
		return Result{Seq: src.Record(), Fails: true}
	}

	seed := testutil.Seq(7, 8)
	best, stats, err := Minimize(replay, seed, 1000)
	require.NoError(t, err)
	assert.True(t, stats.Incomplete)
	assert.Equal(t, []uint64{7, 8}, best.Draws())
}

func TestMinimize_PassBudgetBoundsWork(t *testing.T) {
	replay := propertyReplay(strategy.Integers(0, 1000), func(v any) bool {
		return v.(int64) >= 1
	})

	_, stats, err := Minimize(replay, testutil.Seq(900), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Passes)
}

func TestMinimize_AlreadyMinimalSeed(t *testing.T) {
	replay := propertyReplay(strategy.Integers(0, 100), func(v any) bool {
		return true
	})

	best, stats, err := Minimize(replay, testutil.Seq(0), 1000)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0}, best.Draws())
	assert.Zero(t, stats.Adopted)
}
