// Package shrink searches for the simplest choice sequence that still
// reproduces a failure.
//
// The search works on sequences, never on values: every candidate is an
// edited copy of the current best sequence, replayed through the
// strategies to check whether it still fails. A candidate is adopted only
// if it still fails AND is strictly simpler (shorter, then
// lexicographically smaller), so the chain of adopted examples is monotone
// and the search terminates.
//
// Transform catalog, applied in fixed order each pass:
//
//  1. Span deletion - drop whole list elements (with the length draw
//     decremented) and raw draw chunks, largest chunks first.
//  2. Discriminant lowering - collapse one-of choices toward the first
//     alternative.
//  3. Per-draw minimization - zero a draw, then binary-search the smallest
//     still-failing value.
//  4. Element sorting - order equal-width list element blocks ascending.
//
// The search ends when a full pass adopts nothing (local minimum) or the
// pass budget is exhausted. A final verification replay is mandatory: a
// "minimal" example that does not independently re-fail is reported as an
// error, never as a result.
package shrink

import (
	"errors"
	"sort"

	"github.com/roach88/falsify/choice"
)

// ErrNotReproducible is returned when the final verification replay of the
// minimal sequence does not fail. It signals a flaky test: shrinking
// assumes replaying the same sequence yields the same outcome.
var ErrNotReproducible = errors.New("shrink: minimal example did not re-fail on verification replay")

// Result is the outcome of replaying one candidate sequence.
type Result struct {
	// Seq is the recorded sequence from the replay: draws normalized to
	// their sites' bounds and trimmed to the consumed prefix, with fresh
	// span metadata.
	Seq choice.Sequence

	// Fails reports whether the case failed (including a deadline
	// overrun, which shrinks like a failure).
	Fails bool

	// Errored reports a replay error unrelated to the property. It aborts
	// the search early; the last confirmed minimum is still reported.
	Errored bool
}

// ReplayFunc replays a candidate sequence through the strategies and the
// test body. It must be deterministic.
type ReplayFunc func(choice.Sequence) Result

// Stats summarizes one minimization run.
type Stats struct {
	Passes     int
	Candidates int
	Adopted    int

	// Incomplete is set when a replay error ended the search before a
	// local minimum was confirmed.
	Incomplete bool
}

// minimizer carries the search state for one run.
type minimizer struct {
	replay  ReplayFunc
	best    choice.Sequence
	stats   Stats
	stopped bool
}

// Minimize searches for the simplest sequence that still fails, starting
// from a sequence known to fail. The seed is replayed first to normalize
// it; a seed that does not fail returns ErrNotReproducible immediately.
func Minimize(replay ReplayFunc, seed choice.Sequence, maxPasses int) (choice.Sequence, Stats, error) {
	m := &minimizer{replay: replay}

	r := replay(seed)
	m.stats.Candidates++
	if r.Errored || !r.Fails {
		return seed, m.stats, ErrNotReproducible
	}
	m.best = r.Seq

	for m.stats.Passes < maxPasses && !m.stopped {
		m.stats.Passes++
		improved := false
		improved = m.deleteSpans() || improved
		improved = m.lowerDiscriminants() || improved
		improved = m.minimizeDraws() || improved
		improved = m.sortElements() || improved
		if !improved {
			break
		}
	}

	// Mandatory final verification: never report a minimum that does not
	// independently re-fail.
	if !m.stopped {
		final := replay(m.best)
		m.stats.Candidates++
		if final.Errored {
			m.stats.Incomplete = true
		} else if !final.Fails {
			return m.best, m.stats, ErrNotReproducible
		}
	}

	return m.best, m.stats, nil
}

// tryAdopt replays the candidate draws; adopts them as the new best iff
// the replay still fails and its recorded sequence is strictly simpler.
func (m *minimizer) tryAdopt(draws []uint64) bool {
	if m.stopped {
		return false
	}
	m.stats.Candidates++
	r := m.replay(choice.New(draws, nil))
	if r.Errored {
		m.stopped = true
		m.stats.Incomplete = true
		return false
	}
	if !r.Fails {
		return false
	}
	if choice.Compare(r.Seq, m.best) >= 0 {
		return false
	}
	m.best = r.Seq
	m.stats.Adopted++
	return true
}

// deleteSpans drops list elements (decrementing the governing length draw)
// and raw draw chunks, largest first.
func (m *minimizer) deleteSpans() bool {
	improved := false

	// Structure-aware: remove one list element per candidate.
	for {
		adopted := false
		for _, list := range spansOfKind(m.best, choice.SpanList) {
			if m.best.Draw(list.Start) == 0 {
				continue // already at the minimum length for this site
			}
			for _, el := range elementsWithin(m.best, list) {
				draws := m.best.Draws()
				candidate := make([]uint64, 0, len(draws)-(el.End-el.Start))
				candidate = append(candidate, draws[:el.Start]...)
				candidate = append(candidate, draws[el.End:]...)
				candidate[list.Start]--
				if m.tryAdopt(candidate) {
					adopted = true
					improved = true
					break
				}
				if m.stopped {
					return improved
				}
			}
			if adopted {
				break // spans are stale after adoption; rescan
			}
		}
		if !adopted {
			break
		}
	}

	// Raw chunks: contiguous deletions, larger chunks first.
	for _, k := range []int{8, 4, 2, 1} {
		for start := m.best.Len() - k; start >= 0; start-- {
			draws := m.best.Draws()
			if start+k > len(draws) {
				continue
			}
			candidate := append(draws[:start:start], draws[start+k:]...)
			if m.tryAdopt(candidate) {
				improved = true
				start = m.best.Len() - k + 1 // rescan at the new length
			}
			if m.stopped {
				return improved
			}
		}
	}
	return improved
}

// lowerDiscriminants collapses union choices toward earlier alternatives.
func (m *minimizer) lowerDiscriminants() bool {
	improved := false
	for {
		adopted := false
		for _, u := range spansOfKind(m.best, choice.SpanUnion) {
			v := m.best.Draw(u.Start)
			if v == 0 {
				continue
			}
			for _, repl := range []uint64{0, v - 1} {
				draws := m.best.Draws()
				draws[u.Start] = repl
				if m.tryAdopt(draws) {
					adopted = true
					improved = true
					break
				}
				if m.stopped {
					return improved
				}
				if repl == v-1 {
					break
				}
			}
			if adopted {
				break
			}
		}
		if !adopted {
			break
		}
	}
	return improved
}

// minimizeDraws lowers individual draws: zero first, then binary search
// for the smallest value that still fails. Earlier draws weigh more in the
// simplicity order, so the scan runs left to right.
func (m *minimizer) minimizeDraws() bool {
	improved := false
	for i := 0; i < m.best.Len(); i++ {
		v := m.best.Draw(i)
		if v == 0 {
			continue
		}

		if m.tryLower(i, 0) {
			improved = true
			continue
		}
		if m.stopped {
			return improved
		}
		if v > 1 && m.tryLower(i, v-1) {
			improved = true
			v = m.best.Draw(i)
		}
		if m.stopped {
			return improved
		}

		// Zero passes, v fails: binary-search the boundary.
		lo, hi := uint64(0), m.best.Draw(i)
		for hi-lo > 1 {
			mid := lo + (hi-lo)/2
			if m.tryLower(i, mid) {
				improved = true
				hi = mid
			} else {
				if m.stopped {
					return improved
				}
				lo = mid
			}
		}
	}
	return improved
}

// tryLower replaces draw i with v; i must stay in range of the current
// best (adoption can shorten the sequence).
func (m *minimizer) tryLower(i int, v uint64) bool {
	if i >= m.best.Len() || m.best.Draw(i) <= v {
		return false
	}
	draws := m.best.Draws()
	draws[i] = v
	return m.tryAdopt(draws)
}

// sortElements orders equal-width list element blocks ascending, which
// canonicalizes order-insensitive failures.
func (m *minimizer) sortElements() bool {
	improved := false
	for _, list := range spansOfKind(m.best, choice.SpanList) {
		els := elementsWithin(m.best, list)
		if len(els) < 2 {
			continue
		}
		width := els[0].End - els[0].Start
		uniform := true
		for _, el := range els {
			if el.End-el.Start != width {
				uniform = false
				break
			}
		}
		if !uniform || width == 0 {
			continue
		}

		draws := m.best.Draws()
		blocks := make([][]uint64, len(els))
		for j, el := range els {
			blocks[j] = append([]uint64(nil), draws[el.Start:el.End]...)
		}
		sorted := make([][]uint64, len(blocks))
		copy(sorted, blocks)
		sort.Slice(sorted, func(a, b int) bool {
			return lexLess(sorted[a], sorted[b])
		})
		changed := false
		for j := range blocks {
			if !lexEqual(blocks[j], sorted[j]) {
				changed = true
				break
			}
		}
		if !changed {
			continue
		}
		for j, el := range els {
			copy(draws[el.Start:el.End], sorted[j])
		}
		if m.tryAdopt(draws) {
			improved = true
		}
		if m.stopped {
			return improved
		}
	}
	return improved
}

// spansOfKind returns spans of the given kind, sorted by start position.
func spansOfKind(seq choice.Sequence, kind choice.SpanKind) []choice.Span {
	var out []choice.Span
	for _, sp := range seq.Spans() {
		if sp.Kind == kind && sp.Start < seq.Len() {
			out = append(out, sp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Start < out[b].Start })
	return out
}

// elementsWithin returns element spans directly governed by the list span:
// contained in it and not contained in a smaller nested list.
func elementsWithin(seq choice.Sequence, list choice.Span) []choice.Span {
	var nested []choice.Span
	for _, sp := range seq.Spans() {
		if sp.Kind == choice.SpanList && sp != list &&
			sp.Start >= list.Start && sp.End <= list.End {
			nested = append(nested, sp)
		}
	}
	var out []choice.Span
	for _, sp := range seq.Spans() {
		if sp.Kind != choice.SpanElement || sp.Start <= list.Start || sp.End > list.End {
			continue
		}
		inNested := false
		for _, n := range nested {
			if sp.Start >= n.Start && sp.End <= n.End {
				inNested = true
				break
			}
		}
		if !inNested {
			out = append(out, sp)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Start < out[b].Start })
	return out
}

func lexLess(a, b []uint64) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func lexEqual(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
