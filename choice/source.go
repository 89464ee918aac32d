package choice

import (
	"errors"
	"math/rand/v2"
)

// ErrOverrun is returned when a replayed sequence runs out of draws before
// the strategy finished reconstructing its value. The engine classifies the
// test case as Overrun; it is never a test failure.
var ErrOverrun = errors.New("choice: sequence exhausted before strategy finished drawing")

// Source provides primitive draws to strategies and records everything it
// hands out, so the exact sequence that produced a value can be captured.
//
// A Source is owned by one test-case execution and is not safe for
// concurrent use. Strategies must never observe more draws than they
// request; a Source never draws ahead.
type Source interface {
	// DrawUint64 draws a full-range 64-bit value.
	DrawUint64() (uint64, error)

	// DrawUint64n draws a value uniform in [0, n). n must be > 0.
	DrawUint64n(n uint64) (uint64, error)

	// BeginSpan opens a structural span; EndSpan closes the most recently
	// opened span. Spans may nest but not otherwise overlap.
	BeginSpan(kind SpanKind, label string)
	EndSpan()

	// Consumed reports how many draws have been handed out so far.
	Consumed() int

	// Record captures the draws and spans consumed so far as an immutable
	// sequence. Unclosed spans are closed at the current position.
	Record() Sequence
}

type spanFrame struct {
	kind  SpanKind
	label string
	start int
}

// recorder holds the draw/span bookkeeping shared by both sources.
type recorder struct {
	draws []uint64
	spans []Span
	open  []spanFrame
}

func (r *recorder) record(v uint64) {
	r.draws = append(r.draws, v)
}

func (r *recorder) beginSpan(kind SpanKind, label string) {
	r.open = append(r.open, spanFrame{kind: kind, label: label, start: len(r.draws)})
}

func (r *recorder) endSpan() {
	if len(r.open) == 0 {
		return
	}
	f := r.open[len(r.open)-1]
	r.open = r.open[:len(r.open)-1]
	r.spans = append(r.spans, Span{Kind: f.kind, Start: f.start, End: len(r.draws), Label: f.label})
}

func (r *recorder) snapshot() Sequence {
	spans := make([]Span, 0, len(r.spans)+len(r.open))
	spans = append(spans, r.spans...)
	// Close dangling spans at the current position so a partial execution
	// (Overrun, Errored) still yields well-formed metadata.
	for i := len(r.open) - 1; i >= 0; i-- {
		f := r.open[i]
		spans = append(spans, Span{Kind: f.kind, Start: f.start, End: len(r.draws), Label: f.label})
	}
	return New(r.draws, spans)
}

// RandomSource draws fresh values from a seeded PCG generator and records
// them. Growing the sequence on demand means generation can never overrun.
//
// The PCG source from math/rand/v2 is deterministic for a fixed seed, which
// is what makes derandomized runs byte-for-byte reproducible.
type RandomSource struct {
	rng *rand.Rand
	rec recorder
}

// NewRandomSource creates a source seeded with the given value.
func NewRandomSource(seed uint64) *RandomSource {
	return &RandomSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// DrawUint64 implements Source.
func (s *RandomSource) DrawUint64() (uint64, error) {
	v := s.rng.Uint64()
	s.rec.record(v)
	return v, nil
}

// DrawUint64n implements Source.
func (s *RandomSource) DrawUint64n(n uint64) (uint64, error) {
	if n == 0 {
		return 0, errors.New("choice: DrawUint64n requires n > 0")
	}
	v := s.rng.Uint64N(n)
	s.rec.record(v)
	return v, nil
}

// BeginSpan implements Source.
func (s *RandomSource) BeginSpan(kind SpanKind, label string) { s.rec.beginSpan(kind, label) }

// EndSpan implements Source.
func (s *RandomSource) EndSpan() { s.rec.endSpan() }

// Consumed implements Source.
func (s *RandomSource) Consumed() int { return len(s.rec.draws) }

// Record implements Source.
func (s *RandomSource) Record() Sequence { return s.rec.snapshot() }

// ReplaySource replays a fixed sequence. Drawing past the end returns
// ErrOverrun.
//
// Bounded draws are normalized modulo the bound: a recorded sequence
// replays verbatim (its draws already respect the bound), while an edited
// candidate from the shrinker stays interpretable even when an edit pushed
// a draw outside its site's bound. The normalized value is what gets
// recorded, so captured sequences are always canonical.
type ReplaySource struct {
	seq Sequence
	pos int
	rec recorder
}

// NewReplaySource creates a source replaying the given sequence.
func NewReplaySource(seq Sequence) *ReplaySource {
	return &ReplaySource{seq: seq}
}

// DrawUint64 implements Source.
func (s *ReplaySource) DrawUint64() (uint64, error) {
	if s.pos >= s.seq.Len() {
		return 0, ErrOverrun
	}
	v := s.seq.Draw(s.pos)
	s.pos++
	s.rec.record(v)
	return v, nil
}

// DrawUint64n implements Source.
func (s *ReplaySource) DrawUint64n(n uint64) (uint64, error) {
	if n == 0 {
		return 0, errors.New("choice: DrawUint64n requires n > 0")
	}
	if s.pos >= s.seq.Len() {
		return 0, ErrOverrun
	}
	v := s.seq.Draw(s.pos) % n
	s.pos++
	s.rec.record(v)
	return v, nil
}

// BeginSpan implements Source.
func (s *ReplaySource) BeginSpan(kind SpanKind, label string) { s.rec.beginSpan(kind, label) }

// EndSpan implements Source.
func (s *ReplaySource) EndSpan() { s.rec.endSpan() }

// Consumed implements Source.
func (s *ReplaySource) Consumed() int { return s.pos }

// Record implements Source.
//
// Only the consumed prefix is captured: trailing draws the strategy never
// asked for are dropped, which is itself a simplification the shrinker can
// bank for free.
func (s *ReplaySource) Record() Sequence { return s.rec.snapshot() }
