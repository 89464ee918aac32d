package choice

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// SpanKind classifies a structural region of a sequence.
//
// Spans are recorded by strategies while drawing and are consumed by the
// shrinker, which uses them to apply structure-aware transforms (delete a
// list element, lower a union discriminant) instead of blind byte surgery.
type SpanKind int

const (
	// SpanBlock is a generic grouping with no special shrink semantics.
	SpanBlock SpanKind = iota + 1

	// SpanList covers a length-governed block: the draw at Start is the
	// length choice, followed by the element spans.
	SpanList

	// SpanElement covers one element of an enclosing list span.
	SpanElement

	// SpanUnion covers a one-of block: the draw at Start is the
	// discriminant selecting the alternative.
	SpanUnion
)

// Span marks a half-open draw range [Start, End) recorded during one
// strategy draw. Label carries the strategy's shape label for diagnostics.
type Span struct {
	Kind  SpanKind
	Start int
	End   int
	Label string
}

// Sequence is an immutable, ordered list of primitive draws plus the span
// metadata recorded when the draws were consumed.
//
// Two sequences are equal iff their draw lists are equal; spans are derived
// data and do not participate in equality or ordering.
type Sequence struct {
	draws []uint64
	spans []Span
}

// New builds a sequence from draws and spans. Both slices are copied so the
// sequence cannot be mutated through the caller's references.
func New(draws []uint64, spans []Span) Sequence {
	d := make([]uint64, len(draws))
	copy(d, draws)
	var sp []Span
	if len(spans) > 0 {
		sp = make([]Span, len(spans))
		copy(sp, spans)
	}
	return Sequence{draws: d, spans: sp}
}

// Len returns the number of draws.
func (s Sequence) Len() int { return len(s.draws) }

// Draw returns the draw at index i.
func (s Sequence) Draw(i int) uint64 { return s.draws[i] }

// Draws returns a copy of the draw list.
func (s Sequence) Draws() []uint64 {
	d := make([]uint64, len(s.draws))
	copy(d, s.draws)
	return d
}

// Spans returns a copy of the recorded spans.
func (s Sequence) Spans() []Span {
	if len(s.spans) == 0 {
		return nil
	}
	sp := make([]Span, len(s.spans))
	copy(sp, s.spans)
	return sp
}

// Equal reports whether two sequences have identical draw lists.
func (s Sequence) Equal(o Sequence) bool {
	if len(s.draws) != len(o.draws) {
		return false
	}
	for i, d := range s.draws {
		if o.draws[i] != d {
			return false
		}
	}
	return true
}

// Compare orders sequences by simplicity: shorter first, then
// lexicographically by draw value. Returns -1 if a is simpler than b,
// 0 if equal, +1 otherwise.
//
// Earlier draws weigh more: the first differing position decides.
func Compare(a, b Sequence) int {
	if len(a.draws) != len(b.draws) {
		if len(a.draws) < len(b.draws) {
			return -1
		}
		return 1
	}
	for i, d := range a.draws {
		if d != b.draws[i] {
			if d < b.draws[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Encode serializes the draw list as fixed-width big-endian words.
//
// The encoding is canonical and order-preserving: for sequences of equal
// length, bytes.Compare of two encodings equals Compare of the sequences.
// The example database relies on this to compare stored examples without
// decoding them. Spans are not encoded; replay re-derives them.
func (s Sequence) Encode() []byte {
	buf := make([]byte, 8*len(s.draws))
	for i, d := range s.draws {
		binary.BigEndian.PutUint64(buf[i*8:], d)
	}
	return buf
}

// Decode reconstructs a sequence from its Encode output.
// Returns an error if the payload is not a whole number of draws.
func Decode(b []byte) (Sequence, error) {
	if len(b)%8 != 0 {
		return Sequence{}, fmt.Errorf("decode sequence: %d bytes is not a whole number of draws", len(b))
	}
	draws := make([]uint64, len(b)/8)
	for i := range draws {
		draws[i] = binary.BigEndian.Uint64(b[i*8:])
	}
	return Sequence{draws: draws}, nil
}

// CompareEncoded orders two encoded sequences by simplicity without
// decoding: shorter payload first, then byte-wise.
func CompareEncoded(a, b []byte) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return bytes.Compare(a, b)
}

// String renders a short human-readable form for diagnostics.
func (s Sequence) String() string {
	return fmt.Sprintf("choice.Sequence(%d draws)", len(s.draws))
}
