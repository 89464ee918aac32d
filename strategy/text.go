package strategy

import (
	"fmt"
	"strings"

	"github.com/roach88/falsify/choice"
)

// Runes draws a single rune from the given alphabet. Shrinks toward the
// first rune of the alphabet.
func Runes(alphabet string) *Strategy {
	rs := []rune(alphabet)
	if len(rs) == 0 {
		panic("strategy: Runes requires a non-empty alphabet")
	}
	label := fmt.Sprintf("runes(%q)", alphabet)
	return &Strategy{
		label: label,
		draw: func(d *Draw) (any, error) {
			idx, err := d.src.DrawUint64n(uint64(len(rs)))
			if err != nil {
				return nil, err
			}
			return rs[idx], nil
		},
		encode: func(v any) ([]uint64, bool) {
			r, ok := v.(rune)
			if !ok {
				return nil, false
			}
			for i, cand := range rs {
				if cand == r {
					return []uint64{uint64(i)}, true
				}
			}
			return nil, false
		},
	}
}

// Text draws a string of length in [minLen, maxLen] over the alphabet.
// Uses the same length-then-elements layout as Lists, so the shrinker can
// delete characters at element boundaries; the empty (or shortest) string
// over the alphabet's first rune is the simplest value.
func Text(alphabet string, minLen, maxLen int) *Strategy {
	rs := []rune(alphabet)
	if len(rs) == 0 {
		panic("strategy: Text requires a non-empty alphabet")
	}
	if minLen < 0 || minLen > maxLen {
		panic(fmt.Sprintf("strategy: Text length bounds invalid [%d,%d]", minLen, maxLen))
	}
	label := fmt.Sprintf("text(%q,%d,%d)", alphabet, minLen, maxLen)
	return &Strategy{
		label: label,
		draw: func(d *Draw) (any, error) {
			d.src.BeginSpan(choice.SpanList, label)
			defer d.src.EndSpan()
			n, err := d.src.DrawUint64n(uint64(maxLen-minLen) + 1)
			if err != nil {
				return nil, err
			}
			length := minLen + int(n)
			var b strings.Builder
			for i := 0; i < length; i++ {
				d.src.BeginSpan(choice.SpanElement, "rune")
				idx, err := d.src.DrawUint64n(uint64(len(rs)))
				d.src.EndSpan()
				if err != nil {
					return nil, err
				}
				b.WriteRune(rs[idx])
			}
			return b.String(), nil
		},
		encode: func(v any) ([]uint64, bool) {
			s, ok := v.(string)
			if !ok {
				return nil, false
			}
			chars := []rune(s)
			if len(chars) < minLen || len(chars) > maxLen {
				return nil, false
			}
			draws := []uint64{uint64(len(chars) - minLen)}
			for _, r := range chars {
				found := false
				for i, cand := range rs {
					if cand == r {
						draws = append(draws, uint64(i))
						found = true
						break
					}
				}
				if !found {
					return nil, false
				}
			}
			return draws, true
		},
	}
}
