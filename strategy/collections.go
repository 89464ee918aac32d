package strategy

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/roach88/falsify/choice"
)

// TupleOf draws each component strategy in order and yields a []any of the
// component values. Component draws share one block span.
func TupleOf(ss ...*Strategy) *Strategy {
	label := "tuple("
	for i, s := range ss {
		if i > 0 {
			label += ","
		}
		label += s.label
	}
	label += ")"
	return &Strategy{
		label: label,
		draw: func(d *Draw) (any, error) {
			d.src.BeginSpan(choice.SpanBlock, label)
			defer d.src.EndSpan()
			out := make([]any, len(ss))
			for i, s := range ss {
				v, err := d.Draw(s)
				if err != nil {
					return nil, err
				}
				out[i] = v
			}
			return out, nil
		},
		encode: func(v any) ([]uint64, bool) {
			vals, ok := v.([]any)
			if !ok || len(vals) != len(ss) {
				return nil, false
			}
			var draws []uint64
			for i, s := range ss {
				enc, ok := s.Encode(vals[i])
				if !ok {
					return nil, false
				}
				draws = append(draws, enc...)
			}
			if draws == nil {
				draws = []uint64{}
			}
			return draws, true
		},
	}
}

// FixedMap draws one value per key and yields a map[string]any. Keys are
// drawn in sorted order so the draw layout is deterministic.
func FixedMap(fields map[string]*Strategy) *Strategy {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	label := "fixed_map("
	for i, k := range keys {
		if i > 0 {
			label += ","
		}
		label += k + ":" + fields[k].label
	}
	label += ")"
	return &Strategy{
		label: label,
		draw: func(d *Draw) (any, error) {
			d.src.BeginSpan(choice.SpanBlock, label)
			defer d.src.EndSpan()
			out := make(map[string]any, len(keys))
			for _, k := range keys {
				v, err := d.Draw(fields[k])
				if err != nil {
					return nil, err
				}
				out[k] = v
			}
			return out, nil
		},
	}
}

// ListOption configures a Lists strategy.
type ListOption func(*listConfig)

type listConfig struct {
	uniqueBy func(any) any
}

// UniqueBy enforces element uniqueness under the given key function.
// Duplicate elements are redrawn, bounded by the rejection budget;
// exhausting the budget makes the case Invalid.
func UniqueBy(key func(any) any) ListOption {
	return func(c *listConfig) { c.uniqueBy = key }
}

// Lists draws a length-governing choice in [minSize, maxSize], then that
// many elements in order. The whole block is recorded as a list span with
// one element span per element, which is what lets the shrinker delete or
// reorder elements at strategy-declared boundaries.
func Lists(elem *Strategy, minSize, maxSize int, opts ...ListOption) *Strategy {
	if minSize < 0 || minSize > maxSize {
		panic(fmt.Sprintf("strategy: Lists size bounds invalid [%d,%d]", minSize, maxSize))
	}
	var cfg listConfig
	for _, o := range opts {
		o(&cfg)
	}
	label := fmt.Sprintf("lists(%s,%d,%d", elem.label, minSize, maxSize)
	if cfg.uniqueBy != nil {
		label += ",unique"
	}
	label += ")"
	return &Strategy{
		label: label,
		draw: func(d *Draw) (any, error) {
			d.src.BeginSpan(choice.SpanList, label)
			defer d.src.EndSpan()
			n, err := d.src.DrawUint64n(uint64(maxSize-minSize) + 1)
			if err != nil {
				return nil, err
			}
			length := minSize + int(n)
			out := make([]any, 0, length)
			seen := make(map[any]struct{}, length)
			for i := 0; i < length; i++ {
				v, err := drawListElement(d, elem, cfg.uniqueBy, seen)
				if err != nil {
					return nil, err
				}
				out = append(out, v)
			}
			return out, nil
		},
		encode: func(v any) ([]uint64, bool) {
			vals, ok := v.([]any)
			if !ok || len(vals) < minSize || len(vals) > maxSize {
				return nil, false
			}
			draws := []uint64{uint64(len(vals) - minSize)}
			for _, el := range vals {
				enc, ok := elem.Encode(el)
				if !ok {
					return nil, false
				}
				draws = append(draws, enc...)
			}
			return draws, true
		},
	}
}

// drawListElement draws one element inside its own element span, redrawing
// duplicates when a uniqueness key is configured.
func drawListElement(d *Draw, elem *Strategy, uniqueBy func(any) any, seen map[any]struct{}) (any, error) {
	for attempt := 0; attempt < rejectionBudget; attempt++ {
		d.src.BeginSpan(choice.SpanElement, elem.label)
		v, err := d.Draw(elem)
		d.src.EndSpan()
		if err != nil {
			return nil, err
		}
		if uniqueBy == nil {
			return v, nil
		}
		key := uniqueBy(v)
		if _, dup := seen[key]; !dup {
			seen[key] = struct{}{}
			return v, nil
		}
	}
	return nil, fmt.Errorf("lists(%s): %d consecutive duplicate elements: %w", elem.label, rejectionBudget, ErrInvalid)
}

// deepEqual is the equality used by SampledFrom and Just encoders.
func deepEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
