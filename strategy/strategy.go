// Package strategy implements composable descriptions of how to generate,
// replay, and simplify test input values.
//
// A Strategy is a pure recipe: given a choice source it reconstructs a
// value, consuming only the draws it asks for. The same sequence of draws
// always reconstructs the same value, which is what lets the engine replay
// stored examples and lets the shrinker edit draws instead of values.
//
// Strategies compose: Map, Filter, FlatMap, OneOf, TupleOf, FixedMap,
// Lists, and Composite all build bigger strategies out of smaller ones.
// Every strategy carries a canonical shape label; the ordered labels of a
// test's strategies feed its stable identity in the example database.
package strategy

import (
	"errors"
	"fmt"

	"github.com/roach88/falsify/choice"
)

// ErrInvalid marks a rejected draw: a filter that never matched within its
// rejection budget, a uniqueness constraint that kept colliding, or an
// assumption violated inside the test body. The engine classifies the test
// case as Invalid, not as a failure.
var ErrInvalid = errors.New("strategy: draw rejected")

const (
	// rejectionBudget bounds retry loops at a single draw site (filters,
	// uniqueness). Exhausting it yields ErrInvalid for this one case; the
	// engine escalates to Unsatisfiable only when invalid cases dominate a
	// whole run.
	rejectionBudget = 100

	// maxRecursionDepth bounds nested Draw calls so self-referential
	// strategies built with Deferred terminate.
	maxRecursionDepth = 32
)

// Strategy describes a distribution over values of some dynamic type.
//
// Strategies are immutable and stateless across invocations; all state
// lives in the choice source threaded through Draw.
type Strategy struct {
	label  string
	draw   func(d *Draw) (any, error)
	encode func(v any) ([]uint64, bool)
}

// Label returns the canonical shape label. Equal-shaped strategies have
// equal labels; the label participates in test identity hashing.
func (s *Strategy) Label() string { return s.label }

// Encode attempts to translate a concrete value back into the draws that
// would regenerate it. It exists so a failing explicit example can seed the
// shrinker. The second return is false for strategies that cannot invert
// their generation (Map, Filter, FlatMap, Composite outputs).
func (s *Strategy) Encode(v any) ([]uint64, bool) {
	if s.encode == nil {
		return nil, false
	}
	return s.encode(v)
}

// Draw is the capability object through which all drawing happens. It is
// bound to one choice source and therefore to one test-case execution.
// Composite strategies and test bodies receive it to make nested draws;
// every draw lands in the same sequence so shrinking stays well-defined.
type Draw struct {
	src   choice.Source
	depth int
}

// NewDraw binds a draw capability to a source. One per test-case execution.
func NewDraw(src choice.Source) *Draw {
	return &Draw{src: src}
}

// Draw reconstructs a value from the given strategy, consuming draws from
// the bound source. Exceeding the recursion budget is an error (Errored,
// not Invalid): it signals a strategy definition that cannot terminate.
func (d *Draw) Draw(s *Strategy) (any, error) {
	if d.depth >= maxRecursionDepth {
		return nil, fmt.Errorf("strategy %s: recursion depth %d exceeded", s.label, maxRecursionDepth)
	}
	d.depth++
	defer func() { d.depth-- }()
	return s.draw(d)
}

// Map post-processes the drawn value with f. f must be pure and total; an
// error or panic inside f aborts the case as Errored, never Invalid.
func (s *Strategy) Map(f func(any) (any, error)) *Strategy {
	return &Strategy{
		label: s.label + ".map",
		draw: func(d *Draw) (any, error) {
			v, err := d.Draw(s)
			if err != nil {
				return nil, err
			}
			return callMapped(s.label, f, v)
		},
	}
}

func callMapped(label string, f func(any) (any, error), v any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s: map function panicked: %v", label, r)
		}
	}()
	out, err = f(v)
	if err != nil {
		err = fmt.Errorf("strategy %s: map function failed: %w", label, err)
	}
	return out, err
}

// Filter redraws until pred holds, bounded by the rejection budget.
// Rejected draws stay in the sequence; replay repeats the same rejections
// and lands on the same accepted value. Budget exhaustion yields
// ErrInvalid for this case.
func (s *Strategy) Filter(pred func(any) bool) *Strategy {
	return &Strategy{
		label: s.label + ".filter",
		draw: func(d *Draw) (any, error) {
			for i := 0; i < rejectionBudget; i++ {
				v, err := d.Draw(s)
				if err != nil {
					return nil, err
				}
				if pred(v) {
					return v, nil
				}
			}
			return nil, fmt.Errorf("filter on %s rejected %d consecutive draws: %w", s.label, rejectionBudget, ErrInvalid)
		},
	}
}

// FlatMap draws a value from s, then from the strategy f builds from it.
// Both stages' draws land in one block span, so the shrinker can act on
// either stage.
func (s *Strategy) FlatMap(f func(any) *Strategy) *Strategy {
	return &Strategy{
		label: s.label + ".flatmap",
		draw: func(d *Draw) (any, error) {
			d.src.BeginSpan(choice.SpanBlock, s.label+".flatmap")
			defer d.src.EndSpan()
			a, err := d.Draw(s)
			if err != nil {
				return nil, err
			}
			next, err := callFlatMap(s.label, f, a)
			if err != nil {
				return nil, err
			}
			return d.Draw(next)
		},
	}
}

func callFlatMap(label string, f func(any) *Strategy, a any) (next *Strategy, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s: flatmap function panicked: %v", label, r)
		}
	}()
	next = f(a)
	if next == nil {
		return nil, fmt.Errorf("strategy %s: flatmap function returned nil strategy", label)
	}
	return next, nil
}

// OneOf draws a discriminant first, then defers to the selected strategy.
// Shrinking is left-biased: lowering the discriminant collapses toward the
// first alternative.
func OneOf(ss ...*Strategy) *Strategy {
	if len(ss) == 0 {
		panic("strategy: OneOf requires at least one alternative")
	}
	label := "one_of("
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
			d.src.BeginSpan(choice.SpanUnion, label)
			defer d.src.EndSpan()
			idx, err := d.src.DrawUint64n(uint64(len(ss)))
			if err != nil {
				return nil, err
			}
			return d.Draw(ss[idx])
		},
		encode: func(v any) ([]uint64, bool) {
			for i, s := range ss {
				if enc, ok := s.Encode(v); ok {
					return append([]uint64{uint64(i)}, enc...), true
				}
			}
			return nil, false
		},
	}
}
