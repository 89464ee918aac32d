package strategy

import (
	"fmt"

	"github.com/roach88/falsify/choice"
)

// Composite builds a strategy from a user-supplied function that receives
// the draw capability and assembles a value from nested strategy draws.
//
// The label must be supplied explicitly because a function value has no
// canonical shape; it participates in test identity, so keep it stable.
//
// A panic inside the body is classified as Errored, not as a property
// failure: assertions inside strategy code are the strategy author's bug,
// not the system under test's.
func Composite(label string, fn func(d *Draw) (any, error)) *Strategy {
	return &Strategy{
		label: "composite(" + label + ")",
		draw: func(d *Draw) (any, error) {
			d.src.BeginSpan(choice.SpanBlock, label)
			defer d.src.EndSpan()
			return callComposite(label, fn, d)
		},
	}
}

func callComposite(label string, fn func(d *Draw) (any, error), d *Draw) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("composite %s: body panicked: %v", label, r)
		}
	}()
	return fn(d)
}

// Deferred wraps a strategy constructor that is resolved lazily at draw
// time, enabling self-referential strategies:
//
//	var tree *strategy.Strategy
//	tree = strategy.OneOf(
//		strategy.Just(nil),
//		strategy.Deferred("tree", func() *strategy.Strategy { return tree }),
//	)
//
// Termination is guaranteed by the draw recursion budget: a recursion that
// never bottoms out is reported as Errored.
func Deferred(label string, fn func() *Strategy) *Strategy {
	return &Strategy{
		label: "deferred(" + label + ")",
		draw: func(d *Draw) (any, error) {
			s := fn()
			if s == nil {
				return nil, fmt.Errorf("deferred %s: constructor returned nil strategy", label)
			}
			return d.Draw(s)
		},
	}
}
