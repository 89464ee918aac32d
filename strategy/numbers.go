package strategy

import (
	"fmt"
	"math"
)

// Integers generates int64 values uniform in [min, max], inclusive.
// The underlying draw is the offset from min, so shrinking toward a zero
// draw shrinks the value toward min.
func Integers(min, max int64) *Strategy {
	if min > max {
		panic(fmt.Sprintf("strategy: Integers bounds inverted (%d > %d)", min, max))
	}
	label := fmt.Sprintf("integers(%d,%d)", min, max)
	fullRange := min == math.MinInt64 && max == math.MaxInt64
	span := uint64(max-min) + 1 // wraps to 0 for the full int64 range
	return &Strategy{
		label: label,
		draw: func(d *Draw) (any, error) {
			var off uint64
			var err error
			if fullRange {
				off, err = d.src.DrawUint64()
			} else {
				off, err = d.src.DrawUint64n(span)
			}
			if err != nil {
				return nil, err
			}
			return min + int64(off), nil
		},
		encode: func(v any) ([]uint64, bool) {
			n, ok := v.(int64)
			if !ok {
				if m, isInt := v.(int); isInt {
					n, ok = int64(m), true
				}
			}
			if !ok || n < min || n > max {
				return nil, false
			}
			return []uint64{uint64(n - min)}, true
		},
	}
}

// Uint64s generates full-range uint64 values.
func Uint64s() *Strategy {
	return &Strategy{
		label: "uint64s",
		draw: func(d *Draw) (any, error) {
			return d.src.DrawUint64()
		},
		encode: func(v any) ([]uint64, bool) {
			n, ok := v.(uint64)
			if !ok {
				return nil, false
			}
			return []uint64{n}, true
		},
	}
}

// Booleans generates bool values; false is the simpler value.
func Booleans() *Strategy {
	return &Strategy{
		label: "booleans",
		draw: func(d *Draw) (any, error) {
			b, err := d.src.DrawUint64n(2)
			if err != nil {
				return nil, err
			}
			return b == 1, nil
		},
		encode: func(v any) ([]uint64, bool) {
			b, ok := v.(bool)
			if !ok {
				return nil, false
			}
			if b {
				return []uint64{1}, true
			}
			return []uint64{0}, true
		},
	}
}

// FloatOptions bounds a Floats strategy. Nil bounds are unbounded.
// NaN and infinities are excluded unless explicitly allowed.
type FloatOptions struct {
	Min      *float64
	Max      *float64
	AllowNaN bool
	AllowInf bool
}

// MinValue is a convenience for the common lower-bounded case.
func MinValue(min float64) FloatOptions {
	return FloatOptions{Min: &min}
}

// Floats generates float64 values within the given bounds.
//
// The magnitude draw is the IEEE 754 bit pattern, which for non-negative
// floats orders identically to the numeric value. A smaller draw is
// therefore always a smaller (simpler) float, and per-draw minimization in
// the shrinker walks the value toward the lower bound. When the bounds
// admit negative values a leading sign draw is emitted first, with 0
// (non-negative) as the simpler side.
func Floats(opts FloatOptions) *Strategy {
	lo := math.Inf(-1)
	if opts.Min != nil {
		lo = *opts.Min
	}
	hi := math.Inf(1)
	if opts.Max != nil {
		hi = *opts.Max
	}
	if lo > hi {
		panic(fmt.Sprintf("strategy: Floats bounds inverted (%v > %v)", lo, hi))
	}
	signed := lo < 0
	label := fmt.Sprintf("floats(%v,%v,nan=%t,inf=%t)", lo, hi, opts.AllowNaN, opts.AllowInf)

	admissible := func(f float64) bool {
		if math.IsNaN(f) {
			return opts.AllowNaN
		}
		if math.IsInf(f, 0) && !opts.AllowInf {
			return false
		}
		return f >= lo && f <= hi
	}

	drawOne := func(d *Draw) (float64, error) {
		neg := false
		if signed {
			s, err := d.src.DrawUint64n(2)
			if err != nil {
				return 0, err
			}
			neg = s == 1
		}
		bits, err := d.src.DrawUint64()
		if err != nil {
			return 0, err
		}
		f := math.Float64frombits(bits &^ (1 << 63))
		if neg {
			f = -f
		}
		return f, nil
	}

	return &Strategy{
		label: label,
		draw: func(d *Draw) (any, error) {
			for i := 0; i < rejectionBudget; i++ {
				f, err := drawOne(d)
				if err != nil {
					return nil, err
				}
				if admissible(f) {
					return f, nil
				}
			}
			return nil, fmt.Errorf("%s rejected %d consecutive draws: %w", label, rejectionBudget, ErrInvalid)
		},
		encode: func(v any) ([]uint64, bool) {
			f, ok := v.(float64)
			if !ok || !admissible(f) {
				return nil, false
			}
			mag := math.Float64bits(math.Abs(f))
			if math.IsNaN(f) {
				mag = math.Float64bits(f) &^ (1 << 63)
			}
			if !signed {
				return []uint64{mag}, true
			}
			sign := uint64(0)
			if math.Signbit(f) {
				sign = 1
			}
			return []uint64{sign, mag}, true
		},
	}
}

// SampledFrom draws one of the listed values with equal probability.
// Shrinks toward the first listed value.
func SampledFrom(values []any) *Strategy {
	if len(values) == 0 {
		panic("strategy: SampledFrom requires at least one value")
	}
	label := fmt.Sprintf("sampled_from(%d)", len(values))
	return &Strategy{
		label: label,
		draw: func(d *Draw) (any, error) {
			idx, err := d.src.DrawUint64n(uint64(len(values)))
			if err != nil {
				return nil, err
			}
			return values[idx], nil
		},
		encode: func(v any) ([]uint64, bool) {
			for i, cand := range values {
				if deepEqual(cand, v) {
					return []uint64{uint64(i)}, true
				}
			}
			return nil, false
		},
	}
}

// Just always produces the given value and consumes zero draws.
func Just(value any) *Strategy {
	return &Strategy{
		label: "just",
		draw: func(d *Draw) (any, error) {
			return value, nil
		},
		encode: func(v any) ([]uint64, bool) {
			if deepEqual(v, value) {
				return []uint64{}, true
			}
			return nil, false
		},
	}
}
