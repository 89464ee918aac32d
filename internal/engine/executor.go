package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/falsify/choice"
	"github.com/roach88/falsify/strategy"
)

// Outcome classifies one test-case execution.
type Outcome int

const (
	// OutcomeValidPass - the body ran on a valid input and passed.
	OutcomeValidPass Outcome = iota + 1

	// OutcomeValidFail - the body ran on a valid input and failed. This is
	// the outcome the whole engine exists to find.
	OutcomeValidFail

	// OutcomeInvalid - a filter or assumption rejected the input; the case
	// counts against the rejection budget, not against the property.
	OutcomeInvalid

	// OutcomeOverrun - a replayed sequence ran out of draws before the
	// strategies finished. Only possible during replay.
	OutcomeOverrun

	// OutcomeErrored - strategy construction or composite internals
	// raised an error unrelated to the property. Fatal.
	OutcomeErrored

	// OutcomeTimedOut - the case exceeded the per-example deadline. A
	// slow input is a bug; it shrinks like a failure.
	OutcomeTimedOut
)

// String returns the lowercase outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeValidPass:
		return "valid-pass"
	case OutcomeValidFail:
		return "valid-fail"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeOverrun:
		return "overrun"
	case OutcomeErrored:
		return "errored"
	case OutcomeTimedOut:
		return "timed-out"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// failing reports whether the outcome counts as a failure for shrinking.
func (o Outcome) failing() bool {
	return o == OutcomeValidFail || o == OutcomeTimedOut
}

// Case is the result of running one choice sequence through the
// strategies and the test body.
type Case struct {
	Index   int64
	Seq     choice.Sequence
	Values  []any
	Outcome Outcome
	Err     error
	Notes   []string
	Targets map[string]float64
	Elapsed time.Duration
}

// Recorder is the capability object threaded through the test body. It
// carries observations (targets, notes) out of the body and lets the body
// draw additional data mid-test; every such draw is appended to the same
// choice sequence, so shrinking remains well-defined.
//
// A Recorder is bound to one case execution and is not safe for
// concurrent use.
type Recorder struct {
	draw    *strategy.Draw
	notes   []string
	targets map[string]float64
}

// Note records a diagnostic message attached to this case. Notes from the
// minimal failing case surface in the final report.
func (r *Recorder) Note(format string, args ...any) {
	r.notes = append(r.notes, fmt.Sprintf(format, args...))
}

// Target registers a scalar observation under the given label. The TARGET
// phase hill-climbs toward higher scores, seeking rare failures. The
// highest score per label wins within one case.
func (r *Recorder) Target(score float64, label string) {
	if r.targets == nil {
		r.targets = make(map[string]float64)
	}
	if cur, ok := r.targets[label]; !ok || score > cur {
		r.targets[label] = score
	}
}

// Draw reconstructs a value from the strategy using the case's sequence.
func (r *Recorder) Draw(s *strategy.Strategy) (any, error) {
	v, err := r.draw.Draw(s)
	if err != nil {
		return nil, wrapDrawError(err)
	}
	return v, nil
}

// Assume aborts the case as Invalid when cond is false. Use it for
// preconditions the strategies cannot express directly.
func (r *Recorder) Assume(cond bool) {
	if !cond {
		panic(assumptionViolated{})
	}
}

type assumptionViolated struct{}

// drawError marks an error that came out of strategy machinery rather
// than the property itself, so body classification stays accurate.
type drawError struct {
	err error
}

func (e *drawError) Error() string { return e.err.Error() }
func (e *drawError) Unwrap() error { return e.err }

func wrapDrawError(err error) error {
	if errors.Is(err, strategy.ErrInvalid) || errors.Is(err, choice.ErrOverrun) {
		return err
	}
	return &drawError{err: err}
}

// Body is the engine-level test body: values drawn from the declared
// strategies plus the recorder capability. A nil return passes; an error
// return (or a panic) falsifies the property.
type Body func(rec *Recorder, values []any) error

// Executor runs individual test cases: replay a sequence through the
// strategies, invoke the body, classify the outcome.
type Executor struct {
	strategies []*strategy.Strategy
	body       Body
	deadline   time.Duration
	clock      *Clock
}

// NewExecutor builds an executor. A zero deadline disables the
// per-example timing check.
func NewExecutor(strategies []*strategy.Strategy, body Body, deadline time.Duration, clock *Clock) *Executor {
	return &Executor{strategies: strategies, body: body, deadline: deadline, clock: clock}
}

// Replay runs one case from a fixed sequence.
func (e *Executor) Replay(seq choice.Sequence) *Case {
	return e.RunSource(choice.NewReplaySource(seq))
}

// RunSource runs one case, drawing from the given source.
func (e *Executor) RunSource(src choice.Source) *Case {
	c := &Case{Index: e.clock.Next()}
	draw := strategy.NewDraw(src)
	rec := &Recorder{draw: draw}

	values := make([]any, len(e.strategies))
	for i, s := range e.strategies {
		v, err := draw.Draw(s)
		if err != nil {
			c.Seq = src.Record()
			c.Outcome, c.Err = classifyDrawError(err)
			return c
		}
		values[i] = v
	}
	c.Values = values

	start := time.Now()
	err := e.invoke(rec, values)
	c.Elapsed = time.Since(start)

	// Record after the body: interactive draws made through the recorder
	// belong to the case's sequence.
	c.Seq = src.Record()
	c.Notes = rec.notes
	c.Targets = rec.targets
	c.Outcome, c.Err = e.classifyBody(err, c.Elapsed)
	return c
}

// RunValues runs one case on literal argument values, bypassing the
// declared strategies. Used for explicit examples. Interactive draws made
// by the body still need a source; a zero-seeded one keeps explicit
// executions deterministic across runs.
func (e *Executor) RunValues(values []any) *Case {
	c := &Case{Index: e.clock.Next(), Values: values}
	src := choice.NewRandomSource(0)
	rec := &Recorder{draw: strategy.NewDraw(src)}

	start := time.Now()
	err := e.invoke(rec, values)
	c.Elapsed = time.Since(start)

	c.Seq = src.Record()
	c.Notes = rec.notes
	c.Targets = rec.targets
	c.Outcome, c.Err = e.classifyBody(err, c.Elapsed)
	return c
}

// invoke calls the body, converting panics into classified errors.
func (e *Executor) invoke(rec *Recorder, values []any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(assumptionViolated); ok {
				err = fmt.Errorf("assumption violated: %w", strategy.ErrInvalid)
				return
			}
			err = fmt.Errorf("property panicked: %v", r)
		}
	}()
	return e.body(rec, values)
}

// classifyDrawError maps a strategy-entry error to an outcome.
func classifyDrawError(err error) (Outcome, error) {
	switch {
	case errors.Is(err, strategy.ErrInvalid):
		return OutcomeInvalid, err
	case errors.Is(err, choice.ErrOverrun):
		return OutcomeOverrun, err
	default:
		return OutcomeErrored, err
	}
}

// classifyBody maps the body's return to an outcome, folding in the
// cooperative deadline check.
func (e *Executor) classifyBody(err error, elapsed time.Duration) (Outcome, error) {
	if err != nil {
		var de *drawError
		switch {
		case errors.Is(err, strategy.ErrInvalid):
			return OutcomeInvalid, err
		case errors.Is(err, choice.ErrOverrun):
			return OutcomeOverrun, err
		case errors.As(err, &de):
			return OutcomeErrored, err
		default:
			return OutcomeValidFail, err
		}
	}
	if e.deadline > 0 && elapsed > e.deadline {
		return OutcomeTimedOut, fmt.Errorf("case exceeded deadline (%v > %v)", elapsed, e.deadline)
	}
	return OutcomeValidPass, nil
}
