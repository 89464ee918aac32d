// Package falsify is a property-based testing engine.
//
// Callers describe the shape of test input with composable strategies,
// falsify drives the test body with many generated inputs, and on failure
// it searches for the simplest input reproducing the failure. Minimal
// failing inputs are persisted in an example database keyed by stable test
// identity, so future runs replay known failures before spending budget on
// fresh search.
//
// A minimal use:
//
//	report, err := falsify.Run(ctx, falsify.Test{
//		Name: "addition is monotone",
//		Strategies: []*strategy.Strategy{
//			strategy.Integers(0, 1000),
//		},
//		Body: func(t *falsify.T, args []any) error {
//			x := args[0].(int64)
//			if x+1 <= x {
//				return fmt.Errorf("x+1 not greater than x for %d", x)
//			}
//			return nil
//		},
//	}, falsify.DefaultSettings())
//
// The report carries the outcome, the minimal falsifying arguments when
// the property failed, and run statistics. Fatal engine conditions
// (Unsatisfiable strategies, Flaky tests, strategy errors) are returned as
// errors, distinct from a falsified property.
package falsify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/falsify/internal/engine"
	"github.com/roach88/falsify/internal/store"
	"github.com/roach88/falsify/strategy"
)

// Property is a test body. It receives the capability object t and the
// values drawn from the test's strategies, in declaration order. Nil
// means the property held for these arguments; an error (or a panic)
// falsifies it.
type Property func(t *T, args []any) error

// Test binds a named property to its input strategies.
type Test struct {
	// Name identifies the test. Together with the strategies' shape it
	// forms the stable identity that keys the example database.
	Name string

	// Strategies describe the arguments, in order.
	Strategies []*strategy.Strategy

	// Body is the property under test.
	Body Property

	// Examples are literal argument sets always run first, in declaration
	// order, regardless of the random seed.
	Examples [][]any
}

// T is the capability object threaded through the test body.
type T struct {
	rec *engine.Recorder
}

// Note records a diagnostic message attached to the current case. Notes
// from the minimal failing case appear in the report.
func (t *T) Note(format string, args ...any) { t.rec.Note(format, args...) }

// Target registers a scalar observation guiding the targeted search phase
// toward higher scores.
func (t *T) Target(score float64, label string) { t.rec.Target(score, label) }

// Assume aborts the current case as invalid (not failing) when cond is
// false.
func (t *T) Assume(cond bool) { t.rec.Assume(cond) }

// Draw generates an additional value mid-test. The draw is appended to
// the same choice sequence as the declared arguments, so shrinking covers
// it too.
func (t *T) Draw(s *strategy.Strategy) (any, error) { return t.rec.Draw(s) }

// Run executes the test under the given settings and returns a report.
//
// A falsified property is a normal result, not an error. Errors signal
// fatal conditions: Unsatisfiable strategies, a Flaky (non-deterministic)
// test, a strategy error, or cancellation. Even then the returned report
// carries the best failure found before the abort.
func Run(ctx context.Context, test Test, settings Settings) (*Report, error) {
	settings = settings.normalized()

	var db *store.DB
	if settings.databaseEnabled() {
		opened, err := store.Open(settings.DatabasePath)
		if err != nil {
			// A broken database degrades to a run without reuse or
			// persistence; it never blocks testing.
			slog.Warn("falsify: example database unavailable", "path", settings.DatabasePath, "error", err)
		} else {
			db = opened
			defer db.Close()
		}
	}

	eng, err := engine.New(engine.Config{
		Name:       test.Name,
		Strategies: test.Strategies,
		Body: func(rec *engine.Recorder, values []any) error {
			return test.Body(&T{rec: rec}, values)
		},
		Examples:        test.Examples,
		MaxExamples:     settings.MaxExamples,
		Deadline:        settings.Deadline,
		Phases:          settings.Phases,
		Derandomize:     settings.Derandomize,
		Seed:            settings.Seed,
		MaxShrinkPasses: settings.MaxShrinkPasses,
		DB:              db,
	})
	if err != nil {
		return nil, fmt.Errorf("falsify: %w", err)
	}

	rep, runErr := eng.Run(ctx)
	return newReport(test.Name, rep), runErr
}

// Fatal-condition predicates, usable on any error returned by Run.
var (
	// IsUnsatisfiable reports that the strategies rejected too much data
	// to be usable. A bad strategy, not a bug in the code under test.
	IsUnsatisfiable = engine.IsUnsatisfiable

	// IsFlaky reports a non-deterministic outcome for an identical
	// replay. Shrinking assumes determinism, so the run aborts.
	IsFlaky = engine.IsFlaky

	// IsErrored reports an error from strategy construction or composite
	// internals, unrelated to the property.
	IsErrored = engine.IsErrored

	// IsCancelled reports the run was aborted by context cancellation.
	IsCancelled = engine.IsCancelled
)
