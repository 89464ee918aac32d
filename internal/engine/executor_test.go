package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/falsify/choice"
	"github.com/roach88/falsify/strategy"
)

func newTestExecutor(body Body, strategies ...*strategy.Strategy) *Executor {
	return NewExecutor(strategies, body, 0, NewClock())
}

func TestExecutor_ValidPass(t *testing.T) {
	exec := newTestExecutor(func(rec *Recorder, values []any) error {
		return nil
	}, strategy.Integers(0, 10))

	c := exec.Replay(choice.New([]uint64{5}, nil))
	assert.Equal(t, OutcomeValidPass, c.Outcome)
	assert.Equal(t, []any{int64(5)}, c.Values)
	assert.NoError(t, c.Err)
}

func TestExecutor_ValidFailOnError(t *testing.T) {
	boom := errors.New("property violated")
	exec := newTestExecutor(func(rec *Recorder, values []any) error {
		return boom
	}, strategy.Integers(0, 10))

	c := exec.Replay(choice.New([]uint64{5}, nil))
	assert.Equal(t, OutcomeValidFail, c.Outcome)
	assert.ErrorIs(t, c.Err, boom)
}

func TestExecutor_PanicIsValidFail(t *testing.T) {
	exec := newTestExecutor(func(rec *Recorder, values []any) error {
		panic("index out of range")
	}, strategy.Integers(0, 10))

	c := exec.Replay(choice.New([]uint64{5}, nil))
	assert.Equal(t, OutcomeValidFail, c.Outcome)
	assert.Contains(t, c.Err.Error(), "index out of range")
}

func TestExecutor_AssumeFalseIsInvalid(t *testing.T) {
	exec := newTestExecutor(func(rec *Recorder, values []any) error {
		rec.Assume(values[0].(int64) > 100)
		return errors.New("unreached")
	}, strategy.Integers(0, 10))

	c := exec.Replay(choice.New([]uint64{5}, nil))
	assert.Equal(t, OutcomeInvalid, c.Outcome)
	assert.ErrorIs(t, c.Err, strategy.ErrInvalid)
}

func TestExecutor_FilterExhaustionIsInvalid(t *testing.T) {
	never := strategy.Integers(0, 10).Filter(func(any) bool { return false })
	exec := newTestExecutor(func(rec *Recorder, values []any) error {
		return nil
	}, never)

	c := exec.RunSource(choice.NewRandomSource(1))
	assert.Equal(t, OutcomeInvalid, c.Outcome)
}

func TestExecutor_ShortSequenceIsOverrun(t *testing.T) {
	exec := newTestExecutor(func(rec *Recorder, values []any) error {
		return nil
	}, strategy.Integers(0, 10), strategy.Integers(0, 10))

	c := exec.Replay(choice.New([]uint64{5}, nil))
	assert.Equal(t, OutcomeOverrun, c.Outcome)
	assert.ErrorIs(t, c.Err, choice.ErrOverrun)
}

func TestExecutor_MapErrorIsErrored(t *testing.T) {
	broken := strategy.Integers(0, 10).Map(func(any) (any, error) {
		return nil, errors.New("conversion failed")
	})
	exec := newTestExecutor(func(rec *Recorder, values []any) error {
		return nil
	}, broken)

	c := exec.Replay(choice.New([]uint64{5}, nil))
	assert.Equal(t, OutcomeErrored, c.Outcome)
}

func TestExecutor_DeadlineExceededIsTimedOut(t *testing.T) {
	exec := NewExecutor([]*strategy.Strategy{strategy.Integers(0, 10)},
		func(rec *Recorder, values []any) error {
			time.Sleep(5 * time.Millisecond)
			return nil
		}, time.Millisecond, NewClock())

	c := exec.Replay(choice.New([]uint64{5}, nil))
	assert.Equal(t, OutcomeTimedOut, c.Outcome)
	assert.True(t, c.Outcome.failing(), "slow cases shrink like failures")
}

func TestExecutor_ZeroDeadlineNeverTimesOut(t *testing.T) {
	exec := newTestExecutor(func(rec *Recorder, values []any) error {
		time.Sleep(2 * time.Millisecond)
		return nil
	}, strategy.Integers(0, 10))

	c := exec.Replay(choice.New([]uint64{5}, nil))
	assert.Equal(t, OutcomeValidPass, c.Outcome)
}

func TestRecorder_NotesAndTargets(t *testing.T) {
	exec := newTestExecutor(func(rec *Recorder, values []any) error {
		rec.Note("saw %d", values[0])
		rec.Target(3.5, "depth")
		rec.Target(7.25, "depth")
		rec.Target(1.0, "width")
		return nil
	}, strategy.Integers(0, 10))

	c := exec.Replay(choice.New([]uint64{4}, nil))
	assert.Equal(t, []string{"saw 4"}, c.Notes)
	assert.Equal(t, map[string]float64{"depth": 7.25, "width": 1.0}, c.Targets,
		"the highest score per label wins within one case")
}

func TestRecorder_InteractiveDrawExtendsSequence(t *testing.T) {
	exec := newTestExecutor(func(rec *Recorder, values []any) error {
		extra, err := rec.Draw(strategy.Integers(0, 5))
		if err != nil {
			return err
		}
		if values[0].(int64)+extra.(int64) > 100 {
			return errors.New("sum too large")
		}
		return nil
	}, strategy.Integers(0, 10))

	c := exec.Replay(choice.New([]uint64{7, 3}, nil))
	require.Equal(t, OutcomeValidPass, c.Outcome)
	assert.Equal(t, 2, c.Seq.Len(), "the body's draw lands in the case's sequence")
}

func TestRecorder_InteractiveOverrun(t *testing.T) {
	exec := newTestExecutor(func(rec *Recorder, values []any) error {
		_, err := rec.Draw(strategy.Integers(0, 5))
		return err
	}, strategy.Integers(0, 10))

	c := exec.Replay(choice.New([]uint64{7}, nil))
	assert.Equal(t, OutcomeOverrun, c.Outcome)
}

func TestExecutor_RunValues_BypassesStrategies(t *testing.T) {
	exec := newTestExecutor(func(rec *Recorder, values []any) error {
		if values[0].(int64) == 36 {
			return errors.New("thirty-six is cursed")
		}
		return nil
	}, strategy.Integers(0, 10))

	// The literal value is outside the strategy's range; it runs anyway.
	c := exec.RunValues([]any{int64(36)})
	assert.Equal(t, OutcomeValidFail, c.Outcome)
	assert.Equal(t, []any{int64(36)}, c.Values)
}

func TestExecutor_RunValues_Deterministic(t *testing.T) {
	exec := newTestExecutor(func(rec *Recorder, values []any) error {
		v, err := rec.Draw(strategy.Integers(0, 1000))
		if err != nil {
			return err
		}
		rec.Note("drew %d", v)
		return nil
	}, strategy.Integers(0, 10))

	a := exec.RunValues([]any{int64(1)})
	b := exec.RunValues([]any{int64(1)})
	assert.Equal(t, a.Notes, b.Notes, "interactive draws during explicit runs are reproducible")
}

func TestExecutor_CaseIndexIncrements(t *testing.T) {
	exec := newTestExecutor(func(rec *Recorder, values []any) error {
		return nil
	}, strategy.Integers(0, 10))

	first := exec.Replay(choice.New([]uint64{1}, nil))
	second := exec.Replay(choice.New([]uint64{2}, nil))
	assert.Equal(t, first.Index+1, second.Index)
}

func TestOutcome_Strings(t *testing.T) {
	assert.Equal(t, "valid-pass", OutcomeValidPass.String())
	assert.Equal(t, "valid-fail", OutcomeValidFail.String())
	assert.Equal(t, "invalid", OutcomeInvalid.String())
	assert.Equal(t, "overrun", OutcomeOverrun.String())
	assert.Equal(t, "errored", OutcomeErrored.String())
	assert.Equal(t, "timed-out", OutcomeTimedOut.String())
}
