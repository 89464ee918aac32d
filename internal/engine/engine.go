package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/roach88/falsify/choice"
	"github.com/roach88/falsify/internal/ident"
	"github.com/roach88/falsify/internal/shrink"
	"github.com/roach88/falsify/internal/store"
	"github.com/roach88/falsify/strategy"
)

// Phase names one stage of the run state machine. Phases always execute
// in declaration order; Settings may disable individual phases.
type Phase string

const (
	PhaseExplicit Phase = "explicit"
	PhaseReuse    Phase = "reuse"
	PhaseGenerate Phase = "generate"
	PhaseTarget   Phase = "target"
	PhaseShrink   Phase = "shrink"
	PhaseExplain  Phase = "explain"
)

// AllPhases lists every phase in execution order.
var AllPhases = []Phase{PhaseExplicit, PhaseReuse, PhaseGenerate, PhaseTarget, PhaseShrink, PhaseExplain}

// unsatisfiableFactor bounds run-level invalid accumulation: once invalid
// outcomes exceed this multiple of the example budget with almost no valid
// ones, the strategy is declared Unsatisfiable.
const unsatisfiableFactor = 10

// Config is the complete, immutable configuration for one run. The public
// API assembles it from a Test plus Settings; defaults are already applied
// by the time it reaches the engine.
type Config struct {
	Name       string
	Strategies []*strategy.Strategy
	Body       Body
	Examples   [][]any // explicit examples, declaration order

	MaxExamples     int
	Deadline        time.Duration // zero disables the per-example check
	Phases          []Phase
	Derandomize     bool
	Seed            uint64
	MaxShrinkPasses int

	DB     *store.DB // nil means the database is disabled
	Tokens RunTokenGenerator
	Logger *slog.Logger
}

// Stats counts what happened during a run.
type Stats struct {
	Cases     int
	Valid     int
	Invalid   int
	Overruns  int
	TimedOut  int
	PhasesRun []Phase

	ShrinkPasses     int
	ShrinkCandidates int
	ShrinkAdopted    int
	ShrinkIncomplete bool
}

// Report is the result of a run. It always includes the literal minimal
// reproducing arguments and the original error when the property was
// falsified, never just an arbitrary failing iteration.
type Report struct {
	TestID string
	RunID  string
	Seed   uint64

	Falsified   bool
	MinimalArgs []any
	MinimalSeq  choice.Sequence
	Err         error // the original property error for the minimal case

	Notes       []string
	LoadBearing []int // draw indices whose perturbation makes the failure vanish
	Stats       Stats
}

// Engine runs one test through the phase state machine.
type Engine struct {
	cfg    Config
	exec   *Executor
	clock  *Clock
	logger *slog.Logger
	testID string
}

// New validates the configuration and builds an engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Name == "" {
		return nil, errors.New("engine: test name is required")
	}
	if cfg.Body == nil {
		return nil, errors.New("engine: test body is required")
	}
	if len(cfg.Strategies) == 0 {
		return nil, errors.New("engine: at least one strategy is required")
	}
	if cfg.MaxExamples <= 0 {
		return nil, fmt.Errorf("engine: MaxExamples must be positive, got %d", cfg.MaxExamples)
	}
	if cfg.MaxShrinkPasses <= 0 {
		return nil, fmt.Errorf("engine: MaxShrinkPasses must be positive, got %d", cfg.MaxShrinkPasses)
	}
	if cfg.Tokens == nil {
		cfg.Tokens = UUIDv7Generator{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if len(cfg.Phases) == 0 {
		cfg.Phases = AllPhases
	}

	labels := make([]string, len(cfg.Strategies))
	for i, s := range cfg.Strategies {
		labels[i] = s.Label()
	}
	clock := NewClock()
	return &Engine{
		cfg:    cfg,
		exec:   NewExecutor(cfg.Strategies, cfg.Body, cfg.Deadline, clock),
		clock:  clock,
		logger: cfg.Logger,
		testID: ident.TestID(cfg.Name, labels),
	}, nil
}

// TestID returns the stable identity for this engine's test.
func (e *Engine) TestID() string { return e.testID }

func (e *Engine) enabled(p Phase) bool {
	for _, q := range e.cfg.Phases {
		if q == p {
			return true
		}
	}
	return false
}

// run carries the mutable state of one Run invocation.
type run struct {
	report  *Report
	rng     *rand.Rand
	failing *Case // first confirmed failure, seed for SHRINK

	// unshrinkable is set when an explicit example failed but its values
	// could not be encoded back into a sequence.
	unshrinkable *Case

	// targets tracks the best-scoring sequence per observation label.
	targets map[string]targetState
}

type targetState struct {
	score float64
	seq   choice.Sequence
}

// Run executes the phase state machine and returns the report.
//
// Fatal conditions (Unsatisfiable, Flaky, Errored, Cancelled) return a
// *RunError alongside the best report assembled so far; a falsified
// property is not an error.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	seed := e.cfg.Seed
	if !e.cfg.Derandomize && seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	r := &run{
		report: &Report{
			TestID: e.testID,
			RunID:  e.cfg.Tokens.Generate(),
			Seed:   seed,
		},
		rng:     rand.New(rand.NewPCG(seed, seed^0xda942042e4dd58b5)),
		targets: make(map[string]targetState),
	}

	for _, phase := range AllPhases {
		if !e.enabled(phase) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return e.finish(r), e.fatal(CodeCancelled, "run cancelled at phase boundary", err)
		}
		r.report.Stats.PhasesRun = append(r.report.Stats.PhasesRun, phase)
		e.logger.Debug("phase start", "test", shortID(e.testID), "phase", string(phase))

		var err error
		switch phase {
		case PhaseExplicit:
			err = e.runExplicit(ctx, r)
		case PhaseReuse:
			err = e.runReuse(ctx, r)
		case PhaseGenerate:
			err = e.runGenerate(ctx, r)
		case PhaseTarget:
			err = e.runTarget(ctx, r)
		case PhaseShrink:
			err = e.runShrink(ctx, r)
		case PhaseExplain:
			e.runExplain(r)
		}
		if err != nil {
			return e.finish(r), err
		}
	}

	return e.finish(r), nil
}

// finish folds run state into the report. An unshrinkable explicit
// failure is still reported with its literal values.
func (e *Engine) finish(r *run) *Report {
	r.report.Stats.Cases = int(e.clock.Current())
	if r.report.Falsified {
		return r.report
	}
	if r.unshrinkable != nil {
		r.report.Falsified = true
		r.report.MinimalArgs = r.unshrinkable.Values
		r.report.Err = r.unshrinkable.Err
		r.report.Notes = append(r.report.Notes,
			"explicit example could not be encoded for shrinking; reported verbatim")
	} else if r.failing != nil {
		// Aborted before SHRINK ran; report the unminimized failure
		// rather than losing it.
		r.report.Falsified = true
		r.report.MinimalArgs = r.failing.Values
		r.report.MinimalSeq = r.failing.Seq
		r.report.Err = r.failing.Err
		r.report.Notes = append(r.report.Notes, "failing example was not minimized")
	}
	return r.report
}

func (e *Engine) fatal(code RunErrorCode, msg string, err error) error {
	return &RunError{Code: code, Message: msg, TestID: e.testID, Err: err}
}

// count updates run statistics for one executed case.
func (e *Engine) count(r *run, c *Case) {
	switch c.Outcome {
	case OutcomeValidPass, OutcomeValidFail:
		r.report.Stats.Valid++
	case OutcomeInvalid:
		r.report.Stats.Invalid++
	case OutcomeOverrun:
		r.report.Stats.Overruns++
	case OutcomeTimedOut:
		r.report.Stats.TimedOut++
		r.report.Stats.Valid++
	}
}

// confirm re-runs a failing case's sequence once and checks the outcome is
// stable. Returns the replayed case to use as the shrink seed, or a Flaky
// error.
func (e *Engine) confirm(c *Case) (*Case, error) {
	again := e.exec.Replay(c.Seq)
	if again.Outcome.failing() != c.Outcome.failing() {
		return nil, e.fatal(CodeFlaky,
			fmt.Sprintf("same sequence produced %s then %s; cannot shrink a non-deterministic test",
				c.Outcome, again.Outcome), c.Err)
	}
	return again, nil
}

// runExplicit executes literal examples in declaration order. A failure
// seeds the shrinker when the values can be encoded back into draws.
func (e *Engine) runExplicit(ctx context.Context, r *run) error {
	for _, values := range e.cfg.Examples {
		if r.failing != nil || r.unshrinkable != nil {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return e.fatal(CodeCancelled, "run cancelled during explicit phase", err)
		}
		c := e.exec.RunValues(values)
		e.count(r, c)
		switch {
		case c.Outcome == OutcomeErrored:
			return e.fatal(CodeErrored, "strategy error while running explicit example", c.Err)
		case c.Outcome.failing():
			// Verify determinism on the literal values before committing.
			again := e.exec.RunValues(values)
			if again.Outcome.failing() != c.Outcome.failing() {
				return e.fatal(CodeFlaky, "explicit example produced inconsistent outcomes", c.Err)
			}
			seq, ok := e.encodeValues(values)
			if !ok {
				r.unshrinkable = c
				return nil
			}
			replayed := e.exec.Replay(seq)
			if replayed.Outcome.failing() {
				r.failing = replayed
				return nil
			}
			// Encoding round-tripped to a non-failing case: the literal
			// values and the strategies disagree. Report verbatim.
			r.unshrinkable = c
			return nil
		}
	}
	return nil
}

// encodeValues translates explicit values into a sequence via the
// strategies' encoders. All arguments must encode for the result to be a
// valid shrink seed.
func (e *Engine) encodeValues(values []any) (choice.Sequence, bool) {
	if len(values) != len(e.cfg.Strategies) {
		return choice.Sequence{}, false
	}
	var draws []uint64
	for i, s := range e.cfg.Strategies {
		enc, ok := s.Encode(values[i])
		if !ok {
			return choice.Sequence{}, false
		}
		draws = append(draws, enc...)
	}
	return choice.New(draws, nil), true
}

// runReuse replays stored failing examples for this identity. Sequences
// that no longer fail are pruned; the first that still fails becomes the
// shrink seed.
func (e *Engine) runReuse(ctx context.Context, r *run) error {
	if e.cfg.DB == nil || r.failing != nil || r.unshrinkable != nil {
		return nil
	}
	seqs, err := e.cfg.DB.Get(ctx, e.testID)
	if err != nil {
		// A broken database falls back to generation, it never fails the
		// run.
		e.logger.Warn("example database read failed; falling back to generation",
			"test", shortID(e.testID), "error", err)
		return nil
	}
	for _, seq := range seqs {
		if err := ctx.Err(); err != nil {
			return e.fatal(CodeCancelled, "run cancelled during reuse phase", err)
		}
		c := e.exec.Replay(seq)
		e.count(r, c)
		switch {
		case c.Outcome == OutcomeErrored:
			return e.fatal(CodeErrored, "strategy error while replaying stored example", c.Err)
		case c.Outcome.failing():
			confirmed, err := e.confirm(c)
			if err != nil {
				return err
			}
			r.failing = confirmed
			return nil
		default:
			if err := e.cfg.DB.Prune(ctx, e.testID, seq); err != nil {
				e.logger.Warn("failed to prune stale example", "test", shortID(e.testID), "error", err)
			}
		}
	}
	return nil
}

// runGenerate draws fresh sequences until MaxExamples valid outcomes are
// observed, a failure is found, or the invalid budget is exhausted.
func (e *Engine) runGenerate(ctx context.Context, r *run) error {
	if r.failing != nil || r.unshrinkable != nil {
		return nil
	}
	valid := 0
	invalid := 0
	for valid < e.cfg.MaxExamples {
		if err := ctx.Err(); err != nil {
			return e.fatal(CodeCancelled, "run cancelled during generate phase", err)
		}
		src := choice.NewRandomSource(r.rng.Uint64())
		c := e.exec.RunSource(src)
		e.count(r, c)
		switch c.Outcome {
		case OutcomeErrored:
			return e.fatal(CodeErrored, "strategy error during generation", c.Err)
		case OutcomeInvalid:
			invalid++
			// Abort only when valid cases are also scarce (under a tenth
			// of MaxExamples); a slow but steady strategy keeps running.
			if invalid > unsatisfiableFactor*e.cfg.MaxExamples && valid*10 < e.cfg.MaxExamples {
				return e.fatal(CodeUnsatisfiable,
					fmt.Sprintf("strategies rejected %d inputs while producing %d valid ones; the filters are too strict",
						invalid, valid), nil)
			}
		case OutcomeValidPass:
			valid++
			e.observeTargets(r, c)
		case OutcomeTimedOut, OutcomeValidFail:
			confirmed, err := e.confirm(c)
			if err != nil {
				return err
			}
			r.failing = confirmed
			return nil
		case OutcomeOverrun:
			// A fresh random source cannot overrun; count defensively.
		}
	}
	return nil
}

// observeTargets folds a passing case's observations into the per-label
// best state.
func (e *Engine) observeTargets(r *run, c *Case) {
	for label, score := range c.Targets {
		best, ok := r.targets[label]
		if !ok || score > best.score {
			r.targets[label] = targetState{score: score, seq: c.Seq}
		}
	}
}

// runTarget hill-climbs each observed label: mutate the best-known
// sequence slightly, keep the mutation only if the score improves. A
// failure found along the way becomes the shrink seed.
func (e *Engine) runTarget(ctx context.Context, r *run) error {
	if r.failing != nil || r.unshrinkable != nil || len(r.targets) == 0 {
		return nil
	}
	budget := e.cfg.MaxExamples / 4
	if budget < 10 {
		budget = 10
	}
	// Labels climb in sorted order; map iteration order must never leak
	// into the shared random stream.
	labels := make([]string, 0, len(r.targets))
	for label := range r.targets {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		best := r.targets[label]
		for i := 0; i < budget; i++ {
			if err := ctx.Err(); err != nil {
				return e.fatal(CodeCancelled, "run cancelled during target phase", err)
			}
			candidate := mutate(r.rng, best.seq)
			c := e.exec.Replay(candidate)
			e.count(r, c)
			switch {
			case c.Outcome == OutcomeErrored:
				return e.fatal(CodeErrored, "strategy error during targeted search", c.Err)
			case c.Outcome.failing():
				confirmed, err := e.confirm(c)
				if err != nil {
					return err
				}
				r.failing = confirmed
				return nil
			case c.Outcome == OutcomeValidPass:
				if score, ok := c.Targets[label]; ok && score > best.score {
					best = targetState{score: score, seq: c.Seq}
				}
			}
		}
		r.targets[label] = best
		r.report.Notes = append(r.report.Notes,
			fmt.Sprintf("highest target score: %g (label=%q)", best.score, label))
	}
	return nil
}

// mutate perturbs one draw of a sequence by a small random delta,
// saturating at the uint64 bounds.
func mutate(rng *rand.Rand, seq choice.Sequence) choice.Sequence {
	draws := seq.Draws()
	if len(draws) == 0 {
		return seq
	}
	i := rng.IntN(len(draws))
	delta := uint64(1) << rng.IntN(8)
	if rng.IntN(2) == 0 {
		if draws[i] >= delta {
			draws[i] -= delta
		} else {
			draws[i] = 0
		}
	} else {
		if draws[i] <= ^uint64(0)-delta {
			draws[i] += delta
		} else {
			draws[i] = ^uint64(0)
		}
	}
	return choice.New(draws, nil)
}

// runShrink minimizes the failing sequence and persists the result.
func (e *Engine) runShrink(ctx context.Context, r *run) error {
	if r.failing == nil {
		return nil
	}
	replay := func(seq choice.Sequence) shrink.Result {
		c := e.exec.Replay(seq)
		return shrink.Result{
			Seq:     c.Seq,
			Fails:   c.Outcome.failing(),
			Errored: c.Outcome == OutcomeErrored,
		}
	}
	minSeq, sstats, err := shrink.Minimize(replay, r.failing.Seq, e.cfg.MaxShrinkPasses)
	r.report.Stats.ShrinkPasses = sstats.Passes
	r.report.Stats.ShrinkCandidates = sstats.Candidates
	r.report.Stats.ShrinkAdopted = sstats.Adopted
	r.report.Stats.ShrinkIncomplete = sstats.Incomplete
	if err != nil {
		return e.fatal(CodeFlaky, "minimal example did not reproduce on verification replay", err)
	}

	final := e.exec.Replay(minSeq)
	if !final.Outcome.failing() {
		return e.fatal(CodeFlaky, "minimal example did not reproduce on verification replay", final.Err)
	}

	r.report.Falsified = true
	r.report.MinimalArgs = final.Values
	r.report.MinimalSeq = final.Seq
	r.report.Err = final.Err
	r.report.Notes = append(r.report.Notes, final.Notes...)
	if sstats.Incomplete {
		r.report.Notes = append(r.report.Notes,
			"shrinking ended early on a replay error; the reported example is the last confirmed minimum")
	}

	if e.cfg.DB != nil {
		if err := e.cfg.DB.Put(ctx, e.testID, final.Seq); err != nil {
			e.logger.Warn("failed to persist minimal example", "test", shortID(e.testID), "error", err)
		}
	}
	return nil
}

// runExplain perturbs each draw of the minimal sequence to find which
// draws are load-bearing for the failure. Diagnostic only: it never
// changes the reported minimal example.
func (e *Engine) runExplain(r *run) {
	if !r.report.Falsified && r.failing == nil {
		return
	}
	seq := r.report.MinimalSeq
	if seq.Len() == 0 {
		return
	}
	for i := 0; i < seq.Len(); i++ {
		draws := seq.Draws()
		draws[i]++
		c := e.exec.Replay(choice.New(draws, nil))
		e.count(r, c)
		if !c.Outcome.failing() {
			r.report.LoadBearing = append(r.report.LoadBearing, i)
		}
	}
}
