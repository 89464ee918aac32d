package falsify

import (
	"fmt"
	"io"
	"strings"

	"github.com/roach88/falsify/internal/engine"
)

// Outcome is the overall result of a run.
type Outcome string

const (
	// Passed - the property held for every valid case.
	Passed Outcome = "passed"

	// Falsified - a failing input was found; the report carries the
	// minimal reproduction.
	Falsified Outcome = "falsified"
)

// Stats summarizes what a run did.
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
}

// Report is the user-facing result of one run. When the property was
// falsified it always includes the literal minimal reproducing arguments
// and the original error, never just a stack trace from an arbitrary
// iteration.
type Report struct {
	Test     string
	Identity string
	RunID    string
	Seed     uint64

	Outcome     Outcome
	MinimalArgs []any
	Err         error

	Notes       []string
	LoadBearing []int
	Stats       Stats
}

func newReport(name string, rep *engine.Report) *Report {
	out := &Report{
		Test:        name,
		Identity:    rep.TestID,
		RunID:       rep.RunID,
		Seed:        rep.Seed,
		Outcome:     Passed,
		MinimalArgs: rep.MinimalArgs,
		Err:         rep.Err,
		Notes:       rep.Notes,
		LoadBearing: rep.LoadBearing,
		Stats: Stats{
			Cases:            rep.Stats.Cases,
			Valid:            rep.Stats.Valid,
			Invalid:          rep.Stats.Invalid,
			Overruns:         rep.Stats.Overruns,
			TimedOut:         rep.Stats.TimedOut,
			PhasesRun:        rep.Stats.PhasesRun,
			ShrinkPasses:     rep.Stats.ShrinkPasses,
			ShrinkCandidates: rep.Stats.ShrinkCandidates,
			ShrinkAdopted:    rep.Stats.ShrinkAdopted,
		},
	}
	if rep.Falsified {
		out.Outcome = Falsified
	}
	return out
}

// Render writes a deterministic text rendering of the report. Output for
// a given report is byte-stable, which is what makes it golden-testable.
func (r *Report) Render(w io.Writer) error {
	var b strings.Builder
	switch r.Outcome {
	case Falsified:
		fmt.Fprintf(&b, "! %q falsified\n", r.Test)
		b.WriteString("  minimal arguments:\n")
		for i, arg := range r.MinimalArgs {
			fmt.Fprintf(&b, "    arg[%d] = %v\n", i, arg)
		}
		if r.Err != nil {
			fmt.Fprintf(&b, "  error: %v\n", r.Err)
		}
		if len(r.LoadBearing) > 0 {
			fmt.Fprintf(&b, "  load-bearing draws: %v\n", r.LoadBearing)
		}
	default:
		fmt.Fprintf(&b, "ok %q passed\n", r.Test)
	}
	for _, note := range r.Notes {
		fmt.Fprintf(&b, "  note: %s\n", note)
	}
	fmt.Fprintf(&b, "  run %s seed=%d cases=%d valid=%d invalid=%d",
		r.RunID, r.Seed, r.Stats.Cases, r.Stats.Valid, r.Stats.Invalid)
	if r.Stats.ShrinkCandidates > 0 {
		fmt.Fprintf(&b, " shrinks=%d/%d", r.Stats.ShrinkAdopted, r.Stats.ShrinkCandidates)
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}
