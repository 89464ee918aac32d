// Package engine orchestrates property-test runs.
//
// The engine drives one test through a fixed sequence of phases:
//
//	EXPLICIT -> REUSE -> GENERATE -> TARGET -> SHRINK -> EXPLAIN -> DONE
//
// Each phase produces choice sequences; the strategies replay each
// sequence into concrete values; the test body executes; the outcome is
// classified. The first confirmed failure short-circuits the remaining
// search phases and hands the failing sequence to the shrinker.
//
// ARCHITECTURE:
//
// Single-Threaded Execution:
// One test's cases run strictly sequentially: one sequence drawn, one body
// invocation, one classification, before the next begins. This is what
// guarantees the shrinker's "replay same sequence => same result"
// invariant. There is no concurrency inside a run; the only shared
// resource across parallel test processes is the example database, which
// is guarded by per-key atomic writes.
//
// Deterministic Generation:
// All randomness flows from one seeded PCG stream. With derandomize set
// (or any fixed seed), two full runs over the same test and strategies
// produce an identical ordered list of generated values.
//
// Determinism Enforcement:
// Before shrinking, the first failing sequence is replayed once. If the
// replay's outcome differs from the original, the run aborts as Flaky: a
// non-deterministic test cannot be shrunk reliably, and silently reporting
// a unminimized example would be worse than saying so.
//
// Cancellation:
// Context cancellation is honored at phase boundaries and between cases.
// An aborted run still reports the best failure found so far, never a
// partially-constructed one.
package engine
