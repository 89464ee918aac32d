// Package choice implements the replayable choice sequence that underlies
// every generated value.
//
// A choice sequence is an ordered list of primitive draws (uint64 values).
// Strategies consume draws through a Source; the same sequence replayed
// through the same strategy always reconstructs the same value. This is the
// contract the whole engine is built on:
//
//   - Generation records fresh random draws into a sequence.
//   - Replay feeds a recorded sequence back through the strategy.
//   - Shrinking edits sequences, never values, so every simplification is a
//     valid input to replay by construction.
//
// ARCHITECTURE:
//
// Single-Consumer Streams:
// A Source is owned by exactly one test-case execution. Sequences captured
// from a Source are immutable; the shrinker derives edited copies and never
// mutates a captured sequence in place.
//
// Simplicity Order:
// Sequences are totally ordered: fewer draws first, then lexicographically
// by draw value with earlier positions weighing more. The binary encoding
// preserves this order byte-wise, so the example database can compare
// stored sequences without decoding them.
package choice
