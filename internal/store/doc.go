// Package store implements the example database: durable storage of
// minimal known-failing choice sequences, keyed by stable test identity.
//
// ARCHITECTURE:
//
// SQLite with WAL mode. One row per identity holding the simplest known
// failing sequence (dominance pruning). Writes are per-key atomic: Put
// runs a compare-and-swap inside one transaction, so concurrent test
// processes can race on the same identity and the simplest sequence wins.
//
// Readers tolerate a missing database, a missing key, or a corrupt row by
// returning nothing for it; the engine then falls back to fresh
// generation. A broken database never fails a test run.
//
// The sequence BLOB uses the fixed-width big-endian encoding from the
// choice package, chosen so SQLite's byte-wise BLOB comparison equals the
// in-memory simplicity tiebreak.
package store
