package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/falsify/choice"
)

// Put stores seq as the known-failing example for identity, but only if it
// is simpler than whatever is already stored (dominance pruning keeps at
// most one, the simplest, example per identity).
//
// The compare-and-swap runs inside one transaction, making the write
// atomic per key even with concurrent test processes racing on the same
// identity.
func (d *DB) Put(ctx context.Context, identity string, seq choice.Sequence) error {
	encoded := seq.Encode()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("put example: begin: %w", err)
	}
	defer tx.Rollback()

	var existing []byte
	err = tx.QueryRowContext(ctx,
		"SELECT sequence FROM examples WHERE identity = ?", identity,
	).Scan(&existing)
	if err == nil && choice.CompareEncoded(existing, encoded) <= 0 {
		// Stored example is already at least as simple; nothing to do.
		return nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO examples (identity, sequence, draw_count)
		VALUES (?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			sequence = excluded.sequence,
			draw_count = excluded.draw_count,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
	`, identity, encoded, seq.Len())
	if err != nil {
		return fmt.Errorf("put example: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("put example: commit: %w", err)
	}
	return nil
}

// Prune removes a stored sequence that no longer reproduces a failure.
// Only deletes the row if it still holds exactly this sequence, so a
// concurrent writer's fresher example is never discarded.
func (d *DB) Prune(ctx context.Context, identity string, seq choice.Sequence) error {
	_, err := d.db.ExecContext(ctx,
		"DELETE FROM examples WHERE identity = ? AND sequence = ?",
		identity, seq.Encode(),
	)
	if err != nil {
		return fmt.Errorf("prune example: %w", err)
	}
	return nil
}

// PruneCorrupt removes the stored example for identity when its payload no
// longer decodes. Readers already skip such rows; this reclaims them.
// Reports whether a row was removed.
func (d *DB) PruneCorrupt(ctx context.Context, identity string) (bool, error) {
	var blob []byte
	err := d.db.QueryRowContext(ctx,
		"SELECT sequence FROM examples WHERE identity = ?", identity,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("prune corrupt example: %w", err)
	}
	if _, decodeErr := choice.Decode(blob); decodeErr == nil {
		return false, nil
	}

	_, err = d.db.ExecContext(ctx,
		"DELETE FROM examples WHERE identity = ? AND sequence = ?",
		identity, blob,
	)
	if err != nil {
		return false, fmt.Errorf("prune corrupt example: %w", err)
	}
	return true, nil
}

// Delete removes every stored example for the identity.
func (d *DB) Delete(ctx context.Context, identity string) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM examples WHERE identity = ?", identity)
	if err != nil {
		return fmt.Errorf("delete examples: %w", err)
	}
	return nil
}
