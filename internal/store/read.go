package store

import (
	"context"
	"fmt"

	"github.com/roach88/falsify/choice"
)

// Get returns the stored failing sequences for the identity, simplest
// first. A missing key returns an empty slice. Rows whose payload fails to
// decode are skipped: a corrupt row must degrade to "no stored example",
// never fail the run.
func (d *DB) Get(ctx context.Context, identity string) ([]choice.Sequence, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT sequence FROM examples
		WHERE identity = ?
		ORDER BY draw_count, sequence
	`, identity)
	if err != nil {
		return nil, fmt.Errorf("get examples: %w", err)
	}
	defer rows.Close()

	var out []choice.Sequence
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			continue
		}
		seq, err := choice.Decode(blob)
		if err != nil {
			continue
		}
		out = append(out, seq)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get examples: %w", err)
	}
	return out, nil
}

// List returns all identities with stored examples, sorted.
func (d *DB) List(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT identity FROM examples ORDER BY identity")
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list identities: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	return out, nil
}
