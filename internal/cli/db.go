package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/falsify/internal/store"
)

// NewDBCommand creates the db command group.
func NewDBCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Inspect and maintain the example database",
	}
	cmd.AddCommand(newDBListCommand(rootOpts))
	cmd.AddCommand(newDBShowCommand(rootOpts))
	cmd.AddCommand(newDBPruneCommand(rootOpts))
	cmd.AddCommand(newDBRemoveCommand(rootOpts))
	return cmd
}

// openDB opens the configured database, failing with a command error if
// the file does not exist (inspection should not create databases).
func openDB(opts *RootOptions) (*store.DB, error) {
	if _, err := os.Stat(opts.Database); err != nil {
		return nil, fmt.Errorf("example database not found at %s", opts.Database)
	}
	db, err := store.Open(opts.Database)
	if err != nil {
		return nil, fmt.Errorf("open example database: %w", err)
	}
	return db, nil
}

// identityEntry is the JSON shape for one stored example.
type identityEntry struct {
	Identity  string `json:"identity"`
	DrawCount int    `json:"draw_count,omitempty"`
}

func newDBListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List test identities with stored failing examples",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(rootOpts)
			if err != nil {
				return err
			}
			defer db.Close()

			ids, err := db.List(cmd.Context())
			if err != nil {
				return err
			}

			if rootOpts.Format == "json" {
				entries := make([]identityEntry, len(ids))
				for i, id := range ids {
					entries[i] = identityEntry{Identity: id}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(entries)
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			if rootOpts.Verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d identities\n", len(ids))
			}
			return nil
		},
	}
}

func newDBShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <identity>",
		Short: "Show the stored minimal failing sequence for an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(rootOpts)
			if err != nil {
				return err
			}
			defer db.Close()

			seqs, err := db.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(seqs) == 0 {
				return fmt.Errorf("no stored example for identity %s", args[0])
			}

			if rootOpts.Format == "json" {
				type seqJSON struct {
					Identity string   `json:"identity"`
					Draws    []uint64 `json:"draws"`
				}
				out := make([]seqJSON, len(seqs))
				for i, s := range seqs {
					out[i] = seqJSON{Identity: args[0], Draws: s.Draws()}
				}
				return json.NewEncoder(cmd.OutOrStdout()).Encode(out)
			}
			for _, s := range seqs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d draws %v\n", args[0], s.Len(), s.Draws())
			}
			return nil
		},
	}
}

func newDBPruneCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "prune <identity>",
		Short: "Remove a stored example whose payload no longer decodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(rootOpts)
			if err != nil {
				return err
			}
			defer db.Close()

			removed, err := db.PruneCorrupt(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintf(cmd.OutOrStdout(), "pruned corrupt example for %s\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "nothing to prune for %s\n", args[0])
			}
			return nil
		},
	}
}

func newDBRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <identity>",
		Short: "Remove the stored examples for an identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(rootOpts)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := db.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			if rootOpts.Verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "removed examples for %s\n", args[0])
			}
			return nil
		},
	}
}
