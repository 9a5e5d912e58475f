package cli

import (
	"context"
	"fmt"

	"github.com/Arthur-Meier/AgroTech/internal/storage"
	"github.com/spf13/cobra"
)

func newSchemaCommand(deps commandDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "SQLite schema maintenance",
	}
	cmd.AddCommand(newSchemaEnsureCommand(deps))
	return cmd
}

func newSchemaEnsureCommand(deps commandDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "ensure",
		Short: "Create the animals table or add the columns it is missing",
		Example: "  agrotech --db ./herd.db schema ensure\n" +
			"  agrotech --json schema ensure",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 {
				return usageErrorf("schema ensure does not accept positional arguments")
			}
			return withSession(cmd.Context(), deps, func(ctx context.Context, s *session) error {
				backend, ok := s.repo.Backend().(*storage.SQLiteBackend)
				if !ok {
					return usageErrorf("schema ensure requires the sqlite backend, got %s", s.kind)
				}
				if err := backend.EnsureSchema(ctx); err != nil {
					return err
				}
				columns, err := backend.Columns(ctx)
				if err != nil {
					return err
				}

				if deps.globals.JSON {
					return printJSON(deps.out, map[string]any{
						"path":    backend.Path(),
						"columns": columns,
					})
				}
				if deps.globals.Quiet {
					return nil
				}
				_, err = fmt.Fprintf(deps.out, "schema ok: %s (%d columns)\n", backend.Path(), len(columns))
				return err
			})
		},
	}
}
