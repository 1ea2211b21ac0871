package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cleared-dev/tally/internal/config"
	"github.com/cleared-dev/tally/internal/postgres"
)

func newMigrateCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the postgres store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(cmd.Context(), g.repo, g.logLevel)
			if err != nil {
				return err
			}
			defer ws.Close()

			if ws.db == nil {
				return fmt.Errorf("migrate needs store.driver %q (current %q)", config.DriverPostgres, ws.cfg.Store.Driver)
			}
			from, to, err := postgres.Migrate(ws.db, ws.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d -> %d\n", from, to)
			return nil
		},
	}
}
