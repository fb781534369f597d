package main

import (
	"fmt"

	"github.com/2beens/fitplan/internal/db"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, closeLogs, err := opts.loadConfig(cmd.Context(), "fitplan-migrate")
			if err != nil {
				return err
			}
			defer closeLogs()

			version, err := db.Migrate(dbParams(cfg).ConnString())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "database at migration version %d\n", version)
			return err
		},
	}
}
