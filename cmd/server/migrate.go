package main

import (
	"errors"

	"github.com/spf13/cobra"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the customers, products and transactions tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}

			st, err := openStore(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return err
			}
			defer st.close()

			if st.sql == nil {
				return errors.New("migrate needs a sql database driver")
			}
			if err := st.sql.Migrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("schema migrated", "driver", cfg.Database.Driver)
			return nil
		},
	}
}
