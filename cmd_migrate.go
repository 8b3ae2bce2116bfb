package main

import (
	"github.com/spf13/cobra"

	"legal-analyzer/storage/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the documents and document_analyses tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateDatabase(); err != nil {
			return err
		}
		db, err := postgres.InitDB(cfg.Postgres(), log)
		if err != nil {
			return err
		}
		defer postgres.Close(db)
		if err := postgres.Migrate(cmd.Context(), db); err != nil {
			return err
		}
		log.Info("schema migrated")
		return nil
	},
}
