package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"legal-analyzer/job"
	"legal-analyzer/storage/postgres"
)

var reapStaleAfter time.Duration

var reapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Mark documents stuck in processing as failed, once",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.ValidateDatabase(); err != nil {
			return err
		}
		staleAfter := cfg.Reaper.StaleAfter
		if cmd.Flags().Changed("stale-after") {
			staleAfter = reapStaleAfter
		}
		db, err := postgres.InitDB(cfg.Postgres(), log)
		if err != nil {
			return err
		}
		defer postgres.Close(db)

		reaper, err := job.NewReaper(postgres.NewRepo(db), cfg.Reaper.Schedule, staleAfter, log)
		if err != nil {
			return err
		}
		n, err := reaper.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d document(s) marked failed\n", n)
		return nil
	},
}

func init() {
	reapCmd.Flags().DurationVar(&reapStaleAfter, "stale-after", 0, "override reaper.stale_after")
}
