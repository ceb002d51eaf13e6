package main

import (
	"fmt"

	"bounty-arbitration-service/config"
	"bounty-arbitration-service/store"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.StoreDriver == store.DriverMemory {
				fmt.Fprintln(cmd.OutOrStdout(), color.New(color.FgYellow).Sprint("memory store has no schema, nothing to do"))
				return nil
			}
			dsn := cfg.DatabaseURL
			if cfg.StoreDriver == store.DriverSQLite {
				dsn = cfg.SQLitePath
			}
			// OpenGorm migrates on open
			gs, err := store.OpenGorm(cfg.StoreDriver, dsn)
			if err != nil {
				return err
			}
			defer gs.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "%s schema up to date (%s)\n", color.New(color.FgGreen).Sprint("ok:"), cfg.StoreDriver)
			return nil
		},
	}
}
