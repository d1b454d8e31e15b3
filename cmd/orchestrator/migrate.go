package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"shopchat/internal/database"
)

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the orchestrator tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup(*configPath)
			if err != nil {
				return err
			}
			if err := database.Init(cfg); err != nil {
				return err
			}
			defer database.Close()

			db := database.GetDB()
			if err := database.AutoMigrate(db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			if err := database.CreateIndexes(db); err != nil {
				return fmt.Errorf("index creation failed: %w", err)
			}
			return database.CheckTables(db)
		},
	}
}
