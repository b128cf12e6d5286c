package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"github.com/redmonkez12/go-account-service/internal/config"
	"github.com/redmonkez12/go-account-service/internal/database"
	"github.com/redmonkez12/go-account-service/internal/logging"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the accounts table and its indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger := logging.NewLogger(cfg.Server.IsDevelopment())

			db, err := initDB(cmd.Context(), cfg.Database, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize database: %w", err)
			}
			defer db.Close()

			return runMigrations(cmd.Context(), db, logger)
		},
	}
}

func runMigrations(ctx context.Context, db *bun.DB, logger *logging.Logger) error {
	if err := database.Migrate(ctx, db); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Info("database schema up to date")
	return nil
}
