package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/redmonkez12/go-account-service/internal/account"
	"github.com/redmonkez12/go-account-service/internal/cleanup"
	"github.com/redmonkez12/go-account-service/internal/config"
	"github.com/redmonkez12/go-account-service/internal/logging"
)

// NewSweepCmd creates the sweep subcommand, which runs a single cleanup
// cycle and exits. Useful from an external scheduler.
func NewSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete unverified accounts older than the retention window once",
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

			sweeper := cleanup.NewSweeper(
				cleanup.Config{Interval: cfg.Sweeper.Interval, Retention: cfg.Sweeper.Retention},
				account.NewRepository(db),
				logger,
			)
			deleted, err := sweeper.RunOnce(cmd.Context())
			if err != nil {
				return err
			}

			cmd.Printf("deleted %d unverified accounts\n", deleted)
			return nil
		},
	}
}
