package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/db"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/observability"
)

func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.StoreDriver != config.DriverPostgres {
				return fmt.Errorf("migrate needs STORE_DRIVER=postgres, got %q", cfg.StoreDriver)
			}
			logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			return db.RunMigrations(cfg.DatabaseDSN, logger)
		},
	}
}
