package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/config"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/observability"
	"github.com/andreasstove999/ecommerce-system/services/waitlist-service-go/internal/restock"
)

// NewReclaimCommand reverts expired claims once, for operators who run without
// the background sweeper.
func NewReclaimCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reclaim",
		Short: "Return subscriptions stuck in notifying to pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := cfg.ValidateStore(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			logger, err := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			st, err := openStore(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer st.close()

			n, err := restock.NewSweeper(st.repo, nil, cfg.ClaimTimeout, 0, logger).Sweep(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "released %d expired claims\n", n)
			return err
		},
	}
}
