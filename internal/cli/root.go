package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCommand creates the waitlist service command tree. All settings come
// from the environment; see config.Load.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "waitlist",
		Short:         "Restock waitlist service",
		Long:          "Stores back-in-stock waitlist subscriptions and emails each shopper once when inventory returns.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewMigrateCommand())
	cmd.AddCommand(NewReclaimCommand())

	return cmd
}
