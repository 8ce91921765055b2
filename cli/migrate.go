package cli

import (
	"fmt"

	"github.com/compozy/repokit/pkg/logger"
	"github.com/spf13/cobra"
)

// MigrateCmd applies the accounts migrations for the configured driver.
func MigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the sample accounts schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withBackend(ctx, a.cfg, func(b backend) error {
				if err := b.Migrate(ctx); err != nil {
					return fmt.Errorf("failed to apply migrations: %w", err)
				}
				logger.FromContext(ctx).Info("Migrations applied", "driver", a.cfg.Database.Driver)
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return err
			})
		},
	}
}
