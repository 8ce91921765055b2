package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// QueryCmd prints the rows of an ad-hoc query as JSON.
func QueryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "query <statement> [args...]",
		Short: "Run an ad-hoc query and print the rows as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withBackend(ctx, a.cfg, func(b backend) error {
				rows, err := b.Query(ctx, args[0], statementArgs(args[1:])...)
				if err != nil {
					return fmt.Errorf("failed to run query: %w", err)
				}
				return writeJSON(cmd.OutOrStdout(), rows)
			})
		},
	}
}
