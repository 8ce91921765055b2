package cli

import (
	"github.com/compozy/repokit/engine/uow"
	"github.com/compozy/repokit/internal/accounts"
	"github.com/spf13/cobra"
)

// ExecCmd runs a raw statement in a serializable transaction.
func ExecCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <statement> [args...]",
		Short: "Run a raw statement and print the rows affected",
		Long: `Run a store-native statement inside a serializable transaction.
Positional arguments after the statement are bound to its placeholders
(? for sqlite, $1..$n for postgres). A failed statement is rolled back.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withBackend(ctx, a.cfg, func(b backend) error {
				coord := uow.New[accounts.Account](b.NewSession(), nil)
				n, err := coord.ExecRaw(ctx, args[0], statementArgs(args[1:])...)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), map[string]int64{"rows_affected": n})
			})
		},
	}
}
