package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/compozy/repokit/engine/repository"
	"github.com/compozy/repokit/engine/schema"
	"github.com/compozy/repokit/internal/accounts"
	"github.com/compozy/repokit/pkg/config"
	"github.com/compozy/repokit/pkg/logger"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// demoReport is what the demo prints once the conflicting update settled.
type demoReport struct {
	Created     *accounts.Account       `json:"created"`
	Concurrent  *accounts.Account       `json:"concurrent"`
	Resolved    *accounts.Account       `json:"resolved"`
	Diagnostics []repository.Diagnostic `json:"diagnostics"`
}

// DemoCmd creates an account and updates it from two sessions so the second
// update conflicts and is resolved with its submitted values.
func DemoCmd(a *app) *cobra.Command {
	var (
		owner   string
		migrate bool
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Show optimistic-concurrency conflict resolution on a sample account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return withBackend(ctx, a.cfg, func(b backend) error {
				if migrate {
					if err := b.Migrate(ctx); err != nil {
						return fmt.Errorf("failed to apply migrations: %w", err)
					}
				}
				return runDemo(ctx, b, &a.cfg.Repository, owner, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "ada", "Owner of the sample account")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Apply migrations before running")
	return cmd
}

func runDemo(ctx context.Context, b backend, cfg *config.RepositoryConfig, owner string, out io.Writer) error {
	log := logger.FromContext(ctx).With("component", "demo")
	report := &demoReport{Diagnostics: []repository.Diagnostic{}}
	collect := repository.DiagnosticSinkFunc(func(_ context.Context, d repository.Diagnostic) {
		report.Diagnostics = append(report.Diagnostics, d)
	})

	seed, err := accountRepository(b, cfg)
	if err != nil {
		return err
	}
	note := "opened by demo"
	created, err := seed.Create(ctx, &accounts.Account{
		Owner:   owner,
		Email:   owner + "@example.com",
		Balance: decimal.NewFromInt(100),
		Note:    &note,
	})
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	report.Created = accounts.Schema.Clone(created)
	byID := schema.Eq[accounts.Account]("id", created.ID)

	mine, err := accountRepository(b, cfg, repository.WithDiagnosticSink(collect))
	if err != nil {
		return err
	}
	stale, err := mustRead(ctx, mine, byID)
	if err != nil {
		return err
	}

	other, err := accountRepository(b, cfg)
	if err != nil {
		return err
	}
	fresh, err := mustRead(ctx, other, byID)
	if err != nil {
		return err
	}
	fresh.Email = "treasury@example.com"
	fresh.Note = nil
	concurrent, err := other.Update(ctx, fresh)
	if err != nil {
		return fmt.Errorf("failed to apply concurrent update: %w", err)
	}
	report.Concurrent = accounts.Schema.Clone(concurrent)
	log.Info("Concurrent update committed", "version", concurrent.Version)

	stale.Balance = stale.Balance.Add(decimal.NewFromInt(50))
	resolved, err := mine.Update(ctx, stale)
	if err != nil {
		return fmt.Errorf("failed to apply stale update: %w", err)
	}
	report.Resolved = resolved
	log.Info("Stale update resolved", "version", resolved.Version, "fields", len(report.Diagnostics))
	return writeJSON(out, report)
}

func mustRead(
	ctx context.Context,
	repo *repository.Repository[accounts.Account],
	pred schema.Predicate[accounts.Account],
) (*accounts.Account, error) {
	a, found, err := repo.Read(ctx, pred)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("account not found")
	}
	return a, nil
}
