// Package cli implements the repokit command line: schema migration, raw
// statements, ad-hoc queries and a conflict-resolution demo against the
// sample accounts table.
package cli

import (
	"context"
	"fmt"

	"github.com/compozy/repokit/engine/infra/monitoring"
	"github.com/compozy/repokit/pkg/config"
	"github.com/compozy/repokit/pkg/logger"
	"github.com/compozy/repokit/pkg/version"
	"github.com/spf13/cobra"
)

// app carries what the persistent pre-run resolved for the subcommands.
type app struct {
	cfg     *config.Config
	monitor *monitoring.Service
}

func RootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "repokit",
		Short:         "Generic repository toolkit with optimistic concurrency",
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd)
		},
	}
	root.PersistentFlags().String("config", "", "Path to a YAML configuration file")
	root.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error, disabled)")
	root.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	root.PersistentFlags().Bool("log-source", false, "Include source file and line in logs")
	root.PersistentFlags().String("driver", "", "Database driver (postgres, sqlite)")
	root.PersistentFlags().String("dsn", "", "Connection string; a file path for sqlite")
	root.PersistentFlags().Bool("metrics", false, "Print collected metrics after the command")

	root.AddCommand(
		MigrateCmd(a),
		ExecCmd(a),
		QueryCmd(a),
		DemoCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(ctx, cmd)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.SetupLogger(cfg.Logging.Level, cfg.Logging.JSON, cfg.Logging.AddSource)
	ctx = logger.ContextWithLogger(ctx, logger.GetDefault())
	ctx = config.ContextWithConfig(ctx, cfg)
	a.cfg = cfg
	a.monitor = monitoring.NewServiceWithFallback(ctx, monitoring.FromConfig(&cfg.Metrics))
	a.monitor.SetAsGlobal()
	cmd.SetContext(ctx)
	return nil
}

func (a *app) teardown(cmd *cobra.Command) error {
	if a.monitor == nil {
		return nil
	}
	if a.monitor.IsInitialized() {
		if err := a.monitor.WriteSummary(cmd.ErrOrStderr()); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}
	return a.monitor.Shutdown(cmd.Context())
}

// loadConfig layers the YAML file and explicitly set flags over the defaults.
func loadConfig(ctx context.Context, cmd *cobra.Command) (*config.Config, error) {
	var sources []config.Source
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	if configFile != "" {
		sources = append(sources, config.NewYAMLProvider(configFile))
	}
	if flags := extractCLIFlags(cmd); len(flags) > 0 {
		sources = append(sources, config.NewCLIProvider(flags))
	}
	return config.NewService().Load(ctx, sources...)
}

// extractCLIFlags collects the flags the user explicitly changed.
func extractCLIFlags(cmd *cobra.Command) map[string]any {
	flags := make(map[string]any)
	getString := func(name string) (any, error) { return cmd.Flags().GetString(name) }
	getBool := func(name string) (any, error) { return cmd.Flags().GetBool(name) }
	flagDefs := []struct {
		name   string
		getter func(string) (any, error)
	}{
		{"driver", getString},
		{"dsn", getString},
		{"log-level", getString},
		{"log-json", getBool},
		{"log-source", getBool},
		{"metrics", getBool},
	}
	for _, def := range flagDefs {
		if !cmd.Flags().Changed(def.name) {
			continue
		}
		if value, err := def.getter(def.name); err == nil {
			flags[def.name] = value
		}
	}
	return flags
}
