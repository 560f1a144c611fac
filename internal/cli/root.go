// Package cli implements the agentos command line interface. Commands
// operate directly on the store; the daemon's reconciliation cycles pick
// up anything they create.
package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentsmith/agentos/config"
	"github.com/agentsmith/agentos/internal/version"
	"github.com/agentsmith/agentos/store"
)

type cfgKey struct{}

func withConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, cfgKey{}, cfg)
}

func configFrom(ctx context.Context) *config.Config {
	cfg, ok := ctx.Value(cfgKey{}).(*config.Config)
	if !ok {
		return config.DefaultConfig()
	}
	return cfg
}

func openStore(cfg *config.Config) (store.Store, error) {
	return store.NewSQLiteStore(filepath.Join(cfg.DataDir, "agentos.db"))
}

// NewRootCmd builds the agentos command tree.
func NewRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "agentos",
		Short:        "Autonomous multi-role task orchestration",
		SilenceUsage: true,
		Version:      version.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.DefaultConfig()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			cmd.SetContext(withConfig(cmd.Context(), cfg))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to agentos config file")

	cmd.AddCommand(newTaskCmd())
	cmd.AddCommand(newAgentCmd())
	cmd.AddCommand(newActivityCmd())
	cmd.AddCommand(newSeedCmd())

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)
	cmd.SetVersionTemplate("{{.Version}}\n")

	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
