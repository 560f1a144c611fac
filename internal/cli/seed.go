package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentsmith/agentos/store"
)

func newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed the agent roster from config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFrom(cmd.Context())
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			for _, ac := range cfg.Agents {
				agent := &store.Agent{
					ID:           ac.ID,
					Name:         ac.Name,
					Role:         store.AgentRole(ac.Role),
					Status:       store.AgentIdle,
					SystemPrompt: ac.SystemPrompt,
					ModelConfig: store.ModelConfig{
						Provider:    ac.Provider,
						Model:       ac.Model,
						Temperature: ac.Temperature,
					},
				}
				if err := st.UpsertAgent(agent); err != nil {
					return fmt.Errorf("seed agent %s: %w", ac.ID, err)
				}
				printf(cmd, "Seeded %s (%s)\n", ac.ID, ac.Role)
			}
			return nil
		},
	}
	return cmd
}
