package cli

import (
	"github.com/spf13/cobra"

	"github.com/agentsmith/agentos/store"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Inspect agents",
	}
	cmd.AddCommand(newAgentListCmd())
	return cmd
}

func newAgentListCmd() *cobra.Command {
	var role string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(configFrom(cmd.Context()))
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			agents, err := st.ListAgents(store.AgentFilter{Role: store.AgentRole(role)})
			if err != nil {
				return err
			}
			if len(agents) == 0 {
				printf(cmd, "No agents. Run 'agentos seed' first.\n")
				return nil
			}

			printf(cmd, "%-22s %-12s %-8s %-10s %s\n", "ID", "ROLE", "STATUS", "PROVIDER", "MODEL")
			for _, a := range agents {
				printf(cmd, "%-22s %-12s %-8s %-10s %s\n",
					a.ID, a.Role, a.Status, orDash(a.ModelConfig.Provider), orDash(a.ModelConfig.Model))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "Filter by role")
	return cmd
}
