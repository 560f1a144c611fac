package cli

import (
	"github.com/spf13/cobra"

	"github.com/agentsmith/agentos/store"
)

func newActivityCmd() *cobra.Command {
	var taskID, agentID string
	var limit int

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show the activity log, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(configFrom(cmd.Context()))
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			acts, err := st.ListActivities(store.ActivityFilter{
				TaskID:  taskID,
				AgentID: agentID,
				Limit:   limit,
			})
			if err != nil {
				return err
			}
			if len(acts) == 0 {
				printf(cmd, "No activity.\n")
				return nil
			}

			for _, a := range acts {
				printf(cmd, "[%s] %-14s %-22s %s\n",
					a.CreatedAt.Format("2006-01-02 15:04:05"),
					a.EventType, orDash(a.AgentID), a.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "Filter by task ID")
	cmd.Flags().StringVar(&agentID, "agent", "", "Filter by agent ID")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum records to show")
	return cmd
}
