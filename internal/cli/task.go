package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentsmith/agentos/store"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	cmd.AddCommand(newTaskAddCmd())
	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskShowCmd())
	return cmd
}

func newTaskAddCmd() *cobra.Command {
	var description string
	var priority int
	var tags []string

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a goal for the planner to break down",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(configFrom(cmd.Context()))
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			task := &store.Task{
				Title:       args[0],
				Description: description,
				Priority:    priority,
				Tags:        tags,
			}
			id, err := st.CreateTask(task)
			if err != nil {
				return err
			}
			printf(cmd, "Created task %s: %s\n", shortID(id), task.Title)
			printf(cmd, "The daemon picks it up on its next reconciliation cycle.\n")
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "Task description")
	cmd.Flags().IntVar(&priority, "priority", 5, "Task priority, higher is more urgent")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Task tags")
	return cmd
}

func newTaskListCmd() *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(configFrom(cmd.Context()))
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			filter := store.TaskFilter{
				OrderBy: store.OrderCreatedDesc,
				Limit:   limit,
			}
			if status != "" {
				s := store.TaskStatus(status)
				filter.Status = &s
			}
			tasks, err := st.ListTasks(filter)
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				printf(cmd, "No tasks.\n")
				return nil
			}

			printf(cmd, "%-10s %-12s %-4s %-10s %s\n", "ID", "STATUS", "PRI", "ASSIGNEE", "TITLE")
			for _, t := range tasks {
				printf(cmd, "%-10s %-12s %-4d %-10s %s\n",
					shortID(t.ID), t.Status, t.Priority, orDash(shortID(t.AssigneeID)), t.Title)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum tasks to list")
	return cmd
}

func newTaskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(configFrom(cmd.Context()))
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			task, err := resolveTask(st, args[0])
			if err != nil {
				return err
			}

			printf(cmd, "ID:          %s\n", task.ID)
			printf(cmd, "Title:       %s\n", task.Title)
			printf(cmd, "Status:      %s\n", task.Status)
			printf(cmd, "Priority:    %d\n", task.Priority)
			printf(cmd, "Assignee:    %s\n", orDash(task.AssigneeID))
			printf(cmd, "Parent:      %s\n", orDash(task.ParentTaskID))
			printf(cmd, "Branch:      %s\n", orDash(task.BranchName))
			if task.Description != "" {
				printf(cmd, "Description: %s\n", task.Description)
			}
			if task.Result != "" {
				printf(cmd, "Result:      %s\n", task.Result)
			}
			if task.Error != "" {
				printf(cmd, "Error:       %s\n", task.Error)
			}

			msgs, err := st.ListMessages(store.MessageFilter{TaskID: task.ID})
			if err != nil {
				return err
			}
			if len(msgs) > 0 {
				printf(cmd, "\nMessages:\n")
				for _, m := range msgs {
					printf(cmd, "  [%s] %s: %s\n",
						m.CreatedAt.Format("15:04:05"), m.FromAgentID, m.Content)
				}
			}
			return nil
		},
	}
	return cmd
}

// resolveTask accepts a full task ID or an unambiguous short prefix.
func resolveTask(st store.Store, id string) (*store.Task, error) {
	if task, err := st.GetTask(id); err == nil {
		return task, nil
	}

	tasks, err := st.ListTasks(store.TaskFilter{})
	if err != nil {
		return nil, err
	}
	var match *store.Task
	for _, t := range tasks {
		if len(id) >= 4 && len(t.ID) >= len(id) && t.ID[:len(id)] == id {
			if match != nil {
				return nil, fmt.Errorf("task prefix %q is ambiguous", id)
			}
			match = t
		}
	}
	if match == nil {
		return nil, fmt.Errorf("task %s not found", id)
	}
	return match, nil
}
