package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentsmith/agentos/events"
	"github.com/agentsmith/agentos/store"
)

// Planner decomposes goals into subtasks, resolves blocked tasks, and
// matches assignable work to idle executors.
type Planner struct {
	Base
}

// NewPlanner creates a planner loop for the given agent record.
func NewPlanner(base Base) *Planner {
	return &Planner{Base: base}
}

// ProcessGoal breaks a parentless intake task into subtasks. The goal moves
// to in_progress only after every child is created; a response that does not
// parse leaves the goal blocked with no partial children.
func (p *Planner) ProcessGoal(ctx context.Context, taskID string) error {
	goal, err := p.Store.GetTask(taskID)
	if err != nil {
		return err
	}
	if goal.Status.Terminal() || goal.Status != store.StatusIntake {
		return nil
	}
	if goal.ParentTaskID != "" {
		return nil
	}

	p.beginWork()
	defer p.endWork()
	p.logActivity("planning", goal.ID, "Breaking down goal: "+goal.Title)

	prompt := fmt.Sprintf(`You are breaking down a goal into actionable tasks.

GOAL:
Title: %s
Description: %s

Break this into 3-7 atomic, actionable tasks. Each task should:
- Be completable by a single developer in 1-4 hours
- Have a clear deliverable
- Be independent when possible

IMPORTANT: Respond ONLY with valid JSON, no additional text:
{
  "tasks": [
    { "title": "Task title", "description": "What to do", "priority": 1 }
  ]
}`, goal.Title, orDefault(goal.Description, "No description provided"))

	content, err := p.think(ctx, prompt)
	if err != nil {
		return p.blockGoal(goal, "Planning failed: "+err.Error())
	}

	planned, err := parsePlan(content)
	var malformed *MalformedError
	if errors.As(err, &malformed) {
		return p.blockGoal(goal, "Planning failed: "+malformed.Reason)
	}
	if err != nil {
		return err
	}

	for _, pt := range planned {
		child := &store.Task{
			Title:        pt.Title,
			Description:  pt.Description,
			Priority:     pt.Priority,
			Status:       store.StatusIntake,
			ParentTaskID: goal.ID,
			CreatedByID:  p.Self.ID,
		}
		id, err := p.Store.CreateTask(child)
		if err != nil {
			return fmt.Errorf("create subtask: %w", err)
		}
		p.Bus.Dispatch(events.Event{Type: events.TaskCreated, EntityID: id})
	}

	goal.Status = store.StatusInProgress
	if err := p.Store.UpdateTask(goal); err != nil {
		return fmt.Errorf("update goal: %w", err)
	}
	p.logActivity("planning", goal.ID,
		fmt.Sprintf("Created %d subtasks for goal: %s", len(planned), goal.Title))
	return nil
}

func (p *Planner) blockGoal(goal *store.Task, reason string) error {
	p.logActivity("error", goal.ID, reason)
	goal.Status = store.StatusBlocked
	goal.Error = reason
	if err := p.Store.UpdateTask(goal); err != nil {
		return fmt.Errorf("block goal: %w", err)
	}
	p.Bus.Dispatch(events.Event{Type: events.TaskBlocked, EntityID: goal.ID})
	return nil
}

// HandleBlocked asks the reasoning client how to resolve a blocked task.
// Retry returns the task to intake, cancel terminates it, and anything
// else (including a response that does not parse) escalates to a human.
func (p *Planner) HandleBlocked(ctx context.Context, taskID string) error {
	task, err := p.Store.GetTask(taskID)
	if err != nil {
		return err
	}
	if task.Status != store.StatusBlocked {
		return nil
	}

	p.beginWork()
	defer p.endWork()
	p.logActivity("review", task.ID, "Reviewing blocked task: "+task.Title)

	prompt := fmt.Sprintf(`A task is blocked. Analyze and suggest a resolution.

TASK:
Title: %s
Description: %s
Error: %s

What should we do? Options:
1. "retry" - Clear the blocker and retry the task
2. "escalate" - Needs human intervention
3. "cancel" - The task cannot be completed

Respond with JSON:
{
  "action": "retry" | "escalate" | "cancel",
  "reasoning": "why this action"
}`, task.Title, orDefault(task.Description, "No description"),
		orDefault(task.Error, "Unknown blocker"))

	content, err := p.think(ctx, prompt)
	if err != nil {
		p.logActivity("error", task.ID, "Blocked-task analysis failed: "+err.Error())
		return nil
	}

	decision, err := parseBlockDecision(content)
	if err != nil {
		decision = &blockDecision{Action: "escalate", Reasoning: "unparsable resolution response"}
	}

	switch decision.Action {
	case "retry":
		task.Status = store.StatusIntake
		task.Error = ""
		task.AssigneeID = ""
		if err := p.Store.UpdateTask(task); err != nil {
			return fmt.Errorf("retry blocked task: %w", err)
		}
		p.logActivity("resolution", task.ID, "Retrying blocked task: "+task.Title)
		p.Bus.Dispatch(events.Event{Type: events.TaskCreated, EntityID: task.ID})

	case "cancel":
		task.Status = store.StatusCancelled
		if err := p.Store.UpdateTask(task); err != nil {
			return fmt.Errorf("cancel blocked task: %w", err)
		}
		p.logActivity("resolution", task.ID, "Cancelled blocked task: "+task.Title)

	default:
		p.sendMessage(task.ID, "", fmt.Sprintf(
			"ESCALATION: Task %q needs human intervention. Reason: %s",
			task.Title, decision.Reasoning))
		p.logActivity("escalation", task.ID, "Escalated blocked task: "+task.Title)
	}
	return nil
}

// AssignTasks pairs idle executors with the highest-priority assignable
// intake tasks, one task per executor.
func (p *Planner) AssignTasks(ctx context.Context) error {
	executors, err := p.Store.ListAgents(store.AgentFilter{
		Role:   store.RoleExecutor,
		Status: store.AgentIdle,
	})
	if err != nil {
		return fmt.Errorf("list idle executors: %w", err)
	}
	if len(executors) == 0 {
		return nil
	}

	st := store.StatusIntake
	tasks, err := p.Store.ListTasks(store.TaskFilter{
		Status:         &st,
		Unassigned:     true,
		AssignableOnly: true,
		Limit:          len(executors),
	})
	if err != nil {
		return fmt.Errorf("list assignable tasks: %w", err)
	}

	n := min(len(executors), len(tasks))
	for i := 0; i < n; i++ {
		task, executor := tasks[i], executors[i]
		task.Status = store.StatusAssigned
		task.AssigneeID = executor.ID
		if err := p.Store.UpdateTask(task); err != nil {
			return fmt.Errorf("assign task %s: %w", task.ID, err)
		}
		p.sendMessage(task.ID, executor.ID, fmt.Sprintf(
			"Assigned task: %s\n\nDescription: %s",
			task.Title, orDefault(task.Description, "No description")))
		p.logActivity("assignment", task.ID,
			fmt.Sprintf("Assigned %q to executor %s", task.Title, executor.Name))
		p.Bus.Dispatch(events.Event{Type: events.TaskAssigned, EntityID: task.ID})
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
