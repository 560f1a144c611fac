package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentsmith/agentos/events"
	"github.com/agentsmith/agentos/store"
)

const (
	maxIterations       = 10
	maxParseFailures    = 2
	maxIterationErrors  = 3
	iterationTimeout    = 3 * time.Minute
	contextMessageLimit = 20
)

// Executor works assigned tasks to completion: it iterates reasoning and
// tool execution until the step status is complete or blocked, or a
// failure threshold trips.
type Executor struct {
	Base
}

// NewExecutor creates an executor loop for the given agent record.
func NewExecutor(base Base) *Executor {
	return &Executor{Base: base}
}

// Process runs the work loop for a task assigned to this executor.
// Re-entry on an in_progress task resumes with the stored message context,
// so a crash mid-task costs at most one iteration of work.
func (e *Executor) Process(ctx context.Context, taskID string) error {
	task, err := e.Store.GetTask(taskID)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return nil
	}
	if task.AssigneeID != e.Self.ID {
		return nil
	}
	if task.Status != store.StatusAssigned && task.Status != store.StatusInProgress {
		return nil
	}

	e.beginWork()
	defer func() {
		e.endWork()
		e.Bus.Dispatch(events.Event{Type: events.AgentIdle, EntityID: e.Self.ID})
	}()

	if task.Status == store.StatusAssigned {
		if err := e.startTask(ctx, task); err != nil {
			return err
		}
	} else {
		e.logActivity("task_continue", task.ID, "Continuing task: "+task.Title)
	}

	return e.workLoop(ctx, task)
}

// startTask stamps the task in_progress and sets up its feature branch.
func (e *Executor) startTask(ctx context.Context, task *store.Task) error {
	e.logActivity("task_start", task.ID, "Starting task: "+task.Title)

	now := time.Now().UTC()
	task.Status = store.StatusInProgress
	task.StartedAt = &now
	task.BranchName = "feature/task-" + shortID(task.ID)
	if err := e.Store.UpdateTask(task); err != nil {
		return fmt.Errorf("start task: %w", err)
	}

	// Branch setup is best-effort: the workspace may not be a repository.
	_, err := e.Registry.Execute(ctx, "git", map[string]any{
		"op": "checkout", "branch": task.BranchName, "create": true,
	})
	if err != nil {
		_, err = e.Registry.Execute(ctx, "git", map[string]any{
			"op": "checkout", "branch": task.BranchName,
		})
	}
	if err != nil {
		e.logActivity("warning", task.ID, "Git branch setup failed: "+err.Error())
	} else {
		e.logActivity("git", task.ID, "Checked out branch: "+task.BranchName)
	}
	return nil
}

func (e *Executor) workLoop(ctx context.Context, task *store.Task) error {
	parseFailures := 0
	iterationErrors := 0

	for iteration := 1; iteration <= maxIterations; iteration++ {
		prompt, err := e.buildPrompt(task)
		if err != nil {
			return err
		}

		iterCtx, cancel := context.WithTimeout(ctx, iterationTimeout)
		content, err := e.think(iterCtx, prompt)
		cancel()
		if err != nil {
			iterationErrors++
			e.logActivity("error", task.ID,
				fmt.Sprintf("Iteration %d failed: %v", iteration, err))
			if iterationErrors >= maxIterationErrors {
				return e.blockTask(task, "Repeated iteration failures: "+err.Error())
			}
			continue
		}
		iterationErrors = 0

		step, err := parseWorkStep(content)
		var malformed *MalformedError
		if errors.As(err, &malformed) {
			parseFailures++
			e.logActivity("error", task.ID, "Failed to process response: "+malformed.Reason)
			if parseFailures >= maxParseFailures {
				return e.blockTask(task, "Repeated response parsing errors")
			}
			continue
		}
		if err != nil {
			return err
		}
		parseFailures = 0

		if step.Thinking != "" {
			e.logActivity("thinking", task.ID, step.Thinking)
		}
		e.runActions(ctx, task, step.Actions)

		switch step.Status {
		case "complete":
			return e.completeTask(ctx, task, step.Summary)
		case "blocked":
			return e.blockTask(task, orDefault(step.Summary, "Executor reported blocked"))
		default:
			e.sendMessage(task.ID, "", "Progress: "+orDefault(step.Summary, "Working..."))
		}
	}

	return e.blockTask(task, "Iteration limit reached without completion")
}

func (e *Executor) buildPrompt(task *store.Task) (string, error) {
	msgs, err := e.Store.ListMessages(store.MessageFilter{
		TaskID: task.ID,
		Limit:  contextMessageLimit,
	})
	if err != nil {
		return "", fmt.Errorf("load task messages: %w", err)
	}

	var contextBlock string
	if len(msgs) > 0 {
		parts := make([]string, len(msgs))
		for i, m := range msgs {
			parts[i] = m.Content
		}
		contextBlock = "\nPREVIOUS CONTEXT:\n" + strings.Join(parts, "\n---\n")
	}

	return fmt.Sprintf(`You are working on a coding task.

TASK:
Title: %s
Description: %s
Branch: %s

AVAILABLE TOOLS:
%s%s

INSTRUCTIONS:
1. Analyze what needs to be done
2. Plan your approach
3. Use the available tools to complete the task
4. Write clean, tested code
5. When completely done, set status to "complete"
6. If you cannot proceed, set status to "blocked"

Respond with a JSON object:
{
  "thinking": "your analysis and plan",
  "actions": [
    {"tool": "tool_name", "args": {"arg1": "value1"}}
  ],
  "status": "working" | "complete" | "blocked",
  "summary": "what you did or why you're blocked"
}`,
		task.Title,
		orDefault(task.Description, "No description"),
		orDefault(task.BranchName, "Not created yet"),
		orDefault(e.Registry.Descriptors(), "No tools registered yet"),
		contextBlock,
	), nil
}

// runActions executes the step's tool calls in order. A failed action is
// recorded and the rest still run.
func (e *Executor) runActions(ctx context.Context, task *store.Task, actions []Action) {
	for _, action := range actions {
		result, err := e.Registry.Execute(ctx, action.Tool, action.Args)
		if err != nil {
			e.logActivity("tool_error", task.ID,
				fmt.Sprintf("%s failed: %v", action.Tool, err))
			continue
		}
		rendered, _ := json.Marshal(result)
		e.logActivity("tool_call", task.ID,
			fmt.Sprintf("%s: %s", action.Tool, truncate(string(rendered), 500)))
		e.sendMessage(task.ID, "", fmt.Sprintf(
			"Tool %s result: %s", action.Tool, truncate(string(rendered), 1000)))
	}
}

func (e *Executor) completeTask(ctx context.Context, task *store.Task, summary string) error {
	if task.BranchName != "" {
		e.commitAndPush(ctx, task, summary)
	}

	now := time.Now().UTC()
	task.Status = store.StatusReview
	task.Result = summary
	task.CompletedAt = &now
	if err := e.Store.UpdateTask(task); err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	e.sendMessage(task.ID, "", "Task complete: "+summary)
	e.logActivity("task_complete", task.ID, "Completed: "+task.Title)
	e.Bus.Dispatch(events.Event{Type: events.TaskReviewNeeded, EntityID: task.ID})
	e.Bus.Dispatch(events.Event{Type: events.TaskCompleted, EntityID: task.ID})
	return nil
}

// commitAndPush is best-effort; a failure is logged and the task still
// moves to review.
func (e *Executor) commitAndPush(ctx context.Context, task *store.Task, summary string) {
	steps := []map[string]any{
		{"op": "add", "files": "."},
		{"op": "commit", "message": fmt.Sprintf("feat(%s): %s\n\n%s",
			task.BranchName, task.Title, orDefault(summary, "Task completed"))},
		{"op": "push", "branch": task.BranchName},
	}
	for _, args := range steps {
		if _, err := e.Registry.Execute(ctx, "git", args); err != nil {
			e.logActivity("warning", task.ID, "Git commit/push failed: "+err.Error())
			return
		}
	}
	e.logActivity("git", task.ID, "Committed and pushed to "+task.BranchName)
}

func (e *Executor) blockTask(task *store.Task, reason string) error {
	task.Status = store.StatusBlocked
	task.Error = reason
	if err := e.Store.UpdateTask(task); err != nil {
		return fmt.Errorf("block task: %w", err)
	}
	e.sendMessage(task.ID, "", "BLOCKED: "+reason)
	e.logActivity("task_blocked", task.ID, "Blocked: "+reason)
	e.Bus.Dispatch(events.Event{Type: events.TaskBlocked, EntityID: task.ID})
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
