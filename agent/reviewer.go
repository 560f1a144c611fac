package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/agentsmith/agentos/events"
	"github.com/agentsmith/agentos/store"
)

const (
	reviewMessageLimit  = 30
	reviewActivityLimit = 20
)

// Reviewer is the quality gate: it judges tasks in review, merges approved
// branches, and cascades completion up the parent chain.
type Reviewer struct {
	Base
	// MainBranch is the merge target for approved work.
	MainBranch string
}

// NewReviewer creates a reviewer loop for the given agent record.
func NewReviewer(base Base) *Reviewer {
	return &Reviewer{Base: base, MainBranch: "main"}
}

// Review judges a single task in review status. A response that does not
// parse leaves the task in review for the next pass; rejection never
// happens by accident.
func (r *Reviewer) Review(ctx context.Context, taskID string) error {
	task, err := r.Store.GetTask(taskID)
	if err != nil {
		return err
	}
	if task.Status != store.StatusReview {
		return nil
	}

	r.beginWork()
	defer r.endWork()
	r.logActivity("review_start", task.ID, "Starting review: "+task.Title)

	prompt, err := r.buildPrompt(task)
	if err != nil {
		return err
	}

	content, err := r.think(ctx, prompt)
	if err != nil {
		r.logActivity("error", task.ID, "Review request failed: "+err.Error())
		return nil
	}

	decision, err := parseReview(content)
	var malformed *MalformedError
	if errors.As(err, &malformed) {
		r.logActivity("error", task.ID, "Failed to process review: "+malformed.Reason)
		return nil
	}
	if err != nil {
		return err
	}

	if decision.Decision == "approve" {
		return r.approve(ctx, task, decision)
	}
	return r.reject(task, decision)
}

func (r *Reviewer) buildPrompt(task *store.Task) (string, error) {
	msgs, err := r.Store.ListMessages(store.MessageFilter{
		TaskID: task.ID,
		Limit:  reviewMessageLimit,
	})
	if err != nil {
		return "", fmt.Errorf("load messages: %w", err)
	}
	acts, err := r.Store.ListActivities(store.ActivityFilter{
		TaskID: task.ID,
		Limit:  reviewActivityLimit,
	})
	if err != nil {
		return "", fmt.Errorf("load activities: %w", err)
	}

	msgParts := make([]string, len(msgs))
	for i, m := range msgs {
		msgParts[i] = m.Content
	}
	actParts := make([]string, len(acts))
	for i, a := range acts {
		actParts[i] = fmt.Sprintf("[%s] %s", a.EventType, a.Message)
	}

	return fmt.Sprintf(`You are reviewing a completed task.

TASK:
Title: %s
Description: %s
Result: %s
Branch: %s

WORK LOG:
%s

MESSAGES:
%s

REVIEW CHECKLIST:
1. Does the work fulfill the task requirements?
2. Are there obvious bugs or issues?
3. Is the code clean and maintainable?
4. Were tests written or updated?
5. Is the implementation complete?

Make your decision. Be thorough but reasonable - don't block for minor issues.

Respond with JSON:
{
  "decision": "approve" | "reject",
  "reasoning": "detailed analysis",
  "feedback": "specific feedback for the executor (required if rejecting)",
  "improvements": ["optional list of suggestions even if approving"]
}`,
		task.Title,
		orDefault(task.Description, "No description"),
		orDefault(task.Result, "No result provided"),
		orDefault(task.BranchName, "No branch specified"),
		orDefault(strings.Join(actParts, "\n"), "No activities recorded"),
		orDefault(strings.Join(msgParts, "\n---\n"), "No messages"),
	), nil
}

func (r *Reviewer) approve(ctx context.Context, task *store.Task, d *reviewDecision) error {
	now := time.Now().UTC()
	task.Status = store.StatusDone
	task.CompletedAt = &now
	if err := r.Store.UpdateTask(task); err != nil {
		return fmt.Errorf("approve task: %w", err)
	}

	message := "APPROVED: " + d.Reasoning
	if len(d.Improvements) > 0 {
		message += "\n\nSuggestions for future:\n- " + strings.Join(d.Improvements, "\n- ")
	}
	r.sendMessage(task.ID, task.AssigneeID, message)
	r.logActivity("review_approve", task.ID, "Approved: "+task.Title)
	r.Bus.Dispatch(events.Event{Type: events.TaskApproved, EntityID: task.ID})

	if task.BranchName != "" {
		r.mergeBranch(ctx, task)
	}

	if task.ParentTaskID != "" {
		if err := r.cascadeParent(task.ParentTaskID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reviewer) reject(task *store.Task, d *reviewDecision) error {
	task.Status = store.StatusInProgress
	if err := r.Store.UpdateTask(task); err != nil {
		return fmt.Errorf("reject task: %w", err)
	}
	r.sendMessage(task.ID, task.AssigneeID, fmt.Sprintf(
		"REJECTED: %s\n\nFeedback:\n%s", d.Reasoning, d.Feedback))
	r.logActivity("review_reject", task.ID, "Rejected: "+task.Title)
	r.Bus.Dispatch(events.Event{Type: events.TaskRejected, EntityID: task.ID})
	return nil
}

// mergeBranch merges the task branch into the main branch, best-effort.
func (r *Reviewer) mergeBranch(ctx context.Context, task *store.Task) {
	steps := []map[string]any{
		{"op": "checkout", "branch": r.MainBranch},
		{"op": "pull"},
		{"op": "merge", "branch": task.BranchName},
		{"op": "push"},
	}
	for _, args := range steps {
		if _, err := r.Registry.Execute(ctx, "git", args); err != nil {
			r.logActivity("git_error", task.ID, "Merge failed: "+err.Error())
			r.sendMessage(task.ID, "", fmt.Sprintf(
				"Merge of %s failed: %v. Manual merge may be required.",
				task.BranchName, err))
			return
		}
	}
	r.logActivity("git_merge", task.ID,
		fmt.Sprintf("Merged branch %s to %s and pushed", task.BranchName, r.MainBranch))
	r.sendMessage(task.ID, "", fmt.Sprintf(
		"Merged %s to %s and pushed", task.BranchName, r.MainBranch))
}

// cascadeParent marks a parent done once every child has reached a terminal
// status, then recurses upward. Re-running it on an already-done parent is
// a no-op.
func (r *Reviewer) cascadeParent(parentID string) error {
	parent, err := r.Store.GetTask(parentID)
	if err != nil {
		return nil // parent may have been deleted by an operator
	}

	total, err := r.Store.CountTasks(store.TaskFilter{ParentTaskID: parentID})
	if err != nil {
		return fmt.Errorf("count children: %w", err)
	}
	settled, err := r.Store.CountTasks(store.TaskFilter{
		ParentTaskID: parentID,
		Statuses:     []store.TaskStatus{store.StatusDone, store.StatusCancelled},
	})
	if err != nil {
		return fmt.Errorf("count settled children: %w", err)
	}

	if total == 0 || settled < total || parent.Status == store.StatusDone {
		return nil
	}

	now := time.Now().UTC()
	parent.Status = store.StatusDone
	parent.CompletedAt = &now
	if err := r.Store.UpdateTask(parent); err != nil {
		return fmt.Errorf("complete parent: %w", err)
	}
	r.logActivity("parent_complete", parentID,
		fmt.Sprintf("All subtasks done - marking parent %q as complete", parent.Title))
	r.sendMessage(parentID, "", "Goal complete: "+parent.Title)

	if parent.ParentTaskID != "" {
		return r.cascadeParent(parent.ParentTaskID)
	}
	return nil
}
