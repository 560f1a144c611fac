package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentsmith/agentos/events"
	"github.com/agentsmith/agentos/store"
)

const (
	strategistMaxIterations = 15
	strategyGoalCooldown    = 24 * time.Hour
)

// Strategist analyzes strategic goals: it researches via websearch, spawns
// sub-tasks from its analysis, and periodically seeds a recurring strategy
// review when it has nothing assigned.
type Strategist struct {
	Base
}

// NewStrategist creates a strategist loop for the given agent record.
func NewStrategist(base Base) *Strategist {
	return &Strategist{Base: base}
}

// Process runs the analysis loop on an assigned strategy task.
func (s *Strategist) Process(ctx context.Context, taskID string) error {
	task, err := s.Store.GetTask(taskID)
	if err != nil {
		return err
	}
	if task.Status.Terminal() {
		return nil
	}
	if task.AssigneeID != s.Self.ID {
		return nil
	}
	if task.Status != store.StatusAssigned && task.Status != store.StatusInProgress {
		return nil
	}

	s.beginWork()
	defer s.endWork()

	if task.Status == store.StatusAssigned {
		s.logActivity("task_started", task.ID, "Analyzing: "+task.Title)
		now := time.Now().UTC()
		task.Status = store.StatusInProgress
		task.StartedAt = &now
		if err := s.Store.UpdateTask(task); err != nil {
			return fmt.Errorf("start analysis: %w", err)
		}
	} else {
		s.logActivity("task_continued", task.ID, "Continuing strategic analysis: "+task.Title)
	}

	prompt := s.buildPrompt(task)

	for iteration := 1; iteration <= strategistMaxIterations; iteration++ {
		s.logActivity("reasoning", task.ID,
			fmt.Sprintf("Strategic iteration %d/%d", iteration, strategistMaxIterations))

		content, err := s.think(ctx, prompt)
		if err != nil {
			s.logActivity("error", task.ID, "Analysis iteration failed: "+err.Error())
			break
		}
		if content == "" {
			s.logActivity("error", task.ID, "Empty response")
			break
		}

		actions := parseStrategy(content)

		if len(actions.Subtasks) > 0 {
			if err := s.createSubtasks(task, actions); err != nil {
				return err
			}
		}
		if len(actions.Research) > 0 {
			s.conductResearch(ctx, task, actions.Research)
		}

		s.sendMessage(task.ID, "", content)

		if actions.Complete {
			return s.completeAnalysis(task, content)
		}
	}

	return s.blockAnalysis(task, "Max strategic iterations reached - needs refinement")
}

func (s *Strategist) buildPrompt(task *store.Task) string {
	priority := "NORMAL"
	switch {
	case task.Priority >= 8:
		priority = "HIGH"
	case task.Priority >= 5:
		priority = "MEDIUM"
	}

	return fmt.Sprintf(`You are a Product Manager analyzing this strategic goal:

**Goal:** %s
**Description:** %s
**Priority:** %s

Your mission is to:
1. **Analyze** the product/market viability
2. **Research** competitors, trends, and opportunities (write "RESEARCH: <query>" lines)
3. **Identify** monetization strategies
4. **Propose** UX improvements and growth tactics
5. **Break down** into actionable sub-tasks

Output your analysis in this format:

## Strategic Analysis
[Your market/competitive/viability analysis]

## Research Findings
[Key insights from online research]

## Recommended Actions
1. [Action item with owner and priority]

## Sub-Tasks
- Title: [Task name]
  Description: [What needs to be done]
  Tags: [product, ux, monetization, etc]
  Priority: [0-10]

When complete, respond with: **%s**`,
		task.Title, orDefault(task.Description, "No additional details"),
		priority, analysisComplete)
}

func (s *Strategist) createSubtasks(parent *store.Task, actions strategyActions) error {
	s.logActivity("subtasks_created", parent.ID,
		fmt.Sprintf("Creating %d strategic sub-tasks", len(actions.Subtasks)))

	for i, sub := range actions.Subtasks {
		child := &store.Task{
			Title:        sub.Title,
			Description:  sub.Description,
			Priority:     sub.Priority,
			Status:       store.StatusIntake,
			Tags:         actions.Tags[i],
			ParentTaskID: parent.ID,
			CreatedByID:  s.Self.ID,
		}
		id, err := s.Store.CreateTask(child)
		if err != nil {
			return fmt.Errorf("create strategic subtask: %w", err)
		}
		s.Bus.Dispatch(events.Event{Type: events.TaskCreated, EntityID: id})
	}

	s.sendMessage(parent.ID, "", fmt.Sprintf(
		"Created %d strategic sub-tasks for execution", len(actions.Subtasks)))
	return nil
}

func (s *Strategist) conductResearch(ctx context.Context, task *store.Task, queries []string) {
	s.logActivity("research_started", task.ID,
		fmt.Sprintf("Researching %d topics", len(queries)))

	for _, query := range queries {
		result, err := s.Registry.Execute(ctx, "websearch", map[string]any{"query": query})
		if err != nil {
			s.logActivity("error", task.ID,
				fmt.Sprintf("Research failed for %q: %v", query, err))
			continue
		}
		rendered, _ := json.Marshal(result)
		s.sendMessage(task.ID, "", fmt.Sprintf(
			"Research: %s\n\nFindings: %s", query, truncate(string(rendered), 500)))
	}
}

func (s *Strategist) completeAnalysis(task *store.Task, analysis string) error {
	now := time.Now().UTC()
	task.Status = store.StatusReview
	task.Result = analysis
	task.CompletedAt = &now
	if err := s.Store.UpdateTask(task); err != nil {
		return fmt.Errorf("complete analysis: %w", err)
	}
	s.logActivity("task_completed", task.ID, "Strategic analysis complete: "+task.Title)
	s.sendMessage(task.ID, "", "Strategic analysis complete and ready for review")
	s.Bus.Dispatch(events.Event{Type: events.TaskReviewNeeded, EntityID: task.ID})
	return nil
}

func (s *Strategist) blockAnalysis(task *store.Task, reason string) error {
	task.Status = store.StatusBlocked
	task.Error = reason
	if err := s.Store.UpdateTask(task); err != nil {
		return fmt.Errorf("block analysis: %w", err)
	}
	s.logActivity("task_blocked", task.ID, reason)
	s.sendMessage(task.ID, "", "Task blocked: "+reason)
	s.Bus.Dispatch(events.Event{Type: events.TaskBlocked, EntityID: task.ID})
	return nil
}

// Heartbeat picks up assigned strategy work, or, if the strategist has
// created nothing in the last 24 hours, seeds one recurring strategy
// review goal.
func (s *Strategist) Heartbeat(ctx context.Context) error {
	tasks, err := s.Store.ListTasks(store.TaskFilter{
		AssigneeID: s.Self.ID,
		Statuses:   []store.TaskStatus{store.StatusAssigned, store.StatusInProgress},
		Limit:      1,
	})
	if err != nil {
		return fmt.Errorf("list strategist tasks: %w", err)
	}
	if len(tasks) > 0 {
		return s.Process(ctx, tasks[0].ID)
	}
	return s.proposeInitiative()
}

func (s *Strategist) proposeInitiative() error {
	cutoff := time.Now().UTC().Add(-strategyGoalCooldown)
	recent, err := s.Store.CountTasks(store.TaskFilter{
		CreatedByID:  s.Self.ID,
		CreatedAfter: &cutoff,
	})
	if err != nil {
		return fmt.Errorf("count recent initiatives: %w", err)
	}
	if recent > 0 {
		return nil
	}

	id, err := s.Store.CreateTask(&store.Task{
		Title: "Weekly Product Strategy Review",
		Description: `Analyze:
- Current product metrics and user feedback
- Competitor landscape and market trends
- Revenue opportunities and growth strategies
- UX improvements and feature requests
- Strategic priorities for next sprint`,
		Status:      store.StatusIntake,
		Priority:    7,
		Tags:        []string{"product", "strategy", "research"},
		CreatedByID: s.Self.ID,
	})
	if err != nil {
		return fmt.Errorf("create strategy review: %w", err)
	}
	s.logActivity("initiative_created", id, "Created weekly strategic review task")
	s.Bus.Dispatch(events.Event{Type: events.TaskCreated, EntityID: id})
	return nil
}
