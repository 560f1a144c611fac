package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/agentsmith/agentos/provider/mock"
	"github.com/agentsmith/agentos/store"
)

func newExecutorTask(t *testing.T, base Base) *store.Task {
	t.Helper()
	return mustCreate(t, base.Store, &store.Task{
		Title:       "Implement feature",
		Description: "write the code",
		Status:      store.StatusAssigned,
		AssigneeID:  base.Self.ID,
	})
}

func TestExecutorCompletesTask(t *testing.T) {
	mp := mock.New(`{"thinking":"easy","actions":[],"status":"complete","summary":"all done"}`)
	base := newTestBase(t, store.RoleExecutor, mp)
	e := NewExecutor(base)

	task := newExecutorTask(t, base)
	if err := e.Process(context.Background(), task.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got := getTask(t, base.Store, task.ID)
	if got.Status != store.StatusReview {
		t.Errorf("status = %q, want review", got.Status)
	}
	if got.Result != "all done" {
		t.Errorf("result = %q, want summary", got.Result)
	}
	if got.CompletedAt == nil {
		t.Error("expected CompletedAt to be set")
	}
	if !strings.HasPrefix(got.BranchName, "feature/task-") {
		t.Errorf("branch = %q, want feature/task- prefix", got.BranchName)
	}
	if got.StartedAt == nil {
		t.Error("expected StartedAt to be set")
	}
}

func TestExecutorRunsActionsAndIterates(t *testing.T) {
	mp := mock.New(
		`{"thinking":"first write the file","actions":[{"tool":"probe","args":{"step":"one"}}],"status":"working","summary":"wrote file"}`,
		`{"thinking":"now done","actions":[],"status":"complete","summary":"finished"}`,
	)
	base := newTestBase(t, store.RoleExecutor, mp)
	probe := &fakeTool{name: "probe", result: map[string]any{"ok": true}}
	if err := base.Registry.Register(probe); err != nil {
		t.Fatalf("Register: %v", err)
	}
	e := NewExecutor(base)

	task := newExecutorTask(t, base)
	if err := e.Process(context.Background(), task.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(probe.calls) != 1 || probe.calls[0]["step"] != "one" {
		t.Errorf("probe calls = %v, want one with step=one", probe.calls)
	}
	if got := getTask(t, base.Store, task.ID); got.Status != store.StatusReview {
		t.Errorf("status = %q, want review", got.Status)
	}

	// Tool result was persisted as a message for the next iteration's context.
	msgs, _ := base.Store.ListMessages(store.MessageFilter{TaskID: task.ID})
	found := false
	for _, m := range msgs {
		if strings.Contains(m.Content, "Tool probe result") {
			found = true
		}
	}
	if !found {
		t.Error("expected a tool result message in task context")
	}
}

func TestExecutorDoubleParseFailureBlocks(t *testing.T) {
	mp := mock.New(
		"gibberish without json",
		"still gibberish",
	)
	base := newTestBase(t, store.RoleExecutor, mp)
	e := NewExecutor(base)

	task := newExecutorTask(t, base)
	if err := e.Process(context.Background(), task.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got := getTask(t, base.Store, task.ID)
	if got.Status != store.StatusBlocked {
		t.Errorf("status = %q, want blocked", got.Status)
	}
	if got.Error != "Repeated response parsing errors" {
		t.Errorf("error = %q, want repeated parsing errors", got.Error)
	}
	if mp.CallCount() != 2 {
		t.Errorf("provider calls = %d, want 2", mp.CallCount())
	}
}

func TestExecutorParseFailureRecovery(t *testing.T) {
	mp := mock.New(
		"gibberish",
		`{"status":"working","summary":"back on track"}`,
		"gibberish again",
		`{"status":"complete","summary":"done"}`,
	)
	base := newTestBase(t, store.RoleExecutor, mp)
	e := NewExecutor(base)

	task := newExecutorTask(t, base)
	if err := e.Process(context.Background(), task.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	// A success between failures resets the counter, so the task completes.
	if got := getTask(t, base.Store, task.ID); got.Status != store.StatusReview {
		t.Errorf("status = %q, want review", got.Status)
	}
}

func TestExecutorBlockedStatus(t *testing.T) {
	mp := mock.New(`{"status":"blocked","summary":"missing credentials"}`)
	base := newTestBase(t, store.RoleExecutor, mp)
	e := NewExecutor(base)

	task := newExecutorTask(t, base)
	if err := e.Process(context.Background(), task.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got := getTask(t, base.Store, task.ID)
	if got.Status != store.StatusBlocked {
		t.Errorf("status = %q, want blocked", got.Status)
	}
	if got.Error != "missing credentials" {
		t.Errorf("error = %q, want summary", got.Error)
	}
}

func TestExecutorIterationCapBlocks(t *testing.T) {
	mp := mock.New(`{"status":"working","summary":"still going"}`)
	mp.Repeat = true
	base := newTestBase(t, store.RoleExecutor, mp)
	e := NewExecutor(base)

	task := newExecutorTask(t, base)
	if err := e.Process(context.Background(), task.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if got := getTask(t, base.Store, task.ID); got.Status != store.StatusBlocked {
		t.Errorf("status = %q, want blocked after iteration cap", got.Status)
	}
	if mp.CallCount() != maxIterations {
		t.Errorf("provider calls = %d, want %d", mp.CallCount(), maxIterations)
	}
}

func TestExecutorIgnoresForeignTask(t *testing.T) {
	mp := mock.New(`{"status":"complete","summary":"x"}`)
	base := newTestBase(t, store.RoleExecutor, mp)
	e := NewExecutor(base)

	task := mustCreate(t, base.Store, &store.Task{
		Title: "not mine", Status: store.StatusAssigned, AssigneeID: "someone-else",
	})
	if err := e.Process(context.Background(), task.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if mp.CallCount() != 0 {
		t.Error("provider called for a task assigned elsewhere")
	}
	if got := getTask(t, base.Store, task.ID); got.Status != store.StatusAssigned {
		t.Errorf("status = %q, want assigned unchanged", got.Status)
	}
}

func TestExecutorSeesRejectionFeedback(t *testing.T) {
	mp := mock.New(`{"status":"complete","summary":"fixed per feedback"}`)
	base := newTestBase(t, store.RoleExecutor, mp)
	e := NewExecutor(base)

	task := mustCreate(t, base.Store, &store.Task{
		Title:      "rework",
		Status:     store.StatusInProgress,
		AssigneeID: base.Self.ID,
	})
	if _, err := base.Store.CreateMessage(&store.Message{
		Content:     "REJECTED: bugs\n\nFeedback:\nhandle the nil case",
		FromAgentID: "agent-reviewer-01",
		ToAgentID:   base.Self.ID,
		TaskID:      task.ID,
	}); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	if err := e.Process(context.Background(), task.ID); err != nil {
		t.Fatalf("Process: %v", err)
	}

	calls := mp.Calls()
	if len(calls) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(calls))
	}
	prompt := calls[0].Messages[1].Content
	if !strings.Contains(prompt, "handle the nil case") {
		t.Error("rejection feedback missing from the executor prompt")
	}
}
