package kernel

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/agentsmith/agentos/config"
	"github.com/agentsmith/agentos/events"
	"github.com/agentsmith/agentos/provider"
	"github.com/agentsmith/agentos/provider/mock"
	"github.com/agentsmith/agentos/store"
	"github.com/agentsmith/agentos/tools"
)

func newTestKernel(t *testing.T) (*Kernel, store.Store, *events.Bus) {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "kernel.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.DiscardHandler)
	bus := events.NewBusWithWindow(logger, 10*time.Millisecond)
	k := New(Options{
		Store:    s,
		Bus:      bus,
		Registry: tools.NewRegistry(),
		Logger:   logger,
		Kernel: config.KernelConfig{
			AutonomyInterval:   time.Hour,
			RecoveryInterval:   time.Hour,
			TaskTimeout:        15 * time.Minute,
			StrategistInterval: time.Hour,
		},
	})
	return k, s, bus
}

// mockFactory returns the provider scripted for the agent's model, or an
// empty mock for everything else.
func mockFactory(byModel map[string]*mock.Provider) ProviderFactory {
	return func(name, model string) (provider.Provider, error) {
		if p, ok := byModel[model]; ok {
			return p, nil
		}
		return mock.New(), nil
	}
}

func seedAgent(t *testing.T, s store.Store, id string, role store.AgentRole, model string) {
	t.Helper()
	err := s.UpsertAgent(&store.Agent{
		ID:     id,
		Name:   id,
		Role:   role,
		Status: store.AgentIdle,
		ModelConfig: store.ModelConfig{
			Provider: "mock",
			Model:    model,
		},
	})
	if err != nil {
		t.Fatalf("UpsertAgent: %v", err)
	}
}

func countEvents(bus *events.Bus, typ events.Type) *atomic.Int32 {
	var n atomic.Int32
	bus.Subscribe(typ, func(events.Event) error {
		n.Add(1)
		return nil
	})
	return &n
}

func mustCreate(t *testing.T, s store.Store, task *store.Task) *store.Task {
	t.Helper()
	if _, err := s.CreateTask(task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return task
}

func getTask(t *testing.T, s store.Store, id string) *store.Task {
	t.Helper()
	task, err := s.GetTask(id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	return task
}

func TestReconcileDispatchesExistingWork(t *testing.T) {
	k, s, bus := newTestKernel(t)
	if err := k.Init(mockFactory(nil)); err != nil {
		t.Fatalf("Init: %v", err)
	}

	created := countEvents(bus, events.TaskCreated)
	assigned := countEvents(bus, events.TaskAssigned)
	reviews := countEvents(bus, events.TaskReviewNeeded)

	goal := mustCreate(t, s, &store.Task{Title: "goal"})
	mustCreate(t, s, &store.Task{Title: "sub", ParentTaskID: goal.ID})
	mustCreate(t, s, &store.Task{
		Title: "owned a", Status: store.StatusAssigned, AssigneeID: "e1",
	})
	mustCreate(t, s, &store.Task{
		Title: "owned b", Status: store.StatusInProgress, AssigneeID: "e1",
	})
	mustCreate(t, s, &store.Task{Title: "orphan", Status: store.StatusAssigned})
	mustCreate(t, s, &store.Task{Title: "reviewable", Status: store.StatusReview})

	if err := k.Reconcile(); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	bus.Wait()

	// Intake subtasks and ownerless assigned tasks are not re-dispatched.
	if got := created.Load(); got != 1 {
		t.Errorf("task:created dispatches = %d, want 1", got)
	}
	if got := assigned.Load(); got != 2 {
		t.Errorf("task:assigned dispatches = %d, want 2", got)
	}
	if got := reviews.Load(); got != 1 {
		t.Errorf("task:review_needed dispatches = %d, want 1", got)
	}
}

func TestRecoverStuckTasksResets(t *testing.T) {
	k, s, bus := newTestKernel(t)
	if err := k.Init(mockFactory(nil)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	created := countEvents(bus, events.TaskCreated)

	stale := time.Now().UTC().Add(-20 * time.Minute)
	fresh := time.Now().UTC()

	stuckA := mustCreate(t, s, &store.Task{
		Title: "stuck a", Status: store.StatusInProgress,
		AssigneeID: "e1", StartedAt: &stale,
	})
	stuckB := mustCreate(t, s, &store.Task{
		Title: "stuck b", Status: store.StatusAssigned,
		AssigneeID: "e2", StartedAt: &stale,
	})
	healthy := mustCreate(t, s, &store.Task{
		Title: "healthy", Status: store.StatusInProgress,
		AssigneeID: "e1", StartedAt: &fresh,
	})
	unstarted := mustCreate(t, s, &store.Task{
		Title: "unstarted", Status: store.StatusAssigned, AssigneeID: "e3",
	})

	if err := k.RecoverStuckTasks(); err != nil {
		t.Fatalf("RecoverStuckTasks: %v", err)
	}
	bus.Wait()

	for _, id := range []string{stuckA.ID, stuckB.ID} {
		got := getTask(t, s, id)
		if got.Status != store.StatusIntake {
			t.Errorf("task %s status = %q, want intake", id, got.Status)
		}
		if got.AssigneeID != "" || got.StartedAt != nil {
			t.Errorf("task %s assignee = %q started = %v, want both cleared",
				id, got.AssigneeID, got.StartedAt)
		}
		if !strings.Contains(got.Error, "timeout and was reset") {
			t.Errorf("task %s error = %q, want timeout note", id, got.Error)
		}
	}

	if got := getTask(t, s, healthy.ID); got.Status != store.StatusInProgress {
		t.Errorf("healthy status = %q, want in_progress untouched", got.Status)
	}
	if got := getTask(t, s, unstarted.ID); got.Status != store.StatusAssigned {
		t.Errorf("unstarted status = %q, want assigned untouched", got.Status)
	}
	if got := created.Load(); got != 2 {
		t.Errorf("task:created dispatches = %d, want 2", got)
	}
}

func TestAssignNextTaskPicksHighestPriority(t *testing.T) {
	k, s, _ := newTestKernel(t)
	if err := k.Init(mockFactory(nil)); err != nil {
		t.Fatalf("Init: %v", err)
	}

	low := mustCreate(t, s, &store.Task{Title: "low", Priority: 1})
	high := mustCreate(t, s, &store.Task{Title: "high", Priority: 9})
	goal := mustCreate(t, s, &store.Task{Title: "goal", Priority: 10})
	mustCreate(t, s, &store.Task{Title: "child", ParentTaskID: goal.ID, Priority: 10,
		Status: store.StatusDone})

	if err := k.assignNextTask("e1"); err != nil {
		t.Fatalf("assignNextTask: %v", err)
	}

	// The goal has children and is not assignable despite its priority.
	if got := getTask(t, s, high.ID); got.Status != store.StatusAssigned || got.AssigneeID != "e1" {
		t.Errorf("high = %q/%q, want assigned to e1", got.Status, got.AssigneeID)
	}
	if got := getTask(t, s, low.ID); got.Status != store.StatusIntake {
		t.Errorf("low status = %q, want intake", got.Status)
	}
	if got := getTask(t, s, goal.ID); got.Status != store.StatusIntake {
		t.Errorf("goal status = %q, want intake", got.Status)
	}
}

func TestAutonomyTickAdvancesWatermarks(t *testing.T) {
	k, s, bus := newTestKernel(t)
	if err := k.Init(mockFactory(nil)); err != nil {
		t.Fatalf("Init: %v", err)
	}
	created := countEvents(bus, events.TaskCreated)
	blocked := countEvents(bus, events.TaskBlocked)

	k.lastGoalScan = time.Now().UTC().Add(-time.Hour)
	k.lastBlockedScan = time.Now().UTC().Add(-time.Hour)

	mustCreate(t, s, &store.Task{Title: "new goal"})
	mustCreate(t, s, &store.Task{Title: "newly blocked", Status: store.StatusBlocked})

	if err := k.AutonomyTick(); err != nil {
		t.Fatalf("AutonomyTick: %v", err)
	}
	if err := k.AutonomyTick(); err != nil {
		t.Fatalf("AutonomyTick: %v", err)
	}
	bus.Wait()

	// The second tick scans only past the advanced watermark, so each task
	// is dispatched once.
	if got := created.Load(); got != 1 {
		t.Errorf("task:created dispatches = %d, want 1", got)
	}
	if got := blocked.Load(); got != 1 {
		t.Errorf("task:blocked dispatches = %d, want 1", got)
	}
}

func TestAutonomyTickNudgesIdleReviewer(t *testing.T) {
	k, s, bus := newTestKernel(t)
	seedAgent(t, s, "agent-reviewer-01", store.RoleReviewer, "reviewer-m")

	reviewerMock := mock.New(`{"decision":"approve","reasoning":"clean"}`)
	if err := k.Init(mockFactory(map[string]*mock.Provider{
		"reviewer-m": reviewerMock,
	})); err != nil {
		t.Fatalf("Init: %v", err)
	}

	task := mustCreate(t, s, &store.Task{Title: "awaiting", Status: store.StatusReview})
	if err := k.AutonomyTick(); err != nil {
		t.Fatalf("AutonomyTick: %v", err)
	}
	bus.Wait()

	if got := getTask(t, s, task.ID); got.Status != store.StatusDone {
		t.Errorf("status = %q, want done after reviewer nudge", got.Status)
	}
}

func TestAutonomyTickStrategistHeartbeat(t *testing.T) {
	k, s, bus := newTestKernel(t)
	seedAgent(t, s, "agent-strategist-01", store.RoleStrategist, "strategist-m")
	if err := k.Init(mockFactory(nil)); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := k.AutonomyTick(); err != nil {
		t.Fatalf("AutonomyTick: %v", err)
	}
	bus.Wait()

	// With no backlog the heartbeat seeds a strategy initiative.
	tasks, err := s.ListTasks(store.TaskFilter{CreatedByID: "agent-strategist-01"})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("initiatives = %d, want 1", len(tasks))
	}

	// Not due again within the interval.
	if err := k.AutonomyTick(); err != nil {
		t.Fatalf("AutonomyTick: %v", err)
	}
	bus.Wait()
	tasks, _ = s.ListTasks(store.TaskFilter{CreatedByID: "agent-strategist-01"})
	if len(tasks) != 1 {
		t.Errorf("initiatives = %d after second tick, want still 1", len(tasks))
	}
}

func TestStartStopMarksAgentsOffline(t *testing.T) {
	k, s, _ := newTestKernel(t)
	seedAgent(t, s, "agent-planner-01", store.RolePlanner, "planner-m")
	seedAgent(t, s, "agent-executor-01", store.RoleExecutor, "executor-m")
	if err := k.Init(mockFactory(nil)); err != nil {
		t.Fatalf("Init: %v", err)
	}

	if err := k.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	k.Stop()

	agents, err := s.ListAgents(store.AgentFilter{})
	if err != nil {
		t.Fatalf("ListAgents: %v", err)
	}
	for _, a := range agents {
		if a.Status != store.AgentOffline {
			t.Errorf("agent %s status = %q, want offline", a.ID, a.Status)
		}
	}
}

func TestGoalLifecycleEndToEnd(t *testing.T) {
	k, s, bus := newTestKernel(t)
	seedAgent(t, s, "agent-planner-01", store.RolePlanner, "planner-m")
	seedAgent(t, s, "agent-executor-01", store.RoleExecutor, "executor-m")
	seedAgent(t, s, "agent-reviewer-01", store.RoleReviewer, "reviewer-m")

	plannerMock := mock.New(
		`{"tasks":[{"title":"Implement endpoint","description":"handler and test","priority":5}]}`)
	executorMock := mock.New(`{"thinking":"straightforward","actions":[],"status":"complete","summary":"endpoint shipped"}`)
	executorMock.Repeat = true
	reviewerMock := mock.New(`{"decision":"approve","reasoning":"meets the description"}`)
	reviewerMock.Repeat = true

	if err := k.Init(mockFactory(map[string]*mock.Provider{
		"planner-m":  plannerMock,
		"executor-m": executorMock,
		"reviewer-m": reviewerMock,
	})); err != nil {
		t.Fatalf("Init: %v", err)
	}

	goal := mustCreate(t, s, &store.Task{
		Title:       "Ship the endpoint",
		Description: "users need it",
	})
	bus.Dispatch(events.Event{Type: events.TaskCreated, EntityID: goal.ID})
	bus.Wait()

	if got := getTask(t, s, goal.ID); got.Status != store.StatusDone {
		t.Fatalf("goal status = %q, want done", got.Status)
	}

	children, err := s.ListTasks(store.TaskFilter{ParentTaskID: goal.ID})
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(children) != 1 {
		t.Fatalf("children = %d, want 1", len(children))
	}
	child := children[0]
	if child.Status != store.StatusDone {
		t.Errorf("child status = %q, want done", child.Status)
	}
	if child.CompletedAt == nil || child.StartedAt == nil {
		t.Error("expected child StartedAt and CompletedAt to be set")
	}
	if !strings.HasPrefix(child.BranchName, "feature/task-") {
		t.Errorf("child branch = %q, want feature/task- prefix", child.BranchName)
	}
	if child.Result != "endpoint shipped" {
		t.Errorf("child result = %q, want executor summary", child.Result)
	}
}
