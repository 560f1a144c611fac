package agent

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentsmith/agentos/events"
	"github.com/agentsmith/agentos/provider/mock"
	"github.com/agentsmith/agentos/store"
	"github.com/agentsmith/agentos/tools"
)

func newTestBase(t *testing.T, role store.AgentRole, mp *mock.Provider) Base {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	self := &store.Agent{
		ID:   "agent-" + string(role) + "-01",
		Name: string(role),
		Role: role,
	}
	if err := s.UpsertAgent(self); err != nil {
		t.Fatalf("UpsertAgent: %v", err)
	}

	logger := slog.New(slog.DiscardHandler)
	return Base{
		Self:     self,
		Store:    s,
		Bus:      events.NewBusWithWindow(logger, 10*time.Millisecond),
		Provider: mp,
		Registry: tools.NewRegistry(),
		Logger:   logger,
	}
}

// fakeTool records invocations and returns a fixed result.
type fakeTool struct {
	name   string
	result any
	calls  []map[string]any
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "test tool" }
func (f *fakeTool) Parameters() map[string]any {
	return map[string]any{"type": "object"}
}
func (f *fakeTool) Execute(_ context.Context, args map[string]any) (any, error) {
	f.calls = append(f.calls, args)
	return f.result, nil
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
