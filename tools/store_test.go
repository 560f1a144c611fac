package tools

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/agentsmith/agentos/store"
)

func newToolStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "tools.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreToolTaskRoundTrip(t *testing.T) {
	s := newToolStore(t)
	st := &StoreTool{Store: s, AgentID: "agent-1"}
	ctx := context.Background()

	out, err := st.Execute(ctx, map[string]any{
		"op": "create_task", "title": "do it", "priority": float64(4),
	})
	if err != nil {
		t.Fatalf("create_task: %v", err)
	}
	id := out.(map[string]any)["task_id"].(string)

	got, err := s.GetTask(id)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.CreatedByID != "agent-1" {
		t.Errorf("created_by = %q, want agent-1", got.CreatedByID)
	}
	if got.Priority != 4 {
		t.Errorf("priority = %d, want 4", got.Priority)
	}

	_, err = st.Execute(ctx, map[string]any{
		"op": "update_task", "task_id": id, "status": "in_progress",
	})
	if err != nil {
		t.Fatalf("update_task: %v", err)
	}
	got, _ = s.GetTask(id)
	if got.Status != store.StatusInProgress {
		t.Errorf("status = %q, want in_progress", got.Status)
	}
}

func TestStoreToolMessages(t *testing.T) {
	s := newToolStore(t)
	st := &StoreTool{Store: s, AgentID: "agent-1"}
	ctx := context.Background()

	_, err := st.Execute(ctx, map[string]any{
		"op": "send_message", "content": "status update", "task_id": "t1",
	})
	if err != nil {
		t.Fatalf("send_message: %v", err)
	}

	out, err := st.Execute(ctx, map[string]any{"op": "list_messages", "task_id": "t1"})
	if err != nil {
		t.Fatalf("list_messages: %v", err)
	}
	msgs := out.([]*store.Message)
	if len(msgs) != 1 || msgs[0].FromAgentID != "agent-1" {
		t.Fatalf("messages = %v, want one from agent-1", msgs)
	}
}
